package detectors

import (
	"context"
	"strings"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// uaClaimedOS extracts the coarse OS family a User-Agent string claims to
// run on, for comparison against the TCP/IP stack's independent OS guess.
func uaClaimedOS(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux") && !strings.Contains(ua, "android"):
		return "linux"
	case strings.Contains(ua, "android"):
		return "linux"
	default:
		return "unknown"
	}
}

// CorrelationDetector cross-checks independently-derived signals that a real
// client would never contradict: the OS a UA claims versus the OS the
// TCP/IP stack fingerprint actually guessed, folded together with the
// wave-1 inconsistency and wave-2 TLS headless-stack scores into a single
// "headless likelihood" estimate.
type CorrelationDetector struct{}

func (CorrelationDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	isHeadless, _ := bb.Get("detection.tls.is_headless_stack")
	inconsistency, _ := bb.Get("detection.inconsistency.score")

	osMismatch := false
	if guess, ok := bb.Get("detection.tcp.os_guess"); ok {
		claimed := uaClaimedOS(bb.Fingerprint.UserAgent)
		if claimed != "unknown" && guess.AsStr() != "unknown" && guess.AsStr() != "" && guess.AsStr() != claimed {
			osMismatch = true
		}
	}

	likelihood := 0.0
	if isHeadless.AsBool() {
		likelihood += 0.5
	}
	likelihood += 0.3 * inconsistency.AsReal()
	if osMismatch {
		likelihood += 0.4
	}
	if likelihood > 1.0 {
		likelihood = 1.0
	}

	_ = bb.Publish("detection.correlation.headless_likelihood", blackboard.RealSignal(likelihood))

	return orchestrator.Outcome{BotScore: likelihood, HumanScore: (1 - likelihood) * 0.3}, nil
}
