package detectors

import (
	"context"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// InconsistencyDetector compares wave-0 signals against each other and
// scores how internally contradictory the request's claimed identity is:
// a browser family with a near-empty header set is a textbook spoofed UA.
type InconsistencyDetector struct{}

func (InconsistencyDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	family, _ := bb.Get("detection.ua.browser_family")
	headerCount, _ := bb.Get("detection.header.header_count")
	acceptLang, _ := bb.Get("detection.header.accept_language_present")

	score := 0.0
	claimsBrowser := family.AsStr() != "" && family.AsStr() != "unknown"

	if claimsBrowser && headerCount.AsInt() <= 3 {
		score += 0.5
	}
	if claimsBrowser && !acceptLang.AsBool() {
		score += 0.3
	}
	if score > 1.0 {
		score = 1.0
	}

	_ = bb.Publish("detection.inconsistency.score", blackboard.RealSignal(score))

	return orchestrator.Outcome{BotScore: score, HumanScore: 1 - score}, nil
}
