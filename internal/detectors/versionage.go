package detectors

import (
	"context"
	"regexp"
	"strconv"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

var versionRe = regexp.MustCompile(`(?i)(chrome|firefox|safari|edge)/(\d+)`)

// minCurrentMajor is a floor below which a claimed browser major version is
// considered stale enough to be suspicious — either an abandoned real
// browser or, more often, a spoofed UA string nobody bothered to update.
// This is a coarse heuristic, not a live version feed.
const minCurrentMajor = 90

// VersionAgeDetector flags user-agent strings claiming an implausibly old
// browser major version.
type VersionAgeDetector struct{}

func (VersionAgeDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	m := versionRe.FindStringSubmatch(bb.Fingerprint.UserAgent)
	isStale := false
	if len(m) == 3 {
		if major, err := strconv.Atoi(m[2]); err == nil && major < minCurrentMajor {
			isStale = true
		}
	}

	_ = bb.Publish("detection.versionage.is_stale", blackboard.BoolSignal(isStale))

	if isStale {
		return orchestrator.Outcome{BotScore: 0.4}, nil
	}
	return orchestrator.Outcome{HumanScore: 0.2}, nil
}
