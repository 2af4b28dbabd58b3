package detectors

import (
	"context"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// knownBadJA3 maps JA3/JA4 digests to the category of client they are known
// to belong to. In production this table is refreshed from a threat-intel
// feed; the entries below are the stable digests of a handful of common
// non-browser TLS stacks (default cipher suite / extension order for the Go,
// Python, and headless-Chromium TLS clients), kept small and illustrative
// rather than exhaustive.
var knownBadJA3 = map[string]string{
	"e7d705a3286e19ea42f587b344ee6865": "go-http-client",
	"6734f37431670b3ab4292b8f60f29984": "python-requests",
	"b32309a26951912be7dba376398abc3b": "headless-chromium",
	"cd08e31494f9531f560d64c695473da9": "scrapy",
}

// TLSFingerprintDetector matches the negotiated JA3/JA4 digest against a
// known-bad table and flags stacks whose extension/cipher ordering is
// characteristic of a headless automation TLS client rather than a real
// browser.
type TLSFingerprintDetector struct{}

func (TLSFingerprintDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	fp := bb.Fingerprint
	if fp.TLSJA3 == "" && fp.TLSJA4 == "" {
		// Missing TLS metadata: detector does not fire (spec §8 boundary).
		return orchestrator.Outcome{}, nil
	}

	category, knownBad := knownBadJA3[fp.TLSJA3]
	if !knownBad {
		category, knownBad = knownBadJA3[fp.TLSJA4]
	}
	_ = bb.Publish("detection.tls.ja3_known_bad", blackboard.BoolSignal(knownBad))

	isHeadless := knownBad && (category == "headless-chromium" || category == "scrapy")
	_ = bb.Publish("detection.tls.is_headless_stack", blackboard.BoolSignal(isHeadless))

	var bot, human float64
	switch {
	case isHeadless:
		bot = 0.7
	case knownBad:
		bot = 0.5
	default:
		human = 0.3
	}

	return orchestrator.Outcome{BotScore: bot, HumanScore: human}, nil
}
