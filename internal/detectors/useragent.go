// Package detectors implements the catalog of contributing detectors named
// in the detector manifest: each reads the request fingerprint and whatever
// signals earlier waves have published, optionally publishes its own
// signals, and returns a local bot/human Outcome for the orchestrator to
// weight and fold into the aggregate.
package detectors

import (
	"context"
	"regexp"
	"strings"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// knownBotPatterns matches user-agent substrings belonging to well-known,
// largely benign crawlers and monitoring bots.
var knownBotPatterns = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
	"yandexbot", "facebookexternalhit", "twitterbot", "applebot",
	"pingdom", "uptimerobot", "ahrefsbot", "semrushbot",
}

// knownAutomationPatterns matches user-agent substrings associated with HTTP
// libraries and headless automation frameworks rather than real browsers.
var knownAutomationPatterns = []string{
	"curl", "wget", "python-requests", "python-urllib", "go-http-client",
	"java/", "okhttp", "scrapy", "headlesschrome", "phantomjs",
	"puppeteer", "playwright", "selenium",
}

var browserFamilyRe = regexp.MustCompile(`(?i)(chrome|firefox|safari|edge|opera)/[\d.]+`)

// UserAgentDetector classifies the raw User-Agent header: known-bot
// allowlist membership, known-automation-library membership, browser family
// extraction, and the empty-UA edge case.
type UserAgentDetector struct{}

func (UserAgentDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	ua := strings.ToLower(bb.Fingerprint.UserAgent)

	isEmpty := strings.TrimSpace(ua) == ""
	_ = bb.Publish("detection.ua.is_empty", blackboard.BoolSignal(isEmpty))

	isKnownBot := matchesAny(ua, knownBotPatterns)
	_ = bb.Publish("detection.ua.is_known_bot", blackboard.BoolSignal(isKnownBot))

	family := "unknown"
	if m := browserFamilyRe.FindStringSubmatch(bb.Fingerprint.UserAgent); len(m) > 1 {
		family = strings.ToLower(m[1])
	}
	_ = bb.Publish("detection.ua.browser_family", blackboard.StrSignal(family))

	isAutomation := matchesAny(ua, knownAutomationPatterns)
	_ = bb.Publish("detection.ua.is_automation_client", blackboard.BoolSignal(isAutomation))

	var bot, human float64
	switch {
	case isEmpty:
		bot = 0.9
	case isKnownBot:
		bot = 0.6 // declared-bot crawlers are bot traffic, not attack traffic
	case isAutomation:
		bot = 1.0
	case family != "unknown":
		human = 0.8
	default:
		bot = 0.3
	}

	return orchestrator.Outcome{BotScore: bot, HumanScore: human}, nil
}

func matchesAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
