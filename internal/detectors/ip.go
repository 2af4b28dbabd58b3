package detectors

import (
	"context"
	"strings"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// knownCrawlerASNHints are substrings of reverse-DNS-style hints or IP
// annotations that indicate a request originates from an announced crawler
// network rather than a consumer ISP. In production this would consult an
// ASN database; here it keys off the fingerprint's own Datacenter flag plus
// any annotation carried in the IP string by the collector upstream.
var knownCrawlerASNHints = []string{"googlebot-net", "bingbot-net", "crawler-net"}

// IPDetector classifies the request's source IP: datacenter/hosting-range
// membership and known-crawler ASN membership.
type IPDetector struct{}

func (IPDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	isDatacenter := bb.Fingerprint.Datacenter
	_ = bb.Publish("detection.ip.is_datacenter", blackboard.BoolSignal(isDatacenter))

	isKnownCrawlerASN := matchesAny(strings.ToLower(bb.Fingerprint.IP), knownCrawlerASNHints)
	_ = bb.Publish("detection.ip.asn_known_crawler", blackboard.BoolSignal(isKnownCrawlerASN))

	var bot, human float64
	switch {
	case isKnownCrawlerASN:
		bot = 0.5
	case isDatacenter:
		bot = 0.6
	default:
		human = 0.5
	}

	return orchestrator.Outcome{BotScore: bot, HumanScore: human}, nil
}
