package detectors

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/cluster"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// HeuristicDetector folds the named feature set into a single weighted
// logistic score. Weights come from an AdaptiveSimilarityWeighter shared
// across requests, so the relative importance of each feature drifts with
// observed traffic instead of staying fixed at deploy time.
type HeuristicDetector struct {
	weighter *cluster.AdaptiveSimilarityWeighter
	k        float64
}

// NewHeuristicDetector builds a detector backed by a fresh weighter seeded
// with the configured clamp bounds and shift-detection sensitivity.
func NewHeuristicDetector(minWeight, maxWeight, shiftDelta float64) *HeuristicDetector {
	return &HeuristicDetector{
		weighter: cluster.NewAdaptiveSimilarityWeighter(minWeight, maxWeight, shiftDelta),
		k:        6.0,
	}
}

func (h *HeuristicDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	features := h.featureVector(bb)
	h.weighter.Observe(features)
	weights := h.weighter.Weights()

	var weighted float64
	for name, val := range features {
		weighted += weights[name] * val
	}

	// weighted sits in [0,1]; recentre on 0.5 so a fully neutral feature
	// vector produces logistic(0) = 0.5 before the bot/human split below.
	p := 1.0 / (1.0+math.Exp(-h.k*(weighted-0.5)))
	_ = bb.Publish("detection.heuristic.bot_score", blackboard.RealSignal(p))

	return orchestrator.Outcome{BotScore: p, HumanScore: 1 - p}, nil
}

// featureVector derives all 18 named features for the current request. Only
// wave-0 signals are read via the blackboard (wave-1 siblings run
// concurrently with this detector and offer no ordering guarantee); every
// other feature is computed directly from the fingerprint.
func (h *HeuristicDetector) featureVector(bb *blackboard.Context) map[string]float64 {
	fp := bb.Fingerprint
	f := make(map[string]float64, len(cluster.FeatureNames))

	isEmpty, _ := bb.Get("detection.ua.is_empty")
	f["ua_is_empty"] = boolToFloat(isEmpty.AsBool())

	isKnownBot, _ := bb.Get("detection.ua.is_known_bot")
	f["ua_is_known_bot"] = boolToFloat(isKnownBot.AsBool())

	ua := strings.ToLower(fp.UserAgent)
	f["ua_is_automation_client"] = boolToFloat(matchesAny(ua, knownAutomationPatterns))

	family, _ := bb.Get("detection.ua.browser_family")
	f["ua_claims_browser"] = boolToFloat(family.AsStr() != "" && family.AsStr() != "unknown")

	f["ua_version_stale"] = boolToFloat(isStaleVersion(fp.UserAgent))

	headerCount, _ := bb.Get("detection.header.header_count")
	f["header_count_low"] = boolToFloat(headerCount.AsInt() <= 3)

	acceptLang, _ := bb.Get("detection.header.accept_language_present")
	f["header_accept_language_missing"] = boolToFloat(!acceptLang.AsBool())

	orderSuspicious, _ := bb.Get("detection.header.order_suspicious")
	f["header_order_suspicious"] = boolToFloat(orderSuspicious.AsBool())

	_, hasSecFetch := fp.Headers["Sec-Fetch-Site"]
	f["header_sec_fetch_missing"] = boolToFloat(!hasSecFetch)

	_, hasDNT := fp.Headers["Dnt"]
	f["header_dnt_present"] = boolToFloat(hasDNT)

	isDatacenter, _ := bb.Get("detection.ip.is_datacenter")
	f["ip_is_datacenter"] = boolToFloat(isDatacenter.AsBool())

	crawlerASN, _ := bb.Get("detection.ip.asn_known_crawler")
	f["ip_known_crawler_asn"] = boolToFloat(crawlerASN.AsBool())

	isScanner, _ := bb.Get("detection.securitytool.is_known_scanner")
	f["securitytool_is_scanner"] = boolToFloat(isScanner.AsBool())

	f["method_is_uncommon"] = boolToFloat(fp.Method != "GET" && fp.Method != "POST" && fp.Method != "HEAD")
	f["http_version_legacy"] = boolToFloat(fp.HTTPVersion == "HTTP/1.0")
	f["path_entropy_high"] = boolToFloat(shannonEntropy(fp.Path) > 4.0)

	_, hasReferer := fp.Headers["Referer"]
	f["referer_missing"] = boolToFloat(!hasReferer)

	_, hasAccept := fp.Headers["Accept"]
	f["accept_header_missing"] = boolToFloat(!hasAccept)

	return f
}

func isStaleVersion(ua string) bool {
	m := versionRe.FindStringSubmatch(ua)
	if len(m) != 3 {
		return false
	}
	major, err := strconv.Atoi(m[2])
	return err == nil && major < minCurrentMajor
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	total := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
