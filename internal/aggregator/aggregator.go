// Package aggregator turns an orchestrator run into the final
// aggregated-evidence verdict: bot probability, confidence, risk band, and
// recommended action.
package aggregator

import (
	"math"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/policy"
	"github.com/ocx/sentinel/internal/signature"
)

// Evidence is the aggregated-evidence output per spec §3.
type Evidence struct {
	IsBot             bool
	BotProbability    float64
	Confidence        float64
	RiskBand          policy.RiskBand
	BotType           string
	BotName           string
	RecommendedAction policy.Action
	ActionReason      string
	PolicyName        string
	Contributions     []blackboard.Contribution
	Signals           map[string]blackboard.Signal
	PrimarySignature  string
	ProcessingMs      float64
}

// Aggregate computes the final verdict from one orchestrator run. enabledCount
// is how many detectors were enabled in the registry (the denominator of the
// completion ratio); names dedups LLM-proposed bot names against the
// bounded recent-names queue.
func Aggregate(cfg *config.Config, bb *blackboard.Context, result orchestrator.RunResult, enabledCount int, names *signature.RecentNames) Evidence {
	k := cfg.Aggregator.LogisticK
	p := 1.0 / (1.0 + math.Exp(-k*(result.BotSum-result.HumanSum)))
	p = clamp(p, 0.01, 0.99)

	completed := 0
	var maxWeighted float64
	for _, c := range result.Contributions {
		if c.Completed {
			completed++
		}
		if c.BotScore > maxWeighted {
			maxWeighted = c.BotScore
		}
		if c.HumanScore > maxWeighted {
			maxWeighted = c.HumanScore
		}
	}

	completionRatio := 1.0
	if enabledCount > 0 {
		completionRatio = float64(completed) / float64(enabledCount)
	}
	confidence := clamp(min(1, (result.BotSum+result.HumanSum)/cfg.Aggregator.Saturation)*completionRatio, 0, 1)

	isBot := p >= cfg.Aggregator.BotThreshold

	band := riskBand(cfg, maxWeighted)
	if strongSignalCount(cfg, bb) >= 2 {
		band = band.Boost()
	}

	reason := ""
	if result.DeadlineHit {
		reason = "partial: deadline exceeded before all waves completed"
	}

	botType := classifyBotType(bb)
	action, policyName := policy.Resolve(band, botType)
	if result.DeadlineHit {
		action = policy.ClampAtMost(action, policy.ActionChallenge)
	}

	botName := ""
	if label, ok := bb.Get("detection.llm.label"); ok && label.AsStr() != "" {
		if names.TryUse(label.AsStr()) {
			botName = label.AsStr()
		}
	}

	return Evidence{
		IsBot:             isBot,
		BotProbability:    p,
		Confidence:        confidence,
		RiskBand:          band,
		BotType:           botType,
		BotName:           botName,
		RecommendedAction: action,
		ActionReason:      reason,
		PolicyName:        policyName,
		Contributions:     result.Contributions,
		Signals:           bb.Snapshot(),
		PrimarySignature:  bb.Signature(),
	}
}

// riskBand maps maxWeighted against cfg.Aggregator.RiskBandCutoffs, which
// must hold 5 ascending thresholds splitting the 6 bands.
func riskBand(cfg *config.Config, maxWeighted float64) policy.RiskBand {
	cutoffs := cfg.Aggregator.RiskBandCutoffs
	bands := []policy.RiskBand{
		policy.RiskVeryLow, policy.RiskLow, policy.RiskElevated,
		policy.RiskMedium, policy.RiskHigh, policy.RiskVeryHigh,
	}
	for i, cutoff := range cutoffs {
		if maxWeighted < cutoff {
			return bands[i]
		}
	}
	return policy.RiskVeryHigh
}

// strongSignalCount counts how many of the three "strong signal" conditions
// hold: inconsistency score above threshold, headless likelihood above
// threshold, and a datacenter-sourced IP.
func strongSignalCount(cfg *config.Config, bb *blackboard.Context) int {
	count := 0
	if s, ok := bb.Get("detection.inconsistency.score"); ok && s.AsReal() > cfg.Aggregator.StrongInconsist {
		count++
	}
	if s, ok := bb.Get("detection.correlation.headless_likelihood"); ok && s.AsReal() > cfg.Aggregator.StrongHeadless {
		count++
	}
	if s, ok := bb.Get("detection.ip.is_datacenter"); ok && s.AsBool() {
		count++
	}
	return count
}

// classifyBotType names the kind of automated client this request looks
// like, preferring the most specific signal available: a known security
// scanner, a named automation library, a well-known search/social crawler,
// or whatever bot_type the LLM escalation detector proposed.
func classifyBotType(bb *blackboard.Context) string {
	if tool, ok := bb.Get("detection.securitytool.tool_name"); ok && tool.AsStr() != "" {
		return "SecurityScanner"
	}
	if auto, ok := bb.Get("detection.ua.is_automation_client"); ok && auto.AsBool() {
		return "ScriptingLibrary"
	}
	if known, ok := bb.Get("detection.ua.is_known_bot"); ok && known.AsBool() {
		return "SearchEngine"
	}
	if label, ok := bb.Get("detection.llm.label"); ok && label.AsStr() != "" {
		return label.AsStr()
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
