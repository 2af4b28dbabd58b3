package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/policy"
	"github.com/ocx/sentinel/internal/signature"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyTestDefaults()
	return cfg
}

func TestAggregate_LowScoreRequestIsLowRiskAllowed(t *testing.T) {
	cfg := testConfig()
	bb := blackboard.New(blackboard.Fingerprint{})
	result := orchestrator.RunResult{
		BotSum:   0.1,
		HumanSum: 0.8,
		Contributions: []blackboard.Contribution{
			{Detector: "UserAgent", BotScore: 0.1, Completed: true},
		},
	}
	names := signature.NewRecentNames(16)

	ev := Aggregate(cfg, bb, result, 1, names)

	assert.False(t, ev.IsBot)
	assert.Equal(t, policy.RiskVeryLow, ev.RiskBand)
	assert.Equal(t, policy.ActionAllow, ev.RecommendedAction)
	assert.InDelta(t, 0.3318, ev.BotProbability, 0.001, "net human lean of 0.7 with k=1 gives logistic(-0.7)")
}

func TestAggregate_HighScoreRequestIsBotAndBlocked(t *testing.T) {
	cfg := testConfig()
	bb := blackboard.New(blackboard.Fingerprint{})
	result := orchestrator.RunResult{
		BotSum:   5.0,
		HumanSum: 0.0,
		Contributions: []blackboard.Contribution{
			{Detector: "Heuristic", BotScore: 0.95, Completed: true},
		},
	}
	names := signature.NewRecentNames(16)

	ev := Aggregate(cfg, bb, result, 1, names)

	assert.True(t, ev.IsBot)
	assert.Equal(t, policy.RiskVeryHigh, ev.RiskBand)
	assert.Equal(t, policy.ActionBlock, ev.RecommendedAction)
}

func TestAggregate_DeadlineHitClampsActionAndRecordsReason(t *testing.T) {
	cfg := testConfig()
	bb := blackboard.New(blackboard.Fingerprint{})
	result := orchestrator.RunResult{
		BotSum:      5.0,
		HumanSum:    0.0,
		DeadlineHit: true,
		Contributions: []blackboard.Contribution{
			{Detector: "Heuristic", BotScore: 0.95, Completed: true},
		},
	}
	names := signature.NewRecentNames(16)

	ev := Aggregate(cfg, bb, result, 1, names)

	assert.Equal(t, policy.RiskVeryHigh, ev.RiskBand, "risk band is still derived from the max weighted score seen")
	assert.Equal(t, policy.ActionChallenge, ev.RecommendedAction, "deadline-exceeded verdicts never recommend Block")
	assert.Contains(t, ev.ActionReason, "deadline exceeded")
}

func TestAggregate_StrongSignalsBoostRiskBand(t *testing.T) {
	cfg := testConfig()
	bb := blackboard.New(blackboard.Fingerprint{})
	require.NoError(t, bb.Publish("detection.inconsistency.score", blackboard.RealSignal(0.9)))
	require.NoError(t, bb.Publish("detection.correlation.headless_likelihood", blackboard.RealSignal(0.9)))

	result := orchestrator.RunResult{
		Contributions: []blackboard.Contribution{
			{Detector: "Inconsistency", BotScore: 0.3, Completed: true},
		},
	}
	names := signature.NewRecentNames(16)

	ev := Aggregate(cfg, bb, result, 1, names)

	// maxWeighted of 0.3 alone falls in the Low band; two strong signals
	// should boost it one band up to Elevated.
	assert.Equal(t, policy.RiskElevated, ev.RiskBand)
}

func TestAggregate_ClassifiesKnownSecurityScannerOverAutomationClient(t *testing.T) {
	cfg := testConfig()
	bb := blackboard.New(blackboard.Fingerprint{})
	require.NoError(t, bb.Publish("detection.securitytool.tool_name", blackboard.StrSignal("sqlmap")))
	require.NoError(t, bb.Publish("detection.ua.is_automation_client", blackboard.BoolSignal(true)))

	result := orchestrator.RunResult{}
	names := signature.NewRecentNames(16)

	ev := Aggregate(cfg, bb, result, 1, names)
	assert.Equal(t, "SecurityScanner", ev.BotType)
}

func TestAggregate_BotNameDedupedAgainstRecentNames(t *testing.T) {
	cfg := testConfig()
	names := signature.NewRecentNames(16)
	names.TryUse("GPTBot")

	bb := blackboard.New(blackboard.Fingerprint{})
	require.NoError(t, bb.Publish("detection.llm.label", blackboard.StrSignal("GPTBot")))

	ev := Aggregate(cfg, bb, orchestrator.RunResult{}, 1, names)
	assert.Empty(t, ev.BotName, "a name already seen this window should not be reused")
}

func TestAggregate_CompletionRatioScalesConfidence(t *testing.T) {
	cfg := testConfig()
	bb := blackboard.New(blackboard.Fingerprint{})
	result := orchestrator.RunResult{
		BotSum:   1.0,
		HumanSum: 1.0,
		Contributions: []blackboard.Contribution{
			{Detector: "A", Completed: true},
		},
	}
	names := signature.NewRecentNames(16)

	full := Aggregate(cfg, bb, result, 1, names)
	half := Aggregate(cfg, bb, result, 2, names)

	assert.InDelta(t, half.Confidence, full.Confidence/2, 0.01, "half the detectors completed should roughly halve confidence")
}
