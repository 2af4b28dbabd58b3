package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/aggregator"
	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/policy"
)

func TestNewRecord_FlattensRealAndBoolSignals(t *testing.T) {
	ev := aggregator.Evidence{
		PrimarySignature: "sig-1",
		BotProbability:   0.77,
		IsBot:            true,
		RiskBand:         policy.RiskHigh,
		BotType:          "ScriptingLibrary",
		Signals: map[string]blackboard.Signal{
			"detection.heuristic.score": blackboard.RealSignal(0.5),
			"detection.ua.is_known_bot": blackboard.BoolSignal(true),
			"detection.llm.label":       blackboard.StrSignal("curl"), // non-numeric, dropped
		},
	}

	rec := NewRecord(ev)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "sig-1", rec.Signature)
	assert.Equal(t, 0.77, rec.BotProbability)
	assert.True(t, rec.IsBot)
	assert.Equal(t, "High", rec.RiskBand)
	assert.Equal(t, 0.5, rec.Features["detection.heuristic.score"])
	assert.Equal(t, 1.0, rec.Features["detection.ua.is_known_bot"])
	_, hasStr := rec.Features["detection.llm.label"]
	assert.False(t, hasStr, "non-numeric signals are not part of the feature vector")
}

func TestChannelSink_RecordAndDrain(t *testing.T) {
	s := NewChannelSink(4)
	s.Record(aggregator.Evidence{PrimarySignature: "sig-a"})
	s.Record(aggregator.Evidence{PrimarySignature: "sig-b"})

	first := <-s.Drain()
	second := <-s.Drain()
	assert.Equal(t, "sig-a", first.Signature)
	assert.Equal(t, "sig-b", second.Signature)
}

func TestChannelSink_OverflowDropsWithoutBlocking(t *testing.T) {
	s := NewChannelSink(1)
	s.Record(aggregator.Evidence{PrimarySignature: "keep"})
	s.Record(aggregator.Evidence{PrimarySignature: "dropped"}) // must not block

	rec := <-s.Drain()
	assert.Equal(t, "keep", rec.Signature)
}

func TestNewChannelSink_NonPositiveCapacityDefaults(t *testing.T) {
	s := NewChannelSink(0)
	assert.Equal(t, 1000, cap(s.ch))
}

func TestChannelSink_CloseClosesDrainChannel(t *testing.T) {
	s := NewChannelSink(2)
	require.NoError(t, s.Close())
	_, ok := <-s.Drain()
	assert.False(t, ok)
}
