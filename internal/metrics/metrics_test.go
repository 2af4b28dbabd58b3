package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// New registers every collector against the default Prometheus registry, so
// this package can only construct one Metrics per test binary run.
var m = New()

func TestRecordDetector_IncrementsOutcomeCounter(t *testing.T) {
	m.RecordDetector("UserAgent", "completed", 0.002)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DetectorOutcome.WithLabelValues("UserAgent", "completed")))
}

func TestRecordRequest_IncrementsActionAndRiskBandCounters(t *testing.T) {
	m.RecordRequest(false, 0.01, 0.8, "Block", "VeryHigh")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionTotal.WithLabelValues("Block")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RiskBandTotal.WithLabelValues("VeryHigh")))
}

func TestRecordLLM_IncrementsEscalationCounter(t *testing.T) {
	m.RecordLLM("success", 0.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMEscalations.WithLabelValues("success")))
}

func TestUpdateCircuitBreaker_SetsGauge(t *testing.T) {
	m.UpdateCircuitBreaker("llm-escalation", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("llm-escalation")))
}

func TestBoolLabel(t *testing.T) {
	assert.Equal(t, "true", boolLabel(true))
	assert.Equal(t, "false", boolLabel(false))
}
