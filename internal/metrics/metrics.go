// Package metrics holds the engine's Prometheus instrumentation: per-wave
// and per-detector latency, the final bot-probability distribution, action
// counts, LLM escalation behaviour, and circuit breaker state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the detection engine.
type Metrics struct {
	WaveDuration     *prometheus.HistogramVec
	DetectorDuration *prometheus.HistogramVec
	DetectorOutcome  *prometheus.CounterVec

	RequestDuration *prometheus.HistogramVec
	BotProbability  prometheus.Histogram
	ActionTotal     *prometheus.CounterVec
	RiskBandTotal   *prometheus.CounterVec

	LLMEscalations *prometheus.CounterVec
	LLMDuration    prometheus.Histogram

	CircuitBreakerState *prometheus.GaugeVec
	BackpressureSkips   *prometheus.CounterVec
}

// New creates and registers the engine's metrics.
func New() *Metrics {
	return &Metrics{
		WaveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_wave_duration_seconds",
				Help:    "Duration of a single orchestrator wave",
				Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"wave"},
		),

		DetectorDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_detector_duration_seconds",
				Help:    "Duration of a single detector run",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"detector"},
		),

		DetectorOutcome: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_detector_outcome_total",
				Help: "Detector completion outcomes",
			},
			[]string{"detector", "outcome"}, // outcome: completed, skipped, failed, timeout
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_request_duration_seconds",
				Help:    "End-to-end evaluate() duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"deadline_hit"},
		),

		BotProbability: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_bot_probability",
				Help:    "Distribution of the aggregated bot probability",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.99},
			},
		),

		ActionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_action_total",
				Help: "Total recommended actions by kind",
			},
			[]string{"action"},
		),

		RiskBandTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_risk_band_total",
				Help: "Total requests by assigned risk band",
			},
			[]string{"risk_band"},
		),

		LLMEscalations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_llm_escalations_total",
				Help: "Total LLM escalation attempts by result",
			},
			[]string{"result"}, // result: success, failure, circuit_open
		),

		LLMDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_llm_duration_seconds",
				Help:    "Duration of LLM completion calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_circuit_breaker_state",
				Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open",
			},
			[]string{"breaker"},
		),

		BackpressureSkips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_backpressure_skips_total",
				Help: "Detectors proactively skipped due to worker pool saturation",
			},
			[]string{"detector"},
		),
	}
}

// RecordDetector records one detector's run duration and outcome.
func (m *Metrics) RecordDetector(name, outcome string, durationSeconds float64) {
	m.DetectorDuration.WithLabelValues(name).Observe(durationSeconds)
	m.DetectorOutcome.WithLabelValues(name, outcome).Inc()
}

// RecordRequest records one full evaluate() call.
func (m *Metrics) RecordRequest(deadlineHit bool, durationSeconds, botProbability float64, action, riskBand string) {
	m.RequestDuration.WithLabelValues(boolLabel(deadlineHit)).Observe(durationSeconds)
	m.BotProbability.Observe(botProbability)
	m.ActionTotal.WithLabelValues(action).Inc()
	m.RiskBandTotal.WithLabelValues(riskBand).Inc()
}

// RecordLLM records one LLM escalation attempt.
func (m *Metrics) RecordLLM(result string, durationSeconds float64) {
	m.LLMEscalations.WithLabelValues(result).Inc()
	m.LLMDuration.Observe(durationSeconds)
}

// UpdateCircuitBreaker records a breaker's current numeric state.
func (m *Metrics) UpdateCircuitBreaker(name string, state float64) {
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
