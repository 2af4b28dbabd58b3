package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeIntervals_TooFewSamplesReturnsZeroValue(t *testing.T) {
	assert.Equal(t, SpectralStats{}, AnalyzeIntervals([]float64{1, 2, 3}))
}

func TestAnalyzeIntervals_ConstantIntervalsConcentratePower(t *testing.T) {
	// A perfectly periodic signal (every interval identical) concentrates
	// nearly all power in the DC bin, giving low spectral entropy.
	constant := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	stats := AnalyzeIntervals(constant)

	assert.Equal(t, 0.0, stats.DominantFreq, "power concentrates at bin 0 for a constant series")
	assert.Less(t, stats.Entropy, 1.0)
}

func TestAnalyzeIntervals_AllZeroIntervalsReturnsZeroValue(t *testing.T) {
	zeros := []float64{0, 0, 0, 0, 0, 0}
	assert.Equal(t, SpectralStats{}, AnalyzeIntervals(zeros), "zero total power must not divide by zero")
}

func TestAnalyzeIntervals_PeakToAvgAtLeastOne(t *testing.T) {
	varied := []float64{0.5, 3.0, 0.2, 4.0, 0.1, 5.0, 0.3, 2.5}
	stats := AnalyzeIntervals(varied)
	assert.GreaterOrEqual(t, stats.PeakToAvg, 1.0, "the strongest bin can never be below the mean")
}
