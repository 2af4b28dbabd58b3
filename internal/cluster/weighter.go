// Package cluster implements the adaptive feature weighting and
// single-linkage clustering used by the heuristic and clustering detectors.
package cluster

import (
	"math"
	"sync"
)

// FeatureNames is the fixed, ordered set of named features the heuristic
// detector scores and the weighter adapts weights for. Order has no
// semantic meaning beyond giving tests and logs a stable iteration order.
var FeatureNames = []string{
	"ua_is_empty",
	"ua_is_known_bot",
	"ua_is_automation_client",
	"ua_claims_browser",
	"ua_version_stale",
	"header_count_low",
	"header_accept_language_missing",
	"header_order_suspicious",
	"header_sec_fetch_missing",
	"header_dnt_present",
	"ip_is_datacenter",
	"ip_known_crawler_asn",
	"securitytool_is_scanner",
	"method_is_uncommon",
	"http_version_legacy",
	"path_entropy_high",
	"referer_missing",
	"accept_header_missing",
}

const featureCount = 18

func init() {
	if len(FeatureNames) != featureCount {
		panic("cluster: FeatureNames must have exactly 18 entries")
	}
	if len(GlossaryFeatureNames) != featureCount {
		panic("cluster: GlossaryFeatureNames must have exactly 18 entries")
	}
}

// GlossaryFeatureNames is the 18 named features from the spec glossary used
// by the clustering sub-algorithm's per-signature similarity vector: timing,
// rate, pathDiv, entropy, botProb, geo, datacenter, asn, spectralEntropy,
// harmonic, peakToAvg, dominantFreq, selfDrift, humanDrift, loopScore,
// surprise, novelty, entropyDelta.
var GlossaryFeatureNames = []string{
	"timing", "rate", "pathDiv", "entropy", "botProb", "geo",
	"datacenter", "asn", "spectralEntropy", "harmonic", "peakToAvg",
	"dominantFreq", "selfDrift", "humanDrift", "loopScore", "surprise",
	"novelty", "entropyDelta",
}

// windowSize bounds how many recent observations of a single feature are
// kept for its coefficient-of-variation estimate.
const windowSize = 50

// AdaptiveSimilarityWeighter tracks, per named feature, a short rolling
// history of observed values and adapts that feature's weight proportional
// to its coefficient of variation (CV = stddev/mean): a feature whose value
// swings widely across recent requests is the one currently separating
// members of a cluster from everyone else, so it earns more weight; a
// feature that barely moves carries no discriminating power right now and
// is down-weighted. Weights are clamped and renormalized to sum to ~1 after
// every observation.
type AdaptiveSimilarityWeighter struct {
	mu         sync.Mutex
	names      []string
	weights    map[string]float64
	history    map[string][]float64
	lastCV     map[string]float64
	minWeight  float64
	maxWeight  float64
	shiftDelta float64
}

// NewAdaptiveSimilarityWeighter creates a weighter with equal initial
// weights across the heuristic detector's 18 named features.
func NewAdaptiveSimilarityWeighter(minWeight, maxWeight, shiftDelta float64) *AdaptiveSimilarityWeighter {
	return NewAdaptiveSimilarityWeighterFor(FeatureNames, minWeight, maxWeight, shiftDelta)
}

// NewAdaptiveSimilarityWeighterFor creates a weighter over an arbitrary
// named feature set with equal initial weights. The clustering
// sub-algorithm uses this with GlossaryFeatureNames to keep its per-signature
// similarity weights independent of the heuristic detector's own weighter.
func NewAdaptiveSimilarityWeighterFor(names []string, minWeight, maxWeight, shiftDelta float64) *AdaptiveSimilarityWeighter {
	w := &AdaptiveSimilarityWeighter{
		names:      names,
		weights:    make(map[string]float64, len(names)),
		history:    make(map[string][]float64, len(names)),
		lastCV:     make(map[string]float64, len(names)),
		minWeight:  minWeight,
		maxWeight:  maxWeight,
		shiftDelta: shiftDelta,
	}
	equal := 1.0 / float64(len(names))
	for _, name := range names {
		w.weights[name] = equal
	}
	return w
}

// Observe records one sample per named feature (values expected in [0,1])
// and re-derives every feature's weight from its updated history. It
// returns true if any feature's CV moved by more than shiftDelta since the
// last observation — a signal the underlying traffic mix has shifted enough
// that callers may want to log or reset downstream state.
func (w *AdaptiveSimilarityWeighter) Observe(features map[string]float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	shifted := false
	for _, name := range w.names {
		val, ok := features[name]
		if !ok {
			continue
		}
		hist := append(w.history[name], val)
		if len(hist) > windowSize {
			hist = hist[len(hist)-windowSize:]
		}
		w.history[name] = hist

		cv := coefficientOfVariation(hist)
		if prev, ok := w.lastCV[name]; ok && math.Abs(cv-prev) > w.shiftDelta {
			shifted = true
		}
		w.lastCV[name] = cv

		raw := cv
		w.weights[name] = clamp(raw, w.minWeight, w.maxWeight)
	}

	w.renormalizeLocked()
	return shifted
}

// Weights returns a snapshot of the current per-feature weights, summing to
// approximately 1.
func (w *AdaptiveSimilarityWeighter) Weights() map[string]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]float64, len(w.weights))
	for k, v := range w.weights {
		out[k] = v
	}
	return out
}

func (w *AdaptiveSimilarityWeighter) renormalizeLocked() {
	var sum float64
	for _, v := range w.weights {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for k := range w.weights {
		w.weights[k] /= sum
	}
}

func coefficientOfVariation(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, v := range data {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(data))

	return math.Sqrt(variance) / mean
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
