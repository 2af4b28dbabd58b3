package detectors

import (
	"context"
	"math"
	"sync"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/cluster"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/signature"
)

// clusterBotDampening discounts how strongly a cluster majority moves the
// score: clustering corroborates other detectors rather than standing alone,
// so even a unanimous bot cluster contributes less than a direct detection.
const clusterBotDampening = 0.5

// ClusteringDetector groups signatures by their 18-feature behavioural
// vector (§9 glossary) and lets a signature borrow its cluster's majority
// verdict — useful for low-volume signatures that individually look
// ambiguous but sit in a tight cluster with already-confirmed bots.
//
// It shares tracker with WaveformDetector purely as a read source: the
// waveform detector owns advancing the sliding window, clustering only
// reads whatever it already published this wave.
type ClusteringDetector struct {
	store   *cluster.Store
	tracker *signature.WaveformTracker

	mu          sync.Mutex
	prevEntropy map[string]float64
}

func NewClusteringDetector(store *cluster.Store, tracker *signature.WaveformTracker) *ClusteringDetector {
	return &ClusteringDetector{store: store, tracker: tracker, prevEntropy: make(map[string]float64)}
}

func (d *ClusteringDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	sig := bb.Signature()
	if sig == "" {
		return orchestrator.Outcome{}, nil
	}

	features := d.featureVector(bb, sig)
	clusterID, size, ok := d.store.Observe(sig, features)
	if !ok {
		return orchestrator.Outcome{}, nil
	}

	_ = bb.Publish("detection.clustering.cluster_id", blackboard.StrSignal(clusterID))
	_ = bb.Publish("detection.clustering.cluster_size", blackboard.IntSignal(int64(size)))

	botProb, _ := d.store.MajorityBotProb(clusterID)
	bot := botProb * clusterBotDampening
	human := (1 - botProb) * clusterBotDampening

	return orchestrator.Outcome{BotScore: bot, HumanScore: human}, nil
}

// featureVector assembles the glossary's 18 named features for signature
// from whatever wave-0..2 signals are already on the blackboard, plus the
// timing/spectral stats the wave-2 waveform detector published (when it had
// enough history to publish at all — otherwise the timing-derived features
// default to zero, same as any other detector with unmet preconditions).
func (d *ClusteringDetector) featureVector(bb *blackboard.Context, sig string) map[string]float64 {
	jitterVar, _ := bb.Get("detection.waveform.jitter_variance")
	pathEnt, _ := bb.Get("detection.waveform.path_entropy")
	rate, _ := bb.Get("detection.waveform.rate_per_min")
	botScore, _ := bb.Get("detection.heuristic.bot_score")
	isDatacenter, _ := bb.Get("detection.ip.is_datacenter")
	knownCrawler, _ := bb.Get("detection.ip.asn_known_crawler")

	spectral := cluster.AnalyzeIntervals(d.tracker.Intervals(sig))

	entropyNow := pathEnt.AsReal()
	d.mu.Lock()
	entropyDelta := entropyNow - d.prevEntropy[sig]
	d.prevEntropy[sig] = entropyNow
	d.mu.Unlock()

	geoMismatch := 0.0
	if bb.Fingerprint.ClientFeatures["geo_mismatch"] == "true" {
		geoMismatch = 1.0
	}

	return map[string]float64{
		"timing":          clamp01(jitterVar.AsReal()),
		"rate":            clamp01(rate.AsReal() / 120.0),
		"pathDiv":         clamp01(entropyNow / 4.0),
		"entropy":         clamp01(shannonEntropy(bb.Fingerprint.Path) / 4.0),
		"botProb":         clamp01(botScore.AsReal()),
		"geo":             geoMismatch,
		"datacenter":      boolToFloat(isDatacenter.AsBool()),
		"asn":             boolToFloat(knownCrawler.AsBool()),
		"spectralEntropy": clamp01(spectral.Entropy / 3.0),
		"harmonic":        clamp01(spectral.HarmonicRatio),
		"peakToAvg":       clamp01(spectral.PeakToAvg / 10.0),
		"dominantFreq":    clamp01(spectral.DominantFreq),
		"selfDrift":       clamp01(1 - clamp01(entropyNow/4.0)),
		"humanDrift":      clamp01(entropyNow / 4.0),
		"loopScore":       clamp01(1 - entropyNow/4.0),
		"surprise":        clamp01(math.Abs(entropyDelta) / 2.0),
		"novelty":         clamp01(entropyNow / 4.0),
		"entropyDelta":    clamp01(math.Abs(entropyDelta) / 2.0),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
