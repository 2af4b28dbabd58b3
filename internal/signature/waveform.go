package signature

import (
	"math"
	"sync"
	"time"
)

// minWaveformSamples is the N from spec §4.D's waveform detector: below
// this many recorded visits for a signature, timing/path statistics are too
// noisy to trust.
const minWaveformSamples = 5

// waveformRingSize bounds how many recent visits per signature feed the
// waveform statistics — the same sliding-window discipline as HitCounter,
// scoped to raw timestamps and paths instead of a single count.
const waveformRingSize = 30

type visit struct {
	at   time.Time
	path string
}

// WaveformTracker extends the per-signature sliding window (§5's "(b)")
// with the raw timestamp/path history the behavioural waveform detector
// needs: inter-arrival coefficient of variation, path entropy, and request
// rate.
type WaveformTracker struct {
	mu      sync.Mutex
	history map[string][]visit
}

// NewWaveformTracker builds an empty, process-wide tracker.
func NewWaveformTracker() *WaveformTracker {
	return &WaveformTracker{history: make(map[string][]visit)}
}

// Intervals returns a copy of signature's current inter-arrival series
// without recording a new visit, for detectors (clustering) that need the
// raw series in the same wave a sibling already advanced it in.
func (t *WaveformTracker) Intervals(signature string) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	hist := t.history[signature]
	if len(hist) < 2 {
		return nil
	}
	intervals := make([]float64, 0, len(hist)-1)
	for i := 1; i < len(hist); i++ {
		intervals = append(intervals, hist[i].at.Sub(hist[i-1].at).Seconds())
	}
	return intervals
}

// WaveformStats summarizes a signature's recent visit pattern.
type WaveformStats struct {
	IntervalCV  float64 // coefficient of variation of inter-arrival seconds
	PathEntropy float64 // Shannon entropy over the visited path set
	RatePerMin  float64
	SampleCount int
	Intervals   []float64 // inter-arrival seconds, oldest first; feeds spectral features
	IsNewPath   bool      // true if this visit's path hasn't been seen before in the window
	PriorVisits int       // visits recorded for this signature before this one (self-drift baseline)
}

// Record appends one visit for signature and returns the resulting
// statistics plus whether enough samples exist yet to trust them.
func (t *WaveformTracker) Record(signature, path string, at time.Time) (WaveformStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prior := t.history[signature]
	priorVisits := len(prior)
	isNewPath := true
	for _, v := range prior {
		if v.path == path {
			isNewPath = false
			break
		}
	}

	hist := append(prior, visit{at: at, path: path})
	if len(hist) > waveformRingSize {
		hist = hist[len(hist)-waveformRingSize:]
	}
	t.history[signature] = hist

	if len(hist) < minWaveformSamples {
		return WaveformStats{SampleCount: len(hist), IsNewPath: isNewPath, PriorVisits: priorVisits}, false
	}

	intervals := make([]float64, 0, len(hist)-1)
	for i := 1; i < len(hist); i++ {
		intervals = append(intervals, hist[i].at.Sub(hist[i-1].at).Seconds())
	}

	span := hist[len(hist)-1].at.Sub(hist[0].at).Minutes()
	rate := 0.0
	if span > 0 {
		rate = float64(len(hist)) / span
	}

	return WaveformStats{
		IntervalCV:  coefficientOfVariation(intervals),
		PathEntropy: pathEntropy(hist),
		RatePerMin:  rate,
		SampleCount: len(hist),
		Intervals:   intervals,
		IsNewPath:   isNewPath,
		PriorVisits: priorVisits,
	}, true
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

func pathEntropy(hist []visit) float64 {
	counts := make(map[string]int, len(hist))
	for _, v := range hist {
		counts[v.path]++
	}
	total := float64(len(hist))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
