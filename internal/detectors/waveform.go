package detectors

import (
	"context"
	"time"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/signature"
)

// Thresholds below which a visit pattern reads as scripted: inter-arrival
// times that barely vary (a human's clicking/reading cadence is noisy) and a
// path set that's nearly a single repeated endpoint.
const (
	waveformLowCV      = 0.15
	waveformLowEntropy = 0.3
	waveformHighRate   = 60.0 // visits/min
)

// WaveformDetector watches the behavioural shape of a signature's recent
// visits rather than any single request: timing regularity, path diversity,
// and request rate. It needs accumulated history, so it no-ops until the
// tracker has seen enough samples for this signature.
type WaveformDetector struct {
	tracker *signature.WaveformTracker
}

func NewWaveformDetector(tracker *signature.WaveformTracker) *WaveformDetector {
	return &WaveformDetector{tracker: tracker}
}

func (d *WaveformDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	sig := bb.Signature()
	if sig == "" {
		return orchestrator.Outcome{}, nil
	}

	stats, ready := d.tracker.Record(sig, bb.Fingerprint.Path, time.Now())
	if !ready {
		return orchestrator.Outcome{}, nil
	}

	_ = bb.Publish("detection.waveform.jitter_variance", blackboard.RealSignal(stats.IntervalCV))
	_ = bb.Publish("detection.waveform.path_entropy", blackboard.RealSignal(stats.PathEntropy))
	_ = bb.Publish("detection.waveform.rate_per_min", blackboard.RealSignal(stats.RatePerMin))

	machineLike := stats.IntervalCV < waveformLowCV && stats.PathEntropy < waveformLowEntropy
	_ = bb.Publish("detection.waveform.machine_like", blackboard.BoolSignal(machineLike))

	var bot, human float64
	switch {
	case machineLike && stats.RatePerMin > waveformHighRate:
		bot = 0.9
	case machineLike:
		bot = 0.6
	case stats.IntervalCV > waveformLowCV*3 && stats.PathEntropy > waveformLowEntropy*2:
		human = 0.3
	}

	return orchestrator.Outcome{BotScore: bot, HumanScore: human}, nil
}
