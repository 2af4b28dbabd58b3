package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/registry"
)

// Stage names one point in the orchestrator's run lifecycle, logged at
// transition time for observability.
type Stage string

const (
	StageBuilding    Stage = "building"
	StageWaveRunning Stage = "wave_running"
	StageBarrier     Stage = "barrier"
	StageAggregating Stage = "aggregating"
	StageFinal       Stage = "final"
	StageBudgetOut   Stage = "budget_exceeded"
)

// Orchestrator partitions the detector catalog into waves and runs each one
// concurrently against a request's blackboard Context, bounded by an overall
// deadline and per-detector budgets.
type Orchestrator struct {
	registry *registry.Registry
	catalog  map[string]Detector
	cfg      *config.Config
	logger   *slog.Logger

	inFlight int64
}

// New builds an Orchestrator from a validated Registry and a catalog mapping
// each manifest's detector name to its implementation. A manifest entry
// whose name has no catalog entry is treated as permanently skipped (it is
// never invoked) rather than an error, so a partially-deployed catalog still
// runs.
func New(reg *registry.Registry, catalog map[string]Detector, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		catalog:  catalog,
		cfg:      cfg,
		logger:   slog.Default(),
	}
}

// RunResult summarizes one full orchestrator pass for the aggregator and for
// diagnostics.
type RunResult struct {
	BotSum       float64
	HumanSum     float64
	Contributions []blackboard.Contribution
	Stage        Stage
	DeadlineHit  bool
}

// Run executes every wave of the registry against bb in order, stopping
// early if the overall deadline elapses. It never returns an error for a
// detector failure — those are recorded as failed contributions — only for
// conditions that make the whole run meaningless (none currently exist, but
// the signature is kept error-returning so a future fatal precondition can
// be added without breaking callers).
func (o *Orchestrator) Run(ctx context.Context, bb *blackboard.Context) (RunResult, error) {
	atomic.AddInt64(&o.inFlight, 1)
	defer atomic.AddInt64(&o.inFlight, -1)

	deadline := time.Duration(float64(o.cfg.Engine.OverallDeadlineMs)*(1-o.cfg.Engine.DeadlineTailReserve)) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	result := RunResult{Stage: StageBuilding}

	for waveIdx, manifests := range o.registry.Waves() {
		if runCtx.Err() != nil {
			o.logger.Warn("orchestrator: deadline exceeded before wave", "wave", waveIdx)
			result.Stage = StageBudgetOut
			result.DeadlineHit = true
			o.recordSkipped(bb, manifests, waveIdx, "deadline exceeded")
			continue
		}

		if reason, skip := o.shouldSkipAdvancedFingerprinting(manifests, deadline, start, bb); skip {
			o.logger.Info("orchestrator: skipping advanced fingerprinting wave", "wave", waveIdx, "reason", reason)
			o.recordSkipped(bb, manifests, waveIdx, reason)
			continue
		}

		bb.BeginWave(waveIdx)
		result.Stage = StageWaveRunning

		admitted := o.admit(manifests, bb)
		o.runWave(runCtx, bb, admitted)

		result.Stage = StageBarrier
		elapsed := time.Since(start)
		o.logger.Debug("orchestrator: wave complete", "wave", waveIdx, "elapsed_ms", elapsed.Milliseconds())
	}

	result.Stage = StageAggregating
	contribs := bb.Contributions()
	for _, c := range contribs {
		result.BotSum += c.Weight * c.BotScore
		result.HumanSum += c.Weight * c.HumanScore
	}
	result.Contributions = contribs
	result.Stage = StageFinal
	if result.DeadlineHit {
		result.Stage = StageBudgetOut
	}
	return result, nil
}

// admit filters a wave's manifests to those enabled, whose trigger fires
// against the signals published so far, and that survive the backpressure
// check. Detectors dropped for backpressure are recorded as skipped
// contributions immediately so the aggregator sees a complete log.
func (o *Orchestrator) admit(manifests []registry.DetectorManifest, bb *blackboard.Context) []registry.DetectorManifest {
	snapshot := bb.Snapshot()
	candidates := make([]registry.DetectorManifest, 0, len(manifests))
	for _, m := range manifests {
		if !m.Enabled {
			continue
		}
		if _, ok := o.catalog[m.Name]; !ok {
			continue
		}
		if !m.Trigger.Evaluate(snapshot) {
			continue
		}
		candidates = append(candidates, m)
	}

	if !o.saturated() {
		return candidates
	}

	// Backpressure: drop the lowest-priority half of this wave's candidates
	// (highest Priority value = lowest importance), keeping at least one.
	sorted := make([]registry.DetectorManifest, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	keep := len(sorted) - len(sorted)/2
	if keep < 1 {
		keep = 1
	}
	if keep >= len(sorted) {
		return candidates
	}

	dropped := sorted[keep:]
	for _, m := range dropped {
		bb.Contribute(blackboard.Contribution{Detector: m.Name, Skipped: true})
	}
	o.logger.Warn("orchestrator: backpressure skip", "dropped", len(dropped), "in_flight", atomic.LoadInt64(&o.inFlight))
	return sorted[:keep]
}

// shouldSkipAdvancedFingerprinting gates wave 2 (advanced fingerprinting):
// it is skipped once too little of the overall deadline remains to spend on
// it, or once the contributions collected so far already imply a
// definitive verdict — a request already confidently bot or confidently
// human gains nothing from TLS/TCP/HTTP2 fingerprinting and multi-layer
// correlation. Every other wave runs unconditionally.
func (o *Orchestrator) shouldSkipAdvancedFingerprinting(manifests []registry.DetectorManifest, deadline time.Duration, start time.Time, bb *blackboard.Context) (reason string, skip bool) {
	if len(manifests) == 0 || manifests[0].Wave != 2 {
		return "", false
	}

	remaining := deadline - time.Since(start)
	if deadline > 0 && float64(remaining)/float64(deadline) < o.cfg.Engine.Wave2MinRemainingFraction {
		return "latency budget low", true
	}

	var botSum, humanSum float64
	for _, c := range bb.Contributions() {
		botSum += c.Weight * c.BotScore
		humanSum += c.Weight * c.HumanScore
	}
	k := o.cfg.Aggregator.LogisticK
	p := 1.0 / (1.0 + math.Exp(-k*(botSum-humanSum)))
	if p <= o.cfg.Engine.DefinitiveLowP || p >= o.cfg.Engine.DefinitiveHighP {
		return "already definitively classified", true
	}

	return "", false
}

func (o *Orchestrator) saturated() bool {
	return atomic.LoadInt64(&o.inFlight) > int64(o.cfg.Engine.BackpressureHighWater)
}

// runWave runs every admitted detector concurrently, each isolated by its
// own timeout and panic recovery, and blocks until all have returned or been
// cut off by the wave context.
func (o *Orchestrator) runWave(ctx context.Context, bb *blackboard.Context, manifests []registry.DetectorManifest) {
	sem := make(chan struct{}, maxInt(1, o.cfg.Engine.MaxConcurrentWave))
	var wg sync.WaitGroup

	for _, m := range manifests {
		m := m
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			o.runDetector(ctx, bb, m)
		}()
	}

	wg.Wait()
}

func (o *Orchestrator) runDetector(ctx context.Context, bb *blackboard.Context, m registry.DetectorManifest) {
	budget := m.BudgetMs
	if budget <= 0 {
		budget = o.cfg.Engine.DefaultDetectorMs
	}
	detCtx, cancel := context.WithTimeout(ctx, time.Duration(budget)*time.Millisecond)
	defer cancel()

	det := o.catalog[m.Name]

	outcomeCh := make(chan Outcome, 1)
	errCh := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("detector %q panicked: %v", m.Name, r)
			}
		}()
		outcome, err := det.Run(detCtx, bb, m.Params)
		if err != nil {
			errCh <- err
			return
		}
		outcomeCh <- outcome
	}()

	select {
	case <-detCtx.Done():
		bb.Contribute(blackboard.Contribution{Detector: m.Name, Skipped: true, Err: detCtx.Err()})
	case err := <-errCh:
		o.logger.Warn("orchestrator: detector failed", "detector", m.Name, "error", err)
		bb.Contribute(blackboard.Contribution{Detector: m.Name, Completed: false, Err: err})
	case outcome := <-outcomeCh:
		bb.Contribute(blackboard.Contribution{
			Detector:   m.Name,
			Category:   outcome.Category,
			BotScore:   outcome.BotScore * m.BotWeight,
			HumanScore: outcome.HumanScore * m.HumanWeight,
			Weight:     1.0,
			Confidence: math.Max(outcome.BotScore, outcome.HumanScore),
			Rationale:  outcome.Rationale,
			Completed:  true,
		})
	}
}

func (o *Orchestrator) recordSkipped(bb *blackboard.Context, manifests []registry.DetectorManifest, wave int, reason string) {
	bb.BeginWave(wave)
	for _, m := range manifests {
		if !m.Enabled {
			continue
		}
		bb.Contribute(blackboard.Contribution{Detector: m.Name, Skipped: true, Err: fmt.Errorf("%s", reason)})
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
