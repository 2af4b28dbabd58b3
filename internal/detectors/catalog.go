package detectors

import (
	"time"

	"github.com/ocx/sentinel/internal/cluster"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/llmclient"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/signature"
)

// Dependencies collects the cross-request state and external clients the
// catalog's detectors need, wired once at startup and shared across every
// request's Context.
type Dependencies struct {
	HitCounter      signature.HitCounter
	WaveformTracker *signature.WaveformTracker
	ClusterStore    *cluster.Store
	LLMClient       *llmclient.Client
}

// NewCatalog builds the full detector catalog keyed by the exact manifest
// names in defaults.yaml. A name present in the registry but absent here is
// treated by the orchestrator as permanently skipped, so this map must stay
// in lockstep with the manifest as detectors are added.
func NewCatalog(cfg *config.Config, deps Dependencies) map[string]orchestrator.Detector {
	return map[string]orchestrator.Detector{
		"UserAgent":        UserAgentDetector{},
		"Header":           HeaderDetector{},
		"IP":               IPDetector{},
		"SecurityTool":     SecurityToolDetector{},
		"Inconsistency":    InconsistencyDetector{},
		"VersionAge":       VersionAgeDetector{},
		"Heuristic":        NewHeuristicDetector(cfg.Cluster.MinWeight, cfg.Cluster.MaxWeight, cfg.Cluster.ShiftCVDelta),
		"Reputation":       NewReputationDetector(deps.HitCounter),
		"TLSFingerprint":   TLSFingerprintDetector{},
		"TCPFingerprint":   TCPFingerprintDetector{},
		"HTTP2Fingerprint": HTTP2FingerprintDetector{},
		"Correlation":      CorrelationDetector{},
		"Waveform":         NewWaveformDetector(deps.WaveformTracker),
		"Clustering":       NewClusteringDetector(deps.ClusterStore, deps.WaveformTracker),
		"LLM": NewLLMDetector(
			deps.LLMClient,
			cfg.LLM.TriggerLow,
			cfg.LLM.TriggerHigh,
			time.Duration(cfg.LLM.TimeoutMs)*time.Millisecond,
		),
	}
}
