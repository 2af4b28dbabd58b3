// Package orchestrator runs the detector catalog against a request in
// priority-ordered waves: all detectors in a wave run concurrently, a
// publish barrier separates each wave from the next so later waves can rely
// on earlier waves' signals, and the whole run is bounded by an overall
// deadline plus per-detector budgets.
package orchestrator

import (
	"context"

	"github.com/ocx/sentinel/internal/blackboard"
)

// Outcome is a detector's local, unweighted assessment of a single request:
// how strongly it looks like a bot (BotScore) and how strongly it looks
// human (HumanScore), each in [0, 1]. The orchestrator scales these by the
// detector's manifest weights before folding them into the aggregate.
type Outcome struct {
	BotScore   float64
	HumanScore float64

	// Category and Rationale are optional: most fast-path detectors leave
	// them empty. A detector that classifies into a named category (the LLM
	// escalation detector's bot_type, for instance) or that can explain its
	// verdict in prose sets them so the aggregator's contribution log and
	// demo-mode diagnostics can surface them.
	Category  string
	Rationale string
}

// Detector is implemented by every entry in the detection catalog. Run may
// publish zero or more signals onto bb (each key must match one of the
// detector's declared manifest Outputs) and returns its local Outcome. A
// detector that only produces signals for later waves to consume, without
// itself voting on bot-ness, returns the zero Outcome.
type Detector interface {
	Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (Outcome, error)
}
