package detectors

import (
	"context"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
	"github.com/ocx/sentinel/internal/signature"
)

// repeatVisitorThreshold is how many sightings within the hit counter's
// sliding window turn a repeat signature into a bot-leaning signal: a real
// browser reloading a page a handful of times is normal; dozens of hits from
// the same signature inside one window looks scripted.
const repeatVisitorThreshold = 8

// ReputationDetector looks up the request's primary signature in the
// cross-request sliding-window hit counter. Signatures seen often and
// recently, especially when paired with a datacenter IP, confirm bot-ness
// independent of any single request's syntactic features.
type ReputationDetector struct {
	counter signature.HitCounter
}

// NewReputationDetector wires a shared HitCounter instance; the counter is
// cross-request state (§5) so one instance must be shared across all
// requests, not constructed per-request.
func NewReputationDetector(counter signature.HitCounter) *ReputationDetector {
	return &ReputationDetector{counter: counter}
}

func (d *ReputationDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	sig := bb.Signature()
	if sig == "" {
		_ = bb.Publish("detection.reputation.recent_hit_count", blackboard.IntSignal(0))
		_ = bb.Publish("detection.reputation.is_repeat_signature", blackboard.BoolSignal(false))
		return orchestrator.Outcome{}, nil
	}

	count, err := d.counter.Record(ctx, sig)
	if err != nil {
		return orchestrator.Outcome{}, err
	}

	isRepeat := count >= repeatVisitorThreshold
	_ = bb.Publish("detection.reputation.recent_hit_count", blackboard.IntSignal(int64(count)))
	_ = bb.Publish("detection.reputation.is_repeat_signature", blackboard.BoolSignal(isRepeat))

	isDatacenter, _ := bb.Get("detection.ip.is_datacenter")

	var bot, human float64
	switch {
	case isRepeat && isDatacenter.AsBool():
		bot = 0.8
	case isRepeat:
		bot = 0.4
	default:
		human = 0.2
	}

	return orchestrator.Outcome{BotScore: bot, HumanScore: human}, nil
}
