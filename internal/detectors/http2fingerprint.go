package detectors

import (
	"context"
	"strings"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// browserSettingsOrder is the reference SETTINGS frame parameter order: the
// six standard parameters in their numeric ID order. An exact match, or any
// ascending-by-ID order (see isNumericAscending), is treated as an ordinary
// client; any other order is flagged, without needing a full JA3/JA4-style
// database.
var browserSettingsOrder = []string{
	"HEADER_TABLE_SIZE", "ENABLE_PUSH", "MAX_CONCURRENT_STREAMS",
	"INITIAL_WINDOW_SIZE", "MAX_FRAME_SIZE", "MAX_HEADER_LIST_SIZE",
}

// HTTP2FingerprintDetector inspects the captured HTTP/2 SETTINGS parameter
// order and flags orderings that are neither the reference order nor
// ascending by parameter ID. The PRIORITY frame order
// (Fingerprint.HTTP2PriorityOrder) is not inspected.
type HTTP2FingerprintDetector struct{}

func (HTTP2FingerprintDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	order := bb.Fingerprint.HTTP2SettingsOrder
	if len(order) == 0 {
		// No HTTP/2 connection, or the server didn't capture frame order.
		return orchestrator.Outcome{}, nil
	}

	suspicious := !matchesKnownOrder(order, browserSettingsOrder) && !isNumericAscending(order)
	_ = bb.Publish("detection.http2.frame_order_suspicious", blackboard.BoolSignal(suspicious))

	if suspicious {
		return orchestrator.Outcome{BotScore: 0.5}, nil
	}
	return orchestrator.Outcome{HumanScore: 0.3}, nil
}

func matchesKnownOrder(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !strings.EqualFold(got[i], want[i]) {
			return false
		}
	}
	return true
}

// isNumericAscending reports whether every setting is one of the six known
// parameters and they arrived in non-decreasing parameter-ID order; such
// orders are not flagged as suspicious.
func isNumericAscending(order []string) bool {
	ids := map[string]int{
		"HEADER_TABLE_SIZE": 1, "ENABLE_PUSH": 2, "MAX_CONCURRENT_STREAMS": 3,
		"INITIAL_WINDOW_SIZE": 4, "MAX_FRAME_SIZE": 5, "MAX_HEADER_LIST_SIZE": 6,
	}
	last := 0
	for _, name := range order {
		id, known := ids[strings.ToUpper(name)]
		if !known {
			return false
		}
		if id < last {
			return false
		}
		last = id
	}
	return true
}
