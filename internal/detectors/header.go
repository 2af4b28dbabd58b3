package detectors

import (
	"context"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// HeaderDetector inspects header presence and count; header order itself is
// not examined (see isOrderSuspicious).
type HeaderDetector struct{}

func (HeaderDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	headers := bb.Fingerprint.Headers

	_, hasAcceptLanguage := headers["Accept-Language"]
	_ = bb.Publish("detection.header.accept_language_present", blackboard.BoolSignal(hasAcceptLanguage))
	_ = bb.Publish("detection.header.header_count", blackboard.IntSignal(int64(len(headers))))

	suspicious := isOrderSuspicious(headers)
	_ = bb.Publish("detection.header.order_suspicious", blackboard.BoolSignal(suspicious))

	var bot, human float64
	switch {
	case len(headers) <= 2:
		bot = 0.7
	case !hasAcceptLanguage:
		bot = 0.3
	case suspicious:
		bot = 0.4
	default:
		human = 0.6
	}

	return orchestrator.Outcome{BotScore: bot, HumanScore: human}, nil
}

// isOrderSuspicious flags a request carrying a Cookie header but missing
// User-Agent or Accept — a combination a real browser never sends but a
// hand-built HTTP client replaying a captured cookie often does. Go's
// http.Header loses wire order, so this checks presence, not literal order.
func isOrderSuspicious(headers map[string][]string) bool {
	_, hasCookie := headers["Cookie"]
	_, hasUA := headers["User-Agent"]
	_, hasAccept := headers["Accept"]
	return hasCookie && (!hasUA || !hasAccept)
}
