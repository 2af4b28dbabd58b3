package detectors

import (
	"context"
	"strings"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// TCPFingerprintDetector surfaces the OS guess an out-of-band kernel
// collector (internal/tcpcollect) attached to the fingerprint, keyed by
// remote IP at connection accept time. When no collector is attached, or no
// sample has arrived yet for this IP, the detector does not fire.
type TCPFingerprintDetector struct{}

func (TCPFingerprintDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	guess := bb.Fingerprint.TCPOSGuess
	if guess == "" {
		return orchestrator.Outcome{}, nil
	}

	_ = bb.Publish("detection.tcp.os_guess", blackboard.StrSignal(guess))

	// A bare SYN-option guess carries weak signal on its own; it mostly
	// earns its keep cross-checked against the claimed UA OS by the wave-2
	// Correlation detector. Unidentifiable stacks lean mildly bot-ward.
	if strings.EqualFold(guess, "unknown") {
		return orchestrator.Outcome{BotScore: 0.2}, nil
	}
	return orchestrator.Outcome{}, nil
}
