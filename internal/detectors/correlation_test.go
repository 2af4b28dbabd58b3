package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/blackboard"
)

func TestCorrelationDetector_NoPriorSignalsYieldsZeroLikelihood(t *testing.T) {
	d := CorrelationDetector{}
	bb := blackboard.New(blackboard.Fingerprint{UserAgent: "Mozilla/5.0 (Windows NT 10.0)"})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
	assert.InDelta(t, 0.3, out.HumanScore, 1e-9)

	likelihood, ok := bb.Get("detection.correlation.headless_likelihood")
	require.True(t, ok)
	assert.Zero(t, likelihood.AsReal())
}

func TestCorrelationDetector_HeadlessStackRaisesLikelihood(t *testing.T) {
	d := CorrelationDetector{}
	bb := blackboard.New(blackboard.Fingerprint{})
	_ = bb.Publish("detection.tls.is_headless_stack", blackboard.BoolSignal(true))

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.BotScore, 1e-9)
}

func TestCorrelationDetector_OSMismatchBetweenUAAndTCPGuessAddsLikelihood(t *testing.T) {
	d := CorrelationDetector{}
	bb := blackboard.New(blackboard.Fingerprint{UserAgent: "Mozilla/5.0 (Windows NT 10.0)"})
	_ = bb.Publish("detection.tcp.os_guess", blackboard.StrSignal("linux"))

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, out.BotScore, 1e-9)
}

func TestCorrelationDetector_MatchingOSGuessAddsNoLikelihood(t *testing.T) {
	d := CorrelationDetector{}
	bb := blackboard.New(blackboard.Fingerprint{UserAgent: "Mozilla/5.0 (Windows NT 10.0)"})
	_ = bb.Publish("detection.tcp.os_guess", blackboard.StrSignal("windows"))

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
}

func TestCorrelationDetector_LikelihoodClampedAtOne(t *testing.T) {
	d := CorrelationDetector{}
	bb := blackboard.New(blackboard.Fingerprint{UserAgent: "Mozilla/5.0 (Windows NT 10.0)"})
	_ = bb.Publish("detection.tls.is_headless_stack", blackboard.BoolSignal(true))
	_ = bb.Publish("detection.inconsistency.score", blackboard.RealSignal(1.0))
	_ = bb.Publish("detection.tcp.os_guess", blackboard.StrSignal("linux"))

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.BotScore)
	assert.Zero(t, out.HumanScore)
}

func TestUAClaimedOS_RecognizesCommonFamilies(t *testing.T) {
	assert.Equal(t, "windows", uaClaimedOS("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"))
	assert.Equal(t, "macos", uaClaimedOS("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15)"))
	assert.Equal(t, "linux", uaClaimedOS("Mozilla/5.0 (X11; Linux x86_64)"))
	assert.Equal(t, "linux", uaClaimedOS("Mozilla/5.0 (Linux; Android 13)"))
	assert.Equal(t, "unknown", uaClaimedOS("curl/8.0"))
}
