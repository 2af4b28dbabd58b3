package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/blackboard"
)

func TestTLSFingerprintDetector_NoTLSMetadataIsNoOp(t *testing.T) {
	d := TLSFingerprintDetector{}
	bb := blackboard.New(blackboard.Fingerprint{})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
	assert.Zero(t, out.HumanScore)
}

func TestTLSFingerprintDetector_HeadlessChromiumJA3ScoresHighBot(t *testing.T) {
	d := TLSFingerprintDetector{}
	bb := blackboard.New(blackboard.Fingerprint{TLSJA3: "b32309a26951912be7dba376398abc3b"})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.7, out.BotScore)

	headless, ok := bb.Get("detection.tls.is_headless_stack")
	require.True(t, ok)
	assert.True(t, headless.AsBool())
}

func TestTLSFingerprintDetector_KnownBadNonHeadlessScoresModerateBot(t *testing.T) {
	d := TLSFingerprintDetector{}
	bb := blackboard.New(blackboard.Fingerprint{TLSJA3: "e7d705a3286e19ea42f587b344ee6865"})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.BotScore)

	headless, _ := bb.Get("detection.tls.is_headless_stack")
	assert.False(t, headless.AsBool())
}

func TestTLSFingerprintDetector_UnknownDigestLeansHuman(t *testing.T) {
	d := TLSFingerprintDetector{}
	bb := blackboard.New(blackboard.Fingerprint{TLSJA3: "unrecognized-digest"})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
	assert.Equal(t, 0.3, out.HumanScore)
}

func TestTLSFingerprintDetector_FallsBackToJA4WhenJA3Unset(t *testing.T) {
	d := TLSFingerprintDetector{}
	bb := blackboard.New(blackboard.Fingerprint{TLSJA4: "cd08e31494f9531f560d64c695473da9"})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.7, out.BotScore)
}
