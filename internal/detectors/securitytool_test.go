package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/blackboard"
)

func TestSecurityToolDetector_BenignUAIsNoOp(t *testing.T) {
	d := SecurityToolDetector{}
	bb := blackboard.New(blackboard.Fingerprint{UserAgent: "Mozilla/5.0 Chrome/120.0"})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
	assert.Zero(t, out.HumanScore)

	isScanner, ok := bb.Get("detection.securitytool.is_known_scanner")
	require.True(t, ok)
	assert.False(t, isScanner.AsBool())
}

func TestSecurityToolDetector_KnownScannerScoresFullBot(t *testing.T) {
	d := SecurityToolDetector{}
	bb := blackboard.New(blackboard.Fingerprint{UserAgent: "sqlmap/1.7"})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.BotScore)

	name, ok := bb.Get("detection.securitytool.tool_name")
	require.True(t, ok)
	assert.Equal(t, "sqlmap", name.AsStr())
}
