package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/blackboard"
)

func TestHeaderDetector_SparseHeaderSetScoresBot(t *testing.T) {
	d := HeaderDetector{}
	bb := blackboard.New(blackboard.Fingerprint{Headers: map[string][]string{"Host": {"example.com"}}})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.7, out.BotScore)
}

func TestHeaderDetector_MissingAcceptLanguageScoresModerateBot(t *testing.T) {
	d := HeaderDetector{}
	bb := blackboard.New(blackboard.Fingerprint{Headers: map[string][]string{
		"User-Agent": {"x"}, "Accept": {"*/*"}, "Host": {"x"}, "Cookie": {"x"},
	}})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.3, out.BotScore)
}

func TestHeaderDetector_CookieWithoutUAOrAcceptIsOrderSuspicious(t *testing.T) {
	d := HeaderDetector{}
	bb := blackboard.New(blackboard.Fingerprint{Headers: map[string][]string{
		"Cookie": {"session=1"}, "Accept-Language": {"en"}, "Host": {"x"}, "X-Extra": {"x"},
	}})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.4, out.BotScore)

	suspicious, ok := bb.Get("detection.header.order_suspicious")
	require.True(t, ok)
	assert.True(t, suspicious.AsBool())
}

func TestHeaderDetector_FullBrowserHeaderSetScoresHuman(t *testing.T) {
	d := HeaderDetector{}
	bb := blackboard.New(blackboard.Fingerprint{Headers: map[string][]string{
		"User-Agent": {"x"}, "Accept": {"*/*"}, "Accept-Language": {"en"},
		"Cookie": {"session=1"}, "Host": {"x"},
	}})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
	assert.Equal(t, 0.6, out.HumanScore)
}
