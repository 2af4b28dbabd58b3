package blackboard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_WriteOnce(t *testing.T) {
	ctx := New(Fingerprint{UserAgent: "curl/8.0"})

	err := ctx.Publish("detection.ua.is_known_bot", BoolSignal(true))
	require.NoError(t, err)

	err = ctx.Publish("detection.ua.is_known_bot", BoolSignal(false))
	assert.Error(t, err, "second publish of the same key must fail")

	s, ok := ctx.Get("detection.ua.is_known_bot")
	require.True(t, ok)
	assert.True(t, s.AsBool(), "the first published value must stick")
}

func TestGet_UnpublishedKeyReturnsZeroValue(t *testing.T) {
	ctx := New(Fingerprint{})
	s, ok := ctx.Get("nonexistent")
	assert.False(t, ok)
	assert.Equal(t, 0.0, s.AsReal())
	assert.Equal(t, "", s.AsStr())
}

func TestPublish_ConcurrentDistinctKeysSafe(t *testing.T) {
	ctx := New(Fingerprint{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := "detection.concurrent." + string(rune('a'+i%26))
			_ = ctx.Publish(key, IntSignal(int64(i)))
		}()
	}
	wg.Wait()
	// No assertion beyond "the race detector and write-once lock didn't panic".
}

func TestContribute_StampsCurrentWave(t *testing.T) {
	ctx := New(Fingerprint{})
	ctx.BeginWave(0)
	ctx.Contribute(Contribution{Detector: "useragent", Completed: true})
	ctx.BeginWave(1)
	ctx.Contribute(Contribution{Detector: "heuristic", Completed: true})

	contribs := ctx.Contributions()
	require.Len(t, contribs, 2)
	assert.Equal(t, 0, contribs[0].Wave)
	assert.Equal(t, 1, contribs[1].Wave)
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	ctx := New(Fingerprint{})
	_ = ctx.Publish("a", BoolSignal(true))

	snap := ctx.Snapshot()
	snap["a"] = BoolSignal(false)

	s, _ := ctx.Get("a")
	assert.True(t, s.AsBool(), "mutating a snapshot must not affect the context")
}

func TestSignalAccessors_ZeroValueOnKindMismatch(t *testing.T) {
	s := StrSignal("chrome")
	assert.Equal(t, int64(0), s.AsInt())
	assert.False(t, s.AsBool())
	assert.Equal(t, 0.0, s.AsReal())
	assert.Nil(t, s.AsBundle())
	assert.Equal(t, "chrome", s.AsStr())
}
