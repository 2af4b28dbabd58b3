package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsOpenAfterFailureThreshold(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 3 }
	cb := New(cfg)

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, errors.New("boom")
		})
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecoversAfterTimeout(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxRequests = 1
	cfg.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 1 }
	cb := New(cfg)

	_, err := cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	_, err = cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 3 }
	cb := New(cfg)

	cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	cb.Execute(func() (interface{}, error) { return "ok", nil })
	cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })

	assert.Equal(t, StateClosed, cb.State(), "an intervening success should have reset the consecutive-failure streak")
}

func TestExecuteWithFallback_UsesFallbackWhenCircuitOpen(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 1 }
	cb := New(cfg)

	cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	require.Equal(t, StateOpen, cb.State())

	result, err := ExecuteWithFallback(cb,
		func() (string, error) { return "live", nil },
		func(error) (string, error) { return "fallback", nil },
	)

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}

func TestManager_GetReturnsSameBreakerForSameName(t *testing.T) {
	m := NewManager(nil)
	a := m.Get("x")
	b := m.Get("x")
	assert.Same(t, a, b)
}

func TestManager_Remove(t *testing.T) {
	m := NewManager(nil)
	m.Get("x")
	m.Remove("x")
	assert.NotContains(t, m.List(), "x")
}

func TestNewSentinelCircuitBreakers_DefaultsAppliedAndHealthy(t *testing.T) {
	scb := NewSentinelCircuitBreakers(0, 0)
	require.NotNil(t, scb.LLM)

	status, statuses := scb.HealthStatus()
	assert.Equal(t, "HEALTHY", status)
	assert.Equal(t, "CLOSED", statuses["llm-escalation"])
}

func TestSentinelCircuitBreakers_HealthStatusDegradesWhenLLMTrips(t *testing.T) {
	scb := NewSentinelCircuitBreakers(1, time.Minute)

	for i := 0; i < 2; i++ {
		scb.LLM.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	}

	status, _ := scb.HealthStatus()
	assert.Equal(t, "DEGRADED", status)
}
