package resilience

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})
	boom := fmt.Errorf("boom")

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return boom })
		assert.Equal(t, boom, err)
	}
	assert.Equal(t, StateOpen, cb.Stats().State)

	err := cb.Call(func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, ErrCircuitOpen, err, "open circuit rejects without calling")
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})
	boom := fmt.Errorf("boom")

	cb.Call(func() error { return boom })
	cb.Call(func() error { return boom })
	require.NoError(t, cb.Call(func() error { return nil }))

	cb.Call(func() error { return boom })
	cb.Call(func() error { return boom })
	assert.Equal(t, StateClosed, cb.Stats().State, "failure count resets on success")
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		Name:             "test",
		MaxFailures:      1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	cb.Call(func() error { return fmt.Errorf("boom") })
	assert.Equal(t, StateOpen, cb.Stats().State)

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.Stats().State, "successful probe closes the circuit")
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		Name:             "test",
		MaxFailures:      1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	cb.Call(func() error { return fmt.Errorf("boom") })
	time.Sleep(20 * time.Millisecond)

	cb.Call(func() error { return fmt.Errorf("still down") })
	assert.Equal(t, StateOpen, cb.Stats().State)
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(Config{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s->%s", from, to))
		},
	})

	cb.Call(func() error { return fmt.Errorf("boom") })
	assert.Equal(t, []string{"CLOSED->OPEN"}, transitions)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test", MaxFailures: 1, ResetTimeout: time.Hour})

	cb.Call(func() error { return fmt.Errorf("boom") })
	require.Equal(t, StateOpen, cb.Stats().State)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.Stats().State)
	require.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "mailer", MaxFailures: 5, ResetTimeout: time.Hour})

	cb.Call(func() error { return nil })
	cb.Call(func() error { return fmt.Errorf("boom") })

	stats := cb.Stats()
	assert.Equal(t, "mailer", stats.Name)
	assert.Equal(t, int64(1), stats.SuccessCount)
	assert.Equal(t, int64(1), stats.FailureCount)
	assert.Equal(t, int64(2), stats.TotalCalls)
}
