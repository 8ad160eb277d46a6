package resilience

import (
	"sync/atomic"
	"time"

	"github.com/catherinevee/reghook/internal/utils/errors"
)

// State represents the state of the circuit breaker
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var (
	ErrCircuitOpen     = errors.New(errors.ErrorTypeRateLimit, "circuit breaker is open")
	ErrTooManyRequests = errors.New(errors.ErrorTypeRateLimit, "too many requests in half-open state")
)

// CircuitBreaker guards a flaky downstream. After MaxFailures consecutive
// failures it rejects calls until ResetTimeout elapses, then lets a limited
// number of probes through before closing again.
type CircuitBreaker struct {
	name             string
	maxFailures      int32
	resetTimeout     time.Duration
	halfOpenMaxCalls int32

	state           int32 // atomic
	failures        int32 // atomic
	lastFailureTime int64 // atomic (unix nano)
	halfOpenCalls   int32 // atomic

	successCount int64 // atomic
	failureCount int64 // atomic
	totalCalls   int64 // atomic

	onStateChange func(from, to State)
}

// Config represents circuit breaker configuration
type Config struct {
	Name             string
	MaxFailures      int32
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int32
	OnStateChange    func(from, to State)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             config.Name,
		maxFailures:      config.MaxFailures,
		resetTimeout:     config.ResetTimeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		onStateChange:    config.OnStateChange,
	}

	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 60 * time.Second
	}
	if cb.halfOpenMaxCalls <= 0 {
		cb.halfOpenMaxCalls = 3
	}

	return cb
}

// Call executes fn with circuit breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.canProceed(); err != nil {
		atomic.AddInt64(&cb.totalCalls, 1)
		return err
	}

	atomic.AddInt64(&cb.totalCalls, 1)
	err := fn()
	cb.onResult(err)
	return err
}

func (cb *CircuitBreaker) canProceed() error {
	switch cb.currentState() {
	case StateClosed:
		return nil

	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
		if time.Since(time.Unix(0, lastFailure)) > cb.resetTimeout {
			cb.transitionTo(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		calls := atomic.AddInt32(&cb.halfOpenCalls, 1)
		if calls > cb.halfOpenMaxCalls {
			atomic.AddInt32(&cb.halfOpenCalls, -1)
			return ErrTooManyRequests
		}
		return nil

	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) onResult(err error) {
	state := cb.currentState()
	if err != nil {
		cb.onFailure(state)
	} else {
		cb.onSuccess(state)
	}
}

func (cb *CircuitBreaker) onSuccess(state State) {
	atomic.AddInt64(&cb.successCount, 1)

	switch state {
	case StateClosed:
		atomic.StoreInt32(&cb.failures, 0)

	case StateHalfOpen:
		calls := atomic.LoadInt32(&cb.halfOpenCalls)
		if calls >= cb.halfOpenMaxCalls {
			cb.transitionTo(StateClosed)
			atomic.StoreInt32(&cb.failures, 0)
			atomic.StoreInt32(&cb.halfOpenCalls, 0)
		}
	}
}

func (cb *CircuitBreaker) onFailure(state State) {
	atomic.AddInt64(&cb.failureCount, 1)
	atomic.StoreInt64(&cb.lastFailureTime, time.Now().UnixNano())

	switch state {
	case StateClosed:
		failures := atomic.AddInt32(&cb.failures, 1)
		if failures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		// Any failure in half-open state reopens the circuit.
		cb.transitionTo(StateOpen)
		atomic.StoreInt32(&cb.halfOpenCalls, 0)
	}
}

func (cb *CircuitBreaker) currentState() State {
	return State(atomic.LoadInt32(&cb.state))
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))
	if oldState != newState && cb.onStateChange != nil {
		cb.onStateChange(oldState, newState)
	}
}

// Reset returns the breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.failures, 0)
	atomic.StoreInt32(&cb.halfOpenCalls, 0)
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}

// Stats returns circuit breaker statistics
func (cb *CircuitBreaker) Stats() Stats {
	return Stats{
		Name:         cb.name,
		State:        cb.currentState(),
		Failures:     atomic.LoadInt32(&cb.failures),
		SuccessCount: atomic.LoadInt64(&cb.successCount),
		FailureCount: atomic.LoadInt64(&cb.failureCount),
		TotalCalls:   atomic.LoadInt64(&cb.totalCalls),
		LastFailure:  time.Unix(0, atomic.LoadInt64(&cb.lastFailureTime)),
	}
}

// String returns the string representation of a state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	Failures     int32     `json:"failures"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`
	TotalCalls   int64     `json:"total_calls"`
	LastFailure  time.Time `json:"last_failure"`
}
