package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed allows requests to pass through
	StateClosed State = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited trial requests to test if the downstream recovered
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name in stats payloads
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Config holds circuit breaker configuration
type Config struct {
	// WindowSize is the number of recent outcomes kept in the sliding window
	WindowSize int
	// MinimumSamples is the window fill required before the failure rate is evaluated
	MinimumSamples int
	// FailureRateThreshold opens the circuit when exceeded (0-1)
	FailureRateThreshold float64
	// CoolDown is the duration of the open state before trials are allowed
	CoolDown time.Duration
	// TrialCount is the number of requests allowed through in half-open state
	TrialCount int
	// OnStateChange is called when the state changes
	OnStateChange func(from, to State)
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		WindowSize:           10,
		MinimumSamples:       5,
		FailureRateThreshold: 0.5,
		CoolDown:             30 * time.Second,
		TrialCount:           3,
	}
}

// CircuitBreaker gates calls for one route. Timeouts are recorded as
// failures so a perpetually slow downstream still opens the circuit.
type CircuitBreaker struct {
	config Config

	mu    sync.Mutex
	state State

	// Sliding window of the most recent outcomes; true marks a failure.
	window   []bool
	head     int
	size     int
	failures int

	openedAt       time.Time
	trialsIssued   int
	trialSuccesses int
}

// New creates a new circuit breaker
func New(config Config) *CircuitBreaker {
	if config.WindowSize <= 0 {
		config.WindowSize = 10
	}
	if config.MinimumSamples <= 0 {
		config.MinimumSamples = 5
	}
	if config.MinimumSamples > config.WindowSize {
		config.MinimumSamples = config.WindowSize
	}
	if config.FailureRateThreshold <= 0 || config.FailureRateThreshold > 1 {
		config.FailureRateThreshold = 0.5
	}
	if config.CoolDown <= 0 {
		config.CoolDown = 30 * time.Second
	}
	if config.TrialCount <= 0 {
		config.TrialCount = 1
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		window: make([]bool, config.WindowSize),
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow checks if a request is allowed to proceed. The open-to-half-open
// transition happens lazily here once the cool-down has elapsed, so no
// background timer is needed per breaker.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.CoolDown {
		cb.changeState(StateHalfOpen)
	}

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		return false

	case StateHalfOpen:
		if cb.trialsIssued < cb.config.TrialCount {
			cb.trialsIssued++
			return true
		}
		return false

	default:
		return false
	}
}

// Success records a successful call outcome
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.record(false)

	case StateHalfOpen:
		cb.trialSuccesses++
		if cb.trialSuccesses >= cb.config.TrialCount {
			cb.changeState(StateClosed)
		}

	case StateOpen:
		// Late result from a call permitted before the circuit opened.
	}
}

// Failure records a failed or timed-out call outcome
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.record(true)
		if cb.shouldOpen() {
			cb.changeState(StateOpen)
		}

	case StateHalfOpen:
		// Any failing trial re-opens immediately and restarts the cool-down;
		// the rest of the trial batch is rejected.
		cb.changeState(StateOpen)

	case StateOpen:
		// Late result, already open.
	}
}

// record appends an outcome to the sliding window, evicting the oldest entry
// once the window is full
func (cb *CircuitBreaker) record(failed bool) {
	if cb.size == len(cb.window) {
		if cb.window[cb.head] {
			cb.failures--
		}
	} else {
		cb.size++
	}

	cb.window[cb.head] = failed
	cb.head = (cb.head + 1) % len(cb.window)
	if failed {
		cb.failures++
	}
}

// shouldOpen evaluates the failure rate once enough samples are recorded
func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.size < cb.config.MinimumSamples {
		return false
	}
	rate := float64(cb.failures) / float64(cb.size)
	return rate > cb.config.FailureRateThreshold
}

// changeState transitions the breaker and resets state-specific counters
func (cb *CircuitBreaker) changeState(newState State) {
	if cb.state == newState {
		return
	}

	from := cb.state
	cb.state = newState

	switch newState {
	case StateOpen:
		cb.openedAt = time.Now()

	case StateHalfOpen:
		cb.trialsIssued = 0
		cb.trialSuccesses = 0

	case StateClosed:
		// Fresh window after recovery
		cb.window = make([]bool, cb.config.WindowSize)
		cb.head = 0
		cb.size = 0
		cb.failures = 0
		cb.trialsIssued = 0
		cb.trialSuccesses = 0
	}

	if cb.config.OnStateChange != nil {
		// Call outside the hot path to avoid blocking under the lock
		go cb.config.OnStateChange(from, newState)
	}
}

// Stats holds a snapshot of breaker state
type Stats struct {
	State        State     `json:"state"`
	WindowFill   int       `json:"windowFill"`
	Failures     int       `json:"failures"`
	FailureRate  float64   `json:"failureRate"`
	OpenedAt     time.Time `json:"openedAt,omitzero"`
	TrialsIssued int       `json:"trialsIssued"`
}

// Stats returns current statistics
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Stats{
		State:        cb.state,
		WindowFill:   cb.size,
		Failures:     cb.failures,
		TrialsIssued: cb.trialsIssued,
	}
	if cb.size > 0 {
		s.FailureRate = float64(cb.failures) / float64(cb.size)
	}
	if cb.state != StateClosed {
		s.OpenedAt = cb.openedAt
	}
	return s
}

// ErrCircuitOpen is returned when a call is rejected by an open circuit
var ErrCircuitOpen = errors.New("circuit breaker is open")
