package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // healthy, calls flow
	StateOpen                  // tripped, calls rejected
	StateHalfOpen              // probing with a bounded number of calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
	SuccessThreshold int
}

// DefaultConfig returns the default thresholds: 5 failures, 30s recovery,
// 3 half-open calls, 2 successes to close.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	// Admissions are never released, so a half-open window must be able to
	// reach the success threshold.
	if c.SuccessThreshold > c.HalfOpenMaxCalls {
		c.SuccessThreshold = c.HalfOpenMaxCalls
	}
	return c
}

// OpenError is returned by Execute when the breaker rejects a call.
type OpenError struct {
	Name       string
	State      State
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s, retry after %.1fs", e.Name, e.State, e.RetryAfter.Seconds())
}

// IsOpen reports whether err was produced by a rejecting breaker.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// StateChangeFunc is invoked after every transition, outside the breaker lock.
type StateChangeFunc func(name string, from, to State)

// Option customises a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithFailurePredicate decides which errors returned from the protected call
// count as failures. Errors the predicate rejects are recorded as successes.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(b *Breaker) { b.isFailure = fn }
}

// WithStateChange registers a transition hook.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// DefaultFailurePredicate treats every error as a failure except caller
// cancellation.
func DefaultFailurePredicate(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

type transition struct{ from, to State }

// Breaker guards calls to a single external dependency.
type Breaker struct {
	name string
	cfg  Config

	now       func() time.Time
	isFailure func(error) bool
	onChange  StateChangeFunc

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	halfOpenCalls int
	lastFailure   time.Time
	pending       []transition
}

// New creates a closed breaker. Zero config fields fall back to defaults.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		isFailure: DefaultFailurePredicate,
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name the breaker protects.
func (b *Breaker) Name() string { return b.name }

// Config returns the effective thresholds.
func (b *Breaker) Config() Config { return b.cfg }

// State returns the current state, moving Open to HalfOpen when the recovery
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	s := b.currentState()
	b.unlock()
	return s
}

// Execute runs fn if the breaker admits the call and records the outcome.
// fn runs without the lock held. Its error is returned unchanged.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	if b.isFailure(err) {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.unlock()

	switch b.currentState() {
	case StateOpen:
		retry := b.cfg.RecoveryTimeout - b.now().Sub(b.lastFailure)
		if retry < 0 {
			retry = 0
		}
		return &OpenError{Name: b.name, State: StateOpen, RetryAfter: retry}
	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return &OpenError{Name: b.name, State: StateHalfOpen, RetryAfter: time.Second}
		}
		b.halfOpenCalls++
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.unlock()

	switch b.currentState() {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionTo(StateClosed)
		}
	case StateClosed:
		b.failureCount = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.unlock()

	b.failureCount++
	b.lastFailure = b.now()

	switch b.currentState() {
	case StateHalfOpen:
		b.transitionTo(StateOpen)
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.unlock()

	b.transitionTo(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCalls = 0
	b.lastFailure = time.Time{}
}

// Stats is a point-in-time snapshot of a breaker.
type Stats struct {
	Name             string     `json:"name"`
	State            string     `json:"state"`
	FailureCount     int        `json:"failure_count"`
	SuccessCount     int        `json:"success_count"`
	LastFailureTime  *time.Time `json:"last_failure_time"`
	FailureThreshold int        `json:"failure_threshold"`
	RecoveryTimeout  float64    `json:"recovery_timeout"`
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.unlock()

	st := Stats{
		Name:             b.name,
		State:            b.currentState().String(),
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		FailureThreshold: b.cfg.FailureThreshold,
		RecoveryTimeout:  b.cfg.RecoveryTimeout.Seconds(),
	}
	if !b.lastFailure.IsZero() {
		lf := b.lastFailure
		st.LastFailureTime = &lf
	}
	return st
}

// currentState returns state, transitioning OPEN→HALF_OPEN if the recovery
// timeout elapsed. Must be called with mu held.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.transitionTo(StateHalfOpen)
	}
	return b.state
}

// transitionTo must be called with mu held.
func (b *Breaker) transitionTo(to State) {
	from := b.state
	b.state = to
	switch to {
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
	case StateHalfOpen:
		b.halfOpenCalls = 0
		b.successCount = 0
	}
	if from != to && b.onChange != nil {
		b.pending = append(b.pending, transition{from: from, to: to})
	}
}

// unlock releases mu and fires queued transition hooks.
func (b *Breaker) unlock() {
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	for _, t := range pending {
		b.onChange(b.name, t.from, t.to)
	}
}
