// Package circuit implements the three-state circuit breaker that wraps a
// base adapter's Children calls when the underlying source is a network
// service (the s3 adapter). It exists to stop hammering a source that is
// already failing, rather than to retry individual requests — that's
// pkg/retry's job, and the two compose: retry sits inside Execute.
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/arbortree/arbor/pkg/errors"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed - requests pass through normally.
	StateClosed State = iota
	// StateOpen - requests are rejected without calling the adapter.
	StateOpen
	// StateHalfOpen - a limited number of requests are allowed through to
	// probe whether the source has recovered.
	StateHalfOpen
)

// String returns the state's name.
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

// Config contains circuit breaker configuration.
type Config struct {
	// MaxRequests is the number of requests allowed through while half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the period of the closed state after which counts reset.
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration `yaml:"timeout"`

	// ReadyToTrip decides whether counts warrant tripping the breaker open.
	ReadyToTrip func(counts Counts) bool `yaml:"-"`

	// OnStateChange is called whenever the breaker transitions state.
	OnStateChange func(name string, from State, to State) `yaml:"-"`

	// IsSuccessful decides whether an error counts as a failure. Defaults to
	// treating any non-nil error as a failure; a caller that wraps transport
	// errors in errors.Code values not worth tripping on (e.g. NodeGone,
	// which is a per-node condition, not a source outage) can override this.
	IsSuccessful func(err error) bool `yaml:"-"`
}

// Counts holds the request/success/failure tallies within the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	LastActivity         time.Time
}


// Breaker implements the circuit breaker pattern around a base adapter's
// calls to its underlying source.
type Breaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// New creates a circuit breaker, filling in defaults for zero-value fields.
func New(name string, config Config) *Breaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = defaultReadyToTrip
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		expiry: time.Now().Add(config.Interval),
	}
}

func defaultReadyToTrip(counts Counts) bool {
	return counts.Requests >= 20 &&
		float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

func defaultIsSuccessful(err error) bool {
	return err == nil
}

// Execute runs fn if the breaker allows it, otherwise returns a
// CodeSourceUnavailable error without calling fn.
func (cb *Breaker) Execute(fn func() error) error {
	return cb.ExecuteWithContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// ExecuteWithContext runs fn with ctx if the breaker allows it.
func (cb *Breaker) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *Breaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, _ := cb.currentState(now)

	if state == StateOpen {
		return errors.New(errors.CodeSourceUnavailable, "circuit", cb.name, "breaker open, source assumed unavailable").WithContext("breaker", cb.name)
	}

	if state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests {
		return errors.New(errors.CodeSourceUnavailable, "circuit", cb.name, "too many probe requests in half-open state").WithContext("breaker", cb.name)
	}

	cb.counts.onRequest()
	return nil
}

func (cb *Breaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, _ := cb.currentState(now)

	if cb.config.IsSuccessful(err) {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *Breaker) onSuccess(state State, now time.Time) {
	cb.counts.onSuccess()

	if state == StateHalfOpen {
		cb.setState(StateClosed, now)
	}
}

func (cb *Breaker) onFailure(state State, now time.Time) {
	cb.counts.onFailure()

	switch state {
	case StateClosed:
		if cb.config.ReadyToTrip(cb.counts) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *Breaker) currentState(now time.Time) (State, time.Time) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.counts.clear()
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.expiry
}

func (cb *Breaker) setState(state State, now time.Time) {
	prev := cb.state
	if cb.state == state {
		return
	}

	cb.state = state
	cb.counts.clear()

	switch state {
	case StateClosed:
		cb.expiry = now.Add(cb.config.Interval)
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	case StateHalfOpen:
		cb.expiry = time.Time{}
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

// GetState returns the current state, resolving any pending timeout/interval
// transition first.
func (cb *Breaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, _ := cb.currentState(time.Now())
	return state
}

// GetCounts returns a copy of the current window's counts.
func (cb *Breaker) GetCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.counts
}

// Reset forces the breaker back to closed with cleared counts.
func (cb *Breaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.clear()
	cb.setState(StateClosed, time.Now())
}

// Name returns the breaker's identity, typically the adapter's Identity().
func (cb *Breaker) Name() string {
	return cb.name
}

func (c *Counts) onRequest() {
	c.Requests++
	c.LastActivity = time.Now()
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() {
	c.Requests = 0
	c.TotalSuccesses = 0
	c.TotalFailures = 0
	c.ConsecutiveSuccesses = 0
	c.ConsecutiveFailures = 0
	c.LastActivity = time.Time{}
}

// Manager manages one breaker per adapter identity, so a filter/cache
// decorator stack sharing one underlying s3 adapter shares one breaker too.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewManager creates an empty breaker manager using config as the template
// for any breaker it creates on demand.
func NewManager(config Config) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		config:   config,
	}
}

// GetBreaker returns the breaker for name, creating it from the manager's
// template config if this is the first request for that name.
func (m *Manager) GetBreaker(name string) *Breaker {
	m.mu.RLock()
	if breaker, exists := m.breakers[name]; exists {
		m.mu.RUnlock()
		return breaker
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	breaker := New(name, m.config)
	m.breakers[name] = breaker
	return breaker
}
