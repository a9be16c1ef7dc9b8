// Package breaker guards upstream endpoints with consecutive-failure circuit
// breakers, one per endpoint.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected until the cool-down elapses
	StateHalfOpen State = 2 // one probe call allowed
)

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

// Breaker opens after maxFailures consecutive failures and rejects calls
// for cooldown. The first call after the cool-down is a probe: success
// closes the breaker, failure reopens it.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	// OnStateChange is called on every transition, under the breaker lock.
	OnStateChange func(name string, from, to State)
}

// New creates a closed breaker.
func New(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Name returns the guarded endpoint.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker is open. Context cancellation is not
// counted as an upstream failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil && !errors.Is(err, context.Canceled) {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
		return
	}
	if err == nil {
		b.failures = 0
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(b.name, from, to)
	}
}

// Group lazily creates one breaker per endpoint with shared settings.
type Group struct {
	maxFailures int
	cooldown    time.Duration
	onChange    func(name string, from, to State)

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a breaker group. onChange may be nil.
func NewGroup(maxFailures int, cooldown time.Duration, onChange func(name string, from, to State)) *Group {
	return &Group{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		onChange:    onChange,
		breakers:    make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (g *Group) Get(name string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[name]
	if !ok {
		b = New(name, g.maxFailures, g.cooldown)
		b.OnStateChange = g.onChange
		g.breakers[name] = b
	}
	return b
}
