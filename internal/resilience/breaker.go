// Package resilience guards calls into the agent runtime.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("runtime circuit is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker stops calling the runtime after maxFailures consecutive failures.
// Once cooldown has passed a single probe call is let through: success
// closes the circuit, failure reopens it for another cooldown. Errors the
// classifier rejects pass through without counting.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	counts      func(error) bool
	now         func() time.Time
}

// NewBreaker returns a closed breaker. A maxFailures below 1 is treated as 1.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		counts:      func(error) bool { return true },
		now:         time.Now,
	}
}

// WithClassifier sets the function deciding whether an error counts as a
// failure. It returns the breaker for chaining.
func (b *Breaker) WithClassifier(counts func(error) bool) *Breaker {
	b.mu.Lock()
	b.counts = counts
	b.mu.Unlock()
	return b
}

// Execute runs fn unless the circuit is open or a probe is already in flight.
func (b *Breaker) Execute(fn func() error) error {
	probe, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	switch {
	case err != nil && b.counts(err):
		b.failed()
	case err != nil && probe:
		// An uncounted probe error leaves the circuit half-open for the
		// next caller.
	default:
		b.succeeded()
	}
	return err
}

// State reports "closed", "open" or "half-open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return stateHalfOpen.String()
	}
	return b.state.String()
}

// admit reports whether a call may run and whether it is the probe.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.transition(stateHalfOpen)
	}
	switch b.state {
	case stateClosed:
		return false, true
	case stateHalfOpen:
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	default:
		return false, false
	}
}

// failed must be called with b.mu held.
func (b *Breaker) failed() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		b.transition(stateOpen)
	}
}

// succeeded must be called with b.mu held.
func (b *Breaker) succeeded() {
	b.failures = 0
	b.transition(stateClosed)
}

func (b *Breaker) transition(to state) {
	if b.state == to {
		return
	}
	slog.Info("runtime circuit state changed", "from", b.state.String(), "to", to.String(), "failures", b.failures)
	b.state = to
}
