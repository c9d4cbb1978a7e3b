package resilience

import (
	"sync"
)

// DefaultThreshold is the consecutive failure count that opens a breaker
// when Settings.Threshold is zero.
const DefaultThreshold = 3

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold uint32
	// OnOpen is called once, with the reason, when the breaker opens.
	OnOpen func(name, reason string)
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	TotalSuccesses      uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
}

// Breaker is a latching circuit breaker. It opens after Threshold
// consecutive failures or on Trip, and never closes again.
type Breaker struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
	reason string
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = DefaultThreshold
	}
	return &Breaker{
		name:     name,
		settings: settings,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Open reports whether the breaker has latched open.
func (b *Breaker) Open() bool {
	return b.State() == StateOpen
}

// Reason returns why the breaker opened, empty while closed.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Success records a successful call and clears the failure streak.
// Ignored once open.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		return
	}
	b.counts.TotalSuccesses++
	b.counts.ConsecutiveFailures = 0
}

// Failure records a failed call and reports whether the breaker is open
// afterwards.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	if b.state == StateOpen {
		b.mu.Unlock()
		return true
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	if b.counts.ConsecutiveFailures < b.settings.Threshold {
		b.mu.Unlock()
		return false
	}
	notify := b.open("consecutive failures")
	b.mu.Unlock()

	notify()
	return true
}

// Trip forces the breaker open regardless of counts. The first reason wins.
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	if b.state == StateOpen {
		b.mu.Unlock()
		return
	}
	notify := b.open(reason)
	b.mu.Unlock()

	notify()
}

// open must be called with mu held. The returned func runs the callback
// outside the lock.
func (b *Breaker) open(reason string) func() {
	b.state = StateOpen
	b.reason = reason

	cb := b.settings.OnOpen
	if cb == nil {
		return func() {}
	}
	name := b.name
	return func() { cb(name, reason) }
}
