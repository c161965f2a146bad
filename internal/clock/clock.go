// Package clock supplies the engine's notion of now. Ask and bid expiry
// are compared against it, so tests pin or step it instead of sleeping.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// UTC reads the wall clock, normalized to UTC.
type UTC struct{}

func (UTC) Now() time.Time { return time.Now().UTC() }

// NewSystem returns the wall clock the server runs on.
func NewSystem() Clock { return UTC{} }

// Manual only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// NewFixed returns a clock stopped at t.
func NewFixed(t time.Time) Clock { return NewManual(t) }
