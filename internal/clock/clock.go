// Package clock abstracts time so the call poll loops and enrichment
// retry delays can run instantly under test. Production code takes a
// Clock; tests inject a Mock whose After fires immediately.
package clock

import (
	"sync"
	"time"
)

// Clock provides the time operations the pollers need.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current
	// time on the returned channel.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// New returns a Clock backed by the system time.
func New() Clock {
	return &realClock{}
}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func (c *realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Mock implements Clock with a settable current time. Its After never
// actually sleeps: the channel is pre-filled, so a 60-attempt poll loop
// runs to completion inside a single test.
type Mock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMock creates a Mock pinned to the given time.
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns the duration between t and the mock's current time.
func (m *Mock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// After returns a channel that already holds current time + d. The mock
// clock does not advance on its own; pair with Advance when elapsed time
// matters to the code under test.
func (m *Mock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- m.Now().Add(d)
	return ch
}

// Set pins the mock to a specific time.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Advance moves the mock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}
