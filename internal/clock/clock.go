// Package clock abstracts the wall clock so that poll cycles, notification
// windows and cool-downs can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// RealClock reads the system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NowUnixMilli() int64 { return time.Now().UnixMilli() }

// MockClock is a settable, goroutine-safe clock for tests.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

// NewMockClock creates a MockClock frozen at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) NowUnixMilli() int64 {
	return m.Now().UnixMilli()
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// zoned reports the wrapped clock's instant in a fixed location.
type zoned struct {
	base Clock
	loc  *time.Location
}

// InLocation wraps c so that Now is expressed in loc. The instant is unchanged;
// only the wall-clock rendering (and therefore weekday and date) follows loc.
// A nil loc returns c unchanged.
func InLocation(c Clock, loc *time.Location) Clock {
	if loc == nil {
		return c
	}
	return zoned{base: c, loc: loc}
}

func (z zoned) Now() time.Time { return z.base.Now().In(z.loc) }

func (z zoned) NowUnixMilli() int64 { return z.base.NowUnixMilli() }

// FeedLocation returns the Europe/Amsterdam zone used by the Dutch feeds,
// falling back to a fixed CET offset when tzdata is unavailable.
func FeedLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		return time.FixedZone("CET", 60*60)
	}
	return loc
}
