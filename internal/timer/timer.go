// Package timer supplies the clock used by every time-dependent rule.
// Subscription and token timestamps are stored as microseconds since the Unix epoch.
package timer

import (
	"sync"
	"time"
)

type Timer interface {
	Now() time.Time
	NowMicros() int64
}

type SystemTimer struct{}

func NewSystemTimer() SystemTimer { return SystemTimer{} }

func (SystemTimer) Now() time.Time { return time.Now().UTC() }

func (SystemTimer) NowMicros() int64 { return time.Now().UTC().UnixMicro() }

// Fixed is a settable clock for tests and offline tooling.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(now time.Time) *Fixed { return &Fixed{now: now.UTC()} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) NowMicros() int64 { return f.Now().UnixMicro() }

func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	f.now = now.UTC()
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func ToMicros(t time.Time) int64 { return t.UnixMicro() }

func FromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

// MicrosAfter returns the timestamp d after the timer's current instant.
func MicrosAfter(t Timer, d time.Duration) int64 {
	return t.Now().Add(d).UnixMicro()
}
