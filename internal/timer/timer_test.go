package timer

import (
	"testing"
	"time"
)

func TestFixedAdvanceAndMicros(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFixed(start)
	if f.NowMicros() != start.UnixMicro() {
		t.Fatalf("unexpected micros %d", f.NowMicros())
	}
	f.Advance(3 * time.Hour)
	if got := f.Now(); !got.Equal(start.Add(3 * time.Hour)) {
		t.Fatalf("expected advanced clock, got %v", got)
	}
	if got := MicrosAfter(f, time.Hour); got != start.Add(4*time.Hour).UnixMicro() {
		t.Fatalf("unexpected micros after: %d", got)
	}
}

func TestMicrosRoundTrip(t *testing.T) {
	at := time.Date(2030, 1, 2, 3, 4, 5, 6000, time.UTC)
	if got := FromMicros(ToMicros(at)); !got.Equal(at) {
		t.Fatalf("expected %v, got %v", at, got)
	}
}
