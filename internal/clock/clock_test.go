package clock

import (
	"testing"
	"time"
)

func TestFrozenClockAdvance(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFrozenClock(base)

	if !c.Now().Equal(base) {
		t.Fatalf("expected %v, got %v", base, c.Now())
	}

	c.Advance(5 * time.Second)
	want := base.Add(5 * time.Second)
	if !c.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, c.Now())
	}
}

func TestJitterZeroIsZero(t *testing.T) {
	if d := Jitter(0, nil); d != 0 {
		t.Fatalf("expected zero jitter, got %v", d)
	}
}

func TestJitterBounded(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := Jitter(2.0, nil)
		if d < -2*time.Second || d >= 2*time.Second {
			t.Fatalf("jitter out of bounds: %v", d)
		}
	}
}
