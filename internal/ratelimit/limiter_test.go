package ratelimit

import (
	"testing"
	"time"
)

func TestWindowAdmitsUpToMax(t *testing.T) {
	w := New(3, 1000)
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		if !w.Allow(now) {
			t.Fatalf("event %d should be admitted", i)
		}
	}
	if w.Allow(now) {
		t.Fatal("4th event within the window should be rejected")
	}
}

func TestWindowExpiresOldEvents(t *testing.T) {
	w := New(1, 1000)
	t0 := time.Unix(0, 0)
	if !w.Allow(t0) {
		t.Fatal("first event should be admitted")
	}
	if w.Allow(t0.Add(500 * time.Millisecond)) {
		t.Fatal("second event inside the window should be rejected")
	}
	if !w.Allow(t0.Add(1100 * time.Millisecond)) {
		t.Fatal("event after the window elapses should be admitted")
	}
}
