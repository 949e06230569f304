package server

import (
	"testing"
	"time"

	"github.com/mkohler/loop/internal/clock"
)

func TestRateLimiterWindow(t *testing.T) {
	clk := clock.NewFake(storeEpoch)
	rl := NewRateLimiter(clk, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("attempt %d denied, want allowed", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Fatal("attempt 4 allowed, want denied")
	}
	// Other keys have their own window.
	if !rl.Allow("bob") {
		t.Fatal("separate key denied")
	}

	// The window slides; old attempts age out.
	clk.Advance(61 * time.Second)
	if !rl.Allow("alice") {
		t.Fatal("attempt after window denied, want allowed")
	}
}

func TestRateLimiterDeniedAttemptNotCounted(t *testing.T) {
	clk := clock.NewFake(storeEpoch)
	rl := NewRateLimiter(clk, 1, time.Minute)

	rl.Allow("alice")
	for i := 0; i < 5; i++ {
		if rl.Allow("alice") {
			t.Fatal("over-limit attempt allowed")
		}
	}
	clk.Advance(61 * time.Second)
	if !rl.Allow("alice") {
		t.Fatal("denied attempts extended the window")
	}
}
