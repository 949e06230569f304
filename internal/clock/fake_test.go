package clock

import (
	"testing"
	"time"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	c := NewFake(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", got, start.Add(90*time.Second))
	}
}

func TestAfterFuncFiresAtDeadline(t *testing.T) {
	c := NewFake(start)
	fired := 0
	c.AfterFunc(10*time.Second, func() { fired++ })

	c.Advance(9 * time.Second)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}
	c.Advance(1 * time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	// One-shot: no refire.
	c.Advance(time.Minute)
	if fired != 1 {
		t.Fatalf("fired = %d after extra advance, want 1", fired)
	}
}

func TestAfterFuncOrder(t *testing.T) {
	c := NewFake(start)
	var order []string
	c.AfterFunc(20*time.Second, func() { order = append(order, "late") })
	c.AfterFunc(10*time.Second, func() { order = append(order, "early") })

	c.Advance(time.Minute)
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Fatalf("order = %v, want [early late]", order)
	}
}

func TestAfterFuncObservesFireTime(t *testing.T) {
	c := NewFake(start)
	var at time.Time
	c.AfterFunc(10*time.Second, func() { at = c.Now() })
	c.Advance(time.Minute)
	if want := start.Add(10 * time.Second); !at.Equal(want) {
		t.Fatalf("callback saw Now() = %v, want %v", at, want)
	}
}

func TestTimerStop(t *testing.T) {
	c := NewFake(start)
	fired := false
	timer := c.AfterFunc(10*time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false on armed timer, want true")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("Stop() = true on already-stopped timer, want false")
	}
}

func TestTimerStopAfterFire(t *testing.T) {
	c := NewFake(start)
	timer := c.AfterFunc(10*time.Second, func() {})
	c.Advance(10 * time.Second)
	if timer.Stop() {
		t.Fatal("Stop() = true on fired timer, want false")
	}
}

func TestPendingTimers(t *testing.T) {
	c := NewFake(start)
	if got := c.PendingTimers(); got != 0 {
		t.Fatalf("PendingTimers() = %d, want 0", got)
	}
	a := c.AfterFunc(10*time.Second, func() {})
	c.AfterFunc(20*time.Second, func() {})
	if got := c.PendingTimers(); got != 2 {
		t.Fatalf("PendingTimers() = %d, want 2", got)
	}
	a.Stop()
	if got := c.PendingTimers(); got != 1 {
		t.Fatalf("PendingTimers() = %d after Stop, want 1", got)
	}
	c.Advance(time.Minute)
	if got := c.PendingTimers(); got != 0 {
		t.Fatalf("PendingTimers() = %d after fire, want 0", got)
	}
}

func TestRescheduleFromCallback(t *testing.T) {
	c := NewFake(start)
	fired := 0
	var arm func()
	arm = func() {
		c.AfterFunc(10*time.Second, func() {
			fired++
			arm()
		})
	}
	arm()

	// A callback arming a new timer must not fire again in the same
	// Advance window unless its fresh deadline falls inside it.
	c.Advance(10 * time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(25 * time.Second)
	if fired != 3 {
		t.Fatalf("fired = %d, want 3", fired)
	}
}

func TestTickerDelivers(t *testing.T) {
	c := NewFake(start)
	ticker := c.NewTicker(10 * time.Second)
	defer ticker.Stop()

	c.Advance(10 * time.Second)
	select {
	case at := <-ticker.C():
		if want := start.Add(10 * time.Second); !at.Equal(want) {
			t.Fatalf("tick at %v, want %v", at, want)
		}
	default:
		t.Fatal("no tick delivered")
	}

	// Slow consumers lose ticks rather than block the clock.
	c.Advance(30 * time.Second)
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("dropped ticks were buffered")
	default:
	}
}

func TestTickerStop(t *testing.T) {
	c := NewFake(start)
	ticker := c.NewTicker(10 * time.Second)
	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker delivered")
	default:
	}
}
