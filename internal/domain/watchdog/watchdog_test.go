package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatchdog_TicksImmediatelyOnStart(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	w := New(5*time.Millisecond, func(now time.Time) bool {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return false
	}, nil, zap.NewNop())

	w.Start(context.Background())
	defer w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate scan on Start")
	}
}

func TestWatchdog_NotifiesOnlyOnStateChange(t *testing.T) {
	var mu sync.Mutex
	transitions := 0
	exhausted := false

	calls := make(chan struct{}, 100)
	w := New(5*time.Millisecond, func(now time.Time) bool {
		mu.Lock()
		e := exhausted
		mu.Unlock()
		calls <- struct{}{}
		return e
	}, func(exhausted bool) {
		mu.Lock()
		transitions++
		mu.Unlock()
	}, zap.NewNop())

	w.Start(context.Background())
	defer w.Stop()

	// Wait for a few ticks while state is stable at "not exhausted".
	for i := 0; i < 3; i++ {
		<-calls
	}
	mu.Lock()
	got := transitions
	mu.Unlock()
	if got != 0 {
		t.Fatalf("expected no transition notifications while state is stable, got %d", got)
	}

	mu.Lock()
	exhausted = true
	mu.Unlock()

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		got := transitions
		mu.Unlock()
		if got == 1 {
			break
		}
		select {
		case <-calls:
		case <-deadline:
			t.Fatal("expected exactly one transition notification after the scan result flips")
		}
	}
}

func TestWatchdog_StartIsIdempotent(t *testing.T) {
	ticks := make(chan struct{}, 10)
	w := New(5*time.Millisecond, func(now time.Time) bool {
		ticks <- struct{}{}
		return false
	}, nil, zap.NewNop())

	w.Start(context.Background())
	w.Start(context.Background()) // second call must be a no-op, not a second loop
	defer w.Stop()

	<-ticks
	time.Sleep(20 * time.Millisecond)
	// drain whatever accumulated; a second concurrent loop would roughly
	// double the tick rate within this window, which we can't assert
	// precisely, so this just exercises the no-op path without panicking.
	for {
		select {
		case <-ticks:
		default:
			return
		}
	}
}

func TestWatchdog_StopHaltsFurtherTicks(t *testing.T) {
	ticks := make(chan struct{}, 10)
	w := New(5*time.Millisecond, func(now time.Time) bool {
		ticks <- struct{}{}
		return false
	}, nil, zap.NewNop())

	w.Start(context.Background())
	<-ticks
	w.Stop()

	// drain anything in flight, then confirm no further ticks arrive.
	drain := true
	for drain {
		select {
		case <-ticks:
		case <-time.After(20 * time.Millisecond):
			drain = false
		}
	}
	select {
	case <-ticks:
		t.Fatal("expected no further ticks after Stop")
	case <-time.After(30 * time.Millisecond):
	}
}
