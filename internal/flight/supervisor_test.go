package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/flight-control/internal/command"
	"github.com/roman-kulish/flight-control/internal/status"
)

// fakeClock advances only when the supervisor sleeps
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	onSleep func(now time.Time)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	if c.onSleep != nil {
		c.onSleep(now)
	}
	return ctx.Err()
}

type fakeLink struct {
	calls   atomic.Int64
	healthy func(call int64) bool
}

func (l *fakeLink) Healthy() bool {
	return l.healthy(l.calls.Add(1))
}

func TestSupervisor_LinkTimeout(t *testing.T) {
	f := newFixture(t, ModeTest)
	clock := newFakeClock()
	start := clock.Now()
	link := &fakeLink{healthy: func(int64) bool { return false }}

	// a command queued while the link is down must not be executed
	f.intake.Offer(command.Command{Kind: command.KindStabilize})

	sup := NewSupervisor(f.controller, link, WithClock(clock))

	err := sup.Run(context.Background())
	if !errors.Is(err, ErrLinkLost) {
		t.Fatalf("Expected ErrLinkLost, got %v", err)
	}

	if elapsed := clock.Now().Sub(start); elapsed != DefaultLinkTimeout {
		t.Errorf("Expected fail-safe after %s, got %s", DefaultLinkTimeout, elapsed)
	}

	// one check per 0.5s poll plus the initial one
	expectedCalls := int64(DefaultLinkTimeout/DefaultLinkPollInterval) + 1
	if calls := link.calls.Load(); calls != expectedCalls {
		t.Errorf("Expected %d health checks, got %d", expectedCalls, calls)
	}

	msgs := f.sender.statuses()
	if len(msgs) != 1 || msgs[0].QDM != status.OK {
		t.Fatalf("Expected exactly one QDM=1 report, got %v", msgs)
	}
	if !f.controller.Snapshot().QDMEngaged {
		t.Error("QDM should be engaged")
	}
	if f.controller.Snapshot().LinkHealthy {
		t.Error("Link should be reported unhealthy")
	}
	if f.intake.Len() != 1 {
		t.Error("Pending command should not be dispatched without a link")
	}

	calls := link.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if link.calls.Load() != calls {
		t.Error("Polling should stop after the fail-safe")
	}
}

func TestSupervisor_LinkRecovers(t *testing.T) {
	f := newFixture(t, ModeTest)
	clock := newFakeClock()

	// down for 10 polls, then up for good
	link := &fakeLink{healthy: func(call int64) bool { return call > 10 }}
	f.intake.Offer(command.Command{Kind: command.KindQDM})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := clock.Now()
	sleeps := 0
	clock.onSleep = func(time.Time) {
		sleeps++
		if sleeps > 12 {
			cancel()
		}
	}

	sup := NewSupervisor(f.controller, link, WithClock(clock), WithTickInterval(time.Second))

	if err := sup.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if clock.Now().Sub(start) >= DefaultLinkTimeout {
		t.Error("Clock should not reach the link timeout")
	}

	msgs := f.sender.statuses()
	if len(msgs) != 1 || msgs[0].QDM != status.OK {
		t.Fatalf("Expected the queued QDM command to be dispatched once, got %v", msgs)
	}
	if !f.controller.Snapshot().LinkHealthy {
		t.Error("Link should be reported healthy")
	}
}

func TestSupervisor_CustomPolicy(t *testing.T) {
	f := newFixture(t, ModeTest)
	clock := newFakeClock()
	start := clock.Now()
	link := &fakeLink{healthy: func(int64) bool { return false }}

	sup := NewSupervisor(f.controller, link, WithClock(clock), WithLinkPolicy(time.Second, 10*time.Second))

	if err := sup.Run(context.Background()); !errors.Is(err, ErrLinkLost) {
		t.Fatalf("Expected ErrLinkLost, got %v", err)
	}
	if elapsed := clock.Now().Sub(start); elapsed != 10*time.Second {
		t.Errorf("Expected 10s deadline, got %s", elapsed)
	}
	if calls := link.calls.Load(); calls != 11 {
		t.Errorf("Expected 11 health checks, got %d", calls)
	}
}

func TestSupervisor_CancelWhileWaiting(t *testing.T) {
	f := newFixture(t, ModeTest)
	clock := newFakeClock()
	link := &fakeLink{healthy: func(int64) bool { return false }}

	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = func(time.Time) { cancel() }

	sup := NewSupervisor(f.controller, link, WithClock(clock))

	if err := sup.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if f.sender.count() != 0 {
		t.Error("Cancellation must not trigger the fail-safe")
	}
}

func TestSystemClock_Sleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (systemClock{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if err := (systemClock{}).Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
