package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hpcplayer/playerrors"
)

func TestGetMediaTimeUnanchoredIsNoInit(t *testing.T) {
	c := New(10 * time.Millisecond)
	_, err := c.GetMediaTime(0, false)
	if playerrors.StatusOf(err) != playerrors.StatusNoInit {
		t.Fatalf("GetMediaTime() status = %v, want NoInit", playerrors.StatusOf(err))
	}
}

func TestAnchorRoundTrip(t *testing.T) {
	c := New(10 * time.Millisecond)
	if err := c.UpdateAnchor(1_000_000, 5_000_000, -1); err != nil {
		t.Fatalf("UpdateAnchor() error = %v", err)
	}

	media, err := c.GetMediaTime(5_000_000, false)
	if err != nil {
		t.Fatalf("GetMediaTime() error = %v", err)
	}
	if media != 1_000_000 {
		t.Fatalf("GetMediaTime() = %d, want 1000000", media)
	}

	real, err := c.GetRealTimeFor(2_000_000)
	if err != nil {
		t.Fatalf("GetRealTimeFor() error = %v", err)
	}
	if real != 6_000_000 {
		t.Fatalf("GetRealTimeFor() = %d, want 6000000", real)
	}
}

func TestFluctuationThresholdSuppressesSmallUpdates(t *testing.T) {
	c := New(10 * time.Millisecond)
	if err := c.UpdateAnchor(1_000_000, 0, -1); err != nil {
		t.Fatalf("UpdateAnchor() error = %v", err)
	}
	genBefore := c.generation

	// A 2ms drift is within the 10ms threshold and should be rejected.
	if err := c.UpdateAnchor(1_002_000, 0, -1); err != nil {
		t.Fatalf("UpdateAnchor() error = %v", err)
	}
	if c.generation != genBefore {
		t.Fatalf("generation changed on a sub-threshold anchor update")
	}

	media, _ := c.GetMediaTime(0, false)
	if media != 1_000_000 {
		t.Fatalf("GetMediaTime() = %d, want 1000000 (update should have been suppressed)", media)
	}
}

func TestClampToMaxMedia(t *testing.T) {
	c := New(10 * time.Millisecond)
	if err := c.UpdateAnchor(0, 0, 5_000_000); err != nil {
		t.Fatalf("UpdateAnchor() error = %v", err)
	}

	media, err := c.GetMediaTime(10_000_000, false)
	if err != nil {
		t.Fatalf("GetMediaTime() error = %v", err)
	}
	if media != 5_000_000 {
		t.Fatalf("GetMediaTime() = %d, want clamped 5000000", media)
	}

	past, err := c.GetMediaTime(10_000_000, true)
	if err != nil {
		t.Fatalf("GetMediaTime(allowPastMax) error = %v", err)
	}
	if past != 10_000_000 {
		t.Fatalf("GetMediaTime(allowPastMax) = %d, want 10000000", past)
	}
}

// TestTimerFiresExactlyOnceAndReportsReached drives processTimers directly,
// standing in for a wakeup message delivered by the clock's own Looper, so
// the test controls "now" without racing a real wall-clock schedule.
func TestTimerFiresExactlyOnceAndReportsReached(t *testing.T) {
	c := New(0)

	var virtualNowUs atomic.Int64
	c.nowFunc = func() time.Time { return time.UnixMicro(virtualNowUs.Load()) }

	if err := c.UpdateAnchor(0, 0, -1); err != nil {
		t.Fatalf("UpdateAnchor() error = %v", err)
	}

	var mu sync.Mutex
	var reasons []TimerReason
	c.AddTimer(func(reason TimerReason) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	}, 20_000, 0) // due once media time reaches 20ms

	c.processTimers(TimerReached)
	mu.Lock()
	if len(reasons) != 0 {
		mu.Unlock()
		t.Fatalf("timer fired before its deadline")
	}
	mu.Unlock()

	virtualNowUs.Store(25_000)
	c.processTimers(TimerReached)

	mu.Lock()
	if len(reasons) != 1 || reasons[0] != TimerReached {
		mu.Unlock()
		t.Fatalf("reasons = %v, want [TimerReached]", reasons)
	}
	mu.Unlock()

	// The timer has already been removed from the pending set; a further
	// wakeup must not fire it again.
	c.processTimers(TimerReached)
	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 {
		t.Fatalf("timer fired %d times, want exactly 1", len(reasons))
	}
}

func TestResetFiresAllPendingTimersWithResetReason(t *testing.T) {
	c := New(time.Millisecond)
	c.nowFunc = func() time.Time { return time.UnixMicro(0) }
	if err := c.UpdateAnchor(0, 0, -1); err != nil {
		t.Fatalf("UpdateAnchor() error = %v", err)
	}

	var mu sync.Mutex
	var reasons []TimerReason
	c.AddTimer(func(reason TimerReason) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	}, 1_000_000_000, 0) // far in the future; would not fire naturally

	c.Reset()

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 || reasons[0] != TimerReset {
		t.Fatalf("reasons = %v, want [TimerReset]", reasons)
	}

	if _, err := c.GetMediaTime(0, false); playerrors.StatusOf(err) != playerrors.StatusNoInit {
		t.Fatalf("clock still anchored after Reset()")
	}
}

func TestSetPlaybackRatePreservesContinuity(t *testing.T) {
	c := New(time.Millisecond)
	c.nowFunc = func() time.Time { return time.UnixMicro(0) }
	if err := c.UpdateAnchor(1_000_000, 0, -1); err != nil {
		t.Fatalf("UpdateAnchor() error = %v", err)
	}

	before, err := c.GetMediaTime(0, false)
	if err != nil {
		t.Fatalf("GetMediaTime() error = %v", err)
	}

	if err := c.SetPlaybackRate(2.0); err != nil {
		t.Fatalf("SetPlaybackRate() error = %v", err)
	}

	after, err := c.GetMediaTime(0, false)
	if err != nil {
		t.Fatalf("GetMediaTime() error = %v", err)
	}
	if before != after {
		t.Fatalf("media time jumped across a rate change at the same instant: %d -> %d", before, after)
	}
	if c.Rate() != 2.0 {
		t.Fatalf("Rate() = %v, want 2.0", c.Rate())
	}
}
