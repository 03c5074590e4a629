// Package clock implements the media clock: an anchored mapping between
// wall-clock time and presentation time under a variable playback rate,
// with deadline-timer support for scheduled notifications (§4.C).
//
// The teacher corpus has no equivalent component (erparts/go-avebi derives
// position ad hoc from time.Now() minus a reference timestamp inside each
// controller); this package generalizes that same reference-time idiom
// (controller_no_audio.go's referenceTime/referencePosition pair) into a
// standalone, rate-aware, timer-firing actor, exactly as the specification
// requires.
package clock

import (
	"sort"
	"sync"
	"time"

	"hpcplayer/looper"
	"hpcplayer/msg"
	"hpcplayer/playerrors"
)

// NoMediaTime is returned by GetMediaTime/GetRealTimeFor when the clock is
// unanchored or the query is otherwise undefined (§4.C "NoInit").
const NoMediaTime int64 = -1

// TimerReason identifies why a Timer fired.
type TimerReason int

const (
	TimerReached TimerReason = iota
	TimerReset
)

// Notify receives a fired timer. Implementations typically post a message
// to an actor's Looper.
type Notify func(reason TimerReason)

// Timer is a registered deadline notification: fires when
// nowMedia >= mediaTimeUs + adjustRealUs*rate.
type Timer struct {
	Notify       Notify
	MediaTimeUs  int64
	AdjustRealUs int64

	fired bool
}

// Clock is the media clock actor (§4.C). It owns its own Looper for timer
// wakeups but its query methods (GetMediaTime, GetRealTimeFor) are safe to
// call directly from any goroutine, guarded by an internal mutex, since
// every renderer needs low-latency position queries without round-tripping
// through a message post.
type Clock struct {
	fluctuationThreshold time.Duration
	nowFunc              func() time.Time

	mu sync.Mutex

	anchored       bool
	anchorMediaUs  int64
	anchorRealUs   int64
	maxMediaUs     int64
	startingMediaUs int64
	rate           float64
	generation     uint64
	timers         []*Timer

	wakeupLoop *looper.Looper
}

// wakeupWhat tags the clock's internal timer-wakeup message.
const wakeupWhat int32 = 1

// New creates an unanchored Clock. fluctuationThreshold suppresses anchor
// updates that would move nowMedia by less than the threshold (§4.C
// updateAnchor; default resolved to 10ms, see config.Config and DESIGN.md).
func New(fluctuationThreshold time.Duration) *Clock {
	c := &Clock{
		fluctuationThreshold: fluctuationThreshold,
		nowFunc:              time.Now,
		rate:                 1.0,
		maxMediaUs:            -1,
	}
	c.wakeupLoop = looper.New("media-clock", looper.HandlerFunc(c.handleWakeup), nil)
	return c
}

// Run starts the clock's wakeup-dispatch Looper; call from actorsup or a
// bare `go clock.Run()`.
func (c *Clock) Run() error { return c.wakeupLoop.Run() }

// Stop halts the wakeup-dispatch Looper.
func (c *Clock) Stop() { c.wakeupLoop.Stop() }

// Name satisfies actorsup.Actor.
func (c *Clock) Name() string { return c.wakeupLoop.Name() }

// BumpGeneration satisfies actorsup.Actor; also invalidates pending timer
// wakeups scheduled under the previous generation.
func (c *Clock) BumpGeneration() uint64 {
	c.wakeupLoop.BumpGeneration()
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()
	return gen
}

func (c *Clock) handleWakeup(m *msg.Message) {
	gen, _ := m.FindInt64("generation")
	c.mu.Lock()
	stale := uint64(gen) != c.generation
	c.mu.Unlock()
	if stale {
		return // §5 "stale wakeups (generation mismatch) are dropped"
	}
	c.processTimers(TimerReached)
}

// nowMediaLocked computes the current media time at wall-clock time r,
// without clamping. c.mu must be held.
func (c *Clock) nowMediaLocked(r int64) int64 {
	return c.anchorMediaUs + int64(float64(r-c.anchorRealUs)*c.rate)
}

// UpdateAnchor installs a new (media, real) anchor pair, per §4.C. Updates
// that would move the derived now-media by less than the configured
// fluctuation threshold are rejected to suppress anchor noise. Negative
// inputs are rejected with StatusBadValue. maxMediaUs<0 means "no change".
func (c *Clock) UpdateAnchor(anchorMediaUs, anchorRealUs, maxMediaUs int64) error {
	if anchorMediaUs < 0 || anchorRealUs < 0 {
		return playerrors.New(playerrors.StatusBadValue, "clock.updateAnchor", nil)
	}

	c.mu.Lock()
	if c.anchored {
		prevNow := c.nowMediaLocked(anchorRealUs)
		delta := anchorMediaUs - prevNow
		if delta < 0 {
			delta = -delta
		}
		if time.Duration(delta)*time.Microsecond < c.fluctuationThreshold {
			c.mu.Unlock()
			return nil
		}
	}

	c.anchored = true
	c.anchorMediaUs = anchorMediaUs
	c.anchorRealUs = anchorRealUs
	if maxMediaUs >= 0 {
		c.maxMediaUs = maxMediaUs
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.reprocessTimers(gen)
	return nil
}

// SetStartingMediaTime sets the lower clamp bound for GetMediaTime.
func (c *Clock) SetStartingMediaTime(startingMediaUs int64) {
	c.mu.Lock()
	c.startingMediaUs = startingMediaUs
	c.mu.Unlock()
}

// SetPlaybackRate sets the conversion rate (must be >= 0). If the clock is
// unanchored the rate is simply stored; if anchored, the anchor is
// recomputed at "now" under the new rate to preserve continuity (§4.C).
func (c *Clock) SetPlaybackRate(rate float64) error {
	if rate < 0 {
		return playerrors.New(playerrors.StatusBadValue, "clock.setPlaybackRate", nil)
	}

	c.mu.Lock()
	if !c.anchored {
		c.rate = rate
		c.mu.Unlock()
		return nil
	}

	now := c.nowFunc().UnixMicro()
	nowMedia := c.nowMediaLocked(now)
	c.anchorMediaUs = nowMedia
	c.anchorRealUs = now
	c.rate = rate
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.reprocessTimers(gen)
	return nil
}

// Rate returns the current playback rate.
func (c *Clock) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// GetMediaTime returns the media time corresponding to wall-clock time realUs.
// Returns (NoMediaTime, StatusNoInit) if unanchored. Clamped to
// [startingMediaUs, maxMediaUs] unless allowPastMax.
func (c *Clock) GetMediaTime(realUs int64, allowPastMax bool) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.anchored {
		return NoMediaTime, playerrors.New(playerrors.StatusNoInit, "clock.getMediaTime", nil)
	}

	media := c.nowMediaLocked(realUs)
	if media < c.startingMediaUs {
		media = c.startingMediaUs
	}
	if !allowPastMax && c.maxMediaUs >= 0 && media > c.maxMediaUs {
		media = c.maxMediaUs
	}
	return media, nil
}

// GetRealTimeFor returns the wall-clock time at which targetMediaUs will be
// reached, by inverting the anchor mapping directly (it does not consult
// "now": the anchor alone determines the media-to-real correspondence).
// Returns StatusNoInit if unanchored or rate == 0 (the mapping is undefined
// without forward progress).
func (c *Clock) GetRealTimeFor(targetMediaUs int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.anchored || c.rate == 0 {
		return NoMediaTime, playerrors.New(playerrors.StatusNoInit, "clock.getRealTimeFor", nil)
	}

	real := c.anchorRealUs + int64(float64(targetMediaUs-c.anchorMediaUs)/c.rate)
	return real, nil
}

// AddTimer registers a new deadline notification. If it is earlier than
// every other pending timer under the current rate, the wakeup is
// rescheduled immediately.
func (c *Clock) AddTimer(notify Notify, mediaTimeUs, adjustRealUs int64) {
	t := &Timer{Notify: notify, MediaTimeUs: mediaTimeUs, AdjustRealUs: adjustRealUs}

	c.mu.Lock()
	c.timers = append(c.timers, t)
	gen := c.generation
	c.mu.Unlock()

	c.reprocessTimers(gen)
}

// Reset fires every pending timer with TimerReset, clears the anchor, and
// bumps the generation so any in-flight wakeup is dropped as stale.
func (c *Clock) Reset() {
	c.mu.Lock()
	pending := c.timers
	c.timers = nil
	c.anchored = false
	c.anchorMediaUs = 0
	c.anchorRealUs = 0
	c.generation++
	c.mu.Unlock()

	for _, t := range pending {
		if t.Notify != nil {
			t.Notify(TimerReset)
		}
	}
}

// processTimers fires every timer whose deadline has passed (in insertion
// order) and reschedules a wakeup for the earliest remaining one.
func (c *Clock) processTimers(reason TimerReason) {
	c.mu.Lock()
	if !c.anchored {
		c.mu.Unlock()
		return
	}
	now := c.nowFunc().UnixMicro()
	nowMedia := c.nowMediaLocked(now)
	rate := c.rate

	var fire []*Timer
	var remaining []*Timer
	for _, t := range c.timers {
		diff := float64(t.AdjustRealUs)*rate + float64(t.MediaTimeUs) - float64(nowMedia)
		if diff <= 0 {
			fire = append(fire, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	gen := c.generation
	c.mu.Unlock()

	for _, t := range fire {
		if t.Notify != nil {
			t.Notify(reason)
		}
	}

	c.reprocessTimers(gen)
}

// reprocessTimers recomputes the soonest pending deadline and schedules a
// single wakeup message against the clock's own Looper, tagged with the
// generation it was computed under; a stale wakeup (generation mismatch on
// delivery) is dropped by handleWakeup.
func (c *Clock) reprocessTimers(gen uint64) {
	c.mu.Lock()
	if c.generation != gen || !c.anchored || len(c.timers) == 0 {
		c.mu.Unlock()
		return
	}

	now := c.nowFunc().UnixMicro()
	nowMedia := c.nowMediaLocked(now)
	rate := c.rate
	timers := append([]*Timer(nil), c.timers...)
	c.mu.Unlock()

	sort.Slice(timers, func(i, j int) bool {
		di := float64(timers[i].AdjustRealUs)*rate + float64(timers[i].MediaTimeUs)
		dj := float64(timers[j].AdjustRealUs)*rate + float64(timers[j].MediaTimeUs)
		return di < dj
	})

	soonest := timers[0]
	diffMediaUs := float64(soonest.AdjustRealUs)*rate + float64(soonest.MediaTimeUs) - float64(nowMedia)
	if diffMediaUs <= 0 {
		// Already due: fire processing directly instead of scheduling.
		c.processTimers(TimerReached)
		return
	}

	var delay time.Duration
	if rate > 0 {
		delay = time.Duration(diffMediaUs/rate) * time.Microsecond
	} else {
		// Rate 0: nothing will ever become due; don't schedule a wakeup.
		return
	}

	wakeup := msg.New(wakeupWhat).SetInt64("generation", int64(gen))
	_ = c.wakeupLoop.PostDelayed(wakeup, delay)
}
