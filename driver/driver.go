// Package driver implements the public facade (§4.H): a single
// mutex-and-condition-variable state machine that turns the engine's
// asynchronous, message-driven completions into the blocking client API
// named in §6. It is the direct generalization of the teacher's
// videoController/Player split (player.go's Play/Pause/Stop blocking on
// ebiten's per-frame Update rather than a condition variable) into the
// explicit state diagram of §4.H.
package driver

import (
	"sync"
	"time"

	"hpcplayer/clock"
	"hpcplayer/config"
	"hpcplayer/engine"
	"hpcplayer/logging"
	"hpcplayer/playerrors"
	"hpcplayer/render"
	"hpcplayer/source"
)

// State is one position in the §4.H diagram.
type State int

const (
	Idle State = iota
	SetSourcePending
	Unprepared
	Preparing
	Prepared
	Running
	Paused
	Stopped
	StoppedAndPreparing
	StoppedAndPrepared
	Resetting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SetSourcePending:
		return "SetSourcePending"
	case Unprepared:
		return "Unprepared"
	case Preparing:
		return "Preparing"
	case Prepared:
		return "Prepared"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	case StoppedAndPreparing:
		return "StoppedAndPreparing"
	case StoppedAndPrepared:
		return "StoppedAndPrepared"
	case Resetting:
		return "Resetting"
	default:
		return "Unknown"
	}
}

// Listener receives the client-facing notifications of §6. Embed
// NopListener to implement only the ones a given client cares about.
type Listener interface {
	OnPrepared(durationMs int64)
	OnPlaybackComplete()
	OnBufferingUpdate(pct int)
	OnSeekComplete()
	OnSetVideoSize(w, h int)
	OnStarted()
	OnPaused()
	OnStopped()
	OnSkipped()
	OnNotifyTime(mediaTimeMs int64)
	OnTimedText(text string)
	OnSubtitleData(data []byte)
	OnMetaData(key, value string)
	OnError(kind string, detail error)
	OnInfo(kind string, detail error)
	OnTimeDiscontinuity(anchorMediaUs, anchorRealUs int64, rate float64)
}

// NopListener is embeddable to satisfy Listener with all-no-op defaults.
type NopListener struct{}

func (NopListener) OnPrepared(int64)                 {}
func (NopListener) OnPlaybackComplete()               {}
func (NopListener) OnBufferingUpdate(int)             {}
func (NopListener) OnSeekComplete()                   {}
func (NopListener) OnSetVideoSize(int, int)           {}
func (NopListener) OnStarted()                        {}
func (NopListener) OnPaused()                         {}
func (NopListener) OnStopped()                        {}
func (NopListener) OnSkipped()                        {}
func (NopListener) OnNotifyTime(int64)                {}
func (NopListener) OnTimedText(string)                {}
func (NopListener) OnSubtitleData([]byte)             {}
func (NopListener) OnMetaData(string, string)         {}
func (NopListener) OnError(string, error)             {}
func (NopListener) OnInfo(string, error)              {}
func (NopListener) OnTimeDiscontinuity(int64, int64, float64) {}

// Driver is the public facade: one mutex plus condition variable, exactly
// as spec.md §4.H and §5 prescribe.
type Driver struct {
	mu   sync.Mutex
	cond *sync.Cond

	state State
	atEOS bool

	lastKnownPositionMs int64
	durationMs          int64

	listener Listener
	eng      *engine.Engine
	clk      *clock.Clock

	pendingOp  string
	pendingErr error
}

// New wires an Engine (with its own MediaClock, per §3 "the MediaClock
// outlives individual sessions until the Driver is destroyed") behind the
// Driver facade.
func New(cfg config.Config, log *logging.Logger, listener Listener, factory engine.SourceFactory) *Driver {
	d := &Driver{state: Idle, listener: listener}
	d.cond = sync.NewCond(&d.mu)
	d.clk = clock.New(cfg.ClockFluctuationThreshold)
	go d.clk.Run()
	d.eng = engine.New(cfg, log, d, d.clk, factory)
	go d.eng.Run()
	return d
}

// SetDataSource implements §6 setDataSource; legal from Idle, Stopped, or
// any already-prepared state (re-targeting playback to a new URL).
func (d *Driver) SetDataSource(url string) error {
	d.mu.Lock()
	switch d.state {
	case Idle, Stopped, Prepared, StoppedAndPrepared:
	default:
		d.mu.Unlock()
		return playerrors.New(playerrors.StatusInvalidOperation, "driver.setDataSource", nil)
	}
	d.state = SetSourcePending
	d.mu.Unlock()

	if err := d.eng.SetDataSource(url); err != nil {
		return err
	}

	d.mu.Lock()
	d.state = Unprepared
	d.atEOS = false
	d.mu.Unlock()
	return nil
}

// SetSurface implements §6 setSurface; always legal, the engine itself
// decides whether to apply immediately or defer (§4.G "Surface change").
func (d *Driver) SetSurface(sink render.VideoSink) error {
	return d.eng.SetSurface(sink)
}

// Prepare implements §6 prepare, legal from Unprepared or Stopped.
func (d *Driver) Prepare() error {
	d.mu.Lock()
	switch d.state {
	case Unprepared:
		d.state = Preparing
	case Stopped:
		d.state = StoppedAndPreparing
	default:
		d.mu.Unlock()
		return playerrors.New(playerrors.StatusInvalidOperation, "driver.prepare", nil)
	}
	d.pendingOp = "prepare"
	d.pendingErr = nil
	d.mu.Unlock()

	if err := d.eng.Prepare(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.waitForLocked(5*time.Second, func() bool { return d.pendingOp != "prepare" })
	if err != nil {
		return err
	}
	return d.pendingErr
}

// waitForLocked is waitFor's body, assuming d.mu is already held (sync.Cond
// requires the lock held across Wait).
func (d *Driver) waitForLocked(timeout time.Duration, done func() bool) error {
	deadline := time.Now().Add(timeout)
	for !done() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return playerrors.New(playerrors.StatusTimeout, "driver.wait", nil)
		}
		timer := time.AfterFunc(remaining, func() {
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		d.cond.Wait()
		timer.Stop()
	}
	return nil
}

// Start implements §6 start, legal from Prepared, Paused,
// StoppedAndPrepared or Running (a no-op resume).
func (d *Driver) Start() error {
	d.mu.Lock()
	switch d.state {
	case Prepared, Paused, StoppedAndPrepared, Running:
		if d.atEOS {
			d.mu.Unlock()
			if err := d.eng.SeekTo(0, source.SeekPreviousSync, false); err != nil {
				return err
			}
			d.mu.Lock()
		}
		d.state = Running
	default:
		d.mu.Unlock()
		return playerrors.New(playerrors.StatusInvalidOperation, "driver.start", nil)
	}
	d.mu.Unlock()
	return d.eng.Start()
}

// Pause implements §6 pause, legal only from Running.
func (d *Driver) Pause() error {
	d.mu.Lock()
	if d.state != Running {
		d.mu.Unlock()
		return playerrors.New(playerrors.StatusInvalidOperation, "driver.pause", nil)
	}
	d.state = Paused
	d.mu.Unlock()
	return d.eng.Pause()
}

// Stop implements §6 stop, legal from Running, Paused, Prepared or
// StoppedAndPrepared (already-stopped is a no-op success).
func (d *Driver) Stop() error {
	d.mu.Lock()
	switch d.state {
	case Stopped:
		d.mu.Unlock()
		return nil
	case Running, Paused, Prepared, StoppedAndPrepared:
		d.state = Stopped
	default:
		d.mu.Unlock()
		return playerrors.New(playerrors.StatusInvalidOperation, "driver.stop", nil)
	}
	d.mu.Unlock()
	return d.eng.StopPlayback()
}

// SeekTo implements §6 seekTo, legal from Prepared, StoppedAndPrepared,
// Paused or Running.
func (d *Driver) SeekTo(timeMs int64, mode source.SeekMode, needNotify bool) error {
	d.mu.Lock()
	switch d.state {
	case Prepared, StoppedAndPrepared, Paused, Running:
		d.atEOS = false
		d.lastKnownPositionMs = timeMs
		if d.state == Running {
			d.listener.OnPaused()
		}
	default:
		d.mu.Unlock()
		return playerrors.New(playerrors.StatusInvalidOperation, "driver.seekTo", nil)
	}
	d.mu.Unlock()
	return d.eng.SeekTo(timeMs*1000, mode, needNotify)
}

// GetCurrentPosition implements §6 getCurrentPosition: the cached position
// whenever the Driver is not Running (avoiding a round-trip that could race
// with an in-flight seek), otherwise a round-trip query falling back to the
// cache on error.
func (d *Driver) GetCurrentPosition() (int64, error) {
	d.mu.Lock()
	if d.state != Running {
		pos := d.lastKnownPositionMs
		d.mu.Unlock()
		return pos, nil
	}
	d.mu.Unlock()

	posUs, err := d.eng.GetCurrentPosition()
	if err != nil {
		d.mu.Lock()
		pos := d.lastKnownPositionMs
		d.mu.Unlock()
		return pos, nil
	}
	posMs := roundUsToMs(posUs)
	d.mu.Lock()
	d.lastKnownPositionMs = posMs
	d.mu.Unlock()
	return posMs, nil
}

// GetDuration implements §6 getDuration.
func (d *Driver) GetDuration() (int64, error) {
	durationUs, err := d.eng.GetDuration()
	if err != nil {
		return 0, err
	}
	return roundUsToMs(durationUs), nil
}

// IsPlaying implements §6 isPlaying = state == Running ∧ ¬atEOS.
func (d *Driver) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == Running && !d.atEOS
}

// Release implements §6 release: terminal per DESIGN.md's resolution of
// the open question (not a Resetting synonym — once released, the Driver
// is unusable and Reset completion does not return it to any prior state).
func (d *Driver) Release() error {
	d.mu.Lock()
	d.state = Resetting
	d.pendingOp = "reset"
	d.mu.Unlock()

	if err := d.eng.Reset(); err != nil {
		return err
	}

	d.mu.Lock()
	// OnResetComplete clears pendingOp; only then is it safe to stop the
	// engine's Looper, since Stop() does not drain queued messages (it
	// simply flips the running flag, see looper.Looper.Stop).
	_ = d.waitForLocked(5*time.Second, func() bool { return d.pendingOp != "reset" })
	d.mu.Unlock()

	d.eng.Stop()
	d.clk.Stop()
	return nil
}

func roundUsToMs(us int64) int64 {
	return (us + 500) / 1000
}

var _ engine.ClientListener = (*Driver)(nil)
