package driver

// This file implements engine.ClientListener: each method runs on the
// engine's own Looper goroutine, so every one of them takes d.mu before
// touching Driver state and broadcasts the condition variable afterwards,
// mirroring §4.H ("an engine completion callback records the result and
// signals").

func (d *Driver) OnPrepared(durationUs int64) {
	d.mu.Lock()
	d.durationMs = roundUsToMs(durationUs)
	if d.state == Preparing {
		d.state = Prepared
	} else if d.state == StoppedAndPreparing {
		d.state = StoppedAndPrepared
	}
	d.pendingOp = ""
	d.pendingErr = nil
	d.cond.Broadcast()
	d.mu.Unlock()
	d.listener.OnPrepared(d.durationMs)
}

func (d *Driver) OnPlaybackComplete() {
	d.mu.Lock()
	d.atEOS = true
	d.mu.Unlock()
	d.listener.OnPlaybackComplete()
}

func (d *Driver) OnBufferingUpdate(pct int) {
	d.listener.OnBufferingUpdate(pct)
}

func (d *Driver) OnSeekComplete() {
	d.listener.OnSeekComplete()
}

func (d *Driver) OnSetVideoSize(w, h int) {
	d.listener.OnSetVideoSize(w, h)
}

func (d *Driver) OnStarted() {
	d.listener.OnStarted()
}

func (d *Driver) OnPausedNotify() {
	d.listener.OnPaused()
}

func (d *Driver) OnStoppedNotify() {
	d.listener.OnStopped()
}

func (d *Driver) OnSkipped() {
	d.listener.OnSkipped()
}

func (d *Driver) OnNotifyTime(mediaTimeUs int64) {
	d.listener.OnNotifyTime(roundUsToMs(mediaTimeUs))
}

func (d *Driver) OnError(op string, err error) {
	d.mu.Lock()
	if d.pendingOp == "prepare" {
		d.pendingErr = err
		d.pendingOp = ""
		d.cond.Broadcast()
	}
	d.mu.Unlock()
	d.listener.OnError(op, err)
}

func (d *Driver) OnInfo(kind string, detail error) {
	d.listener.OnInfo(kind, detail)
}

func (d *Driver) OnTimeDiscontinuity(anchorMediaUs, anchorRealUs int64, rate float64) {
	d.listener.OnTimeDiscontinuity(anchorMediaUs, anchorRealUs, rate)
}

func (d *Driver) OnResetComplete() {
	d.mu.Lock()
	if d.pendingOp == "reset" {
		d.pendingOp = ""
	}
	d.cond.Broadcast()
	d.mu.Unlock()
}
