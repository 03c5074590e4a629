package engine

import (
	"context"
	"time"

	"hpcplayer/decoder"
	"hpcplayer/msg"
	"hpcplayer/playerrors"
	"hpcplayer/render"
	"hpcplayer/source"
)

// doSetDataSource constructs the Source (§4.G "Set data source") and stores
// it under the dedicated mutex; the source's own background reader also
// touches these fields, per §5.
func (e *Engine) doSetDataSource(url string) {
	e.mu.Lock()
	if e.src != nil {
		_ = e.src.Disconnect()
	}
	src := e.sourceFactory(url, e.cfg, e.log, sourceListenerAdapter{e})
	e.src = src
	e.prepared = false
	e.mu.Unlock()
}

// doPrepare forwards to the Source; completion arrives asynchronously as
// whatSourcePrepared/whatSourceError (§4.G "Prepare").
func (e *Engine) doPrepare() {
	e.mu.Lock()
	src := e.src
	e.mu.Unlock()
	if src == nil {
		e.listener.OnError("engine.prepare", playerrors.New(playerrors.StatusInvalidOperation, "engine.prepare", nil))
		return
	}
	if err := src.PrepareAsync(context.Background()); err != nil {
		e.listener.OnError("engine.prepare", err)
	}
}

func (e *Engine) onSourcePrepared(m *msg.Message) {
	v, _ := m.TakeObject("formats")
	formats, _ := v.([]source.Format)
	durationUs, _ := m.FindInt64("durationUs")

	for _, f := range formats {
		e.formats[f.Type] = f
	}
	e.durationUs = durationUs
	e.prepared = true
	e.listener.OnPrepared(durationUs)

	if e.cfg.DurationPollInterval > 0 {
		_ = e.loop.PostDelayed(msg.New(whatDurationPoll), e.cfg.DurationPollInterval)
	}
}

func (e *Engine) onSourceError(err error) {
	e.listener.OnError("source", err)
}

func (e *Engine) onSourceEOS(track source.TrackType) {
	e.mu.Lock()
	r := e.renderer
	e.mu.Unlock()
	if r != nil {
		_ = r.QueueEOS(track)
	}
}

// doStart implements §4.G "Start": resume an already-started session, or
// bring up the renderer and scan for decoders on a fresh start.
func (e *Engine) doStart() {
	if e.started && !e.pausedForBuffering {
		e.onResume()
		return
	}
	e.started = true
	e.paused = false
	e.pausedByClient = false
	e.scanSources()
}

func (e *Engine) onResume() {
	e.resumeDecoders(false)
	e.mu.Lock()
	r := e.renderer
	e.mu.Unlock()
	if r != nil {
		_ = r.Resume()
	}
	e.paused = false
	e.pausedByClient = false
	_ = e.clock.UpdateAnchor(e.lastKnownPositionUs, time.Now().UnixMicro(), -1)
	e.startPlaybackTimer()
}

func (e *Engine) doPause() {
	e.mu.Lock()
	r := e.renderer
	e.mu.Unlock()
	if r != nil {
		_ = r.Pause()
	}
	e.lastKnownPositionUs = e.computePosition()
	e.paused = true
	e.pausedByClient = true
	e.updatePlaybackTimer(true, "pause")
	e.listener.OnPausedNotify()
}

// doStop flushes and shuts both decoders down (without a full Reset, so a
// subsequent Prepare can reuse the same Source — §4.H StoppedAndPreparing).
func (e *Engine) doStop() {
	e.started = false
	e.updatePlaybackTimer(true, "stop")
	e.enqueue(DeferredAction{Kind: ActionFlushDecoders, FlushAudio: true, ShutdownAudio: true, FlushVideo: true, ShutdownVideo: true})
	e.listener.OnStoppedNotify()
}

// doSeek implements §4.G "Seek": a preview seek before start, or the
// flush -> source-seek -> resume deferred pipeline once started.
func (e *Engine) doSeek(timeUs int64, mode source.SeekMode, needNotify bool) {
	e.atEOS = false
	if !e.started {
		e.started = true
		e.scanSources()
		e.paused = true
		e.pausedByClient = true
		e.lastKnownPositionUs = timeUs
		if needNotify {
			e.listener.OnSeekComplete()
		}
		return
	}

	e.enqueue(DeferredAction{Kind: ActionFlushDecoders, FlushAudio: true, FlushVideo: true})
	e.enqueue(DeferredAction{Kind: ActionSeek, SeekTimeUs: timeUs, SeekMode: mode, NeedNotify: needNotify})
	e.enqueue(DeferredAction{Kind: ActionResumeDecoders})
}

// doSetSurface implements §4.G "Surface change": apply immediately when no
// session is running, or when there is no video decoder yet to hand off;
// otherwise run the flush-swap-seek-rescan-resume deferred pipeline.
func (e *Engine) doSetSurface(sink render.VideoSink) {
	e.mu.Lock()
	started := e.started
	hasVideoDecoder := e.videoDecoder != nil
	srcSet := e.src != nil
	e.mu.Unlock()

	if !started || !srcSet || !hasVideoDecoder {
		e.mu.Lock()
		e.videoSink = sink
		e.mu.Unlock()
		return
	}

	e.enqueue(DeferredAction{Kind: ActionFlushDecoders, FlushAudio: true, FlushVideo: true, ShutdownVideo: true})
	e.enqueue(DeferredAction{Kind: ActionSetSurface, Surface: sink})
	e.enqueue(DeferredAction{Kind: ActionSeek, SeekTimeUs: e.lastKnownPositionUs, SeekMode: source.SeekClosest})
	e.enqueue(DeferredAction{Kind: ActionScanSources})
	e.enqueue(DeferredAction{Kind: ActionResumeDecoders})
}

// doConfigPlayback implements §4.G "Rate control": zero speed is a pause
// preserving the non-paused rate for the next resume; nonzero speed
// propagates to clock and renderer and resumes/starts as appropriate.
func (e *Engine) doConfigPlayback(rate float64) {
	e.mu.Lock()
	r := e.renderer
	e.mu.Unlock()
	if r != nil {
		settings := r.GetPlaybackSettings()
		settings.Rate = rate
		_ = r.SetPlaybackSettings(settings)
	}

	if rate == 0 {
		e.nonPausedRate = e.currentRate()
		_ = e.clock.SetPlaybackRate(0)
		e.doPause()
		return
	}

	e.nonPausedRate = rate
	_ = e.clock.SetPlaybackRate(rate)
	if e.started {
		e.onResume()
	} else if e.prepared {
		e.doStart()
	}
}

func (e *Engine) currentRate() float64 {
	if e.nonPausedRate == 0 {
		return 1.0
	}
	return e.nonPausedRate
}

// doReset implements §4.G "Reset".
func (e *Engine) doReset() {
	e.resetting = true
	e.updatePlaybackTimer(true, "reset")
	e.updateRebufferingTimer(true, "reset")
	e.enqueue(DeferredAction{Kind: ActionFlushDecoders, FlushAudio: true, ShutdownAudio: true, FlushVideo: true, ShutdownVideo: true})
	e.enqueue(DeferredAction{Kind: ActionReset})
}

// computePosition returns the cached position while paused (§4.H
// "getCurrentPosition"), else queries the media clock.
func (e *Engine) computePosition() int64 {
	if e.paused {
		return e.lastKnownPositionUs
	}
	pos, err := e.clock.GetMediaTime(time.Now().UnixMicro(), false)
	if err != nil {
		return e.lastKnownPositionUs
	}
	e.lastKnownPositionUs = pos
	return pos
}

// onDecoderFrame forwards a decoded frame to the renderer unless the
// track is currently flushing.
func (e *Engine) onDecoderFrame(m *msg.Message) {
	v, ok := m.TakeObject("frame")
	if !ok {
		return
	}
	f, ok := v.(decoder.Frame)
	if !ok {
		return
	}
	status := e.flushingAudio
	if f.Track == source.TrackVideo {
		status = e.flushingVideo
	}
	if status != FlushNone {
		return
	}

	e.mu.Lock()
	r := e.renderer
	e.mu.Unlock()
	if r != nil {
		_ = r.QueueFrame(f)
	}
}

func (e *Engine) decoderFor(track source.TrackType) *decoder.Decoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if track == source.TrackVideo {
		return e.videoDecoder
	}
	return e.audioDecoder
}

func (e *Engine) setFlushingStatus(track source.TrackType, status FlushStatus) {
	if track == source.TrackVideo {
		e.flushingVideo = status
	} else {
		e.flushingAudio = status
	}
}

func (e *Engine) flushingStatus(track source.TrackType) FlushStatus {
	if track == source.TrackVideo {
		return e.flushingVideo
	}
	return e.flushingAudio
}

// onDecoderFlushComplete implements the Flushing -> FlushCompleted
// transition of §4.E's state table, chaining into a shutdown when the
// in-flight deferred action asked for one.
func (e *Engine) onDecoderFlushComplete(track source.TrackType) {
	if e.flushingStatus(track) == FlushingDecoderShutdown {
		e.setFlushingStatus(track, ShuttingDownDecoder)
		if d := e.decoderFor(track); d != nil {
			_ = d.InitiateShutdown()
		}
		return
	}
	e.markDecoderFlushDone(track)
	e.finishFlushIfPossible(track)
}

func (e *Engine) onDecoderShutdownComplete(track source.TrackType) {
	e.markDecoderFlushDone(track)
	e.setFlushingStatus(track, ShutDown)
	e.mu.Lock()
	if track == source.TrackVideo {
		e.videoDecoder = nil
	} else {
		e.audioDecoder = nil
	}
	e.mu.Unlock()
	e.finishFlushIfPossible(track)
}

func (e *Engine) onDecoderError(track source.TrackType, err error) {
	if e.flushingStatus(track) == FlushNone {
		e.setFlushingStatus(track, FlushingDecoderShutdown)
		if d := e.decoderFor(track); d != nil {
			_ = d.SignalFlush()
		}
	}

	other := source.TrackAudio
	if track == source.TrackAudio {
		other = source.TrackVideo
	}
	otherPresent := e.decoderFor(other) != nil

	if e.trackErrored == nil {
		e.trackErrored = make(map[source.TrackType]bool, 2)
	}
	e.trackErrored[track] = true

	if (e.trackErrored[source.TrackAudio] && e.trackErrored[source.TrackVideo]) || !otherPresent {
		e.listener.OnError("decoder."+track.String(), err)
		return
	}

	kind := "PlayAudioError"
	if track == source.TrackVideo {
		kind = "PlayVideoError"
	}
	e.listener.OnInfo(kind, err)
}

func (e *Engine) markDecoderFlushDone(track source.TrackType) {
	if track == source.TrackVideo {
		e.videoFlushDecoderDone = true
	} else {
		e.audioFlushDecoderDone = true
	}
}

func (e *Engine) markRendererFlushDone(track source.TrackType) {
	if track == source.TrackVideo {
		e.videoFlushRendererDone = true
	} else {
		e.audioFlushRendererDone = true
	}
}

// finishFlushIfPossible resets a track's flush status back to None once
// both the decoder and renderer halves report completion, then drains any
// deferred actions that were gated behind it (§4.G "FlushCompleted or
// ShutdownCompleted ... finishFlushIfPossible").
func (e *Engine) finishFlushIfPossible(track source.TrackType) {
	var decoderDone, rendererDone bool
	if track == source.TrackVideo {
		decoderDone, rendererDone = e.videoFlushDecoderDone, e.videoFlushRendererDone
	} else {
		decoderDone, rendererDone = e.audioFlushDecoderDone, e.audioFlushRendererDone
	}
	if !decoderDone || !rendererDone {
		return
	}
	e.setFlushingStatus(track, FlushNone)
	e.processDeferredQueue()
}

func (e *Engine) onRendererEOS(track source.TrackType) {
	if e.trackAtEOS == nil {
		e.trackAtEOS = make(map[source.TrackType]bool, 2)
	}
	e.trackAtEOS[track] = true
	e.checkPlaybackComplete()
}

func (e *Engine) checkPlaybackComplete() {
	videoDone := e.videoDecoder == nil || e.trackAtEOS[source.TrackVideo]
	audioDone := e.audioDecoder == nil || e.trackAtEOS[source.TrackAudio]
	if videoDone && audioDone && !e.atEOS {
		e.atEOS = true
		e.updatePlaybackTimer(true, "eos")
		e.listener.OnPlaybackComplete()
	}
}

func (e *Engine) onRendererFlushComplete(track source.TrackType) {
	e.markRendererFlushDone(track)
	e.finishFlushIfPossible(track)
}

func (e *Engine) onAudioTearDown(reason string) {
	if reason == "timeout" && !e.pausedForBuffering {
		return
	}
	e.listener.OnInfo("AudioTearDown", nil)
}

// scanSources implements §4.G "Scan sources": instantiate missing decoders
// for formats the source already advertises, gated by scanGeneration so a
// stale retry never clobbers a decoder created in the meantime.
func (e *Engine) scanSources() {
	e.mu.Lock()
	src := e.src
	hasVideoSink := e.videoSink != nil
	needVideo := e.videoDecoder == nil
	needAudio := e.audioDecoder == nil
	e.mu.Unlock()

	if src == nil {
		return
	}

	createdAny := false
	if hasVideoSink && needVideo {
		if format, ok := src.GetFormat(source.TrackVideo); ok {
			e.createDecoder(source.TrackVideo, format)
			createdAny = true
		} else {
			e.scheduleScanRetry()
		}
	}
	if needAudio {
		if format, ok := src.GetFormat(source.TrackAudio); ok {
			if format.SampleRate > 0 {
				if err := render.EnsureAudioContext(format.SampleRate); err != nil {
					e.log.Debugf("engine: audio context unavailable: %v", err)
				}
			}
			e.createDecoder(source.TrackAudio, format)
			createdAny = true
		}
	}

	if createdAny {
		e.ensureRenderer()
	}
}

func (e *Engine) scheduleScanRetry() {
	e.scanGeneration++
	gen := e.scanGeneration
	_ = e.loop.PostDelayed(msg.New(whatScanSources).SetInt64("generation", int64(gen)), e.cfg.SourceRescanRetryInterval)
}

func (e *Engine) createDecoder(track source.TrackType, format source.Format) {
	e.mu.Lock()
	src := e.src
	e.mu.Unlock()
	if src == nil {
		return
	}

	d := decoder.New(track, src.Queue(track), decoderListenerAdapter{e}, e.log)
	go d.Run()
	_ = d.SetParameters(decoder.Parameters{Format: format})
	_ = d.Start()

	e.mu.Lock()
	if track == source.TrackVideo {
		e.videoDecoder = d
	} else {
		e.audioDecoder = d
	}
	e.formats[track] = format
	e.mu.Unlock()

	if track == source.TrackVideo {
		e.listener.OnSetVideoSize(format.Width, format.Height)
	}
}

// ensureRenderer lazily creates the renderer once at least one decoder
// exists, pairing it with the configured video sink and a default
// ebiten-backed audio sink (falling back to video-only when no audio
// context is available, e.g. in headless tests).
func (e *Engine) ensureRenderer() {
	e.mu.Lock()
	if e.renderer != nil {
		e.mu.Unlock()
		return
	}
	videoSink := e.videoSink
	audioSink := e.audioSink
	e.mu.Unlock()

	if audioSink == nil {
		if sink, err := render.NewDefaultAudioSink(e.cfg.AudioPlaybackBufferSize); err == nil {
			audioSink = sink
		} else {
			e.log.Debugf("engine: no audio sink available: %v", err)
		}
	}

	r := render.NewDefaultRenderer(videoSink, audioSink, e.clock, rendererListenerAdapter{e}, e.log)
	go r.Run()

	e.mu.Lock()
	e.renderer = r
	e.audioSink = audioSink
	e.mu.Unlock()
}

func (e *Engine) pollDuration() {
	if !e.started || e.atEOS {
		return
	}
	e.mu.Lock()
	src := e.src
	e.mu.Unlock()
	if src != nil {
		if d, err := src.GetDurationUs(); err == nil && d > 0 {
			e.durationUs = d
		}
	}
	_ = e.loop.PostDelayed(msg.New(whatDurationPoll), e.cfg.DurationPollInterval)
}

func (e *Engine) startPlaybackTimer() { e.updatePlaybackTimer(false, "start") }

func (e *Engine) updatePlaybackTimer(stopping bool, where string) {
	e.playingTimeMu.Lock()
	defer e.playingTimeMu.Unlock()
	if stopping {
		if !e.playingStartedAt.IsZero() {
			e.playingTotal += time.Since(e.playingStartedAt)
		}
		e.playingStartedAt = time.Time{}
	} else {
		e.playingStartedAt = time.Now()
	}
	e.log.Debugf("playback timer (%s): total=%v", where, e.playingTotal)
}

func (e *Engine) updateRebufferingTimer(stopping bool, where string) {
	e.rebufferingMu.Lock()
	defer e.rebufferingMu.Unlock()
	if stopping {
		if !e.rebufferingSince.IsZero() {
			e.rebufferingTotal += time.Since(e.rebufferingSince)
		}
		e.rebufferingSince = time.Time{}
	} else {
		e.rebufferingSince = time.Now()
	}
	e.log.Debugf("rebuffering timer (%s): total=%v", where, e.rebufferingTotal)
}
