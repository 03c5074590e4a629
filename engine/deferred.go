package engine

import (
	"hpcplayer/render"
	"hpcplayer/source"
)

// DeferredActionKind tags one variant of the deferred-action queue (§3
// "Deferred Action Queue").
type DeferredActionKind int

const (
	ActionFlushDecoders DeferredActionKind = iota
	ActionSeek
	ActionSetSurface
	ActionResumeDecoders
	ActionScanSources
	ActionReset
)

// DeferredAction is the tagged union pushed onto Engine.deferred; only the
// fields relevant to Kind are populated.
type DeferredAction struct {
	Kind DeferredActionKind

	FlushAudio, FlushVideo       bool
	ShutdownAudio, ShutdownVideo bool

	SeekTimeUs int64
	SeekMode   source.SeekMode
	NeedNotify bool

	Surface render.VideoSink

	ResumeNotify bool
}

// enqueue appends action and attempts to drain immediately; draining is a
// no-op unless both flush statuses are already None (§3 invariant).
func (e *Engine) enqueue(a DeferredAction) {
	e.deferred = append(e.deferred, a)
	e.processDeferredQueue()
}

// processDeferredQueue drains the FIFO while both flushingAudio and
// flushingVideo are None (§4.G "Deferred-action processing"). Executing an
// action may itself set one of the flush statuses away from None (e.g. a
// flush action), which naturally halts further draining until the
// corresponding decoder/renderer completion notifications bring it back to
// None.
func (e *Engine) processDeferredQueue() {
	for len(e.deferred) > 0 && e.flushingAudio == FlushNone && e.flushingVideo == FlushNone {
		a := e.deferred[0]
		e.deferred = e.deferred[1:]
		e.executeDeferredAction(a)
	}
}

func (e *Engine) executeDeferredAction(a DeferredAction) {
	switch a.Kind {
	case ActionFlushDecoders:
		e.beginFlush(a.FlushAudio, a.ShutdownAudio, a.FlushVideo, a.ShutdownVideo)
	case ActionSeek:
		e.mu.Lock()
		src := e.src
		e.mu.Unlock()
		if src != nil {
			if err := src.SeekTo(a.SeekTimeUs, a.SeekMode); err != nil {
				e.listener.OnError("engine.seek", err)
			}
		}
		e.lastKnownPositionUs = a.SeekTimeUs
		if a.NeedNotify {
			e.listener.OnSeekComplete()
		}
	case ActionSetSurface:
		e.mu.Lock()
		e.videoSink = a.Surface
		e.mu.Unlock()
	case ActionResumeDecoders:
		e.resumeDecoders(a.ResumeNotify)
	case ActionScanSources:
		e.scanSources()
	case ActionReset:
		e.performReset()
	}
}

// beginFlush marks the requested tracks as flushing (or
// flushing-then-shutdown) and kicks off the decoder/renderer flush calls;
// finishFlushIfPossible brings the status back to None once both halves
// report completion.
func (e *Engine) beginFlush(flushAudio, shutdownAudio, flushVideo, shutdownVideo bool) {
	e.mu.Lock()
	ad, vd, r := e.audioDecoder, e.videoDecoder, e.renderer
	e.mu.Unlock()

	if flushAudio && ad != nil {
		e.flushingAudio = flushStatusFor(shutdownAudio)
		e.audioFlushDecoderDone = false
		e.audioFlushRendererDone = r == nil
		_ = ad.SignalFlush()
		if r != nil {
			_ = r.FlushSync(source.TrackAudio)
		}
	}
	if flushVideo && vd != nil {
		e.flushingVideo = flushStatusFor(shutdownVideo)
		e.videoFlushDecoderDone = false
		e.videoFlushRendererDone = r == nil
		_ = vd.SignalFlush()
		if r != nil {
			_ = r.FlushSync(source.TrackVideo)
		}
	}
}

func flushStatusFor(shutdown bool) FlushStatus {
	if shutdown {
		return FlushingDecoderShutdown
	}
	return FlushingDecoder
}

func (e *Engine) resumeDecoders(notify bool) {
	e.mu.Lock()
	ad, vd := e.audioDecoder, e.videoDecoder
	e.mu.Unlock()
	if ad != nil {
		_ = ad.SignalResume()
	}
	if vd != nil {
		_ = vd.SignalResume()
	}
	e.pausedForBuffering = false
	if notify {
		e.listener.OnSeekComplete()
	}
}
