package engine

import (
	"hpcplayer/decoder"
	"hpcplayer/msg"
	"hpcplayer/render"
	"hpcplayer/source"
)

// sourceListenerAdapter implements source.Listener by posting every
// notification back onto the engine's own Looper, so Source's background
// reader goroutine never touches engine state directly (§5).
type sourceListenerAdapter struct{ e *Engine }

func (a sourceListenerAdapter) OnSourcePrepared(formats []source.Format, durationUs int64) {
	a.e.loop.Post(msg.New(whatSourcePrepared).SetObject("formats", formats).SetInt64("durationUs", durationUs))
}

func (a sourceListenerAdapter) OnSourceError(err error) {
	a.e.loop.Post(msg.New(whatSourceError).SetObject("err", err))
}

func (a sourceListenerAdapter) OnDecodeError(track source.TrackType, err error) {
	a.e.loop.Post(msg.New(whatSourceDecodeError).SetInt64("track", int64(track)).SetObject("err", err))
}

func (a sourceListenerAdapter) OnBufferingUpdate(u source.BufferingUpdate) {
	a.e.loop.Post(msg.New(whatSourceBuffering).SetInt64("pct", int64(u.Percent)))
}

func (a sourceListenerAdapter) OnEndOfStream(track source.TrackType) {
	a.e.loop.Post(msg.New(whatSourceEOS).SetInt64("track", int64(track)))
}

// decoderListenerAdapter implements decoder.Listener, one instance shared
// by both track decoders (the track is carried in every message, as in the
// teacher's shared-controller idiom).
type decoderListenerAdapter struct{ e *Engine }

func (a decoderListenerAdapter) OnFrameDecoded(f decoder.Frame) {
	a.e.loop.Post(msg.New(whatDecoderFrame).SetObject("frame", f))
}

func (a decoderListenerAdapter) OnFlushComplete(track source.TrackType) {
	a.e.loop.Post(msg.New(whatDecoderFlushComplete).SetInt64("track", int64(track)))
}

func (a decoderListenerAdapter) OnShutdownComplete(track source.TrackType) {
	a.e.loop.Post(msg.New(whatDecoderShutdownComplete).SetInt64("track", int64(track)))
}

func (a decoderListenerAdapter) OnDecoderError(track source.TrackType, err error) {
	a.e.loop.Post(msg.New(whatDecoderError).SetInt64("track", int64(track)).SetObject("err", err))
}

// rendererListenerAdapter implements render.Listener.
type rendererListenerAdapter struct{ e *Engine }

func (a rendererListenerAdapter) OnEOS(track source.TrackType) {
	a.e.loop.Post(msg.New(whatRendererEOS).SetInt64("track", int64(track)))
}

func (a rendererListenerAdapter) OnFlushComplete(track source.TrackType) {
	a.e.loop.Post(msg.New(whatRendererFlushComplete).SetInt64("track", int64(track)))
}

func (a rendererListenerAdapter) OnVideoRenderingStart() {
	a.e.loop.Post(msg.New(whatRendererVideoStart))
}

func (a rendererListenerAdapter) OnMediaRenderingStart() {
	a.e.loop.Post(msg.New(whatRendererMediaStart))
}

func (a rendererListenerAdapter) OnAudioTearDown(reason string) {
	a.e.loop.Post(msg.New(whatRendererAudioTeardown).SetString("reason", reason))
}

var _ source.Listener = sourceListenerAdapter{}
var _ decoder.Listener = decoderListenerAdapter{}
var _ render.Listener = rendererListenerAdapter{}
