// Package render implements the renderer contract (§4.F): the sink that
// consumes decoded Frames and turns them into actual video/audio output. It
// generalizes the teacher's copyFrame (ebiten.Image.WritePixels reuse) and
// the audio.Player-backed Read() loop from controller_yes_audio.go into a
// standalone actor shared by both track types, decoupled from any one
// videoController implementation.
package render

import (
	"hpcplayer/decoder"
	"hpcplayer/source"
)

// Listener receives renderer lifecycle events (§4.F).
type Listener interface {
	OnEOS(track source.TrackType)
	OnFlushComplete(track source.TrackType)
	OnVideoRenderingStart()
	OnMediaRenderingStart()
	OnAudioTearDown(reason string)
}

// PlaybackSettings controls renderer-side volume/rate/mute passthrough.
type PlaybackSettings struct {
	Volume float64
	Rate   float64
	Muted  bool
}

// SyncSettings controls how aggressively the renderer may drop frames to
// stay in sync, structurally mirroring the original's AVSyncSettings (§7).
type SyncSettings struct {
	MaxLatenessUs  int64
	MaxEarlinessUs int64
	FrameRateHz    float64
}

// AudioSink is the audio output contract. DefaultAudioSink wraps
// github.com/hajimehoshi/ebiten/v2/audio, following controller_yes_audio.go's
// pattern of an io.Reader-backed audio.Player pulling from a byte queue.
type AudioSink interface {
	Write(pcm []byte) (int, error)
	Play()
	Pause()
	Close() error
	GetPlayedTimeUs() int64
	SetVolume(v float64)
}

// VideoSink is the video output contract. DefaultVideoSink wraps an
// *ebiten.Image reused across frames via WritePixels, following
// Player.copyFrame's technique.
type VideoSink interface {
	WriteFrame(rgba []byte) error
}

// ClockAnchor is the subset of *clock.Clock the renderer needs to keep the
// media clock anchored to what is actually on screen/speakers rather than to
// the engine's own best guess (§4.F "Anchor discipline"). A narrow interface
// here avoids render importing the clock package for its full surface.
type ClockAnchor interface {
	UpdateAnchor(anchorMediaUs, anchorRealUs, maxMediaUs int64) error
}

// Renderer is the contract both decoders feed (§4.F).
type Renderer interface {
	QueueFrame(f decoder.Frame) error
	QueueEOS(track source.TrackType) error
	FlushSync(track source.TrackType) error
	Pause() error
	Resume() error
	SetPlaybackSettings(s PlaybackSettings) error
	GetPlaybackSettings() PlaybackSettings
	SetSyncSettings(s SyncSettings) error
	GetSyncSettings() SyncSettings
}
