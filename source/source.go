// Package source defines the demuxing contract (§4.D): something that can be
// prepared, started, sought and disconnected, and that feeds decoders through
// per-track PacketQueues. DefaultSource wraps github.com/erparts/reisen,
// generalizing the demux/packet-routing loop found in the teacher's
// videoWithAudioController.internalReadAudioFrame into a standalone actor
// that serves both an audio and a video track independently.
package source

import (
	"context"
)

// TrackType identifies a demuxed elementary stream.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// SeekMode mirrors the original extractor's seek modes (§7 supplemented
// feature: the distilled spec only requires "seek", the original source
// distinguishes sync-frame-relative modes).
type SeekMode int

const (
	SeekPreviousSync SeekMode = iota
	SeekNextSync
	SeekClosestSync
	SeekClosest
	SeekFrameIndex
)

// Format describes the decodable properties of one track.
type Format struct {
	Type TrackType

	// video
	Width, Height int
	FrameRateNum  int
	FrameRateDen  int

	// audio
	SampleRate int
	Channels   int

	MimeType string
}

// BufferingUpdate reports queue occupancy as a percentage in [0, 100],
// matching MediaPlayer.OnBufferingUpdateListener in spirit (§7).
type BufferingUpdate struct {
	Track   TrackType
	Percent int
}

// Listener receives asynchronous source events. The engine implements this
// and is the only expected consumer.
type Listener interface {
	OnSourcePrepared(formats []Format, durationUs int64)
	OnSourceError(err error)
	OnBufferingUpdate(u BufferingUpdate)
	OnEndOfStream(track TrackType)

	// OnDecodeError reports a single track's frame-decode failure (a bad
	// packet, not a container-level failure) so the other track can keep
	// playing per §4.G "Decoder notifications" instead of the whole
	// session going down with it.
	OnDecodeError(track TrackType, err error)
}

// Source is the demuxer contract. Every method either posts to the source's
// own actor or is safe to call from any goroutine; implementations document
// which.
type Source interface {
	// PrepareAsync opens the media and begins demuxing; completion is
	// reported via Listener.OnSourcePrepared or OnSourceError.
	PrepareAsync(ctx context.Context) error

	Start() error
	Stop() error
	Pause() error
	Resume() error
	Disconnect() error

	SeekTo(mediaTimeUs int64, mode SeekMode) error

	GetFormat(track TrackType) (Format, bool)
	GetDurationUs() (int64, error)
	GetTrackCount() int

	// Queue returns the packet queue feeding the given track's decoder, or
	// nil if the track doesn't exist.
	Queue(track TrackType) *PacketQueue
}

// Packet is one demuxed access unit, queued for a decoder.
type Packet struct {
	Track          TrackType
	Data           []byte
	PresentationUs int64
	KeyFrame       bool
}

// wakeup message `what` tags used by DefaultSource's internal Looper.
const (
	whatOpen int32 = iota + 1
	whatPump
	whatSeek
	whatStop
)
