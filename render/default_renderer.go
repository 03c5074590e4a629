package render

import (
	"time"

	"hpcplayer/decoder"
	"hpcplayer/logging"
	"hpcplayer/looper"
	"hpcplayer/msg"
	"hpcplayer/source"
)

const (
	whatQueueFrame int32 = iota + 1
	whatQueueEOS
	whatFlush
	whatPause
	whatResume
	whatSetPlaybackSettings
	whatSetSyncSettings
)

// DefaultRenderer is the Looper-driven implementation of Renderer (§4.F). It
// owns one VideoSink and one AudioSink and fans decoded frames from both
// tracks into them, firing Listener callbacks on first frame / EOS / flush,
// the way the teacher's controllers flip PlaybackState on first decode.
type DefaultRenderer struct {
	video VideoSink
	audio AudioSink
	clock ClockAnchor

	listener Listener
	log      *logging.Logger

	loop *looper.Looper

	settings    PlaybackSettings
	sync        SyncSettings
	pausedFlag  bool
	sawVideo    bool
	sawAnyMedia bool

	// needsAnchor is set on construction and after every flush; it tells
	// doQueueFrame that the next sample it actually presents should
	// re-anchor the media clock, instead of trusting the engine's one
	// wall-clock snapshot (§4.F "Anchor discipline").
	needsAnchor bool
}

// NewDefaultRenderer creates a renderer over the given sinks. audio may be
// nil for video-only playback (§4.E "mono audio is untested" notwithstanding,
// no-audio media is a first-class case per the original's videoOnlyController).
// clk may be nil, in which case the renderer never re-anchors and the engine's
// own wall-clock anchor is the only one in play.
func NewDefaultRenderer(video VideoSink, audioSink AudioSink, clk ClockAnchor, listener Listener, log *logging.Logger) *DefaultRenderer {
	if log == nil {
		log = logging.Nop()
	}
	r := &DefaultRenderer{
		video:       video,
		audio:       audioSink,
		clock:       clk,
		listener:    listener,
		log:         log,
		settings:    PlaybackSettings{Volume: 1.0, Rate: 1.0},
		needsAnchor: true,
	}
	r.loop = looper.New("renderer", looper.HandlerFunc(r.handle), log)
	return r
}

func (r *DefaultRenderer) Run() error              { return r.loop.Run() }
func (r *DefaultRenderer) Stop()                   { r.loop.Stop() }
func (r *DefaultRenderer) Name() string            { return r.loop.Name() }
func (r *DefaultRenderer) BumpGeneration() uint64   { return r.loop.BumpGeneration() }

func (r *DefaultRenderer) QueueFrame(f decoder.Frame) error {
	return r.loop.Post(msg.New(whatQueueFrame).SetObject("frame", f))
}

func (r *DefaultRenderer) QueueEOS(track source.TrackType) error {
	return r.loop.Post(msg.New(whatQueueEOS).SetInt64("track", int64(track)))
}

// FlushSync blocks until the flush has been applied on the renderer's own
// Looper, matching the original's synchronous flush-then-ack contract (§5
// "deferred actions" gate on flush completion).
func (r *DefaultRenderer) FlushSync(track source.TrackType) error {
	req := msg.New(whatFlush).SetInt64("track", int64(track))
	_, err := looper.AwaitResponse(r.loop, req, 5*time.Second)
	return err
}

func (r *DefaultRenderer) Pause() error  { return r.loop.Post(msg.New(whatPause)) }
func (r *DefaultRenderer) Resume() error { return r.loop.Post(msg.New(whatResume)) }

func (r *DefaultRenderer) SetPlaybackSettings(s PlaybackSettings) error {
	return r.loop.Post(msg.New(whatSetPlaybackSettings).SetObject("settings", s))
}

func (r *DefaultRenderer) GetPlaybackSettings() PlaybackSettings {
	reply, err := looper.AwaitResponse(r.loop, msg.New(whatSetPlaybackSettings), time.Second)
	if err != nil {
		return r.settings
	}
	v, ok := reply.TakeObject("settings")
	if !ok {
		return r.settings
	}
	s, _ := v.(PlaybackSettings)
	return s
}

func (r *DefaultRenderer) SetSyncSettings(s SyncSettings) error {
	return r.loop.Post(msg.New(whatSetSyncSettings).SetObject("sync", s))
}

func (r *DefaultRenderer) GetSyncSettings() SyncSettings {
	return r.sync
}

func (r *DefaultRenderer) handle(m *msg.Message) {
	switch m.What {
	case whatQueueFrame:
		r.doQueueFrame(m)
	case whatQueueEOS:
		track, _ := m.FindInt64("track")
		r.listener.OnEOS(source.TrackType(track))
	case whatFlush:
		track, _ := m.FindInt64("track")
		r.doFlush(source.TrackType(track))
		if m.ReplyToken != nil {
			m.ReplyToken.Reply(msg.New(0))
		}
	case whatPause:
		r.pausedFlag = true
		if r.audio != nil {
			r.audio.Pause()
		}
	case whatResume:
		r.pausedFlag = false
		if r.audio != nil {
			r.audio.Play()
		}
	case whatSetPlaybackSettings:
		if v, ok := m.TakeObject("settings"); ok {
			if s, ok := v.(PlaybackSettings); ok {
				r.settings = s
				r.applySettings()
			}
		}
		if m.ReplyToken != nil {
			m.ReplyToken.Reply(msg.New(0).SetObject("settings", r.settings))
		}
	case whatSetSyncSettings:
		if v, ok := m.TakeObject("sync"); ok {
			if s, ok := v.(SyncSettings); ok {
				r.sync = s
			}
		}
	}
}

func (r *DefaultRenderer) doQueueFrame(m *msg.Message) {
	v, ok := m.TakeObject("frame")
	if !ok {
		return
	}
	f, ok := v.(decoder.Frame)
	if !ok {
		return
	}

	if r.pausedFlag {
		return
	}

	switch f.Track {
	case source.TrackVideo:
		if err := r.video.WriteFrame(f.Data); err != nil {
			r.log.Errorf("render: video write failed: %v", err)
			return
		}
		if !r.sawVideo {
			r.sawVideo = true
			r.listener.OnVideoRenderingStart()
		}
	case source.TrackAudio:
		if r.audio != nil {
			if _, err := r.audio.Write(f.Data); err != nil {
				r.log.Errorf("render: audio write failed: %v", err)
				return
			}
		}
	}

	r.maybeAnchor(f)

	if !r.sawAnyMedia {
		r.sawAnyMedia = true
		r.listener.OnMediaRenderingStart()
	}
}

// maybeAnchor re-anchors the media clock from the sample that was just
// handed to a sink, once per flush/seek/construction. In an audio-led
// session (an audio sink exists) the anchor tracks the audio sink's own
// played-time cursor rather than the frame's presentation timestamp, since
// that cursor is what §6 calls the renderer's anchor source; a video-only
// session anchors directly off the video frame's timestamp.
func (r *DefaultRenderer) maybeAnchor(f decoder.Frame) {
	if r.clock == nil || !r.needsAnchor {
		return
	}
	if r.audio != nil {
		if f.Track != source.TrackAudio {
			return
		}
		_ = r.clock.UpdateAnchor(r.audio.GetPlayedTimeUs(), time.Now().UnixMicro(), -1)
	} else {
		if f.Track != source.TrackVideo {
			return
		}
		_ = r.clock.UpdateAnchor(f.PresentationUs, time.Now().UnixMicro(), -1)
	}
	r.needsAnchor = false
}

func (r *DefaultRenderer) doFlush(track source.TrackType) {
	switch track {
	case source.TrackVideo:
		_ = r.video.WriteFrame(nil)
	case source.TrackAudio:
		if r.audio != nil {
			r.audio.Pause()
		}
	}
	// A flush means whatever the clock was anchored to is about to be
	// discarded (a seek, typically); the next presented sample re-anchors.
	r.needsAnchor = true
	r.listener.OnFlushComplete(track)
}

func (r *DefaultRenderer) applySettings() {
	if r.audio == nil {
		return
	}
	if r.settings.Muted {
		r.audio.SetVolume(0)
	} else {
		r.audio.SetVolume(r.settings.Volume)
	}
}

var _ Renderer = (*DefaultRenderer)(nil)
