package source

import (
	"context"
	"sync"
	"time"

	"github.com/erparts/reisen"

	"hpcplayer/config"
	"hpcplayer/logging"
	"hpcplayer/looper"
	"hpcplayer/msg"
	"hpcplayer/playerrors"
)

// DefaultSource demuxes a local file via reisen (the same library the
// teacher's controllers decode with), routing packets into per-track
// PacketQueues on its own Looper. It generalizes
// videoWithAudioController.internalReadAudioFrame's "read packets until the
// next frame of interest" loop into a standalone pump that serves both
// tracks without the caller driving Read().
type DefaultSource struct {
	filename string
	cfg      config.Config
	log      *logging.Logger
	listener Listener

	media       *reisen.Media
	videoStream *reisen.VideoStream
	audioStream *reisen.AudioStream

	videoQueue *PacketQueue
	audioQueue *PacketQueue

	durationUs int64
	formats    []Format

	pump *looper.Looper

	mu      sync.Mutex
	running bool
	paused  bool
}

// NewDefaultSource creates a source for the given local media file. The
// listener is notified from the pump's goroutine; it must not block.
func NewDefaultSource(filename string, cfg config.Config, log *logging.Logger, listener Listener) *DefaultSource {
	if log == nil {
		log = logging.Nop()
	}
	s := &DefaultSource{
		filename: filename,
		cfg:      cfg,
		log:      log,
		listener: listener,
	}
	s.pump = looper.New("source-pump", looper.HandlerFunc(s.handle), log)
	return s
}

// PrepareAsync opens the container, probes both streams, and starts the
// internal Looper; OnSourcePrepared/OnSourceError report completion.
func (s *DefaultSource) PrepareAsync(ctx context.Context) error {
	go s.pump.Run()

	m := msg.New(whatOpen)
	return s.pump.Post(m)
}

func (s *DefaultSource) handle(m *msg.Message) {
	switch m.What {
	case whatOpen:
		s.doOpen()
	case whatPump:
		s.doPump()
	case whatSeek:
		target, _ := m.FindInt64("mediaTimeUs")
		s.doSeek(target)
	case whatStop:
		s.doStop()
	}
}

func (s *DefaultSource) doOpen() {
	media, err := reisen.NewMedia(s.filename)
	if err != nil {
		s.listener.OnSourceError(playerrors.New(playerrors.StatusInvalidFormat, "source.open", err))
		return
	}

	videoStreams := media.VideoStreams()
	audioStreams := media.AudioStreams()
	if len(videoStreams) == 0 {
		s.listener.OnSourceError(playerrors.New(playerrors.StatusInvalidFormat, "source.open", nil))
		return
	}

	s.media = media
	s.videoStream = videoStreams[0]

	frNum, frDenom := s.videoStream.FrameRate()
	videoDuration, err := s.videoStream.Duration()
	if err != nil {
		s.listener.OnSourceError(playerrors.New(playerrors.StatusUnknownError, "source.open", err))
		return
	}
	duration := videoDuration

	formats := []Format{{
		Type:         TrackVideo,
		Width:        s.videoStream.Width(),
		Height:       s.videoStream.Height(),
		FrameRateNum: frNum,
		FrameRateDen: frDenom,
		MimeType:     "video/h264",
	}}
	s.videoQueue = NewPacketQueue(queueCapacity(s.cfg))

	if len(audioStreams) > 0 {
		s.audioStream = audioStreams[0]
		audioDuration, err := s.audioStream.Duration()
		if err != nil {
			s.listener.OnSourceError(playerrors.New(playerrors.StatusUnknownError, "source.open", err))
			return
		}
		if audioDuration > duration {
			duration = audioDuration
		}
		formats = append(formats, Format{
			Type:       TrackAudio,
			SampleRate: s.audioStream.SampleRate(),
			MimeType:   "audio/pcm",
		})
		s.audioQueue = NewPacketQueue(queueCapacity(s.cfg))
	}

	s.formats = formats
	s.durationUs = duration.Microseconds()

	if err := media.OpenDecode(); err != nil {
		s.listener.OnSourceError(playerrors.New(playerrors.StatusUnknownError, "source.open", err))
		return
	}
	if err := s.videoStream.Open(); err != nil {
		s.listener.OnSourceError(playerrors.New(playerrors.StatusUnknownError, "source.open", err))
		return
	}
	if s.audioStream != nil {
		if err := s.audioStream.Open(); err != nil {
			s.listener.OnSourceError(playerrors.New(playerrors.StatusUnknownError, "source.open", err))
			return
		}
	}

	s.listener.OnSourcePrepared(formats, s.durationUs)
}

// queueCapacity sizes a track's PacketQueue. It returns a fixed 64 packets;
// cfg, including its watermark fields, does not affect the size.
func queueCapacity(cfg config.Config) int {
	const base = 64
	return base
}

// doPump reads one packet and routes it to the matching track queue, then
// re-posts itself to keep draining while running and not paused.
func (s *DefaultSource) doPump() {
	s.mu.Lock()
	running, paused := s.running, s.paused
	s.mu.Unlock()
	if !running || paused {
		return
	}

	packet, found, err := s.media.ReadPacket()
	if err != nil {
		s.listener.OnSourceError(playerrors.New(playerrors.StatusUnknownError, "source.pump", err))
		return
	}
	if !found {
		if s.videoQueue != nil {
			s.videoQueue.SignalEOS()
			s.listener.OnEndOfStream(TrackVideo)
		}
		if s.audioQueue != nil {
			s.audioQueue.SignalEOS()
			s.listener.OnEndOfStream(TrackAudio)
		}
		return
	}

	switch packet.Type() {
	case reisen.StreamVideo:
		if s.videoStream != nil && packet.StreamIndex() == s.videoStream.Index() {
			frame, ok, err := s.videoStream.ReadVideoFrame()
			if err != nil {
				s.listener.OnDecodeError(TrackVideo, playerrors.New(playerrors.StatusUnknownError, "source.pump.video", err))
				break
			}
			if ok && frame != nil {
				presOffset, err := frame.PresentationOffset()
				if err == nil {
					s.pushVideoFrame(presOffset, frame)
				}
			}
		}
	case reisen.StreamAudio:
		if s.audioStream != nil && packet.StreamIndex() == s.audioStream.Index() {
			frame, ok, err := s.audioStream.ReadAudioFrame()
			if err != nil {
				s.listener.OnDecodeError(TrackAudio, playerrors.New(playerrors.StatusUnknownError, "source.pump.audio", err))
				break
			}
			if ok && frame != nil {
				presOffset, err := frame.PresentationOffset()
				if err == nil {
					_ = s.audioQueue.Push(Packet{
						Track:          TrackAudio,
						Data:           frame.Data(),
						PresentationUs: presOffset.Microseconds(),
						KeyFrame:       true,
					})
					s.reportBuffering(TrackAudio)
				}
			}
		}
	}

	// A single track's decode failure never stops the pump: the container
	// itself is still readable, and the other track (if any) keeps going.
	_ = s.pump.Post(msg.New(whatPump))
}

func (s *DefaultSource) pushVideoFrame(presOffset time.Duration, frame *reisen.VideoFrame) {
	_ = s.videoQueue.Push(Packet{
		Track:          TrackVideo,
		Data:           frame.Data(),
		PresentationUs: presOffset.Microseconds(),
		KeyFrame:       true,
	})
	s.reportBuffering(TrackVideo)
}

func (s *DefaultSource) reportBuffering(track TrackType) {
	q := s.queueFor(track)
	if q == nil {
		return
	}
	n, capacity := q.Occupancy()
	if capacity == 0 {
		return
	}
	s.listener.OnBufferingUpdate(BufferingUpdate{Track: track, Percent: n * 100 / capacity})
}

func (s *DefaultSource) queueFor(track TrackType) *PacketQueue {
	switch track {
	case TrackVideo:
		return s.videoQueue
	case TrackAudio:
		return s.audioQueue
	default:
		return nil
	}
}

func (s *DefaultSource) doSeek(targetUs int64) {
	target := time.Duration(targetUs) * time.Microsecond
	if s.videoStream != nil {
		_ = s.videoStream.Rewind(target)
	}
	if s.audioStream != nil {
		_ = s.audioStream.Rewind(target)
	}
	if s.videoQueue != nil {
		s.videoQueue.Clear()
		s.videoQueue.SignalDiscontinuity()
	}
	if s.audioQueue != nil {
		s.audioQueue.Clear()
		s.audioQueue.SignalDiscontinuity()
	}
}

func (s *DefaultSource) doStop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if s.videoQueue != nil {
		s.videoQueue.Close()
	}
	if s.audioQueue != nil {
		s.audioQueue.Close()
	}
	if s.media != nil {
		_ = s.media.CloseDecode()
	}
}

func (s *DefaultSource) Start() error {
	s.mu.Lock()
	s.running, s.paused = true, false
	s.mu.Unlock()
	return s.pump.Post(msg.New(whatPump))
}

func (s *DefaultSource) Stop() error {
	return s.pump.Post(msg.New(whatStop))
}

func (s *DefaultSource) Pause() error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return nil
}

func (s *DefaultSource) Resume() error {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	return s.pump.Post(msg.New(whatPump))
}

func (s *DefaultSource) Disconnect() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.pump.Stop()
	return nil
}

func (s *DefaultSource) SeekTo(mediaTimeUs int64, mode SeekMode) error {
	return s.pump.Post(msg.New(whatSeek).SetInt64("mediaTimeUs", mediaTimeUs))
}

func (s *DefaultSource) GetFormat(track TrackType) (Format, bool) {
	for _, f := range s.formats {
		if f.Type == track {
			return f, true
		}
	}
	return Format{}, false
}

func (s *DefaultSource) GetDurationUs() (int64, error) {
	if s.durationUs == 0 {
		return 0, playerrors.New(playerrors.StatusNoInit, "source.getDuration", nil)
	}
	return s.durationUs, nil
}

func (s *DefaultSource) GetTrackCount() int { return len(s.formats) }

func (s *DefaultSource) Queue(track TrackType) *PacketQueue {
	return s.queueFor(track)
}

var _ Source = (*DefaultSource)(nil)
