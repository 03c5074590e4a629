package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hpcplayer/clock"
	"hpcplayer/config"
	"hpcplayer/logging"
	"hpcplayer/render"
	"hpcplayer/source"
)

type fakeSource struct {
	mu       sync.Mutex
	listener source.Listener

	videoQueue *source.PacketQueue
	audioQueue *source.PacketQueue

	formats    map[source.TrackType]source.Format
	durationUs int64

	seeks []int64
}

func newFakeSource(listener source.Listener) *fakeSource {
	return &fakeSource{
		listener:   listener,
		videoQueue: source.NewPacketQueue(8),
		audioQueue: source.NewPacketQueue(8),
		formats: map[source.TrackType]source.Format{
			source.TrackVideo: {Type: source.TrackVideo, Width: 640, Height: 480},
		},
		durationUs: 10_000_000,
	}
}

func (s *fakeSource) PrepareAsync(ctx context.Context) error {
	go func() {
		var formats []source.Format
		s.mu.Lock()
		for _, f := range s.formats {
			formats = append(formats, f)
		}
		s.mu.Unlock()
		s.listener.OnSourcePrepared(formats, s.durationUs)
	}()
	return nil
}

func (s *fakeSource) Start() error   { return nil }
func (s *fakeSource) Stop() error    { return nil }
func (s *fakeSource) Pause() error   { return nil }
func (s *fakeSource) Resume() error  { return nil }
func (s *fakeSource) Disconnect() error { return nil }

func (s *fakeSource) SeekTo(mediaTimeUs int64, mode source.SeekMode) error {
	s.mu.Lock()
	s.seeks = append(s.seeks, mediaTimeUs)
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) GetFormat(track source.TrackType) (source.Format, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.formats[track]
	return f, ok
}

func (s *fakeSource) GetDurationUs() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationUs, nil
}

func (s *fakeSource) GetTrackCount() int { return 1 }

func (s *fakeSource) Queue(track source.TrackType) *source.PacketQueue {
	if track == source.TrackVideo {
		return s.videoQueue
	}
	return s.audioQueue
}

var _ source.Source = (*fakeSource)(nil)

type fakeClientListener struct {
	mu           sync.Mutex
	prepared     chan int64
	started      chan struct{}
	playbackDone chan struct{}
	seekComplete chan struct{}
	errors       []error
	infos        []string
	videoSizes   [][2]int
}

func newFakeClientListener() *fakeClientListener {
	return &fakeClientListener{
		prepared:     make(chan int64, 1),
		started:      make(chan struct{}, 1),
		playbackDone: make(chan struct{}, 1),
		seekComplete: make(chan struct{}, 1),
	}
}

func (l *fakeClientListener) OnPrepared(durationUs int64) {
	select {
	case l.prepared <- durationUs:
	default:
	}
}
func (l *fakeClientListener) OnPlaybackComplete() {
	select {
	case l.playbackDone <- struct{}{}:
	default:
	}
}
func (l *fakeClientListener) OnBufferingUpdate(pct int) {}
func (l *fakeClientListener) OnSeekComplete() {
	select {
	case l.seekComplete <- struct{}{}:
	default:
	}
}
func (l *fakeClientListener) OnSetVideoSize(w, h int) {
	l.mu.Lock()
	l.videoSizes = append(l.videoSizes, [2]int{w, h})
	l.mu.Unlock()
}
func (l *fakeClientListener) OnStarted() {
	select {
	case l.started <- struct{}{}:
	default:
	}
}
func (l *fakeClientListener) OnPausedNotify()  {}
func (l *fakeClientListener) OnStoppedNotify() {}
func (l *fakeClientListener) OnSkipped()       {}
func (l *fakeClientListener) OnNotifyTime(mediaTimeUs int64) {}
func (l *fakeClientListener) OnError(op string, err error) {
	l.mu.Lock()
	l.errors = append(l.errors, err)
	l.mu.Unlock()
}
func (l *fakeClientListener) OnInfo(kind string, detail error) {
	l.mu.Lock()
	l.infos = append(l.infos, kind)
	l.mu.Unlock()
}
func (l *fakeClientListener) OnTimeDiscontinuity(anchorMediaUs, anchorRealUs int64, rate float64) {}
func (l *fakeClientListener) OnResetComplete()                                                    {}

var _ ClientListener = (*fakeClientListener)(nil)

func newTestEngine(t *testing.T) (*Engine, *fakeClientListener, *fakeSource) {
	t.Helper()
	var fs *fakeSource
	listener := newFakeClientListener()
	cfg := config.Default()
	cfg.SourceRescanRetryInterval = 5 * time.Millisecond
	cfg.DurationPollInterval = time.Hour // keep tests quiet

	clk := clock.New(cfg.ClockFluctuationThreshold)
	go clk.Run()
	t.Cleanup(clk.Stop)

	factory := func(url string, cfg config.Config, log *logging.Logger, l source.Listener) source.Source {
		fs = newFakeSource(l)
		return fs
	}

	e := New(cfg, nil, listener, clk, factory)
	go e.Run()
	t.Cleanup(e.Stop)

	if err := e.SetDataSource("file:fake.mp4"); err != nil {
		t.Fatalf("SetDataSource: %v", err)
	}
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	select {
	case d := <-listener.prepared:
		if d != 10_000_000 {
			t.Fatalf("unexpected duration %d", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnPrepared")
	}

	return e, listener, fs
}

func TestSetDataSourceAndPrepareReportsDuration(t *testing.T) {
	e, _, _ := newTestEngine(t)
	d, err := e.GetDuration()
	if err != nil {
		t.Fatalf("GetDuration: %v", err)
	}
	if d != 10_000_000 {
		t.Fatalf("GetDuration() = %d, want 10000000", d)
	}
}

func TestStartScansSourcesAndReportsVideoSize(t *testing.T) {
	e, listener, _ := newTestEngine(t)
	if err := e.SetSurface(&fakeVideoSinkForEngine{}); err != nil {
		t.Fatalf("SetSurface: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		listener.mu.Lock()
		n := len(listener.videoSizes)
		listener.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for OnSetVideoSize")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestGetCurrentPositionBeforeStartIsZero(t *testing.T) {
	e, _, _ := newTestEngine(t)
	pos, err := e.GetCurrentPosition()
	if err != nil {
		t.Fatalf("GetCurrentPosition: %v", err)
	}
	if pos != 0 {
		t.Fatalf("GetCurrentPosition() = %d, want 0", pos)
	}
}

func TestSeekBeforeStartIsPreviewAndNotifiesSeekComplete(t *testing.T) {
	e, listener, _ := newTestEngine(t)
	if err := e.SeekTo(5000, source.SeekPreviousSync, true); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}

	select {
	case <-listener.seekComplete:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnSeekComplete")
	}

	pos, err := e.GetCurrentPosition()
	if err != nil {
		t.Fatalf("GetCurrentPosition: %v", err)
	}
	if pos != 5000 {
		t.Fatalf("GetCurrentPosition() = %d, want 5000", pos)
	}
}

// TestSourceDecodeErrorDegradesWhenOtherTrackSurvives exercises the path a
// per-track demux/decode failure takes from source.Listener.OnDecodeError
// through to onDecoderError's existing degrade logic: one bad track reports
// Info and keeps the session alive as long as another decoder is present,
// only escalating to Error once every track has failed.
func TestSourceDecodeErrorDegradesWhenOtherTrackSurvives(t *testing.T) {
	e, listener, fs := newTestEngine(t)
	if err := e.SetSurface(&fakeVideoSinkForEngine{}); err != nil {
		t.Fatalf("SetSurface: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		listener.mu.Lock()
		n := len(listener.videoSizes)
		listener.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for video decoder to come up")
		case <-time.After(10 * time.Millisecond):
		}
	}

	fs.listener.OnDecodeError(source.TrackAudio, errFakeDecode)

	deadline = time.After(time.Second)
	for {
		listener.mu.Lock()
		infos := append([]string(nil), listener.infos...)
		errs := len(listener.errors)
		listener.mu.Unlock()
		if len(infos) > 0 {
			if infos[0] != "PlayAudioError" {
				t.Fatalf("infos[0] = %q, want PlayAudioError", infos[0])
			}
			if errs != 0 {
				t.Fatalf("expected no OnError while video survives, got %d", errs)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for OnInfo(PlayAudioError)")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Now the surviving track errors too: every track has failed, so the
	// degrade logic must escalate to a blanket OnError.
	fs.listener.OnDecodeError(source.TrackVideo, errFakeDecode)

	deadline = time.After(time.Second)
	for {
		listener.mu.Lock()
		errs := len(listener.errors)
		listener.mu.Unlock()
		if errs > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for OnError once all tracks failed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var errFakeDecode = fmt.Errorf("fake decode failure")

// fakeVideoSinkForEngine is a minimal render.VideoSink stand-in; engine
// tests only need SetSurface to accept something satisfying the interface.
type fakeVideoSinkForEngine struct{}

func (f *fakeVideoSinkForEngine) WriteFrame(rgba []byte) error { return nil }

var _ render.VideoSink = (*fakeVideoSinkForEngine)(nil)
