package decoder

import (
	"sync"
	"testing"
	"time"

	"hpcplayer/source"
)

type recordingListener struct {
	mu      sync.Mutex
	frames  []Frame
	flushed []source.TrackType
	done    chan struct{}
	want    int
}

func (l *recordingListener) OnFrameDecoded(f Frame) {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	n := len(l.frames)
	l.mu.Unlock()
	if l.done != nil && n == l.want {
		close(l.done)
	}
}

func (l *recordingListener) OnFlushComplete(track source.TrackType) {
	l.mu.Lock()
	l.flushed = append(l.flushed, track)
	l.mu.Unlock()
}

func (l *recordingListener) OnShutdownComplete(track source.TrackType) {}
func (l *recordingListener) OnDecoderError(track source.TrackType, err error) {}

func TestDecoderDeliversQueuedPacketsInOrder(t *testing.T) {
	q := source.NewPacketQueue(8)
	listener := &recordingListener{done: make(chan struct{}), want: 3}
	d := New(source.TrackVideo, q, listener, nil)
	go d.Run()
	defer d.Stop()

	for i := int64(1); i <= 3; i++ {
		if err := q.Push(source.Packet{Track: source.TrackVideo, PresentationUs: i * 1000}); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-listener.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frames")
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	for i, f := range listener.frames {
		want := int64(i+1) * 1000
		if f.PresentationUs != want {
			t.Fatalf("frame[%d].PresentationUs = %d, want %d", i, f.PresentationUs, want)
		}
	}
}

func TestSignalFlushClearsQueueAndReportsCompletion(t *testing.T) {
	q := source.NewPacketQueue(8)
	listener := &recordingListener{}
	d := New(source.TrackAudio, q, listener, nil)
	go d.Run()
	defer d.Stop()

	_ = q.Push(source.Packet{Track: source.TrackAudio, PresentationUs: 1})

	done := make(chan struct{})
	go func() {
		_ = d.SignalFlush()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SignalFlush did not return")
	}

	deadline := time.Now().Add(time.Second)
	for {
		listener.mu.Lock()
		n := len(listener.flushed)
		listener.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("flush completion never reported")
		}
		time.Sleep(time.Millisecond)
	}

	n, _ := q.Occupancy()
	if n != 0 {
		t.Fatalf("queue occupancy after flush = %d, want 0", n)
	}
}
