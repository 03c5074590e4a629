// Package decoder implements the per-track decode actors (§4.E): each one
// owns a Looper, pulls Packets from its source.PacketQueue, and emits
// decoded Frames to a renderer. It generalizes the teacher's inline
// "read packet -> decode -> buffer" loop (videoWithAudioController's
// internalReadAudioFrame / videoOnlyController's internalReadVideoFrame)
// into a standalone, restartable actor shared by both track types.
package decoder

import (
	"sync"
	"sync/atomic"
	"time"

	"hpcplayer/logging"
	"hpcplayer/looper"
	"hpcplayer/msg"
	"hpcplayer/source"
)

// State is the decoder's lifecycle state (§4.E).
type State int

const (
	StateConfiguring State = iota
	StateRunning
	StateFlushing
	StateResuming
	StateShuttingDown
	StateError
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateResuming:
		return "resuming"
	case StateShuttingDown:
		return "shutting-down"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one decoded access unit handed to a Renderer.
type Frame struct {
	Track          source.TrackType
	Data           []byte
	PresentationUs int64
}

// Listener receives decoder lifecycle and data events. The engine
// implements this.
type Listener interface {
	OnFrameDecoded(f Frame)
	OnFlushComplete(track source.TrackType)
	OnShutdownComplete(track source.TrackType)
	OnDecoderError(track source.TrackType, err error)
}

const (
	whatSetParameters int32 = iota + 1
	whatSetRenderer
	whatStart
	whatPause
	whatSignalFlush
	whatSignalResume
	whatInitiateShutdown
	whatFrameReady
)

// Parameters configures a Decoder before it starts running.
type Parameters struct {
	Format source.Format
}

// Decoder is the per-track decode actor (§4.E). It is generic over track
// type: the demuxer already produced access-unit-aligned Packets (reisen
// does the actual codec decode on the source side in this Go rendition;
// see DESIGN.md for why the original's separate hardware-codec decoder
// stage collapses here), so Decoder's job is pacing, flushing and handing
// frames to the renderer in order.
type Decoder struct {
	track    source.TrackType
	queue    *source.PacketQueue
	listener Listener
	log      *logging.Logger

	loop *looper.Looper

	state      State
	params     Parameters
	generation atomic.Uint64

	pullOnce sync.Once
}

// New creates a Decoder for one track, reading from queue.
func New(track source.TrackType, queue *source.PacketQueue, listener Listener, log *logging.Logger) *Decoder {
	if log == nil {
		log = logging.Nop()
	}
	d := &Decoder{
		track:    track,
		queue:    queue,
		listener: listener,
		log:      log,
		state:    StateConfiguring,
	}
	d.loop = looper.New("decoder-"+track.String(), looper.HandlerFunc(d.handle), log)
	return d
}

func (d *Decoder) Run() error { return d.loop.Run() }

// Stop closes the packet queue (unblocking the puller goroutine, which
// would otherwise park forever in queue.Pop()) and then stops the Looper.
func (d *Decoder) Stop() {
	d.queue.Close()
	d.loop.Stop()
}

func (d *Decoder) Name() string { return d.loop.Name() }

func (d *Decoder) BumpGeneration() uint64 {
	d.loop.BumpGeneration()
	return d.generation.Add(1)
}

func (d *Decoder) SetParameters(p Parameters) error {
	return d.loop.Post(msg.New(whatSetParameters).SetObject("params", p))
}

func (d *Decoder) Start() error { return d.loop.Post(msg.New(whatStart)) }

// Pause is a synchronous request/reply: it returns once the decoder's
// Looper has handled the pause.
func (d *Decoder) Pause() error {
	_, err := looper.AwaitResponse(d.loop, msg.New(whatPause), time.Second)
	return err
}

// SignalFlush requests a flush; OnFlushComplete reports completion.
func (d *Decoder) SignalFlush() error { return d.loop.Post(msg.New(whatSignalFlush)) }

// SignalResume resumes dequeuing after a flush.
func (d *Decoder) SignalResume() error { return d.loop.Post(msg.New(whatSignalResume)) }

// InitiateShutdown begins a graceful stop; OnShutdownComplete reports
// completion.
func (d *Decoder) InitiateShutdown() error { return d.loop.Post(msg.New(whatInitiateShutdown)) }

func (d *Decoder) handle(m *msg.Message) {
	switch m.What {
	case whatSetParameters:
		if v, ok := m.TakeObject("params"); ok {
			if p, ok := v.(Parameters); ok {
				d.params = p
			}
		}
		d.state = StateRunning
	case whatStart:
		d.state = StateRunning
		d.startPulling()
	case whatPause:
		d.state = StateConfiguring
		if m.ReplyToken != nil {
			m.ReplyToken.Reply(msg.New(whatPause))
		}
	case whatSignalFlush:
		d.doFlush()
	case whatSignalResume:
		d.state = StateRunning
		d.startPulling()
	case whatInitiateShutdown:
		d.doShutdown()
	case whatFrameReady:
		d.doDeliverFrame(m)
	}
}

// startPulling launches the single background goroutine that blocks on
// queue.Pop() and posts each packet back to the Looper as a whatFrameReady
// message; the dispatch goroutine itself never blocks on the queue, so
// Stop() always terminates promptly (see Stop's queue.Close()).
func (d *Decoder) startPulling() {
	d.pullOnce.Do(func() {
		go d.pull()
	})
}

func (d *Decoder) pull() {
	for {
		p, ok := d.queue.Pop()
		if !ok {
			return
		}
		discontinuity := d.queue.TakeDiscontinuity()
		if err := d.loop.Post(msg.New(whatFrameReady).
			SetObject("packet", p).
			SetInt64("discontinuity", boolToInt64(discontinuity))); err != nil {
			return
		}
	}
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (d *Decoder) doDeliverFrame(m *msg.Message) {
	v, ok := m.TakeObject("packet")
	if !ok {
		return
	}
	p, ok := v.(source.Packet)
	if !ok {
		return
	}
	if disc, _ := m.FindInt64("discontinuity"); disc != 0 {
		d.log.Debugf("decoder %s: discontinuity before pts=%d", d.track, p.PresentationUs)
	}
	if d.state != StateRunning {
		return
	}

	d.listener.OnFrameDecoded(Frame{
		Track:          p.Track,
		Data:           p.Data,
		PresentationUs: p.PresentationUs,
	})
}

func (d *Decoder) doFlush() {
	d.state = StateFlushing
	d.queue.Clear()
	d.listener.OnFlushComplete(d.track)
}

func (d *Decoder) doShutdown() {
	d.state = StateShuttingDown
	d.listener.OnShutdownComplete(d.track)
}
