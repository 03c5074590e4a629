// Package engine implements the internal playback orchestrator (§4.G): it
// owns the Source, the per-track Decoders and the Renderer, sequences scan
// / start / seek / surface-change / reset against the decoder flush-status
// matrix, and translates collaborator notifications into client-facing
// events delivered through ClientListener.
//
// The teacher has no equivalent orchestrator (erparts/go-avebi's
// controllers drive themselves directly off ebiten's Update() tick); this
// package generalizes the teacher's controller-lifecycle idiom (configure
// -> run -> flush/seek -> teardown, see controller_stream.go) into a
// single message-driven actor shared across both tracks and the renderer.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hpcplayer/clock"
	"hpcplayer/config"
	"hpcplayer/decoder"
	"hpcplayer/logging"
	"hpcplayer/looper"
	"hpcplayer/msg"
	"hpcplayer/playerrors"
	"hpcplayer/render"
	"hpcplayer/source"
)

// FlushStatus is a per-track position in the flush/shutdown state machine
// (§4.E states table, §3 Engine State).
type FlushStatus int

const (
	FlushNone FlushStatus = iota
	FlushingDecoder
	FlushingDecoderShutdown
	ShuttingDownDecoder
	Flushed
	ShutDown
)

// ClientListener receives the client-facing notifications named in §6
// "Client notifications". The Driver implements this.
type ClientListener interface {
	OnPrepared(durationUs int64)
	OnPlaybackComplete()
	OnBufferingUpdate(pct int)
	OnSeekComplete()
	OnSetVideoSize(w, h int)
	OnStarted()
	OnPausedNotify()
	OnStoppedNotify()
	OnSkipped()
	OnNotifyTime(mediaTimeUs int64)
	OnError(op string, err error)
	OnInfo(kind string, detail error)
	OnTimeDiscontinuity(anchorMediaUs, anchorRealUs int64, rate float64)
	OnResetComplete()
}

// SourceFactory builds a Source for a given URL; default wiring uses
// source.NewDefaultSource, but tests substitute fakes.
type SourceFactory func(url string, cfg config.Config, log *logging.Logger, listener source.Listener) source.Source

const (
	whatSetDataSource int32 = iota + 1
	whatPrepare
	whatStart
	whatPause
	whatStop
	whatSeek
	whatSetSurface
	whatConfigPlayback
	whatReset
	whatGetPosition
	whatGetDuration

	whatSourcePrepared
	whatSourceError
	whatSourceDecodeError
	whatSourceBuffering
	whatSourceEOS

	whatDecoderFrame
	whatDecoderFlushComplete
	whatDecoderShutdownComplete
	whatDecoderError

	whatRendererEOS
	whatRendererFlushComplete
	whatRendererVideoStart
	whatRendererMediaStart
	whatRendererAudioTeardown

	whatScanSources
	whatDurationPoll
)

// Engine is the internal orchestrator actor (§4.G).
type Engine struct {
	cfg      config.Config
	log      *logging.Logger
	listener ClientListener
	clock    *clock.Clock

	sourceFactory SourceFactory

	loop *looper.Looper

	// started/prepared/paused/pausedForBuffering/resetting tuple (§3).
	started            bool
	prepared           bool
	paused             bool
	pausedForBuffering bool
	resetting          bool
	pausedByClient     bool

	atEOS bool

	// mu guards source/decoder/renderer handles touched from multiple
	// goroutines (source's own background reader, decoder pull
	// goroutines) per §5 "Shared-resource policy".
	mu            sync.Mutex
	src           source.Source
	videoDecoder  *decoder.Decoder
	audioDecoder  *decoder.Decoder
	renderer      render.Renderer
	videoSink     render.VideoSink
	audioSink     render.AudioSink
	durationUs    int64
	formats       map[source.TrackType]source.Format

	flushingAudio FlushStatus
	flushingVideo FlushStatus

	audioFlushDecoderDone, audioFlushRendererDone bool
	videoFlushDecoderDone, videoFlushRendererDone bool

	deferred []DeferredAction

	scanGeneration uint64

	// playingTimeMu / rebufferingTimeMu guard the cumulative wall-clock
	// counters (§4.G "Timers"), independent of the media clock.
	playingTimeMu     sync.Mutex
	playingStartedAt  time.Time
	playingTotal      time.Duration
	rebufferingMu     sync.Mutex
	rebufferingSince  time.Time
	rebufferingTotal  time.Duration

	lastKnownPositionUs int64
	nonPausedRate       float64

	trackErrored map[source.TrackType]bool
	trackAtEOS   map[source.TrackType]bool
}

// New creates an Engine. clk is shared across the Driver's lifetime (§3
// "the MediaClock outlives individual sessions until the Driver is
// destroyed").
func New(cfg config.Config, log *logging.Logger, listener ClientListener, clk *clock.Clock, factory SourceFactory) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	if factory == nil {
		factory = func(url string, cfg config.Config, log *logging.Logger, l source.Listener) source.Source {
			return source.NewDefaultSource(url, cfg, log, l)
		}
	}
	e := &Engine{
		cfg:           cfg,
		log:           log,
		listener:      listener,
		clock:         clk,
		sourceFactory: factory,
		formats:       make(map[source.TrackType]source.Format),
	}
	e.loop = looper.New("engine", looper.HandlerFunc(e.handle), log)
	return e
}

func (e *Engine) Run() error            { return e.loop.Run() }
func (e *Engine) Stop()                 { e.loop.Stop() }
func (e *Engine) Name() string          { return e.loop.Name() }
func (e *Engine) BumpGeneration() uint64 { return e.loop.BumpGeneration() }

// SetDataSource begins asynchronous source construction (§4.G "Set data
// source"). Completion is reported via ClientListener.OnPrepared/OnError
// only after Prepare is subsequently called, matching the two-step
// setDataSource-then-prepare client contract (§6).
func (e *Engine) SetDataSource(url string) error {
	return e.loop.Post(msg.New(whatSetDataSource).SetString("url", url))
}

func (e *Engine) Prepare() error { return e.loop.Post(msg.New(whatPrepare)) }

func (e *Engine) Start() error { return e.loop.Post(msg.New(whatStart)) }

func (e *Engine) Pause() error { return e.loop.Post(msg.New(whatPause)) }

func (e *Engine) StopPlayback() error { return e.loop.Post(msg.New(whatStop)) }

func (e *Engine) SeekTo(timeUs int64, mode source.SeekMode, needNotify bool) error {
	return e.loop.Post(msg.New(whatSeek).
		SetInt64("timeUs", timeUs).
		SetInt64("mode", int64(mode)).
		SetInt64("needNotify", boolToInt64(needNotify)))
}

func (e *Engine) SetSurface(sink render.VideoSink) error {
	return e.loop.Post(msg.New(whatSetSurface).SetObject("sink", sink))
}

func (e *Engine) ConfigPlayback(rate float64) error {
	return e.loop.Post(msg.New(whatConfigPlayback).SetFloat64("rate", rate))
}

// Reset tears the session down (§4.G "Reset"); Release (driver-level) calls
// this and then permanently disables the engine.
func (e *Engine) Reset() error { return e.loop.Post(msg.New(whatReset)) }

// GetCurrentPosition is a synchronous request/reply query (§4.H
// "getCurrentPosition").
func (e *Engine) GetCurrentPosition() (int64, error) {
	reply, err := looper.AwaitResponse(e.loop, msg.New(whatGetPosition), time.Second)
	if err != nil {
		return 0, err
	}
	pos, _ := reply.FindInt64("positionUs")
	return pos, nil
}

func (e *Engine) GetDuration() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.prepared {
		return 0, playerrors.New(playerrors.StatusInvalidOperation, "engine.getDuration", nil)
	}
	return e.durationUs, nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) handle(m *msg.Message) {
	switch m.What {
	case whatSetDataSource:
		url, _ := m.FindString("url")
		e.doSetDataSource(url)
	case whatPrepare:
		e.doPrepare()
	case whatStart:
		e.doStart()
	case whatPause:
		e.doPause()
	case whatStop:
		e.doStop()
	case whatSeek:
		timeUs, _ := m.FindInt64("timeUs")
		mode, _ := m.FindInt64("mode")
		needNotify, _ := m.FindInt64("needNotify")
		e.doSeek(timeUs, source.SeekMode(mode), needNotify != 0)
	case whatSetSurface:
		v, _ := m.TakeObject("sink")
		sink, _ := v.(render.VideoSink)
		e.doSetSurface(sink)
	case whatConfigPlayback:
		rate, _ := m.FindFloat64("rate")
		e.doConfigPlayback(rate)
	case whatReset:
		e.doReset()
	case whatGetPosition:
		pos := e.computePosition()
		if m.ReplyToken != nil {
			m.ReplyToken.Reply(msg.New(0).SetInt64("positionUs", pos))
		}

	case whatSourcePrepared:
		e.onSourcePrepared(m)
	case whatSourceError:
		v, _ := m.TakeObject("err")
		err, _ := v.(error)
		e.onSourceError(err)
	case whatSourceDecodeError:
		track, _ := m.FindInt64("track")
		v, _ := m.TakeObject("err")
		err, _ := v.(error)
		e.onDecoderError(source.TrackType(track), err)
	case whatSourceBuffering:
		pct, _ := m.FindInt64("pct")
		e.listener.OnBufferingUpdate(int(pct))
	case whatSourceEOS:
		track, _ := m.FindInt64("track")
		e.onSourceEOS(source.TrackType(track))

	case whatDecoderFrame:
		e.onDecoderFrame(m)
	case whatDecoderFlushComplete:
		track, _ := m.FindInt64("track")
		e.onDecoderFlushComplete(source.TrackType(track))
	case whatDecoderShutdownComplete:
		track, _ := m.FindInt64("track")
		e.onDecoderShutdownComplete(source.TrackType(track))
	case whatDecoderError:
		track, _ := m.FindInt64("track")
		v, _ := m.TakeObject("err")
		err, _ := v.(error)
		e.onDecoderError(source.TrackType(track), err)

	case whatRendererEOS:
		track, _ := m.FindInt64("track")
		e.onRendererEOS(source.TrackType(track))
	case whatRendererFlushComplete:
		track, _ := m.FindInt64("track")
		e.onRendererFlushComplete(source.TrackType(track))
	case whatRendererVideoStart:
		e.listener.OnInfo("RenderingStart", nil)
	case whatRendererMediaStart:
		e.startPlaybackTimer()
		e.listener.OnStarted()
	case whatRendererAudioTeardown:
		reason, _ := m.FindString("reason")
		e.onAudioTearDown(reason)

	case whatScanSources:
		gen, _ := m.FindInt64("generation")
		if uint64(gen) != e.scanGeneration {
			return
		}
		e.scanSources()
	case whatDurationPoll:
		e.pollDuration()
	}
}

// performReset tears decoders -> renderer -> source down using errgroup to
// bound the concurrent teardown calls while preserving that order via
// sequenced stages (§4.G "Reset" / SPEC_FULL.md §6 Engine realization
// notes).
func (e *Engine) performReset() {
	e.mu.Lock()
	vd, ad, r, src := e.videoDecoder, e.audioDecoder, e.renderer, e.src
	e.mu.Unlock()

	ctx := context.Background()

	decoderGroup, _ := errgroup.WithContext(ctx)
	if vd != nil {
		decoderGroup.Go(func() error { vd.Stop(); return nil })
	}
	if ad != nil {
		decoderGroup.Go(func() error { ad.Stop(); return nil })
	}
	_ = decoderGroup.Wait()

	if rs, ok := r.(interface{ Stop() }); ok && rs != nil {
		rs.Stop()
	}

	if src != nil {
		_ = src.Stop()
		_ = src.Disconnect()
	}

	e.mu.Lock()
	e.videoDecoder = nil
	e.audioDecoder = nil
	e.renderer = nil
	e.src = nil
	e.started = false
	e.prepared = false
	e.resetting = false
	e.flushingAudio = FlushNone
	e.flushingVideo = FlushNone
	e.deferred = nil
	e.mu.Unlock()

	e.clock.Reset()
	e.listener.OnResetComplete()
}
