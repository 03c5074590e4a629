// Package looper implements the single-threaded message dispatcher that
// every long-lived actor (driver, engine, each decoder, renderer, clock)
// owns exactly one of (§4.A of the specification).
//
// Design lineage: the teacher package (erparts/go-avebi) has no message bus
// at all — controllers are plain mutex-guarded structs polled from the
// host's Update() loop. This package generalizes the teacher's "own
// goroutine + sync.Mutex-guarded state" idiom (see
// controller_stream.go's decode/schedule goroutine pair) into a reusable
// actor primitive, and borrows the timer-heap shape from the eventloop
// reference implementation in the examples corpus (container/heap ordered
// by deadline, stable FIFO via an insertion sequence) without importing its
// complexity: one mutex, one heap, one goroutine.
package looper

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"hpcplayer/logging"
	"hpcplayer/msg"
)

// nowFunc is overridable in tests so delivery-ordering tests don't need to
// sleep through wall-clock time.
var nowFunc = time.Now

// event is one scheduled delivery: msg m should reach target no sooner than
// deadline, with ties broken by seq (insertion order), exactly as §4.A
// specifies ("messages with equal deadlines dispatch in post order").
type event struct {
	deadline time.Time
	seq      uint64
	m        *msg.Message
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)         { *h = append(*h, x.(*event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Looper owns one worker goroutine and a deadline-ordered queue of messages
// targeting a single Handler.
type Looper struct {
	name    string
	handler msg.Handler
	log     *logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	events  eventHeap
	nextSeq uint64
	running bool
	quit    bool
	stopped chan struct{}

	generation atomic.Uint64
}

// New creates a Looper dispatching to handler. It does not start the
// worker goroutine; call Run (directly, or via actorsup.Supervisor which
// calls Run from a supervised goroutine and restarts it on panic).
func New(name string, handler msg.Handler, log *logging.Logger) *Looper {
	if log == nil {
		log = logging.Nop()
	}
	l := &Looper{
		name:    name,
		handler: handler,
		log:     log.With(),
		stopped: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Name returns the looper's label, used for logs and for the suture.Service
// String() contract in actorsup.
func (l *Looper) Name() string { return l.name }

// Generation returns the current restart generation. Handlers can stash
// this in outgoing messages and drop replies whose Generation is stale.
func (l *Looper) Generation() uint64 { return l.generation.Load() }

// BumpGeneration increments the generation counter, invalidating messages
// already in flight that carry the previous value. Called by actorsup when
// restarting a Looper whose Run returned an error, and by the decoder's
// own BumpGeneration.
func (l *Looper) BumpGeneration() uint64 { return l.generation.Add(1) }

// Post enqueues m for immediate dispatch (delay 0).
func (l *Looper) Post(m *msg.Message) error { return l.PostDelayed(m, 0) }

// PostDelayed enqueues m for dispatch no sooner than now+delay. Delayed
// posts never fire before their deadline (§8 Testable Properties).
func (l *Looper) PostDelayed(m *msg.Message, delay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quit {
		return ErrLooperStopped
	}

	deadline := nowFunc().Add(delay)
	m.DeadlineUs = deadline.UnixMicro()
	ev := &event{deadline: deadline, seq: l.nextSeq, m: m}
	l.nextSeq++
	wasHead := len(l.events) == 0 || ev.deadline.Before(l.events[0].deadline)
	heap.Push(&l.events, ev)
	if wasHead {
		l.cond.Signal()
	}
	return nil
}

// Run executes the dispatch loop on the calling goroutine until Stop is
// called. It returns nil on a clean Stop. Intended to be invoked from
// actorsup.Supervisor's Serve, or directly via `go looper.Run()` for tests
// that don't need crash-restart semantics.
func (l *Looper) Run() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrLooperAlreadyRunning
	}
	if l.quit {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.stopped = make(chan struct{})
	l.mu.Unlock()

	for {
		l.mu.Lock()
		for l.running && len(l.events) == 0 {
			l.cond.Wait()
		}
		if !l.running {
			l.mu.Unlock()
			close(l.stopped)
			return nil
		}

		head := l.events[0]
		wait := head.deadline.Sub(nowFunc())
		if wait > 0 {
			// timedWait: wait on cond with a deadline-firing wakeup rather
			// than a bare timer, so a PostDelayed that beats this deadline
			// (cond.Signal, see wasHead) or a Stop() (cond.Broadcast) wakes
			// us immediately instead of only once `wait` has elapsed.
			timer := time.AfterFunc(wait, func() {
				l.mu.Lock()
				l.cond.Broadcast()
				l.mu.Unlock()
			})
			l.cond.Wait()
			timer.Stop()
			l.mu.Unlock()
			continue
		}

		heap.Pop(&l.events)
		l.mu.Unlock()

		l.deliver(head.m)
	}
}

func (l *Looper) deliver(m *msg.Message) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("handler panicked: %v", r)
			panic(r) // re-panic so actorsup.Supervisor observes and restarts us
		}
	}()
	l.handler.HandleMessage(m)
}

// Stop flips the running flag, wakes the worker, and blocks until it exits.
func (l *Looper) Stop() {
	l.mu.Lock()
	l.quit = true
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stopped := l.stopped
	l.cond.Broadcast()
	l.mu.Unlock()
	<-stopped
}

// Pending reports the number of undelivered messages, for tests and metrics.
func (l *Looper) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
