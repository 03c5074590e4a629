package msg

import "sync/atomic"

// Handler receives delivered messages. Each Looper services exactly one (or
// a small, stable set of) Handler, and never runs two handlers concurrently.
type Handler interface {
	// HandleMessage processes m on the owning Looper's goroutine. Returning
	// is the only acknowledgement; replies, if any, are posted explicitly
	// via the message's reply token.
	HandleMessage(m *Message)
}

// ReplyToken is a one-shot mailbox used to implement synchronous
// request/reply on top of asynchronous post (§9 DESIGN NOTES). Awaiters
// block on a dedicated channel, never the owning Looper's main event
// condition, to avoid wakeup storms.
type ReplyToken struct {
	ch   chan *Message
	used atomic.Bool
}

// NewReplyToken allocates a fresh, unused reply token.
func NewReplyToken() *ReplyToken {
	return &ReplyToken{ch: make(chan *Message, 1)}
}

// Reply delivers m to whoever is awaiting this token. Safe to call at most
// once; a second call panics, since a reply token is single-shot by design.
func (t *ReplyToken) Reply(m *Message) {
	if !t.used.CompareAndSwap(false, true) {
		panic("msg: ReplyToken.Reply called more than once")
	}
	t.ch <- m
}

// Await blocks until Reply is called. Used internally by looper.AwaitResponse;
// exported so tests can synthesize request/reply without a full Looper.
func (t *ReplyToken) Await() *Message {
	return <-t.ch
}

// Chan exposes the reply channel for select-based waits with a timeout
// (see looper.AwaitResponse).
func (t *ReplyToken) Chan() <-chan *Message {
	return t.ch
}

// Message is the envelope posted between actors. Fields are set at
// construction and are not mutated after Post (ownership transfers to the
// dispatcher).
type Message struct {
	What       int32
	Arg1, Arg2 int64
	Payload    map[string]Value
	ReplyToken *ReplyToken

	// DeadlineUs is the absolute media-clock or wall-clock deadline (in
	// microseconds) at which this message should be delivered; set by the
	// posting Looper from the requested delay.
	DeadlineUs int64

	// Generation lets a handler discard a stale message after its owning
	// actor restarted (§5 "Ordering"); 0 means "no generation check".
	Generation uint64
}

var seq atomic.Uint64

// New constructs a Message with an empty payload map ready for SetXxx calls.
func New(what int32) *Message {
	return &Message{What: what, Payload: make(map[string]Value, 4)}
}

// SetInt64/SetFloat64/SetString/SetMessage/SetObject populate a named
// payload slot, following the builder style the rest of this corpus uses
// for constructing request objects (see rtmp/rpc command builders).
func (m *Message) SetInt64(name string, v int64) *Message {
	m.Payload[name] = Int64(v)
	return m
}

func (m *Message) SetFloat64(name string, v float64) *Message {
	m.Payload[name] = Float64(v)
	return m
}

func (m *Message) SetString(name string, v string) *Message {
	m.Payload[name] = String(v)
	return m
}

func (m *Message) SetMessage(name string, v *Message) *Message {
	m.Payload[name] = Nested(v)
	return m
}

func (m *Message) SetObject(name string, v any) *Message {
	m.Payload[name] = Object(v)
	return m
}

// FindInt64/FindFloat64/FindString/FindMessage read a named payload slot
// without removing it.
func (m *Message) FindInt64(name string) (int64, bool) {
	v, ok := m.Payload[name]
	if !ok {
		return 0, false
	}
	return v.Int64Val()
}

func (m *Message) FindFloat64(name string) (float64, bool) {
	v, ok := m.Payload[name]
	if !ok {
		return 0, false
	}
	return v.Float64Val()
}

func (m *Message) FindString(name string) (string, bool) {
	v, ok := m.Payload[name]
	if !ok {
		return "", false
	}
	return v.StringVal()
}

func (m *Message) FindMessage(name string) (*Message, bool) {
	v, ok := m.Payload[name]
	if !ok {
		return nil, false
	}
	return v.MessageVal()
}

// TakeObject reads and removes a named Object slot, implementing the
// move-only ownership transfer DESIGN NOTES calls for: after TakeObject, the
// slot is gone and a second caller gets (nil, false).
func (m *Message) TakeObject(name string) (any, bool) {
	v, ok := m.Payload[name]
	if !ok || v.kind != KindObject {
		return nil, false
	}
	delete(m.Payload, name)
	return v.obj, true
}

// Dup produces a deep copy of scalars/nested messages and a shallow copy of
// opaque Object slots, as specified in §4.B.
func (m *Message) Dup() *Message {
	if m == nil {
		return nil
	}
	out := &Message{
		What:       m.What,
		Arg1:       m.Arg1,
		Arg2:       m.Arg2,
		DeadlineUs: m.DeadlineUs,
		Generation: m.Generation,
		Payload:    make(map[string]Value, len(m.Payload)),
	}
	for k, v := range m.Payload {
		out.Payload[k] = v.dup()
	}
	return out
}
