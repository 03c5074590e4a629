package looper

import (
	"time"

	"hpcplayer/msg"
)

// HandlerFunc adapts a plain function to msg.Handler.
type HandlerFunc func(m *msg.Message)

func (f HandlerFunc) HandleMessage(m *msg.Message) { f(m) }

// CreateReplyToken allocates a one-shot reply mailbox for request/reply on
// top of Post, per §4.A / §9 DESIGN NOTES.
func CreateReplyToken() *msg.ReplyToken { return msg.NewReplyToken() }

// AwaitResponse posts req to l and blocks until the handler calls
// token.Reply(...), or until timeout elapses (0 means wait forever). The
// handler side must read req.ReplyToken and call Reply exactly once.
func AwaitResponse(l *Looper, req *msg.Message, timeout time.Duration) (*msg.Message, error) {
	token := CreateReplyToken()
	req.ReplyToken = token
	if err := l.Post(req); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		return token.Await(), nil
	}

	select {
	case reply := <-waitCh(token):
		return reply, nil
	case <-time.After(timeout):
		return nil, ErrAwaitTimeout
	}
}

// waitCh exposes the token's internal channel for select-based waiting
// without adding a second signalling path (DESIGN NOTES: "awaiters block on
// a dedicated condition keyed by the token").
func waitCh(t *msg.ReplyToken) <-chan *msg.Message {
	return t.Chan()
}
