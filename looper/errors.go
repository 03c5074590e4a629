package looper

import "hpcplayer/playerrors"

// ErrLooperStopped is returned by Post/PostDelayed on a stopped Looper,
// matching the teacher corpus's convention (rtmp-go's internal/errors) of
// typed sentinel errors over bare strings.
var ErrLooperStopped = playerrors.Sentinel(playerrors.StatusInvalidOperation, "looper.post: target gone")

// ErrLooperAlreadyRunning is returned by a second concurrent Run() call.
var ErrLooperAlreadyRunning = playerrors.Sentinel(playerrors.StatusInvalidOperation, "looper.run: already running")

// ErrAwaitTimeout is returned by AwaitResponse when the deadline elapses
// before a reply arrives (§7 Timeout, reserved but now exercised here).
var ErrAwaitTimeout = playerrors.Sentinel(playerrors.StatusTimeout, "looper.awaitResponse")
