package render

import (
	"errors"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// ErrAudioContextAlreadyInitialized is returned by EnsureAudioContext when
// a different sample rate was already established (ebiten allows exactly
// one audio.Context per process).
var ErrAudioContextAlreadyInitialized = errors.New("render: audio context already initialized at a different sample rate")

// EnsureAudioContext creates the process-wide ebiten audio context at the
// given sample rate if none exists yet, matching
// CreateAudioContextForMedia's one-context-per-process assumption. A
// second call at the same rate is a no-op; at a different rate it reports
// ErrAudioContextAlreadyInitialized since ebiten cannot host two rates
// concurrently.
func EnsureAudioContext(sampleRate int) error {
	ctx := audio.CurrentContext()
	if ctx == nil {
		audio.NewContext(sampleRate)
		return nil
	}
	if ctx.SampleRate() != sampleRate {
		return ErrAudioContextAlreadyInitialized
	}
	return nil
}
