package render

import (
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"

	"hpcplayer/playerrors"
)

// DefaultVideoSink wraps a reused *ebiten.Image, following Player.copyFrame:
// WritePixels into the same backing image rather than allocating a new one
// per frame.
type DefaultVideoSink struct {
	img *ebiten.Image
}

// NewDefaultVideoSink allocates a black image of the given frame size.
func NewDefaultVideoSink(width, height int) *DefaultVideoSink {
	img := ebiten.NewImage(width, height)
	img.Fill(color.Black)
	return &DefaultVideoSink{img: img}
}

func (s *DefaultVideoSink) WriteFrame(rgba []byte) error {
	if rgba == nil {
		s.img.Fill(color.Black)
		return nil
	}
	s.img.WritePixels(rgba)
	return nil
}

// Image returns the backing surface for drawing (see surface.Draw).
func (s *DefaultVideoSink) Image() *ebiten.Image { return s.img }

// DefaultAudioSink wraps github.com/hajimehoshi/ebiten/v2/audio, pulling PCM
// data through a ringBuffer the way controller_yes_audio.go's audioPlayer
// pulls through videoWithAudioController.Read.
type DefaultAudioSink struct {
	player *audio.Player
	buf    *ringBuffer
}

// NewDefaultAudioSink creates a player against the current ebiten audio
// context, matching CreateAudioContextForMedia's one-context-per-process
// assumption (§3 AMBIENT STACK / audio_context.go).
func NewDefaultAudioSink(bufferSize time.Duration) (*DefaultAudioSink, error) {
	ctx := audio.CurrentContext()
	if ctx == nil {
		return nil, playerrors.New(playerrors.StatusNoInit, "render.newDefaultAudioSink", nil)
	}

	buf := newRingBuffer()
	player, err := ctx.NewPlayer(buf)
	if err != nil {
		return nil, playerrors.New(playerrors.StatusUnknownError, "render.newDefaultAudioSink", err)
	}
	player.SetBufferSize(bufferSize)
	return &DefaultAudioSink{player: player, buf: buf}, nil
}

func (s *DefaultAudioSink) Write(pcm []byte) (int, error) {
	s.buf.push(pcm)
	return len(pcm), nil
}

func (s *DefaultAudioSink) Play()  { s.player.Play() }
func (s *DefaultAudioSink) Pause() { s.player.Pause() }

func (s *DefaultAudioSink) Close() error {
	s.buf.close()
	return s.player.Close()
}

func (s *DefaultAudioSink) GetPlayedTimeUs() int64 {
	return s.player.Position().Microseconds()
}

func (s *DefaultAudioSink) SetVolume(v float64) { s.player.SetVolume(v) }

var _ VideoSink = (*DefaultVideoSink)(nil)
var _ AudioSink = (*DefaultAudioSink)(nil)
