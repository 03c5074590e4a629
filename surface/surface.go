// Package surface scopes the video output surface handed to the engine,
// guaranteeing release on every exit path (§4.I). It also adapts draw.go's
// aspect-preserving projection math into a single letterbox-rect formula
// (collapsing its redundant exact-fit branch and guarding the zero-sized
// case), now projecting against the pooled [render.DefaultVideoSink] image
// instead of a frame pulled straight from a videoController.
package surface

import (
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"hpcplayer/render"
)

// Surface wraps a render.DefaultVideoSink with a scoped-acquisition
// contract: Acquire must be paired with the returned release func from
// every exit path, including a panic recovered by actorsup.Supervisor.
type Surface struct {
	mu   sync.Mutex
	sink *render.DefaultVideoSink
}

// New wraps an already-constructed video sink. The caller retains
// ownership of sizing (sink is allocated at the source's reported
// width/height, see render.NewDefaultVideoSink).
func New(sink *render.DefaultVideoSink) *Surface {
	return &Surface{sink: sink}
}

// Acquire locks the surface for exclusive access to the backing image and
// returns a release func the caller must invoke before anyone else (in
// particular, the engine handing the surface to a new decoder) can use it
// again.
func (s *Surface) Acquire() (*ebiten.Image, func()) {
	s.mu.Lock()
	return s.sink.Image(), s.mu.Unlock
}

// VideoSink exposes the underlying render.VideoSink for wiring into
// Engine.SetSurface.
func (s *Surface) VideoSink() render.VideoSink { return s.sink }

// Present draws the current frame into viewport, scaling to fill as much
// of it as possible while preserving the frame's aspect ratio. Equivalent
// to the teacher's package-level Draw, scoped through Acquire/release. The
// lock serialises Present against other Acquire holders only; WriteFrame
// calls made through VideoSink() do not take it.
func (s *Surface) Present(viewport *ebiten.Image) {
	img, release := s.Acquire()
	defer release()
	Draw(viewport, img)
}

// Draw projects frame into viewport with [ebiten.FilterLinear], preserving
// aspect ratio. If there's extra space in the viewport, frame is drawn
// centered; no black bars are explicitly drawn, so whatever was already on
// the viewport's background remains visible around it.
func Draw(viewport, frame *ebiten.Image) {
	geom, filter := CalcProjection(viewport, frame)
	var opts ebiten.DrawImageOptions
	opts.GeoM = geom
	opts.Filter = filter
	viewport.DrawImage(frame, &opts)
}

// CalcProjection returns the GeoM and recommended ebiten.Filter to letterbox
// frame into viewport: scaled uniformly by whichever axis is tighter so the
// whole frame fits without cropping, then centered in the leftover space on
// the other axis. Degenerate (zero-sized) frames return the identity GeoM
// rather than dividing by zero, which a bad Format probe can otherwise
// produce ahead of the first real decoded frame.
func CalcProjection(viewport, frame *ebiten.Image) (ebiten.GeoM, ebiten.Filter) {
	viewBounds := viewport.Bounds()
	frameBounds := frame.Bounds()
	vwWidth, vwHeight := float64(viewBounds.Dx()), float64(viewBounds.Dy())
	frWidth, frHeight := float64(frameBounds.Dx()), float64(frameBounds.Dy())

	var geom ebiten.GeoM
	if frWidth <= 0 || frHeight <= 0 {
		return geom, ebiten.FilterLinear
	}

	scale := vwWidth / frWidth
	if byHeight := vwHeight / frHeight; byHeight < scale {
		scale = byHeight
	}

	destWidth, destHeight := frWidth*scale, frHeight*scale
	offsetX := (vwWidth - destWidth) / 2
	offsetY := (vwHeight - destHeight) / 2

	geom.Scale(scale, scale)
	geom.Translate(float64(viewBounds.Min.X)+offsetX, float64(viewBounds.Min.Y)+offsetY)
	return geom, ebiten.FilterLinear
}
