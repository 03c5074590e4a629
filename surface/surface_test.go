package surface

import (
	"image"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"hpcplayer/render"
)

func TestAcquireReleaseRoundTrips(t *testing.T) {
	sink := render.NewDefaultVideoSink(4, 4)
	s := New(sink)

	img, release := s.Acquire()
	if img == nil {
		t.Fatal("Acquire returned nil image")
	}
	release()

	// A second Acquire must not deadlock now that release ran.
	done := make(chan struct{})
	go func() {
		_, release2 := s.Acquire()
		release2()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Acquire deadlocked")
	}
}

func TestPresentProjectsIntoViewport(t *testing.T) {
	sink := render.NewDefaultVideoSink(2, 2)
	if err := sink.WriteFrame(make([]byte, 2*2*4)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	s := New(sink)

	viewport := ebiten.NewImage(8, 8)
	s.Present(viewport) // must not panic; geometry correctness covered by CalcProjection below
}

func TestCalcProjectionCentersWhenSameSize(t *testing.T) {
	viewport := ebiten.NewImage(4, 4)
	frame := ebiten.NewImage(4, 4)
	geom, filter := CalcProjection(viewport, frame)
	if filter != ebiten.FilterLinear {
		t.Fatalf("filter = %v, want FilterLinear", filter)
	}
	tx, ty := geom.Apply(0, 0)
	if tx != 0 || ty != 0 {
		t.Fatalf("expected no offset for equal-size viewport/frame, got (%v, %v)", tx, ty)
	}
}

func TestCalcProjectionLetterboxesWiderFrame(t *testing.T) {
	// A 16:4 frame into a square viewport is width-constrained: it scales
	// down to fill the width and leaves vertical bars above and below.
	viewport := ebiten.NewImage(8, 8)
	frame := ebiten.NewImage(16, 4)
	geom, _ := CalcProjection(viewport, frame)

	x0, y0 := geom.Apply(0, 0)
	x1, y1 := geom.Apply(16, 4)
	if x0 != 0 || x1 != 8 {
		t.Fatalf("expected frame to span the full width [0,8], got [%v,%v]", x0, x1)
	}
	if y0 != 3 || y1 != 5 {
		t.Fatalf("expected frame vertically centered as [3,5], got [%v,%v]", y0, y1)
	}
}

func TestCalcProjectionLetterboxesTallerFrame(t *testing.T) {
	// A 4:16 frame into a square viewport is height-constrained: it scales
	// down to fill the height and leaves bars on either side.
	viewport := ebiten.NewImage(8, 8)
	frame := ebiten.NewImage(4, 16)
	geom, _ := CalcProjection(viewport, frame)

	x0, y0 := geom.Apply(0, 0)
	x1, y1 := geom.Apply(4, 16)
	if y0 != 0 || y1 != 8 {
		t.Fatalf("expected frame to span the full height [0,8], got [%v,%v]", y0, y1)
	}
	if x0 != 3 || x1 != 5 {
		t.Fatalf("expected frame horizontally centered as [3,5], got [%v,%v]", x0, x1)
	}
}

func TestCalcProjectionGuardsZeroSizedFrame(t *testing.T) {
	viewport := ebiten.NewImage(8, 8)
	frame := ebiten.NewImage(1, 1).SubImage(image.Rect(0, 0, 0, 0)).(*ebiten.Image)
	geom, filter := CalcProjection(viewport, frame)
	if filter != ebiten.FilterLinear {
		t.Fatalf("filter = %v, want FilterLinear", filter)
	}
	x, y := geom.Apply(3, 5)
	if x != 3 || y != 5 {
		t.Fatalf("expected identity GeoM for a zero-sized frame, got (%v,%v) for input (3,5)", x, y)
	}
}
