package framebuffer

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestBuffer_Present(t *testing.T) {
	b := New()
	if b.Frame() != nil {
		t.Fatal("expected no frame before Present")
	}

	src := solid(4, 2, color.RGBA{R: 200, A: 255})
	if err := b.Present(src, 4, 2); err != nil {
		t.Fatalf("Present failed: %v", err)
	}

	// The surface must not depend on the caller's buffer.
	src.Pix[0] = 0
	got := b.Frame()
	if got.Bounds().Dx() != 4 || got.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", got.Bounds())
	}
	if got.RGBAAt(0, 0) != (color.RGBA{R: 200, A: 255}) {
		t.Errorf("expected copied pixel, got %v", got.RGBAAt(0, 0))
	}
}

func TestBuffer_PresentCropsToSize(t *testing.T) {
	b := New()
	src := solid(8, 8, color.RGBA{G: 255, A: 255})
	b.Present(src, 3, 3)

	got := b.Frame()
	if got.Bounds() != image.Rect(0, 0, 3, 3) {
		t.Errorf("expected 3x3 frame, got %v", got.Bounds())
	}
	if got.RGBAAt(2, 2) != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("unexpected pixel %v", got.RGBAAt(2, 2))
	}
}

func TestBuffer_Stats(t *testing.T) {
	b := New()
	base := time.Unix(1000, 0)
	times := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}
	i := 0
	b.now = func() time.Time {
		at := base.Add(times[i])
		i++
		return at
	}

	b.Present(solid(2, 2, color.RGBA{}), 2, 2)
	b.Present(solid(2, 2, color.RGBA{}), 2, 2)
	b.Present(solid(4, 4, color.RGBA{}), 4, 4)
	b.Present(solid(4, 4, color.RGBA{}), 4, 4)
	b.Present(solid(4, 4, color.RGBA{}), 4, 4)

	s := b.Stats()
	if s.Frames != 5 {
		t.Errorf("expected 5 frames, got %d", s.Frames)
	}
	if s.Resizes != 1 {
		t.Errorf("expected 1 resize, got %d", s.Resizes)
	}
	if s.Width != 4 || s.Height != 4 {
		t.Errorf("expected 4x4, got %dx%d", s.Width, s.Height)
	}
	if s.MaxGap != 500*time.Millisecond {
		t.Errorf("expected max gap 500ms, got %v", s.MaxGap)
	}
	if fps := s.FPS(); fps != 4 {
		t.Errorf("expected 4 fps, got %v", fps)
	}
}

func TestStats_FPS_TooFewFrames(t *testing.T) {
	if fps := (Stats{Frames: 1}).FPS(); fps != 0 {
		t.Errorf("expected 0, got %v", fps)
	}
}
