// Package framebuffer is an off-screen DisplaySurface. It keeps the latest
// presented frame and measures the presentation rate.
package framebuffer

import (
	"image"
	"sync"
	"time"

	"github.com/user/dusk/pkg/ports"
)

// Stats describes what has been presented.
type Stats struct {
	Frames  int
	Resizes int
	First   time.Time
	Last    time.Time
	MaxGap  time.Duration // Longest interval between two frames
	Width   int
	Height  int
}

// FPS returns the average presentation rate between the first and last frame.
func (s Stats) FPS() float64 {
	span := s.Last.Sub(s.First)
	if s.Frames < 2 || span <= 0 {
		return 0
	}
	return float64(s.Frames-1) / span.Seconds()
}

// Buffer holds a copy of the most recent frame.
type Buffer struct {
	now func() time.Time

	mu    sync.Mutex
	pix   *image.RGBA
	stats Stats
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{now: time.Now}
}

// Present copies img. The backing store is reused until the size changes.
func (b *Buffer) Present(img *image.RGBA, width, height int) error {
	at := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pix == nil || b.stats.Width != width || b.stats.Height != height {
		if b.pix != nil {
			b.stats.Resizes++
		}
		b.pix = image.NewRGBA(image.Rect(0, 0, width, height))
		b.stats.Width, b.stats.Height = width, height
	}
	src := img.SubImage(image.Rect(0, 0, width, height)).(*image.RGBA)
	rowLen := 4 * src.Bounds().Dx()
	for y := 0; y < src.Bounds().Dy(); y++ {
		so := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		copy(b.pix.Pix[y*b.pix.Stride:y*b.pix.Stride+rowLen], src.Pix[so:so+rowLen])
	}

	if b.stats.Frames == 0 {
		b.stats.First = at
	} else if gap := at.Sub(b.stats.Last); gap > b.stats.MaxGap {
		b.stats.MaxGap = gap
	}
	b.stats.Last = at
	b.stats.Frames++
	return nil
}

// Frame returns a copy of the latest frame, or nil before the first Present.
func (b *Buffer) Frame() *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pix == nil {
		return nil
	}
	cp := image.NewRGBA(b.pix.Rect)
	copy(cp.Pix, b.pix.Pix)
	return cp
}

// Stats returns the presentation counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

var _ ports.DisplaySurface = (*Buffer)(nil)
