package mocks

import (
	"image"
	"image/draw"
	"sync"

	"github.com/user/dusk/pkg/ports"
)

// DisplaySurface is a mock implementation of ports.DisplaySurface.
// It keeps a copy of the last presented frame.
type DisplaySurface struct {
	mu sync.Mutex

	PresentFunc func(img *image.RGBA, width, height int) error

	Presented int
	Last      *image.RGBA
	Sizes     []image.Point
}

func (m *DisplaySurface) Present(img *image.RGBA, width, height int) error {
	if m.PresentFunc != nil {
		if err := m.PresentFunc(img, width, height); err != nil {
			return err
		}
	}
	cp := image.NewRGBA(img.Bounds())
	draw.Draw(cp, cp.Bounds(), img, img.Bounds().Min, draw.Src)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Presented++
	m.Last = cp
	m.Sizes = append(m.Sizes, image.Pt(width, height))
	return nil
}

// Count returns the number of frames presented.
func (m *DisplaySurface) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Presented
}

// LastFrame returns the most recent frame and its size.
func (m *DisplaySurface) LastFrame() (*image.RGBA, image.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sizes) == 0 {
		return nil, image.Point{}
	}
	return m.Last, m.Sizes[len(m.Sizes)-1]
}

var _ ports.DisplaySurface = (*DisplaySurface)(nil)
