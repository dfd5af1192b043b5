package mocks

import (
	"image"
	"sync"

	"github.com/user/dusk/pkg/ports"
)

// VideoEncoder is a mock implementation of ports.VideoEncoder.
type VideoEncoder struct {
	mu sync.Mutex

	BeginFunc       func(width, height int, fps float64, opts ports.EncoderOptions) error
	EncodeFrameFunc func(img image.Image, timestampMs int) error
	EndFunc         func() error
	AbortFunc       func() error

	// Recorded calls for verification
	BeginCalled      bool
	BeginOptions     ports.EncoderOptions
	EncodeFrameCalls []EncodeFrameCall
	EndCalled        bool
	AbortCalled      bool
}

// EncodeFrameCall records a call to EncodeFrame.
type EncodeFrameCall struct {
	TimestampMs int
	Image       image.Image
}

func (m *VideoEncoder) Begin(width, height int, fps float64, opts ports.EncoderOptions) error {
	m.mu.Lock()
	m.BeginCalled = true
	m.BeginOptions = opts
	m.mu.Unlock()
	if m.BeginFunc != nil {
		return m.BeginFunc(width, height, fps, opts)
	}
	return nil
}

func (m *VideoEncoder) EncodeFrame(img image.Image, timestampMs int) error {
	m.mu.Lock()
	m.EncodeFrameCalls = append(m.EncodeFrameCalls, EncodeFrameCall{TimestampMs: timestampMs, Image: img})
	m.mu.Unlock()
	if m.EncodeFrameFunc != nil {
		return m.EncodeFrameFunc(img, timestampMs)
	}
	return nil
}

func (m *VideoEncoder) End() error {
	m.mu.Lock()
	m.EndCalled = true
	m.mu.Unlock()
	if m.EndFunc != nil {
		return m.EndFunc()
	}
	return nil
}

func (m *VideoEncoder) Abort() error {
	m.mu.Lock()
	m.AbortCalled = true
	m.mu.Unlock()
	if m.AbortFunc != nil {
		return m.AbortFunc()
	}
	return nil
}

// Timestamps returns the timestamps handed to EncodeFrame, in call order.
func (m *VideoEncoder) Timestamps() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := make([]int, len(m.EncodeFrameCalls))
	for i, c := range m.EncodeFrameCalls {
		ts[i] = c.TimestampMs
	}
	return ts
}

var _ ports.VideoEncoder = (*VideoEncoder)(nil)
