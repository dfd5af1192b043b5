package media

import (
	"sync"
	"time"
)

// StillSource serves one decoded image for every request.
type StillSource struct {
	info  Info
	frame *Frame

	mu     sync.Mutex
	closed bool
}

// NewStillSource wraps an already decoded frame.
func NewStillSource(info Info, frame *Frame) *StillSource {
	info.Kind = KindImage
	info.Width, info.Height = frame.Width, frame.Height
	frame.Source = info.ID
	return &StillSource{info: info, frame: frame}
}

func (s *StillSource) ID() SourceID { return s.info.ID }

func (s *StillSource) Info() Info { return s.info }

// RequestFrame resolves immediately with the still picture.
func (s *StillSource) RequestFrame(t time.Duration) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Resolved(nil, ErrClosed)
	}
	return Resolved(s.frame, nil)
}

func (s *StillSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StateClosed
	}
	return StateIdle
}

func (s *StillSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// AudioSource is placeable on the timeline but never produces pictures.
type AudioSource struct {
	info Info

	mu     sync.Mutex
	closed bool
}

// NewAudioSource creates an audio-only source.
func NewAudioSource(info Info) *AudioSource {
	info.Kind = KindAudio
	return &AudioSource{info: info}
}

func (s *AudioSource) ID() SourceID { return s.info.ID }

func (s *AudioSource) Info() Info { return s.info }

func (s *AudioSource) RequestFrame(t time.Duration) *Pending {
	return Resolved(nil, ErrNoVideo)
}

func (s *AudioSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StateClosed
	}
	return StateIdle
}

func (s *AudioSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
