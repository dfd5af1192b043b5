package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/dusk/pkg/ports"
)

// Prober is a mock implementation of ports.Prober.
type Prober struct {
	mu sync.Mutex

	ProbeFunc func(ctx context.Context, path string) (ports.MediaInfo, error)
	Infos     map[string]ports.MediaInfo

	ProbeCalls []string
}

// NewProber creates a Prober answering from infos.
func NewProber(infos map[string]ports.MediaInfo) *Prober {
	return &Prober{Infos: infos}
}

func (m *Prober) Probe(ctx context.Context, path string) (ports.MediaInfo, error) {
	m.mu.Lock()
	m.ProbeCalls = append(m.ProbeCalls, path)
	m.mu.Unlock()
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, path)
	}
	if info, ok := m.Infos[path]; ok {
		return info, nil
	}
	return ports.MediaInfo{}, fmt.Errorf("no such media: %s", path)
}

var _ ports.Prober = (*Prober)(nil)
