package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/user/dusk/pkg/ports"
)

var (
	// ErrUnknownSource is returned for ids the registry does not hold.
	ErrUnknownSource = errors.New("media: unknown source")
)

// RegistryDeps holds the adapters a Registry needs.
type RegistryDeps struct {
	Decoders   ports.DecoderFactory
	Prober     ports.Prober
	Renderer   ports.Renderer
	FileSystem ports.FileSystem
	Logger     ports.Logger
}

// Registry shares one Source per file path and reference counts it.
// A source is torn down when its last reference is released.
type Registry struct {
	deps   RegistryDeps
	cfg    VideoConfig
	logger ports.Logger

	mu     sync.Mutex
	byID   map[SourceID]*registryEntry
	byPath map[string]*registryEntry
}

type registryEntry struct {
	src  Source
	refs int
}

// NewRegistry creates an empty registry.
func NewRegistry(deps RegistryDeps, cfg VideoConfig) *Registry {
	return &Registry{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger.WithComponent("registry"),
		byID:   make(map[SourceID]*registryEntry),
		byPath: make(map[string]*registryEntry),
	}
}

// Acquire returns the source for path, creating it on first use, and takes a
// reference on it. KindAuto detects the kind from the extension.
func (r *Registry) Acquire(ctx context.Context, path string, kind Kind) (Source, error) {
	r.mu.Lock()
	if e, ok := r.byPath[path]; ok {
		e.refs++
		r.mu.Unlock()
		return e.src, nil
	}
	r.mu.Unlock()

	if kind == KindAuto {
		k, err := KindFromPath(path)
		if err != nil {
			return nil, err
		}
		kind = k
	}

	src, err := r.open(ctx, path, kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Lost a race with a concurrent Acquire of the same path.
	if e, ok := r.byPath[path]; ok {
		e.refs++
		_ = src.Close()
		return e.src, nil
	}
	e := &registryEntry{src: src, refs: 1}
	r.byID[src.ID()] = e
	r.byPath[path] = e
	r.logger.Debug("Source opened: %s (%s)", path, kind)
	return src, nil
}

func (r *Registry) open(ctx context.Context, path string, kind Kind) (Source, error) {
	info := Info{
		ID:   SourceID(uuid.NewString()),
		Path: path,
		Kind: kind,
	}

	switch kind {
	case KindImage:
		data, err := r.deps.FileSystem.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		img, err := r.deps.Renderer.DecodeImage(data, ports.FormatAuto)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return NewStillSource(info, FrameFromImage(info.ID, 0, img)), nil

	case KindVideo, KindAudio:
		mi, err := r.deps.Prober.Probe(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", path, err)
		}
		info.Duration = mi.Duration
		info.FrameRate = mi.FrameRate
		info.Width, info.Height = mi.Width, mi.Height
		if kind == KindAudio || !mi.HasVideo {
			return NewAudioSource(info), nil
		}
		if info.Width <= 0 || info.Height <= 0 {
			return nil, fmt.Errorf("%w: %s has no picture size", ErrNoVideo, path)
		}
		return NewVideoSource(info, r.deps.Decoders, r.cfg, r.deps.Logger), nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// Retain takes another reference on an existing source.
func (r *Registry) Retain(id SourceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	e.refs++
	return nil
}

// Release drops one reference. It reports whether the source was torn down.
func (r *Registry) Release(id SourceID) (bool, error) {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.byID, id)
	delete(r.byPath, e.src.Info().Path)
	r.mu.Unlock()

	r.logger.Debug("Source closed: %s", e.src.Info().Path)
	return true, e.src.Close()
}

// Lookup returns the source with the given id.
func (r *Registry) Lookup(id SourceID) (Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return e.src, true
}

// Resetter is implemented by sources that can leave the Failed state.
type Resetter interface {
	Reset() bool
}

// Reset clears the Failed state of a source. It reports false for sources
// that were not failed or cannot recover.
func (r *Registry) Reset(id SourceID) (bool, error) {
	src, ok := r.Lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	rs, ok := src.(Resetter)
	if !ok {
		return false, nil
	}
	return rs.Reset(), nil
}

// SourceInfo returns the properties of a source.
func (r *Registry) SourceInfo(id SourceID) (Info, bool) {
	src, ok := r.Lookup(id)
	if !ok {
		return Info{}, false
	}
	return src.Info(), true
}

// Refs returns the reference count of a source, 0 when unknown.
func (r *Registry) Refs(id SourceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[id]; ok {
		return e.refs
	}
	return 0
}

// Sources lists every open source ordered by path.
func (r *Registry) Sources() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.byID))
	for _, e := range r.byID {
		infos = append(infos, e.src.Info())
	}
	r.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// Close tears down every source regardless of reference counts.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := make([]*registryEntry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.byID = make(map[SourceID]*registryEntry)
	r.byPath = make(map[string]*registryEntry)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
