// Package session is an open editing session: the sources in use, the
// timeline, and the frame cache and compositor that render it.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/user/dusk/pkg/compositor"
	"github.com/user/dusk/pkg/framecache"
	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/project"
	"github.com/user/dusk/pkg/timeline"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session: closed")

// Deps holds the adapters a session runs on.
type Deps struct {
	Decoders   ports.DecoderFactory
	Prober     ports.Prober
	Renderer   ports.Renderer
	FileSystem ports.FileSystem
	Sink       ports.DebugSink
	Logger     ports.Logger
}

// Config configures a session.
type Config struct {
	Video         media.VideoConfig
	CacheCapacity int
	Workers       int
	StillDuration time.Duration // Length given to still images added with AddFile
	FrameTimeout  time.Duration // Per-layer wait for Composite and Thumbnail
	Settings      project.Settings
	Background    color.Color
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Video:         media.DefaultVideoConfig(),
		CacheCapacity: 120,
		StillDuration: 5 * time.Second,
		FrameTimeout:  10 * time.Second,
		Settings:      project.Settings{Width: 1280, Height: 720, FPS: 30, Background: "#191923"},
		Background:    pipeline.DefaultBackground,
	}
}

// Session owns every component needed to edit and render one project.
// Each clip holds one reference on its source.
type Session struct {
	cfg        Config
	renderer   ports.Renderer
	registry   *media.Registry
	timeline   *timeline.Timeline
	cache      *framecache.Cache
	compositor *compositor.Stage
	logger     ports.Logger

	mu     sync.Mutex
	closed bool
}

// New creates an empty session.
func New(deps Deps, cfg Config) (*Session, error) {
	if cfg.Video.DefaultFrameRate <= 0 {
		cfg.Video = media.DefaultVideoConfig()
	}
	if cfg.StillDuration <= 0 {
		cfg.StillDuration = DefaultConfig().StillDuration
	}
	if cfg.Background == nil {
		cfg.Background = pipeline.DefaultBackground
	}

	cache, err := framecache.New(framecache.Config{
		Capacity:         cfg.CacheCapacity,
		DefaultFrameRate: cfg.Video.DefaultFrameRate,
	}, deps.Logger)
	if err != nil {
		return nil, err
	}

	registry := media.NewRegistry(media.RegistryDeps{
		Decoders:   deps.Decoders,
		Prober:     deps.Prober,
		Renderer:   deps.Renderer,
		FileSystem: deps.FileSystem,
		Logger:     deps.Logger,
	}, cfg.Video)

	return &Session{
		cfg:        cfg,
		renderer:   deps.Renderer,
		registry:   registry,
		timeline:   timeline.New(registry),
		cache:      cache,
		compositor: compositor.NewStage(deps.Renderer, cache, registry, deps.Sink, deps.Logger, cfg.Workers),
		logger:     deps.Logger.WithComponent("session"),
	}, nil
}

// Stage returns the compositor, for playback and export.
func (s *Session) Stage() *compositor.Stage { return s.compositor }

// Timeline returns the edited timeline.
func (s *Session) Timeline() *timeline.Timeline { return s.timeline }

// Snapshot returns the current timeline state.
func (s *Session) Snapshot() *timeline.Snapshot { return s.timeline.Snapshot() }

// Settings returns the output settings.
func (s *Session) Settings() project.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Settings
}

// SetSettings replaces the output settings stored with the project.
func (s *Session) SetSettings(settings project.Settings) {
	s.mu.Lock()
	s.cfg.Settings = settings
	s.mu.Unlock()
}

// Background returns the canvas colour composites are drawn on.
func (s *Session) Background() color.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Background
}

// Sources lists the open sources.
func (s *Session) Sources() []media.Info { return s.registry.Sources() }

// CacheStats reports frame cache activity.
func (s *Session) CacheStats() framecache.Stats { return s.cache.Stats() }

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// AddFile opens path (detecting its kind from the extension) and places the
// whole of it on track at start. Stills get the configured still duration.
func (s *Session) AddFile(ctx context.Context, path string, track int, start time.Duration) (timeline.ClipID, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	src, err := s.registry.Acquire(ctx, path, media.KindAuto)
	if err != nil {
		return "", err
	}

	info := src.Info()
	duration := info.Duration
	if duration <= 0 {
		duration = s.cfg.StillDuration
	}
	id, err := s.timeline.AddClip(timeline.Clip{
		Source:    info.ID,
		Track:     track,
		Start:     start,
		Duration:  duration,
		Opacity:   1,
		Transform: timeline.Identity(),
	})
	if err != nil {
		s.release(info.ID)
		return "", err
	}
	return id, nil
}

// AddClip places a clip of an already open source.
func (s *Session) AddClip(c timeline.Clip) (timeline.ClipID, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if err := s.registry.Retain(c.Source); err != nil {
		return "", fmt.Errorf("%w: %w", timeline.ErrUnknownSource, err)
	}
	id, err := s.timeline.AddClip(c)
	if err != nil {
		s.release(c.Source)
		return "", err
	}
	return id, nil
}

func (s *Session) MoveClip(id timeline.ClipID, track int, start time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.timeline.MoveClip(id, track, start)
}

func (s *Session) TrimClip(id timeline.ClipID, inOffset, duration time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.timeline.TrimClip(id, inOffset, duration)
}

func (s *Session) SetOpacity(id timeline.ClipID, opacity float64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.timeline.SetOpacity(id, opacity)
}

func (s *Session) SetTransform(id timeline.ClipID, tr timeline.Transform) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.timeline.SetTransform(id, tr)
}

// DeleteClip removes a clip and drops its source reference. A source no
// clip uses any more is closed and its cached frames discarded.
func (s *Session) DeleteClip(id timeline.ClipID) (timeline.Clip, error) {
	if err := s.checkOpen(); err != nil {
		return timeline.Clip{}, err
	}
	c, err := s.timeline.DeleteClip(id)
	if err != nil {
		return timeline.Clip{}, err
	}
	s.release(c.Source)
	return c, nil
}

func (s *Session) release(id media.SourceID) {
	closed, err := s.registry.Release(id)
	if err != nil {
		s.logger.Warn("Source %s failed: %v", id, err)
	}
	if closed {
		s.cache.Invalidate(id)
	}
}

// RetrySource gives a failed source a fresh set of decoder restarts.
// It reports whether the source was failed.
func (s *Session) RetrySource(id media.SourceID) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	reset, err := s.registry.Reset(id)
	if err != nil {
		return false, err
	}
	if reset {
		s.logger.Info("Retrying source %s", id)
	}
	return reset, nil
}

// Composite renders the timeline at t, waiting for every layer.
func (s *Session) Composite(ctx context.Context, t time.Duration, size pipeline.Dimension) (pipeline.CompositeResult, error) {
	if err := s.checkOpen(); err != nil {
		return pipeline.CompositeResult{}, err
	}
	return s.compositor.Execute(ctx, pipeline.CompositeInput{
		Time:         t,
		Entries:      s.timeline.Snapshot().Resolve(t),
		Size:         size,
		Background:   s.Background(),
		Policy:       pipeline.PolicyWait,
		FrameTimeout: s.cfg.FrameTimeout,
		FrameIndex:   -1,
	})
}

// Thumbnail returns the first frame a clip shows, fitted into maxW x maxH.
func (s *Session) Thumbnail(ctx context.Context, id timeline.ClipID, maxW, maxH int) (image.Image, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	c, ok := s.timeline.Clip(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", timeline.ErrClipNotFound, id)
	}
	src, ok := s.registry.Lookup(c.Source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", media.ErrUnknownSource, c.Source)
	}

	if s.cfg.FrameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FrameTimeout)
		defer cancel()
	}
	frame, err := s.cache.GetOrFetch(ctx, src, c.InOffset)
	if err != nil {
		return nil, err
	}
	return s.renderer.Thumbnail(frame.Image(), maxW, maxH), nil
}

// Document captures the session as a project document.
func (s *Session) Document() project.Document {
	return project.New(s.Settings(), s.timeline.Clips(), s.registry.Sources())
}

// Open replaces the session contents with doc. Every source is opened and
// every clip re-validated before anything changes; on failure the session
// is left as it was.
func (s *Session) Open(ctx context.Context, doc project.Document) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	// One reference per clip, taken up front.
	refs := make(map[string]int, len(doc.Sources))
	for _, c := range doc.Clips {
		refs[c.Source]++
	}

	ids := make(map[string]media.SourceID, len(doc.Sources))
	var acquired []media.SourceID
	rollback := func() {
		for _, id := range acquired {
			s.release(id)
		}
	}

	for _, ref := range doc.Sources {
		kind, _ := media.ParseKind(ref.Kind)
		for i := 0; i < refs[ref.ID]; i++ {
			src, err := s.registry.Acquire(ctx, ref.Path, kind)
			if err != nil {
				rollback()
				return fmt.Errorf("open source %s: %w", ref.Path, err)
			}
			ids[ref.ID] = src.ID()
			acquired = append(acquired, src.ID())
		}
	}

	clips, err := doc.TimelineClips(ids)
	if err != nil {
		rollback()
		return err
	}

	previous := s.timeline.Clips()
	if err := s.timeline.Replace(clips); err != nil {
		rollback()
		return err
	}
	for _, c := range previous {
		s.release(c.Source)
	}

	s.mu.Lock()
	s.cfg.Settings = project.Settings{
		Width:      doc.Width,
		Height:     doc.Height,
		FPS:        doc.FPS,
		Background: doc.Background,
	}
	if doc.Background != "" {
		if bg, err := pipeline.ParseColor(doc.Background); err == nil {
			s.cfg.Background = bg
		} else {
			s.logger.Warn("Ignoring project background: %v", err)
		}
	}
	s.mu.Unlock()
	s.logger.Info("Project opened: %d sources, %d clips, %s", len(doc.Sources), len(clips), s.timeline.Duration())
	return nil
}

// Close releases every source. The session cannot be used afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.registry.Close()
	s.cache.Purge()
	return err
}
