// Package orchestrator runs headless jobs over a saved project: rendering
// it to a video file or a single frame to an image.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/user/dusk/pkg/export"
	"github.com/user/dusk/pkg/framecache"
	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/project"
	"github.com/user/dusk/pkg/session"
	"github.com/user/dusk/pkg/summarizer"
	"github.com/user/dusk/pkg/timeline"
)

// ErrNoOutput is returned when a run has nowhere to write.
var ErrNoOutput = errors.New("orchestrator: no output path")

// Config contains all configuration for one headless run.
type Config struct {
	// Input/Output
	ProjectPath string
	OutputPath  string
	SummaryPath string // Markdown report; empty skips it

	Session session.Config

	// Zero values take the project's own settings.
	Size pipeline.Dimension
	FPS  float64

	// Range; a zero End renders to the end of the timeline.
	Start time.Duration
	End   time.Duration

	FrameTimeout time.Duration
	Encoder      ports.EncoderOptions
	Progress     func(done, total int)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	in := pipeline.DefaultExportInput()
	return Config{
		Session:      session.DefaultConfig(),
		FrameTimeout: 10 * time.Second,
		Encoder:      in.Encoder,
	}
}

// Orchestrator opens projects into a session and drives export over it.
type Orchestrator struct {
	deps    session.Deps
	encoder ports.VideoEncoder
	logger  ports.Logger
}

// New creates a new Orchestrator. deps are shared by every session it opens.
func New(deps session.Deps, encoder ports.VideoEncoder) *Orchestrator {
	return &Orchestrator{
		deps:    deps,
		encoder: encoder,
		logger:  deps.Logger.WithComponent("orchestrator"),
	}
}

// RunResult contains the results of an export run for summary generation.
type RunResult struct {
	ProjectPath string
	OutputPath  string
	SummaryPath string

	Settings project.Settings
	Size     pipeline.Dimension
	FPS      float64
	Encoder  ports.EncoderOptions

	Sources  []media.Info
	Clips    int
	Tracks   int
	Timeline time.Duration

	Export pipeline.ExportResult
	Start  time.Duration
	Cache  framecache.Stats
}

// SnapshotResult describes one rendered frame.
type SnapshotResult struct {
	OutputPath string
	Time       time.Duration
	Size       pipeline.Dimension
	Layers     int
	Bytes      int
}

// ThumbnailResult describes one clip thumbnail written to disk.
type ThumbnailResult struct {
	Clip       timeline.ClipID
	Source     string
	OutputPath string
	Size       pipeline.Dimension
}

// open loads the project into a new session. The caller closes it.
func (o *Orchestrator) open(ctx context.Context, config Config) (*session.Session, error) {
	o.logger.Info("Opening project %s", config.ProjectPath)

	doc, err := project.Load(o.deps.FileSystem, config.ProjectPath)
	if err != nil {
		o.logger.Error("Failed to open project: %s", err)
		return nil, fmt.Errorf("load project: %w", err)
	}

	sess, err := session.New(o.deps, config.Session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := sess.Open(ctx, doc); err != nil {
		sess.Close()
		o.logger.Error("Failed to open project: %s", err)
		return nil, fmt.Errorf("open project: %w", err)
	}

	if o.deps.Sink.Enabled() {
		if data, err := project.JSON(doc); err == nil {
			o.deps.Sink.SaveProjectJSON(data)
		}
	}
	return sess, nil
}

// frame resolves the output size and rate, preferring explicit overrides.
func frame(config Config, settings project.Settings) (pipeline.Dimension, float64) {
	size := config.Size
	if !size.Valid() {
		size = pipeline.Dimension{Width: settings.Width, Height: settings.Height}
	}
	fps := config.FPS
	if fps <= 0 {
		fps = settings.FPS
	}
	return size, fps
}

// Run renders the project to config.OutputPath and, when requested, writes
// a summary next to it.
func (o *Orchestrator) Run(ctx context.Context, config Config) (RunResult, error) {
	if config.OutputPath == "" {
		return RunResult{}, ErrNoOutput
	}

	sess, err := o.open(ctx, config)
	if err != nil {
		return RunResult{}, err
	}
	defer sess.Close()

	settings := sess.Settings()
	size, fps := frame(config, settings)
	snap := sess.Snapshot()

	opts := config.Encoder
	opts.OutputPath = config.OutputPath

	stage := export.NewStage(sess.Stage(), o.encoder, o.deps.Logger)
	exported, err := stage.Execute(ctx, pipeline.ExportInput{
		Snapshot:     snap,
		Size:         size,
		FPS:          fps,
		Start:        config.Start,
		End:          config.End,
		Background:   sess.Background(),
		FrameTimeout: config.FrameTimeout,
		Encoder:      opts,
		Progress:     config.Progress,
	})
	if err != nil {
		o.logger.Error("Failed to export video: %s", err)
		return RunResult{}, fmt.Errorf("export: %w", err)
	}
	o.logger.Info("Output saved to %s", config.OutputPath)

	result := RunResult{
		ProjectPath: config.ProjectPath,
		OutputPath:  config.OutputPath,
		Settings:    settings,
		Size:        size,
		FPS:         fps,
		Encoder:     opts,
		Sources:     sess.Sources(),
		Clips:       snap.Len(),
		Tracks:      len(snap.Tracks()),
		Timeline:    snap.Duration(),
		Export:      exported,
		Start:       config.Start,
		Cache:       sess.CacheStats(),
	}

	if config.SummaryPath != "" {
		writer := summarizer.NewWriter(summarizer.NewMarkdownFormatter(), o.deps.FileSystem)
		if err := writer.Write(config.SummaryPath, BuildSummary(result)); err != nil {
			// The video is already in place.
			o.logger.Warn("Failed to write summary: %s", err)
		} else {
			result.SummaryPath = config.SummaryPath
			o.logger.Info("Summary written to %s", config.SummaryPath)
		}
	}

	return result, nil
}

// Snapshot composites the project at t and writes it as a PNG to outPath.
func (o *Orchestrator) Snapshot(ctx context.Context, config Config, t time.Duration, outPath string) (SnapshotResult, error) {
	if outPath == "" {
		return SnapshotResult{}, ErrNoOutput
	}

	sess, err := o.open(ctx, config)
	if err != nil {
		return SnapshotResult{}, err
	}
	defer sess.Close()

	size, _ := frame(config, sess.Settings())
	if config.FrameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.FrameTimeout)
		defer cancel()
	}
	res, err := sess.Composite(ctx, t, size)
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("composite at %s: %w", t, err)
	}
	if len(res.Failures) > 0 {
		return SnapshotResult{}, fmt.Errorf("composite at %s: %w", t, res.Failures[0])
	}

	data, err := o.deps.Renderer.EncodeImage(res.Image, ports.FormatPNG, 0)
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := o.deps.FileSystem.WriteFile(outPath, data); err != nil {
		return SnapshotResult{}, fmt.Errorf("write snapshot: %w", err)
	}
	o.logger.Info("Snapshot at %s written to %s", t, outPath)

	return SnapshotResult{
		OutputPath: outPath,
		Time:       t,
		Size:       size,
		Layers:     res.Visual,
		Bytes:      len(data),
	}, nil
}

// Thumbnails writes a PNG of the first frame of every picture clip into
// dir, named after the clip id and fitted into maxW x maxH.
func (o *Orchestrator) Thumbnails(ctx context.Context, config Config, dir string, maxW, maxH int) ([]ThumbnailResult, error) {
	if dir == "" {
		return nil, ErrNoOutput
	}

	sess, err := o.open(ctx, config)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	infos := make(map[media.SourceID]media.Info)
	for _, info := range sess.Sources() {
		infos[info.ID] = info
	}

	var results []ThumbnailResult
	for _, c := range sess.Timeline().Clips() {
		info := infos[c.Source]
		if info.Kind == media.KindAudio {
			continue
		}
		img, err := sess.Thumbnail(ctx, c.ID, maxW, maxH)
		if err != nil {
			return results, fmt.Errorf("thumbnail of clip %s: %w", c.ID, err)
		}
		data, err := o.deps.Renderer.EncodeImage(img, ports.FormatPNG, 0)
		if err != nil {
			return results, fmt.Errorf("encode thumbnail: %w", err)
		}
		out := filepath.Join(dir, string(c.ID)+".png")
		if err := o.deps.FileSystem.WriteFile(out, data); err != nil {
			return results, fmt.Errorf("write thumbnail: %w", err)
		}
		b := img.Bounds()
		results = append(results, ThumbnailResult{
			Clip:       c.ID,
			Source:     info.Path,
			OutputPath: out,
			Size:       pipeline.Dimension{Width: b.Dx(), Height: b.Dy()},
		})
	}
	o.logger.Info("%d thumbnails written to %s", len(results), dir)
	return results, nil
}

// BuildSummary converts a run into a report.
func BuildSummary(r RunResult) *summarizer.Summary {
	b := summarizer.NewBuilder().
		WithProject(r.ProjectPath, r.Timeline, r.Clips, r.Tracks).
		WithSettings(summarizer.Settings{
			Width:      r.Size.Width,
			Height:     r.Size.Height,
			FPS:        r.FPS,
			Background: r.Settings.Background,
			Codec:      r.Encoder.Codec,
			CRF:        r.Encoder.Quality,
			Bitrate:    r.Encoder.Bitrate,
		}).
		WithVideo(summarizer.VideoInfo{
			OutputPath: r.OutputPath,
			FrameCount: r.Export.Frames,
			Start:      r.Start,
			Duration:   r.Export.Duration,
			Elapsed:    r.Export.Elapsed,
		}).
		WithCache(summarizer.CacheInfo{
			Hits:      r.Cache.Hits,
			Misses:    r.Cache.Misses,
			Coalesced: r.Cache.Coalesced,
			Evictions: r.Cache.Evictions,
			Failures:  r.Cache.Failures,
		})

	for _, src := range r.Sources {
		b.WithSource(summarizer.SourceInfo{
			Path:      src.Path,
			Kind:      src.Kind.String(),
			Duration:  src.Duration,
			FrameRate: src.FrameRate,
			Width:     src.Width,
			Height:    src.Height,
		})
	}
	return b.Build()
}
