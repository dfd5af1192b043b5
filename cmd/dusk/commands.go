package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/user/dusk/pkg/adapters/ffmpegencoder"
	"github.com/user/dusk/pkg/adapters/framebuffer"
	"github.com/user/dusk/pkg/adapters/mediaprobe"
	"github.com/user/dusk/pkg/config"
	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/orchestrator"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/playback"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/project"
	"github.com/user/dusk/pkg/session"
)

var errUsage = errors.New("invalid arguments")

func sizeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:     "width",
			Aliases:  []string{"W"},
			Usage:    l10n.T("Output width (default: project setting)"),
			Category: l10n.T(categoryOutput),
		},
		&cli.IntFlag{
			Name:     "height",
			Aliases:  []string{"H"},
			Usage:    l10n.T("Output height (default: project setting)"),
			Category: l10n.T(categoryOutput),
		},
	}
}

func sizeOverride(c *cli.Context) pipeline.Dimension {
	return pipeline.Dimension{Width: c.Int("width"), Height: c.Int("height")}
}

// --- create ---

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     l10n.T("Create a project from media files"),
		ArgsUsage: "<project> <media>...",
		Description: l10n.T("Places each file on track 0 one after another, or each on its own track " +
			"from the start with --layered. A .yaml or .yml project is written as YAML, anything else as MessagePack."),
		Flags: append(sizeFlags(),
			&cli.BoolFlag{
				Name:  "layered",
				Usage: l10n.T("Put each file on its own track, later files on top"),
			},
			&cli.Float64Flag{
				Name:     "fps",
				Usage:    l10n.T("Project frame rate"),
				Category: l10n.T(categoryOutput),
			},
			&cli.StringFlag{
				Name:     "background",
				Usage:    l10n.T("Background color (hex, e.g., #191923)"),
				Category: l10n.T(categoryOutput),
			},
			&cli.DurationFlag{
				Name:  "still-duration",
				Usage: l10n.T("Length of still images"),
			},
		),
		Action: runCreate,
	}
}

func runCreate(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("a project path and at least one media file are required"))
	}
	path := c.Args().First()
	files := c.Args().Slice()[1:]

	e, err := setup(c, func(cfg *config.Config) {
		if c.IsSet("width") {
			cfg.Output.Width = c.Int("width")
		}
		if c.IsSet("height") {
			cfg.Output.Height = c.Int("height")
		}
		if c.IsSet("fps") {
			cfg.Export.FPS = c.Float64("fps")
		}
		if c.IsSet("background") {
			cfg.Output.Background = c.String("background")
		}
		if c.IsSet("still-duration") {
			cfg.StillDurationMs = int(c.Duration("still-duration").Milliseconds())
		}
	})
	if err != nil {
		return err
	}

	sess, err := session.New(e.deps, e.cfg.SessionConfig())
	if err != nil {
		return err
	}
	defer sess.Close()

	var start time.Duration
	for i, file := range files {
		track, at := 0, start
		if c.Bool("layered") {
			track, at = i, 0
		}
		id, err := sess.AddFile(c.Context, file, track, at)
		if err != nil {
			return fmt.Errorf("add %s: %w", file, err)
		}
		if clip, ok := sess.Timeline().Clip(id); ok {
			start = clip.End()
		}
	}

	if err := project.Save(e.fs, path, sess.Document()); err != nil {
		return err
	}
	e.log.Info("Project saved to %s", path)

	snap := sess.Snapshot()
	fmt.Println(l10n.F("%s: %d clips on %d tracks, %s", path, snap.Len(), len(snap.Tracks()), snap.Duration()))
	return nil
}

// --- export ---

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     l10n.T("Render a project to a video file"),
		ArgsUsage: "<project>",
		Flags: append(sizeFlags(),
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    l10n.T("Output video file path (required)"),
				Required: true,
				Category: l10n.T(categoryOutput),
			},
			&cli.Float64Flag{
				Name:     "fps",
				Usage:    l10n.T("Output frame rate (default: project setting)"),
				Category: l10n.T(categoryOutput),
			},
			&cli.StringFlag{
				Name:     "summary",
				Usage:    l10n.T("Write a Markdown export summary to this path"),
				Category: l10n.T(categoryOutput),
			},
			&cli.DurationFlag{
				Name:     "start",
				Usage:    l10n.T("Timeline position to start from"),
				Category: l10n.T(categoryRange),
			},
			&cli.DurationFlag{
				Name:     "end",
				Usage:    l10n.T("Timeline position to stop at (default: end of timeline)"),
				Category: l10n.T(categoryRange),
			},
			&cli.StringFlag{
				Name:     "quality",
				Aliases:  []string{"q"},
				Usage:    l10n.T("Quality preset (low, medium, high)"),
				Category: l10n.T(categoryQuality),
			},
			&cli.IntFlag{
				Name:     "crf",
				Usage:    l10n.T("Video CRF value (0-63, lower is better, overrides quality preset)"),
				Category: l10n.T(categoryQuality),
			},
			&cli.IntFlag{
				Name:     "bitrate",
				Usage:    l10n.T("Target bitrate in kbps"),
				Category: l10n.T(categoryQuality),
			},
			&cli.StringFlag{
				Name:     "codec",
				Usage:    l10n.T("ffmpeg video codec (e.g., libx264, libx265, libsvtav1)"),
				Category: l10n.T(categoryQuality),
			},
		),
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("exactly one project path is required"))
	}

	e, err := setup(c, func(cfg *config.Config) {
		if c.IsSet("quality") {
			cfg.Export.Quality = c.String("quality")
			cfg.Export.CRF = 0
		}
		if c.IsSet("crf") {
			cfg.Export.CRF = c.Int("crf")
		}
		if c.IsSet("bitrate") {
			cfg.Export.Bitrate = c.Int("bitrate")
		}
		if c.IsSet("codec") {
			cfg.Export.Codec = c.String("codec")
		}
	})
	if err != nil {
		return err
	}

	encoder, err := ffmpegencoder.New(e.cfg.Decoder.FFmpegPath, e.log)
	if err != nil {
		return err
	}

	output := c.String("output")
	oc := e.cfg.ToOrchestratorConfig(c.Args().First(), output)
	oc.SummaryPath = c.String("summary")
	oc.Size = sizeOverride(c)
	oc.FPS = c.Float64("fps")
	oc.Start = c.Duration("start")
	oc.End = c.Duration("end")
	if interactive() && !c.Bool("quiet") {
		oc.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r%s", l10n.F("Rendering frame %d/%d", done, total))
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	result, err := orchestrator.New(e.deps, encoder).Run(c.Context, oc)
	if err != nil {
		return err
	}

	fmt.Println(l10n.F("%s: %d frames, %s at %s, rendered in %s",
		result.OutputPath, result.Export.Frames, result.Size, formatFPS(result.FPS),
		result.Export.Elapsed.Round(time.Millisecond)))
	return nil
}

// --- snapshot ---

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshot",
		Usage:     l10n.T("Render one frame of a project to a PNG image"),
		ArgsUsage: "<project>",
		Flags: append(sizeFlags(),
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    l10n.T("Output PNG file path (required)"),
				Required: true,
				Category: l10n.T(categoryOutput),
			},
			&cli.DurationFlag{
				Name:  "at",
				Usage: l10n.T("Timeline position to render"),
			},
		),
		Action: runSnapshot,
	}
}

func runSnapshot(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("exactly one project path is required"))
	}

	e, err := setup(c, nil)
	if err != nil {
		return err
	}

	oc := e.cfg.ToOrchestratorConfig(c.Args().First(), "")
	oc.Size = sizeOverride(c)

	// Snapshots never encode video.
	result, err := orchestrator.New(e.deps, nil).Snapshot(c.Context, oc, c.Duration("at"), c.String("output"))
	if err != nil {
		return err
	}

	fmt.Println(l10n.F("%s: %s at %s, %d layers", result.OutputPath, result.Size, result.Time, result.Layers))
	return nil
}

// --- thumbnail ---

func thumbnailCommand() *cli.Command {
	return &cli.Command{
		Name:      "thumbnail",
		Usage:     l10n.T("Write a PNG thumbnail of every picture clip"),
		ArgsUsage: "<project>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Aliases:  []string{"d"},
				Value:    "thumbnails",
				Usage:    l10n.T("Directory to write thumbnails to"),
				Category: l10n.T(categoryOutput),
			},
			&cli.IntFlag{
				Name:     "max-width",
				Value:    160,
				Usage:    l10n.T("Largest thumbnail width"),
				Category: l10n.T(categoryOutput),
			},
			&cli.IntFlag{
				Name:     "max-height",
				Value:    90,
				Usage:    l10n.T("Largest thumbnail height"),
				Category: l10n.T(categoryOutput),
			},
		},
		Action: runThumbnail,
	}
}

func runThumbnail(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("exactly one project path is required"))
	}

	e, err := setup(c, nil)
	if err != nil {
		return err
	}

	oc := e.cfg.ToOrchestratorConfig(c.Args().First(), "")
	results, err := orchestrator.New(e.deps, nil).Thumbnails(c.Context, oc, c.String("dir"), c.Int("max-width"), c.Int("max-height"))
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Println(l10n.F("%s: %s (%s)", r.OutputPath, r.Source, r.Size))
	}
	return nil
}

// --- preview ---

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     l10n.T("Play a project off-screen and report playback statistics"),
		ArgsUsage: "<project>",
		Flags: append(sizeFlags(),
			&cli.DurationFlag{
				Name:     "from",
				Usage:    l10n.T("Timeline position to start playing from"),
				Category: l10n.T(categoryRange),
			},
			&cli.DurationFlag{
				Name:     "duration",
				Value:    5 * time.Second,
				Usage:    l10n.T("How long to play"),
				Category: l10n.T(categoryRange),
			},
			&cli.Float64Flag{
				Name:     "fps",
				Usage:    l10n.T("Preview frame rate"),
				Category: l10n.T(categoryPreview),
			},
			&cli.StringFlag{
				Name:     "policy",
				Usage:    l10n.T("What a late layer shows: reuse (previous frame) or wait"),
				Category: l10n.T(categoryPreview),
			},
			&cli.IntFlag{
				Name:     "retry-failed",
				Usage:    l10n.T("Times to retry a source whose decoder keeps crashing"),
				Category: l10n.T(categoryPreview),
			},
			&cli.StringFlag{
				Name:     "save",
				Usage:    l10n.T("Save the last presented frame as PNG"),
				Category: l10n.T(categoryOutput),
			},
		),
		Action: runPreview,
	}
}

func runPreview(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("exactly one project path is required"))
	}
	path := c.Args().First()

	e, err := setup(c, func(cfg *config.Config) {
		if c.IsSet("fps") {
			cfg.Preview.FPS = c.Float64("fps")
		}
		if c.IsSet("policy") {
			cfg.Preview.PendingPolicy = c.String("policy")
		}
	})
	if err != nil {
		return err
	}

	doc, err := project.Load(e.fs, path)
	if err != nil {
		return err
	}
	sess, err := session.New(e.deps, e.cfg.SessionConfig())
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Open(c.Context, doc); err != nil {
		return err
	}

	pc := e.cfg.PlaybackConfig()
	pc.Size = pipeline.Dimension{Width: doc.Width, Height: doc.Height}
	if size := sizeOverride(c); size.Valid() {
		pc.Size = size
	}
	pc.Background = sess.Background()

	display := framebuffer.New()
	engine := playback.New(sess.Stage(), sess, display, pc, e.log)
	defer engine.Close()

	if err := engine.Seek(c.Duration("from")); err != nil {
		return err
	}
	if err := engine.Play(); err != nil {
		return err
	}

	failures := 0
	retries := make(map[media.SourceID]int)
	timer := time.NewTimer(c.Duration("duration"))
	defer timer.Stop()
loop:
	for {
		select {
		case <-c.Context.Done():
			break loop
		case <-timer.C:
			break loop
		case ev, ok := <-engine.Events():
			if !ok {
				break loop
			}
			switch ev.Kind {
			case playback.EventDecodeFailure:
				failures++
				e.log.Warn("Source %s failed: %v", ev.Source, ev.Err)
				if retries[ev.Source] >= c.Int("retry-failed") {
					continue
				}
				retries[ev.Source]++
				if _, err := sess.RetrySource(ev.Source); err != nil {
					return err
				}
				if err := engine.Rearm(ev.Source); err != nil {
					return err
				}
			case playback.EventEnded:
				break loop
			}
		}
	}

	position := engine.Position()
	stats := engine.Stats()
	engine.Close()
	shown := display.Stats()

	fmt.Println(l10n.F("Played %s to %s at %s", path, position.Round(time.Millisecond), pc.Size))
	fmt.Println(l10n.F("Presented %d frames (%.1f fps), longest gap %s", shown.Frames, shown.FPS(), shown.MaxGap.Round(time.Millisecond)))
	fmt.Println(l10n.F("Ticks %d, dropped %d, composites %d, cancelled %d, errors %d, decode failures %d",
		stats.Ticks, stats.DroppedTicks, stats.Composites, stats.Cancelled, stats.Errors, failures))
	cache := sess.CacheStats()
	fmt.Println(l10n.F("Frame cache: %d hits, %d misses, %d evictions", cache.Hits, cache.Misses, cache.Evictions))

	if out := c.String("save"); out != "" {
		frame := display.Frame()
		if frame == nil {
			return errors.New(l10n.T("no frame was presented"))
		}
		data, err := e.deps.Renderer.EncodeImage(frame, ports.FormatPNG, 0)
		if err != nil {
			return err
		}
		if err := e.fs.WriteFile(out, data); err != nil {
			return err
		}
		fmt.Println(l10n.F("Last frame saved to %s", out))
	}
	return nil
}

// --- probe ---

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     l10n.T("Show media properties of files"),
		ArgsUsage: "<media>...",
		Action:    runProbe,
	}
}

func runProbe(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("at least one media file is required"))
	}

	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg, c.Bool("quiet"))
	prober := mediaprobe.New(cfg.Decoder.FFprobePath, log)

	var failed error
	for _, path := range c.Args().Slice() {
		info, err := prober.Probe(c.Context, path)
		if err != nil {
			log.Error("%s: %v", path, err)
			failed = err
			continue
		}
		fmt.Println(formatMediaInfo(path, info))
	}
	return failed
}

func formatMediaInfo(path string, info ports.MediaInfo) string {
	var kind string
	switch {
	case info.HasVideo && info.HasAudio:
		kind = "video+audio"
	case info.HasVideo:
		kind = "video"
	case info.HasAudio:
		kind = "audio"
	default:
		kind = "unknown"
	}
	codec := info.Codec
	if codec == "" {
		codec = "-"
	}
	size := "-"
	if info.Width > 0 && info.Height > 0 {
		size = fmt.Sprintf("%dx%d", info.Width, info.Height)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s", path, kind, codec, size, formatFPS(info.FrameRate), info.Duration)
}

func formatFPS(fps float64) string {
	if fps <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f fps", fps)
}

// --- config ---

func configCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  l10n.T("Print the effective configuration as YAML"),
		Action: runConfig,
	}
}

func runConfig(c *cli.Context) error {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return err
	}
	if path == "" {
		path = l10n.T("(defaults)")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", path, data)
	return cfg.Validate()
}

// --- version ---

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Println(l10n.F("dusk version %s", version))
			return nil
		},
	}
}
