// Package main provides the CLI entry point for dusk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/user/dusk/pkg/adapters/ffmpegdecoder"
	"github.com/user/dusk/pkg/adapters/filesink"
	"github.com/user/dusk/pkg/adapters/ggrenderer"
	"github.com/user/dusk/pkg/adapters/logger"
	"github.com/user/dusk/pkg/adapters/mediaprobe"
	"github.com/user/dusk/pkg/adapters/nullsink"
	"github.com/user/dusk/pkg/adapters/osfilesystem"
	"github.com/user/dusk/pkg/config"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/session"
)

var version = "dev"

const (
	categoryOutput  = "Output"
	categoryRange   = "Range"
	categoryQuality = "Video and Quality"
	categoryPreview = "Preview"
	categoryDebug   = "Debug"
	categoryLogging = "Logging"
	categoryTools   = "External Tools"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, l10n.T("Interrupted, shutting down..."))
		cancel()
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %s", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "dusk",
		Usage:       l10n.T("Preview and render layered video timelines"),
		Description: l10n.T("dusk composites clips from video files and still images into previews, snapshots and rendered videos."),
		Flags:       globalFlags(),
		Commands: []*cli.Command{
			createCommand(),
			exportCommand(),
			snapshotCommand(),
			thumbnailCommand(),
			previewCommand(),
			probeCommand(),
			configCommand(),
			versionCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   l10n.T("Configuration file (default: ./dusk.yaml, ~/.config/dusk/config.yaml)"),
		},
		&cli.StringFlag{
			Name:     "log-level",
			Aliases:  []string{"l"},
			Usage:    l10n.T("Log level (debug, info, warn, error)"),
			Category: l10n.T(categoryLogging),
		},
		&cli.StringFlag{
			Name:     "log-format",
			Usage:    l10n.T("Log format (console, json)"),
			Category: l10n.T(categoryLogging),
		},
		&cli.BoolFlag{
			Name:     "quiet",
			Aliases:  []string{"Q"},
			Usage:    l10n.T("Suppress all log output"),
			Category: l10n.T(categoryLogging),
		},
		&cli.BoolFlag{
			Name:     "debug",
			Aliases:  []string{"d"},
			Usage:    l10n.T("Save the project and composed frames for debugging"),
			Category: l10n.T(categoryDebug),
		},
		&cli.StringFlag{
			Name:     "debug-dir",
			Usage:    l10n.T("Directory for debug output"),
			Category: l10n.T(categoryDebug),
		},
		&cli.StringFlag{
			Name:     "ffmpeg",
			Usage:    l10n.T("Path to ffmpeg (falls back to FFMPEG_PATH, then PATH)"),
			Category: l10n.T(categoryTools),
		},
		&cli.StringFlag{
			Name:     "ffprobe",
			Usage:    l10n.T("Path to ffprobe (falls back to FFPROBE_PATH, then PATH)"),
			Category: l10n.T(categoryTools),
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: l10n.T("Compositor workers (default: number of CPUs)"),
		},
	}
}

// env is everything a command needs, built from configuration and flags.
type env struct {
	cfg  config.Config
	path string // Configuration file in use, empty for defaults
	log  ports.Logger
	fs   ports.FileSystem
	deps session.Deps
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (config.Config, string, error) {
	cfg, path, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, path, err
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	if c.IsSet("debug-dir") {
		cfg.DebugDir = c.String("debug-dir")
	}
	if c.IsSet("ffmpeg") {
		cfg.Decoder.FFmpegPath = c.String("ffmpeg")
	}
	if c.IsSet("ffprobe") {
		cfg.Decoder.FFprobePath = c.String("ffprobe")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	return cfg, path, nil
}

func newLogger(cfg config.Config, quiet bool) ports.Logger {
	if quiet {
		return logger.NewNoop()
	}
	if cfg.Log.Format == "json" {
		return logger.NewStructured(cfg.LogLevel(), os.Stderr, false)
	}
	return logger.NewConsole(cfg.LogLevel())
}

// setup builds the adapters. Commands may adjust cfg through mutate
// before it is validated.
func setup(c *cli.Context, mutate func(*config.Config)) (*env, error) {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := newLogger(cfg, c.Bool("quiet"))
	if path != "" {
		log.Debug("Using configuration %s", path)
	}

	fs := osfilesystem.New()
	renderer := ggrenderer.New()

	var sink ports.DebugSink
	if cfg.Debug {
		if err := fs.MkdirAll(cfg.DebugDir); err != nil {
			return nil, fmt.Errorf("create debug directory: %w", err)
		}
		sink = filesink.New(cfg.DebugDir, fs, renderer)
	} else {
		sink = nullsink.New()
	}

	// Stills still work without ffmpeg; video sources fail when opened.
	var decoders ports.DecoderFactory
	factory, err := ffmpegdecoder.NewFactory(cfg.Decoder.FFmpegPath, log)
	if err != nil {
		log.Warn("ffmpeg unavailable, video sources cannot be decoded: %v", err)
		decoders = unavailableDecoders{err: err}
	} else {
		decoders = factory
	}

	return &env{
		cfg:  cfg,
		path: path,
		log:  log,
		fs:   fs,
		deps: session.Deps{
			Decoders:   decoders,
			Prober:     mediaprobe.New(cfg.Decoder.FFprobePath, log),
			Renderer:   renderer,
			FileSystem: fs,
			Sink:       sink,
			Logger:     log,
		},
	}, nil
}

// unavailableDecoders stands in when ffmpeg cannot be found.
type unavailableDecoders struct {
	err error
}

func (u unavailableDecoders) Spawn(ctx context.Context, opts ports.DecodeOptions) (ports.DecodeProcess, error) {
	return nil, u.err
}

// interactive reports whether progress can be redrawn in place on stderr.
func interactive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
