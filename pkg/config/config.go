// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/orchestrator"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/playback"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/project"
	"github.com/user/dusk/pkg/session"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Environment variables read by Load.
const (
	EnvLogLevel   = "DUSK_LOG_LEVEL"
	EnvFFmpegPath = "FFMPEG_PATH"
	EnvFFprobe    = "FFPROBE_PATH"
)

// Config represents the full configuration for dusk.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Preview PreviewConfig `yaml:"preview"`
	Cache   CacheConfig   `yaml:"cache"`
	Decoder DecoderConfig `yaml:"decoder"`
	Export  ExportConfig  `yaml:"export"`
	Log     LogConfig     `yaml:"log"`

	// Length of a still image added to the timeline
	StillDurationMs int `yaml:"still_duration_ms"`

	// Compositor workers (0 = number of CPUs)
	Workers int `yaml:"workers"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// OutputConfig is the project output frame.
type OutputConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Background string `yaml:"background"`
}

// PreviewConfig tunes interactive playback.
type PreviewConfig struct {
	FPS            float64 `yaml:"fps"`
	FrameTimeoutMs int     `yaml:"frame_timeout_ms"`
	PendingPolicy  string  `yaml:"pending_policy"`
	EventBuffer    int     `yaml:"event_buffer"`
}

// CacheConfig sizes the decoded frame cache.
type CacheConfig struct {
	CapacityFrames int `yaml:"capacity_frames"`
}

// DecoderConfig tunes the external decode processes.
type DecoderConfig struct {
	FFmpegPath      string  `yaml:"ffmpeg_path"`
	FFprobePath     string  `yaml:"ffprobe_path"`
	MaxRetries      int     `yaml:"max_retries"`
	RetryDelayMs    int     `yaml:"retry_delay_ms"`
	MaxRetryDelayMs int     `yaml:"max_retry_delay_ms"`
	ForwardWindowMs int     `yaml:"forward_window_ms"`
	SeekTimeoutMs   int     `yaml:"seek_timeout_ms"`
	DefaultFPS      float64 `yaml:"default_fps"`
	HWAccel         string  `yaml:"hwaccel"`
}

// ExportConfig tunes rendering to a file.
type ExportConfig struct {
	FPS            float64 `yaml:"fps"`
	Quality        string  `yaml:"quality"` // low, medium, high
	CRF            int     `yaml:"crf"`     // Overrides Quality when > 0
	Bitrate        int     `yaml:"bitrate"` // kbps, 0 = CRF only
	Codec          string  `yaml:"codec"`
	FrameTimeoutMs int     `yaml:"frame_timeout_ms"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, json
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Output: OutputConfig{
			Width:      1280,
			Height:     720,
			Background: "#191923",
		},
		Preview: PreviewConfig{
			FPS:            30,
			FrameTimeoutMs: 100,
			PendingPolicy:  "reuse",
			EventBuffer:    64,
		},
		Cache: CacheConfig{
			CapacityFrames: 120,
		},
		Decoder: DecoderConfig{
			MaxRetries:      3,
			RetryDelayMs:    100,
			MaxRetryDelayMs: 2000,
			ForwardWindowMs: 2000,
			SeekTimeoutMs:   10000,
			DefaultFPS:      30,
		},
		Export: ExportConfig{
			FPS:            30,
			Quality:        string(QualityMedium),
			Codec:          "libx264",
			FrameTimeoutMs: 10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		StillDurationMs: 5000,
		DebugDir:        "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Candidates returns the paths Load searches, in order.
func Candidates() []string {
	paths := []string{"dusk.yaml", "dusk.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dusk", "config.yaml"))
	}
	return paths
}

// Load reads .env into the environment, then the configuration from
// explicit or, when empty, the first existing candidate. With no file the
// defaults are used. The returned path is the file that was read.
func Load(explicit string) (Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Defaults(), "", fmt.Errorf("load .env: %w", err)
	}

	path := explicit
	if path == "" {
		for _, p := range Candidates() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg := Defaults()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return cfg, path, err
		}
	}

	cfg.applyEnv()
	return cfg, path, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" && c.Decoder.FFmpegPath == "" {
		c.Decoder.FFmpegPath = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" && c.Decoder.FFprobePath == "" {
		c.Decoder.FFprobePath = v
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var problems []string
	if c.Output.Width <= 0 || c.Output.Height <= 0 {
		problems = append(problems, fmt.Sprintf("output size %dx%d", c.Output.Width, c.Output.Height))
	}
	if _, err := ParseColor(c.Output.Background); err != nil {
		problems = append(problems, fmt.Sprintf("output background %q", c.Output.Background))
	}
	if c.Preview.FPS <= 0 {
		problems = append(problems, fmt.Sprintf("preview fps %g", c.Preview.FPS))
	}
	if _, err := pipeline.ParsePendingPolicy(c.Preview.PendingPolicy); err != nil {
		problems = append(problems, fmt.Sprintf("pending policy %q", c.Preview.PendingPolicy))
	}
	if c.Cache.CapacityFrames <= 0 {
		problems = append(problems, fmt.Sprintf("cache capacity %d", c.Cache.CapacityFrames))
	}
	if c.Decoder.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("decoder max retries %d", c.Decoder.MaxRetries))
	}
	if c.Decoder.DefaultFPS <= 0 {
		problems = append(problems, fmt.Sprintf("decoder default fps %g", c.Decoder.DefaultFPS))
	}
	if c.Export.FPS <= 0 {
		problems = append(problems, fmt.Sprintf("export fps %g", c.Export.FPS))
	}
	if c.Export.CRF == 0 && c.Export.Quality != "" {
		if _, ok := qualityPresets[QualityPreset(c.Export.Quality)]; !ok {
			problems = append(problems, fmt.Sprintf("export quality %q", c.Export.Quality))
		}
	}
	if c.Export.CRF < 0 || c.Export.CRF > 63 {
		problems = append(problems, fmt.Sprintf("export crf %d", c.Export.CRF))
	}
	if c.Workers < 0 {
		problems = append(problems, fmt.Sprintf("workers %d", c.Workers))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log format %q", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, ", "))
	}
	return nil
}

// QualityPreset names an export quality level.
type QualityPreset string

const (
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
)

// QualitySettings holds the encoder values for a preset.
type QualitySettings struct {
	CRF int
}

var qualityPresets = map[QualityPreset]QualitySettings{
	QualityLow:    {CRF: 35},
	QualityMedium: {CRF: 25},
	QualityHigh:   {CRF: 15},
}

// GetQualitySettings returns the settings for a preset; unknown presets
// fall back to medium.
func GetQualitySettings(preset QualityPreset) QualitySettings {
	if s, ok := qualityPresets[preset]; ok {
		return s
	}
	return qualityPresets[QualityMedium]
}

// ParseColor parses a hex colour (#rgb, #rrggbb or #rrggbbaa).
func ParseColor(hex string) (color.Color, error) {
	return pipeline.ParseColor(hex)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Background returns the parsed output background, falling back to the
// default on a malformed value.
func (c Config) Background() color.Color {
	bg, err := ParseColor(c.Output.Background)
	if err != nil {
		return pipeline.DefaultBackground
	}
	return bg
}

// Size returns the output frame size.
func (c Config) Size() pipeline.Dimension {
	return pipeline.Dimension{Width: c.Output.Width, Height: c.Output.Height}
}

// LogLevel returns the configured log level.
func (c Config) LogLevel() ports.LogLevel {
	return ports.ParseLogLevel(c.Log.Level)
}

// WorkerCount resolves Workers, defaulting to the number of CPUs.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// VideoConfig converts the decoder section.
func (c Config) VideoConfig() media.VideoConfig {
	return media.VideoConfig{
		MaxRetries:       c.Decoder.MaxRetries,
		RetryDelay:       ms(c.Decoder.RetryDelayMs),
		MaxRetryDelay:    ms(c.Decoder.MaxRetryDelayMs),
		ForwardWindow:    ms(c.Decoder.ForwardWindowMs),
		SeekTimeout:      ms(c.Decoder.SeekTimeoutMs),
		DefaultFrameRate: c.Decoder.DefaultFPS,
		HWAccel:          c.Decoder.HWAccel,
	}
}

// Settings returns the project output settings new projects start with.
func (c Config) Settings() project.Settings {
	return project.Settings{
		Width:      c.Output.Width,
		Height:     c.Output.Height,
		FPS:        c.Export.FPS,
		Background: c.Output.Background,
	}
}

// SessionConfig converts to session.Config.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Video:         c.VideoConfig(),
		CacheCapacity: c.Cache.CapacityFrames,
		Workers:       c.WorkerCount(),
		StillDuration: ms(c.StillDurationMs),
		FrameTimeout:  ms(c.Export.FrameTimeoutMs),
		Settings:      c.Settings(),
		Background:    c.Background(),
	}
}

// PlaybackConfig converts the preview section.
func (c Config) PlaybackConfig() playback.Config {
	policy, err := pipeline.ParsePendingPolicy(c.Preview.PendingPolicy)
	if err != nil {
		policy = pipeline.PolicyReuse
	}
	return playback.Config{
		FPS:          c.Preview.FPS,
		Size:         c.Size(),
		Background:   c.Background(),
		Policy:       policy,
		FrameTimeout: ms(c.Preview.FrameTimeoutMs),
		EventBuffer:  c.Preview.EventBuffer,
	}
}

// EncoderOptions converts the export section.
func (c Config) EncoderOptions(output string) ports.EncoderOptions {
	crf := c.Export.CRF
	if crf <= 0 {
		crf = GetQualitySettings(QualityPreset(c.Export.Quality)).CRF
	}
	return ports.EncoderOptions{
		OutputPath: output,
		Codec:      c.Export.Codec,
		Bitrate:    c.Export.Bitrate,
		Quality:    crf,
	}
}

// ToOrchestratorConfig converts Config to orchestrator.Config for one run.
// Size and FPS are left zero so the project's own settings apply.
func (c Config) ToOrchestratorConfig(projectPath, output string) orchestrator.Config {
	return orchestrator.Config{
		ProjectPath:  projectPath,
		OutputPath:   output,
		Session:      c.SessionConfig(),
		FrameTimeout: ms(c.Export.FrameTimeoutMs),
		Encoder:      c.EncoderOptions(output),
	}
}
