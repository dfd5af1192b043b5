package config

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/ports"
)

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dusk.yaml")
	yml := `
output:
  width: 640
  height: 360
  background: "#000"
preview:
  pending_policy: wait
export:
  quality: high
cache:
  capacity_frames: 32
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Output.Width != 640 || cfg.Output.Height != 360 {
		t.Errorf("expected 640x360, got %dx%d", cfg.Output.Width, cfg.Output.Height)
	}
	if cfg.Cache.CapacityFrames != 32 {
		t.Errorf("expected capacity 32, got %d", cfg.Cache.CapacityFrames)
	}
	// Unset keys keep their defaults.
	if cfg.Preview.FPS != 30 {
		t.Errorf("expected default preview fps 30, got %g", cfg.Preview.FPS)
	}
	if cfg.Decoder.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Decoder.MaxRetries)
	}

	pb := cfg.PlaybackConfig()
	if pb.Policy != pipeline.PolicyWait {
		t.Errorf("expected wait policy, got %v", pb.Policy)
	}
	if pb.Background != (color.RGBA{A: 255}) {
		t.Errorf("expected black background, got %v", pb.Background)
	}
	if got := cfg.EncoderOptions("out.mp4").Quality; got != 15 {
		t.Errorf("expected high quality CRF 15, got %d", got)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("output: [1, 2"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_DiscoversCandidate(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	t.Setenv(EnvLogLevel, "")

	os.WriteFile("dusk.yml", []byte("workers: 2\n"), 0644)

	cfg, path, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path != "dusk.yml" {
		t.Errorf("expected dusk.yml, got %q", path)
	}
	if cfg.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Workers)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	t.Setenv(EnvLogLevel, "")

	cfg, path, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path != "" {
		t.Errorf("expected no path, got %q", path)
	}
	if cfg.Output != Defaults().Output {
		t.Errorf("expected default output, got %+v", cfg.Output)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	// Registered so the value godotenv sets is restored after the test.
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)
	t.Setenv(EnvFFmpegPath, "")
	os.Unsetenv(EnvFFmpegPath)

	os.WriteFile(".env", []byte(EnvLogLevel+"=debug\n"+EnvFFmpegPath+"=/opt/ffmpeg/bin/ffmpeg\n"), 0644)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel() != ports.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel())
	}
	if cfg.Decoder.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("expected ffmpeg path from .env, got %q", cfg.Decoder.FFmpegPath)
	}
}

func TestLoad_ExplicitMissing(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if _, _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Output.Width = 0 }},
		{"bad background", func(c *Config) { c.Output.Background = "#12" }},
		{"bad policy", func(c *Config) { c.Preview.PendingPolicy = "skip" }},
		{"zero cache", func(c *Config) { c.Cache.CapacityFrames = 0 }},
		{"negative retries", func(c *Config) { c.Decoder.MaxRetries = -1 }},
		{"zero export fps", func(c *Config) { c.Export.FPS = 0 }},
		{"unknown quality", func(c *Config) { c.Export.Quality = "ultra" }},
		{"crf too high", func(c *Config) { c.Export.CRF = 64 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestParseColor_Delegates(t *testing.T) {
	c, err := ParseColor("#f00")
	if err != nil {
		t.Fatalf("ParseColor failed: %v", err)
	}
	if c != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("expected red, got %v", c)
	}
	if _, err := ParseColor("#12"); !errors.Is(err, pipeline.ErrInvalidColor) {
		t.Errorf("expected ErrInvalidColor, got %v", err)
	}
}

func TestGetQualitySettings(t *testing.T) {
	tests := []struct {
		preset QualityPreset
		crf    int
	}{
		{QualityLow, 35},
		{QualityMedium, 25},
		{QualityHigh, 15},
		{"unknown", 25},
	}
	for _, tt := range tests {
		if got := GetQualitySettings(tt.preset).CRF; got != tt.crf {
			t.Errorf("GetQualitySettings(%q).CRF = %d, want %d", tt.preset, got, tt.crf)
		}
	}
}

func TestEncoderOptions_CRFOverridesPreset(t *testing.T) {
	cfg := Defaults()
	cfg.Export.Quality = "low"
	cfg.Export.CRF = 20
	cfg.Export.Bitrate = 4000

	opts := cfg.EncoderOptions("/tmp/out.mp4")
	if opts.Quality != 20 {
		t.Errorf("expected CRF 20, got %d", opts.Quality)
	}
	if opts.Bitrate != 4000 || opts.Codec != "libx264" || opts.OutputPath != "/tmp/out.mp4" {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestConversions(t *testing.T) {
	cfg := Defaults()
	cfg.Workers = 3

	vc := cfg.VideoConfig()
	if vc.RetryDelay != 100*time.Millisecond || vc.ForwardWindow != 2*time.Second || vc.SeekTimeout != 10*time.Second {
		t.Errorf("unexpected video config %+v", vc)
	}

	sc := cfg.SessionConfig()
	if sc.Workers != 3 || sc.CacheCapacity != 120 || sc.StillDuration != 5*time.Second {
		t.Errorf("unexpected session config %+v", sc)
	}
	if sc.Settings.Width != 1280 || sc.Settings.Background != "#191923" {
		t.Errorf("unexpected settings %+v", sc.Settings)
	}
	if sc.Background != (color.RGBA{R: 0x19, G: 0x19, B: 0x23, A: 255}) {
		t.Errorf("unexpected background %v", sc.Background)
	}

	oc := cfg.ToOrchestratorConfig("p.dusk", "out.mp4")
	if oc.ProjectPath != "p.dusk" || oc.Encoder.OutputPath != "out.mp4" || oc.Encoder.Quality != 25 {
		t.Errorf("unexpected orchestrator config %+v", oc)
	}
	if oc.FrameTimeout != 10*time.Second {
		t.Errorf("expected 10s frame timeout, got %v", oc.FrameTimeout)
	}

	if Defaults().WorkerCount() <= 0 {
		t.Error("WorkerCount should default to a positive number")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores the previous one when the test ends.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
