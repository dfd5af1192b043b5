// Package ffmpegbin locates the ffmpeg and ffprobe executables.
package ffmpegbin

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg executable can be located.
	ErrFFmpegNotFound = errors.New("ffmpegbin: ffmpeg not found")

	// ErrFFprobeNotFound is returned when no ffprobe executable can be located.
	ErrFFprobeNotFound = errors.New("ffmpegbin: ffprobe not found")
)

// Tool describes one executable and where to look for it.
type Tool struct {
	Name     string // executable name without extension
	EnvVar   string // environment override
	NotFound error
}

var (
	FFmpeg  = Tool{Name: "ffmpeg", EnvVar: "FFMPEG_PATH", NotFound: ErrFFmpegNotFound}
	FFprobe = Tool{Name: "ffprobe", EnvVar: "FFPROBE_PATH", NotFound: ErrFFprobeNotFound}
)

// Find resolves the executable path.
// Priority: 1) custom, 2) the tool's environment variable, 3) PATH, 4) common locations
func (t Tool) Find(custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", t.NotFound, custom)
	}

	if envPath := os.Getenv(t.EnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: %s %s not found", t.NotFound, t.EnvVar, envPath)
	}

	execName := t.Name
	if runtime.GOOS == "windows" {
		execName += ".exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	for _, p := range commonPaths(execName) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", t.NotFound
}

// Available reports whether the tool can be located without a custom path.
func (t Tool) Available() bool {
	_, err := t.Find("")
	return err == nil
}

func commonPaths(execName string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\ffmpeg\bin\` + execName,
			`C:\Program Files\ffmpeg\bin\` + execName,
			`C:\Program Files (x86)\ffmpeg\bin\` + execName,
		}
	case "darwin":
		return []string{
			"/opt/homebrew/bin/" + execName,
			"/usr/local/bin/" + execName,
			"/usr/bin/" + execName,
		}
	default:
		return []string{
			"/usr/bin/" + execName,
			"/usr/local/bin/" + execName,
			"/opt/homebrew/bin/" + execName,
			"/snap/bin/" + execName,
		}
	}
}
