// Package mediaprobe reads duration, frame rate and picture size of media
// files. MP4-family files are read directly from their container header;
// everything else goes through ffprobe.
package mediaprobe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/dusk/pkg/adapters/ffmpegbin"
	"github.com/user/dusk/pkg/ports"
)

// ErrUnsupported is returned when a file cannot be probed.
var ErrUnsupported = errors.New("mediaprobe: unsupported media")

var mp4Extensions = map[string]bool{
	".mp4": true,
	".m4v": true,
	".mov": true,
	".m4a": true,
}

// Prober implements ports.Prober.
type Prober struct {
	ffprobePath string
	logger      ports.Logger
}

// New creates a prober. ffprobe is located with customPath, FFPROBE_PATH,
// PATH and common locations in that order; without it only MP4-family
// files can be probed.
func New(customPath string, logger ports.Logger) *Prober {
	logger = logger.WithComponent("probe")
	path, err := ffmpegbin.FFprobe.Find(customPath)
	if err != nil {
		logger.Warn("ffprobe unavailable, probing MP4 headers only: %v", err)
	}
	return &Prober{ffprobePath: path, logger: logger}
}

// Probe returns media properties for the file at path.
func (p *Prober) Probe(ctx context.Context, path string) (ports.MediaInfo, error) {
	var partial ports.MediaInfo
	var mp4Err error
	if mp4Extensions[strings.ToLower(filepath.Ext(path))] {
		info, err := ProbeMP4File(path)
		if err == nil && complete(info) {
			return info, nil
		}
		partial, mp4Err = info, err
		if err != nil {
			p.logger.Debug("MP4 header probe failed for %s: %v", path, err)
		}
	}

	if p.ffprobePath == "" {
		if mp4Err == nil && (partial.HasVideo || partial.HasAudio) {
			return partial, nil
		}
		return ports.MediaInfo{}, fmt.Errorf("%w: %s: %w", ErrUnsupported, path, ffmpegbin.ErrFFprobeNotFound)
	}

	info, err := p.ffprobe(ctx, path)
	if err != nil {
		return ports.MediaInfo{}, fmt.Errorf("%w: %s: %w", ErrUnsupported, path, err)
	}
	if !info.HasVideo && !info.HasAudio {
		return ports.MediaInfo{}, fmt.Errorf("%w: %s has no audio or video stream", ErrUnsupported, path)
	}
	return info, nil
}

// complete reports whether info needs no further probing.
func complete(info ports.MediaInfo) bool {
	if !info.HasVideo {
		return info.HasAudio && info.Duration > 0
	}
	return info.Duration > 0 && info.FrameRate > 0 && info.Width > 0 && info.Height > 0
}

var _ ports.Prober = (*Prober)(nil)
