// Package ffmpegencoder encodes exported frames by piping raw RGBA into an
// ffmpeg child process.
package ffmpegencoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/dusk/pkg/adapters/ffmpegbin"
	"github.com/user/dusk/pkg/ports"
)

var (
	// ErrNotInitialized is returned when encoder methods are called before Begin.
	ErrNotInitialized = errors.New("ffmpegencoder: encoder not initialized")

	// ErrInvalidOptions is returned for an unusable output configuration.
	ErrInvalidOptions = errors.New("ffmpegencoder: invalid options")

	// ErrOutOfOrder is returned when frame timestamps do not increase.
	ErrOutOfOrder = errors.New("ffmpegencoder: frames out of order")
)

const defaultCodec = "libx264"

// maxCRF is the upper bound of the quality scale per codec.
var maxCRF = map[string]int{
	"libx264":    51,
	"libx265":    51,
	"libvpx-vp9": 63,
	"libaom-av1": 63,
	"libsvtav1":  63,
}

// Encoder implements ports.VideoEncoder on top of ffmpeg.
type Encoder struct {
	ffmpegPath string
	logger     ports.Logger

	mu         sync.Mutex
	width      int
	height     int
	opts       ports.EncoderOptions
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stderr     bytes.Buffer
	tempPath   string
	frame      *image.RGBA
	frameCount int
	lastTs     int
}

// New locates ffmpeg and returns an encoder using it.
func New(customPath string, logger ports.Logger) (*Encoder, error) {
	path, err := ffmpegbin.FFmpeg.Find(customPath)
	if err != nil {
		return nil, err
	}
	return &Encoder{ffmpegPath: path, logger: logger.WithComponent("encoder")}, nil
}

// Args returns the ffmpeg arguments that encode raw frames into output.
func Args(width, height int, fps float64, opts ports.EncoderOptions, output string) []string {
	codec := opts.Codec
	if codec == "" {
		codec = defaultCodec
	}
	args := []string{
		"-y",
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", ports.PixelFormatRGBA,
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%.3f", fps),
		"-i", "pipe:0",
		"-an",
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
	}

	if opts.Quality > 0 {
		crf := opts.Quality
		if limit, ok := maxCRF[codec]; ok && crf > limit {
			crf = limit
		}
		args = append(args, "-crf", fmt.Sprintf("%d", crf))
	}
	if opts.Bitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", opts.Bitrate))
	}
	if ext := strings.ToLower(filepath.Ext(output)); ext == ".mp4" || ext == ".mov" || ext == ".m4v" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, output)
}

// Begin starts ffmpeg writing to a temporary file next to the output path.
func (e *Encoder) Begin(width, height int, fps float64, opts ports.EncoderOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd != nil {
		return fmt.Errorf("%w: encoding already in progress", ErrInvalidOptions)
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("%w: no output path", ErrInvalidOptions)
	}
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: size %dx%d must be positive and even", ErrInvalidOptions, width, height)
	}
	if fps <= 0 {
		return fmt.Errorf("%w: fps %.3f", ErrInvalidOptions, fps)
	}

	dir, base := filepath.Split(opts.OutputPath)
	ext := filepath.Ext(base)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(base, ext)+".partial-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	e.tempPath = tmp.Name()
	tmp.Close()

	e.width, e.height, e.opts = width, height, opts
	e.frameCount, e.lastTs = 0, -1
	e.frame = image.NewRGBA(image.Rect(0, 0, width, height))
	e.stderr.Reset()

	e.cmd = exec.Command(e.ffmpegPath, Args(width, height, fps, opts, e.tempPath)...)
	e.cmd.Stderr = &e.stderr
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		e.cleanup()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		e.cleanup()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	e.logger.Debug("Encoding %dx%d at %.2f fps to %s", width, height, fps, opts.OutputPath)
	return nil
}

// EncodeFrame writes one frame. Frames are constant-rate, so the timestamp
// only has to increase.
func (e *Encoder) EncodeFrame(img image.Image, timestampMs int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return ErrNotInitialized
	}
	if timestampMs <= e.lastTs {
		return fmt.Errorf("%w: %dms after %dms", ErrOutOfOrder, timestampMs, e.lastTs)
	}
	e.lastTs = timestampMs

	pix := e.frame.Pix
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect == e.frame.Rect && rgba.Stride == e.frame.Stride {
		pix = rgba.Pix
	} else {
		draw.Draw(e.frame, e.frame.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	if _, err := e.stdin.Write(pix); err != nil {
		return fmt.Errorf("failed to write frame: %w: %s", err, e.stderr.String())
	}
	e.frameCount++
	return nil
}

// End waits for ffmpeg and moves the finished file into place.
func (e *Encoder) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil {
		return ErrNotInitialized
	}
	e.stdin.Close()
	e.stdin = nil

	err := e.cmd.Wait()
	e.cmd = nil
	if err != nil {
		os.Remove(e.tempPath)
		return fmt.Errorf("ffmpeg encoding failed: %w\nstderr: %s", err, e.stderr.String())
	}
	if err := os.Rename(e.tempPath, e.opts.OutputPath); err != nil {
		os.Remove(e.tempPath)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	e.logger.Debug("Encoded %d frames to %s", e.frameCount, e.opts.OutputPath)
	e.tempPath = ""
	return nil
}

// Abort kills ffmpeg and removes the partial file.
func (e *Encoder) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil && e.tempPath == "" {
		return nil
	}
	if e.stdin != nil {
		e.stdin.Close()
		e.stdin = nil
	}
	if e.cmd != nil && e.cmd.Process != nil {
		e.cmd.Process.Kill()
		e.cmd.Wait()
	}
	e.cmd = nil
	return e.cleanup()
}

// cleanup must be called with e.mu held.
func (e *Encoder) cleanup() error {
	path := e.tempPath
	e.tempPath = ""
	e.cmd = nil
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial output: %w", err)
	}
	return nil
}

var _ ports.VideoEncoder = (*Encoder)(nil)
