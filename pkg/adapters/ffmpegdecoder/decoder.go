// Package ffmpegdecoder runs ffmpeg as the external decode process for
// video sources. Each seek starts a fresh ffmpeg child that writes raw RGBA
// frames to a pipe.
package ffmpegdecoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/user/dusk/pkg/adapters/ffmpegbin"
	"github.com/user/dusk/pkg/ports"
)

var (
	// ErrInvalidOptions is returned when the output size or frame rate is unusable.
	ErrInvalidOptions = errors.New("ffmpegdecoder: invalid decode options")

	// ErrNotRunning is returned by Seek after the process exited or was closed.
	ErrNotRunning = errors.New("ffmpegdecoder: process not running")
)

const (
	stderrTail = 4 << 10
	waitDelay  = time.Second
)

// Factory spawns ffmpeg decode processes.
type Factory struct {
	ffmpegPath string
	logger     ports.Logger
}

// NewFactory locates ffmpeg (custom path, FFMPEG_PATH, PATH, then common
// locations) and returns a factory using it.
func NewFactory(customPath string, logger ports.Logger) (*Factory, error) {
	path, err := ffmpegbin.FFmpeg.Find(customPath)
	if err != nil {
		return nil, err
	}
	return &Factory{ffmpegPath: path, logger: logger.WithComponent("ffmpeg")}, nil
}

// Path returns the ffmpeg executable in use.
func (f *Factory) Path() string {
	return f.ffmpegPath
}

// Spawn prepares a decode process. No ffmpeg child runs until the first Seek.
func (f *Factory) Spawn(ctx context.Context, opts ports.DecodeOptions) (ports.DecodeProcess, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidOptions, opts.Width, opts.Height)
	}
	if opts.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: frame rate %.3f", ErrInvalidOptions, opts.FrameRate)
	}

	pctx, cancel := context.WithCancel(ctx)
	return &Process{
		ffmpegPath: f.ffmpegPath,
		opts:       opts,
		logger:     f.logger,
		ctx:        pctx,
		cancel:     cancel,
		frames:     make(chan ports.RawFrame, 2),
		exited:     make(chan error, 1),
	}, nil
}

// Args returns the ffmpeg arguments that decode path from t.
func Args(opts ports.DecodeOptions, t time.Duration) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if opts.HWAccel != "" {
		args = append(args, "-hwaccel", opts.HWAccel)
	}
	fps := strconv.FormatFloat(opts.FrameRate, 'f', -1, 64)
	args = append(args,
		"-ss", strconv.FormatFloat(t.Seconds(), 'f', 6, 64),
		"-i", opts.Path,
		"-an", "-sn", "-dn",
		"-vf", "fps="+fps,
		"-f", "rawvideo",
		"-pix_fmt", ports.PixelFormatRGBA,
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"pipe:1",
	)
	return args
}

// Process is one decode process for a single file.
type Process struct {
	ffmpegPath string
	opts       ports.DecodeOptions
	logger     ports.Logger

	ctx    context.Context
	cancel context.CancelFunc
	frames chan ports.RawFrame
	exited chan error

	mu    sync.Mutex
	child *child
	done  bool
}

// child is one running ffmpeg invocation.
type child struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *tailBuffer
	stop     chan struct{}
	finished chan struct{}
}

// Seek replaces the running child with one decoding from t.
func (p *Process) Seek(seq uint64, t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return ErrNotRunning
	}
	p.stopChild()

	cmd := exec.CommandContext(p.ctx, p.ffmpegPath, Args(p.opts, t)...)
	cmd.WaitDelay = waitDelay
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	c := &child{
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	p.child = c
	go p.read(c, seq, t)
	return nil
}

func (p *Process) Frames() <-chan ports.RawFrame { return p.frames }

func (p *Process) Exited() <-chan error { return p.exited }

// Close kills the running child. No exit is reported afterwards.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.done && p.child == nil {
		p.mu.Unlock()
		return nil
	}
	p.done = true
	c := p.child
	p.stopChild()
	p.mu.Unlock()

	p.cancel()
	if c != nil {
		<-c.finished
	}
	return nil
}

// stopChild must be called with p.mu held.
func (p *Process) stopChild() {
	c := p.child
	if c == nil {
		return
	}
	p.child = nil
	close(c.stop)
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
}

func (p *Process) read(c *child, seq uint64, start time.Duration) {
	defer close(c.finished)

	w, h := p.opts.Width, p.opts.Height
	size := w * h * 4
	var readErr error
	for n := 0; ; n++ {
		buf := make([]byte, size)
		if _, err := io.ReadFull(c.stdout, buf); err != nil {
			readErr = err
			break
		}
		frame := ports.RawFrame{
			Seq:    seq,
			PTS:    start + time.Duration(float64(n)*float64(time.Second)/p.opts.FrameRate),
			Width:  w,
			Height: h,
			Stride: w * 4,
			Pix:    buf,
		}
		select {
		case p.frames <- frame:
		case <-c.stop:
			c.cmd.Wait()
			return
		}
	}
	waitErr := c.cmd.Wait()

	select {
	case <-c.stop:
		return
	default:
	}

	var exitErr error
	switch {
	case waitErr != nil:
		exitErr = fmt.Errorf("ffmpeg exited: %w: %s", waitErr, c.stderr.String())
	case !errors.Is(readErr, io.EOF):
		exitErr = fmt.Errorf("ffmpeg output truncated: %w", readErr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.child != c || p.done {
		return
	}
	p.child = nil
	p.done = true
	p.exited <- exitErr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

var (
	_ ports.DecoderFactory = (*Factory)(nil)
	_ ports.DecodeProcess  = (*Process)(nil)
)
