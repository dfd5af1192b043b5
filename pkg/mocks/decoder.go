package mocks

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"time"

	"github.com/user/dusk/pkg/ports"
)

// ErrCrash is the exit error reported by an injected crash.
var ErrCrash = errors.New("mock decoder crashed")

// DecoderFactory is a fake ports.DecoderFactory whose processes synthesize
// solid-colour frames.
type DecoderFactory struct {
	mu sync.Mutex

	// Latency delays the first frame after each Seek.
	Latency time.Duration
	// FrameInterval delays every following frame.
	FrameInterval time.Duration
	// Duration ends each stream cleanly at this source time (0 = endless).
	Duration time.Duration
	// Fill returns the colour of the frame at pts. Defaults to opaque white.
	Fill func(path string, pts time.Duration) color.NRGBA
	// CrashAfter, when set, returns how many frames the n-th spawned process
	// (0-based) emits before crashing; a negative count never crashes.
	CrashAfter func(spawn int) int
	// SpawnFunc overrides Spawn entirely when set.
	SpawnFunc func(ctx context.Context, opts ports.DecodeOptions) (ports.DecodeProcess, error)

	Processes []*DecodeProcess
}

// Spawn implements ports.DecoderFactory.
func (f *DecoderFactory) Spawn(ctx context.Context, opts ports.DecodeOptions) (ports.DecodeProcess, error) {
	if f.SpawnFunc != nil {
		return f.SpawnFunc(ctx, opts)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	crashAfter := -1
	if f.CrashAfter != nil {
		crashAfter = f.CrashAfter(len(f.Processes))
	}
	p := &DecodeProcess{
		factory:    f,
		opts:       opts,
		crashAfter: crashAfter,
		frames:     make(chan ports.RawFrame, 1),
		exited:     make(chan error, 1),
	}
	f.Processes = append(f.Processes, p)
	return p, nil
}

// Spawns returns the number of processes started.
func (f *DecoderFactory) Spawns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Processes)
}

// TotalSeeks returns the Seek calls across all processes.
func (f *DecoderFactory) TotalSeeks() int {
	f.mu.Lock()
	procs := append([]*DecodeProcess(nil), f.Processes...)
	f.mu.Unlock()
	n := 0
	for _, p := range procs {
		n += len(p.Seeks())
	}
	return n
}

// Last returns the most recently spawned process.
func (f *DecoderFactory) Last() *DecodeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Processes) == 0 {
		return nil
	}
	return f.Processes[len(f.Processes)-1]
}

func (f *DecoderFactory) fill(path string, pts time.Duration) color.NRGBA {
	if f.Fill != nil {
		return f.Fill(path, pts)
	}
	return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
}

// SeekCall records a Seek.
type SeekCall struct {
	Seq uint64
	At  time.Duration
}

// DecodeProcess is a fake ports.DecodeProcess.
type DecodeProcess struct {
	factory    *DecoderFactory
	opts       ports.DecodeOptions
	crashAfter int

	frames chan ports.RawFrame
	exited chan error

	mu      sync.Mutex
	seeks   []SeekCall
	stop    chan struct{}
	emitted int
	dead    bool
	closed  bool
}

func (p *DecodeProcess) Seek(seq uint64, t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.dead {
		return errors.New("mock decoder not running")
	}
	p.seeks = append(p.seeks, SeekCall{Seq: seq, At: t})
	if p.stop != nil {
		close(p.stop)
	}
	p.stop = make(chan struct{})
	go p.generate(seq, t, p.stop)
	return nil
}

func (p *DecodeProcess) generate(seq uint64, start time.Duration, stop chan struct{}) {
	f := p.factory
	fps := p.opts.FrameRate
	if fps <= 0 {
		fps = 30
	}
	period := time.Duration(float64(time.Second) / fps)

	if !sleep(f.Latency, stop) {
		return
	}
	for n := 0; ; n++ {
		pts := start + time.Duration(n)*period
		if f.Duration > 0 && pts >= f.Duration {
			p.exit(nil)
			return
		}

		p.mu.Lock()
		if p.crashAfter >= 0 && p.emitted >= p.crashAfter {
			p.mu.Unlock()
			p.exit(ErrCrash)
			return
		}
		p.emitted++
		p.mu.Unlock()

		frame := p.makeFrame(seq, pts)
		select {
		case p.frames <- frame:
		case <-stop:
			return
		}
		if !sleep(f.FrameInterval, stop) {
			return
		}
	}
}

func (p *DecodeProcess) makeFrame(seq uint64, pts time.Duration) ports.RawFrame {
	w, h := p.opts.Width, p.opts.Height
	c := p.factory.fill(p.opts.Path, pts)
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
	return ports.RawFrame{Seq: seq, PTS: pts, Width: w, Height: h, Stride: w * 4, Pix: pix}
}

// Crash makes the process exit with err as if it died.
func (p *DecodeProcess) Crash(err error) {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
	p.exit(err)
}

func (p *DecodeProcess) exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead || p.closed {
		return
	}
	p.dead = true
	p.exited <- err
}

func (p *DecodeProcess) Frames() <-chan ports.RawFrame { return p.frames }

func (p *DecodeProcess) Exited() <-chan error { return p.exited }

func (p *DecodeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	return nil
}

// Seeks returns the recorded Seek calls.
func (p *DecodeProcess) Seeks() []SeekCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SeekCall(nil), p.seeks...)
}

// Closed reports whether Close was called.
func (p *DecodeProcess) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func sleep(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

var (
	_ ports.DecoderFactory = (*DecoderFactory)(nil)
	_ ports.DecodeProcess  = (*DecodeProcess)(nil)
)
