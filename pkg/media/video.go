package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/dusk/pkg/ports"
)

// VideoConfig tunes a VideoSource.
type VideoConfig struct {
	MaxRetries       int           // Respawns allowed before the source fails
	RetryDelay       time.Duration // Initial backoff between respawns
	MaxRetryDelay    time.Duration // Backoff ceiling
	ForwardWindow    time.Duration // Read ahead instead of reseeking when the target is this close
	SeekTimeout      time.Duration // A seek with no frame after this long counts as a crash (0 disables)
	DefaultFrameRate float64       // Used when the source frame rate is unknown
	Width            int           // Decode width (0 = probed)
	Height           int           // Decode height (0 = probed)
	HWAccel          string
}

// DefaultVideoConfig returns sensible defaults.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		MaxRetries:       3,
		RetryDelay:       100 * time.Millisecond,
		MaxRetryDelay:    2 * time.Second,
		ForwardWindow:    2 * time.Second,
		SeekTimeout:      10 * time.Second,
		DefaultFrameRate: 30,
	}
}

// VideoStats counts what a VideoSource has done.
type VideoStats struct {
	Requests    uint64
	Superseded  uint64
	Seeks       uint64
	Delivered   uint64
	StaleFrames uint64
	Restarts    uint64
}

// VideoSource decodes a video file through an external decode process.
//
// Requests are sequence numbered. At most one seek is outstanding on the
// process; while it is, newer requests wait in a single-slot mailbox where
// the latest one wins and older ones resolve with ErrSuperseded.
type VideoSource struct {
	info    Info
	factory ports.DecoderFactory
	cfg     VideoConfig
	logger  ports.Logger

	mu     sync.Mutex
	state  State
	seq    uint64
	next   *Pending
	failed error
	closed bool

	wake    chan struct{}
	closing chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	requests    atomic.Uint64
	superseded  atomic.Uint64
	seeks       atomic.Uint64
	delivered   atomic.Uint64
	staleFrames atomic.Uint64
	restarts    atomic.Uint64
}

// NewVideoSource creates a source for info.Path. The decode process is
// spawned lazily on the first request.
func NewVideoSource(info Info, factory ports.DecoderFactory, cfg VideoConfig, logger ports.Logger) *VideoSource {
	if cfg.DefaultFrameRate <= 0 {
		cfg.DefaultFrameRate = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &VideoSource{
		info:    info,
		factory: factory,
		cfg:     cfg,
		logger:  logger.WithComponent("media").With("source", info.Path),
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	l := &videoLoop{src: s, ctx: ctx, period: info.FramePeriod(cfg.DefaultFrameRate)}
	go l.run()
	return s
}

func (s *VideoSource) ID() SourceID { return s.info.ID }

func (s *VideoSource) Info() Info { return s.info }

func (s *VideoSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the source counters.
func (s *VideoSource) Stats() VideoStats {
	return VideoStats{
		Requests:    s.requests.Load(),
		Superseded:  s.superseded.Load(),
		Seeks:       s.seeks.Load(),
		Delivered:   s.delivered.Load(),
		StaleFrames: s.staleFrames.Load(),
		Restarts:    s.restarts.Load(),
	}
}

// RequestFrame implements Source.
func (s *VideoSource) RequestFrame(t time.Duration) *Pending {
	if t < 0 || (s.info.Duration > 0 && t >= s.info.Duration) {
		return Resolved(nil, fmt.Errorf("%w: %s not in [0, %s)", ErrOutOfRange, t, s.info.Duration))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Resolved(nil, ErrClosed)
	}
	if s.failed != nil {
		err := s.failed
		s.mu.Unlock()
		return Resolved(nil, err)
	}
	s.seq++
	p := newPending(s.seq, t)
	if s.next != nil && s.next.resolve(nil, ErrSuperseded) {
		s.superseded.Add(1)
	}
	s.next = p
	s.mu.Unlock()

	s.requests.Add(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return p
}

// Reset clears a Failed state so the next request respawns the decoder.
// It reports whether the source was failed.
func (s *VideoSource) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailed {
		return false
	}
	s.failed = nil
	s.state = StateIdle
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Close implements Source.
func (s *VideoSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closing)
	s.cancel()
	<-s.done
	return nil
}

func (s *VideoSource) setState(st State) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = st
	}
	s.mu.Unlock()
}

func (s *VideoSource) takeNext() *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.next
	s.next = nil
	return p
}

func (s *VideoSource) fail(err error) {
	s.mu.Lock()
	s.failed = err
	s.state = StateFailed
	s.mu.Unlock()
}

func (s *VideoSource) isFailed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// videoLoop owns the decode process. Only its goroutine touches these fields.
type videoLoop struct {
	src    *VideoSource
	ctx    context.Context
	period time.Duration

	proc   ports.DecodeProcess
	frames <-chan ports.RawFrame
	exited <-chan error

	want *Pending // request currently being served

	streamSeq    uint64        // seq of the last Seek issued to proc
	streamTarget time.Duration // target of that Seek
	seekPending  bool          // Seek issued, first frame not seen yet
	havePos      bool          // lastPTS is valid for streamSeq
	lastPTS      time.Duration
	lastFrame    *Frame

	retries    int
	lastErr    error
	retryTimer *time.Timer
	retryC     <-chan time.Time
	seekTimer  *time.Timer
	seekC      <-chan time.Time
}

func (l *videoLoop) run() {
	s := l.src
	defer close(s.done)
	defer l.shutdown()

	for {
		// Frames are only pulled while someone is waiting for one; otherwise
		// the process is left blocked on its output pipe.
		var frames <-chan ports.RawFrame
		if l.want != nil || l.seekPending {
			frames = l.frames
		}

		select {
		case <-s.closing:
			return
		case <-s.wake:
			l.accept(s.takeNext())
		case f, ok := <-frames:
			if !ok {
				l.frames = nil
				continue
			}
			l.onFrame(f)
		case err := <-l.exited:
			l.onExit(err)
		case <-l.retryC:
			l.retryC = nil
		case <-l.seekC:
			l.seekC = nil
			if l.seekPending {
				l.onExit(fmt.Errorf("no frame within %s of seek to %s", s.cfg.SeekTimeout, l.streamTarget))
			}
		}
		l.dispatch()
	}
}

func (l *videoLoop) accept(p *Pending) {
	if p == nil {
		return
	}
	if l.want != nil && l.want.resolve(nil, ErrSuperseded) {
		l.src.superseded.Add(1)
	}
	l.want = p
}

// dispatch decides what the process should do for the current request.
func (l *videoLoop) dispatch() {
	s := l.src
	if l.want == nil {
		if !l.seekPending && l.proc != nil && s.State() != StateCrashed {
			s.setState(StateIdle)
		}
		return
	}
	if l.want.Resolved() {
		l.want = nil
		return
	}
	if err := s.isFailed(); err != nil {
		l.want.resolve(nil, err)
		l.want = nil
		return
	}
	if l.retryC != nil {
		return
	}

	target := l.want.Target()

	if l.lastFrame != nil && l.havePos && l.matches(l.lastFrame.PTS, target) {
		l.deliver(l.lastFrame)
		return
	}

	if l.proc == nil {
		if !l.spawn() {
			return
		}
	}

	if l.seekPending {
		// The outstanding seek will reach this target by reading forward.
		if target >= l.streamTarget && target-l.streamTarget <= max(s.cfg.ForwardWindow, l.period) {
			return
		}
		// Too far: replace it. Frames of the old seek are dropped by seq.
		l.seek(l.want.Seq(), l.align(target))
		return
	}

	if l.havePos && target > l.lastPTS && target-l.lastPTS <= s.cfg.ForwardWindow {
		s.setState(StateRequesting)
		return
	}

	l.seek(l.want.Seq(), l.align(target))
}

func (l *videoLoop) spawn() bool {
	s := l.src
	opts := ports.DecodeOptions{
		Path:      s.info.Path,
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		FrameRate: s.info.FrameRate,
		HWAccel:   s.cfg.HWAccel,
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = s.info.Width, s.info.Height
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = s.cfg.DefaultFrameRate
	}

	proc, err := s.factory.Spawn(l.ctx, opts)
	if err != nil {
		l.onExit(fmt.Errorf("spawn: %w", err))
		return false
	}
	s.logger.Debug("Decoder spawned")
	l.proc = proc
	l.frames = proc.Frames()
	l.exited = proc.Exited()
	l.havePos = false
	l.seekPending = false
	l.lastFrame = nil
	return true
}

func (l *videoLoop) seek(seq uint64, t time.Duration) {
	s := l.src
	if err := l.proc.Seek(seq, t); err != nil {
		l.onExit(fmt.Errorf("seek: %w", err))
		return
	}
	s.seeks.Add(1)
	s.logger.Debug("Seek issued to %s (seq %d)", t, seq)
	l.streamSeq = seq
	l.streamTarget = t
	l.seekPending = true
	l.havePos = false
	l.lastFrame = nil
	s.setState(StateRequesting)
	l.armSeekTimer()
}

func (l *videoLoop) onFrame(raw ports.RawFrame) {
	s := l.src
	if raw.Seq != l.streamSeq {
		s.staleFrames.Add(1)
		return
	}
	l.seekPending = false
	l.stopSeekTimer()
	l.havePos = true
	l.lastPTS = raw.PTS
	l.retries = 0
	l.lastErr = nil

	stride := raw.Stride
	if stride == 0 {
		stride = raw.Width * 4
	}
	f := &Frame{
		Source: s.info.ID,
		PTS:    raw.PTS,
		Width:  raw.Width,
		Height: raw.Height,
		Stride: stride,
		Pix:    raw.Pix,
	}
	l.lastFrame = f
	s.setState(StateDelivering)

	if l.want == nil {
		return
	}
	target := l.want.Target()
	// A stream seeked past the target never reaches it; dispatch reseeks.
	if l.matches(raw.PTS, target) || (raw.PTS > target && target >= l.streamTarget) {
		l.deliver(f)
	}
}

func (l *videoLoop) deliver(f *Frame) {
	if l.want.resolve(f, nil) {
		l.src.delivered.Add(1)
	}
	l.want = nil
	l.src.setState(StateIdle)
}

// matches reports whether a frame at pts is the one presented at target.
func (l *videoLoop) matches(pts, target time.Duration) bool {
	return ShowsAt(pts, target, l.period)
}

// align returns the start of the frame shown at t, so a seek lands on it.
func (l *videoLoop) align(t time.Duration) time.Duration {
	return FrameStart(FrameIndex(t, l.period), l.period)
}

func (l *videoLoop) onExit(err error) {
	s := l.src
	l.closeProc()

	if err == nil {
		// Clean end of stream: the request lies past the last decodable frame.
		if l.want != nil {
			if l.lastFrame != nil && l.want.Target() >= l.lastFrame.PTS {
				l.deliver(l.lastFrame)
			} else {
				l.want.resolve(nil, fmt.Errorf("%w: end of stream before %s", ErrOutOfRange, l.want.Target()))
				l.want = nil
			}
		}
		l.lastFrame = nil
		s.setState(StateIdle)
		return
	}

	if l.ctx.Err() != nil {
		return
	}

	l.lastFrame = nil
	l.retries++
	l.lastErr = err
	s.setState(StateCrashed)
	s.logger.Warn("Decoder exited: %v (attempt %d of %d)", err, l.retries, s.cfg.MaxRetries+1)

	if l.retries > s.cfg.MaxRetries {
		derr := &DecodeError{Source: s.info.ID, Path: s.info.Path, Attempts: l.retries, Err: err}
		s.fail(derr)
		s.logger.Error("Decoder failed: %v", derr)
		if l.want != nil {
			l.want.resolve(nil, derr)
			l.want = nil
		}
		l.retries = 0
		return
	}

	s.restarts.Add(1)
	s.setState(StateRestarting)
	delay := backoff(s.cfg.RetryDelay, s.cfg.MaxRetryDelay, l.retries)
	if l.retryTimer == nil {
		l.retryTimer = time.NewTimer(delay)
	} else {
		l.retryTimer.Reset(delay)
	}
	l.retryC = l.retryTimer.C
}

func (l *videoLoop) closeProc() {
	l.stopSeekTimer()
	if l.proc != nil {
		if err := l.proc.Close(); err != nil && !errors.Is(err, context.Canceled) {
			l.src.logger.Debug("Decoder close: %v", err)
		}
	}
	l.proc = nil
	l.frames = nil
	l.exited = nil
	l.seekPending = false
	l.havePos = false
}

func (l *videoLoop) armSeekTimer() {
	d := l.src.cfg.SeekTimeout
	if d <= 0 {
		return
	}
	if l.seekTimer == nil {
		l.seekTimer = time.NewTimer(d)
	} else {
		l.seekTimer.Stop()
		l.seekTimer.Reset(d)
	}
	l.seekC = l.seekTimer.C
}

func (l *videoLoop) stopSeekTimer() {
	if l.seekTimer != nil {
		l.seekTimer.Stop()
	}
	l.seekC = nil
}

func (l *videoLoop) shutdown() {
	s := l.src
	l.closeProc()
	if l.retryTimer != nil {
		l.retryTimer.Stop()
	}
	if l.want != nil {
		l.want.resolve(nil, ErrClosed)
	}
	if p := s.takeNext(); p != nil {
		p.resolve(nil, ErrClosed)
	}
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// backoff returns base * 2^(attempt-1), capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
