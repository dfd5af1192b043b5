package playback

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/timeline"
)

// TimelineSource provides the snapshot to resolve against.
type TimelineSource interface {
	Snapshot() *timeline.Snapshot
}

// Config configures an Engine.
type Config struct {
	FPS          float64
	Size         pipeline.Dimension
	Background   color.Color
	Policy       pipeline.PendingPolicy
	FrameTimeout time.Duration
	EventBuffer  int
}

// DefaultConfig returns preview defaults.
func DefaultConfig() Config {
	return Config{
		FPS:          30,
		Size:         pipeline.Dimension{Width: 1280, Height: 720},
		Policy:       pipeline.PolicyReuse,
		FrameTimeout: 100 * time.Millisecond,
		EventBuffer:  64,
	}
}

// Engine owns playback. All state lives on one goroutine; the exported
// methods post commands to it and never block on rendering.
type Engine struct {
	stage    pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult]
	timeline TimelineSource
	display  ports.DisplaySurface
	logger   ports.Logger
	cfg      Config
	now      func() time.Time

	cmds    chan command
	results chan compositeDone
	events  chan Event
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	mu       sync.RWMutex
	state    State
	position time.Duration
	size     pipeline.Dimension

	// Owned by the loop goroutine.
	inflight     *job
	gen          uint64
	resume       bool
	clockStart   time.Time
	clockBase    time.Duration
	pendingScrub *time.Duration
	dirty        bool
	lastVersion  uint64
	reported     map[media.SourceID]bool

	ticks         atomic.Uint64
	droppedTicks  atomic.Uint64
	composites    atomic.Uint64
	presented     atomic.Uint64
	cancelled     atomic.Uint64
	errCount      atomic.Uint64
	droppedEvents atomic.Uint64
}

type cmdKind int

const (
	cmdPlay cmdKind = iota
	cmdPause
	cmdStop
	cmdSeek
	cmdScrub
	cmdEndScrub
	cmdResize
	cmdRefresh
	cmdRearm
)

type command struct {
	kind   cmdKind
	at     time.Duration
	size   pipeline.Dimension
	source media.SourceID
}

type job struct {
	gen    uint64
	at     time.Duration
	cancel context.CancelFunc
}

type compositeDone struct {
	gen    uint64
	at     time.Duration
	result pipeline.CompositeResult
	err    error
}

// New creates an engine in the Stopped state and starts its loop.
func New(stage pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult], tl TimelineSource, display ports.DisplaySurface, cfg Config, logger ports.Logger) *Engine {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	e := &Engine{
		stage:    stage,
		timeline: tl,
		display:  display,
		logger:   logger.WithComponent("playback"),
		cfg:      cfg,
		now:      time.Now,
		cmds:     make(chan command, 64),
		results:  make(chan compositeDone, 4),
		events:   make(chan Event, cfg.EventBuffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		size:     cfg.Size,
		reported: make(map[media.SourceID]bool),
	}
	go e.run()
	return e
}

// Play starts or resumes playback from the current position.
func (e *Engine) Play() error { return e.send(command{kind: cmdPlay}) }

// Pause stops the clock, keeping the position.
func (e *Engine) Pause() error { return e.send(command{kind: cmdPause}) }

// Stop halts playback and cancels any in-flight composite.
func (e *Engine) Stop() error { return e.send(command{kind: cmdStop}) }

// Seek jumps to t and presents it. Playback resumes afterwards if it was running.
func (e *Engine) Seek(t time.Duration) error { return e.send(command{kind: cmdSeek, at: t}) }

// Scrub follows an interactive drag; only the latest time is rendered.
func (e *Engine) Scrub(t time.Duration) error { return e.send(command{kind: cmdScrub, at: t}) }

// EndScrub finishes a drag, settling on the last scrubbed time.
func (e *Engine) EndScrub() error { return e.send(command{kind: cmdEndScrub}) }

// Resize changes the output size and re-renders the current frame.
func (e *Engine) Resize(width, height int) error {
	size := pipeline.Dimension{Width: width, Height: height}
	if !size.Valid() {
		return fmt.Errorf("playback: invalid size %s", size)
	}
	return e.send(command{kind: cmdResize, size: size})
}

// Refresh re-renders the current frame, for example after an edit.
func (e *Engine) Refresh() error { return e.send(command{kind: cmdRefresh}) }

// Rearm forgets that a source was reported failed, so a retried source
// that fails again produces a new EventDecodeFailure.
func (e *Engine) Rearm(id media.SourceID) error {
	return e.send(command{kind: cmdRearm, source: id})
}

// State returns the transport state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Position returns the playhead.
func (e *Engine) Position() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// Size returns the output size.
func (e *Engine) Size() pipeline.Dimension {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.size
}

// Events delivers engine events. Events are dropped, and counted, when the
// consumer falls behind. The channel is closed by Close.
func (e *Engine) Events() <-chan Event { return e.events }

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Ticks:         e.ticks.Load(),
		DroppedTicks:  e.droppedTicks.Load(),
		Composites:    e.composites.Load(),
		Presented:     e.presented.Load(),
		Cancelled:     e.cancelled.Load(),
		Errors:        e.errCount.Load(),
		DroppedEvents: e.droppedEvents.Load(),
	}
}

// Close stops the loop and cancels outstanding work.
func (e *Engine) Close() error {
	e.once.Do(func() {
		close(e.closing)
		<-e.done
	})
	return nil
}

func (e *Engine) send(c command) error {
	select {
	case <-e.closing:
		return ErrClosed
	default:
	}
	select {
	case e.cmds <- c:
		return nil
	case <-e.closing:
		return ErrClosed
	}
}

func (e *Engine) run() {
	defer close(e.done)
	defer close(e.events)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / e.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-e.closing:
			e.cancelInflight()
			return
		case c := <-e.cmds:
			e.handle(c)
		case d := <-e.results:
			e.onDone(d)
		case <-ticker.C:
			e.onTick()
		}
	}
}

func (e *Engine) handle(c command) {
	switch c.kind {
	case cmdPlay:
		switch e.State() {
		case Stopped:
			if e.Position() >= e.duration() {
				e.setPosition(0)
			}
			e.startClock()
			e.setState(Playing)
		case Seeking, Scrubbing:
			e.resume = true
		}

	case cmdPause:
		switch e.State() {
		case Playing:
			e.setPosition(e.clock())
			e.setState(Stopped)
		case Seeking, Scrubbing:
			e.resume = false
		}

	case cmdStop:
		if e.State() == Playing {
			e.setPosition(e.clock())
		}
		e.cancelInflight()
		e.pendingScrub = nil
		e.resume = false
		e.setState(Stopped)

	case cmdSeek:
		t := e.clamp(c.at)
		e.resume = e.playingIntent()
		e.cancelInflight()
		e.pendingScrub = nil
		e.setPosition(t)
		e.setState(Seeking)
		e.launch(t)

	case cmdScrub:
		t := e.clamp(c.at)
		if e.State() != Scrubbing {
			e.resume = e.playingIntent()
			e.setState(Scrubbing)
		}
		e.setPosition(t)
		if e.inflight != nil && e.inflight.at != t {
			e.cancelInflight()
		}
		if e.inflight == nil {
			e.pendingScrub = &t
		}

	case cmdEndScrub:
		if e.State() != Scrubbing {
			return
		}
		e.setState(Seeking)
		switch {
		case e.inflight != nil:
			// Its completion settles the seek.
		case e.pendingScrub != nil:
			t := *e.pendingScrub
			e.pendingScrub = nil
			e.launch(t)
		default:
			e.settle()
		}

	case cmdResize:
		e.mu.Lock()
		e.size = c.size
		e.mu.Unlock()
		e.dirty = true
		e.refreshIfIdle()

	case cmdRefresh:
		e.dirty = true
		e.refreshIfIdle()

	case cmdRearm:
		delete(e.reported, c.source)
		e.dirty = true
		e.refreshIfIdle()
	}
}

func (e *Engine) onTick() {
	switch e.State() {
	case Playing:
		e.ticks.Add(1)
		pos := e.clock()
		if end := e.duration(); pos >= end {
			e.setPosition(end)
			e.setState(Stopped)
			e.emit(Event{Kind: EventEnded, Time: end})
			return
		}
		e.setPosition(pos)
		if e.inflight != nil {
			e.droppedTicks.Add(1)
			return
		}
		e.launch(pos)

	case Scrubbing:
		if e.pendingScrub != nil && e.inflight == nil {
			t := *e.pendingScrub
			e.pendingScrub = nil
			e.launch(t)
		}

	case Stopped:
		if e.timeline.Snapshot().Version() != e.lastVersion {
			e.dirty = true
		}
		e.refreshIfIdle()
	}
}

func (e *Engine) refreshIfIdle() {
	if e.dirty && e.inflight == nil && e.State() == Stopped {
		e.launch(e.Position())
	}
}

// launch starts a composite for t. The caller guarantees nothing is in flight.
func (e *Engine) launch(t time.Duration) {
	e.gen++
	ctx, cancel := context.WithCancel(context.Background())
	snap := e.timeline.Snapshot()
	input := pipeline.CompositeInput{
		Time:         t,
		Entries:      snap.Resolve(t),
		Size:         e.Size(),
		Background:   e.cfg.Background,
		Policy:       e.cfg.Policy,
		FrameTimeout: e.cfg.FrameTimeout,
		FrameIndex:   -1,
	}
	e.inflight = &job{gen: e.gen, at: t, cancel: cancel}
	e.lastVersion = snap.Version()
	e.dirty = false
	e.composites.Add(1)

	gen := e.gen
	go func() {
		res, err := e.stage.Execute(ctx, input)
		select {
		case e.results <- compositeDone{gen: gen, at: t, result: res, err: err}:
		case <-e.closing:
		}
	}()
}

func (e *Engine) cancelInflight() {
	if e.inflight == nil {
		return
	}
	e.inflight.cancel()
	e.inflight = nil
	e.cancelled.Add(1)
}

func (e *Engine) onDone(d compositeDone) {
	if e.inflight == nil || d.gen != e.inflight.gen {
		return // superseded
	}
	e.inflight.cancel()
	e.inflight = nil

	if d.err != nil {
		if !errors.Is(d.err, context.Canceled) {
			e.fail(d.at, d.err)
		}
	} else {
		e.present(d)
	}

	if e.State() == Seeking {
		e.settle()
	}
	e.refreshIfIdle()
}

func (e *Engine) present(d compositeDone) {
	img := d.result.Image
	if img != nil {
		if err := e.display.Present(img, img.Bounds().Dx(), img.Bounds().Dy()); err != nil {
			e.fail(d.at, fmt.Errorf("present: %w", err))
			return
		}
		e.presented.Add(1)
		e.emit(Event{Kind: EventFramePresented, Time: d.at})
	}

	for _, f := range d.result.DecodeFailures() {
		if e.reported[f.Source] {
			continue
		}
		e.reported[f.Source] = true
		e.logger.Warn("Source %s failed: %v", f.Source, f.Err)
		e.emit(Event{Kind: EventDecodeFailure, Time: d.at, Clip: f.Clip, Source: f.Source, Err: f.Err})
	}

	if d.result.AllFailed() && e.State() == Playing {
		e.setPosition(e.clock())
		e.setState(Stopped)
		e.fail(d.at, fmt.Errorf("%w at %s: %w", ErrAllSourcesFailed, d.at, d.result.Failures[0]))
	}
}

// settle ends a seek in the state the user asked for.
func (e *Engine) settle() {
	if e.resume {
		e.resume = false
		e.startClock()
		e.setState(Playing)
		return
	}
	e.setState(Stopped)
}

func (e *Engine) fail(at time.Duration, err error) {
	e.errCount.Add(1)
	e.logger.Error("Playback error at %s: %v", at, err)
	e.emit(Event{Kind: EventError, Time: at, Err: err})
}

// playingIntent reports whether playback should continue after a seek.
func (e *Engine) playingIntent() bool {
	switch e.State() {
	case Playing:
		return true
	case Seeking, Scrubbing:
		return e.resume
	default:
		return false
	}
}

func (e *Engine) startClock() {
	e.clockStart = e.now()
	e.clockBase = e.Position()
}

func (e *Engine) clock() time.Duration {
	return e.clockBase + e.now().Sub(e.clockStart)
}

func (e *Engine) duration() time.Duration {
	return e.timeline.Snapshot().Duration()
}

func (e *Engine) clamp(t time.Duration) time.Duration {
	if t < 0 {
		return 0
	}
	if d := e.duration(); t > d {
		return d
	}
	return t
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	pos := e.position
	e.mu.Unlock()
	if changed {
		e.logger.Debug("State %s at %s", s, pos)
		e.emit(Event{Kind: EventStateChanged, State: s, Time: pos})
	}
}

func (e *Engine) setPosition(t time.Duration) {
	e.mu.Lock()
	e.position = t
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	if ev.State == 0 && ev.Kind != EventStateChanged {
		ev.State = e.State()
	}
	select {
	case e.events <- ev:
	default:
		e.droppedEvents.Add(1)
	}
}
