package media

import (
	"context"
	"sync"
	"time"
)

// Pending is the handle returned by RequestFrame. It resolves exactly once,
// either with a frame or with an error.
type Pending struct {
	seq    uint64
	target time.Duration

	once  sync.Once
	done  chan struct{}
	frame *Frame
	err   error
}

func newPending(seq uint64, target time.Duration) *Pending {
	return &Pending{
		seq:    seq,
		target: target,
		done:   make(chan struct{}),
	}
}

// Resolved returns an already completed handle.
func Resolved(frame *Frame, err error) *Pending {
	p := newPending(0, 0)
	p.resolve(frame, err)
	return p
}

// resolve completes the handle. Only the first call has an effect.
func (p *Pending) resolve(frame *Frame, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.frame, p.err = frame, err
		close(p.done)
		resolved = true
	})
	return resolved
}

// Seq returns the request sequence number.
func (p *Pending) Seq() uint64 { return p.seq }

// Target returns the requested source time.
func (p *Pending) Target() time.Duration { return p.target }

// Done is closed once the request is resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Resolved reports whether the handle has completed.
func (p *Pending) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome. Call only after Done is closed.
func (p *Pending) Result() (*Frame, error) {
	<-p.done
	return p.frame, p.err
}

// Wait blocks until the request resolves or ctx ends.
func (p *Pending) Wait(ctx context.Context) (*Frame, error) {
	select {
	case <-p.done:
		return p.frame, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
