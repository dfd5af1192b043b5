// Package playback drives preview: a logical clock, transport controls and
// a single in-flight composite presented to a display surface.
package playback

import (
	"errors"
	"time"

	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/timeline"
)

var (
	// ErrClosed is returned by controls called after Close.
	ErrClosed = errors.New("playback: engine closed")

	// ErrAllSourcesFailed stops playback when no visual layer could be produced.
	ErrAllSourcesFailed = errors.New("playback: every visual source failed")
)

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Scrubbing
	Seeking
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Scrubbing:
		return "scrubbing"
	case Seeking:
		return "seeking"
	default:
		return "unknown"
	}
}

// EventKind classifies engine events.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventFramePresented
	EventDecodeFailure
	EventError
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventFramePresented:
		return "frame"
	case EventDecodeFailure:
		return "decode-failure"
	case EventError:
		return "error"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event reports something the engine did.
type Event struct {
	Kind   EventKind
	State  State
	Time   time.Duration
	Clip   timeline.ClipID
	Source media.SourceID
	Err    error
}

// Stats counts engine activity.
type Stats struct {
	Ticks         uint64 // Clock ticks while playing
	DroppedTicks  uint64 // Ticks skipped because a composite was in flight
	Composites    uint64
	Presented     uint64
	Cancelled     uint64
	Errors        uint64
	DroppedEvents uint64
}
