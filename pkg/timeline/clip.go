// Package timeline holds the editing model: clips placed on tracks, and
// immutable snapshots that resolve a time to the clips visible at it.
package timeline

import (
	"errors"
	"time"

	"github.com/user/dusk/pkg/media"
)

var (
	// ErrInvalidPlacement is returned when an edit would produce an invalid clip
	// or overlap another clip on the same track.
	ErrInvalidPlacement = errors.New("timeline: invalid placement")

	// ErrOutOfBounds is returned when a trim reaches outside the source media.
	ErrOutOfBounds = errors.New("timeline: out of source bounds")

	// ErrClipNotFound is returned for unknown clip ids.
	ErrClipNotFound = errors.New("timeline: clip not found")

	// ErrUnknownSource is returned when a clip refers to a source the lookup does not know.
	ErrUnknownSource = errors.New("timeline: unknown source")
)

// ClipID identifies a clip.
type ClipID string

// SourceID identifies the media a clip draws from.
type SourceID = media.SourceID

// Transform places a clip's picture on the output canvas.
//
// The picture is first sized: to Width x Height output pixels when both are
// set, otherwise fitted inside the canvas keeping aspect ratio. It is then
// scaled, rotated by Rotation degrees about its centre, and its centre is
// moved X, Y pixels away from the canvas centre.
type Transform struct {
	X        float64 `msgpack:"x" yaml:"x"`
	Y        float64 `msgpack:"y" yaml:"y"`
	ScaleX   float64 `msgpack:"scale_x" yaml:"scale_x"`
	ScaleY   float64 `msgpack:"scale_y" yaml:"scale_y"`
	Rotation float64 `msgpack:"rotation" yaml:"rotation"`
	Width    float64 `msgpack:"width,omitempty" yaml:"width,omitempty"`
	Height   float64 `msgpack:"height,omitempty" yaml:"height,omitempty"`
}

// Identity returns a transform that fits the picture centred on the canvas.
func Identity() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Clip is a placement of a source span on a track.
type Clip struct {
	ID        ClipID
	Source    SourceID
	Track     int
	Start     time.Duration // Timeline position
	Duration  time.Duration
	InOffset  time.Duration // Source time shown at Start
	Opacity   float64
	Transform Transform
}

// End returns the first timeline instant after the clip.
func (c Clip) End() time.Duration {
	return c.Start + c.Duration
}

// Contains reports whether the clip is active at t. Clips are half-open: [Start, End).
func (c Clip) Contains(t time.Duration) bool {
	return c.Start <= t && t < c.End()
}

// SourceTime maps a timeline time inside the clip to source time.
func (c Clip) SourceTime(t time.Duration) time.Duration {
	return c.InOffset + (t - c.Start)
}

// Overlaps reports whether two clips share any instant.
func (c Clip) Overlaps(o Clip) bool {
	return c.Start < o.End() && o.Start < c.End()
}

// Entry is one clip active at a resolved time.
type Entry struct {
	Clip       Clip
	SourceTime time.Duration
}

// Track is the ordered clip list of one track index.
type Track struct {
	Index int
	Clips []Clip // Sorted by Start, non-overlapping
}
