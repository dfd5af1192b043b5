package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/timeline"
)

// =============================================================================
// Common Types
// =============================================================================

// Dimension represents width and height.
type Dimension struct {
	Width  int
	Height int
}

// Valid reports whether both sides are positive.
func (d Dimension) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

func (d Dimension) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// DefaultBackground is the canvas colour behind all layers.
var DefaultBackground = color.RGBA{R: 25, G: 25, B: 35, A: 255}

// ErrInvalidColor is returned by ParseColor for malformed hex colours.
var ErrInvalidColor = errors.New("pipeline: invalid color")

// ParseColor parses #rgb, #rrggbb or #rrggbbaa (the # is optional).
func ParseColor(hex string) (color.Color, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")

	digits := make([]uint8, 0, len(hex))
	for i := 0; i < len(hex); i++ {
		v, ok := hexValue(hex[i])
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
		}
		digits = append(digits, v)
	}

	switch len(digits) {
	case 3:
		return color.RGBA{R: digits[0] * 17, G: digits[1] * 17, B: digits[2] * 17, A: 255}, nil
	case 6:
		return color.RGBA{R: digits[0]<<4 | digits[1], G: digits[2]<<4 | digits[3], B: digits[4]<<4 | digits[5], A: 255}, nil
	case 8:
		// color.RGBA is premultiplied.
		c := color.NRGBA{R: digits[0]<<4 | digits[1], G: digits[2]<<4 | digits[3], B: digits[4]<<4 | digits[5], A: digits[6]<<4 | digits[7]}
		return color.RGBAModel.Convert(c), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
}

func hexValue(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// PendingPolicy decides what a layer shows when its frame is not ready in time.
type PendingPolicy int

const (
	// PolicyReuse shows the clip's last composited frame, or nothing.
	PolicyReuse PendingPolicy = iota
	// PolicyWait blocks until the frame arrives; a timeout is a failure.
	PolicyWait
)

func (p PendingPolicy) String() string {
	switch p {
	case PolicyReuse:
		return "reuse"
	case PolicyWait:
		return "wait"
	default:
		return "unknown"
	}
}

// ParsePendingPolicy parses "reuse" or "wait".
func ParsePendingPolicy(s string) (PendingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reuse", "":
		return PolicyReuse, nil
	case "wait":
		return PolicyWait, nil
	default:
		return 0, fmt.Errorf("unknown pending policy: %q", s)
	}
}

// =============================================================================
// Composite Stage Types
// =============================================================================

// CompositeInput describes one output frame.
type CompositeInput struct {
	Time         time.Duration
	Entries      []timeline.Entry // Ascending track order
	Size         Dimension
	Background   color.Color   // nil selects DefaultBackground
	Policy       PendingPolicy
	FrameTimeout time.Duration // Per-layer wait; 0 waits until ctx ends
	FrameIndex   int           // Index for debug output; negative disables it
}

// EntryError tags a layer failure with the clip and source it came from.
type EntryError struct {
	Clip   timeline.ClipID
	Source media.SourceID
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("clip %s (source %s): %v", e.Clip, e.Source, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// CompositeResult is a completed output frame.
type CompositeResult struct {
	Time     time.Duration
	Image    *image.RGBA
	Visual   int // Entries that should have produced a picture
	Drawn    int // Entries drawn from a fresh frame
	Failures []*EntryError
	Reused   []timeline.ClipID // Entries drawn from their previous frame
	Blank    []timeline.ClipID // Entries left out without failing
	Hidden   []timeline.ClipID // Entries under an opaque entry above, never fetched
}

// AllFailed reports whether every visual entry failed.
func (r CompositeResult) AllFailed() bool {
	return r.Visual > 0 && len(r.Failures) == r.Visual
}

// DecodeFailures returns the failures caused by a dead decoder.
func (r CompositeResult) DecodeFailures() []*EntryError {
	var out []*EntryError
	for _, f := range r.Failures {
		if errors.Is(f.Err, media.ErrDecodeFailure) {
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// Export Stage Types
// =============================================================================

// ExportInput contains parameters for rendering a timeline to a file.
type ExportInput struct {
	Snapshot     *timeline.Snapshot
	Size         Dimension
	FPS          float64
	Start        time.Duration
	End          time.Duration // 0 exports to the end of the timeline
	Background   color.Color
	FrameTimeout time.Duration // 0 waits indefinitely for each frame
	Encoder      ports.EncoderOptions
	Progress     func(done, total int)
}

// DefaultExportInput returns ExportInput with default values.
func DefaultExportInput() ExportInput {
	return ExportInput{
		Size: Dimension{Width: 1280, Height: 720},
		FPS:  30,
		Encoder: ports.EncoderOptions{
			Codec:   "libx264",
			Quality: 23,
		},
	}
}

// ExportResult summarizes a finished export.
type ExportResult struct {
	OutputPath string
	Frames     int
	Duration   time.Duration // Timeline span covered
	Elapsed    time.Duration // Wall-clock time spent
}
