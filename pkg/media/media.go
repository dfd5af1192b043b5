// Package media owns the runtime side of source files: one Source per file,
// each backed either by an external decode process (video), a decoded still
// (image) or nothing visual at all (audio).
package media

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrDecodeFailure is returned once a source's decoder exhausted its restarts.
	ErrDecodeFailure = errors.New("media: decode failure")

	// ErrSuperseded is returned for a request replaced by a newer one on the same source.
	ErrSuperseded = errors.New("media: request superseded")

	// ErrOutOfRange is returned for requests outside the source's extent.
	ErrOutOfRange = errors.New("media: time outside source")

	// ErrNoVideo is returned when frames are requested from a source without pictures.
	ErrNoVideo = errors.New("media: source has no video")

	// ErrClosed is returned by sources that have been torn down.
	ErrClosed = errors.New("media: source closed")

	// ErrUnknownKind is returned for paths whose media kind cannot be determined.
	ErrUnknownKind = errors.New("media: unknown media kind")
)

// DecodeError tags a decode failure with the source it belongs to.
type DecodeError struct {
	Source   SourceID
	Path     string
	Attempts int
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("media: decode failure for %s after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

// Unwrap exposes both ErrDecodeFailure and the last process error.
func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecodeFailure, e.Err}
}

// SourceID identifies a Source within a session.
type SourceID string

// Kind is the media kind of a source file.
type Kind int

const (
	KindVideo Kind = iota
	KindImage
	KindAudio

	// KindAuto asks for detection from the file extension.
	KindAuto Kind = -1
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name as written by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "video":
		return KindVideo, nil
	case "image":
		return KindImage, nil
	case "audio":
		return KindAudio, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

var extKinds = map[string]Kind{
	".mp4": KindVideo, ".mkv": KindVideo, ".webm": KindVideo, ".mov": KindVideo,
	".avi": KindVideo, ".m4v": KindVideo,
	".png": KindImage, ".jpg": KindImage, ".jpeg": KindImage, ".gif": KindImage,
	".bmp": KindImage, ".tif": KindImage, ".tiff": KindImage, ".webp": KindImage,
	".mp3": KindAudio, ".wav": KindAudio, ".flac": KindAudio, ".ogg": KindAudio,
	".m4a": KindAudio, ".aac": KindAudio, ".opus": KindAudio,
}

// KindFromPath guesses the media kind from the file extension.
func KindFromPath(path string) (Kind, error) {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownKind, path)
}

// Info holds the immutable properties of a source.
type Info struct {
	ID        SourceID
	Path      string
	Kind      Kind
	Duration  time.Duration // 0 when unknown or unbounded (images)
	FrameRate float64       // 0 when unknown
	Width     int
	Height    int
}

// FramePeriod returns the duration of one source frame, using fallbackFPS
// when the source frame rate is unknown.
func (i Info) FramePeriod(fallbackFPS float64) time.Duration {
	fps := i.FrameRate
	if fps <= 0 {
		fps = fallbackFPS
	}
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(float64(time.Second) / fps)
}

// frameEpsilon absorbs rounding in frame boundary arithmetic.
const frameEpsilon = time.Microsecond

// FrameIndex returns the index of the frame shown at t: the last frame
// starting at or before t.
func FrameIndex(t, period time.Duration) int64 {
	if period <= 0 {
		return 0
	}
	return int64(math.Floor(float64(t+frameEpsilon) / float64(period)))
}

// FrameStart returns the start time of frame n.
func FrameStart(n int64, period time.Duration) time.Duration {
	return time.Duration(float64(n) * float64(period))
}

// ShowsAt reports whether a frame starting at pts is the one shown at t.
func ShowsAt(pts, t, period time.Duration) bool {
	return pts <= t+frameEpsilon && t+frameEpsilon < pts+period
}

// Frame is a decoded picture: packed RGBA8, straight alpha.
// Frames are immutable once published and may be shared freely.
type Frame struct {
	Source SourceID
	PTS    time.Duration
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// Image wraps the pixel buffer without copying.
func (f *Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Bytes returns the size of the pixel buffer.
func (f *Frame) Bytes() int {
	return len(f.Pix)
}

// FrameFromImage converts img into a Frame.
func FrameFromImage(id SourceID, pts time.Duration, img image.Image) *Frame {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Frame{
		Source: id,
		PTS:    pts,
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: nrgba.Stride,
		Pix:    nrgba.Pix,
	}
}

// State is the lifecycle state of a Source's decoder.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateDelivering
	StateCrashed
	StateRestarting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateDelivering:
		return "delivering"
	case StateCrashed:
		return "crashed"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Source produces frames for one media file.
type Source interface {
	// ID returns the session-unique identifier.
	ID() SourceID

	// Info returns the probed, immutable properties.
	Info() Info

	// RequestFrame asks for the frame presented at source time t.
	// It never blocks on decode work.
	RequestFrame(t time.Duration) *Pending

	// State reports the decoder state.
	State() State

	// Close tears the source down; outstanding requests fail with ErrClosed.
	Close() error
}
