package ports

import (
	"context"
	"time"
)

// PixelFormatRGBA is the only pixel layout a DecodeProcess may emit:
// packed 8-bit R, G, B, A with straight alpha and stride = 4*width.
const PixelFormatRGBA = "rgba"

// RawFrame is one decoded picture emitted by a DecodeProcess.
type RawFrame struct {
	Seq    uint64        // Sequence number of the seek that produced this frame
	PTS    time.Duration // Presentation timestamp in source time
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// DecodeOptions configures a decode process for one source file.
type DecodeOptions struct {
	Path      string
	Width     int     // Output width (0 = native)
	Height    int     // Output height (0 = native)
	FrameRate float64 // Source frame rate used to stamp PTS
	HWAccel   string  // Hardware acceleration hint (e.g., "auto"), empty disables
}

// DecodeProcess is a running external decoder for a single source file.
//
// Seek asks the process to decode from the given source time, tagging every
// frame it produces with seq. A later Seek supersedes an earlier one.
// Frames are emitted in increasing PTS order per seq.
type DecodeProcess interface {
	// Seek starts decoding at t. It must not block on decode work.
	Seek(seq uint64, t time.Duration) error

	// Frames returns the channel of decoded frames.
	Frames() <-chan RawFrame

	// Exited is signalled once when the process terminates.
	// A nil error means a clean end of stream; anything else is a crash.
	Exited() <-chan error

	// Close terminates the process and releases its resources.
	Close() error
}

// DecoderFactory spawns decode processes.
type DecoderFactory interface {
	// Spawn starts a new decode process. Startup latency is arbitrary;
	// Spawn returns as soon as the process is launched.
	Spawn(ctx context.Context, opts DecodeOptions) (DecodeProcess, error)
}

// MediaInfo contains probed properties of a media file.
type MediaInfo struct {
	Duration  time.Duration // 0 when unknown
	FrameRate float64       // 0 when unknown
	Width     int
	Height    int
	HasVideo  bool
	HasAudio  bool
	Codec     string
}

// Prober inspects media files.
type Prober interface {
	// Probe returns media properties for the file at path.
	Probe(ctx context.Context, path string) (MediaInfo, error)
}
