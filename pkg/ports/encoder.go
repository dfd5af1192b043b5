package ports

import (
	"image"
)

// VideoEncoder abstracts the external encoder/muxer used by export.
type VideoEncoder interface {
	// Begin initializes the encoder with the specified dimensions and frame rate.
	Begin(width, height int, fps float64, opts EncoderOptions) error

	// EncodeFrame encodes a single frame at the specified timestamp.
	// Frames are handed over in presentation order.
	EncodeFrame(img image.Image, timestampMs int) error

	// End finalizes encoding.
	End() error

	// Abort stops encoding and discards partial output.
	Abort() error
}

// EncoderOptions configures video encoding parameters.
type EncoderOptions struct {
	OutputPath string
	Codec      string // ffmpeg video codec name (e.g., "libx264")
	Bitrate    int    // Target bitrate in kbps
	Quality    int    // CRF value: 0-63 (lower is higher quality)
}
