package ports

import (
	"image"
)

// DebugSink abstracts debug output for intermediate results.
// It allows saving intermediate processing results for debugging purposes.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveProjectJSON saves the resolved project state as JSON.
	SaveProjectJSON(data []byte) error

	// SaveComposedFrame saves a composed frame.
	SaveComposedFrame(index int, img image.Image) error
}
