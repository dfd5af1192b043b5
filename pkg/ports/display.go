package ports

import "image"

// DisplaySurface is the software framebuffer a composited frame is presented on.
type DisplaySurface interface {
	// Present copies the completed frame for display.
	// The surface must not retain img after Present returns.
	Present(img *image.RGBA, width, height int) error
}
