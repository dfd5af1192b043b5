package ports

import (
	"image"
	"image/color"
)

// Renderer abstracts raster operations used for compositing.
type Renderer interface {
	// CreateCanvas creates a new drawing canvas with the specified dimensions and background color.
	// A nil bg leaves the canvas fully transparent.
	CreateCanvas(width, height int, bg color.Color) Canvas

	// DecodeImage decodes image data into an image.Image.
	DecodeImage(data []byte, format ImageFormat) (image.Image, error)

	// EncodeImage encodes an image to the specified format.
	EncodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error)

	// ResizeImage resizes an image to the specified dimensions.
	ResizeImage(img image.Image, width, height int) image.Image

	// Thumbnail downsizes img to fit within maxWidth x maxHeight, keeping aspect ratio.
	Thumbnail(img image.Image, maxWidth, maxHeight int) image.Image
}

// Placement describes how a source picture is mapped onto a canvas.
// The picture is scaled by ScaleX/ScaleY, rotated by Rotation degrees
// around its centre, and its centre is placed at (CenterX, CenterY).
type Placement struct {
	CenterX  float64
	CenterY  float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64 // Degrees, clockwise
}

// Canvas provides drawing operations for compositing images.
type Canvas interface {
	// DrawImage draws an image at the specified position.
	DrawImage(img image.Image, x, y int)

	// DrawImageScaled draws an image scaled to the specified dimensions.
	DrawImageScaled(img image.Image, x, y, width, height int)

	// DrawImagePlaced draws an image with an affine placement.
	DrawImagePlaced(img image.Image, p Placement)

	// DrawRect draws a filled rectangle.
	DrawRect(x, y, w, h int, c color.Color)

	// DrawRectStroke draws a rectangle outline.
	DrawRectStroke(x, y, w, h int, c color.Color, strokeWidth float64)

	// ToImage returns the canvas as an image.Image.
	ToImage() image.Image

	// RGBA returns the canvas backing store.
	RGBA() *image.RGBA
}

// ImageFormat specifies image encoding format.
type ImageFormat int

const (
	FormatJPEG ImageFormat = iota
	FormatPNG
	FormatAuto
)
