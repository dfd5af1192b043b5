// Package ggrenderer provides a renderer implementation using the gg library.
package ggrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/user/dusk/pkg/ports"
)

// Renderer implements ports.Renderer using the gg library.
type Renderer struct{}

// New creates a new Renderer.
func New() *Renderer {
	return &Renderer{}
}

// CreateCanvas creates a new drawing canvas.
func (r *Renderer) CreateCanvas(width, height int, bg color.Color) ports.Canvas {
	dc := gg.NewContext(width, height)
	if bg != nil {
		dc.SetColor(bg)
		dc.Clear()
	}
	return &Canvas{dc: dc}
}

// DecodeImage decodes image data into an image.Image.
func (r *Renderer) DecodeImage(data []byte, format ports.ImageFormat) (image.Image, error) {
	reader := bytes.NewReader(data)

	switch format {
	case ports.FormatJPEG:
		return jpeg.Decode(reader)
	case ports.FormatPNG:
		return png.Decode(reader)
	default:
		// gif, bmp, tiff and webp are registered by import
		img, _, err := image.Decode(reader)
		return img, err
	}
}

// EncodeImage encodes an image to the specified format.
func (r *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case ports.FormatJPEG:
		opts := &jpeg.Options{Quality: quality}
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode JPEG: %w", err)
		}
	case ports.FormatPNG, ports.FormatAuto:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %d", format)
	}

	return buf.Bytes(), nil
}

// ResizeImage resizes an image to the specified dimensions.
func (r *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Thumbnail downsizes img with Lanczos resampling; images already small enough are returned as is.
func (r *Renderer) Thumbnail(img image.Image, maxWidth, maxHeight int) image.Image {
	if maxWidth <= 0 || maxHeight <= 0 {
		return img
	}
	return resize.Thumbnail(uint(maxWidth), uint(maxHeight), img, resize.Lanczos3)
}

// Ensure Renderer implements ports.Renderer
var _ ports.Renderer = (*Renderer)(nil)

// Canvas implements ports.Canvas using gg.Context.
type Canvas struct {
	dc *gg.Context
}

// DrawImage draws an image at the specified position.
func (c *Canvas) DrawImage(img image.Image, x, y int) {
	c.dc.DrawImage(img, x, y)
}

// DrawImageScaled draws an image scaled to the specified dimensions.
func (c *Canvas) DrawImageScaled(img image.Image, x, y, width, height int) {
	c.dc.Push()
	defer c.dc.Pop()

	bounds := img.Bounds()
	scaleX := float64(width) / float64(bounds.Dx())
	scaleY := float64(height) / float64(bounds.Dy())

	c.dc.Translate(float64(x), float64(y))
	c.dc.Scale(scaleX, scaleY)
	c.dc.DrawImage(img, 0, 0)
}

// DrawImagePlaced draws img centred at p with scale and rotation applied.
// Unscaled, unrotated placements on whole pixels are copied without resampling.
func (c *Canvas) DrawImagePlaced(img image.Image, p ports.Placement) {
	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	if p.Rotation == 0 && p.ScaleX == 1 && p.ScaleY == 1 {
		x, y := p.CenterX-w/2, p.CenterY-h/2
		if x == math.Trunc(x) && y == math.Trunc(y) {
			dst, ok := c.dc.Image().(*image.RGBA)
			if ok {
				r := image.Rect(int(x), int(y), int(x)+bounds.Dx(), int(y)+bounds.Dy())
				draw.Draw(dst, r, img, bounds.Min, draw.Over)
				return
			}
		}
	}

	c.dc.Push()
	defer c.dc.Pop()

	c.dc.Translate(p.CenterX, p.CenterY)
	if p.Rotation != 0 {
		c.dc.Rotate(gg.Radians(p.Rotation))
	}
	c.dc.Scale(p.ScaleX, p.ScaleY)
	c.dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
}

// DrawRect draws a filled rectangle.
func (c *Canvas) DrawRect(x, y, w, h int, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawRectangle(float64(x), float64(y), float64(w), float64(h))
	c.dc.Fill()
}

// DrawRectStroke draws a rectangle outline.
func (c *Canvas) DrawRectStroke(x, y, w, h int, col color.Color, strokeWidth float64) {
	c.dc.SetColor(col)
	c.dc.SetLineWidth(strokeWidth)
	c.dc.DrawRectangle(float64(x), float64(y), float64(w), float64(h))
	c.dc.Stroke()
}

// ToImage returns the canvas as an image.Image.
func (c *Canvas) ToImage() image.Image {
	return c.dc.Image()
}

// RGBA returns the canvas backing store.
func (c *Canvas) RGBA() *image.RGBA {
	if rgba, ok := c.dc.Image().(*image.RGBA); ok {
		return rgba
	}
	img := c.dc.Image()
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

// Ensure Canvas implements ports.Canvas
var _ ports.Canvas = (*Canvas)(nil)
