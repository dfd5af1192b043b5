package ggrenderer

import (
	"image"
	"image/color"
	"testing"

	"github.com/user/dusk/pkg/ports"
)

func TestRenderer_CreateCanvas(t *testing.T) {
	r := New()

	canvas := r.CreateCanvas(100, 60, color.White)
	img := canvas.ToImage()
	bounds := img.Bounds()

	if bounds.Dx() != 100 || bounds.Dy() != 60 {
		t.Errorf("expected 100x60, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	if got := canvas.RGBA().RGBAAt(10, 10); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("expected white background, got %v", got)
	}
}

func TestRenderer_CreateCanvas_Transparent(t *testing.T) {
	r := New()

	canvas := r.CreateCanvas(8, 8, nil)
	if got := canvas.RGBA().RGBAAt(3, 3); got.A != 0 {
		t.Errorf("expected transparent canvas, got %v", got)
	}
}

func TestRenderer_EncodeDecodePNG(t *testing.T) {
	r := New()

	img := image.NewRGBA(image.Rect(0, 0, 30, 20))
	img.SetRGBA(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	data, err := r.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}

	decoded, err := r.DecodeImage(data, ports.FormatAuto)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() != 30 || bounds.Dy() != 20 {
		t.Errorf("expected 30x20, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	r8, g8, b8, _ := decoded.At(1, 1).RGBA()
	if r8>>8 != 10 || g8>>8 != 20 || b8>>8 != 30 {
		t.Errorf("pixel changed in round trip: %d %d %d", r8>>8, g8>>8, b8>>8)
	}
}

func TestRenderer_EncodeDecodeJPEG(t *testing.T) {
	r := New()

	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	data, err := r.EncodeImage(img, ports.FormatJPEG, 80)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}
	decoded, err := r.DecodeImage(data, ports.FormatJPEG)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if decoded.Bounds().Dx() != 50 {
		t.Errorf("expected width 50, got %d", decoded.Bounds().Dx())
	}
}

func TestRenderer_ResizeImage(t *testing.T) {
	r := New()

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	resized := r.ResizeImage(img, 50, 25)

	bounds := resized.Bounds()
	if bounds.Dx() != 50 || bounds.Dy() != 25 {
		t.Errorf("expected 50x25, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderer_Thumbnail(t *testing.T) {
	r := New()

	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	thumb := r.Thumbnail(img, 100, 100)

	bounds := thumb.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Errorf("expected 100x50, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCanvas_DrawImagePlaced_IdentityCopiesPixels(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(8, 8, nil)

	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 200, 100, 50, 255
	}

	canvas.DrawImagePlaced(src, ports.Placement{CenterX: 4, CenterY: 4, ScaleX: 1, ScaleY: 1})

	out := canvas.RGBA()
	if got := out.RGBAAt(2, 2); got != (color.RGBA{200, 100, 50, 255}) {
		t.Errorf("inside: expected copied pixel, got %v", got)
	}
	if got := out.RGBAAt(0, 0); got.A != 0 {
		t.Errorf("outside: expected transparent, got %v", got)
	}
	if got := out.RGBAAt(6, 6); got.A != 0 {
		t.Errorf("outside: expected transparent, got %v", got)
	}
}

func TestCanvas_DrawImagePlaced_Scaled(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(20, 20, nil)

	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i+3] = 255
	}

	canvas.DrawImagePlaced(src, ports.Placement{CenterX: 10, CenterY: 10, ScaleX: 4, ScaleY: 4})

	out := canvas.RGBA()
	if got := out.RGBAAt(10, 10); got.A == 0 {
		t.Error("expected scaled image to cover the centre")
	}
	if got := out.RGBAAt(1, 1); got.A != 0 {
		t.Errorf("expected corner outside scaled image to stay transparent, got %v", got)
	}
}
