package compositor

import (
	"image"
	"math"
)

// BlendOver draws src over dst in place with a uniform opacity.
// Both images hold premultiplied RGBA, so per channel:
//
//	out = src*op + dst*(1 - srcA*op)
//
// computed in integers with round-half-up. Only the overlap of the two
// rectangles is touched.
func BlendOver(dst, src *image.RGBA, opacity float64) {
	if opacity <= 0 {
		return
	}
	if opacity > 1 {
		opacity = 1
	}
	k := uint32(math.Round(opacity * 255))
	if k == 0 {
		return
	}

	r := dst.Rect.Intersect(src.Rect)
	if r.Empty() {
		return
	}

	const full = 255 * 255
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di := dst.PixOffset(r.Min.X, y)
		si := src.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			sa := uint32(src.Pix[si+3])
			if sa != 0 {
				inv := full - sa*k
				for c := 0; c < 4; c++ {
					s := uint32(src.Pix[si+c])
					d := uint32(dst.Pix[di+c])
					dst.Pix[di+c] = uint8((s*k*255 + d*inv + full/2) / full)
				}
			}
			di += 4
			si += 4
		}
	}
}
