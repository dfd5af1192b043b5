package compositor

import (
	"image"
	"math"

	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/timeline"
)

// occluded marks entries whose on-canvas area lies entirely under an opaque
// entry above them. Those are never fetched.
//
// Only unrotated, fully opaque video layers hide what is under them: stills
// may carry alpha, and a failed source draws nothing.
func (s *Stage) occluded(entries []timeline.Entry, size pipeline.Dimension) []bool {
	hidden := make([]bool, len(entries))
	canvas := image.Rect(0, 0, size.Width, size.Height)

	var covers []image.Rectangle
	for i := len(entries) - 1; i >= 0; i-- {
		clip := entries[i].Clip
		src, ok := s.sources.Lookup(clip.Source)
		if !ok {
			continue
		}
		info := src.Info()
		if info.Kind == media.KindAudio || info.Width <= 0 || info.Height <= 0 {
			continue
		}

		outer, inner := footprint(clip.Transform, info.Width, info.Height, size)
		outer = outer.Intersect(canvas)
		for _, c := range covers {
			if !outer.Empty() && outer.In(c) {
				hidden[i] = true
				break
			}
		}
		if hidden[i] {
			continue
		}

		if opaque(clip, src) && !inner.Empty() {
			covers = append(covers, inner)
		}
	}
	return hidden
}

func opaque(clip timeline.Clip, src media.Source) bool {
	return clip.Opacity >= 1 &&
		math.Mod(clip.Transform.Rotation, 360) == 0 &&
		src.Info().Kind == media.KindVideo &&
		src.State() != media.StateFailed
}

// footprint returns the pixels a placed picture may touch (outer) and the
// pixels it is sure to cover completely (inner).
func footprint(tr timeline.Transform, frameW, frameH int, size pipeline.Dimension) (outer, inner image.Rectangle) {
	p := Placement(tr, frameW, frameH, size)
	hw := math.Abs(float64(frameW)*p.ScaleX) / 2
	hh := math.Abs(float64(frameH)*p.ScaleY) / 2

	ex, ey := hw, hh
	if p.Rotation != 0 {
		sin, cos := math.Sincos(p.Rotation * math.Pi / 180)
		ex = math.Abs(hw*cos) + math.Abs(hh*sin)
		ey = math.Abs(hw*sin) + math.Abs(hh*cos)
	}
	outer = image.Rect(
		int(math.Floor(p.CenterX-ex)), int(math.Floor(p.CenterY-ey)),
		int(math.Ceil(p.CenterX+ex)), int(math.Ceil(p.CenterY+ey)),
	)

	// Resampled edges are antialiased.
	margin := 0.0
	if p.ScaleX != 1 || p.ScaleY != 1 {
		margin = 1
	}
	// Not image.Rect: a picture too small to cover anything must stay empty.
	inner = image.Rectangle{
		Min: image.Pt(int(math.Ceil(p.CenterX-hw+margin)), int(math.Ceil(p.CenterY-hh+margin))),
		Max: image.Pt(int(math.Floor(p.CenterX+hw-margin)), int(math.Floor(p.CenterY+hh-margin))),
	}
	return outer, inner
}
