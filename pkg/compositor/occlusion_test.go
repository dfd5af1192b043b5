package compositor

import (
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/user/dusk/pkg/adapters/ggrenderer"
	"github.com/user/dusk/pkg/adapters/logger"
	"github.com/user/dusk/pkg/framecache"
	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/mocks"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/timeline"
)

// recordingFetcher counts fetches per source.
type recordingFetcher struct {
	next FrameFetcher

	mu    sync.Mutex
	calls map[media.SourceID]int
}

func (f *recordingFetcher) GetOrFetch(ctx context.Context, src media.Source, t time.Duration) (*media.Frame, error) {
	f.mu.Lock()
	f.calls[src.ID()]++
	f.mu.Unlock()
	return f.next.GetOrFetch(ctx, src, t)
}

func (f *recordingFetcher) count(id media.SourceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func video(t *testing.T, id media.SourceID, c color.NRGBA) *media.VideoSource {
	t.Helper()
	factory := &mocks.DecoderFactory{Fill: func(string, time.Duration) color.NRGBA { return c }}
	info := media.Info{ID: id, Path: string(id) + ".mp4", Kind: media.KindVideo, Duration: time.Minute, FrameRate: 25, Width: 4, Height: 4}
	src := media.NewVideoSource(info, factory, media.DefaultVideoConfig(), logger.NewNoop())
	t.Cleanup(func() { src.Close() })
	return src
}

func newRecordingStage(t *testing.T, sources sourceMap) (*Stage, *recordingFetcher) {
	t.Helper()
	cache, err := framecache.New(framecache.Config{Capacity: 16}, logger.NewNoop())
	if err != nil {
		t.Fatal(err)
	}
	rec := &recordingFetcher{next: cache, calls: make(map[media.SourceID]int)}
	return NewStage(ggrenderer.New(), rec, sources, mocks.NewDebugSink(false), logger.NewNoop(), 2), rec
}

func TestExecute_SkipsLayerUnderOpaqueVideo(t *testing.T) {
	sources := sourceMap{
		"under": video(t, "under", color.NRGBA{R: 200, A: 255}),
		"top":   video(t, "top", color.NRGBA{G: 200, A: 255}),
	}
	stage, rec := newRecordingStage(t, sources)

	entries := []timeline.Entry{
		{Clip: timeline.Clip{ID: "U", Source: "under", Opacity: 1, Transform: timeline.Transform{ScaleX: 0.5, ScaleY: 0.5}}, SourceTime: time.Second},
		{Clip: timeline.Clip{ID: "T", Source: "top", Track: 1, Opacity: 1, Transform: timeline.Identity()}, SourceTime: time.Second},
	}
	res, err := stage.Execute(context.Background(), input(0, entries))
	if err != nil {
		t.Fatal(err)
	}

	if got := rec.count("under"); got != 0 {
		t.Errorf("expected the covered layer never to be fetched, got %d fetches", got)
	}
	if len(res.Hidden) != 1 || res.Hidden[0] != "U" {
		t.Errorf("expected U to be hidden, got %v", res.Hidden)
	}
	if res.Visual != 1 || res.Drawn != 1 {
		t.Errorf("expected one drawn layer, got visual=%d drawn=%d", res.Visual, res.Drawn)
	}
	for _, p := range [][2]int{{0, 0}, {2, 2}, {3, 3}} {
		if got := pixel(res.Image, p[0], p[1]); got != (color.RGBA{G: 200, A: 255}) {
			t.Errorf("pixel %v: expected the top layer, got %v", p, got)
		}
	}
}

func TestExecute_LayersThatDoNotHide(t *testing.T) {
	tests := []struct {
		name  string
		top   timeline.Clip
		still bool
	}{
		{"translucent", timeline.Clip{Opacity: 0.5, Transform: timeline.Identity()}, false},
		{"rotated", timeline.Clip{Opacity: 1, Transform: timeline.Transform{ScaleX: 1, ScaleY: 1, Rotation: 30}}, false},
		{"smaller", timeline.Clip{Opacity: 1, Transform: timeline.Transform{ScaleX: 0.5, ScaleY: 0.5}}, false},
		{"offset", timeline.Clip{Opacity: 1, Transform: timeline.Transform{X: 1, ScaleX: 1, ScaleY: 1}}, false},
		{"still image", timeline.Clip{Opacity: 1, Transform: timeline.Identity()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var top media.Source = video(t, "top", color.NRGBA{G: 200, A: 255})
			if tt.still {
				img := solid("top", 4, 4, color.NRGBA{G: 200, A: 255})
				frame, _ := img.RequestFrame(0).Wait(context.Background())
				info := media.Info{ID: "top", Kind: media.KindImage, Width: 4, Height: 4}
				top = media.NewStillSource(info, frame)
			}
			sources := sourceMap{
				"under": video(t, "under", color.NRGBA{R: 200, A: 255}),
				"top":   top,
			}
			stage, rec := newRecordingStage(t, sources)

			topClip := tt.top
			topClip.ID, topClip.Source, topClip.Track = "T", "top", 1
			entries := []timeline.Entry{
				{Clip: timeline.Clip{ID: "U", Source: "under", Opacity: 1, Transform: timeline.Identity()}, SourceTime: time.Second},
				{Clip: topClip, SourceTime: time.Second},
			}
			res, err := stage.Execute(context.Background(), input(0, entries))
			if err != nil {
				t.Fatal(err)
			}
			if got := rec.count("under"); got != 1 {
				t.Errorf("expected the lower layer to be fetched once, got %d", got)
			}
			if len(res.Hidden) != 0 || res.Drawn != 2 {
				t.Errorf("expected both layers drawn, got hidden=%v drawn=%d", res.Hidden, res.Drawn)
			}
		})
	}
}

func TestFootprint(t *testing.T) {
	size := pipeline.Dimension{Width: 8, Height: 8}

	outer, inner := footprint(timeline.Identity(), 8, 8, size)
	if outer != inner || outer.Dx() != 8 || outer.Dy() != 8 {
		t.Errorf("full canvas: outer %v inner %v", outer, inner)
	}

	// Resampled pictures lose a pixel of certain coverage at each edge.
	outer, inner = footprint(timeline.Transform{ScaleX: 0.5, ScaleY: 0.5}, 8, 8, size)
	if outer.Min.X != 2 || outer.Max.X != 6 || inner.Min.X != 3 || inner.Max.X != 5 {
		t.Errorf("half size: outer %v inner %v", outer, inner)
	}

	// Rotating a square by 45 degrees widens its bounds by sqrt(2).
	outer, _ = footprint(timeline.Transform{ScaleX: 0.5, ScaleY: 0.5, Rotation: 45}, 8, 8, size)
	if outer.Min.X != 1 || outer.Max.X != 7 {
		t.Errorf("rotated: outer %v", outer)
	}

	_, inner = footprint(timeline.Transform{Width: 1, Height: 1, ScaleX: 1, ScaleY: 0.5}, 8, 8, size)
	if !inner.Empty() {
		t.Errorf("expected a tiny picture to cover nothing, got %v", inner)
	}
}
