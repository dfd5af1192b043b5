// Package compositor turns the clips active at one instant into a single
// output picture.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/timeline"
)

var (
	// ErrInvalidSize is returned for a non-positive output size.
	ErrInvalidSize = errors.New("compositor: invalid output size")

	// ErrUnknownSource is recorded for entries whose source is not open.
	ErrUnknownSource = errors.New("compositor: unknown source")

	// ErrFrameTimeout is recorded when a frame misses its deadline under PolicyWait.
	ErrFrameTimeout = errors.New("compositor: frame not ready in time")
)

// FrameFetcher supplies decoded frames. framecache.Cache implements it.
type FrameFetcher interface {
	GetOrFetch(ctx context.Context, src media.Source, t time.Duration) (*media.Frame, error)
}

// SourceResolver maps source ids to open sources. media.Registry implements it.
type SourceResolver interface {
	Lookup(id media.SourceID) (media.Source, bool)
}

// Stage composites timeline entries into one frame.
type Stage struct {
	renderer   ports.Renderer
	frames     FrameFetcher
	sources    SourceResolver
	sink       ports.DebugSink
	logger     ports.Logger
	numWorkers int

	mu   sync.Mutex
	last map[timeline.ClipID]*media.Frame
}

// NewStage creates a new compositor stage.
func NewStage(renderer ports.Renderer, frames FrameFetcher, sources SourceResolver, sink ports.DebugSink, logger ports.Logger, numWorkers int) *Stage {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Stage{
		renderer:   renderer,
		frames:     frames,
		sources:    sources,
		sink:       sink,
		logger:     logger.WithComponent("compositor"),
		numWorkers: numWorkers,
		last:       make(map[timeline.ClipID]*media.Frame),
	}
}

type layerStatus int

const (
	layerSkipped layerStatus = iota // no picture expected
	layerHidden                     // under an opaque layer, never fetched
	layerDrawn
	layerReused
	layerBlank
	layerFailed
)

type layer struct {
	status layerStatus
	img    *image.RGBA
	err    *pipeline.EntryError
}

// indexedLayer holds a layer with its entry index for ordering.
type indexedLayer struct {
	index int
	layer layer
}

// Execute composites input.Entries in order onto a background canvas.
// Fetching and transforming run on a worker pool; blending is sequential.
func (s *Stage) Execute(ctx context.Context, input pipeline.CompositeInput) (pipeline.CompositeResult, error) {
	if !input.Size.Valid() {
		return pipeline.CompositeResult{}, fmt.Errorf("%w: %s", ErrInvalidSize, input.Size)
	}

	layers, err := s.renderLayers(ctx, input)
	if err != nil {
		return pipeline.CompositeResult{}, err
	}

	bg := input.Background
	if bg == nil {
		bg = pipeline.DefaultBackground
	}
	canvas := s.renderer.CreateCanvas(input.Size.Width, input.Size.Height, bg)
	dst := canvas.RGBA()

	result := pipeline.CompositeResult{Time: input.Time, Image: dst}
	for i, l := range layers {
		entry := input.Entries[i]
		switch l.status {
		case layerSkipped:
			continue
		case layerHidden:
			result.Hidden = append(result.Hidden, entry.Clip.ID)
			continue
		case layerDrawn:
			result.Drawn++
		case layerReused:
			result.Reused = append(result.Reused, entry.Clip.ID)
		case layerBlank:
			result.Blank = append(result.Blank, entry.Clip.ID)
		case layerFailed:
			result.Failures = append(result.Failures, l.err)
		}
		result.Visual++
		if l.img != nil {
			BlendOver(dst, l.img, entry.Clip.Opacity)
		}
	}

	s.forget(input.Entries)

	if input.FrameIndex >= 0 && s.sink.Enabled() {
		if err := s.sink.SaveComposedFrame(input.FrameIndex, dst); err != nil {
			s.logger.Warn("Failed to save composed frame %d: %v", input.FrameIndex, err)
		}
	}

	if len(result.Failures) > 0 {
		s.logger.Debug("Composited %s with %d of %d layers failing", input.Time, len(result.Failures), result.Visual)
	}
	return result, nil
}

// renderLayers fetches and places every entry. Entries sharing a source are
// handled by one worker, in order, so they never supersede each other.
func (s *Stage) renderLayers(ctx context.Context, input pipeline.CompositeInput) ([]layer, error) {
	layers := make([]layer, len(input.Entries))
	hidden := s.occluded(input.Entries, input.Size)
	for i, h := range hidden {
		if h {
			layers[i] = layer{status: layerHidden}
		}
	}

	groups := groupBySource(input.Entries, hidden)
	jobs := make(chan []int, len(groups))
	results := make(chan indexedLayer, len(input.Entries))

	workers := s.numWorkers
	if workers > len(groups) {
		workers = len(groups)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go s.worker(ctx, &wg, input, jobs, results)
	}

	for _, g := range groups {
		jobs <- g
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		layers[r.index] = r.layer
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return layers, nil
}

func (s *Stage) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	input pipeline.CompositeInput,
	jobs <-chan []int,
	results chan<- indexedLayer,
) {
	defer wg.Done()

	for group := range jobs {
		for _, idx := range group {
			if ctx.Err() != nil {
				return
			}
			results <- indexedLayer{index: idx, layer: s.renderLayer(ctx, input, input.Entries[idx])}
		}
	}
}

func (s *Stage) renderLayer(ctx context.Context, input pipeline.CompositeInput, entry timeline.Entry) layer {
	clip := entry.Clip
	fail := func(err error) layer {
		return layer{status: layerFailed, err: &pipeline.EntryError{Clip: clip.ID, Source: clip.Source, Err: err}}
	}

	src, ok := s.sources.Lookup(clip.Source)
	if !ok {
		return fail(ErrUnknownSource)
	}
	if src.Info().Kind == media.KindAudio || clip.Opacity == 0 {
		return layer{status: layerSkipped}
	}

	fctx := ctx
	if input.FrameTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, input.FrameTimeout)
		defer cancel()
	}

	frame, err := s.frames.GetOrFetch(fctx, src, entry.SourceTime)
	if err != nil {
		if ctx.Err() != nil {
			return layer{status: layerBlank}
		}
		late := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, media.ErrSuperseded)
		switch {
		case errors.Is(err, media.ErrNoVideo):
			return layer{status: layerSkipped}
		case late && input.Policy == pipeline.PolicyWait:
			return fail(fmt.Errorf("%w: %v", ErrFrameTimeout, err))
		case late || errors.Is(err, media.ErrOutOfRange):
			if prev := s.previous(clip.ID); prev != nil {
				return layer{status: layerReused, img: s.place(prev, clip, input.Size)}
			}
			return layer{status: layerBlank}
		default:
			return fail(err)
		}
	}

	s.remember(clip.ID, frame)
	return layer{status: layerDrawn, img: s.place(frame, clip, input.Size)}
}

// place draws frame on a transparent canvas of the output size.
func (s *Stage) place(frame *media.Frame, clip timeline.Clip, size pipeline.Dimension) *image.RGBA {
	canvas := s.renderer.CreateCanvas(size.Width, size.Height, nil)
	canvas.DrawImagePlaced(frame.Image(), Placement(clip.Transform, frame.Width, frame.Height, size))
	return canvas.RGBA()
}

// Placement maps a clip transform to canvas coordinates for a picture of
// frameW x frameH.
func Placement(tr timeline.Transform, frameW, frameH int, size pipeline.Dimension) ports.Placement {
	fw, fh := float64(frameW), float64(frameH)
	W, H := float64(size.Width), float64(size.Height)

	var sx, sy float64
	if tr.Width > 0 && tr.Height > 0 {
		sx, sy = tr.Width/fw, tr.Height/fh
	} else {
		fit := W / fw
		if h := H / fh; h < fit {
			fit = h
		}
		sx, sy = fit, fit
	}

	scaleX, scaleY := tr.ScaleX, tr.ScaleY
	if scaleX == 0 {
		scaleX = 1
	}
	if scaleY == 0 {
		scaleY = 1
	}

	return ports.Placement{
		CenterX:  W/2 + tr.X,
		CenterY:  H/2 + tr.Y,
		ScaleX:   sx * scaleX,
		ScaleY:   sy * scaleY,
		Rotation: tr.Rotation,
	}
}

func (s *Stage) previous(id timeline.ClipID) *media.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[id]
}

func (s *Stage) remember(id timeline.ClipID, f *media.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[id] = f
}

// forget drops remembered frames of clips no longer on screen.
func (s *Stage) forget(active []timeline.Entry) {
	keep := make(map[timeline.ClipID]bool, len(active))
	for _, e := range active {
		keep[e.Clip.ID] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.last {
		if !keep[id] {
			delete(s.last, id)
		}
	}
}

// groupBySource partitions entry indices by source, keeping entry order.
// Hidden entries are left out.
func groupBySource(entries []timeline.Entry, hidden []bool) [][]int {
	pos := make(map[media.SourceID]int)
	var groups [][]int
	for i, e := range entries {
		if hidden[i] {
			continue
		}
		g, ok := pos[e.Clip.Source]
		if !ok {
			g = len(groups)
			pos[e.Clip.Source] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

var _ pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult] = (*Stage)(nil)
