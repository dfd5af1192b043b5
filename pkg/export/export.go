// Package export renders a timeline frame by frame and hands the frames to
// a video encoder.
package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/user/dusk/pkg/pipeline"
	"github.com/user/dusk/pkg/ports"
)

var (
	// ErrExportAborted wraps whatever stopped an export early.
	ErrExportAborted = errors.New("export: aborted")

	// ErrNothingToExport is returned for an empty range.
	ErrNothingToExport = errors.New("export: nothing to export")

	// ErrInvalidInput is returned for unusable export parameters.
	ErrInvalidInput = errors.New("export: invalid input")
)

// Stage exports a timeline snapshot.
//
// Frames are composited one at a time: consecutive frames usually read the
// same sources, and a source serves one position at a time.
type Stage struct {
	compositor pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult]
	encoder    ports.VideoEncoder
	logger     ports.Logger
}

// NewStage creates a new export stage.
func NewStage(compositor pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult], encoder ports.VideoEncoder, logger ports.Logger) *Stage {
	return &Stage{
		compositor: compositor,
		encoder:    encoder,
		logger:     logger.WithComponent("export"),
	}
}

// FrameCount returns how many frames at fps cover [start, end).
func FrameCount(start, end time.Duration, fps float64) int {
	if end <= start || fps <= 0 {
		return 0
	}
	return int(math.Ceil((end-start).Seconds()*fps - 1e-9))
}

// FrameTime returns the offset of frame i at fps.
func FrameTime(i int, fps float64) time.Duration {
	return time.Duration(math.Round(float64(i) * float64(time.Second) / fps))
}

// Execute renders every frame of the range in order. Any failure, including
// a single layer that could not be produced, aborts the export and discards
// the partial output.
func (s *Stage) Execute(ctx context.Context, input pipeline.ExportInput) (pipeline.ExportResult, error) {
	result := pipeline.ExportResult{OutputPath: input.Encoder.OutputPath}
	began := time.Now()

	if input.Snapshot == nil {
		return result, fmt.Errorf("%w: no timeline", ErrInvalidInput)
	}
	if !input.Size.Valid() {
		return result, fmt.Errorf("%w: size %s", ErrInvalidInput, input.Size)
	}
	if input.FPS <= 0 {
		return result, fmt.Errorf("%w: fps %.3f", ErrInvalidInput, input.FPS)
	}

	end := input.End
	if end <= 0 {
		end = input.Snapshot.Duration()
	}
	total := FrameCount(input.Start, end, input.FPS)
	if total == 0 {
		return result, fmt.Errorf("%w: range [%s, %s)", ErrNothingToExport, input.Start, end)
	}

	s.logger.Info("Exporting %d frames at %.2f fps (%s) to %s", total, input.FPS, input.Size, input.Encoder.OutputPath)

	if err := s.encoder.Begin(input.Size.Width, input.Size.Height, input.FPS, input.Encoder); err != nil {
		return result, fmt.Errorf("%w: begin encoding: %w", ErrExportAborted, err)
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return result, s.abort(err)
		}

		offset := FrameTime(i, input.FPS)
		t := input.Start + offset
		res, err := s.compositor.Execute(ctx, pipeline.CompositeInput{
			Time:         t,
			Entries:      input.Snapshot.Resolve(t),
			Size:         input.Size,
			Background:   input.Background,
			Policy:       pipeline.PolicyWait,
			FrameTimeout: input.FrameTimeout,
			FrameIndex:   i,
		})
		if err != nil {
			return result, s.abort(fmt.Errorf("composite frame %d at %s: %w", i, t, err))
		}
		if len(res.Failures) > 0 {
			return result, s.abort(fmt.Errorf("frame %d at %s: %w", i, t, res.Failures[0]))
		}

		if err := s.encoder.EncodeFrame(res.Image, int(offset.Milliseconds())); err != nil {
			return result, s.abort(fmt.Errorf("encode frame %d: %w", i, err))
		}
		result.Frames++

		if input.Progress != nil {
			input.Progress(i+1, total)
		}
		if (i+1)%100 == 0 {
			s.logger.Debug("Exported %d/%d frames", i+1, total)
		}
	}

	if err := s.encoder.End(); err != nil {
		return result, s.abort(fmt.Errorf("finish encoding: %w", err))
	}

	result.Duration = end - input.Start
	result.Elapsed = time.Since(began)
	s.logger.Info("Export finished: %d frames in %s", result.Frames, result.Elapsed.Round(time.Millisecond))
	return result, nil
}

func (s *Stage) abort(cause error) error {
	if err := s.encoder.Abort(); err != nil {
		s.logger.Warn("Failed to discard partial output: %v", err)
	}
	s.logger.Error("Export aborted: %v", cause)
	return fmt.Errorf("%w: %w", ErrExportAborted, cause)
}
