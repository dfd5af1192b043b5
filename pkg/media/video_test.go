package media

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/user/dusk/pkg/adapters/logger"
	"github.com/user/dusk/pkg/mocks"
)

func testInfo() Info {
	return Info{
		ID:        "src-1",
		Path:      "clip.mp4",
		Kind:      KindVideo,
		Duration:  60 * time.Second,
		FrameRate: 25,
		Width:     4,
		Height:    4,
	}
}

func testConfig() VideoConfig {
	cfg := DefaultVideoConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	return cfg
}

func waitFrame(t *testing.T, p *Pending) (*Frame, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	f, err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("request for %s never resolved", p.Target())
	}
	return f, err
}

func TestVideoSource_DeliversRequestedFrame(t *testing.T) {
	factory := &mocks.DecoderFactory{
		Fill: func(path string, pts time.Duration) color.NRGBA {
			return color.NRGBA{R: 10, G: 20, B: 30, A: 255}
		},
	}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	f, err := waitFrame(t, src.RequestFrame(2*time.Second))
	if err != nil {
		t.Fatalf("RequestFrame failed: %v", err)
	}
	if f.PTS != 2*time.Second {
		t.Errorf("expected PTS 2s, got %s", f.PTS)
	}
	if f.Width != 4 || f.Height != 4 || f.Stride != 16 {
		t.Errorf("unexpected geometry %dx%d stride %d", f.Width, f.Height, f.Stride)
	}
	if got := f.Image().NRGBAAt(1, 1); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("unexpected pixel %v", got)
	}
	if f.Source != "src-1" {
		t.Errorf("expected source src-1, got %s", f.Source)
	}
}

func TestVideoSource_ForwardReadDoesNotReseek(t *testing.T) {
	factory := &mocks.DecoderFactory{}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	if _, err := waitFrame(t, src.RequestFrame(time.Second)); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	f, err := waitFrame(t, src.RequestFrame(1520*time.Millisecond))
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if f.PTS != 1520*time.Millisecond {
		t.Errorf("expected PTS 1.52s, got %s", f.PTS)
	}
	if got := factory.TotalSeeks(); got != 1 {
		t.Errorf("expected 1 seek, got %d", got)
	}
}

func TestVideoSource_BackwardRequestReseeks(t *testing.T) {
	factory := &mocks.DecoderFactory{}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	if _, err := waitFrame(t, src.RequestFrame(5*time.Second)); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	f, err := waitFrame(t, src.RequestFrame(time.Second))
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if f.PTS != time.Second {
		t.Errorf("expected PTS 1s, got %s", f.PTS)
	}
	if got := factory.TotalSeeks(); got != 2 {
		t.Errorf("expected 2 seeks, got %d", got)
	}
	if got := factory.Spawns(); got != 1 {
		t.Errorf("expected the process to be reused, got %d spawns", got)
	}
}

func TestVideoSource_RepeatRequestServedFromLastFrame(t *testing.T) {
	factory := &mocks.DecoderFactory{}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	first, err := waitFrame(t, src.RequestFrame(3*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	// Still inside the frame that starts at 3s (40ms at 25fps).
	second, err := waitFrame(t, src.RequestFrame(3*time.Second+10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("expected the same frame to be returned")
	}
	if got := factory.TotalSeeks(); got != 1 {
		t.Errorf("expected 1 seek, got %d", got)
	}
}

func TestVideoSource_ScrubStormIsBounded(t *testing.T) {
	factory := &mocks.DecoderFactory{Latency: 50 * time.Millisecond}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	const n = 50
	pending := make([]*Pending, n)
	for i := 0; i < n; i++ {
		// Descending targets, far enough apart to defeat forward reads.
		pending[i] = src.RequestFrame(time.Duration(n-1-i) * time.Second)
	}

	last, err := waitFrame(t, pending[n-1])
	if err != nil {
		t.Fatalf("latest request failed: %v", err)
	}
	if last.PTS != 0 {
		t.Errorf("expected PTS 0, got %s", last.PTS)
	}
	for i := 0; i < n-1; i++ {
		if _, err := waitFrame(t, pending[i]); !errors.Is(err, ErrSuperseded) {
			t.Errorf("request %d: expected ErrSuperseded, got %v", i, err)
		}
	}
	seeks := factory.Last().Seeks()
	if len(seeks) == 0 || seeks[len(seeks)-1].At != 0 {
		t.Errorf("expected the last seek to target 0, got %+v", seeks)
	}
	stats := src.Stats()
	if stats.Superseded != n-1 {
		t.Errorf("expected %d superseded, got %d", n-1, stats.Superseded)
	}
	if stats.Delivered != 1 {
		t.Errorf("expected only the latest request to be decoded, got %d deliveries", stats.Delivered)
	}
}

func TestVideoSource_NeverDeliversFutureFrame(t *testing.T) {
	factory := &mocks.DecoderFactory{}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	if _, err := waitFrame(t, src.RequestFrame(time.Second)); err != nil {
		t.Fatal(err)
	}
	// 1.03s is past half of the 40ms period but still inside the 1s frame.
	f, err := waitFrame(t, src.RequestFrame(1030*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if f.PTS != time.Second {
		t.Errorf("expected PTS 1s, got %s", f.PTS)
	}
	if got := factory.TotalSeeks(); got != 1 {
		t.Errorf("expected 1 seek, got %d", got)
	}
}

func TestVideoSource_SeekLandsOnFrameStart(t *testing.T) {
	factory := &mocks.DecoderFactory{}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	f, err := waitFrame(t, src.RequestFrame(7*time.Second+70*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if f.PTS != 7*time.Second+40*time.Millisecond {
		t.Errorf("expected PTS 7.04s, got %s", f.PTS)
	}
	seeks := factory.Last().Seeks()
	if len(seeks) != 1 || seeks[0].At != 7*time.Second+40*time.Millisecond {
		t.Errorf("expected one seek to 7.04s, got %+v", seeks)
	}
}

func TestVideoSource_FarRequestReplacesOutstandingSeek(t *testing.T) {
	factory := &mocks.DecoderFactory{Latency: time.Hour}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	waitSeeks := func(n int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for factory.TotalSeeks() < n {
			if time.Now().After(deadline) {
				t.Fatalf("expected %d seeks, got %d", n, factory.TotalSeeks())
			}
			time.Sleep(time.Millisecond)
		}
	}

	first := src.RequestFrame(time.Second)
	waitSeeks(1)

	// The first seek never lands; the far request must not wait for it.
	src.RequestFrame(30 * time.Second)
	waitSeeks(2)

	if _, err := waitFrame(t, first); !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded, got %v", err)
	}
	seeks := factory.Last().Seeks()
	if len(seeks) != 2 || seeks[0].At != time.Second || seeks[1].At != 30*time.Second {
		t.Errorf("unexpected seeks %+v", seeks)
	}
	if got := factory.Spawns(); got != 1 {
		t.Errorf("expected the process to be reused, got %d spawns", got)
	}
}

func TestVideoSource_NearRequestRidesOutstandingSeek(t *testing.T) {
	factory := &mocks.DecoderFactory{Latency: 50 * time.Millisecond}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	src.RequestFrame(time.Second)
	f, err := waitFrame(t, src.RequestFrame(1200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if f.PTS != 1200*time.Millisecond {
		t.Errorf("expected PTS 1.2s, got %s", f.PTS)
	}
	if got := factory.TotalSeeks(); got != 1 {
		t.Errorf("expected the request to read forward, got %d seeks", got)
	}
}

func TestFrameIndex(t *testing.T) {
	period := 40 * time.Millisecond
	tests := []struct {
		at   time.Duration
		want int64
	}{
		{0, 0},
		{39 * time.Millisecond, 0},
		{40 * time.Millisecond, 1},
		{40*time.Millisecond - 1, 1}, // float error below the boundary
		{1030 * time.Millisecond, 25},
	}
	for _, tt := range tests {
		if got := FrameIndex(tt.at, period); got != tt.want {
			t.Errorf("FrameIndex(%s) = %d, want %d", tt.at, got, tt.want)
		}
	}
	if !ShowsAt(time.Second, 1039*time.Millisecond, period) {
		t.Error("expected the 1s frame to be shown at 1.039s")
	}
	if ShowsAt(1040*time.Millisecond, 1030*time.Millisecond, period) {
		t.Error("a frame must not be shown before it starts")
	}
}

func TestVideoSource_RestartsAfterCrash(t *testing.T) {
	factory := &mocks.DecoderFactory{
		CrashAfter: func(spawn int) int {
			if spawn == 0 {
				return 0
			}
			return -1
		},
	}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())
	defer src.Close()

	f, err := waitFrame(t, src.RequestFrame(4*time.Second))
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if f.PTS != 4*time.Second {
		t.Errorf("expected PTS 4s, got %s", f.PTS)
	}
	if got := factory.Spawns(); got != 2 {
		t.Errorf("expected 2 spawns, got %d", got)
	}
	seeks := factory.Last().Seeks()
	if len(seeks) != 1 || seeks[0].At != 4*time.Second {
		t.Errorf("expected the outstanding request to be re-issued, got %+v", seeks)
	}
	if got := src.Stats().Restarts; got != 1 {
		t.Errorf("expected 1 restart, got %d", got)
	}
}

func TestVideoSource_FailsAfterRetriesExhausted(t *testing.T) {
	factory := &mocks.DecoderFactory{
		CrashAfter: func(int) int { return 0 },
	}
	cfg := testConfig()
	cfg.MaxRetries = 2
	src := NewVideoSource(testInfo(), factory, cfg, logger.NewNoop())
	defer src.Close()

	_, err := waitFrame(t, src.RequestFrame(time.Second))
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if derr.Source != "src-1" || derr.Attempts != 3 {
		t.Errorf("unexpected error details: %+v", derr)
	}
	if got := factory.Spawns(); got != 3 {
		t.Errorf("expected 3 spawns, got %d", got)
	}
	if src.State() != StateFailed {
		t.Errorf("expected failed state, got %s", src.State())
	}

	// Failed sources answer immediately without respawning.
	if _, err := waitFrame(t, src.RequestFrame(2*time.Second)); !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("expected ErrDecodeFailure, got %v", err)
	}
	if got := factory.Spawns(); got != 3 {
		t.Errorf("expected no further spawns, got %d", got)
	}
}

func TestVideoSource_OutOfRange(t *testing.T) {
	src := NewVideoSource(testInfo(), &mocks.DecoderFactory{}, testConfig(), logger.NewNoop())
	defer src.Close()

	tests := []time.Duration{-time.Second, 60 * time.Second, 90 * time.Second}
	for _, at := range tests {
		if _, err := waitFrame(t, src.RequestFrame(at)); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("RequestFrame(%s): expected ErrOutOfRange, got %v", at, err)
		}
	}
}

func TestVideoSource_EndOfStreamServesLastFrame(t *testing.T) {
	factory := &mocks.DecoderFactory{Duration: 2 * time.Second}
	info := testInfo()
	info.Duration = 0 // unknown length
	src := NewVideoSource(info, factory, testConfig(), logger.NewNoop())
	defer src.Close()

	_, err := waitFrame(t, src.RequestFrame(5*time.Second))
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange past the end, got %v", err)
	}
	if src.State() == StateFailed {
		t.Error("clean end of stream must not fail the source")
	}
}

func TestVideoSource_CloseResolvesOutstanding(t *testing.T) {
	factory := &mocks.DecoderFactory{Latency: time.Hour}
	src := NewVideoSource(testInfo(), factory, testConfig(), logger.NewNoop())

	p := src.RequestFrame(time.Second)
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := waitFrame(t, p); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if src.State() != StateClosed {
		t.Errorf("expected closed state, got %s", src.State())
	}
	if _, err := waitFrame(t, src.RequestFrame(time.Second)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	if last := factory.Last(); last != nil && !last.Closed() {
		t.Error("expected the decode process to be closed")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := backoff(100*time.Millisecond, time.Second, tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestVideoSource_ResetRecoversFailedSource(t *testing.T) {
	factory := &mocks.DecoderFactory{
		CrashAfter: func(spawn int) int {
			if spawn < 2 {
				return 0
			}
			return -1
		},
	}
	cfg := testConfig()
	cfg.MaxRetries = 1
	src := NewVideoSource(testInfo(), factory, cfg, logger.NewNoop())
	defer src.Close()

	if src.Reset() {
		t.Error("expected Reset to report false on a healthy source")
	}
	if _, err := waitFrame(t, src.RequestFrame(time.Second)); !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
	if !src.Reset() {
		t.Fatal("expected Reset to clear the failed state")
	}
	if src.State() == StateFailed {
		t.Errorf("expected the source to leave the failed state, got %s", src.State())
	}

	f, err := waitFrame(t, src.RequestFrame(2*time.Second))
	if err != nil {
		t.Fatalf("expected a frame after reset, got %v", err)
	}
	if f.PTS != 2*time.Second {
		t.Errorf("expected PTS 2s, got %s", f.PTS)
	}
	if got := factory.Spawns(); got != 3 {
		t.Errorf("expected 3 spawns, got %d", got)
	}
}
