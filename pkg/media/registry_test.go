package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/user/dusk/pkg/adapters/ggrenderer"
	"github.com/user/dusk/pkg/adapters/logger"
	"github.com/user/dusk/pkg/mocks"
	"github.com/user/dusk/pkg/ports"
)

func newTestRegistry(t *testing.T) (*Registry, *mocks.FileSystem, *mocks.Prober) {
	t.Helper()
	fs := mocks.NewFileSystem()
	prober := mocks.NewProber(map[string]ports.MediaInfo{
		"a.mp4": {Duration: 10 * time.Second, FrameRate: 30, Width: 8, Height: 6, HasVideo: true},
		"b.mp3": {Duration: 20 * time.Second, HasAudio: true},
		"c.mkv": {Duration: 5 * time.Second, HasAudio: true}, // no video stream
	})

	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	fs.PutFile("logo.png", buf.Bytes())

	r := NewRegistry(RegistryDeps{
		Decoders:   &mocks.DecoderFactory{},
		Prober:     prober,
		Renderer:   ggrenderer.New(),
		FileSystem: fs,
		Logger:     logger.NewNoop(),
	}, testConfig())
	t.Cleanup(func() { r.Close() })
	return r, fs, prober
}

func TestRegistry_SharesSourcePerPath(t *testing.T) {
	r, _, prober := newTestRegistry(t)
	ctx := context.Background()

	a1, err := r.Acquire(ctx, "a.mp4", KindAuto)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	a2, err := r.Acquire(ctx, "a.mp4", KindAuto)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if a1 != a2 {
		t.Fatal("expected the same source for the same path")
	}
	if got := r.Refs(a1.ID()); got != 2 {
		t.Errorf("expected 2 refs, got %d", got)
	}
	if len(prober.ProbeCalls) != 1 {
		t.Errorf("expected a single probe, got %d", len(prober.ProbeCalls))
	}

	info := a1.Info()
	if info.Kind != KindVideo || info.Duration != 10*time.Second || info.Width != 8 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestRegistry_ReleaseTearsDownAtZero(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	src, _ := r.Acquire(ctx, "a.mp4", KindAuto)
	if err := r.Retain(src.ID()); err != nil {
		t.Fatal(err)
	}

	closed, err := r.Release(src.ID())
	if err != nil || closed {
		t.Fatalf("first release: closed=%v err=%v", closed, err)
	}
	closed, err = r.Release(src.ID())
	if err != nil || !closed {
		t.Fatalf("second release: closed=%v err=%v", closed, err)
	}
	if _, ok := r.Lookup(src.ID()); ok {
		t.Error("expected source to be gone")
	}
	if src.State() != StateClosed {
		t.Errorf("expected closed source, got %s", src.State())
	}
	if _, err := r.Release(src.ID()); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestRegistry_Kinds(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	still, err := r.Acquire(ctx, "logo.png", KindAuto)
	if err != nil {
		t.Fatalf("Acquire image failed: %v", err)
	}
	if still.Info().Kind != KindImage || still.Info().Width != 3 || still.Info().Height != 2 {
		t.Errorf("unexpected image info %+v", still.Info())
	}
	f, err := still.RequestFrame(time.Hour).Result()
	if err != nil {
		t.Fatalf("still RequestFrame failed: %v", err)
	}
	if got := f.Image().NRGBAAt(0, 0); got != (color.NRGBA{200, 200, 200, 200}) {
		t.Errorf("unexpected still pixel %v", got)
	}

	audio, err := r.Acquire(ctx, "b.mp3", KindAuto)
	if err != nil {
		t.Fatalf("Acquire audio failed: %v", err)
	}
	if _, err := audio.RequestFrame(0).Result(); !errors.Is(err, ErrNoVideo) {
		t.Errorf("expected ErrNoVideo, got %v", err)
	}

	noVideo, err := r.Acquire(ctx, "c.mkv", KindAuto)
	if err != nil {
		t.Fatalf("Acquire video without picture failed: %v", err)
	}
	if noVideo.Info().Kind != KindAudio {
		t.Errorf("expected audio kind for a file without video, got %s", noVideo.Info().Kind)
	}

	if _, err := r.Acquire(ctx, "notes.txt", KindAuto); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := r.Acquire(ctx, "missing.mp4", KindAuto); err == nil {
		t.Error("expected probe failure for missing file")
	}

	if got := len(r.Sources()); got != 3 {
		t.Errorf("expected 3 sources, got %d", got)
	}
}

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"a.MP4", KindVideo},
		{"dir/b.webm", KindVideo},
		{"c.jpeg", KindImage},
		{"d.flac", KindAudio},
	}
	for _, tt := range tests {
		got, err := KindFromPath(tt.path)
		if err != nil || got != tt.want {
			t.Errorf("KindFromPath(%q) = %v, %v; want %v", tt.path, got, err, tt.want)
		}
	}
}

func TestPending_ResolvesOnce(t *testing.T) {
	p := newPending(1, time.Second)
	if !p.resolve(&Frame{PTS: time.Second}, nil) {
		t.Fatal("first resolve should win")
	}
	if p.resolve(nil, ErrSuperseded) {
		t.Fatal("second resolve should be ignored")
	}
	f, err := p.Result()
	if err != nil || f.PTS != time.Second {
		t.Errorf("unexpected result %v, %v", f, err)
	}
}
