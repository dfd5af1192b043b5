package ffmpegdecoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/user/dusk/pkg/adapters/logger"
	"github.com/user/dusk/pkg/ports"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) *Factory {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := NewFactory(path, logger.NewNoop())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func spawn(t *testing.T, f *Factory) ports.DecodeProcess {
	t.Helper()
	p, err := f.Spawn(context.Background(), ports.DecodeOptions{Path: "in.mp4", Width: 2, Height: 2, FrameRate: 10})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestArgs(t *testing.T) {
	args := Args(ports.DecodeOptions{Path: "clip.mov", Width: 640, Height: 360, FrameRate: 29.97, HWAccel: "auto"}, 1500*time.Millisecond)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-hwaccel auto",
		"-ss 1.500000 -i clip.mov",
		"-vf fps=29.97",
		"-f rawvideo -pix_fmt rgba -s 640x360 pipe:1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in %q", want, joined)
		}
	}

	args = Args(ports.DecodeOptions{Path: "clip.mov", Width: 2, Height: 2, FrameRate: 25}, 0)
	if slices.Contains(args, "-hwaccel") {
		t.Error("expected no -hwaccel without a hint")
	}
}

func TestFactory_Spawn_InvalidOptions(t *testing.T) {
	f := &Factory{ffmpegPath: "ffmpeg", logger: logger.NewNoop()}
	if _, err := f.Spawn(context.Background(), ports.DecodeOptions{Width: 0, Height: 2, FrameRate: 30}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
	if _, err := f.Spawn(context.Background(), ports.DecodeOptions{Width: 2, Height: 2}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestProcess_FramesAndCleanExit(t *testing.T) {
	// Three 2x2 RGBA frames.
	p := spawn(t, fakeFFmpeg(t, "head -c 48 /dev/zero"))

	if err := p.Seek(7, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	var got []ports.RawFrame
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case f := <-p.Frames():
			got = append(got, f)
		case <-timeout:
			t.Fatalf("timed out after %d frames", len(got))
		}
	}
	for i, f := range got {
		want := 2*time.Second + time.Duration(i)*100*time.Millisecond
		if f.Seq != 7 || f.PTS != want || f.Stride != 8 || len(f.Pix) != 16 {
			t.Errorf("frame %d: unexpected %+v", i, f)
		}
	}

	select {
	case err := <-p.Exited():
		if err != nil {
			t.Errorf("expected clean exit, got %v", err)
		}
	case <-timeout:
		t.Fatal("no exit reported")
	}

	if err := p.Seek(8, 0); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning after exit, got %v", err)
	}
}

func TestProcess_Crash(t *testing.T) {
	p := spawn(t, fakeFFmpeg(t, "head -c 16 /dev/zero; echo 'decode error' >&2; exit 1"))

	if err := p.Seek(1, 0); err != nil {
		t.Fatal(err)
	}
	<-p.Frames()

	select {
	case err := <-p.Exited():
		if err == nil || !strings.Contains(err.Error(), "decode error") {
			t.Errorf("expected crash with stderr tail, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no exit reported")
	}
}

func TestProcess_SeekSupersedesAndClose(t *testing.T) {
	p := spawn(t, fakeFFmpeg(t, "exec sleep 10"))

	if err := p.Seek(1, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Seek(2, time.Second); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	select {
	case err := <-p.Exited():
		t.Errorf("expected no exit after Close, got %v", err)
	default:
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 4}
	b.Write([]byte("abc"))
	b.Write([]byte("defg"))
	if got := b.String(); got != "defg" {
		t.Errorf("expected defg, got %q", got)
	}
}
