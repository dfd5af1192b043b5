package timeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/dusk/pkg/media"
)

type fakeSources map[SourceID]media.Info

func (f fakeSources) SourceInfo(id SourceID) (media.Info, bool) {
	info, ok := f[id]
	return info, ok
}

func newTestTimeline() *Timeline {
	return New(fakeSources{
		"a":     {ID: "a", Kind: media.KindVideo, Duration: 10 * time.Second},
		"b":     {ID: "b", Kind: media.KindVideo, Duration: 10 * time.Second},
		"logo":  {ID: "logo", Kind: media.KindImage},
		"music": {ID: "music", Kind: media.KindAudio, Duration: 30 * time.Second},
	})
}

func clip(src SourceID, track int, start, dur time.Duration) Clip {
	return Clip{Source: src, Track: track, Start: start, Duration: dur, Opacity: 1}
}

func mustAdd(t *testing.T, tl *Timeline, c Clip) ClipID {
	t.Helper()
	id, err := tl.AddClip(c)
	if err != nil {
		t.Fatalf("AddClip(%+v) failed: %v", c, err)
	}
	return id
}

func TestResolve_Layering(t *testing.T) {
	tl := newTestTimeline()
	a := mustAdd(t, tl, clip("a", 0, 0, 5*time.Second))
	bc := clip("b", 1, 2*time.Second, 5*time.Second)
	bc.Opacity = 0.5
	b := mustAdd(t, tl, bc)

	snap := tl.Snapshot()
	tests := []struct {
		at      time.Duration
		want    []ClipID
		srcTime []time.Duration
	}{
		{1 * time.Second, []ClipID{a}, []time.Duration{time.Second}},
		{3 * time.Second, []ClipID{a, b}, []time.Duration{3 * time.Second, time.Second}},
		{6 * time.Second, []ClipID{b}, []time.Duration{4 * time.Second}},
		{7 * time.Second, nil, nil},
	}
	for _, tt := range tests {
		entries := snap.Resolve(tt.at)
		if len(entries) != len(tt.want) {
			t.Fatalf("Resolve(%s): expected %d entries, got %d", tt.at, len(tt.want), len(entries))
		}
		for i, e := range entries {
			if e.Clip.ID != tt.want[i] {
				t.Errorf("Resolve(%s)[%d]: expected clip %s, got %s", tt.at, i, tt.want[i], e.Clip.ID)
			}
			if e.SourceTime != tt.srcTime[i] {
				t.Errorf("Resolve(%s)[%d]: expected source time %s, got %s", tt.at, i, tt.srcTime[i], e.SourceTime)
			}
		}
	}
}

func TestResolve_HalfOpenBoundaries(t *testing.T) {
	tl := newTestTimeline()
	first := mustAdd(t, tl, clip("a", 0, 0, 2*time.Second))
	second := mustAdd(t, tl, clip("b", 0, 2*time.Second, 2*time.Second))

	snap := tl.Snapshot()
	if e := snap.Resolve(2 * time.Second); len(e) != 1 || e[0].Clip.ID != second {
		t.Errorf("expected only the second clip at its start, got %+v", e)
	}
	if e := snap.Resolve(2*time.Second - time.Nanosecond); len(e) != 1 || e[0].Clip.ID != first {
		t.Errorf("expected the first clip just before its end, got %+v", e)
	}
	if e := snap.Resolve(4 * time.Second); len(e) != 0 {
		t.Errorf("expected nothing at the end, got %+v", e)
	}
	if got := snap.Duration(); got != 4*time.Second {
		t.Errorf("expected duration 4s, got %s", got)
	}
}

func TestResolve_InOffset(t *testing.T) {
	tl := newTestTimeline()
	c := clip("a", 0, time.Second, 3*time.Second)
	c.InOffset = 5 * time.Second
	mustAdd(t, tl, c)

	e := tl.Snapshot().Resolve(2 * time.Second)
	if len(e) != 1 || e[0].SourceTime != 6*time.Second {
		t.Errorf("expected source time 6s, got %+v", e)
	}
}

func TestAddClip_Validation(t *testing.T) {
	tests := []struct {
		name string
		clip Clip
		want error
	}{
		{"zero duration", clip("a", 0, 0, 0), ErrInvalidPlacement},
		{"negative start", clip("a", 0, -time.Second, time.Second), ErrInvalidPlacement},
		{"negative track", clip("a", -1, 0, time.Second), ErrInvalidPlacement},
		{"opacity above one", Clip{Source: "a", Duration: time.Second, Opacity: 1.5}, ErrInvalidPlacement},
		{"negative opacity", Clip{Source: "a", Duration: time.Second, Opacity: -0.1}, ErrInvalidPlacement},
		{"negative scale", Clip{Source: "a", Duration: time.Second, Opacity: 1, Transform: Transform{ScaleX: -1, ScaleY: 1}}, ErrInvalidPlacement},
		{"negative in offset", Clip{Source: "a", Duration: time.Second, Opacity: 1, InOffset: -time.Second}, ErrOutOfBounds},
		{"past source end", Clip{Source: "a", Duration: 4 * time.Second, Opacity: 1, InOffset: 8 * time.Second}, ErrOutOfBounds},
		{"unknown source", clip("nope", 0, 0, time.Second), ErrUnknownSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := newTestTimeline()
			if _, err := tl.AddClip(tt.clip); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if tl.Snapshot().Len() != 0 || tl.Snapshot().Version() != 0 {
				t.Error("rejected edit must leave the timeline unchanged")
			}
		})
	}
}

func TestAddClip_StillsAndAudio(t *testing.T) {
	tl := newTestTimeline()
	// Stills have no length limit.
	mustAdd(t, tl, clip("logo", 2, 0, time.Hour))
	mustAdd(t, tl, clip("music", 3, 0, 30*time.Second))
	if _, err := tl.AddClip(clip("music", 4, 0, 31*time.Second)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds for audio past its end, got %v", err)
	}
}

func TestAddClip_Overlap(t *testing.T) {
	tests := []struct {
		name  string
		start time.Duration
		dur   time.Duration
		ok    bool
	}{
		{"overlaps start", time.Second, 2 * time.Second, false},
		{"overlaps end", 3 * time.Second, 2 * time.Second, false},
		{"contained", 2500 * time.Millisecond, 100 * time.Millisecond, false},
		{"covers", time.Second, 5 * time.Second, false},
		{"touches before", 0, 2 * time.Second, true},
		{"touches after", 4 * time.Second, time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := newTestTimeline()
			mustAdd(t, tl, clip("a", 0, 2*time.Second, 2*time.Second))
			before := tl.Snapshot()

			_, err := tl.AddClip(clip("b", 0, tt.start, tt.dur))
			if tt.ok {
				if err != nil {
					t.Errorf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidPlacement) {
				t.Errorf("expected ErrInvalidPlacement, got %v", err)
			}
			if tl.Snapshot() != before {
				t.Error("rejected edit changed the timeline")
			}
		})
	}

	// Other tracks are independent.
	tl := newTestTimeline()
	mustAdd(t, tl, clip("a", 0, 0, 2*time.Second))
	mustAdd(t, tl, clip("b", 1, 0, 2*time.Second))
}

func TestMoveClip(t *testing.T) {
	tl := newTestTimeline()
	a := mustAdd(t, tl, clip("a", 0, 0, 2*time.Second))
	b := mustAdd(t, tl, clip("b", 1, 0, 2*time.Second))

	if err := tl.MoveClip(b, 0, time.Second); !errors.Is(err, ErrInvalidPlacement) {
		t.Fatalf("expected overlap rejection, got %v", err)
	}
	if c, _ := tl.Clip(b); c.Track != 1 || c.Start != 0 {
		t.Errorf("rejected move changed the clip: %+v", c)
	}

	if err := tl.MoveClip(b, 0, 2*time.Second); err != nil {
		t.Fatalf("MoveClip failed: %v", err)
	}
	if err := tl.MoveClip(a, 0, 500*time.Millisecond); !errors.Is(err, ErrInvalidPlacement) {
		t.Errorf("expected overlap with the moved clip, got %v", err)
	}
	// A clip never collides with its own previous position.
	if err := tl.MoveClip(a, 0, 0); err != nil {
		t.Errorf("moving in place should succeed, got %v", err)
	}
	if err := tl.MoveClip("missing", 0, 0); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("expected ErrClipNotFound, got %v", err)
	}
}

func TestTrimClip(t *testing.T) {
	tl := newTestTimeline()
	id := mustAdd(t, tl, clip("a", 0, 0, 2*time.Second))

	if err := tl.TrimClip(id, 7*time.Second, 3*time.Second); err != nil {
		t.Fatalf("TrimClip to the source end failed: %v", err)
	}
	if err := tl.TrimClip(id, 8*time.Second, 3*time.Second); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	if err := tl.TrimClip(id, 0, 0); !errors.Is(err, ErrInvalidPlacement) {
		t.Errorf("expected ErrInvalidPlacement, got %v", err)
	}
	c, _ := tl.Clip(id)
	if c.InOffset != 7*time.Second || c.Duration != 3*time.Second {
		t.Errorf("rejected trims changed the clip: %+v", c)
	}
}

func TestDeleteClip(t *testing.T) {
	tl := newTestTimeline()
	id := mustAdd(t, tl, clip("a", 0, 0, 2*time.Second))

	removed, err := tl.DeleteClip(id)
	if err != nil || removed.ID != id {
		t.Fatalf("DeleteClip: %+v, %v", removed, err)
	}
	if _, err := tl.DeleteClip(id); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("expected ErrClipNotFound, got %v", err)
	}
	if tl.Duration() != 0 {
		t.Errorf("expected empty timeline, got duration %s", tl.Duration())
	}
}

func TestSetOpacityAndTransform(t *testing.T) {
	tl := newTestTimeline()
	id := mustAdd(t, tl, clip("a", 0, 0, 2*time.Second))

	if err := tl.SetOpacity(id, 0.25); err != nil {
		t.Fatal(err)
	}
	if err := tl.SetOpacity(id, 2); !errors.Is(err, ErrInvalidPlacement) {
		t.Errorf("expected ErrInvalidPlacement, got %v", err)
	}
	tr := Transform{X: 10, Y: -5, ScaleX: 0.5, ScaleY: 0.5, Rotation: 90}
	if err := tl.SetTransform(id, tr); err != nil {
		t.Fatal(err)
	}
	c, _ := tl.Clip(id)
	if c.Opacity != 0.25 || c.Transform != tr {
		t.Errorf("unexpected clip %+v", c)
	}
}

func TestAddClip_DefaultsTransform(t *testing.T) {
	tl := newTestTimeline()
	id := mustAdd(t, tl, clip("a", 0, 0, time.Second))
	c, _ := tl.Clip(id)
	if c.Transform != Identity() {
		t.Errorf("expected identity transform, got %+v", c.Transform)
	}
}

func TestSnapshot_Immutable(t *testing.T) {
	tl := newTestTimeline()
	id := mustAdd(t, tl, clip("a", 0, 0, 2*time.Second))
	old := tl.Snapshot()

	if err := tl.MoveClip(id, 0, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if c, _ := old.Clip(id); c.Start != 0 {
		t.Errorf("old snapshot changed: %+v", c)
	}
	if e := old.Resolve(time.Second); len(e) != 1 {
		t.Errorf("old snapshot should still resolve the clip, got %d entries", len(e))
	}
	if tl.Snapshot().Version() <= old.Version() {
		t.Error("expected a newer version after an edit")
	}
}

func TestReplace(t *testing.T) {
	tl := newTestTimeline()
	mustAdd(t, tl, clip("a", 0, 0, time.Second))

	bad := []Clip{
		clip("a", 0, 0, 2*time.Second),
		clip("b", 0, time.Second, 2*time.Second),
	}
	if err := tl.Replace(bad); !errors.Is(err, ErrInvalidPlacement) {
		t.Fatalf("expected ErrInvalidPlacement, got %v", err)
	}
	if tl.Snapshot().Len() != 1 {
		t.Error("rejected replace changed the timeline")
	}

	good := []Clip{
		clip("a", 0, 0, 2*time.Second),
		clip("b", 0, 2*time.Second, 2*time.Second),
	}
	if err := tl.Replace(good); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if tl.Snapshot().Len() != 2 || tl.Duration() != 4*time.Second {
		t.Errorf("unexpected timeline after replace: %d clips, %s", tl.Snapshot().Len(), tl.Duration())
	}
}

func TestResolve_ConcurrentWithEdits(t *testing.T) {
	tl := newTestTimeline()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := tl.Snapshot()
				for _, e := range snap.Resolve(time.Second) {
					if !e.Clip.Contains(time.Second) {
						t.Errorf("resolved clip %s does not contain 1s", e.Clip.ID)
					}
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		id, err := tl.AddClip(clip("a", i%8, 0, 2*time.Second))
		if err == nil && i%2 == 0 {
			_, _ = tl.DeleteClip(id)
		}
	}
	close(stop)
	wg.Wait()
}
