package timeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/user/dusk/pkg/media"
)

// SourceLookup supplies source properties for bounds checks.
type SourceLookup interface {
	SourceInfo(id SourceID) (media.Info, bool)
}

// Timeline is the mutable editing model. Edits are serialized and publish a
// fresh Snapshot; readers never block writers and never see partial edits.
type Timeline struct {
	sources SourceLookup

	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// New creates an empty timeline. sources may be nil to skip source checks.
func New(sources SourceLookup) *Timeline {
	tl := &Timeline{sources: sources}
	tl.snap.Store(newSnapshot(0, map[ClipID]Clip{}))
	return tl
}

// Snapshot returns the current immutable view.
func (tl *Timeline) Snapshot() *Snapshot {
	return tl.snap.Load()
}

// Duration returns the end of the last clip.
func (tl *Timeline) Duration() time.Duration {
	return tl.Snapshot().Duration()
}

// Clip returns the clip with the given id.
func (tl *Timeline) Clip(id ClipID) (Clip, bool) {
	return tl.Snapshot().Clip(id)
}

// Clips returns every clip ordered by track, then start.
func (tl *Timeline) Clips() []Clip {
	return tl.Snapshot().Clips()
}

// AddClip validates and inserts c. An empty ID is assigned a new one.
func (tl *Timeline) AddClip(c Clip) (ClipID, error) {
	if c.ID == "" {
		c.ID = ClipID(uuid.NewString())
	}
	if c.Transform == (Transform{}) {
		c.Transform = Identity()
	}
	err := tl.edit(func(cur *Snapshot, clips map[ClipID]Clip) error {
		if _, exists := cur.Clip(c.ID); exists {
			return fmt.Errorf("%w: duplicate clip id %s", ErrInvalidPlacement, c.ID)
		}
		if err := tl.validate(cur, c); err != nil {
			return err
		}
		clips[c.ID] = c
		return nil
	})
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// MoveClip changes a clip's track and start.
func (tl *Timeline) MoveClip(id ClipID, track int, start time.Duration) error {
	return tl.update(id, func(c *Clip) {
		c.Track = track
		c.Start = start
	})
}

// TrimClip changes which source span a clip shows.
func (tl *Timeline) TrimClip(id ClipID, inOffset, duration time.Duration) error {
	return tl.update(id, func(c *Clip) {
		c.InOffset = inOffset
		c.Duration = duration
	})
}

// SetOpacity changes a clip's opacity.
func (tl *Timeline) SetOpacity(id ClipID, opacity float64) error {
	return tl.update(id, func(c *Clip) {
		c.Opacity = opacity
	})
}

// SetTransform changes a clip's placement on the canvas.
func (tl *Timeline) SetTransform(id ClipID, tr Transform) error {
	return tl.update(id, func(c *Clip) {
		c.Transform = tr
	})
}

// DeleteClip removes a clip and returns it.
func (tl *Timeline) DeleteClip(id ClipID) (Clip, error) {
	var removed Clip
	err := tl.edit(func(cur *Snapshot, clips map[ClipID]Clip) error {
		c, ok := clips[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrClipNotFound, id)
		}
		removed = c
		delete(clips, id)
		return nil
	})
	return removed, err
}

// Replace swaps in a whole new clip set, validating every clip against the
// others. Nothing changes when any clip is rejected.
func (tl *Timeline) Replace(clips []Clip) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	cur := tl.Snapshot()
	staged := newSnapshot(cur.Version(), map[ClipID]Clip{})
	next := make(map[ClipID]Clip, len(clips))
	for _, c := range clips {
		if c.ID == "" {
			c.ID = ClipID(uuid.NewString())
		}
		if _, dup := next[c.ID]; dup {
			return fmt.Errorf("%w: duplicate clip id %s", ErrInvalidPlacement, c.ID)
		}
		if err := tl.validate(staged, c); err != nil {
			return fmt.Errorf("clip %s: %w", c.ID, err)
		}
		next[c.ID] = c
		staged = newSnapshot(cur.Version(), copyClips(next))
	}
	tl.snap.Store(newSnapshot(cur.Version()+1, next))
	return nil
}

func (tl *Timeline) update(id ClipID, mutate func(c *Clip)) error {
	return tl.edit(func(cur *Snapshot, clips map[ClipID]Clip) error {
		c, ok := clips[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrClipNotFound, id)
		}
		mutate(&c)
		if err := tl.validate(cur, c); err != nil {
			return err
		}
		clips[id] = c
		return nil
	})
}

// edit runs fn on a private copy of the clip set and publishes the result
// only when fn succeeds.
func (tl *Timeline) edit(fn func(cur *Snapshot, clips map[ClipID]Clip) error) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	cur := tl.Snapshot()
	clips := copyClips(cur.clips)
	if err := fn(cur, clips); err != nil {
		return err
	}
	tl.snap.Store(newSnapshot(cur.Version()+1, clips))
	return nil
}

func (tl *Timeline) validate(cur *Snapshot, c Clip) error {
	switch {
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration %s must be positive", ErrInvalidPlacement, c.Duration)
	case c.Start < 0:
		return fmt.Errorf("%w: start %s is negative", ErrInvalidPlacement, c.Start)
	case c.Track < 0:
		return fmt.Errorf("%w: track %d is negative", ErrInvalidPlacement, c.Track)
	case c.Opacity < 0 || c.Opacity > 1:
		return fmt.Errorf("%w: opacity %.3f outside [0, 1]", ErrInvalidPlacement, c.Opacity)
	case c.Transform.ScaleX <= 0 || c.Transform.ScaleY <= 0:
		return fmt.Errorf("%w: scale must be positive", ErrInvalidPlacement)
	case c.Transform.Width < 0 || c.Transform.Height < 0:
		return fmt.Errorf("%w: size must not be negative", ErrInvalidPlacement)
	case c.InOffset < 0:
		return fmt.Errorf("%w: in offset %s is negative", ErrOutOfBounds, c.InOffset)
	}

	if tl.sources != nil {
		info, ok := tl.sources.SourceInfo(c.Source)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSource, c.Source)
		}
		// Stills and sources of unknown length can be stretched freely.
		if info.Kind != media.KindImage && info.Duration > 0 && c.InOffset+c.Duration > info.Duration {
			return fmt.Errorf("%w: %s + %s exceeds source length %s",
				ErrOutOfBounds, c.InOffset, c.Duration, info.Duration)
		}
	}

	if other, ok := cur.collides(c); ok {
		return fmt.Errorf("%w: overlaps clip %s on track %d", ErrInvalidPlacement, other.ID, c.Track)
	}
	return nil
}

func copyClips(src map[ClipID]Clip) map[ClipID]Clip {
	dst := make(map[ClipID]Clip, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
