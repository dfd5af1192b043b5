package timeline

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of the timeline. It is safe for
// concurrent use and never changes after publication.
type Snapshot struct {
	version  uint64
	clips    map[ClipID]Clip
	tracks   []Track // Sorted by Index
	duration time.Duration
}

func newSnapshot(version uint64, clips map[ClipID]Clip) *Snapshot {
	byTrack := make(map[int][]Clip)
	var duration time.Duration
	for _, c := range clips {
		byTrack[c.Track] = append(byTrack[c.Track], c)
		if end := c.End(); end > duration {
			duration = end
		}
	}

	tracks := make([]Track, 0, len(byTrack))
	for idx, cs := range byTrack {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Start < cs[j].Start })
		tracks = append(tracks, Track{Index: idx, Clips: cs})
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Index < tracks[j].Index })

	return &Snapshot{
		version:  version,
		clips:    clips,
		tracks:   tracks,
		duration: duration,
	}
}

// Version increases with every accepted edit.
func (s *Snapshot) Version() uint64 { return s.version }

// Duration is the end of the last clip.
func (s *Snapshot) Duration() time.Duration { return s.duration }

// Len returns the number of clips.
func (s *Snapshot) Len() int { return len(s.clips) }

// Clip returns the clip with the given id.
func (s *Snapshot) Clip(id ClipID) (Clip, bool) {
	c, ok := s.clips[id]
	return c, ok
}

// Clips returns every clip ordered by track, then start.
func (s *Snapshot) Clips() []Clip {
	out := make([]Clip, 0, len(s.clips))
	for _, tr := range s.tracks {
		out = append(out, tr.Clips...)
	}
	return out
}

// Tracks returns the non-empty tracks ordered by index.
func (s *Snapshot) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, tr := range s.tracks {
		out[i] = Track{Index: tr.Index, Clips: append([]Clip(nil), tr.Clips...)}
	}
	return out
}

// Resolve returns the clips active at t in ascending track order, which is
// also the blend order: later entries are drawn on top.
func (s *Snapshot) Resolve(t time.Duration) []Entry {
	var entries []Entry
	for _, tr := range s.tracks {
		if c, ok := tr.at(t); ok {
			entries = append(entries, Entry{Clip: c, SourceTime: c.SourceTime(t)})
		}
	}
	return entries
}

// at finds the clip covering t by binary search.
func (tr Track) at(t time.Duration) (Clip, bool) {
	i := sort.Search(len(tr.Clips), func(i int) bool {
		return tr.Clips[i].End() > t
	})
	if i < len(tr.Clips) && tr.Clips[i].Start <= t {
		return tr.Clips[i], true
	}
	return Clip{}, false
}

// collides returns the first clip on c's track that overlaps c, ignoring c itself.
func (s *Snapshot) collides(c Clip) (Clip, bool) {
	for _, tr := range s.tracks {
		if tr.Index != c.Track {
			continue
		}
		i := sort.Search(len(tr.Clips), func(i int) bool {
			return tr.Clips[i].End() > c.Start
		})
		for ; i < len(tr.Clips) && tr.Clips[i].Start < c.End(); i++ {
			if tr.Clips[i].ID != c.ID {
				return tr.Clips[i], true
			}
		}
	}
	return Clip{}, false
}
