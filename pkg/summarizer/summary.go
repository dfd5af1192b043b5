// Package summarizer builds the report written after an export.
package summarizer

import "time"

// Summary contains everything reported about one export.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	// Project that was rendered
	Project ProjectInfo

	// Sources the project uses
	Sources []SourceInfo

	// Output settings
	Settings Settings

	// Output video details
	Video VideoInfo

	// Frame cache activity during the export
	Cache CacheInfo
}

// ProjectInfo describes the rendered project.
type ProjectInfo struct {
	Path     string
	Duration time.Duration
	Clips    int
	Tracks   int
}

// SourceInfo describes one media source.
type SourceInfo struct {
	Path      string
	Kind      string
	Duration  time.Duration // 0 when unbounded
	FrameRate float64
	Width     int
	Height    int
}

// Settings contains the output configuration.
type Settings struct {
	Width      int
	Height     int
	FPS        float64
	Background string
	Codec      string
	CRF        int
	Bitrate    int // kbps, 0 = CRF only
}

// VideoInfo contains information about the output video.
type VideoInfo struct {
	OutputPath string
	FrameCount int
	Start      time.Duration
	Duration   time.Duration
	Elapsed    time.Duration // Wall-clock render time
}

// Speed returns the render speed relative to real time.
func (v VideoInfo) Speed() float64 {
	if v.Elapsed <= 0 {
		return 0
	}
	return v.Duration.Seconds() / v.Elapsed.Seconds()
}

// CacheInfo contains frame cache counters.
type CacheInfo struct {
	Hits      uint64
	Misses    uint64
	Coalesced uint64
	Evictions uint64
	Failures  uint64
}

// HitRate returns hits over lookups, or 0 with no lookups.
func (c CacheInfo) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total)
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithProject sets project information.
func (b *Builder) WithProject(path string, duration time.Duration, clips, tracks int) *Builder {
	b.summary.Project = ProjectInfo{
		Path:     path,
		Duration: duration,
		Clips:    clips,
		Tracks:   tracks,
	}
	return b
}

// WithSource appends a source.
func (b *Builder) WithSource(source SourceInfo) *Builder {
	b.summary.Sources = append(b.summary.Sources, source)
	return b
}

// WithSettings sets output settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithVideo sets video output information.
func (b *Builder) WithVideo(video VideoInfo) *Builder {
	b.summary.Video = video
	return b
}

// WithCache sets frame cache counters.
func (b *Builder) WithCache(cache CacheInfo) *Builder {
	b.summary.Cache = cache
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
