// Package project reads and writes project files: the output settings,
// the media a project uses and every clip placement.
//
// Files ending in .yaml or .yml are YAML; everything else is MessagePack.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/user/dusk/pkg/media"
	"github.com/user/dusk/pkg/ports"
	"github.com/user/dusk/pkg/timeline"
)

// FormatVersion is the newest document version this package writes.
const FormatVersion = 1

// ErrInvalidProject is returned for documents that cannot be loaded.
var ErrInvalidProject = errors.New("project: invalid project")

// Format selects the on-disk encoding.
type Format int

const (
	FormatMsgpack Format = iota
	FormatYAML
)

// FormatFor picks the encoding from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatMsgpack
	}
}

// Document is the serialized form of a project. Times are microseconds so
// the file stays readable and independent of Go's duration encoding.
type Document struct {
	Version    int         `msgpack:"version" yaml:"version"`
	Width      int         `msgpack:"width" yaml:"width"`
	Height     int         `msgpack:"height" yaml:"height"`
	FPS        float64     `msgpack:"fps" yaml:"fps"`
	Background string      `msgpack:"background,omitempty" yaml:"background,omitempty"`
	Sources    []SourceRef `msgpack:"sources" yaml:"sources"`
	Clips      []ClipRef   `msgpack:"clips" yaml:"clips"`
}

// SourceRef names one media file. ID is only meaningful inside the document.
type SourceRef struct {
	ID   string `msgpack:"id" yaml:"id"`
	Path string `msgpack:"path" yaml:"path"`
	Kind string `msgpack:"kind" yaml:"kind"`
}

// ClipRef is one clip placement.
type ClipRef struct {
	ID         string             `msgpack:"id" yaml:"id"`
	Source     string             `msgpack:"source" yaml:"source"`
	Track      int                `msgpack:"track" yaml:"track"`
	StartUs    int64              `msgpack:"start_us" yaml:"start_us"`
	DurationUs int64              `msgpack:"duration_us" yaml:"duration_us"`
	InOffsetUs int64              `msgpack:"in_offset_us" yaml:"in_offset_us"`
	Opacity    float64            `msgpack:"opacity" yaml:"opacity"`
	Transform  timeline.Transform `msgpack:"transform" yaml:"transform"`
}

// Settings are the output parameters stored with a project.
type Settings struct {
	Width      int
	Height     int
	FPS        float64
	Background string
}

// New builds a document from timeline clips and the sources they use.
// Sources no clip refers to are left out.
func New(settings Settings, clips []timeline.Clip, sources []media.Info) Document {
	doc := Document{
		Version:    FormatVersion,
		Width:      settings.Width,
		Height:     settings.Height,
		FPS:        settings.FPS,
		Background: settings.Background,
	}

	used := make(map[media.SourceID]bool, len(clips))
	for _, c := range clips {
		used[c.Source] = true
		doc.Clips = append(doc.Clips, ClipRef{
			ID:         string(c.ID),
			Source:     string(c.Source),
			Track:      c.Track,
			StartUs:    c.Start.Microseconds(),
			DurationUs: c.Duration.Microseconds(),
			InOffsetUs: c.InOffset.Microseconds(),
			Opacity:    c.Opacity,
			Transform:  c.Transform,
		})
	}
	for _, info := range sources {
		if !used[info.ID] {
			continue
		}
		doc.Sources = append(doc.Sources, SourceRef{
			ID:   string(info.ID),
			Path: info.Path,
			Kind: info.Kind.String(),
		})
	}
	return doc
}

// Validate checks the document's structure. Placement rules are checked
// when the clips are applied to a timeline.
func (d Document) Validate() error {
	if d.Version < 1 || d.Version > FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidProject, d.Version)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: output size %dx%d", ErrInvalidProject, d.Width, d.Height)
	}
	if d.FPS <= 0 {
		return fmt.Errorf("%w: fps %.3f", ErrInvalidProject, d.FPS)
	}

	ids := make(map[string]bool, len(d.Sources))
	for _, s := range d.Sources {
		if s.ID == "" || s.Path == "" {
			return fmt.Errorf("%w: source without id or path", ErrInvalidProject)
		}
		if ids[s.ID] {
			return fmt.Errorf("%w: duplicate source id %s", ErrInvalidProject, s.ID)
		}
		if _, err := media.ParseKind(s.Kind); err != nil {
			return fmt.Errorf("%w: source %s: %w", ErrInvalidProject, s.ID, err)
		}
		ids[s.ID] = true
	}

	clips := make(map[string]bool, len(d.Clips))
	for _, c := range d.Clips {
		if !ids[c.Source] {
			return fmt.Errorf("%w: clip %s refers to unknown source %s", ErrInvalidProject, c.ID, c.Source)
		}
		if c.ID != "" && clips[c.ID] {
			return fmt.Errorf("%w: duplicate clip id %s", ErrInvalidProject, c.ID)
		}
		clips[c.ID] = true
	}
	return nil
}

// TimelineClips converts the clip records, mapping document source ids
// through ids (typically to the ids of freshly opened sources).
func (d Document) TimelineClips(ids map[string]media.SourceID) ([]timeline.Clip, error) {
	out := make([]timeline.Clip, 0, len(d.Clips))
	for _, c := range d.Clips {
		src, ok := ids[c.Source]
		if !ok {
			return nil, fmt.Errorf("%w: clip %s refers to unknown source %s", ErrInvalidProject, c.ID, c.Source)
		}
		out = append(out, timeline.Clip{
			ID:        timeline.ClipID(c.ID),
			Source:    src,
			Track:     c.Track,
			Start:     time.Duration(c.StartUs) * time.Microsecond,
			Duration:  time.Duration(c.DurationUs) * time.Microsecond,
			InOffset:  time.Duration(c.InOffsetUs) * time.Microsecond,
			Opacity:   c.Opacity,
			Transform: c.Transform,
		})
	}
	return out, nil
}

// Encode serializes doc.
func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		data, err := msgpack.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode msgpack: %w", err)
		}
		return data, nil
	}
}

// Decode parses and validates a document.
func Decode(data []byte, format Format) (Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = msgpack.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Save writes doc to path through a temporary file so an interrupted save
// never leaves a truncated project behind.
func Save(fs ports.FileSystem, path string, doc Document) error {
	if doc.Version == 0 {
		doc.Version = FormatVersion
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := Encode(doc, FormatFor(path))
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := fs.WriteFile(tmp, data); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("replace project: %w", err)
	}
	return nil
}

// Load reads and validates the project at path.
func Load(fs ports.FileSystem, path string) (Document, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read project: %w", err)
	}
	doc, err := Decode(data, FormatFor(path))
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// JSON renders doc for debug output.
func JSON(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
