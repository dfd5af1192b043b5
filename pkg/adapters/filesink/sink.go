// Package filesink writes debug output (resolved project state and
// composited frames) under a directory.
package filesink

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/user/dusk/pkg/ports"
)

// Sink saves debug output to files.
type Sink struct {
	baseDir  string
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		renderer: renderer,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveProjectJSON saves the resolved project state as project.json.
func (s *Sink) SaveProjectJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "project.json")
	return s.fs.WriteFile(path, data)
}

// SaveComposedFrame saves a composed frame as frames/frame-NNNNN.png.
func (s *Sink) SaveComposedFrame(index int, img image.Image) error {
	dir := filepath.Join(s.baseDir, "frames")
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode composed frame: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%05d.png", index))
	return s.fs.WriteFile(path, data)
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
