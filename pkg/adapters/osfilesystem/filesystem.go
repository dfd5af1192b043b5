// Package osfilesystem implements ports.FileSystem on the local disk.
package osfilesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/user/dusk/pkg/ports"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileSystem implements ports.FileSystem using the os package.
type FileSystem struct{}

// New creates a new FileSystem.
func New() *FileSystem {
	return &FileSystem{}
}

func (f *FileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to path, creating parent directories as needed.
func (f *FileSystem) WriteFile(path string, data []byte) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, filePerm)
}

// Rename moves oldPath over newPath. Within one directory this is atomic,
// which project saving relies on.
func (f *FileSystem) Rename(oldPath, newPath string) error {
	if err := ensureParent(newPath); err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}

func (f *FileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, dirPerm)
}

func (f *FileSystem) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (f *FileSystem) Remove(path string) error {
	return os.Remove(path)
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, dirPerm)
}

// Ensure FileSystem implements ports.FileSystem
var _ ports.FileSystem = (*FileSystem)(nil)
