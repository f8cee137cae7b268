// Package fsutil provides the file helpers shared by the pipelines.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileExists   = errors.New("file already exists")
)

// FileInfo represents metadata about a file
type FileInfo struct {
	Path    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// FileExists checks if a file exists and is not a directory
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CreateDirIfNotExists creates a directory and its parents when missing
func CreateDirIfNotExists(path string) error {
	if DirExists(path) {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

// GetFileInfo retrieves file information
func GetFileInfo(path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("error getting file info: %w", err)
	}
	return &FileInfo{
		Path:    path,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}, nil
}

// CreateOutputFile creates a file for writing. Unless force is set, an
// existing file is an error rather than being overwritten.
func CreateOutputFile(path string, force bool) (*os.File, error) {
	if !force && FileExists(path) {
		return nil, fmt.Errorf("%w: %s (use -f to overwrite)", ErrFileExists, path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// WriteBlockAt rewrites one whole block at the given offset. The write
// is a single pwrite so the block is either fully written or not at all
// on a healthy file system.
func WriteBlockAt(f *os.File, offset int64, blockBytes []byte) error {
	n, err := f.WriteAt(blockBytes, offset)
	if err != nil {
		return err
	}
	if n != len(blockBytes) {
		return fmt.Errorf("short block write: %d of %d bytes at offset %d",
			n, len(blockBytes), offset)
	}
	return nil
}
