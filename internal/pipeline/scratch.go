package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// defaultScratchExt is used when the input has no extension FFmpeg could
// infer a muxer from
const defaultScratchExt = ".mkv"

// Scratch is the throwaway output sink of one diagnostic pass. Each run gets
// its own name so concurrent runs never share a file.
type Scratch struct {
	Path string
}

// NewScratch reserves a unique scratch path in dir mirroring input's extension
func NewScratch(dir, input string) *Scratch {
	if dir == "" {
		dir = os.TempDir()
	}
	ext := strings.ToLower(filepath.Ext(input))
	if ext == "" {
		ext = defaultScratchExt
	}
	return &Scratch{Path: filepath.Join(dir, "ffcrop-"+uuid.NewString()+ext)}
}

// Remove deletes the scratch file if the diagnostic pass created one
func (s *Scratch) Remove() error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
