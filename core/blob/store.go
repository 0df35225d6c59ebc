// Package blob owns the on-disk directory of media files.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"minifm/model"

	"github.com/google/uuid"
)

// Store manages the directory where audio and cover blobs live. File names
// are derived from freshly generated UUIDs, so collisions are not expected
// and writes may overwrite.
type Store struct {
	dir string
}

// NewStore creates a blob store rooted at dir. The directory is created on
// first allocation, not here, so a read-only start does not touch the disk.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the managed directory.
func (s *Store) Dir() string {
	return s.dir
}

// Allocate derives the storage extension from the original filename
// (defaulting to mp3), generates a fresh id and returns the absolute target
// path <dir>/<id>.<ext>. The managed directory is created if missing.
func (s *Store) Allocate(originalFilename string) (id, target string, err error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create files directory %s: %w", s.dir, err)
	}

	ext := Extension(originalFilename)
	id = uuid.NewString()

	target, err = filepath.Abs(filepath.Join(s.dir, id+"."+ext))
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve target path: %w", err)
	}
	return id, target, nil
}

// Write copies the upload bytes to the target path, overwriting any existing
// file. An I/O failure is surfaced; a stray partial file may remain.
func (s *Store) Write(src io.Reader, target string) (int64, error) {
	out, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to create blob file %s: %w", target, err)
	}
	defer out.Close()

	n, err := io.Copy(out, src)
	if err != nil {
		return n, fmt.Errorf("failed to write blob file %s: %w", target, err)
	}
	return n, nil
}

// AudioPath resolves the record's audio blob location. Pure lookup, no I/O.
func (s *Store) AudioPath(m model.Music) string {
	return m.FilePath
}

// CoverPath resolves the record's cover blob location, if one is set.
func (s *Store) CoverPath(m model.Music) (string, bool) {
	if m.CoverPath == "" {
		return "", false
	}
	return m.CoverPath, true
}

// Extension returns the lower-cased extension of name without the dot,
// defaulting to mp3 when the name has none.
func Extension(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "mp3"
	}
	return strings.ToLower(ext)
}
