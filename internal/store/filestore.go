package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/i474232898/windserver/internal/weather"
)

var (
	// ErrNotFound is returned when no finalized artifact exists for an identifier.
	ErrNotFound = errors.New("no artifact for snapshot")
)

const (
	RawDirName      = "grib-data"
	ArtifactDirName = "json-data"

	artifactExt = ".json"
	partialExt  = ".partial"
)

// FileStore keeps raw payloads and converted artifacts in two sibling
// directories. Artifacts only appear under their final name once complete.
type FileStore struct {
	rawDir      string
	artifactDir string
}

// NewFileStore creates a store rooted at root. Directories are created lazily.
func NewFileStore(root string) *FileStore {
	return &FileStore{
		rawDir:      filepath.Join(root, RawDirName),
		artifactDir: filepath.Join(root, ArtifactDirName),
	}
}

// EnsureDirs creates both containers if they are missing.
func (s *FileStore) EnsureDirs() error {
	if err := EnsureDir(s.rawDir); err != nil {
		return err
	}
	return EnsureDir(s.artifactDir)
}

// EnsureDir is an idempotent mkdir -p.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// ArtifactPath is where the finalized artifact for id lives.
func (s *FileStore) ArtifactPath(id weather.Identifier) string {
	return filepath.Join(s.artifactDir, id.Key()+artifactExt)
}

// RawPath is where the raw payload for id lives between download and conversion.
func (s *FileStore) RawPath(id weather.Identifier) string {
	return filepath.Join(s.rawDir, id.Key())
}

// Exists reports whether a finalized artifact is present for id.
func (s *FileStore) Exists(id weather.Identifier) bool {
	fi, err := os.Stat(s.ArtifactPath(id))
	return err == nil && fi.Mode().IsRegular()
}

// Open returns the artifact for id, or ErrNotFound.
func (s *FileStore) Open(id weather.Identifier) (io.ReadCloser, error) {
	f, err := os.Open(s.ArtifactPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id.Key())
		}
		return nil, err
	}
	return f, nil
}

// WithArtifact hands fn a temporary path to write the artifact for id to.
// When fn succeeds the file is renamed into place; on any other exit,
// including a panic in fn, the partial file is removed and Exists stays false.
func (s *FileStore) WithArtifact(id weather.Identifier, fn func(tmpPath string) error) error {
	return s.scoped(s.artifactDir, s.ArtifactPath(id), fn)
}

// WriteRaw stores a raw payload for id and returns its path.
func (s *FileStore) WriteRaw(id weather.Identifier, r io.Reader) (string, error) {
	final := s.RawPath(id)
	err := s.scoped(s.rawDir, final, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			return fmt.Errorf("write raw payload %s: %w", id.Key(), err)
		}
		return f.Close()
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

// RemoveRaw deletes the raw payload for id. A missing file is not an error.
func (s *FileStore) RemoveRaw(id weather.Identifier) error {
	if err := os.Remove(s.RawPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemovePartials deletes temporary files left behind by an interrupted write.
// Returns the number of files removed.
func (s *FileStore) RemovePartials() (int, error) {
	removed := 0
	for _, dir := range []string{s.rawDir, s.artifactDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), partialExt) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (s *FileStore) scoped(dir, final string, fn func(tmpPath string) error) error {
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp := final + "." + uuid.NewString() + partialExt
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	if err := fn(tmp); err != nil {
		return err
	}
	if _, err := os.Stat(tmp); err != nil {
		return fmt.Errorf("nothing written for %s: %w", filepath.Base(final), err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("finalize %s: %w", filepath.Base(final), err)
	}
	committed = true
	return nil
}
