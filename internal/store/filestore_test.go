package store

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/windserver/internal/weather"
)

func testID(offset int) weather.Identifier {
	return weather.Identifier{
		Base:   time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
		Offset: offset,
	}
}

func TestWithArtifactCommitsOnSuccess(t *testing.T) {
	s := NewFileStore(t.TempDir())
	id := testID(0)

	if s.Exists(id) {
		t.Fatalf("expected no artifact before write")
	}

	err := s.WithArtifact(id, func(tmp string) error {
		if s.Exists(id) {
			t.Errorf("artifact visible before commit")
		}
		return os.WriteFile(tmp, []byte(`[{"header":{}}]`), 0o644)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Exists(id) {
		t.Fatalf("expected artifact after commit")
	}

	rc, err := s.Open(id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != `[{"header":{}}]` {
		t.Fatalf("unexpected artifact body %q", b)
	}
}

func TestWithArtifactDiscardsOnError(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	id := testID(3)

	wantErr := errors.New("converter exploded")
	err := s.WithArtifact(id, func(tmp string) error {
		if err := os.WriteFile(tmp, []byte("half"), 0o644); err != nil {
			t.Fatal(err)
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if s.Exists(id) {
		t.Fatalf("artifact must not exist after failed write")
	}
	assertEmptyDir(t, filepath.Join(root, ArtifactDirName))
}

func TestWithArtifactDiscardsOnPanic(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	id := testID(6)

	func() {
		defer func() { _ = recover() }()
		_ = s.WithArtifact(id, func(tmp string) error {
			_ = os.WriteFile(tmp, []byte("half"), 0o644)
			panic("boom")
		})
	}()

	if s.Exists(id) {
		t.Fatalf("artifact must not exist after panic")
	}
	assertEmptyDir(t, filepath.Join(root, ArtifactDirName))
}

func TestWithArtifactRequiresOutput(t *testing.T) {
	s := NewFileStore(t.TempDir())
	id := testID(9)

	err := s.WithArtifact(id, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected error when nothing was written")
	}
	if s.Exists(id) {
		t.Fatalf("artifact must not exist")
	}
}

func TestOpenMissingReturnsNotFound(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Open(testID(0))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRawLifecycle(t *testing.T) {
	s := NewFileStore(t.TempDir())
	id := testID(0)

	path, err := s.WriteRaw(id, strings.NewReader("GRIB...7777"))
	if err != nil {
		t.Fatalf("write raw: %v", err)
	}
	if path != s.RawPath(id) {
		t.Fatalf("expected %s, got %s", s.RawPath(id), path)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != "GRIB...7777" {
		t.Fatalf("unexpected raw content %q (%v)", b, err)
	}

	if err := s.RemoveRaw(id); err != nil {
		t.Fatalf("remove raw: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("raw file should be gone")
	}
	// Second removal is a no-op.
	if err := s.RemoveRaw(id); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestRemoveRawOnlyTouchesOneIdentifier(t *testing.T) {
	s := NewFileStore(t.TempDir())
	a, b := testID(0), testID(3)

	if _, err := s.WriteRaw(a, strings.NewReader("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteRaw(b, strings.NewReader("b")); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveRaw(a); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.RawPath(b)); err != nil {
		t.Fatalf("raw file for %s should survive: %v", b, err)
	}
}

func TestEnsureDirsIdempotent(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	for i := 0; i < 2; i++ {
		if err := s.EnsureDirs(); err != nil {
			t.Fatalf("ensure dirs (pass %d): %v", i, err)
		}
	}
	for _, d := range []string{RawDirName, ArtifactDirName} {
		if fi, err := os.Stat(filepath.Join(root, d)); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s", d)
		}
	}
}

func TestRemovePartials(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	if err := s.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(root, ArtifactDirName, "20240101-06.f000.json.abc"+partialExt)
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	keep := s.ArtifactPath(testID(0))
	if err := os.WriteFile(keep, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := s.RemovePartials()
	if err != nil {
		t.Fatalf("remove partials: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if !s.Exists(testID(0)) {
		t.Fatalf("finalized artifact must survive")
	}
}

// Readers racing a writer must see either nothing or the complete artifact.
func TestConcurrentReadersNeverSeePartialArtifact(t *testing.T) {
	s := NewFileStore(t.TempDir())
	id := testID(12)
	full := bytes.Repeat([]byte("0123456789"), 10000)

	var (
		wg       sync.WaitGroup
		done     atomic.Bool
		partials atomic.Int32
		seen     atomic.Int32
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() || !s.Exists(id) {
				if !s.Exists(id) {
					continue
				}
				rc, err := s.Open(id)
				if err != nil {
					partials.Add(1)
					return
				}
				b, _ := io.ReadAll(rc)
				rc.Close()
				if !bytes.Equal(b, full) {
					partials.Add(1)
				}
				seen.Add(1)
				return
			}
			seen.Add(1)
		}()
	}

	err := s.WithArtifact(id, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		for off := 0; off < len(full); off += 1000 {
			if _, err := f.Write(full[off : off+1000]); err != nil {
				f.Close()
				return err
			}
			time.Sleep(100 * time.Microsecond)
		}
		return f.Close()
	})
	done.Store(true)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	wg.Wait()

	if partials.Load() != 0 {
		t.Fatalf("%d readers observed a partial artifact", partials.Load())
	}
	if seen.Load() != 16 {
		t.Fatalf("expected 16 readers to finish, got %d", seen.Load())
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty %s, found %d entries", dir, len(entries))
	}
}
