// Package filestore keeps uploaded file bodies on local disk, one file per
// slug. Uploads are streamed into a staging directory while hashed, then
// moved into place once their record exists. Removal of a file that is still
// being served is deferred until its last reader closes it.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	stagePrefix = "upload-"
	// adoptSuffix marks a file moved into root but not yet renamed to its
	// slug. The name also starts with a dot, which keeps it out of List.
	adoptSuffix = ".adopting"
)

var (
	// ErrTooLarge is returned by Stage when the body exceeds its limit.
	ErrTooLarge = errors.New("upload exceeds size limit")
	// ErrInvalidName rejects slugs that cannot be used as a file name.
	ErrInvalidName = errors.New("invalid file name")
)

// RemoveResult reports what Remove did.
type RemoveResult int

const (
	Absent RemoveResult = iota
	Removed
	Deferred
	Kept
)

func (r RemoveResult) String() string {
	switch r {
	case Removed:
		return "removed"
	case Deferred:
		return "deferred"
	case Kept:
		return "kept"
	default:
		return "absent"
	}
}

// Store manages files under root, staging uploads in tmp.
type Store struct {
	root string
	tmp  string

	mu      sync.Mutex
	readers map[string]int
	pending map[string]bool
}

// Staged describes an upload written to the staging directory.
type Staged struct {
	Path     string
	Size     int64
	Checksum string
}

// New creates both directories when missing.
func New(root, tmp string) (*Store, error) {
	for _, dir := range []string{root, tmp} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Store{
		root:    root,
		tmp:     tmp,
		readers: map[string]int{},
		pending: map[string]bool{},
	}, nil
}

// Root is the directory holding adopted files.
func (s *Store) Root() string { return s.root }

// Path returns where the file for slug lives.
func (s *Store) Path(slug string) string {
	return filepath.Join(s.root, slug)
}

// Stage streams r into a new staging file, computing its SHA-256 on the fly.
// Reading more than limit bytes aborts with ErrTooLarge; limit <= 0 disables
// the check.
func (s *Store) Stage(r io.Reader, limit int64) (*Staged, error) {
	tmpPath := filepath.Join(s.tmp, stagePrefix+uuid.NewString()+".part")
	// #nosec G304 -- path is generated.
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(src, hasher))
	if err == nil && limit > 0 && size > limit {
		err = ErrTooLarge
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write staging file: %w", err)
	}
	return &Staged{
		Path:     tmpPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Adopt moves a staged file into place for slug and returns its final path.
// Any deferred removal recorded for an earlier file under the same slug is
// cancelled.
func (s *Store) Adopt(stagedPath, slug string) (string, error) {
	if err := validName(slug); err != nil {
		return "", err
	}
	dst := s.Path(slug)
	src := filepath.Join(s.root, "."+slug+adoptSuffix)
	if err := os.Rename(stagedPath, src); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("move %s: %w", stagedPath, err)
		}
		if err := copyFile(stagedPath, src); err != nil {
			_ = os.Remove(src)
			return "", err
		}
		_ = os.Remove(stagedPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, slug)
	if err := os.Rename(src, dst); err != nil {
		_ = os.Remove(src)
		return "", fmt.Errorf("move %s: %w", src, err)
	}
	return dst, nil
}

// Discard removes a staged file. Missing files are not an error.
func (s *Store) Discard(stagedPath string) error {
	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard %s: %w", stagedPath, err)
	}
	return nil
}

// Handle is an open file counted against its slug until closed.
type Handle struct {
	*os.File
	store *Store
	slug  string
	once  sync.Once
}

// Close releases the handle and performs a removal deferred while it was open.
func (h *Handle) Close() error {
	err := h.File.Close()
	h.once.Do(func() { h.store.release(h.slug) })
	return err
}

// Open returns a counted handle on the file for slug. A missing file yields
// an error satisfying os.IsNotExist.
func (s *Store) Open(slug string) (*Handle, error) {
	if err := validName(slug); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// #nosec G304 -- slug validated above.
	f, err := os.Open(s.Path(slug))
	if err != nil {
		return nil, err
	}
	s.readers[slug]++
	return &Handle{File: f, store: s, slug: slug}, nil
}

func (s *Store) release(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.readers[slug] - 1; n > 0 {
		s.readers[slug] = n
		return
	}
	delete(s.readers, slug)
	if s.pending[slug] {
		delete(s.pending, slug)
		_ = os.Remove(s.Path(slug))
	}
}

// Remove deletes the file for slug, or defers the deletion while handles are
// open. Removing a missing file reports Absent.
func (s *Store) Remove(slug string) (RemoveResult, error) {
	return s.RemoveUnless(slug, nil)
}

// RemoveUnless is Remove guarded by live, which is called with the store
// locked so Adopt cannot place a new file between the check and the removal.
// A true result keeps the file and reports Kept.
func (s *Store) RemoveUnless(slug string, live func() (bool, error)) (RemoveResult, error) {
	if err := validName(slug); err != nil {
		return Absent, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.Path(slug)
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return Absent, nil
		}
		return Absent, fmt.Errorf("stat %s: %w", path, err)
	}
	if live != nil {
		keep, err := live()
		if err != nil {
			return Absent, err
		}
		if keep {
			return Kept, nil
		}
	}
	if s.readers[slug] > 0 {
		s.pending[slug] = true
		return Deferred, nil
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return Absent, nil
		}
		return Absent, fmt.Errorf("remove %s: %w", path, err)
	}
	return Removed, nil
}

// List returns the slugs of all regular files under the root.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	slugs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || validName(entry.Name()) != nil {
			continue
		}
		slugs = append(slugs, entry.Name())
	}
	return slugs, nil
}

// PruneStaging removes staging files last modified before now-olderThan,
// left behind by uploads interrupted by a crash.
func (s *Store) PruneStaging(now time.Time, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.tmp)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", s.tmp, err)
	}
	cutoff := now.Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), stagePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.tmp, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func copyFile(src, dst string) error {
	// #nosec G304 -- staging path generated by Stage.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	// #nosec G304 -- dst built from a validated slug.
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("fsync %s: %w", dst, err)
	}
	return out.Close()
}
