// Package cache implements rush's content-hash cache: a per-task
// fingerprint over the task's name and its declared input files, a
// zero-length marker file per fingerprint, and a skip-if-fresh
// freshness check. There is no remote cache or artifact packing —
// only a local freshness marker.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"rush/internal/task"
)

// DirName is the fixed cache subdirectory name.
const DirName = ".rush-cache"

// notFoundSentinel is fed into the fingerprint hash in place of a
// declared input file that doesn't exist. Any other error opening or
// reading an input is returned as an Error instead.
var notFoundSentinel = []byte("<file-not-found>")

// Error reports an I/O failure on hashing, mkdir, or marker write.
// Fatal for the task that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cache manages the cache directory for one working directory.
type Cache struct {
	workDir string
	dir     string
	logger  hclog.Logger
}

// New returns a Cache rooted at filepath.Join(workDir, DirName). The
// directory is created lazily, on first Commit.
func New(workDir string, logger hclog.Logger) *Cache {
	return &Cache{
		workDir: workDir,
		dir:     filepath.Join(workDir, DirName),
		logger:  logger.Named("cache"),
	}
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// Fingerprint computes hash(name || content(cache[0]) || content(cache[1]) || …),
// with missing files contributing the fixed sentinel byte string. The
// command text is deliberately not part of the fingerprint: editing a
// task's command without touching any of its declared inputs does not
// invalidate a previous run.
func (c *Cache) Fingerprint(t *task.Task) (string, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(t.Name)); err != nil {
		return "", &Error{Op: "fingerprint", Err: err}
	}

	for _, relPath := range t.Cache {
		path := filepath.Join(c.workDir, relPath)
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				if _, werr := h.Write(notFoundSentinel); werr != nil {
					return "", &Error{Op: "fingerprint", Err: werr}
				}
				continue
			}
			return "", &Error{Op: fmt.Sprintf("reading %s", relPath), Err: err}
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", &Error{Op: fmt.Sprintf("reading %s", relPath), Err: err}
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsFresh reports whether a marker for name/fingerprint already exists.
func (c *Cache) IsFresh(name, fingerprint string) (bool, error) {
	_, err := os.Stat(c.markerPath(name, fingerprint))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &Error{Op: "freshness check", Err: err}
}

// Commit records a successful run: it removes any existing markers for
// name (stale fingerprints from a previous run) and creates a fresh,
// empty marker for fingerprint. The marker is written to a uuid-suffixed
// temp name first and renamed into place, so a concurrent reader never
// observes a partially-written marker file.
func (c *Cache) Commit(name, fingerprint string) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return &Error{Op: "mkdir", Err: err}
	}

	if err := c.removeMarkersFor(name); err != nil {
		return err
	}

	final := c.markerPath(name, fingerprint)
	temp := filepath.Join(c.dir, fmt.Sprintf(".%s.%s.tmp", name, uuid.NewString()))
	f, err := os.Create(temp)
	if err != nil {
		return &Error{Op: "write marker", Err: err}
	}
	f.Close()
	if err := os.Rename(temp, final); err != nil {
		return &Error{Op: "write marker", Err: err}
	}
	return nil
}

// Wipe deletes the entire cache directory tree. Used by the watcher,
// which has no way to attribute a filesystem change to a specific
// task's declared inputs and so invalidates everything.
func (c *Cache) Wipe() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return &Error{Op: "wipe", Err: err}
	}
	return nil
}

func (c *Cache) markerPath(name, fingerprint string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.%s", name, fingerprint))
}

func (c *Cache) removeMarkersFor(name string) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Op: "list cache dir", Err: err}
	}
	prefix := name + "."
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
				return &Error{Op: "remove stale marker", Err: err}
			}
		}
	}
	return nil
}
