// Package localstore walks the vault root, fingerprints files with
// MD5 memoized on (path, mtime), and applies atomic writes back to
// disk.
//
// Grounded on internal/drivers/local.go's walk/AtomicWrite/Checksum
// shapes, generalized here to mtime-memoized fingerprinting and a
// single vault root instead of the teacher's container/artifact
// two-level namespace.
package localstore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cloudsync/cloudsync/internal/model"
	"go.uber.org/zap"
)

// Store walks a single vault directory on disk, fingerprinting its
// contents and performing atomic writes for Executor.
type Store struct {
	root   string
	ignore map[string]struct{}
	logger *zap.Logger

	mu    sync.Mutex
	memo  map[string]memoEntry
}

type memoEntry struct {
	mtime time.Time
	md5   string
}

// New returns a Store rooted at root. ignorePatterns are exact
// basename matches (e.g. ".DS_Store", "*.tmp" handled via
// filepath.Match) skipped by Walk.
func New(root string, ignorePatterns []string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	ignore := make(map[string]struct{}, len(ignorePatterns))
	for _, p := range ignorePatterns {
		ignore[p] = struct{}{}
	}
	return &Store{
		root:   root,
		ignore: ignore,
		logger: log,
		memo:   make(map[string]memoEntry),
	}
}

// Walk enumerates every regular file under the vault root, returning
// a model.FileEntry per file with Name set to its slash-separated
// path relative to root. MD5 is computed (or served from memo) for
// every entry; directories and ignored names are skipped.
func (s *Store) Walk() ([]model.FileEntry, error) {
	var entries []model.FileEntry
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == s.root {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		name := filepath.ToSlash(rel)

		if info.IsDir() {
			if s.isIgnored(filepath.Base(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.isIgnored(filepath.Base(path)) {
			return nil
		}

		sum, fErr := s.fingerprint(path, info)
		if fErr != nil {
			return fmt.Errorf("fingerprint %s: %w", name, fErr)
		}

		entries = append(entries, model.FileEntry{
			Name:         name,
			LocalName:    path,
			MIME:         mimeByExtension(name),
			LastModified: info.ModTime(),
			Size:         info.Size(),
			MD5:          sum,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault: %w", err)
	}
	return entries, nil
}

func (s *Store) isIgnored(base string) bool {
	if _, ok := s.ignore[base]; ok {
		return true
	}
	for pattern := range s.ignore {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// fingerprint returns the MD5 hex digest of path, reusing a cached
// digest when the file's mtime hasn't moved since the last call —
// avoids re-hashing a whole vault on every reconcile pass.
func (s *Store) fingerprint(path string, info os.FileInfo) (string, error) {
	s.mu.Lock()
	if cached, ok := s.memo[path]; ok && cached.mtime.Equal(info.ModTime()) {
		s.mu.Unlock()
		return cached.md5, nil
	}
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	s.mu.Lock()
	s.memo[path] = memoEntry{mtime: info.ModTime(), md5: sum}
	s.mu.Unlock()

	return sum, nil
}

// Invalidate evicts the memoized fingerprint for name (vault-relative
// slash path), called by the fsnotify watcher the moment it observes
// a write so the next Walk re-hashes rather than trusting a stale
// mtime comparison against a clock with second-level resolution.
func (s *Store) Invalidate(name string) {
	path := filepath.Join(s.root, filepath.FromSlash(name))
	s.mu.Lock()
	delete(s.memo, path)
	s.mu.Unlock()
}

// Read opens name (vault-relative) for reading.
func (s *Store) Read(name string) (io.ReadCloser, error) {
	return os.Open(s.fullPath(name))
}

// Write atomically replaces name's contents with data, preserving
// mtime when restoreMTime is non-zero. Uses a temp file in the same
// directory plus rename, per the teacher's AtomicWrite.
func (s *Store) Write(name string, data io.Reader, restoreMTime time.Time) error {
	finalPath := s.fullPath(name)
	parentDir := filepath.Dir(finalPath)
	if err := os.MkdirAll(parentDir, 0750); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(parentDir, ".cloudsync-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil

	if !restoreMTime.IsZero() {
		if err := os.Chtimes(tmpPath, restoreMTime, restoreMTime); err != nil {
			s.logger.Warn("restore mtime failed", zap.String("name", name), zap.Error(err))
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	tmpPath = ""

	s.Invalidate(name)
	return nil
}

// Delete removes name from the vault.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.fullPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	s.Invalidate(name)
	return nil
}

// Stat returns the on-disk modification time for name.
func (s *Store) Stat(name string) (time.Time, error) {
	info, err := os.Stat(s.fullPath(name))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *Store) fullPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// mimeByExtension resolves a MIME type from a file's extension,
// defaulting to application/octet-stream for unknown or absent ones.
func mimeByExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return strings.SplitN(t, ";", 2)[0]
	}
	return "application/octet-stream"
}
