package localstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_InvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	s := New(dir, nil, nil)
	entries, err := s.Walk()
	require.NoError(t, err)
	first := entries[0].MD5

	w, err := NewWatcher(s, dir, nil)
	require.NoError(t, err)
	defer w.Close()

	info, _ := os.Stat(path)
	require.NoError(t, os.WriteFile(path, []byte("v2-different-length"), 0644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	require.Eventually(t, func() bool {
		s.mu.Lock()
		_, stillMemoized := s.memo[path]
		s.mu.Unlock()
		return !stillMemoized
	}, 2*time.Second, 10*time.Millisecond)

	entries, err = s.Walk()
	require.NoError(t, err)
	require.NotEqual(t, first, entries[0].MD5)
}
