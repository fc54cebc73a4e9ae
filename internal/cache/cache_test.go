package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudsync/cloudsync/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsEmptyRecord(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "s3")
	rec, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, rec.Entries)
	require.Empty(t, rec.Entries)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "s3")

	rec := model.NewCacheRecord()
	rec.Entries["notes/a.md"] = "deadbeef"
	require.NoError(t, s.Save(rec))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "deadbeef", loaded.Entries["notes/a.md"])
}

func TestSave_WritesExpectedFileName(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "azure")
	require.NoError(t, s.Save(model.NewCacheRecord()))

	_, err := os.Stat(filepath.Join(dir, "cloudsync-azure.json"))
	require.NoError(t, err)
}

func TestClear_RemovesFileAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "gcs")
	require.NoError(t, s.Save(model.NewCacheRecord()))
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	rec, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, rec.Entries)
}
