package executor

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudsync/cloudsync/internal/localstore"
	"github.com/cloudsync/cloudsync/internal/model"
	"github.com/cloudsync/cloudsync/internal/pathcodec"
	"github.com/cloudsync/cloudsync/internal/providers"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{objects: map[string][]byte{}}
}

func (f *fakeProvider) Name() string                                { return "fake" }
func (f *fakeProvider) Authenticate(ctx context.Context) error      { return nil }
func (f *fakeProvider) List(ctx context.Context) ([]model.FileEntry, error) {
	return nil, nil
}

func (f *fakeProvider) Get(ctx context.Context, remoteName string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[remoteName]
	if !ok {
		return nil, &providers.NotFoundError{Provider: "fake", Name: remoteName}
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (f *fakeProvider) Put(ctx context.Context, remoteName string, data io.Reader, size int64) error {
	if f.failOn != "" && remoteName == f.failOn {
		return &providers.WireError{Provider: "fake", StatusCode: 500}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[remoteName] = b
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) Delete(ctx context.Context, remoteName string) error {
	f.mu.Lock()
	delete(f.objects, remoteName)
	f.mu.Unlock()
	return nil
}

func TestExecutor_LocalToRemote(t *testing.T) {
	dir := t.TempDir()
	store := localstore.New(dir, nil, nil)
	require.NoError(t, store.Write("a.md", strings.NewReader("hello"), time.Time{}))

	prov := newFakeProvider()
	codec := pathcodec.New(pathcodec.S3, "vault")
	ex := New(prov, store, codec, nil, nil)

	plan := []model.Scenario{{Local: &model.FileEntry{Name: "a.md", Size: 5}, Rule: model.RuleLocalToRemote}}
	tracker, err := ex.Run(context.Background(), plan, NewAbortFlag())
	require.NoError(t, err)
	require.Equal(t, [2]int{1, 1}, tracker.Summary()[model.RuleLocalToRemote])
	require.Len(t, prov.objects, 1)
}

func TestExecutor_RemoteToLocal(t *testing.T) {
	dir := t.TempDir()
	store := localstore.New(dir, nil, nil)
	prov := newFakeProvider()
	prov.objects["vault/b.md"] = []byte("world")
	codec := pathcodec.New(pathcodec.S3, "vault")
	ex := New(prov, store, codec, nil, nil)

	plan := []model.Scenario{{Remote: &model.FileEntry{Name: "b.md", RemoteName: "vault/b.md"}, Rule: model.RuleRemoteToLocal}}
	_, err := ex.Run(context.Background(), plan, NewAbortFlag())
	require.NoError(t, err)

	rc, err := store.Read("b.md")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	require.Equal(t, "world", string(body))
}

func TestExecutor_DeleteLocalAndRemote(t *testing.T) {
	dir := t.TempDir()
	store := localstore.New(dir, nil, nil)
	require.NoError(t, store.Write("local-only.md", strings.NewReader("x"), time.Time{}))
	prov := newFakeProvider()
	prov.objects["vault/remote-only.md"] = []byte("y")
	codec := pathcodec.New(pathcodec.S3, "vault")
	ex := New(prov, store, codec, nil, nil)

	plan := []model.Scenario{
		{Local: &model.FileEntry{Name: "local-only.md"}, Rule: model.RuleDeleteLocal},
		{Remote: &model.FileEntry{Name: "remote-only.md", RemoteName: "vault/remote-only.md"}, Rule: model.RuleDeleteRemote},
	}
	_, err := ex.Run(context.Background(), plan, NewAbortFlag())
	require.NoError(t, err)

	_, err = store.Stat("local-only.md")
	require.Error(t, err)
	require.Empty(t, prov.objects)
}

func TestExecutor_AbortsBeforeFirstScenario(t *testing.T) {
	dir := t.TempDir()
	store := localstore.New(dir, nil, nil)
	prov := newFakeProvider()
	codec := pathcodec.New(pathcodec.S3, "vault")
	ex := New(prov, store, codec, nil, nil)

	abort := NewAbortFlag()
	abort.Cancel()

	plan := []model.Scenario{{Local: &model.FileEntry{Name: "a.md"}, Rule: model.RuleLocalToRemote}}
	_, err := ex.Run(context.Background(), plan, abort)
	require.Error(t, err)
	var cancelled *providers.CancelledError
	require.ErrorAs(t, err, &cancelled)
}

func TestExecutor_FirstErrorAbortsRemainingScenarios(t *testing.T) {
	dir := t.TempDir()
	store := localstore.New(dir, nil, nil)
	require.NoError(t, store.Write("a.md", strings.NewReader("1"), time.Time{}))
	require.NoError(t, store.Write("b.md", strings.NewReader("2"), time.Time{}))

	prov := newFakeProvider()
	codec := pathcodec.New(pathcodec.S3, "vault")
	prov.failOn = codec.LocalToRemote("a.md")
	ex := New(prov, store, codec, nil, nil)

	plan := []model.Scenario{
		{Local: &model.FileEntry{Name: "a.md"}, Rule: model.RuleLocalToRemote},
		{Local: &model.FileEntry{Name: "b.md"}, Rule: model.RuleLocalToRemote},
	}
	_, err := ex.Run(context.Background(), plan, NewAbortFlag())
	require.Error(t, err)
	require.Empty(t, prov.objects)
}
