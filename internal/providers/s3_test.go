package providers

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeS3Server is a minimal in-memory S3 stand-in: enough of
// list-type=2 pagination and object PUT/GET/DELETE to exercise
// S3Client without hitting a real bucket.
type fakeS3Server struct {
	mu      sync.Mutex
	objects map[string][]byte
	pageSize int
}

func newFakeS3Server(pageSize int) *fakeS3Server {
	return &fakeS3Server{objects: map[string][]byte{}, pageSize: pageSize}
}

func (f *fakeS3Server) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("list-type") == "2" {
				f.serveList(w, r)
				return
			}
			key := r.URL.Path[1:]
			body, ok := f.objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(body)
		case http.MethodPut:
			key := r.URL.Path[1:]
			body, _ := io.ReadAll(r.Body)
			f.objects[key] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			key := r.URL.Path[1:]
			delete(f.objects, key)
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func (f *fakeS3Server) serveList(w http.ResponseWriter, r *http.Request) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	token := r.URL.Query().Get("continuation-token")
	start := 0
	if token != "" {
		fmt.Sscanf(token, "%d", &start)
	}
	end := start + f.pageSize
	truncated := end < len(keys)
	if end > len(keys) {
		end = len(keys)
	}

	var b []byte
	b = append(b, []byte(`<ListBucketResult>`)...)
	for _, k := range keys[start:end] {
		sum := md5.Sum(f.objects[k])
		b = append(b, []byte(fmt.Sprintf(
			`<Contents><Key>%s</Key><Size>%d</Size><ETag>"%s"</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>`,
			k, len(f.objects[k]), hex.EncodeToString(sum[:])))...)
	}
	if truncated {
		b = append(b, []byte(fmt.Sprintf(`<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>`, end))...)
	} else {
		b = append(b, []byte(`<IsTruncated>false</IsTruncated>`)...)
	}
	b = append(b, []byte(`</ListBucketResult>`)...)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func TestS3Client_PutGetDeleteRoundTrip(t *testing.T) {
	fake := newFakeS3Server(1000)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := NewS3Client("b", "us-east-1", "ak", "sk", srv.URL, "notes", nil)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "notes/a.md", io.NopCloser(strReader("hello")), 5))

	rc, err := c.Get(ctx, "notes/a.md")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	require.Equal(t, "hello", string(body))

	require.NoError(t, c.Delete(ctx, "notes/a.md"))

	_, err = c.Get(ctx, "notes/a.md")
	require.Error(t, err)
}

func TestS3Client_ListPaginationLoopsOverAllPages(t *testing.T) {
	fake := newFakeS3Server(2)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := NewS3Client("b", "us-east-1", "ak", "sk", srv.URL, "notes", nil)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, c.Put(ctx, fmt.Sprintf("notes/f%d.md", i), io.NopCloser(strReader("x")), 1))
	}

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 7)
}

func TestS3Client_EmptyListing(t *testing.T) {
	fake := newFakeS3Server(1000)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := NewS3Client("b", "us-east-1", "ak", "sk", srv.URL, "notes", nil)
	entries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

type strReader string

func (s strReader) Read(p []byte) (int, error) {
	n := copy(p, s)
	if n < len(s) {
		return n, nil
	}
	return n, io.EOF
}
