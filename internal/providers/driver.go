// Package providers implements the uniform {list, get, put, delete}
// contract over S3, Azure Blob, and GCS, sharing a retry policy and
// XML listing parser across the three wire protocols.
//
// Grounded on internal/drivers/driver.go's Driver interface shape and
// internal/drivers/retry.go's RetryPolicy, generalized from a generic
// multi-backend storage interface to the three cloud providers this
// spec names, with an added Authenticate step and the §7 error
// taxonomy.
package providers

import (
	"context"
	"io"
	"time"

	"github.com/cloudsync/cloudsync/internal/model"
)

// Client is the contract every provider implementation satisfies.
type Client interface {
	// Name identifies the provider in logs and error wrapping:
	// "s3", "azure", or "gcs".
	Name() string

	// Authenticate verifies the configured credentials work by
	// probing the remote, returning the probe's error otherwise
	// (e.g. AuthError on 401/403, ConnectivityError, WireError).
	Authenticate(ctx context.Context) error

	// List returns every object under the vault prefix as
	// FileEntry values with RemoteName, MD5 (when the provider
	// supplies it), Size and LastModified populated.
	List(ctx context.Context) ([]model.FileEntry, error)

	Get(ctx context.Context, remoteName string) (io.ReadCloser, error)
	Put(ctx context.Context, remoteName string, data io.Reader, size int64) error
	Delete(ctx context.Context, remoteName string) error
}

// RequestTimeout is the per-request timeout named in §5; transient
// timeouts are retried like any other transient error.
const RequestTimeout = 30 * time.Second
