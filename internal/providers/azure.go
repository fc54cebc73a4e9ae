package providers

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cloudsync/cloudsync/internal/logger"
	"github.com/cloudsync/cloudsync/internal/model"
	"github.com/cloudsync/cloudsync/internal/pathcodec"
	"github.com/cloudsync/cloudsync/internal/signer"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AzureClient implements Client over raw HTTPS + account-level SAS,
// per §4.2 and §6.
type AzureClient struct {
	account   string
	container string
	codec     *pathcodec.Codec
	sas       *signer.AzureSAS
	retry     *RetryPolicy
	limiter   *rate.Limiter
	http      *http.Client
	logger    *zap.Logger
}

// NewAzureClient builds an AzureClient for account/container, minting
// SAS tokens from accountKey.
func NewAzureClient(account, container, accountKey, vaultFolderName string, log *zap.Logger) *AzureClient {
	if log == nil {
		log = logger.Nop()
	}
	return &AzureClient{
		account:   account,
		container: container,
		codec:     pathcodec.New(pathcodec.Azure, vaultFolderName),
		sas:       &signer.AzureSAS{Account: account, Key: accountKey},
		retry:     DefaultRetryPolicy(log),
		limiter:   rate.NewLimiter(rate.Limit(20), 20),
		http:      &http.Client{Timeout: RequestTimeout},
		logger:    log,
	}
}

func (c *AzureClient) Name() string { return "azure" }

func (c *AzureClient) baseURL() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s", c.account, c.container)
}

// Authenticate probes the container; a 404 is turned into an
// explicit "container will be created" non-error per §4.5. The
// container is not created here: the Orchestrator calls
// EnsureContainer after Authenticate, before listing.
func (c *AzureClient) Authenticate(ctx context.Context) error {
	_, err := c.List(ctx)
	var nf *NotFoundError
	if err != nil {
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}
	return nil
}

func (c *AzureClient) List(ctx context.Context) ([]model.FileEntry, error) {
	var entries []model.FileEntry
	marker := ""
	for {
		page, next, err := c.listPage(ctx, marker)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if next == "" {
			break
		}
		marker = next
	}
	if len(entries) == 0 {
		// Empty listing under the vault prefix: the sole authoritative
		// first-run-against-fresh-remote signal (§4.5).
		c.logger.Debug("empty azure listing under prefix", logger.Provider("azure"))
	}
	return entries, nil
}

func (c *AzureClient) listPage(ctx context.Context, marker string) ([]model.FileEntry, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	var result azureEnumerationResults
	var status int
	err := c.retry.Execute(ctx, "azure", func() error {
		sas, err := c.sas.Token()
		if err != nil {
			return err
		}
		q, _ := url.ParseQuery(sas)
		q.Set("restype", "container")
		q.Set("comp", "list")
		q.Set("prefix", string(c.codec.Prefix())+"/")
		if marker != "" {
			q.Set("marker", marker)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		resp, body, rerr := c.do(req)
		if rerr != nil {
			return rerr
		}
		status = resp.StatusCode
		if status == http.StatusNotFound {
			return &NotFoundError{Provider: "azure", Name: c.container}
		}
		if status != http.StatusOK {
			return c.wireError(status, body)
		}
		return xml.Unmarshal(body, &result)
	})
	if err != nil {
		return nil, "", err
	}

	entries := make([]model.FileEntry, 0, len(result.Blobs.Blob))
	for _, b := range result.Blobs.Blob {
		lastMod, ok := parseTimeOrNow(b.Properties.LastModified)
		if !ok {
			c.logger.Debug("invalid blob Last-Modified, using now",
				logger.Provider("azure"), logger.Path(b.Name), zap.String("value", b.Properties.LastModified))
		}
		entries = append(entries, model.FileEntry{
			Name:         c.codec.RemoteToLocal(b.Name),
			RemoteName:   b.Name,
			LastModified: lastMod,
			Size:         b.Properties.ContentLen,
			MD5:          azureMD5ToHex(b.Properties.ContentMD5),
		})
	}
	return entries, result.NextMarker, nil
}

// EnsureContainer creates the container, treating 409 AlreadyExists
// as success. The Orchestrator calls it on every run, right after
// Authenticate and before listing.
func (c *AzureClient) EnsureContainer(ctx context.Context) error {
	return c.retry.Execute(ctx, "azure", func() error {
		sas, err := c.sas.Token()
		if err != nil {
			return err
		}
		q, _ := url.ParseQuery(sas)
		q.Set("restype", "container")
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL()+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		resp, body, rerr := c.do(req)
		if rerr != nil {
			return rerr
		}
		// 201 Created or 409 AlreadyExists are both fine.
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
			return c.wireError(resp.StatusCode, body)
		}
		return nil
	})
}

func (c *AzureClient) Get(ctx context.Context, remoteName string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body io.ReadCloser
	err := c.retry.Execute(ctx, "azure", func() error {
		sas, err := c.sas.Token()
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/"+remoteName+"?"+sas, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpRaw(req)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return &NotFoundError{Provider: "azure", Name: remoteName}
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return c.wireError(resp.StatusCode, b)
		}
		body = resp.Body
		return nil
	})
	return body, err
}

func (c *AzureClient) Put(ctx context.Context, remoteName string, data io.Reader, size int64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	return c.retry.Execute(ctx, "azure", func() error {
		sas, serr := c.sas.Token()
		if serr != nil {
			return serr
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL()+"/"+remoteName+"?"+sas, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("x-ms-blob-type", "BlockBlob")
		req.ContentLength = int64(len(buf))
		resp, body, rerr := c.do(req)
		if rerr != nil {
			return rerr
		}
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return c.wireError(resp.StatusCode, body)
		}
		return nil
	})
}

func (c *AzureClient) Delete(ctx context.Context, remoteName string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.retry.Execute(ctx, "azure", func() error {
		sas, err := c.sas.Token()
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL()+"/"+remoteName+"?"+sas, nil)
		if err != nil {
			return err
		}
		resp, body, rerr := c.do(req)
		if rerr != nil {
			return rerr
		}
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			return c.wireError(resp.StatusCode, body)
		}
		return nil
	})
}

func (c *AzureClient) httpRaw(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Provider: "azure", Cause: err}
	}
	return resp, nil
}

func (c *AzureClient) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpRaw(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, &ConnectivityError{Provider: "azure", Cause: err}
	}
	if resp.StatusCode == http.StatusForbidden {
		// §4.2: refresh the cached SAS. The AuthError below is not
		// retried (see Retryable); later requests use the new token.
		_, _ = c.sas.Refresh()
		return resp, body, &AuthError{Provider: "azure", Cause: fmt.Errorf("sas rejected, refreshed")}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return resp, body, &RateLimitedError{Provider: "azure", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return resp, body, nil
}

func (c *AzureClient) wireError(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		code, msg := parseAPIError(body)
		return &AuthError{Provider: "azure", Cause: fmt.Errorf("%s: %s (check CORS configuration)", code, msg)}
	}
	code, msg := parseAPIError(body)
	return &WireError{Provider: "azure", StatusCode: status, Code: code, Detail: msg}
}
