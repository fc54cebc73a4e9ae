package providers

import (
	"bytes"
	"context"
	"encoding/xml"
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

// S3Client implements Client over raw HTTPS + hand-signed SigV4
// requests, per §4.2 and §6.
//
// Grounded on internal/drivers/s3.go's struct shape, replacing the
// AWS SDK client with the hand-rolled signer (see SPEC_FULL.md DOMAIN
// STACK for why) and adding the list/pagination/empty-prefix-clear
// behavior §4.5 requires.
type S3Client struct {
	bucket   string
	prefix   model.VaultPrefix
	endpoint string // empty uses the default AWS path-style endpoint
	codec    *pathcodec.Codec
	signer   *signer.SigV4
	retry    *RetryPolicy
	limiter  *rate.Limiter
	http     *http.Client
	logger   *zap.Logger
}

// NewS3Client builds an S3Client for bucket under region, signing
// with accessKey/secretKey. endpoint overrides the default
// "https://s3.{region}.amazonaws.com/{bucket}" base URL for
// S3-compatible services; object keys are appended to it as the path.
func NewS3Client(bucket, region, accessKey, secretKey, endpoint, vaultFolderName string, log *zap.Logger) *S3Client {
	if log == nil {
		log = logger.Nop()
	}
	return &S3Client{
		bucket:   bucket,
		endpoint: endpoint,
		codec:    pathcodec.New(pathcodec.S3, vaultFolderName),
		signer:   signer.New(accessKey, secretKey, region),
		retry:    DefaultRetryPolicy(log),
		limiter:  rate.NewLimiter(rate.Limit(20), 20),
		http:     &http.Client{Timeout: RequestTimeout},
		logger:   log,
	}
}

func (c *S3Client) Name() string { return "s3" }

func (c *S3Client) baseURL() string {
	if c.endpoint != "" {
		return c.endpoint
	}
	return fmt.Sprintf("https://s3.%s.amazonaws.com/%s", c.signer.Region, c.bucket)
}

func (c *S3Client) Authenticate(ctx context.Context) error {
	_, err := c.List(ctx)
	return err
}

// List loops NextContinuationToken until the listing is exhausted
// (§6/§9: pagination is not optional once ≥1000 objects are
// possible), returning a cache-clear signal to the caller via an
// empty slice + nil error when the prefix is genuinely empty.
func (c *S3Client) List(ctx context.Context) ([]model.FileEntry, error) {
	var entries []model.FileEntry
	token := ""
	for {
		page, next, truncated, err := c.listPage(ctx, token)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if !truncated || next == "" {
			break
		}
		token = next
	}
	return entries, nil
}

func (c *S3Client) listPage(ctx context.Context, continuationToken string) ([]model.FileEntry, string, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", false, err
	}

	var result s3ListBucketResult
	err := c.retry.Execute(ctx, "s3", func() error {
		q := url.Values{}
		q.Set("list-type", "2")
		q.Set("prefix", string(c.codec.Prefix())+"/")
		if continuationToken != "" {
			q.Set("continuation-token", continuationToken)
		}

		req, err := c.newRequest(ctx, http.MethodGet, "/", q, nil)
		if err != nil {
			return err
		}
		resp, body, err := c.do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return c.wireError(resp.StatusCode, body)
		}
		return xml.Unmarshal(body, &result)
	})
	if err != nil {
		return nil, "", false, err
	}

	entries := make([]model.FileEntry, 0, len(result.Contents))
	for _, obj := range result.Contents {
		entries = append(entries, model.FileEntry{
			Name:         c.codec.RemoteToLocal(obj.Key),
			RemoteName:   obj.Key,
			LastModified: obj.LastModified,
			Size:         obj.Size,
			MD5:          etagToMD5(obj.ETag),
		})
	}
	return entries, result.NextContinuationToken, result.IsTruncated, nil
}

func (c *S3Client) Get(ctx context.Context, remoteName string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body io.ReadCloser
	err := c.retry.Execute(ctx, "s3", func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/"+remoteName, nil, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpRaw(req)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return &NotFoundError{Provider: "s3", Name: remoteName}
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusMovedPermanently {
				c.applyRegionRedirect(resp, b)
			}
			return c.wireError(resp.StatusCode, b)
		}
		body = resp.Body
		return nil
	})
	return body, err
}

func (c *S3Client) Put(ctx context.Context, remoteName string, data io.Reader, size int64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	return c.retry.Execute(ctx, "s3", func() error {
		req, err := c.newRequest(ctx, http.MethodPut, "/"+remoteName, nil, buf)
		if err != nil {
			return err
		}
		resp, body, err := c.do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return c.wireError(resp.StatusCode, body)
		}
		return nil
	})
}

func (c *S3Client) Delete(ctx context.Context, remoteName string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.retry.Execute(ctx, "s3", func() error {
		req, err := c.newRequest(ctx, http.MethodDelete, "/"+remoteName, nil, nil)
		if err != nil {
			return err
		}
		resp, body, err := c.do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
			return c.wireError(resp.StatusCode, body)
		}
		return nil
	})
}

func (c *S3Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	u, err := url.Parse(c.baseURL() + path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, err
	}
	req.Host = u.Host

	payloadHash := signer.PayloadHash(body)
	if err := c.signer.Sign(req, payloadHash); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *S3Client) httpRaw(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Provider: "s3", Cause: err}
	}
	return resp, nil
}

func (c *S3Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpRaw(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, &ConnectivityError{Provider: "s3", Cause: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return resp, body, &RateLimitedError{Provider: "s3", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusMovedPermanently {
		c.applyRegionRedirect(resp, body)
	}
	return resp, body, nil
}

// applyRegionRedirect reads the x-amz-bucket-region header (or, failing
// that, the 301 body's <Endpoint> host) and re-points the signer at the
// bucket's actual region, per §4.2: "the Signer's enclosing client
// extracts the region and retries with re-signed requests." The caller
// still returns the 301 as a retryable WireError; the next attempt's
// newRequest call picks up the corrected region when it re-signs.
func (c *S3Client) applyRegionRedirect(resp *http.Response, body []byte) {
	headerRegion := resp.Header.Get("x-amz-bucket-region")
	endpoint := parseRedirectEndpoint(body)
	region := signer.ExtractRegion(headerRegion, endpoint)
	if region == "" || region == c.signer.Region {
		return
	}
	c.logger.Info("s3 region redirect, re-signing with discovered region",
		zap.String("old_region", c.signer.Region), zap.String("new_region", region))
	c.signer.Region = region
}

func (c *S3Client) wireError(status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		code, msg := parseAPIError(body)
		return &AuthError{Provider: "s3", Cause: fmt.Errorf("%s: %s", code, msg)}
	}
	if status == http.StatusNotFound {
		return &NotFoundError{Provider: "s3"}
	}
	code, msg := parseAPIError(body)
	return &WireError{Provider: "s3", StatusCode: status, Code: code, Detail: msg}
}
