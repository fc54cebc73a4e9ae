package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// AzureSAS mints account-level Shared-Key SAS tokens and caches the
// result for the process lifetime, refreshing on demand (§4.2: "cache
// for the process lifetime and refresh on 403").
type AzureSAS struct {
	Account string
	Key     string // base64-encoded account key

	mu      sync.Mutex
	cached  string
	expires time.Time
}

// Token returns a cached SAS query string, minting a fresh one if
// none is cached or the cached one has expired.
func (a *AzureSAS) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached != "" && time.Now().Before(a.expires) {
		return a.cached, nil
	}
	return a.mintLocked()
}

// Refresh discards the cached token and mints a new one, for use
// when a request comes back 403.
func (a *AzureSAS) Refresh() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mintLocked()
}

func (a *AzureSAS) mintLocked() (string, error) {
	key, err := base64.StdEncoding.DecodeString(a.Key)
	if err != nil {
		return "", fmt.Errorf("configuration error: invalid azure account key: %w", err)
	}

	now := time.Now().UTC()
	start := now.Add(-5 * time.Minute) // clock-skew slack
	expiry := now.Add(1 * time.Hour)

	const (
		signedPermissions = "racwdl" // read, add, create, write, delete, list
		signedServices    = "b"      // blob
		signedResourceTyp = "sco"    // service, container, object
		signedProtocol    = "https"
		version           = "2021-08-06"
	)

	startStr := start.Format("2006-01-02T15:04:05Z")
	expiryStr := expiry.Format("2006-01-02T15:04:05Z")

	stringToSign := strings.Join([]string{
		a.Account,
		signedPermissions,
		signedServices,
		signedResourceTyp,
		startStr,
		expiryStr,
		"", // signed IP
		signedProtocol,
		version,
		"", // signed encryption scope
	}, "\n") + "\n"

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	q := url.Values{}
	q.Set("sv", version)
	q.Set("ss", signedServices)
	q.Set("srt", signedResourceTyp)
	q.Set("sp", signedPermissions)
	q.Set("se", expiryStr)
	q.Set("st", startStr)
	q.Set("spr", signedProtocol)
	q.Set("sig", signature)

	token := q.Encode()
	a.cached = token
	a.expires = expiry
	return token, nil
}
