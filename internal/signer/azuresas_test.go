package signer

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestAzureSAS_Token(t *testing.T) {
	a := &AzureSAS{Account: "myvault", Key: testKey()}
	token, err := a.Token()
	require.NoError(t, err)

	q, err := url.ParseQuery(token)
	require.NoError(t, err)
	require.Equal(t, "2021-08-06", q.Get("sv"))
	require.Equal(t, "racwdl", q.Get("sp"))
	require.Equal(t, "https", q.Get("spr"))
	require.NotEmpty(t, q.Get("sig"))
}

func TestAzureSAS_Caches(t *testing.T) {
	a := &AzureSAS{Account: "myvault", Key: testKey()}
	first, err := a.Token()
	require.NoError(t, err)
	second, err := a.Token()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAzureSAS_RefreshMintsNewToken(t *testing.T) {
	a := &AzureSAS{Account: "myvault", Key: testKey()}
	_, err := a.Token()
	require.NoError(t, err)
	refreshed, err := a.Refresh()
	require.NoError(t, err)
	require.NotEmpty(t, refreshed)
}

func TestAzureSAS_InvalidKey(t *testing.T) {
	a := &AzureSAS{Account: "myvault", Key: "not-base64!!"}
	_, err := a.Token()
	require.Error(t, err)
}
