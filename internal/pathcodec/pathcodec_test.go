package pathcodec

import (
	"testing"

	"github.com/cloudsync/cloudsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_S3(t *testing.T) {
	c := New(S3, "My Notes Vault")
	names := []string{
		"a.md",
		"folder/sub folder/file name.md",
		"unicode/café.md",
		"dots/../escape.md",
		"weird+plus.md",
	}
	for _, n := range names {
		remote := c.LocalToRemote(n)
		got := c.RemoteToLocal(remote)
		assert.Equal(t, n, got, "round trip for %q via %q", n, remote)
	}
}

func TestRoundTrip_Azure(t *testing.T) {
	c := New(Azure, "My Notes Vault")
	names := []string{"a.md", "folder/sub folder/file.md"}
	for _, n := range names {
		remote := c.LocalToRemote(n)
		got := c.RemoteToLocal(remote)
		assert.Equal(t, n, got)
	}
}

func TestRoundTrip_GCS(t *testing.T) {
	c := New(GCS, "My Notes Vault")
	names := []string{"a.md", "folder/sub folder/file.md"}
	for _, n := range names {
		remote := c.LocalToRemote(n)
		got := c.RemoteToLocal(remote)
		assert.Equal(t, n, got)
	}
}

func TestS3PreservesAlreadyEncodedTriples(t *testing.T) {
	c := New(S3, "vault")
	remote := c.LocalToRemote("already%20encoded.md")
	require.Contains(t, remote, "%20encoded.md")
	assert.NotContains(t, remote, "%2520")
}

func TestAzureContainerNameNormalization(t *testing.T) {
	require.Equal(t, model.VaultPrefix("abx"), derivePrefix(Azure, "AB"))
	longName := ""
	for i := 0; i < 100; i++ {
		longName += "a"
	}
	p := derivePrefix(Azure, longName)
	assert.LessOrEqual(t, len(p), 63)
	assert.GreaterOrEqual(t, len(p), 3)
}

func TestXMLNumericEntityDecoding(t *testing.T) {
	c := New(S3, "vault")
	decoded := c.RemoteToLocal("vault/file&#x20;name.md")
	assert.Equal(t, "file name.md", decoded)
}
