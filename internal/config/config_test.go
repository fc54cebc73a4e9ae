package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_MissingBucket(t *testing.T) {
	s := Settings{Providers: map[string]ProviderSettings{
		"s3": {
			Enabled:     true,
			Credentials: Credentials{AccessKey: "ak", SecretKey: "sk"},
		},
	}}
	require.Error(t, s.Validate())
}

func TestValidate_MissingAzureCredentials(t *testing.T) {
	s := Settings{Providers: map[string]ProviderSettings{
		"azure": {
			Enabled:   true,
			Container: "notes",
		},
	}}
	require.Error(t, s.Validate())
}

func TestValidate_DisabledProviderSkipped(t *testing.T) {
	s := Settings{Providers: map[string]ProviderSettings{
		"gcs": {Enabled: false},
	}}
	require.NoError(t, s.Validate())
}

func TestValidate_CompleteS3Passes(t *testing.T) {
	s := Settings{Providers: map[string]ProviderSettings{
		"s3": {
			Enabled:     true,
			Bucket:      "b",
			Region:      "us-east-1",
			Credentials: Credentials{AccessKey: "ak", SecretKey: "sk"},
		},
	}}
	require.NoError(t, s.Validate())
}

func TestLoad_DefaultsLogLevel(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(p, []byte("providers: {}\n"), 0o600))

	s, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "info", s.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
