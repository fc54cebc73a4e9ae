// Package config defines the settings schema passed into the core
// from the embedding host (§6): per-provider credentials and
// container/bucket/region, plus ignore rules, log level, and an
// optional vault-name override. The core never reads environment
// variables — credentials flow through this struct only.
package config

import "fmt"

// Settings is the full settings struct a host constructs (directly,
// or by loading the YAML schema below via Load) and passes into
// orchestrator.New.
type Settings struct {
	Providers map[string]ProviderSettings `yaml:"providers"`

	// SyncIgnore is a set of literal path-component names skipped
	// during the LocalStore walk (e.g. ".git", ".obsidian").
	SyncIgnore []string `yaml:"sync_ignore"`

	LogLevel string `yaml:"log_level" default:"info"`

	// CloudVaultOverride replaces the vault folder's own name as the
	// input to per-provider vault-prefix derivation, letting a host
	// point two different local folders at the same remote prefix.
	CloudVaultOverride string `yaml:"cloud_vault_override"`
}

// ProviderSettings is the per-provider block named in §6.
type ProviderSettings struct {
	Enabled bool `yaml:"enabled"`

	// Credentials holds provider-specific secrets: S3 access/secret
	// key pair, Azure account name/key, or GCS service-account JSON.
	Credentials Credentials `yaml:"credentials"`

	// Bucket names an S3/GCS bucket; Container names an Azure
	// container. Exactly one is meaningful per provider kind.
	Bucket    string `yaml:"bucket"`
	Container string `yaml:"container"`
	Region    string `yaml:"region"`

	// Endpoint overrides the provider's default host, for
	// S3-compatible services that are not AWS itself.
	Endpoint string `yaml:"endpoint"`
}

// Credentials is a union of the three providers' credential shapes.
// Only the fields relevant to the provider kind in use are read.
type Credentials struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	AzureAccount string `yaml:"azure_account"`
	AzureKey     string `yaml:"azure_key"`

	GCSServiceAccountJSON string `yaml:"gcs_service_account_json"`
}

// Validate checks that every enabled provider carries the
// credentials and container identifier its kind requires, returning
// a plain error (not a providers.ConfigurationError) describing the
// first problem found.
func (s Settings) Validate() error {
	for name, p := range s.Providers {
		if !p.Enabled {
			continue
		}
		switch name {
		case "s3", "gcs":
			if p.Bucket == "" {
				return fmt.Errorf("provider %s: bucket is required", name)
			}
		case "azure":
			if p.Container == "" {
				return fmt.Errorf("provider %s: container is required", name)
			}
		}
		if err := p.Credentials.validateFor(name); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
	}
	return nil
}

func (c Credentials) validateFor(provider string) error {
	switch provider {
	case "s3":
		if c.AccessKey == "" || c.SecretKey == "" {
			return fmt.Errorf("access_key and secret_key are required")
		}
	case "azure":
		if c.AzureAccount == "" || c.AzureKey == "" {
			return fmt.Errorf("azure_account and azure_key are required")
		}
	case "gcs":
		if c.GCSServiceAccountJSON == "" {
			return fmt.Errorf("gcs_service_account_json is required")
		}
	}
	return nil
}
