// Package orchestrator ties LocalStore, the per-provider Clients,
// Cache, Reconciler, and Executor together into the three host
// operations the embedding app calls: TestConnectivity, RunSync, and
// Cancel.
//
// Grounded on internal/engine/engine.go's per-tenant job fan-out
// (goroutine per unit of work, shared cancellation, result
// aggregation), generalized here from per-tenant jobs to
// per-provider sync runs sharing one vault-wide local store.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudsync/cloudsync/internal/cache"
	"github.com/cloudsync/cloudsync/internal/config"
	"github.com/cloudsync/cloudsync/internal/diag"
	"github.com/cloudsync/cloudsync/internal/executor"
	"github.com/cloudsync/cloudsync/internal/localstore"
	"github.com/cloudsync/cloudsync/internal/pathcodec"
	"github.com/cloudsync/cloudsync/internal/providers"
	"github.com/cloudsync/cloudsync/internal/reconciler"
	"go.uber.org/zap"
)

// ProviderResult is one provider's outcome from a RunSync call.
type ProviderResult struct {
	Provider string
	Err      error
	Summary  map[string][2]int
}

// Orchestrator owns one vault's sync lifecycle across its configured
// providers.
type Orchestrator struct {
	vaultRoot string
	settings  *config.Settings
	local     *localstore.Store
	logger    *zap.Logger

	abort   *executor.AbortFlag
	metrics *diag.Metrics
	diag    *diag.Server

	// writeMu is the vault-wide mutex serializing LocalStore writes
	// across concurrently-running per-provider goroutines (§5).
	writeMu sync.Mutex
}

// New builds an Orchestrator rooted at vaultRoot with settings
// already validated by the caller (config.Settings.Validate).
func New(vaultRoot string, settings *config.Settings, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	// cloudsync-*.json cache files live inside the vault root (§4.6)
	// but are never themselves sync content — always ignored,
	// independent of the host's configured sync_ignore list.
	ignore := append([]string{"cloudsync-*.json", ".cloudsync-cache-tmp-*", ".cloudsync-tmp-*"}, settings.SyncIgnore...)
	local := localstore.New(vaultRoot, ignore, log)

	var enabled []string
	for name, p := range settings.Providers {
		if p.Enabled {
			enabled = append(enabled, name)
		}
	}

	o := &Orchestrator{
		vaultRoot: vaultRoot,
		settings:  settings,
		local:     local,
		logger:    log,
		abort:     executor.NewAbortFlag(),
		metrics:   diag.NewMetrics(),
	}
	o.diag = diag.New(enabled, o, o.metrics)
	return o
}

// Diag returns the local-only health/metrics HTTP surface for this
// Orchestrator, ready to mount on an http.Server.
func (o *Orchestrator) Diag() *diag.Server {
	return o.diag
}

// vaultFolderName returns the string fed to per-provider vault-prefix
// derivation: the override if set, else the vault root's base name.
func (o *Orchestrator) vaultFolderName() string {
	if o.settings.CloudVaultOverride != "" {
		return o.settings.CloudVaultOverride
	}
	return baseName(o.vaultRoot)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// buildClient constructs the provider Client for name from settings,
// returning a ConfigurationError if the provider kind is unknown.
func (o *Orchestrator) buildClient(name string) (providers.Client, *pathcodec.Codec, error) {
	p, ok := o.settings.Providers[name]
	if !ok || !p.Enabled {
		return nil, nil, fmt.Errorf("provider %s is not enabled", name)
	}
	folder := o.vaultFolderName()

	switch name {
	case "s3":
		codec := pathcodec.New(pathcodec.S3, folder)
		client := providers.NewS3Client(p.Bucket, p.Region, p.Credentials.AccessKey, p.Credentials.SecretKey, p.Endpoint, folder, o.logger)
		return client, codec, nil
	case "azure":
		codec := pathcodec.New(pathcodec.Azure, folder)
		client := providers.NewAzureClient(p.Credentials.AzureAccount, p.Container, p.Credentials.AzureKey, folder, o.logger)
		return client, codec, nil
	case "gcs":
		codec := pathcodec.New(pathcodec.GCS, folder)
		client, err := providers.NewGCSClient(p.Bucket, p.Credentials.GCSServiceAccountJSON, folder, o.logger)
		if err != nil {
			return nil, nil, err
		}
		return client, codec, nil
	default:
		return nil, nil, &providers.ConfigurationError{Provider: name, Cause: fmt.Errorf("unknown provider kind %q", name)}
	}
}

// TestConnectivity authenticates against provider without running a
// sync, surfacing whatever AuthError/ConfigurationError/
// ConnectivityError the attempt produces.
func (o *Orchestrator) TestConnectivity(ctx context.Context, provider string) error {
	client, _, err := o.buildClient(provider)
	if err != nil {
		return err
	}
	return client.Authenticate(ctx)
}

// Cancel fires the shared abort flag; in-flight requests are allowed
// to complete, their results discarded (§5).
func (o *Orchestrator) Cancel() {
	o.abort.Cancel()
}

// RunSync runs every enabled provider's sync lifecycle — authenticate,
// list, reconcile, execute, commit — fanned out one goroutine per
// provider, returning each provider's outcome independently: one
// provider's failure never aborts another (§7 propagation policy).
func (o *Orchestrator) RunSync(ctx context.Context) []ProviderResult {
	var names []string
	for name, p := range o.settings.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}

	results := make([]ProviderResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = o.runProvider(ctx, name)
		}(i, name)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runProvider(ctx context.Context, name string) ProviderResult {
	result := ProviderResult{Provider: name}

	client, codec, err := o.buildClient(name)
	if err != nil {
		result.Err = err
		return result
	}

	if err := client.Authenticate(ctx); err != nil {
		result.Err = err
		return result
	}

	// Azure's Authenticate turns a missing-container 404 into a
	// non-error (§4.5); the container still has to exist before the
	// listing/execute steps below, so create it here — a no-op 409
	// when it's already present.
	if az, ok := client.(*providers.AzureClient); ok {
		if err := az.EnsureContainer(ctx); err != nil {
			result.Err = err
			return result
		}
	}

	o.writeMu.Lock()
	localEntries, err := o.local.Walk()
	o.writeMu.Unlock()
	if err != nil {
		result.Err = err
		return result
	}

	remoteEntries, err := client.List(ctx)
	if err != nil {
		result.Err = err
		return result
	}

	cacheStore := cache.New(o.vaultRoot, name)
	cacheRecord, err := cacheStore.Load()
	if err != nil {
		result.Err = err
		return result
	}

	// An empty remote listing under a non-empty cache is the "new
	// prefix detected" signal (§4.5): clear the stale cache so the
	// Reconciler doesn't plan deletes against objects that were never
	// truly synced to this prefix.
	if len(remoteEntries) == 0 && len(cacheRecord.Entries) > 0 {
		o.logger.Info("empty remote listing with non-empty cache, clearing cache",
			zap.String("provider", name))
		if err := cacheStore.Clear(); err != nil {
			result.Err = err
			return result
		}
		cacheRecord = nil
	}

	plan := reconciler.Reconcile(localEntries, remoteEntries, cacheRecord)

	ex := executor.New(client, o.local, codec, o.logger, o.metrics)

	start := time.Now()
	o.writeMu.Lock()
	tracker, err := ex.Run(ctx, plan, o.abort)
	o.writeMu.Unlock()
	o.metrics.SyncDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	result.Summary = summarize(tracker)
	if err != nil {
		result.Err = err
		o.diag.RecordSync(name, time.Now(), err)
		return result
	}

	postSyncRemote, err := client.List(ctx)
	if err != nil {
		result.Err = err
		o.diag.RecordSync(name, time.Now(), err)
		return result
	}
	if err := executor.CommitCache(cacheStore, postSyncRemote); err != nil {
		result.Err = err
		o.diag.RecordSync(name, time.Now(), err)
		return result
	}

	o.diag.RecordSync(name, time.Now(), nil)
	return result
}

func summarize(tracker *executor.ProgressTracker) map[string][2]int {
	if tracker == nil {
		return nil
	}
	out := map[string][2]int{}
	for rule, counts := range tracker.Summary() {
		out[string(rule)] = counts
	}
	return out
}
