// Package executor consumes a Reconciler plan and drives LocalStore +
// ProviderClient I/O to carry it out, one scenario at a time per
// provider, with cooperative cancellation and per-rule progress
// reporting.
//
// Grounded on internal/drivers/local.go's Transaction (sequential
// apply of queued operations, first error aborts the rest) and
// internal/engine/engine.go's run-loop shape for the abort-flag
// cancellation check, adapted from that engine's tenant-job loop to
// one provider's scenario list.
package executor

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/cloudsync/cloudsync/internal/cache"
	"github.com/cloudsync/cloudsync/internal/diag"
	"github.com/cloudsync/cloudsync/internal/localstore"
	"github.com/cloudsync/cloudsync/internal/merger"
	"github.com/cloudsync/cloudsync/internal/model"
	"github.com/cloudsync/cloudsync/internal/pathcodec"
	"github.com/cloudsync/cloudsync/internal/providers"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AbortFlag is a cooperative cancellation signal shared across all
// providers in one Orchestrator run. Cancel is safe to call
// concurrently with Aborted.
type AbortFlag struct {
	ch chan struct{}
}

// NewAbortFlag returns a flag that has not fired.
func NewAbortFlag() *AbortFlag {
	return &AbortFlag{ch: make(chan struct{})}
}

// Cancel fires the flag. Idempotent.
func (f *AbortFlag) Cancel() {
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

// Aborted reports whether Cancel has been called.
func (f *AbortFlag) Aborted() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// ProgressTracker accumulates per-rule totals and completions across
// one provider's plan, and exposes a terminal summary line.
type ProgressTracker struct {
	totals     map[model.Rule]int
	completed  map[model.Rule]int
	logger     *zap.Logger
	correlation string
}

// NewProgressTracker seeds per-rule totals from plan up front, so a
// consumer can render "3/10 LOCAL_TO_REMOTE" from the first tick.
func NewProgressTracker(plan []model.Scenario, log *zap.Logger) *ProgressTracker {
	if log == nil {
		log = zap.NewNop()
	}
	totals := make(map[model.Rule]int, len(model.AllRules))
	completed := make(map[model.Rule]int, len(model.AllRules))
	for _, r := range model.AllRules {
		totals[r] = 0
		completed[r] = 0
	}
	for _, s := range plan {
		totals[s.Rule]++
	}
	return &ProgressTracker{totals: totals, completed: completed, logger: log, correlation: uuid.NewString()}
}

// Increment records one completed scenario for rule.
func (p *ProgressTracker) Increment(rule model.Rule) {
	p.completed[rule]++
	p.logger.Debug("scenario completed",
		zap.String("correlation_id", p.correlation),
		zap.String("rule", string(rule)),
		zap.Int("completed", p.completed[rule]),
		zap.Int("total", p.totals[rule]))
}

// Summary returns the per-rule completed/total counts at the point
// a provider's plan finishes or aborts.
func (p *ProgressTracker) Summary() map[model.Rule][2]int {
	out := make(map[model.Rule][2]int, len(p.totals))
	for _, r := range model.AllRules {
		out[r] = [2]int{p.completed[r], p.totals[r]}
	}
	return out
}

// Executor drives one provider's scenario list against LocalStore and
// a provider Client.
type Executor struct {
	provider providers.Client
	local    *localstore.Store
	codec    *pathcodec.Codec
	logger   *zap.Logger
	metrics  *diag.Metrics
}

// New returns an Executor for provider backed by local, using codec to
// derive the remote key for a LOCAL_TO_REMOTE scenario that has no
// remote entry; every other remote operation uses the listing's
// RemoteName. metrics may be nil when the caller
// isn't wiring in diagnostics (e.g. in tests).
func New(provider providers.Client, local *localstore.Store, codec *pathcodec.Codec, log *zap.Logger, metrics *diag.Metrics) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{provider: provider, local: local, codec: codec, logger: log, metrics: metrics}
}

// Run executes plan sequentially, checking abort before each scenario
// and between each scenario's two I/O steps. It returns the
// ProgressTracker for the caller to inspect, and a CancelledError iff
// abort fired before the plan finished. On any scenario error, the
// remaining plan is abandoned (not rolled back) and the error is
// returned; the caller must not commit the cache in that case.
func (e *Executor) Run(ctx context.Context, plan []model.Scenario, abort *AbortFlag) (*ProgressTracker, error) {
	tracker := NewProgressTracker(plan, e.logger)

	for _, scenario := range plan {
		if abort.Aborted() {
			return tracker, &providers.CancelledError{Provider: e.provider.Name()}
		}

		if err := e.runScenario(ctx, scenario, abort); err != nil {
			e.observeFailure(scenario.Rule)
			return tracker, err
		}
		tracker.Increment(scenario.Rule)
		e.observeSuccess(scenario.Rule)
	}
	return tracker, nil
}

func (e *Executor) observeSuccess(rule model.Rule) {
	if e.metrics == nil {
		return
	}
	e.metrics.ScenariosTotal.WithLabelValues(e.provider.Name(), string(rule)).Inc()
}

func (e *Executor) observeFailure(rule model.Rule) {
	if e.metrics == nil {
		return
	}
	e.metrics.ScenarioFailures.WithLabelValues(e.provider.Name(), string(rule)).Inc()
}

func (e *Executor) runScenario(ctx context.Context, s model.Scenario, abort *AbortFlag) error {
	switch s.Rule {
	case model.RuleLocalToRemote:
		return e.localToRemote(ctx, s, abort)
	case model.RuleRemoteToLocal:
		return e.remoteToLocal(ctx, s, abort)
	case model.RuleDeleteLocal:
		return e.local.Delete(s.Local.Name)
	case model.RuleDeleteRemote:
		return e.provider.Delete(ctx, s.Remote.RemoteName)
	case model.RuleDiffMerge:
		return e.diffMerge(ctx, s, abort)
	default:
		return nil
	}
}

func (e *Executor) localToRemote(ctx context.Context, s model.Scenario, abort *AbortFlag) error {
	rc, err := e.local.Read(s.Local.Name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if abort.Aborted() {
		return &providers.CancelledError{Provider: e.provider.Name()}
	}
	return e.provider.Put(ctx, e.remoteKeyFor(s), rc, s.Local.Size)
}

// remoteKeyFor returns the remote key to address a scenario's file:
// the remote listing's exact RemoteName when one exists (preserves
// provider-specific percent-encoding byte-for-byte), else the key
// freshly derived from the local name via the codec.
func (e *Executor) remoteKeyFor(s model.Scenario) string {
	if s.Remote != nil && s.Remote.RemoteName != "" {
		return s.Remote.RemoteName
	}
	return e.codec.LocalToRemote(s.Name())
}

func (e *Executor) remoteToLocal(ctx context.Context, s model.Scenario, abort *AbortFlag) error {
	remoteName := s.Name()
	if s.Remote != nil {
		remoteName = s.Remote.RemoteName
	}
	rc, err := e.provider.Get(ctx, remoteName)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if abort.Aborted() {
		return &providers.CancelledError{Provider: e.provider.Name()}
	}

	mtime := s.Remote.LastModified
	return e.local.Write(s.Name(), rc, mtime)
}

func (e *Executor) diffMerge(ctx context.Context, s model.Scenario, abort *AbortFlag) error {
	localBytes, err := readAll(e.local, s.Local.Name)
	if err != nil {
		return err
	}

	if abort.Aborted() {
		return &providers.CancelledError{Provider: e.provider.Name()}
	}

	rc, err := e.provider.Get(ctx, s.Remote.RemoteName)
	if err != nil {
		return err
	}
	remoteBytes, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return err
	}

	result, mergeErr := merger.Merge(s.Name(), localBytes, remoteBytes, s.Local.LastModified, s.Remote.LastModified)
	if mergeErr != nil {
		e.logger.Warn("merge fell back to last-writer-wins", zap.String("name", s.Name()), zap.Error(mergeErr))
	}

	if err := e.local.Write(s.Name(), bytes.NewReader(result.Merged), s.Local.LastModified); err != nil {
		return err
	}
	return e.provider.Put(ctx, s.Remote.RemoteName, bytes.NewReader(result.Merged), int64(len(result.Merged)))
}

func readAll(store *localstore.Store, name string) ([]byte, error) {
	rc, err := store.Read(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// CommitCache refreshes and persists the provider's cache from the
// post-sync remote listing, per §4.6 — only called by the
// Orchestrator when a provider's plan completed without error.
// LastSync is stamped at the moment of the successful Executor run
// this cache reflects.
func CommitCache(store *cache.Store, postSyncRemote []model.FileEntry) error {
	rec := model.NewCacheRecord()
	rec.LastSync = time.Now().UTC()
	for _, e := range postSyncRemote {
		rec.Entries[e.Name] = e.MD5
	}
	return store.Save(rec)
}
