// Package model holds the data shared across the sync pipeline: the
// reconciled file record, the persisted fingerprint cache, and the
// per-file action a sync run decides on.
package model

import (
	"encoding/json"
	"sort"
	"time"
)

// FileEntry is the canonical record produced by LocalStore and
// ProviderClient listings and consumed by the Reconciler.
type FileEntry struct {
	// Name is the vault-relative path, forward-slash separated,
	// normalized: no ".", no "..", no leading slash. It is the only
	// key used to match a local entry against its remote counterpart.
	Name string

	// LocalName is the absolute filesystem path. Empty for
	// remote-only entries until the file is materialized locally.
	LocalName string

	// RemoteName is the exact key/blob-name as stored remotely,
	// including the vault prefix and provider-specific percent
	// encoding. Preserved byte-exact so Get/Delete round-trip
	// against providers that case-fold percent escapes differently.
	RemoteName string

	// MIME is a best-effort media type derived from the file
	// extension. Informational only; never used for comparison.
	MIME string

	LastModified time.Time
	Size         int64

	// MD5 is the lowercase hex MD5 of the content. Empty denotes
	// "unknown" (e.g. a multipart-uploaded S3 object, or an Azure
	// blob whose Content-MD5 header was never set).
	MD5 string

	// IsDirectory is always false in a reconciled set; directories
	// are filtered out before the Reconciler ever sees the listing.
	IsDirectory bool
}

// Known reports whether the entry's content hash can be trusted for
// comparison.
func (f FileEntry) Known() bool {
	return f.MD5 != ""
}

// CacheRecord is the persisted fingerprint map for one (vault,
// provider) pair, recorded after a successful sync.
type CacheRecord struct {
	LastSync time.Time
	// Entries maps a FileEntry.Name to its MD5 as of the last
	// successful sync's post-execution remote listing.
	Entries map[string]string
}

// NewCacheRecord returns an empty record with LastSync at the zero
// Unix epoch, matching cache.Store.Load's behavior on a missing file.
func NewCacheRecord() *CacheRecord {
	return &CacheRecord{
		LastSync: time.Unix(0, 0).UTC(),
		Entries:  make(map[string]string),
	}
}

// cacheRecordWire is the exact on-disk shape: file_cache is a list of
// [name, md5] pairs rather than a JSON object, matching the format a
// prior version of this cache file already used in the wild.
type cacheRecordWire struct {
	LastSync  time.Time  `json:"last_sync"`
	FileCache [][2]string `json:"file_cache"`
}

// MarshalJSON renders the record as {"last_sync":...,"file_cache":[[name,md5],...]}.
func (c CacheRecord) MarshalJSON() ([]byte, error) {
	wire := cacheRecordWire{LastSync: c.LastSync, FileCache: make([][2]string, 0, len(c.Entries))}
	names := make([]string, 0, len(c.Entries))
	for name := range c.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		wire.FileCache = append(wire.FileCache, [2]string{name, c.Entries[name]})
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the [[name,md5],...] pair-list shape back into
// Entries. Unknown fields are ignored per the wire contract.
func (c *CacheRecord) UnmarshalJSON(data []byte) error {
	var wire cacheRecordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.LastSync = wire.LastSync
	c.Entries = make(map[string]string, len(wire.FileCache))
	for _, pair := range wire.FileCache {
		if len(pair) != 2 {
			continue
		}
		c.Entries[pair[0]] = pair[1]
	}
	return nil
}

// Rule names the action a Scenario carries out.
type Rule string

const (
	RuleLocalToRemote Rule = "LOCAL_TO_REMOTE"
	RuleRemoteToLocal Rule = "REMOTE_TO_LOCAL"
	RuleDeleteLocal   Rule = "DELETE_LOCAL"
	RuleDeleteRemote  Rule = "DELETE_REMOTE"
	RuleDiffMerge     Rule = "DIFF_MERGE"
)

// AllRules lists every Rule in a stable order, used to seed
// per-rule progress counters before a plan runs.
var AllRules = []Rule{
	RuleLocalToRemote,
	RuleRemoteToLocal,
	RuleDeleteLocal,
	RuleDeleteRemote,
	RuleDiffMerge,
}

// Scenario is one planned action for one file, produced by the
// Reconciler and consumed by the Executor.
type Scenario struct {
	Local  *FileEntry
	Remote *FileEntry
	Rule   Rule
}

// Name returns the scenario's file name, preferring the local
// entry (absent only for a remote-only REMOTE_TO_LOCAL or
// DELETE_REMOTE scenario).
func (s Scenario) Name() string {
	if s.Local != nil {
		return s.Local.Name
	}
	if s.Remote != nil {
		return s.Remote.Name
	}
	return ""
}

// VaultPrefix is the per-provider string derived from the vault
// folder name, normalized per provider key rules. Immutable for the
// lifetime of one Orchestrator run.
type VaultPrefix string
