// Package reconciler computes the sync action plan: a pure join of
// the local listing, the remote listing, and the prior cache map.
//
// No direct teacher equivalent exists (the teacher has no three-way
// reconciliation concept); grounded in idiom on the join/merge style
// of internal/drivers/local.go's CompareDirectories, generalized from
// size-based diffing to the cache-mediated directionality this domain
// requires.
package reconciler

import (
	"sort"

	"github.com/cloudsync/cloudsync/internal/model"
)

// Reconcile computes the deterministic action plan covering every
// name present in local, remote, or both. cache is the prior run's
// persisted fingerprint map; a nil or empty cache is treated as "no
// history", forcing any diverging pair into DIFF_MERGE.
func Reconcile(local, remote []model.FileEntry, cache *model.CacheRecord) []model.Scenario {
	entries := map[string]string{}
	if cache != nil {
		entries = cache.Entries
	}

	remoteByName := make(map[string]model.FileEntry, len(remote))
	for _, r := range remote {
		remoteByName[r.Name] = r
	}

	var scenarios []model.Scenario
	seen := make(map[string]struct{}, len(local))

	for _, l := range local {
		seen[l.Name] = struct{}{}
		r, hasRemote := remoteByName[l.Name]

		if !hasRemote {
			if _, known := entries[l.Name]; !known {
				scenarios = append(scenarios, model.Scenario{Local: cp(l), Rule: model.RuleLocalToRemote})
			} else {
				scenarios = append(scenarios, model.Scenario{Local: cp(l), Rule: model.RuleDeleteLocal})
			}
			continue
		}

		if contentEqual(l, r) {
			continue
		}

		c, hasCache := entries[l.Name]
		switch {
		case hasCache && c == r.MD5:
			scenarios = append(scenarios, model.Scenario{Local: cp(l), Remote: cp(r), Rule: model.RuleLocalToRemote})
		case hasCache && c == l.MD5:
			scenarios = append(scenarios, model.Scenario{Local: cp(l), Remote: cp(r), Rule: model.RuleRemoteToLocal})
		default:
			scenarios = append(scenarios, model.Scenario{Local: cp(l), Remote: cp(r), Rule: model.RuleDiffMerge})
		}
	}

	for _, r := range remote {
		if _, localHasIt := seen[r.Name]; localHasIt {
			continue
		}
		if _, known := entries[r.Name]; !known {
			scenarios = append(scenarios, model.Scenario{Remote: cp(r), Rule: model.RuleRemoteToLocal})
		} else {
			scenarios = append(scenarios, model.Scenario{Remote: cp(r), Rule: model.RuleDeleteRemote})
		}
	}

	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].Name() < scenarios[j].Name()
	})
	return scenarios
}

// contentEqual treats two entries as identical only when both sides
// carry a trustworthy (non-empty) md5 and they match; an empty remote
// md5 against a known local md5 is always "different" per spec, since
// a multipart upload's missing Content-MD5 can't prove equality.
func contentEqual(l, r model.FileEntry) bool {
	if l.MD5 == "" || r.MD5 == "" {
		return false
	}
	return l.MD5 == r.MD5
}

func cp(e model.FileEntry) *model.FileEntry {
	v := e
	return &v
}
