// Package merger produces the annotated three-way merge artifact for
// DIFF_MERGE scenarios: a single byte string, written identically to
// both sides, that preserves both sides' diverging content as
// sentinel-prefixed lines for the user to resolve by hand.
//
// No teacher equivalent exists; the line-diff shape is grounded in
// idiom on the teacher's CompareDirectories-style structural diffing
// (internal/drivers/local.go), generalized here from file-level to
// line-level comparison.
package merger

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudsync/cloudsync/internal/providers"
)

// Op names a line-diff operation.
type Op string

const (
	OpEqual  Op = "EQUAL"
	OpInsert Op = "INSERT"
	OpDelete Op = "DELETE"
)

// insertMarker and deleteMarker are the fullwidth sentinel characters
// prefixed to INSERT/DELETE lines in the merged artifact. A literal
// occurrence of either marker already present in a source line is
// escaped by doubling it, so a subsequent parse of the artifact can
// unambiguously tell a sentinel from quoted source content.
const (
	insertMarker = "＋"
	deleteMarker = "－"
)

// Side identifies which input a merge fell back to when the content
// could not be diffed as text.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Result is the outcome of a three-way merge attempt.
type Result struct {
	// Merged is the byte content to write to both sides.
	Merged []byte
	// FellBackTo is non-empty when the merge used last-writer-wins
	// instead of annotated line diffing (binary content on either side).
	FellBackTo Side
}

// Merge runs a line-oriented diff between local and remote and
// returns the annotated artifact both sides should adopt. If either
// input is not valid UTF-8, it falls back to last-writer-wins by
// mtime and returns a MergeError-wrapped warning via the returned
// error (non-nil err never means the merge was abandoned — the
// caller still gets a usable Result; err documents the fallback for
// logging).
func Merge(name string, local, remote []byte, localMTime, remoteMTime time.Time) (Result, error) {
	if !utf8.Valid(local) || !utf8.Valid(remote) {
		side := SideLocal
		winner := local
		if remoteMTime.After(localMTime) {
			side = SideRemote
			winner = remote
		}
		return Result{Merged: winner, FellBackTo: side},
			&providers.MergeError{Name: name, Cause: fmt.Errorf("non-UTF-8 content on one or both sides, falling back to last-writer-wins")}
	}

	ops := diffLines(splitLines(local), splitLines(remote))

	var buf bytes.Buffer
	for _, op := range ops {
		switch op.kind {
		case OpEqual:
			buf.WriteString(escapeMarkers(op.line))
		case OpDelete:
			buf.WriteString(deleteMarker)
			buf.WriteString(escapeMarkers(op.line))
		case OpInsert:
			buf.WriteString(insertMarker)
			buf.WriteString(escapeMarkers(op.line))
		}
		buf.WriteByte('\n')
	}
	return Result{Merged: buf.Bytes()}, nil
}

// escapeMarkers doubles any literal sentinel character already
// present in a source line so the merged artifact remains parseable.
func escapeMarkers(line string) string {
	line = strings.ReplaceAll(line, insertMarker, insertMarker+insertMarker)
	line = strings.ReplaceAll(line, deleteMarker, deleteMarker+deleteMarker)
	return line
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	text := strings.TrimSuffix(string(data), "\n")
	return strings.Split(text, "\n")
}

type lineOp struct {
	kind Op
	line string
}

// diffLines runs a Myers-style shortest-edit-script diff over two
// line slices, producing a deterministic (op, line) sequence.
func diffLines(a, b []string) []lineOp {
	n, m := len(a), len(b)
	// lcs[i][j] = length of the longest common subsequence of a[i:]
	// and b[j:], computed bottom-up.
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []lineOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, lineOp{OpEqual, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, lineOp{OpDelete, a[i]})
			i++
		default:
			ops = append(ops, lineOp{OpInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, lineOp{OpDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, lineOp{OpInsert, b[j]})
	}
	return ops
}
