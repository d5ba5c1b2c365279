// Package diff computes structured, hunk-level diffs between snapshots and
// serializes them to a stable binary form.
//
// The engine is deterministic: the same pair of snapshots always produces a
// byte-identical serialized record. That property is what makes session
// replay and repeatable statistics possible, so nothing time- or
// map-order-dependent may leak into a Record.
package diff

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tugtools/tug/internal/snapshot"
)

// LineOp marks a line within a hunk.
type LineOp byte

const (
	OpContext LineOp = ' '
	OpDel     LineOp = '-'
	OpAdd     LineOp = '+'
)

// FileOp classifies what a hunk does to its path.
type FileOp byte

const (
	// FileModify is a line-level change within an existing file.
	FileModify FileOp = iota
	// FileCreate adds a file that was absent in the from snapshot.
	FileCreate
	// FileDelete removes a file present in the from snapshot.
	FileDelete
	// FileReplace swaps the whole content without line alignment. Used for
	// binary or undecodable content.
	FileReplace
)

// Line is one diff line. Text keeps its original terminator, so joining the
// post-image lines of a record reproduces file content byte-exactly.
type Line struct {
	Op   LineOp
	Text string
}

// Hunk is a contiguous change to one path. Start positions are 1-based line
// numbers; a hunk covering no lines on one side uses start 1, count 0.
type Hunk struct {
	Path     string
	Op       FileOp
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Record is the structured difference between two snapshots. Immutable once
// written; Warnings records non-fatal degradations (binary fallbacks).
type Record struct {
	From     snapshot.ID
	To       snapshot.ID
	Hunks    []Hunk
	Warnings []string
}

// contextLines is the number of unchanged lines kept around each change.
const contextLines = 3

// maxDiffCells caps the LCS table size; beyond it the engine degrades to a
// whole-file replace the same way it does for binary content.
const maxDiffCells = 4 << 20

// Diff computes the record transforming the content of from into the content
// of to. Paths present on only one side become create/delete hunks covering
// the whole content. Hunks are ordered by path, so equal inputs always
// serialize identically.
func Diff(from, to snapshot.ID, old, new map[string][]byte) (*Record, error) {
	rec := &Record{From: from, To: to}

	paths := make([]string, 0, len(old)+len(new))
	seen := make(map[string]bool, len(old)+len(new))
	for p := range old {
		paths = append(paths, p)
		seen[p] = true
	}
	for p := range new {
		if !seen[p] {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		oldData, inOld := old[path]
		newData, inNew := new[path]

		switch {
		case inOld && !inNew:
			rec.Hunks = append(rec.Hunks, wholeFileHunk(path, FileDelete, oldData, nil))
		case !inOld && inNew:
			rec.Hunks = append(rec.Hunks, wholeFileHunk(path, FileCreate, nil, newData))
		case bytes.Equal(oldData, newData):
			continue
		case !isText(oldData) || !isText(newData):
			rec.Hunks = append(rec.Hunks, wholeFileHunk(path, FileReplace, oldData, newData))
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: binary or undecodable content, using whole-file replace", path))
		default:
			oldLines := splitLines(string(oldData))
			newLines := splitLines(string(newData))
			if len(oldLines)*len(newLines) > maxDiffCells {
				rec.Hunks = append(rec.Hunks, wholeFileHunk(path, FileReplace, oldData, newData))
				rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: file too large for line alignment, using whole-file replace", path))
				continue
			}
			rec.Hunks = append(rec.Hunks, buildHunks(path, oldLines, newLines)...)
		}
	}
	return rec, nil
}

// PathStat is the per-path line delta of a record.
type PathStat struct {
	Added   int
	Removed int
}

// Stats folds the record's hunks into per-path added/removed line counts.
func (r *Record) Stats() map[string]PathStat {
	out := make(map[string]PathStat)
	for _, h := range r.Hunks {
		st := out[h.Path]
		for _, l := range h.Lines {
			switch l.Op {
			case OpAdd:
				st.Added += lineCount(l.Text)
			case OpDel:
				st.Removed += lineCount(l.Text)
			}
		}
		out[h.Path] = st
	}
	return out
}

// StatsBetween reports added/removed line counts between two raw contents
// without building hunks. Used by the stats layer for similarity scoring.
func StatsBetween(old, new []byte) (added, removed int) {
	if bytes.Equal(old, new) {
		return 0, 0
	}
	if !isText(old) || !isText(new) {
		return lineCount(string(new)), lineCount(string(old))
	}
	oldLines := splitLines(string(old))
	newLines := splitLines(string(new))
	if len(oldLines)*len(newLines) > maxDiffCells {
		return len(newLines), len(oldLines)
	}
	for _, e := range editScript(oldLines, newLines) {
		switch e.op {
		case OpAdd:
			added++
		case OpDel:
			removed++
		}
	}
	return added, removed
}

// wholeFileHunk builds a single hunk covering all of oldData and/or newData.
// Text content is carried line by line; binary content rides as one raw
// pseudo-line so replay stays byte-exact.
func wholeFileHunk(path string, op FileOp, oldData, newData []byte) Hunk {
	h := Hunk{Path: path, Op: op, OldStart: 1, NewStart: 1}
	appendSide := func(data []byte, lop LineOp) int {
		if len(data) == 0 {
			return 0
		}
		if isText(data) {
			lines := splitLines(string(data))
			for _, l := range lines {
				h.Lines = append(h.Lines, Line{Op: lop, Text: l})
			}
			return len(lines)
		}
		h.Lines = append(h.Lines, Line{Op: lop, Text: string(data)})
		return 1
	}
	h.OldLines = appendSide(oldData, OpDel)
	h.NewLines = appendSide(newData, OpAdd)
	return h
}

// edit is one step of the line-level edit script.
type edit struct {
	op   LineOp
	text string
}

// editScript computes a line edit script via longest-common-subsequence
// backtracking. Deletions are emitted before additions at each divergence.
func editScript(old, new []string) []edit {
	n, m := len(old), len(new)
	// lcs[i][j] = LCS length of old[i:] and new[j:].
	lcs := make([][]int32, n+1)
	for i := range lcs {
		lcs[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if old[i] == new[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	script := make([]edit, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case old[i] == new[j]:
			script = append(script, edit{OpContext, old[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			script = append(script, edit{OpDel, old[i]})
			i++
		default:
			script = append(script, edit{OpAdd, new[j]})
			j++
		}
	}
	for ; i < n; i++ {
		script = append(script, edit{OpDel, old[i]})
	}
	for ; j < m; j++ {
		script = append(script, edit{OpAdd, new[j]})
	}
	return script
}

// buildHunks groups an edit script into hunks with up to contextLines of
// surrounding context, merging changes whose context would overlap.
func buildHunks(path string, old, new []string) []Hunk {
	script := editScript(old, new)

	// Indices into script of non-context edits.
	var changes []int
	for idx, e := range script {
		if e.op != OpContext {
			changes = append(changes, idx)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	// Group changes separated by at most 2*contextLines of context.
	type span struct{ lo, hi int } // inclusive script indices
	var spans []span
	cur := span{changes[0], changes[0]}
	for _, c := range changes[1:] {
		if c-cur.hi <= 2*contextLines+1 {
			cur.hi = c
			continue
		}
		spans = append(spans, cur)
		cur = span{c, c}
	}
	spans = append(spans, cur)

	// Precompute old/new line numbers at each script position (1-based).
	oldAt := make([]int, len(script)+1)
	newAt := make([]int, len(script)+1)
	o, n := 1, 1
	for idx, e := range script {
		oldAt[idx], newAt[idx] = o, n
		switch e.op {
		case OpContext:
			o++
			n++
		case OpDel:
			o++
		case OpAdd:
			n++
		}
	}
	oldAt[len(script)], newAt[len(script)] = o, n

	hunks := make([]Hunk, 0, len(spans))
	for _, sp := range spans {
		lo := sp.lo - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := sp.hi + contextLines
		if hi > len(script)-1 {
			hi = len(script) - 1
		}
		h := Hunk{
			Path:     path,
			Op:       FileModify,
			OldStart: oldAt[lo],
			NewStart: newAt[lo],
		}
		for idx := lo; idx <= hi; idx++ {
			e := script[idx]
			h.Lines = append(h.Lines, Line{Op: e.op, Text: e.text})
			switch e.op {
			case OpContext:
				h.OldLines++
				h.NewLines++
			case OpDel:
				h.OldLines++
			case OpAdd:
				h.NewLines++
			}
		}
		hunks = append(hunks, h)
	}
	return hunks
}

// splitLines splits content into lines, each keeping its trailing newline.
// A final unterminated line is kept as-is, so concatenating the result
// reproduces the input exactly.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for s != "" {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:idx+1])
		s = s[idx+1:]
	}
	return lines
}

// lineCount reports how many lines a raw text segment spans.
func lineCount(s string) int {
	return len(splitLines(s))
}

// isText reports whether data can be treated as line-oriented UTF-8 text.
func isText(data []byte) bool {
	return !bytes.ContainsRune(data, 0) && utf8.Valid(data)
}
