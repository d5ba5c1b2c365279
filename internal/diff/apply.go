package diff

import (
	"fmt"
	"strings"
)

// Apply replays a record against the content of its from snapshot and
// returns the content of its to snapshot. The input map is not mutated.
// Apply fails if the base content does not match what the record's hunks
// expect; a session whose records apply cleanly end to end has no gaps or
// branches.
func Apply(base map[string][]byte, rec *Record) (map[string][]byte, error) {
	out := make(map[string][]byte, len(base))
	for p, data := range base {
		out[p] = data
	}

	// Hunks are ordered by path; collect the modify hunks per path so they
	// can be applied in one pass over the file.
	var pending []Hunk
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		path := pending[0].Path
		old, ok := out[path]
		if !ok {
			return fmt.Errorf("applying %s: path missing from base", path)
		}
		updated, err := applyTextHunks(splitLines(string(old)), pending)
		if err != nil {
			return fmt.Errorf("applying %s: %w", path, err)
		}
		out[path] = []byte(strings.Join(updated, ""))
		pending = pending[:0]
		return nil
	}

	for _, h := range rec.Hunks {
		if len(pending) > 0 && pending[0].Path != h.Path {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		switch h.Op {
		case FileModify:
			pending = append(pending, h)
		case FileCreate:
			if _, exists := out[h.Path]; exists {
				return nil, fmt.Errorf("applying %s: create of existing path", h.Path)
			}
			out[h.Path] = []byte(joinSide(h.Lines, OpAdd))
		case FileDelete:
			if _, exists := out[h.Path]; !exists {
				return nil, fmt.Errorf("applying %s: delete of missing path", h.Path)
			}
			if got := string(out[h.Path]); got != joinSide(h.Lines, OpDel) {
				return nil, fmt.Errorf("applying %s: delete content mismatch", h.Path)
			}
			delete(out, h.Path)
		case FileReplace:
			if got, exists := out[h.Path]; !exists {
				return nil, fmt.Errorf("applying %s: replace of missing path", h.Path)
			} else if string(got) != joinSide(h.Lines, OpDel) {
				return nil, fmt.Errorf("applying %s: replace content mismatch", h.Path)
			}
			out[h.Path] = []byte(joinSide(h.Lines, OpAdd))
		default:
			return nil, fmt.Errorf("applying %s: unknown hunk op %d", h.Path, h.Op)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddedText returns the concatenated text of the hunk's added lines.
func (h Hunk) AddedText() string { return joinSide(h.Lines, OpAdd) }

// RemovedText returns the concatenated text of the hunk's removed lines.
func (h Hunk) RemovedText() string { return joinSide(h.Lines, OpDel) }

// joinSide concatenates the text of lines carrying the given op.
func joinSide(lines []Line, op LineOp) string {
	var sb strings.Builder
	for _, l := range lines {
		if l.Op == op {
			sb.WriteString(l.Text)
		}
	}
	return sb.String()
}

// applyTextHunks applies modify hunks (ascending OldStart) to a file's lines.
func applyTextHunks(old []string, hunks []Hunk) ([]string, error) {
	var out []string
	oldIdx := 0 // 0-based index into old

	for _, h := range hunks {
		start := h.OldStart - 1
		if start < oldIdx || start > len(old) {
			return nil, fmt.Errorf("hunk at line %d out of order or out of range", h.OldStart)
		}
		out = append(out, old[oldIdx:start]...)
		oldIdx = start

		for _, l := range h.Lines {
			switch l.Op {
			case OpContext:
				if oldIdx >= len(old) || old[oldIdx] != l.Text {
					return nil, fmt.Errorf("context mismatch at line %d", oldIdx+1)
				}
				out = append(out, l.Text)
				oldIdx++
			case OpDel:
				if oldIdx >= len(old) || old[oldIdx] != l.Text {
					return nil, fmt.Errorf("deletion mismatch at line %d", oldIdx+1)
				}
				oldIdx++
			case OpAdd:
				out = append(out, l.Text)
			}
		}
	}
	out = append(out, old[oldIdx:]...)
	return out, nil
}
