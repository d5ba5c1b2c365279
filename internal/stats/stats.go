// Package stats aggregates metrics over session logs. Aggregation is a
// pure, read-only fold: it never mutates a log, and re-running it over an
// unchanged closed log yields an identical report.
package stats

import (
	"sort"
	"time"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/sessionlog"
)

// FileChange is the per-path net change of one session.
// Status follows the usual single-letter convention:
// A added, D deleted, M modified, R renamed, C copied.
type FileChange struct {
	Status  string `json:"status"`
	Path    string `json:"path,omitempty"`
	From    string `json:"from,omitempty"` // renames and copies only
	To      string `json:"to,omitempty"`   // renames and copies only
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// DisplayPath returns the path the change is listed under.
func (fc FileChange) DisplayPath() string {
	if fc.Status == "R" || fc.Status == "C" {
		return fc.From + " => " + fc.To
	}
	return fc.Path
}

// SessionStats are the aggregate metrics of one session.
type SessionStats struct {
	SessionID string        `json:"session_id"`
	WorkDir   string        `json:"work_dir"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Open      bool          `json:"open"`
	Duration  time.Duration `json:"duration_ns"`
	Records   int           `json:"records"`
	Added     int           `json:"added"`
	Removed   int           `json:"removed"`
	Churn     float64       `json:"churn"`
	Files     []FileChange  `json:"files"`
}

// Report is the combined aggregate over one or more session logs. It is
// derived data only and is never written back into a log.
type Report struct {
	Sessions     []SessionStats `json:"sessions"`
	TotalAdded   int            `json:"total_added"`
	TotalRemoved int            `json:"total_removed"`
	Churn        float64        `json:"churn"`
}

// Aggregate folds session logs into a report. Open sessions use now as a
// provisional end bound; closed sessions depend only on log content, which
// makes repeated aggregation idempotent. A nil now means time.Now.
func Aggregate(now func() time.Time, sessions ...*sessionlog.Session) *Report {
	if now == nil {
		now = time.Now
	}

	report := &Report{}
	for _, sess := range sessions {
		ss := SessionStats{
			SessionID: sess.ID.String(),
			WorkDir:   sess.WorkDir,
			StartTime: sess.StartTime,
			Open:      sess.Open(),
			Records:   len(sess.Entries),
		}
		if sess.CloseTime != nil {
			ss.EndTime = *sess.CloseTime
		} else if n := len(sess.Entries); n > 0 {
			ss.EndTime = sess.Entries[n-1].CapturedAt
		} else {
			ss.EndTime = sess.StartTime
		}
		if ss.Open {
			ss.EndTime = now().UTC()
		}
		ss.Duration = ss.EndTime.Sub(ss.StartTime)

		ss.Files = classify(sess)
		for _, fc := range ss.Files {
			ss.Added += fc.Added
			ss.Removed += fc.Removed
		}
		ss.Churn = churn(ss.Added, ss.Removed)

		report.TotalAdded += ss.Added
		report.TotalRemoved += ss.Removed
		report.Sessions = append(report.Sessions, ss)
	}
	report.Churn = churn(report.TotalAdded, report.TotalRemoved)
	return report
}

// churn is (added+removed) over lines touched, where lines touched are the
// added lines surviving in the result. Zero when nothing was added.
func churn(added, removed int) float64 {
	if added == 0 {
		return 0
	}
	return float64(added+removed) / float64(added)
}

// pathFold accumulates one path's history across a session's records.
type pathFold struct {
	added, removed int
	createdFirst   bool // first hunk seen was a create
	deletedLast    bool // last hunk seen was a delete
	sawAny         bool
	createdSeq     int    // index of the record that created the path
	createdContent string // content at creation, for rename/copy scoring
	deletedContent string // content at deletion, for rename scoring
}

// classify folds a session's hunks into net per-path changes and pairs up
// renames and copies by content similarity, the way the original matching
// works: best match above a 0.5 similarity threshold wins. Renames pair an
// added path with a deleted one; copies pair an added path with a source
// that survives.
func classify(sess *sessionlog.Session) []FileChange {
	folds := make(map[string]*pathFold)
	order := []string{}
	get := func(path string) *pathFold {
		f, ok := folds[path]
		if !ok {
			f = &pathFold{}
			folds[path] = f
			order = append(order, path)
		}
		return f
	}

	for seq, entry := range sess.Entries {
		for _, h := range entry.Record.Hunks {
			f := get(h.Path)
			if !f.sawAny && h.Op == diff.FileCreate {
				f.createdFirst = true
				f.createdSeq = seq
				f.createdContent = h.AddedText()
			}
			f.sawAny = true
			f.deletedLast = h.Op == diff.FileDelete
			if f.deletedLast {
				f.deletedContent = h.RemovedText()
			}
		}
		for path, st := range entry.Record.Stats() {
			f := get(path)
			f.added += st.Added
			f.removed += st.Removed
		}
	}
	sort.Strings(order)

	var added, deleted []string
	var changes []FileChange
	for _, path := range order {
		f := folds[path]
		switch {
		case f.createdFirst && f.deletedLast:
			// Created and deleted within the session: net nothing.
		case f.createdFirst:
			added = append(added, path)
		case f.deletedLast:
			deleted = append(deleted, path)
		default:
			changes = append(changes, FileChange{Status: "M", Path: path, Added: f.added, Removed: f.removed})
		}
	}

	renames, restAdded, restDeleted := matchRenames(folds, added, deleted)
	changes = append(changes, renames...)
	copies, restAdded := matchCopies(folds, restAdded)
	changes = append(changes, copies...)
	for _, a := range restAdded {
		changes = append(changes, FileChange{Status: "A", Path: a, Added: folds[a].added, Removed: folds[a].removed})
	}
	for _, d := range restDeleted {
		changes = append(changes, FileChange{Status: "D", Path: d, Added: folds[d].added, Removed: folds[d].removed})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].DisplayPath() < changes[j].DisplayPath() })
	return changes
}

// matchRenames pairs added paths with deleted paths whose content scores
// above the similarity threshold, emitting R entries for matches and
// returning the paths that found no pair.
func matchRenames(folds map[string]*pathFold, added, deleted []string) (changes []FileChange, restAdded, restDeleted []string) {
	type candidate struct {
		addPath, delPath string
		score            float64
	}
	var candidates []candidate
	for _, a := range added {
		best := candidate{addPath: a, score: 0.5}
		for _, d := range deleted {
			score := similarity(folds[d].deletedContent, folds[a].createdContent)
			if score > best.score {
				best.delPath = d
				best.score = score
			}
		}
		if best.delPath != "" {
			candidates = append(candidates, best)
		}
	}
	// Highest score first so exact matches claim their pair before weaker
	// candidates; ties break on path for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].addPath < candidates[j].addPath
	})

	claimedAdd := make(map[string]bool)
	claimedDel := make(map[string]bool)
	for _, c := range candidates {
		if claimedAdd[c.addPath] || claimedDel[c.delPath] {
			continue
		}
		claimedAdd[c.addPath] = true
		claimedDel[c.delPath] = true
		a, r := diff.StatsBetween([]byte(folds[c.delPath].deletedContent), []byte(folds[c.addPath].createdContent))
		changes = append(changes, FileChange{Status: "R", From: c.delPath, To: c.addPath, Added: a, Removed: r})
	}
	for _, a := range added {
		if !claimedAdd[a] {
			restAdded = append(restAdded, a)
		}
	}
	for _, d := range deleted {
		if !claimedDel[d] {
			restDeleted = append(restDeleted, d)
		}
	}
	return changes, restAdded, restDeleted
}

// matchCopies pairs still-unclaimed added paths with a surviving source: a
// path created in an earlier record whose content scores above the
// similarity threshold. A source can seed any number of copies.
func matchCopies(folds map[string]*pathFold, added []string) (changes []FileChange, rest []string) {
	var sources []string
	for path, f := range folds {
		if f.createdFirst && !f.deletedLast && f.createdContent != "" {
			sources = append(sources, path)
		}
	}
	sort.Strings(sources)

	for _, a := range added {
		bestSrc := ""
		bestScore := 0.5
		for _, s := range sources {
			if s == a || folds[s].createdSeq >= folds[a].createdSeq {
				continue
			}
			if score := similarity(folds[s].createdContent, folds[a].createdContent); score > bestScore {
				bestSrc = s
				bestScore = score
			}
		}
		if bestSrc == "" {
			rest = append(rest, a)
			continue
		}
		ad, rm := diff.StatsBetween([]byte(folds[bestSrc].createdContent), []byte(folds[a].createdContent))
		changes = append(changes, FileChange{Status: "C", From: bestSrc, To: a, Added: ad, Removed: rm})
	}
	return changes, rest
}

// similarity scores two contents in [0,1]: 1 for identical, 0 for
// incomparable. A cheap length ratio check rules out pairs that cannot
// score above the threshold before running the line diff.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	minLen, maxLen := len(a), len(b)
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	if float64(minLen)/float64(maxLen) < 0.5 {
		return 0
	}
	addedLines, removedLines := diff.StatsBetween([]byte(a), []byte(b))
	totalA := lineTotal(a)
	totalB := lineTotal(b)
	total := totalA + totalB
	if total == 0 {
		return 1
	}
	changes := addedLines + removedLines
	return float64(total-changes) / float64(total)
}

func lineTotal(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
		}
	}
	if s[len(s)-1] != '\n' {
		n++
	}
	return n
}
