// Package sessionlog persists sessions as append-only logs of diff records.
package sessionlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/snapshot"
)

// Session is the in-memory form of one session log. Entries are in append
// order, which is chronological order.
type Session struct {
	ID           uuid.UUID
	StartTime    time.Time
	CloseTime    *time.Time
	CloseMessage string
	WorkDir      string
	Baseline     snapshot.ID
	Entries      []Entry
}

// Entry is one appended diff record with its capture time. The capture time
// lives in the log frame, not in the record, so the record itself stays a
// deterministic function of its two snapshots.
type Entry struct {
	CapturedAt time.Time
	Record     *diff.Record
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool { return s.CloseTime == nil }

// Tail returns the snapshot the next capture should diff against: the last
// record's to snapshot, or the baseline when nothing has been appended.
func (s *Session) Tail() snapshot.ID {
	if len(s.Entries) == 0 {
		return s.Baseline
	}
	return s.Entries[len(s.Entries)-1].Record.To
}
