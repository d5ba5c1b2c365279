// Package recorder orchestrates session capture: it snapshots the working
// tree, diffs against the session's tail, and appends the result to the
// session log.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/sessionlog"
	"github.com/tugtools/tug/internal/snapshot"
)

// ErrNotOpen is returned when a capture or close is attempted on a session
// that is not open.
var ErrNotOpen = errors.New("session is not open")

// Recorder drives one session's capture pipeline. All captures and the
// close are serialized by the recorder's lock, which upholds the append-only
// replay invariant: each appended record's from snapshot is exactly the
// previous record's to snapshot (or the baseline for the first record).
type Recorder struct {
	mu      sync.Mutex
	store   *snapshot.Store
	log     *sessionlog.Log
	workDir string
	ignore  []string
	tail    snapshot.ID
	open    bool
}

// CaptureResult reports one capture. Record is nil when the working tree
// was unchanged since the tail snapshot and nothing was appended.
type CaptureResult struct {
	Record   *diff.Record
	Warnings []string
}

// Begin opens a new session for workDir: it takes the baseline snapshot and
// creates the session log. The returned warnings are non-fatal tree-read
// issues (unreadable or oversized files).
func Begin(store *snapshot.Store, sessionsDir, workDir string, ignore []string) (*Recorder, []string, error) {
	files, warnings, err := ReadTree(workDir, ignore)
	if err != nil {
		return nil, warnings, err
	}
	base, err := store.Put(files, "baseline")
	if err != nil {
		return nil, warnings, err
	}
	log, err := sessionlog.Create(sessionsDir, workDir, base.ID)
	if err != nil {
		return nil, warnings, err
	}
	return &Recorder{
		store:   store,
		log:     log,
		workDir: workDir,
		ignore:  ignore,
		tail:    base.ID,
		open:    true,
	}, warnings, nil
}

// Resume reopens the recorder for an existing open session log.
func Resume(store *snapshot.Store, logPath string, ignore []string) (*Recorder, error) {
	sess, err := sessionlog.Read(logPath)
	if err != nil {
		return nil, err
	}
	if !sess.Open() {
		return nil, fmt.Errorf("session %s: %w", sess.ID, ErrNotOpen)
	}
	log, err := sessionlog.OpenAppend(logPath)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		store:   store,
		log:     log,
		workDir: sess.WorkDir,
		ignore:  ignore,
		tail:    sess.Tail(),
		open:    true,
	}, nil
}

// Log returns the underlying session log handle.
func (r *Recorder) Log() *sessionlog.Log { return r.log }

// Tail returns the session's current tail snapshot ID.
func (r *Recorder) Tail() snapshot.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail
}

// Capture snapshots the working tree and appends the diff against the tail.
// Origin names the trigger that caused the capture (manual, watch, commit).
func (r *Recorder) Capture(origin string) (*CaptureResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil, ErrNotOpen
	}
	files, warnings, err := ReadTree(r.workDir, r.ignore)
	if err != nil {
		return &CaptureResult{Warnings: warnings}, err
	}
	res, err := r.captureLocked(files, origin)
	if res != nil {
		res.Warnings = append(warnings, res.Warnings...)
	}
	return res, err
}

// CaptureFiles appends a record for explicitly provided contents. The
// editor bridge uses this to append a corrective record after a review
// produced edited content.
func (r *Recorder) CaptureFiles(files map[string][]byte, origin string) (*CaptureResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil, ErrNotOpen
	}
	return r.captureLocked(files, origin)
}

// captureLocked runs the snapshot/diff/append pipeline. A store write
// failure aborts before anything is appended, so the log stays at its last
// consistent state.
func (r *Recorder) captureLocked(files map[string][]byte, origin string) (*CaptureResult, error) {
	snap, err := r.store.Put(files, origin)
	if err != nil {
		return nil, fmt.Errorf("storing snapshot: %w", err)
	}
	// Content hash collapsed to the tail: nothing changed, append nothing.
	if snap.ID == r.tail {
		return &CaptureResult{}, nil
	}

	oldFiles, err := r.store.Contents(r.tail)
	if err != nil {
		return nil, fmt.Errorf("loading tail snapshot: %w", err)
	}
	rec, err := diff.Diff(r.tail, snap.ID, oldFiles, files)
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}
	// Stamp the frame with the time of this capture, not the snapshot's
	// metadata time: a revert can dedup to an old snapshot, and entries must
	// stay chronological.
	if err := r.log.Append(time.Now().UTC(), rec); err != nil {
		return nil, err
	}
	r.tail = snap.ID
	return &CaptureResult{Record: rec, Warnings: rec.Warnings}, nil
}

// Close seals the session log, recording an optional summary message. The
// session transitions to its closed state and further captures fail with
// ErrNotOpen.
func (r *Recorder) Close(at time.Time, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return ErrNotOpen
	}
	if err := r.log.Close(at, message); err != nil {
		return err
	}
	r.open = false
	return nil
}

// Release closes the log file handle without sealing the session.
func (r *Recorder) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return r.log.Release()
}
