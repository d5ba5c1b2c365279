package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/tugtools/tug/internal/vcs"
)

// TriggerFunc is invoked by a trigger source when a capture should happen.
// Origin names the source for snapshot metadata.
type TriggerFunc func(origin string)

// TriggerSource produces capture triggers until its context is cancelled.
// The capture mechanism is deliberately pluggable: manual CLI commands, a
// filesystem watcher, and VCS commit polling are all sources, and callers
// can run any combination.
type TriggerSource interface {
	Run(ctx context.Context, fire TriggerFunc) error
}

// Debouncer coalesces bursts of triggers into a single firing: fn runs once
// per quiet window, no matter how many Trigger calls land inside it. This
// keeps racing file events from producing spurious zero-content records.
type Debouncer struct {
	mu    sync.Mutex
	d     time.Duration
	timer *time.Timer
	fn    func()
}

// NewDebouncer returns a debouncer invoking fn after d of trigger silence.
func NewDebouncer(d time.Duration, fn func()) *Debouncer {
	return &Debouncer{d: d, fn: fn}
}

// Trigger schedules (or reschedules) the firing.
func (db *Debouncer) Trigger() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.timer != nil {
		db.timer.Stop()
	}
	db.timer = time.AfterFunc(db.d, db.fn)
}

// Stop cancels any pending firing.
func (db *Debouncer) Stop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
}

// CommitOrigin builds the capture origin for a commit boundary; the commit
// hash rides in the origin so the caller can read that exact tree.
func CommitOrigin(head string) string { return "commit:" + head }

// ParseCommitOrigin extracts the commit hash from an origin produced by
// CommitOrigin.
func ParseCommitOrigin(origin string) (head string, ok bool) {
	const prefix = "commit:"
	if len(origin) > len(prefix) && origin[:len(prefix)] == prefix {
		return origin[len(prefix):], true
	}
	return "", false
}

// CommitTrigger fires when the repository's HEAD moves, marking a commit
// boundary. Outside a git repository it is a no-op source.
type CommitTrigger struct {
	Client   *vcs.Client
	Interval time.Duration // defaults to 2s
}

// Run polls HEAD until ctx is cancelled.
func (t *CommitTrigger) Run(ctx context.Context, fire TriggerFunc) error {
	interval := t.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	last, ok, err := t.Client.Head()
	if err != nil {
		return err
	}
	if !ok {
		return nil // not a repository
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			head, ok, err := t.Client.Head()
			if err != nil || !ok {
				continue
			}
			if head != last {
				last = head
				fire(CommitOrigin(head))
			}
		}
	}
}
