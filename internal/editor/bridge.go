// Package editor mediates interactive review of a diff record through an
// external diff-editor process, with best-effort window focus via an
// external window-control utility.
//
// Both external programs are capability interfaces so tests can substitute
// canned outcomes without spawning real windows.
package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/snapshot"
)

// Outcome is the result of one review.
type Outcome int

const (
	// Accepted: the reviewer approved the record as-is.
	Accepted Outcome = iota
	// Rejected: the reviewer aborted, or the editor failed. The session log
	// is never touched on rejection.
	Rejected
	// Edited: the reviewer produced new content; the caller appends a
	// corrective record for it.
	Edited
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Edited:
		return "edited"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Launcher runs the external diff editor against two materialized snapshot
// directories and an output directory, blocking until it exits. A non-nil
// error means the editor failed to launch, crashed, or exited non-zero.
type Launcher interface {
	Launch(ctx context.Context, left, right, out string) error
}

// WindowControl requests foreground focus for a window by title. Focus is a
// usability affordance only; failures are reported as warnings, never
// propagated.
type WindowControl interface {
	Focus(title string) error
}

// Result is the outcome of Bridge.Review. On Edited, Files holds the full
// post-edit tree (the record's to content overlaid with the edited files).
type Result struct {
	Outcome  Outcome
	Files    map[string][]byte
	Warnings []string
}

// Bridge drives one review at a time. Review is inherently serial: a human
// interacts with one editor window per invocation.
type Bridge struct {
	Store       *snapshot.Store
	Launcher    Launcher
	Window      WindowControl // optional
	WindowTitle string

	// focusDelay gives the editor time to map its window before the focus
	// request. Tests shorten it.
	focusDelay time.Duration
}

// Review materializes the record's two snapshots, launches the external
// diff editor over them, and interprets its exit. Only store failures are
// returned as errors; editor failures degrade to a Rejected result.
func (b *Bridge) Review(ctx context.Context, rec *diff.Record) (Result, error) {
	tmp, err := os.MkdirTemp("", "tug-review-")
	if err != nil {
		return Result{Outcome: Rejected}, fmt.Errorf("creating review directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	left := filepath.Join(tmp, "from")
	right := filepath.Join(tmp, "to")
	out := filepath.Join(tmp, "out")
	for _, dir := range []string{left, right, out} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{Outcome: Rejected}, fmt.Errorf("creating review directory: %w", err)
		}
	}
	if err := b.Store.Materialize(rec.From, left); err != nil {
		return Result{Outcome: Rejected}, err
	}
	if err := b.Store.Materialize(rec.To, right); err != nil {
		return Result{Outcome: Rejected}, err
	}

	// Request focus once the editor has had a moment to open its window.
	var (
		warnMu   sync.Mutex
		warnings []string
		focusWG  sync.WaitGroup
	)
	if b.Window != nil {
		delay := b.focusDelay
		if delay <= 0 {
			delay = 200 * time.Millisecond
		}
		focusWG.Add(1)
		go func() {
			defer focusWG.Done()
			time.Sleep(delay)
			if err := b.Window.Focus(b.WindowTitle); err != nil {
				warnMu.Lock()
				warnings = append(warnings, "window focus failed: "+err.Error())
				warnMu.Unlock()
			}
		}()
	}

	launchErr := b.Launcher.Launch(ctx, left, right, out)
	focusWG.Wait()

	if launchErr != nil {
		warnings = append(warnings, "editor exited abnormally: "+launchErr.Error())
		return Result{Outcome: Rejected, Warnings: warnings}, nil
	}

	edited, err := readTreeFlat(out)
	if err != nil {
		return Result{Outcome: Rejected, Warnings: warnings}, fmt.Errorf("reading edited output: %w", err)
	}
	if len(edited) == 0 {
		return Result{Outcome: Accepted, Warnings: warnings}, nil
	}

	// Overlay the edits on the record's to content to form the full
	// post-edit tree the corrective record should lead to.
	files, err := b.Store.Contents(rec.To)
	if err != nil {
		return Result{Outcome: Rejected, Warnings: warnings}, err
	}
	for path, data := range edited {
		files[path] = data
	}
	return Result{Outcome: Edited, Files: files, Warnings: warnings}, nil
}

// readTreeFlat reads every file under dir keyed by slash-relative path.
func readTreeFlat(dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	return files, err
}
