package editor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/snapshot"
)

// fakeLauncher stands in for the external diff editor. Behavior runs with
// the materialized directories, which only exist for the duration of the
// launch; a nil behavior means "accept without edits".
type fakeLauncher struct {
	behavior func(left, right, out string) error
}

func (f *fakeLauncher) Launch(ctx context.Context, left, right, out string) error {
	if f.behavior == nil {
		return nil
	}
	return f.behavior(left, right, out)
}

type fakeWindow struct {
	title string
	err   error
}

func (w *fakeWindow) Focus(title string) error {
	w.title = title
	return w.err
}

// reviewFixture stores two snapshots and the record between them.
func reviewFixture(t *testing.T) (*snapshot.Store, *diff.Record) {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	oldFiles := map[string][]byte{"a.txt": []byte("one\ntwo\n")}
	newFiles := map[string][]byte{"a.txt": []byte("one\nTWO\n"), "b.txt": []byte("fresh\n")}

	from, err := store.Put(oldFiles, "baseline")
	if err != nil {
		t.Fatal(err)
	}
	to, err := store.Put(newFiles, "manual")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := diff.Diff(from.ID, to.ID, oldFiles, newFiles)
	if err != nil {
		t.Fatal(err)
	}
	return store, rec
}

func TestReviewAccepted(t *testing.T) {
	store, rec := reviewFixture(t)

	// The review directories are cleaned up when Review returns, so the
	// editor's view of them must be checked while it is "running".
	launched := false
	launcher := &fakeLauncher{behavior: func(left, right, _ string) error {
		launched = true
		leftData, err := os.ReadFile(filepath.Join(left, "a.txt"))
		if err != nil {
			t.Errorf("left side not materialized: %v", err)
		} else if string(leftData) != "one\ntwo\n" {
			t.Errorf("left a.txt = %q", leftData)
		}
		rightData, err := os.ReadFile(filepath.Join(right, "b.txt"))
		if err != nil {
			t.Errorf("right side not materialized: %v", err)
		} else if string(rightData) != "fresh\n" {
			t.Errorf("right b.txt = %q", rightData)
		}
		return nil
	}}
	bridge := &Bridge{Store: store, Launcher: launcher}

	res, err := bridge.Review(context.Background(), rec)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if res.Outcome != Accepted {
		t.Fatalf("outcome = %v, want accepted", res.Outcome)
	}
	if !launched {
		t.Fatal("editor was never launched")
	}
}

// TestReviewRejected: a non-zero editor exit means rejection; the caller
// leaves the session log untouched.
func TestReviewRejected(t *testing.T) {
	store, rec := reviewFixture(t)
	bridge := &Bridge{
		Store: store,
		Launcher: &fakeLauncher{behavior: func(_, _, _ string) error {
			return errors.New("exit status 1")
		}},
	}

	res, err := bridge.Review(context.Background(), rec)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if res.Outcome != Rejected {
		t.Errorf("outcome = %v, want rejected", res.Outcome)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning describing the editor failure")
	}
	if res.Files != nil {
		t.Error("rejected review must not carry files")
	}
}

// TestReviewEdited: files the editor saves into the output directory overlay
// the record's to content.
func TestReviewEdited(t *testing.T) {
	store, rec := reviewFixture(t)
	bridge := &Bridge{
		Store: store,
		Launcher: &fakeLauncher{behavior: func(_, _, out string) error {
			return os.WriteFile(filepath.Join(out, "a.txt"), []byte("one\nedited\n"), 0o644)
		}},
	}

	res, err := bridge.Review(context.Background(), rec)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if res.Outcome != Edited {
		t.Fatalf("outcome = %v, want edited", res.Outcome)
	}
	if string(res.Files["a.txt"]) != "one\nedited\n" {
		t.Errorf("edited file not overlaid: %q", res.Files["a.txt"])
	}
	// Untouched files keep the to-side content.
	if string(res.Files["b.txt"]) != "fresh\n" {
		t.Errorf("unedited file lost: %q", res.Files["b.txt"])
	}
}

// TestFocusFailureIsWarning: window focus is best-effort; its failure never
// changes the outcome.
func TestFocusFailureIsWarning(t *testing.T) {
	store, rec := reviewFixture(t)
	window := &fakeWindow{err: errors.New("no such window")}
	bridge := &Bridge{
		Store:       store,
		Launcher:    &fakeLauncher{},
		Window:      window,
		WindowTitle: "tug-diff-editor",
		focusDelay:  time.Millisecond,
	}

	res, err := bridge.Review(context.Background(), rec)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if res.Outcome != Accepted {
		t.Errorf("outcome = %v, want accepted", res.Outcome)
	}
	if window.title != "tug-diff-editor" {
		t.Errorf("focus requested for %q", window.title)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "focus") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a focus warning, got %v", res.Warnings)
	}
}
