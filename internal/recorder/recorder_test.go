package recorder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/sessionlog"
	"github.com/tugtools/tug/internal/snapshot"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func beginTestSession(t *testing.T) (*Recorder, *snapshot.Store, string) {
	t.Helper()
	work := t.TempDir()
	writeFile(t, work, "main.go", "package main\n")

	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rec, warnings, err := Begin(store, t.TempDir(), work, nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return rec, store, work
}

func TestCaptureAppendsRecord(t *testing.T) {
	rec, _, work := beginTestSession(t)
	defer rec.Release()

	writeFile(t, work, "main.go", "package main\n\nfunc main() {}\n")
	res, err := rec.Capture("manual")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Record == nil {
		t.Fatal("expected a record for a changed tree")
	}
	st := res.Record.Stats()["main.go"]
	if st.Added != 2 {
		t.Errorf("expected +2 lines, got +%d", st.Added)
	}

	sess, err := sessionlog.Read(rec.Log().Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(sess.Entries))
	}
	if sess.Entries[0].Record.From != sess.Baseline {
		t.Error("first record does not start at the baseline")
	}
}

// TestUnchangedTreeAppendsNothing: capturing an identical tree is a no-op.
func TestUnchangedTreeAppendsNothing(t *testing.T) {
	rec, _, _ := beginTestSession(t)
	defer rec.Release()

	res, err := rec.Capture("manual")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Record != nil {
		t.Error("expected no record for an unchanged tree")
	}

	sess, err := sessionlog.Read(rec.Log().Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 0 {
		t.Errorf("expected empty log, got %d entries", len(sess.Entries))
	}
}

// TestSessionReplay: replaying every record over the baseline reproduces the
// final working tree byte-exactly.
func TestSessionReplay(t *testing.T) {
	rec, store, work := beginTestSession(t)

	writeFile(t, work, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, work, "util.go", "package main\n\nconst n = 1\n")
	if _, err := rec.Capture("manual"); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(work, "util.go")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, work, "main.go", "package main\n\nfunc main() { run() }\n")
	if _, err := rec.Capture("manual"); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(time.Now(), ""); err != nil {
		t.Fatal(err)
	}

	sess, err := sessionlog.Read(rec.Log().Path())
	if err != nil {
		t.Fatal(err)
	}
	state, err := store.Contents(sess.Baseline)
	if err != nil {
		t.Fatal(err)
	}
	for i, entry := range sess.Entries {
		state, err = diff.Apply(state, entry.Record)
		if err != nil {
			t.Fatalf("replaying record %d: %v", i, err)
		}
	}

	final, _, err := ReadTree(work, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(state) != len(final) {
		t.Fatalf("replay has %d paths, tree has %d", len(state), len(final))
	}
	for path, want := range final {
		if !bytes.Equal(state[path], want) {
			t.Errorf("replay mismatch at %s", path)
		}
	}
}

// TestRevertKeepsTimestampsChronological: reverting the tree to earlier
// content dedups to the earlier snapshot, but the appended frame must carry
// the time of this capture, not that snapshot's metadata time.
func TestRevertKeepsTimestampsChronological(t *testing.T) {
	rec, _, work := beginTestSession(t)
	defer rec.Release()

	writeFile(t, work, "main.go", "package main // edited\n")
	if _, err := rec.Capture("manual"); err != nil {
		t.Fatal(err)
	}

	// Back to the baseline content.
	writeFile(t, work, "main.go", "package main\n")
	res, err := rec.Capture("manual")
	if err != nil {
		t.Fatal(err)
	}
	if res.Record == nil {
		t.Fatal("expected a record for the revert")
	}

	sess, err := sessionlog.Read(rec.Log().Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(sess.Entries))
	}
	if sess.Entries[1].Record.To != sess.Baseline {
		t.Error("revert should dedup to the baseline snapshot")
	}
	if sess.Entries[1].CapturedAt.Before(sess.Entries[0].CapturedAt) {
		t.Errorf("log timestamps go backwards: %v before %v",
			sess.Entries[1].CapturedAt, sess.Entries[0].CapturedAt)
	}
}

func TestCaptureAfterCloseFails(t *testing.T) {
	rec, _, _ := beginTestSession(t)
	if err := rec.Close(time.Now(), "done"); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Capture("manual"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if err := rec.Close(time.Now(), ""); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen on double close, got %v", err)
	}
}

func TestResumeContinuesAtTail(t *testing.T) {
	rec, store, work := beginTestSession(t)

	writeFile(t, work, "main.go", "package main // v2\n")
	if _, err := rec.Capture("manual"); err != nil {
		t.Fatal(err)
	}
	tail := rec.Tail()
	logPath := rec.Log().Path()
	if err := rec.Release(); err != nil {
		t.Fatal(err)
	}

	resumed, err := Resume(store, logPath, nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	defer resumed.Release()
	if resumed.Tail() != tail {
		t.Errorf("resumed tail %s, want %s", resumed.Tail(), tail)
	}

	writeFile(t, work, "main.go", "package main // v3\n")
	res, err := resumed.Capture("manual")
	if err != nil {
		t.Fatal(err)
	}
	if res.Record == nil || res.Record.From != tail {
		t.Error("resumed capture does not chain from the previous tail")
	}
}

func TestResumeClosedSessionFails(t *testing.T) {
	rec, store, _ := beginTestSession(t)
	logPath := rec.Log().Path()
	if err := rec.Close(time.Now(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := Resume(store, logPath, nil); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestIgnorePatternsRespected(t *testing.T) {
	work := t.TempDir()
	writeFile(t, work, "keep.go", "package x\n")
	writeFile(t, work, "skip.log", "noise\n")
	writeFile(t, work, "vendor/dep.go", "package dep\n")
	writeFile(t, work, ".gitignore", "vendor\n")

	files, _, err := ReadTree(work, []string{"*.log"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := files["keep.go"]; !ok {
		t.Error("keep.go missing from tree")
	}
	if _, ok := files["skip.log"]; ok {
		t.Error("configured pattern not applied")
	}
	if _, ok := files["vendor/dep.go"]; ok {
		t.Error(".gitignore pattern not applied")
	}
	if _, ok := files[".gitignore"]; !ok {
		t.Error(".gitignore itself should be captured")
	}
}

// TestDebouncerCoalesces: a burst of triggers fires the callback once.
func TestDebouncerCoalesces(t *testing.T) {
	var fired atomic.Int32
	db := NewDebouncer(30*time.Millisecond, func() { fired.Add(1) })
	defer db.Stop()

	for i := 0; i < 10; i++ {
		db.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly 1 firing, got %d", got)
	}

	// A fresh trigger after the quiet window fires again.
	db.Trigger()
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Errorf("expected 2 firings total, got %d", got)
	}
}

func TestActivePointerLifecycle(t *testing.T) {
	dataDir := t.TempDir()
	work := "/some/project"

	if _, err := LoadActive(dataDir, work); !errors.Is(err, ErrNoActive) {
		t.Fatalf("expected ErrNoActive, got %v", err)
	}
	if err := MarkActive(dataDir, work, "session-id", "/logs/x.tuglog"); err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	if err := MarkActive(dataDir, work, "other", "/logs/y.tuglog"); err == nil {
		t.Error("expected second MarkActive for the same directory to fail")
	}

	path, err := LoadActive(dataDir, work)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if path != "/logs/x.tuglog" {
		t.Errorf("log path = %q", path)
	}

	if err := ClearActive(dataDir, work); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadActive(dataDir, work); !errors.Is(err, ErrNoActive) {
		t.Errorf("expected ErrNoActive after clear, got %v", err)
	}
	// Clearing twice is fine.
	if err := ClearActive(dataDir, work); err != nil {
		t.Errorf("ClearActive should be idempotent: %v", err)
	}
}
