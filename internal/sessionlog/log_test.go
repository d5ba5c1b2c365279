package sessionlog

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/snapshot"
)

// testRecord builds a small record between two opaque snapshot IDs.
func testRecord(t *testing.T, from, to string) *diff.Record {
	t.Helper()
	rec, err := diff.Diff(
		snapshot.ID(from), snapshot.ID(to),
		map[string][]byte{"f.txt": []byte("old\n")},
		map[string][]byte{"f.txt": []byte("new\n")})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	return rec
}

func TestLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log, err := Create(dir, "/work/project", "baseline-id")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)
	if err := log.Append(t1, testRecord(t, "baseline-id", "snap-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(t2, testRecord(t, "snap-1", "snap-2")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	closeAt := t2.Add(time.Minute)
	if err := log.Close(closeAt, "wrapped up the refactor"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sess, err := Read(log.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if sess.ID != log.ID() {
		t.Errorf("session ID mismatch")
	}
	if sess.WorkDir != "/work/project" {
		t.Errorf("workdir = %q", sess.WorkDir)
	}
	if string(sess.Baseline) != "baseline-id" {
		t.Errorf("baseline = %q", sess.Baseline)
	}
	if len(sess.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(sess.Entries))
	}
	if !sess.Entries[0].CapturedAt.Equal(t1) || !sess.Entries[1].CapturedAt.Equal(t2) {
		t.Errorf("capture timestamps not preserved")
	}
	if sess.Open() {
		t.Error("closed session reported open")
	}
	if !sess.CloseTime.Equal(closeAt) {
		t.Errorf("close time = %v, want %v", sess.CloseTime, closeAt)
	}
	if sess.CloseMessage != "wrapped up the refactor" {
		t.Errorf("close message = %q", sess.CloseMessage)
	}
	if string(sess.Tail()) != "snap-2" {
		t.Errorf("tail = %q", sess.Tail())
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	log, err := Create(t.TempDir(), "/w", "base")
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Close(time.Now(), ""); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(time.Now(), testRecord(t, "a", "b")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// TestTruncatedTailDiscarded: a partial trailing frame (crashed append) is
// invisible to readers and removed by OpenAppend.
func TestTruncatedTailDiscarded(t *testing.T) {
	dir := t.TempDir()
	log, err := Create(dir, "/w", "base")
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Append(time.Now(), testRecord(t, "base", "snap-1")); err != nil {
		t.Fatal(err)
	}
	path := log.Path()
	if err := log.Release(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-append: garbage that is not a complete frame.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{0xde, 0xad, 0xbe}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	sess, err := Read(path)
	if err != nil {
		t.Fatalf("Read after mangled tail: %v", err)
	}
	if len(sess.Entries) != 1 {
		t.Fatalf("expected the 1 valid entry, got %d", len(sess.Entries))
	}

	// OpenAppend truncates the garbage; the log is appendable again.
	log2, err := OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if err := log2.Append(time.Now(), testRecord(t, "snap-1", "snap-2")); err != nil {
		t.Fatalf("Append after truncation: %v", err)
	}
	if err := log2.Release(); err != nil {
		t.Fatal(err)
	}

	sess, err = Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Entries) != 2 {
		t.Fatalf("expected 2 entries after repair, got %d", len(sess.Entries))
	}
	if string(sess.Tail()) != "snap-2" {
		t.Errorf("tail = %q", sess.Tail())
	}
}

// TestCorruptedFrameChecksum: flipping a byte inside the last frame must
// discard that frame, not the whole log.
func TestCorruptedFrameChecksum(t *testing.T) {
	log, err := Create(t.TempDir(), "/w", "base")
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Append(time.Now(), testRecord(t, "base", "snap-1")); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(time.Now(), testRecord(t, "snap-1", "snap-2")); err != nil {
		t.Fatal(err)
	}
	path := log.Path()
	if err := log.Release(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sess, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(sess.Entries) != 1 {
		t.Errorf("expected the corrupt frame to be discarded, got %d entries", len(sess.Entries))
	}
}

func TestReadRejectsBadHeader(t *testing.T) {
	path := t.TempDir() + "/bad.tuglog"
	if err := os.WriteFile(path, []byte("NOTALOG0junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("expected ErrCorruptHeader, got %v", err)
	}
}

func TestScanSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.tuglog", "a.tuglog", "notes.txt"} {
		if err := os.WriteFile(dir+"/"+name, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	paths, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 logs, got %v", paths)
	}
	if paths[0] > paths[1] {
		t.Errorf("paths not sorted: %v", paths)
	}
}
