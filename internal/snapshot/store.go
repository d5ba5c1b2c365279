package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// ErrNotFound is returned by Get when a snapshot does not exist or has been
// garbage-collected.
var ErrNotFound = errors.New("snapshot not found")

// Store is the on-disk content-addressed snapshot store.
//
// Layout under root:
//
//	blobs/<content-hash>.bin    deduplicated file contents
//	snapshots/<id>.json         snapshot manifests
//
// Concurrent writes of identical content are idempotent: a blob or manifest
// that already exists is never rewritten.
type Store struct {
	root string
}

// NewStore opens (creating if needed) a snapshot store rooted at dir.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"blobs", "snapshots"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return &Store{root: dir}, nil
}

// Put stores the given file contents as a snapshot and returns it.
// The returned snapshot's ID depends only on the content, so putting the
// same files twice yields the same ID and the first manifest is kept.
// All writes are durable (temp file + rename) before Put returns.
func (s *Store) Put(files map[string][]byte, origin string) (*Snapshot, error) {
	manifest := make(map[string]string, len(files))
	for path, data := range files {
		hash := HashContent(data)
		if err := s.writeBlob(hash, data); err != nil {
			return nil, err
		}
		manifest[path] = hash
	}

	id := manifestID(manifest)
	snapPath := filepath.Join(s.root, "snapshots", string(id)+".json")

	// Identical content was already snapshotted; keep the original metadata.
	if existing, err := s.Get(id); err == nil {
		return existing, nil
	}

	snap := &Snapshot{
		ID:         id,
		CapturedAt: time.Now().UTC(),
		Origin:     origin,
		Files:      manifest,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", id, err)
	}
	if err := writeAtomic(snapPath, data); err != nil {
		return nil, fmt.Errorf("storing snapshot %s: %w", id, err)
	}
	return snap, nil
}

// Get loads a snapshot manifest by ID. Returns ErrNotFound if it does not
// exist or has been collected.
func (s *Store) Get(id ID) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "snapshots", string(id)+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// Contents loads the full file contents of a snapshot.
func (s *Store) Contents(id ID) (map[string][]byte, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, len(snap.Files))
	for path, hash := range snap.Files {
		data, err := os.ReadFile(filepath.Join(s.root, "blobs", hash+".bin"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("blob %s for %s: %w", hash, path, ErrNotFound)
			}
			return nil, fmt.Errorf("reading blob %s: %w", hash, err)
		}
		files[path] = data
	}
	return files, nil
}

// Materialize writes a snapshot's contents under dir, preserving relative
// paths. Used by the editor bridge to hand real paths to external tools.
func (s *Store) Materialize(id ID, dir string) error {
	files, err := s.Contents(id)
	if err != nil {
		return err
	}
	for path, data := range files {
		dst := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("materializing %s: %w", path, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("materializing %s: %w", path, err)
		}
	}
	return nil
}

// writeBlob stores one content blob atomically, skipping if it already exists.
func (s *Store) writeBlob(hash string, data []byte) error {
	dst := filepath.Join(s.root, "blobs", hash+".bin")
	if fi, err := os.Stat(dst); err == nil && fi.Size() == int64(len(data)) {
		return nil
	}
	if err := writeAtomic(dst, data); err != nil {
		return fmt.Errorf("storing blob %s: %w", hash, err)
	}
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory so
// the final os.Rename is atomic.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// manifestID hashes the canonical form of a manifest: paths sorted, each
// entry as "path\x00hash\n".
func manifestID(manifest map[string]string) ID {
	paths := make([]string, 0, len(manifest))
	for p := range manifest {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte(0)
		sb.WriteString(manifest[p])
		sb.WriteByte('\n')
	}
	h := xxh3.Hash128([]byte(sb.String())).Bytes()
	return ID(hex.EncodeToString(h[:]))
}
