package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GCResult reports what a garbage collection pass removed.
type GCResult struct {
	SnapshotsRemoved int
	BlobsRemoved     int
}

// GC removes every snapshot whose ID is not in live, then removes blobs no
// longer referenced by any remaining snapshot. Lifetime is decided by
// reachability from the session logs, not by reference counting; the caller
// builds the live set by scanning all known logs.
func (s *Store) GC(live map[ID]bool) (GCResult, error) {
	var res GCResult

	snapDir := filepath.Join(s.root, "snapshots")
	entries, err := os.ReadDir(snapDir)
	if err != nil {
		return res, fmt.Errorf("scanning snapshots: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := ID(strings.TrimSuffix(name, ".json"))
		if live[id] {
			continue
		}
		if err := os.Remove(filepath.Join(snapDir, name)); err != nil {
			return res, fmt.Errorf("removing snapshot %s: %w", id, err)
		}
		res.SnapshotsRemoved++
	}

	// Rebuild the set of referenced blobs from the surviving manifests.
	referenced := make(map[string]bool)
	entries, err = os.ReadDir(snapDir)
	if err != nil {
		return res, fmt.Errorf("rescanning snapshots: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		snap, err := s.Get(ID(strings.TrimSuffix(e.Name(), ".json")))
		if err != nil {
			return res, err
		}
		for _, hash := range snap.Files {
			referenced[hash] = true
		}
	}

	blobDir := filepath.Join(s.root, "blobs")
	entries, err = os.ReadDir(blobDir)
	if err != nil {
		return res, fmt.Errorf("scanning blobs: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".bin") {
			continue
		}
		if referenced[strings.TrimSuffix(name, ".bin")] {
			continue
		}
		if err := os.Remove(filepath.Join(blobDir, name)); err != nil {
			return res, fmt.Errorf("removing blob %s: %w", name, err)
		}
		res.BlobsRemoved++
	}

	return res, nil
}
