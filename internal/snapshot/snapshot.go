// Package snapshot implements the content-addressed snapshot store.
//
// A snapshot is an immutable capture of a set of file contents. Blobs are
// stored once per unique content hash, so repeated captures of an unchanged
// tree cost only a manifest.
package snapshot

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/xxh3"
)

// ID identifies a snapshot. It is the hex xxh3-128 hash of the snapshot's
// canonical manifest, so identical content always yields an identical ID.
type ID string

// Snapshot is an immutable, content-addressed capture of file contents at
// one instant. Files maps each path to the hex hash of its content blob.
type Snapshot struct {
	ID         ID                `json:"id"`
	CapturedAt time.Time         `json:"captured_at"`
	Origin     string            `json:"origin"` // trigger that produced it: manual | watch | commit | review
	Files      map[string]string `json:"files"`
}

// HashContent returns the hex xxh3-128 hash of a content blob.
func HashContent(data []byte) string {
	h := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(h[:])
}
