package sessionlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/snapshot"
)

// On-disk layout, integers little-endian:
//
//	header:  magic "TUGLOG01", u16 version, 16-byte session UUID,
//	         i64 start unix-nano, u8 closed flag,
//	         str workdir, str baseline snapshot id
//	frames:  u32 payload length, u64 xxh3 checksum of payload, payload
//	payload: u8 kind (frameRecord | frameClose), i64 unix-nano timestamp,
//	         record bytes (frameRecord only)
//
// Appends are flushed per frame; a partial or mangled trailing frame is
// discarded on read so a crashed append never poisons the log. Any prefix
// of a valid log is itself a valid log.

const (
	logVersion  = 1
	frameRecord = byte(0)
	frameClose  = byte(1)

	// closedFlagOffset is the fixed position of the closed byte:
	// magic(8) + version(2) + uuid(16) + start(8).
	closedFlagOffset = 34

	// Extension of session log files in the sessions directory.
	FileExt = ".tuglog"
)

var logMagic = []byte("TUGLOG01")

// ErrClosed is returned by Append on a sealed log.
var ErrClosed = errors.New("session log is closed")

// ErrCorruptHeader is returned when a log file's header cannot be parsed.
var ErrCorruptHeader = errors.New("corrupt session log header")

// Log is an open handle for appending to one session log file.
// Appends within a session are serialized by the log's own lock; the
// recorder additionally holds its per-session lock across capture+append.
type Log struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	id     uuid.UUID
	closed bool
}

// Create starts a new session log in dir for the given working directory and
// baseline snapshot, returning the open log handle.
func Create(dir, workDir string, baseline snapshot.ID) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	id := uuid.New()
	path := filepath.Join(dir, id.String()+FileExt)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating session log: %w", err)
	}

	var hdr []byte
	hdr = append(hdr, logMagic...)
	hdr = binary.LittleEndian.AppendUint16(hdr, logVersion)
	hdr = append(hdr, id[:]...)
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(time.Now().UTC().UnixNano()))
	hdr = append(hdr, 0) // open
	hdr = appendString(hdr, workDir)
	hdr = appendString(hdr, string(baseline))

	if _, err := f.Write(hdr); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing session log header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("syncing session log header: %w", err)
	}
	return &Log{path: path, f: f, id: id}, nil
}

// OpenAppend reopens an existing log for appending. Any invalid trailing
// bytes left by a crashed append are truncated away first.
func OpenAppend(path string) (*Log, error) {
	sess, validEnd, err := readLog(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	if err := f.Truncate(validEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating session log tail: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking session log: %w", err)
	}
	return &Log{path: path, f: f, id: sess.ID, closed: !sess.Open()}, nil
}

// ID returns the session ID this log belongs to.
func (l *Log) ID() uuid.UUID { return l.id }

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Append writes one diff record frame and flushes it to disk.
func (l *Log) Append(at time.Time, rec *diff.Record) error {
	recBytes, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding diff record: %w", err)
	}
	payload := make([]byte, 0, len(recBytes)+9)
	payload = append(payload, frameRecord)
	payload = binary.LittleEndian.AppendUint64(payload, uint64(at.UTC().UnixNano()))
	payload = append(payload, recBytes...)
	return l.appendFrame(payload)
}

// Close seals the log: it appends a close frame carrying the close time and
// an optional summary message, then flips the header's closed flag. Further
// appends fail with ErrClosed.
func (l *Log) Close(at time.Time, message string) error {
	payload := make([]byte, 0, 9+4+len(message))
	payload = append(payload, frameClose)
	payload = binary.LittleEndian.AppendUint64(payload, uint64(at.UTC().UnixNano()))
	payload = appendString(payload, message)
	if err := l.appendFrame(payload); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.WriteAt([]byte{1}, closedFlagOffset); err != nil {
		return fmt.Errorf("sealing session log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing session log: %w", err)
	}
	l.closed = true
	return l.f.Close()
}

// Release closes the file handle without sealing the session.
func (l *Log) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.f.Close()
}

func (l *Log) appendFrame(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	frame := make([]byte, 0, len(payload)+12)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	frame = binary.LittleEndian.AppendUint64(frame, xxh3.Hash(payload))
	frame = append(frame, payload...)

	if _, err := l.f.Write(frame); err != nil {
		return fmt.Errorf("appending to session log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing session log: %w", err)
	}
	return nil
}

// Read loads a session log from disk. Re-reading an unchanged log always
// reproduces the same Session.
func Read(path string) (*Session, error) {
	sess, _, err := readLog(path)
	return sess, err
}

// Scan returns the session log paths under dir, sorted by name.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning sessions directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// readLog parses a log file and returns the session plus the offset just
// past the last valid frame.
func readLog(path string) (*Session, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading session log: %w", err)
	}

	d := decoder{buf: data}
	magic := d.take(len(logMagic))
	if d.err != nil || string(magic) != string(logMagic) {
		return nil, 0, fmt.Errorf("%w: bad magic in %s", ErrCorruptHeader, path)
	}
	if v := d.uint16(); d.err == nil && v != logVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrCorruptHeader, v)
	}
	idBytes := d.take(16)
	start := d.uint64()
	closed := d.take(1)
	workDir := d.string()
	baseline := d.string()
	if d.err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrCorruptHeader, path)
	}

	sess := &Session{
		StartTime: time.Unix(0, int64(start)).UTC(),
		WorkDir:   workDir,
		Baseline:  snapshot.ID(baseline),
	}
	copy(sess.ID[:], idBytes)
	headerClosed := closed[0] != 0

	validEnd := int64(d.off)
	for {
		payload, ok := d.frame()
		if !ok {
			break // partial or mangled tail: discard
		}
		fd := decoder{buf: payload}
		kind := fd.take(1)
		at := fd.uint64()
		if fd.err != nil {
			break
		}
		ts := time.Unix(0, int64(at)).UTC()
		switch kind[0] {
		case frameRecord:
			var rec diff.Record
			if err := rec.UnmarshalBinary(payload[fd.off:]); err != nil {
				return nil, validEnd, fmt.Errorf("record %d in %s: %w", len(sess.Entries), path, err)
			}
			sess.Entries = append(sess.Entries, Entry{CapturedAt: ts, Record: &rec})
		case frameClose:
			sess.CloseTime = &ts
			sess.CloseMessage = fd.string()
			if fd.err != nil {
				sess.CloseMessage = ""
			}
		default:
			return nil, validEnd, fmt.Errorf("unknown frame kind %d in %s", kind[0], path)
		}
		validEnd = int64(d.off)
	}

	// The header flag can lag the close frame if a crash hit between the
	// two writes; the close frame wins either way.
	if headerClosed && sess.CloseTime == nil {
		t := sess.StartTime
		if n := len(sess.Entries); n > 0 {
			t = sess.Entries[n-1].CapturedAt
		}
		sess.CloseTime = &t
	}
	return sess, validEnd, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// decoder walks log bytes, latching the first error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.off+n > len(d.buf) {
		d.err = fmt.Errorf("truncated at offset %d", d.off)
		return false
	}
	return true
}

func (d *decoder) take(n int) []byte {
	if !d.need(n) {
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uint16() uint16 {
	b := d.take(2)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) string() string {
	n := d.uint32()
	b := d.take(int(n))
	if d.err != nil {
		return ""
	}
	return string(b)
}

// frame reads one checksummed frame. ok is false when the remaining bytes do
// not form a complete, checksum-valid frame.
func (d *decoder) frame() ([]byte, bool) {
	if d.err != nil || d.off == len(d.buf) {
		return nil, false
	}
	save := d.off
	n := d.uint32()
	sum := d.uint64()
	payload := d.take(int(n))
	if d.err != nil || xxh3.Hash(payload) != sum {
		d.off = save
		d.err = nil
		return nil, false
	}
	return payload, true
}
