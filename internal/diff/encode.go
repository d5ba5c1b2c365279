package diff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/tugtools/tug/internal/snapshot"
)

// Binary record layout, all integers little-endian:
//
//	magic "TDR1"
//	str from, str to
//	u32 warning count, warnings as str
//	u32 hunk count, hunks as:
//	  str path, u8 op, u32 oldStart, u32 oldLines, u32 newStart, u32 newLines
//	  u32 line count, lines as: u8 op, str text
//
// where str is u32 length followed by raw bytes. The layout is fixed so that
// equal records always serialize to equal bytes.

var recordMagic = [4]byte{'T', 'D', 'R', '1'}

// ErrCorrupt is returned when record bytes cannot be decoded.
var ErrCorrupt = errors.New("corrupt diff record")

// MarshalBinary serializes the record to its stable binary form.
func (r *Record) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 256)
	b = append(b, recordMagic[:]...)
	b = appendString(b, string(r.From))
	b = appendString(b, string(r.To))

	b = binary.LittleEndian.AppendUint32(b, uint32(len(r.Warnings)))
	for _, w := range r.Warnings {
		b = appendString(b, w)
	}

	b = binary.LittleEndian.AppendUint32(b, uint32(len(r.Hunks)))
	for _, h := range r.Hunks {
		b = appendString(b, h.Path)
		b = append(b, byte(h.Op))
		b = binary.LittleEndian.AppendUint32(b, uint32(h.OldStart))
		b = binary.LittleEndian.AppendUint32(b, uint32(h.OldLines))
		b = binary.LittleEndian.AppendUint32(b, uint32(h.NewStart))
		b = binary.LittleEndian.AppendUint32(b, uint32(h.NewLines))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(h.Lines)))
		for _, l := range h.Lines {
			b = append(b, byte(l.Op))
			b = appendString(b, l.Text)
		}
	}
	return b, nil
}

// UnmarshalBinary decodes a record previously produced by MarshalBinary.
func (r *Record) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}

	var magic [4]byte
	d.bytes(magic[:])
	if d.err == nil && magic != recordMagic {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	r.From = snapshot.ID(d.string())
	r.To = snapshot.ID(d.string())

	nWarn := d.uint32()
	if d.err == nil && nWarn > 0 {
		r.Warnings = make([]string, 0, min(nWarn, 1024))
		for i := uint32(0); i < nWarn && d.err == nil; i++ {
			r.Warnings = append(r.Warnings, d.string())
		}
	}

	nHunks := d.uint32()
	if d.err == nil && nHunks > 0 {
		r.Hunks = make([]Hunk, 0, min(nHunks, 1024))
		for i := uint32(0); i < nHunks && d.err == nil; i++ {
			var h Hunk
			h.Path = d.string()
			h.Op = FileOp(d.byte())
			h.OldStart = int(d.uint32())
			h.OldLines = int(d.uint32())
			h.NewStart = int(d.uint32())
			h.NewLines = int(d.uint32())
			nLines := d.uint32()
			if d.err == nil && nLines > 0 {
				h.Lines = make([]Line, 0, min(nLines, 4096))
				for j := uint32(0); j < nLines && d.err == nil; j++ {
					var l Line
					l.Op = LineOp(d.byte())
					l.Text = d.string()
					h.Lines = append(h.Lines, l)
				}
			}
			r.Hunks = append(r.Hunks, h)
		}
	}

	if d.err != nil {
		return d.err
	}
	if len(d.buf) != d.off {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.buf)-d.off)
	}
	return nil
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// decoder walks a byte slice, latching the first error.
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
		d.err = fmt.Errorf("%w: truncated at offset %d", ErrCorrupt, d.off)
		return false
	}
	return true
}

func (d *decoder) byte() byte {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) bytes(dst []byte) {
	if !d.need(len(dst)) {
		return
	}
	copy(dst, d.buf[d.off:])
	d.off += len(dst)
}

func (d *decoder) uint32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) string() string {
	n := d.uint32()
	if d.err != nil {
		return ""
	}
	if n > math.MaxInt32 || !d.need(int(n)) {
		if d.err == nil {
			d.err = fmt.Errorf("%w: oversized string", ErrCorrupt)
		}
		return ""
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s
}
