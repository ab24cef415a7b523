package snr

import (
	"fmt"
)

// Writer accumulates little-endian scenario bytes.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) U16(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

func (w *Writer) U32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// PatchU32 overwrites 4 bytes at an absolute offset within the buffer.
func (w *Writer) PatchU32(offset int, v uint32) {
	w.buf[offset] = byte(v)
	w.buf[offset+1] = byte(v >> 8)
	w.buf[offset+2] = byte(v >> 16)
	w.buf[offset+3] = byte(v >> 24)
}

// Reader walks scenario bytes, remembering the first failure so call sites
// can decode a full structure and check the error once.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) Pos() int { return r.pos }

func (r *Reader) Seek(pos int) {
	if pos < 0 || pos > len(r.buf) {
		r.fail("seek out of bounds: %d", pos)
		return
	}
	r.pos = pos
}

func (r *Reader) AtEnd() bool { return r.pos >= len(r.buf) }

func (r *Reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf("offset 0x%x: %s", r.pos, fmt.Sprintf(format, args...))
	}
}

func (r *Reader) U8() uint8 {
	if r.err != nil {
		return 0
	}
	if r.pos+1 > len(r.buf) {
		r.fail("unexpected end of data")
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *Reader) U16() uint16 {
	if r.err != nil {
		return 0
	}
	if r.pos+2 > len(r.buf) {
		r.fail("unexpected end of data")
		return 0
	}
	v := uint16(r.buf[r.pos]) | uint16(r.buf[r.pos+1])<<8
	r.pos += 2
	return v
}

func (r *Reader) U32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.buf) {
		r.fail("unexpected end of data")
		return 0
	}
	v := uint32(r.buf[r.pos]) | uint32(r.buf[r.pos+1])<<8 |
		uint32(r.buf[r.pos+2])<<16 | uint32(r.buf[r.pos+3])<<24
	r.pos += 4
	return v
}

func (r *Reader) Raw(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.fail("unexpected end of data")
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}
