// Package serialize implements the length-prefixed, network-byte-order
// binary framing used by the patch package's wire format.
package serialize

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when a Reader runs out of bytes mid-field.
var ErrTruncated = errors.New("serialize: truncated buffer")

// Writer accumulates a byte stream using fixed-width, big-endian fields.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

// WriteUint32 appends a 32-bit value in network byte order.
func (w *Writer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteUint64 appends a 64-bit value in network byte order.
func (w *Writer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteBytes appends raw bytes, with no length prefix of their own.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteUTF16 appends a uint32 length prefix followed by the UTF-16 code
// units (as big-endian uint16 pairs).
func (w *Writer) WriteUTF16(units []uint16) {
	w.WriteUint32(uint32(len(units)))
	for _, u := range units {
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], u)
		w.buf = append(w.buf, tmp[:]...)
	}
}

// Reader consumes a byte stream written by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential reads.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) ReadUint8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrTruncated
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrTruncated
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *Reader) ReadUTF16() ([]uint16, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if r.Remaining() < int(n)*2 {
		return nil, ErrTruncated
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(r.buf[r.pos:])
		r.pos += 2
	}
	return units, nil
}
