package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer provides buffered writing utilities for module binary encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteU32 writes an unsigned LEB128 encoded uint32.
func (w *Writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteCount writes a slice length as unsigned LEB128.
func (w *Writer) WriteCount(n int) {
	w.WriteU32(uint32(n))
}

// WriteS64 writes a signed LEB128 encoded int64.
func (w *Writer) WriteS64(v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && (b&0x40) == 0) || (v == -1 && (b&0x40) != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

// WriteName writes a UTF-8 encoded name (length-prefixed).
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteBlob writes a length-prefixed byte sequence.
func (w *Writer) WriteBlob(data []byte) {
	w.WriteU32(uint32(len(data)))
	w.buf.Write(data)
}

// WriteBool writes a boolean as a single byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// WriteU32LE writes a little-endian uint32 (fixed 4 bytes).
func (w *Writer) WriteU32LE(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteF32 writes a little-endian IEEE-754 float32.
func (w *Writer) WriteF32(v float32) {
	w.WriteU32LE(math.Float32bits(v))
}

// WriteF64 writes a little-endian IEEE-754 float64.
func (w *Writer) WriteF64(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.buf.Write(buf[:])
}
