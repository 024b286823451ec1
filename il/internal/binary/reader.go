package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value exceeds the maximum size.
var ErrOverflow = errors.New("leb128: overflow")

// ErrTooLong is returned when a length prefix exceeds the remaining input.
var ErrTooLong = errors.New("length prefix exceeds input")

// Reader wraps a bytes.Reader with position tracking and module-specific read methods.
type Reader struct {
	r   *bytes.Reader
	pos int
}

// NewReader creates a new Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return r.r.Len()
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.r.Len() {
		return nil, r.wrapError(ErrTooLong)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	r.pos += n
	return buf, nil
}

// ReadU32 reads an unsigned LEB128 encoded uint32.
func (r *Reader) ReadU32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, r.wrapError(ErrOverflow)
		}
	}
}

// ReadS64 reads a signed LEB128 encoded int64.
func (r *Reader) ReadS64() (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 70 {
			return 0, r.wrapError(ErrOverflow)
		}
	}
	// Sign extend
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	return result, nil
}

// ReadS32 reads a signed LEB128 value and checks it fits in 32 bits.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadS64()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, r.wrapError(ErrOverflow)
	}
	return int32(v), nil
}

// ReadCount reads a LEB128 element count and rejects counts that cannot
// fit in the remaining input (every element takes at least one byte).
func (r *Reader) ReadCount() (int, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.r.Len() {
		return 0, r.wrapError(ErrTooLong)
	}
	return int(n), nil
}

// ReadName reads a UTF-8 encoded name (length-prefixed byte sequence).
func (r *Reader) ReadName() (string, error) {
	length, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	data, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.wrapError(errors.New("invalid UTF-8 in name"))
	}
	return string(data), nil
}

// ReadBlob reads a length-prefixed byte sequence.
func (r *Reader) ReadBlob() ([]byte, error) {
	length, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(length))
}

// ReadBool reads a single byte as a boolean.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, r.wrapError(fmt.Errorf("invalid bool byte 0x%02x", b))
}

// ReadU32LE reads a little-endian uint32 (fixed 4 bytes).
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (r *Reader) ReadF32() (float32, error) {
	bits, err := r.ReadU32LE()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadF64 reads a little-endian IEEE-754 float64.
func (r *Reader) ReadF64() (float64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}

// ParseError represents an error during binary parsing with position information.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("il: %s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("il: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError with the current position.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{
		Position: r.pos,
		Section:  section,
		Err:      err,
	}
}
