package binary

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadBytesPastEnd(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	if _, err := r.ReadBytes(10); !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
}

func TestU32RoundTrip(t *testing.T) {
	tests := []struct {
		want    uint32
		encoded []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{0xFFFFFFFF, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}

	for _, tt := range tests {
		w := NewWriter()
		w.WriteU32(tt.want)
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("WriteU32(%d) = %v, want %v", tt.want, w.Bytes(), tt.encoded)
		}
		got, err := NewReader(tt.encoded).ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadU32Overflow(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	_, err := r.ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestS64RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 64, -65, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	for _, v := range values {
		w := NewWriter()
		w.WriteS64(v)
		got, err := NewReader(w.Bytes()).ReadS64()
		if err != nil {
			t.Errorf("ReadS64(%d): %v", v, err)
			continue
		}
		if got != v {
			t.Errorf("S64 round trip: got %d, want %d", got, v)
		}
	}
}

func TestReadS32Range(t *testing.T) {
	w := NewWriter()
	w.WriteS64(math.MaxInt32 + 1)
	if _, err := NewReader(w.Bytes()).ReadS32(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}

	w = NewWriter()
	w.WriteS64(-5)
	v, err := NewReader(w.Bytes()).ReadS32()
	if err != nil || v != -5 {
		t.Errorf("ReadS32 = %d, %v", v, err)
	}
}

func TestNameAndBlob(t *testing.T) {
	w := NewWriter()
	w.WriteName("hello")
	w.WriteBlob([]byte{0xde, 0xad})
	w.WriteBool(true)
	w.WriteF32(1.5)
	w.WriteF64(-2.25)

	r := NewReader(w.Bytes())
	name, err := r.ReadName()
	if err != nil || name != "hello" {
		t.Fatalf("ReadName = %q, %v", name, err)
	}
	blob, err := r.ReadBlob()
	if err != nil || !bytes.Equal(blob, []byte{0xde, 0xad}) {
		t.Fatalf("ReadBlob = %v, %v", blob, err)
	}
	b, err := r.ReadBool()
	if err != nil || !b {
		t.Fatalf("ReadBool = %v, %v", b, err)
	}
	f32, err := r.ReadF32()
	if err != nil || f32 != 1.5 {
		t.Fatalf("ReadF32 = %v, %v", f32, err)
	}
	f64, err := r.ReadF64()
	if err != nil || f64 != -2.25 {
		t.Fatalf("ReadF64 = %v, %v", f64, err)
	}
	if r.Len() != 0 {
		t.Errorf("unread bytes: %d", r.Len())
	}
}

func TestReadNameInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0x02, 0xff, 0xfe})
	if _, err := r.ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestReadBoolInvalid(t *testing.T) {
	if _, err := NewReader([]byte{0x07}).ReadBool(); err == nil {
		t.Error("expected error for invalid bool byte")
	}
}

func TestReadCountRejectsHugeCounts(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1000)
	if _, err := NewReader(w.Bytes()).ReadCount(); !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
}

func TestParseError(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, _ = r.ReadByte()
	err := r.WrapError("types", io.ErrUnexpectedEOF)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.Position != 1 || pe.Section != "types" {
		t.Errorf("ParseError = %+v", pe)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ParseError should unwrap to its cause")
	}
}
