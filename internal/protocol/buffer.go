package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrTruncated     = errors.New("message truncated")
	ErrFieldTooLong  = errors.New("field exceeds length prefix")
	ErrUnknownID     = errors.New("unknown message id")
	ErrTrailingBytes = errors.New("trailing bytes after message")
)

// writer accumulates a little-endian message body. The first error sticks.
type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) bytes8(field string, b []byte) {
	if len(b) > math.MaxUint8 {
		w.fail(fmt.Errorf("%w: %s is %d bytes", ErrFieldTooLong, field, len(b)))
		return
	}
	w.u8(uint8(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) bytes16(field string, b []byte) {
	if len(b) > math.MaxUint16 {
		w.fail(fmt.Errorf("%w: %s is %d bytes", ErrFieldTooLong, field, len(b)))
		return
	}
	w.u16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) count8(field string, n int) {
	if n > math.MaxUint8 {
		w.fail(fmt.Errorf("%w: %d %s", ErrFieldTooLong, n, field))
		return
	}
	w.u8(uint8(n))
}

func (w *writer) count16(field string, n int) {
	if n > math.MaxUint16 {
		w.fail(fmt.Errorf("%w: %d %s", ErrFieldTooLong, n, field))
		return
	}
	w.u16(uint16(n))
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *writer) result() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// reader consumes a little-endian message body. After the first error every
// read returns a zero value.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrTruncated, n, r.pos, len(r.data))
		return nil
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) bytes8() []byte {
	return r.copyOf(int(r.u8()))
}

func (r *reader) bytes16() []byte {
	return r.copyOf(int(r.u16()))
}

func (r *reader) copyOf(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.data) {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, len(r.data)-r.pos)
	}
	return nil
}
