package scene

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec serializes component attributes for the wire. Encode produces the
// full state; EncodeDelta produces the changes relative to a previous full
// encoding and reports whether anything changed.
type Codec interface {
	Encode(c *Component) ([]byte, error)
	EncodeDelta(c *Component, prev []byte) ([]byte, bool, error)
	Decode(c *Component, data []byte) error
	DecodeDelta(c *Component, data []byte) ([]int, error)
}

// BinaryCodec is the default Codec. Static components encode as
// u8 count | count × (u16 len | value); deltas as
// u8 count | count × (u8 index | u16 len | value). Dynamic components encode
// as u8 count | count × (u8 len | name | u16 len | value) and always send
// their full state as the delta.
type BinaryCodec struct{}

var _ Codec = BinaryCodec{}

func (BinaryCodec) Encode(c *Component) ([]byte, error) {
	return encodeFull(c.dynamic, c.attrs)
}

func (BinaryCodec) EncodeDelta(c *Component, prev []byte) ([]byte, bool, error) {
	old, err := decodeFull(c.dynamic, prev)
	if err != nil {
		return nil, false, fmt.Errorf("decoding previous state: %w", err)
	}

	if c.dynamic {
		if sameAttributes(old, c.attrs) {
			return nil, false, nil
		}
		data, err := encodeFull(true, c.attrs)
		return data, err == nil, err
	}

	var changed []int
	for i, a := range c.attrs {
		if i >= len(old) || old[i].Value != a.Value {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil, false, nil
	}
	if len(changed) > math.MaxUint8 {
		return nil, false, fmt.Errorf("too many changed attributes: %d", len(changed))
	}

	buf := []byte{uint8(len(changed))}
	for _, i := range changed {
		buf = append(buf, uint8(i))
		buf, err = appendString16(buf, c.attrs[i].Value)
		if err != nil {
			return nil, false, err
		}
	}
	return buf, true, nil
}

func (BinaryCodec) Decode(c *Component, data []byte) error {
	attrs, err := decodeFull(c.dynamic, data)
	if err != nil {
		return err
	}
	if c.dynamic {
		c.attrs = attrs
		return nil
	}
	if len(attrs) > len(c.attrs) {
		return fmt.Errorf("%w: %d attributes for %s", ErrMalformedData, len(attrs), c.typeName)
	}
	for i, a := range attrs {
		c.setValue(i, a.Value)
	}
	return nil
}

func (BinaryCodec) DecodeDelta(c *Component, data []byte) ([]int, error) {
	if c.dynamic {
		attrs, err := decodeFull(true, data)
		if err != nil {
			return nil, err
		}
		if sameAttributes(attrs, c.attrs) {
			return nil, nil
		}
		c.attrs = attrs
		changed := make([]int, len(attrs))
		for i := range attrs {
			changed[i] = i
		}
		return changed, nil
	}

	r := reader{data: data}
	count := int(r.u8())
	var changed []int
	for range count {
		index := int(r.u8())
		value := r.string16()
		if r.err != nil {
			return nil, r.err
		}
		if index >= len(c.attrs) {
			return nil, fmt.Errorf("%w: attribute index %d for %s", ErrMalformedData, index, c.typeName)
		}
		c.setValue(index, value)
		changed = append(changed, index)
	}
	return changed, r.err
}

func encodeFull(dynamic bool, attrs []Attribute) ([]byte, error) {
	if len(attrs) > math.MaxUint8 {
		return nil, fmt.Errorf("too many attributes: %d", len(attrs))
	}
	buf := []byte{uint8(len(attrs))}
	var err error
	for _, a := range attrs {
		if dynamic {
			if len(a.Name) > math.MaxUint8 {
				return nil, fmt.Errorf("attribute name %q too long", a.Name)
			}
			buf = append(buf, uint8(len(a.Name)))
			buf = append(buf, a.Name...)
		}
		buf, err = appendString16(buf, a.Value)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func decodeFull(dynamic bool, data []byte) ([]Attribute, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := reader{data: data}
	count := int(r.u8())
	attrs := make([]Attribute, 0, count)
	for range count {
		var a Attribute
		if dynamic {
			a.Name = r.string8()
		}
		a.Value = r.string16()
		if r.err != nil {
			return nil, r.err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func sameAttributes(a, b []Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendString16(buf []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return nil, fmt.Errorf("attribute value too long: %d bytes", len(s))
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

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
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedData, n, r.pos, len(r.data))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) string8() string {
	n := int(r.u8())
	return string(r.take(n))
}

func (r *reader) string16() string {
	b := r.take(2)
	if b == nil {
		return ""
	}
	return string(r.take(int(binary.LittleEndian.Uint16(b))))
}
