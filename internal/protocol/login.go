package protocol

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"unicode"
)

var ErrInvalidPropertyKey = errors.New("invalid login property key")

// ValidPropertyKey reports whether k can be written as an element name:
// a letter or underscore followed by letters, digits, '-', '_' or '.'.
func ValidPropertyKey(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// EncodeProperties renders properties as <login><key value="..."/></login>
// with keys in sorted order. Keys must satisfy ValidPropertyKey.
func EncodeProperties(props map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(props))
	for k := range props {
		if !ValidPropertyKey(k) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPropertyKey, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	root := xml.StartElement{Name: xml.Name{Local: "login"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, k := range keys {
		el := xml.StartElement{
			Name: xml.Name{Local: k},
			Attr: []xml.Attr{{Name: xml.Name{Local: "value"}, Value: props[k]}},
		}
		if err := enc.EncodeToken(el); err != nil {
			return nil, fmt.Errorf("encoding property %q: %w", k, err)
		}
		if err := enc.EncodeToken(el.End()); err != nil {
			return nil, fmt.Errorf("encoding property %q: %w", k, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeProperties reads the children of the root element as key/value
// pairs. Decoding is lenient: on malformed input the properties read so far
// are returned along with the error.
func DecodeProperties(data []byte) (map[string]string, error) {
	props := map[string]string{}
	if len(bytes.TrimSpace(data)) == 0 {
		return props, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if depth != 0 {
				return props, fmt.Errorf("parsing login data: unexpected end of document")
			}
			return props, nil
		}
		if err != nil {
			return props, fmt.Errorf("parsing login data: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth != 2 {
				continue
			}
			for _, a := range t.Attr {
				if a.Name.Local == "value" {
					props[t.Name.Local] = a.Value
				}
			}
		case xml.EndElement:
			depth--
		}
	}
}
