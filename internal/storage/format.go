package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

const compressedExt = ".zst"

// Extensions lists the document extensions the store reads. Each may also
// carry a trailing .zst.
var Extensions = []string{".json", ".yaml", ".yml"}

type format struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var formats = map[string]format{
	".json": {
		marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
		unmarshal: json.Unmarshal,
	},
	".yaml": {marshal: yaml.Marshal, unmarshal: yaml.Unmarshal},
	".yml":  {marshal: yaml.Marshal, unmarshal: yaml.Unmarshal},
}

// formatFor picks the format from the file name, looking through a trailing
// .zst.
func formatFor(path string) (format, bool, error) {
	compressed := strings.EqualFold(filepath.Ext(path), compressedExt)
	if compressed {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := formats[ext]
	if !ok {
		return format{}, false, fmt.Errorf("unsupported file type %q", filepath.Base(path))
	}
	return f, compressed, nil
}

// Supported reports whether path has a readable document extension.
func Supported(path string) bool {
	_, _, err := formatFor(path)
	return err == nil
}

// Marshal encodes v for the file type of path.
func Marshal(path string, v any) ([]byte, error) {
	f, compressed, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := f.marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	if !compressed {
		return data, nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, nil), nil
}

// Unmarshal decodes data read from path into v.
func Unmarshal(path string, data []byte, v any) error {
	f, compressed, err := formatFor(path)
	if err != nil {
		return err
	}
	if compressed {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("decompressing %s: %w", filepath.Base(path), err)
		}
	}
	if err := f.unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshalling %s: %w", filepath.Base(path), err)
	}
	return nil
}
