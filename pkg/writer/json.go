// Package writer encodes values as JSON, optionally through a compression
// codec, and reads them back.
package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spgemm-symbolic/pkg/compression"
)

// JSONWriter writes values of type T as one JSON document.
type JSONWriter[T any] struct {
	// Indent enables pretty printing. Empty means compact output.
	Indent string
	// Compression wraps the JSON stream in a codec.
	Compression compression.Type
	Level       compression.Level
}

// NewJSONWriter creates a compact, uncompressed writer.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Level: compression.LevelDefault}
}

// NewPrettyJSONWriter creates an indented, uncompressed writer.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  ", Level: compression.LevelDefault}
}

// WithCompression returns a copy of w that compresses with c.
func (w *JSONWriter[T]) WithCompression(c compression.Type) *JSONWriter[T] {
	cp := *w
	cp.Compression = c
	return &cp
}

// Ext returns the file suffix matching the writer's output.
func (w *JSONWriter[T]) Ext() string {
	return ".json" + w.Compression.Ext()
}

// WriteResult describes one encoded document.
type WriteResult struct {
	Path           string  `json:"path,omitempty"`
	JSONSize       int64   `json:"json_size"`
	CompressedSize int64   `json:"compressed_size"`
	CompressionPct float64 `json:"compression_pct"`
}

// Write encodes data to out.
func (w *JSONWriter[T]) Write(data T, out io.Writer) (*WriteResult, error) {
	sink := &countingWriter{w: out}
	cw, err := compression.NewWriter(w.Compression, sink, w.Level)
	if err != nil {
		return nil, err
	}
	src := &countingWriter{w: cw}

	encoder := json.NewEncoder(src)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	if err := encoder.Encode(data); err != nil {
		cw.Close()
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	if err := cw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush %s stream: %w", w.Compression, err)
	}

	res := &WriteResult{JSONSize: src.n, CompressedSize: sink.n}
	if src.n > 0 {
		res.CompressionPct = float64(sink.n) / float64(src.n) * 100
	}
	return res, nil
}

// WriteToFile encodes data to path. The file is written under a temporary
// name and renamed into place once complete.
func (w *JSONWriter[T]) WriteToFile(data T, path string) (*WriteResult, error) {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	res, err := w.Write(data, file)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close file: %w", cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}
	res.Path = path
	return res, nil
}

// Read decodes one document of type T from r, detecting the codec it was
// written with.
func Read[T any](r io.Reader) (T, error) {
	var out T
	rc, _, err := compression.AutoReader(r)
	if err != nil {
		return out, err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode data: %w", err)
	}
	return out, nil
}

// ReadFile decodes the document stored at path.
func ReadFile[T any](path string) (T, error) {
	file, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return Read[T](file)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
