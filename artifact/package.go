package artifact

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Packaged is the uncompressed response body and the lengths of its first
// two segments. Whatever follows them is compiler stderr.
type Packaged struct {
	Body       []byte
	WasmLength int
	JSLength   int
}

// Package concatenates wasm, js and stderr in that order.
func Package(wasm, js, stderr []byte) Packaged {
	body := make([]byte, 0, len(wasm)+len(js)+len(stderr))
	body = append(body, wasm...)
	body = append(body, js...)
	body = append(body, stderr...)
	return Packaged{Body: body, WasmLength: len(wasm), JSLength: len(js)}
}

// Segments splits a decompressed body back into wasm, js and stderr.
func Segments(body []byte, wasmLength, jsLength int) (wasm, js, stderr []byte, err error) {
	if wasmLength < 0 || jsLength < 0 || wasmLength+jsLength > len(body) {
		return nil, nil, nil, fmt.Errorf("segment lengths %d+%d exceed body of %d bytes", wasmLength, jsLength, len(body))
	}
	return body[:wasmLength], body[wasmLength : wasmLength+jsLength], body[wasmLength+jsLength:], nil
}

// Compress gzips data at the fastest level; it sits on the response path.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}
