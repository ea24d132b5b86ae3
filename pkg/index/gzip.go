package index

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DecodeGzip decompresses a published listing and decodes it.
func DecodeGzip(r io.Reader) ([]Entry, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	entries, err := Decode(zr)
	if err != nil {
		return nil, err
	}
	// Drain so a truncated stream surfaces as a checksum error.
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return entries, nil
}

// EncodeGzip is the inverse of [DecodeGzip].
func EncodeGzip(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(Encode(entries)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
