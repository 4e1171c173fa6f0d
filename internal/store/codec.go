package store

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"
)

// Compression selects how blob bytes are encoded at rest. The digest always
// covers the uncompressed content.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZMA Compression = "lzma"
)

// Every stored blob starts with one tag byte naming its codec, so blobs
// written under an older setting stay readable.
const (
	tagNone byte = iota
	tagZstd
	tagLZMA
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// ParseCompression maps a config value to a Compression. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	case CompressionLZMA:
		return CompressionLZMA, nil
	}
	return "", fmt.Errorf("unknown compression %q", s)
}

func encodeBlob(c Compression, data []byte) ([]byte, error) {
	switch c {
	case "", CompressionNone:
		return append([]byte{tagNone}, data...), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, []byte{tagZstd}), nil
	case CompressionLZMA:
		var buf bytes.Buffer
		buf.WriteByte(tagLZMA)
		w, err := lzma.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("lzma writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lzma write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lzma close: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}

func decodeBlob(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("empty blob record: %w", ErrCorrupt)
	}
	payload := stored[1:]
	switch stored[0] {
	case tagNone:
		return payload, nil
	case tagZstd:
		out, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w: %w", ErrCorrupt, err)
		}
		return out, nil
	case tagLZMA:
		r, err := lzma.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("lzma reader: %w: %w", ErrCorrupt, err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("lzma decode: %w: %w", ErrCorrupt, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown blob codec tag %#x: %w", stored[0], ErrCorrupt)
}
