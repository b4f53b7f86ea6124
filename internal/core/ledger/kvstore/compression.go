package kvstore

import (
	"fmt"

	"github.com/pierrec/lz4"
)

// compressor is the value-compression strategy for rows written to the
// underlying pebble store. Rows are small (a handful of fields per
// entity) but there are many of them in a large credit graph, and LZ4's
// block mode is cheap enough to run on every write.
type compressor interface {
	name() string
	compress(data []byte) ([]byte, error)
	decompress(data []byte) ([]byte, error)
}

type noCompressor struct{}

func (noCompressor) name() string { return "none" }

func (noCompressor) compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (noCompressor) decompress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// lz4Compressor compresses row values with LZ4 block compression.
type lz4Compressor struct{}

func (lz4Compressor) name() string { return "lz4" }

func (lz4Compressor) compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: lz4 compress: %w", err)
	}
	if n == 0 {
		// incompressible block: lz4.CompressBlock signals this by
		// returning 0, fall back to storing it raw behind a leading 0
		// flag byte (compressed blocks carry 1), which decompress checks.
		return append([]byte{0}, data...), nil
	}
	return append([]byte{1}, buf[:n]...), nil
}

func (lz4Compressor) decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	flag, body := data[0], data[1:]
	if flag == 0 {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	for bufSize := len(body) * 2; bufSize <= len(body)*32; bufSize *= 2 {
		out := make([]byte, bufSize)
		n, err := lz4.UncompressBlock(body, out)
		if err == nil {
			return out[:n], nil
		}
	}
	return nil, fmt.Errorf("kvstore: lz4 decompress failed after growing buffer")
}
