// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the outer encoding of a tar stream.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Detect identifies the compression from the first bytes of a stream.
func Detect(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(header, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// decompress wraps r in the decoder its magic bytes call for. The
// returned closer releases decoder resources; it does not close r.
func decompress(r io.Reader) (io.Reader, Compression, func(), error) {
	buffered := bufio.NewReaderSize(r, 64<<10)
	header, err := buffered.Peek(4)
	if err != nil && err != io.EOF {
		return nil, 0, nil, fmt.Errorf("reading archive header: %w", err)
	}
	compression := Detect(header)
	switch compression {
	case CompressionGzip:
		reader, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, compression, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return reader, compression, func() { reader.Close() }, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, compression, nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return decoder, compression, decoder.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(buffered), compression, func() {}, nil
	default:
		return buffered, compression, func() {}, nil
	}
}
