// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ChunkSize is the read buffer size used when streaming content into
// a hasher.
const ChunkSize = 1024 * 1024

// Algorithm identifies a supported digest algorithm.
type Algorithm uint8

const (
	// SHA256 is SHA-256, the default. Archives written with it are
	// compatible with digests produced by standard sha256sum tooling.
	SHA256 Algorithm = iota + 1

	// BLAKE3 is unkeyed BLAKE3 with a 32-byte output. Faster than
	// SHA-256 on large media files.
	BLAKE3
)

// Default is the algorithm used when none is configured.
const Default = SHA256

// Algorithms lists every supported algorithm in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{SHA256, BLAKE3}
}

// String returns the configuration name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "sha256"
	case BLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// HexLength returns the length of the hex-encoded digest.
func (a Algorithm) HexLength() int {
	switch a {
	case SHA256:
		return sha256.Size * 2
	case BLAKE3:
		return 32 * 2
	default:
		return 0
	}
}

// Valid reports whether a names a supported algorithm.
func (a Algorithm) Valid() bool {
	return a == SHA256 || a == BLAKE3
}

// MarshalText implements encoding.TextMarshaler so algorithms can be
// used directly in YAML and CBOR documents.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid digest algorithm %d", uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAlgorithm parses an algorithm name. The empty string selects
// [Default].
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "":
		return Default, nil
	case "sha256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return 0, fmt.Errorf("unsupported digest algorithm %q (supported: sha256, blake3)", name)
	}
}

// New returns a fresh hasher for the algorithm. Panics on an invalid
// algorithm; use [ParseAlgorithm] to validate untrusted names first.
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New()
	case BLAKE3:
		return blake3.New()
	default:
		panic(fmt.Sprintf("digest: invalid algorithm %d", uint8(a)))
	}
}

// Sum streams r through the algorithm's hasher and returns the
// lowercase hex digest along with the number of bytes read. The
// context is checked before each chunk so a long hash can be
// abandoned.
func Sum(ctx context.Context, algorithm Algorithm, r io.Reader) (string, int64, error) {
	if !algorithm.Valid() {
		return "", 0, fmt.Errorf("invalid digest algorithm %d", uint8(algorithm))
	}
	hasher := algorithm.New()
	buffer := make([]byte, ChunkSize)
	written, err := io.CopyBuffer(hasher, Reader(ctx, r), buffer)
	if err != nil {
		return "", written, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

// SumFile hashes the file at path. The returned size is the number of
// bytes actually hashed, which may differ from a prior stat if the
// file is being modified concurrently.
func SumFile(ctx context.Context, algorithm Algorithm, path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	return Sum(ctx, algorithm, file)
}

// Reader wraps r so that every Read first checks ctx. Used by hashing
// and copy loops so cancellation takes effect within one chunk.
func Reader(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil || ctx.Done() == nil {
		return r
	}
	return &contextReader{ctx: ctx, reader: r}
}

type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.reader.Read(p)
}
