// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes content digests for archived files.
//
// A digest is a fixed-length cryptographic fingerprint rendered as a
// lowercase hex string. It is the equality proxy for deduplication:
// two files with the same digest are treated as the same content, and
// the digest becomes the file's name in the archive.
//
// The set of algorithms is closed and bound at compile time. Callers
// select one by name through [ParseAlgorithm] (typically from
// configuration or a --algo flag); there is no registry and no way to
// plug in an algorithm at runtime. [SHA256] is the default.
//
// Input is always streamed in bounded chunks ([ChunkSize]), so hashing
// a multi-gigabyte video does not buffer it in memory. Read errors
// propagate; a digest is never computed over a truncated stream.
//
// This package depends on no other photobackup packages.
package digest
