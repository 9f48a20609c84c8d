// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive implements the content-addressed photo archive: the
// save-with-dedup protocol that commits an incoming file exactly once
// under a content-derived name.
//
// On-disk layout:
//
//	<root>/<YYYY-MM-DD>/<digest><ext>              finalized object
//	<root>/<YYYY-MM-DD>/.<digest><ext>.<id>.partial transient artifact
//	<root>/.incoming/                              staging for ingest
//
// A save resolves the partition for the ingest timestamp, hashes the
// source, and either finds the canonical name already present (a
// dedup hit) or materializes the content under a transient name in
// the same directory and commits it with a rename that refuses to
// replace an existing file. That rename is the only commit point:
// before it nothing exists under the canonical name, after it the
// object is complete and immutable. Losing the rename to a concurrent
// save of identical content is reported as a dedup hit, not an error.
//
// Materialization prefers a hard link of the source (no data copy when
// source and archive share a filesystem) and falls back to a byte copy
// that re-hashes the content as it is written, so a source mutated
// between hashing and copying is rejected with [ErrSourceChanged]
// rather than committed under the wrong name.
//
// There are no in-process locks. Correctness under concurrent callers
// rests entirely on the filesystem's no-replace rename: renameat2 with
// RENAME_NOREPLACE on Linux, link(2) followed by unlink elsewhere.
//
// An [Archive] is an explicit handle constructed once at startup and
// passed to every caller; nothing in this package resolves the archive
// root from ambient process state.
package archive
