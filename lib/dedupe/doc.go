// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dedupe collapses byte-identical files in an existing tree
// into hard links.
//
// It is a maintenance sweep, independent of the per-save dedup in
// lib/archive: it runs over any directory tree (historical imports,
// externally populated folders, an archive that predates content
// addressing) and may run while ingest is live. It only reads or
// relinks finalized files; transient archive artifacts and the
// staging directory are never considered.
//
// Files are grouped by size first, so only same-size candidates are
// hashed, and by inode, so files that are already hard links of each
// other are hashed once and never relinked again. Within a digest
// group the lexically smallest path is the canonical member. Every
// other member is replaced by linking the canonical file under a
// temporary name in the member's directory and renaming it over the
// member, so readers see either the old file or the link, never a
// missing path.
//
// Per-file problems (a file changed since it was scanned, a
// cross-device pair, permission denied) are recorded as [Failure]
// entries and the sweep continues. A second run over a converged tree
// performs no actions.
package dedupe
