// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package importer brings bulk exports (photo service takeouts, old
// phone backups) into the backup tree from tar archives.
//
// Archives may be plain tar or compressed with gzip, zstd, or lz4;
// the format is detected from the leading magic bytes, not the file
// name. Patterns are shell globs and may be repeated.
//
// Two policies decide where members land:
//
//   - [PolicyExtract] writes each regular member at its archive path
//     (minus StripComponents leading components) under Destination.
//   - [PolicyArchive] stores each regular member in an
//     [archive.Archive] under its content-addressed name, filed by the
//     member's modification time.
//
// Member names are untrusted. Names containing "..", absolute names,
// symlinks, hard links, and device nodes are rejected; extraction
// targets are resolved with filepath-securejoin so a symlink already
// present under Destination cannot redirect a write outside it.
// Extracted files are written to a transient name and renamed into
// place, so an interrupted import never leaves a truncated file under
// a final name.
package importer
