// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "errors"

var (
	// ErrSourceUnavailable means the source file is missing, not a
	// regular file, or became unreadable before the commit. Nothing is
	// written under the canonical name.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrPartitionUnwritable means the partition directory could not
	// be created or written (permissions, disk full).
	ErrPartitionUnwritable = errors.New("partition unwritable")

	// ErrSourceChanged means the bytes materialized into the archive
	// did not match the digest computed moments earlier: the source
	// was modified during the save.
	ErrSourceChanged = errors.New("source changed during save")

	// ErrInvalidObject means the canonical path is occupied by
	// something other than a regular file.
	ErrInvalidObject = errors.New("canonical path is not a regular file")
)
