// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package archive

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// commitNoReplace renames transient to final unless final already
// exists. Returns committed=false (and no error) when final exists.
// Filesystems without RENAME_NOREPLACE support (some network and
// FUSE filesystems) report EINVAL or ENOSYS and fall through to the
// link-based primitive.
func commitNoReplace(transient, final string) (bool, error) {
	err := unix.Renameat2(unix.AT_FDCWD, transient, unix.AT_FDCWD, final, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EEXIST):
		return false, nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EOPNOTSUPP):
		return linkCommit(transient, final)
	default:
		return false, fmt.Errorf("renaming %s to %s: %w", transient, final, err)
	}
}
