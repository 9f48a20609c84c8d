// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// linkCommit publishes transient under final with link(2), which
// fails with EEXIST rather than replacing. On success the transient
// name is removed; for the instant both names exist the transient one
// is invisible to listings by convention.
//
// Filesystems with no hard-link support get a last-resort
// check-then-rename. That path has a window in which a concurrent
// identical save can replace the object with identical bytes; it is
// never used on local POSIX filesystems.
func linkCommit(transient, final string) (bool, error) {
	err := os.Link(transient, final)
	switch {
	case err == nil:
		if err := os.Remove(transient); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return true, fmt.Errorf("removing transient %s after commit: %w", transient, err)
		}
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}

	if _, statErr := os.Lstat(final); statErr == nil {
		return false, nil
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", final, statErr)
	}
	if err := os.Rename(transient, final); err != nil {
		return false, fmt.Errorf("renaming %s to %s: %w", transient, final, err)
	}
	return true, nil
}

// syncDir flushes directory metadata so a committed rename survives a
// crash. Best effort: some platforms cannot fsync a directory.
func syncDir(dir string) error {
	handle, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer handle.Close()
	return handle.Sync()
}
