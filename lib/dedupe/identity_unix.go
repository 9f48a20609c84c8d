// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package dedupe

import "golang.org/x/sys/unix"

// identify returns the device and inode of path without following
// symlinks.
func identify(path string) (identity, bool) {
	var stat unix.Stat_t
	if err := unix.Lstat(path, &stat); err != nil {
		return identity{}, false
	}
	return identity{device: uint64(stat.Dev), inode: uint64(stat.Ino)}, true
}
