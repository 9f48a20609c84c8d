// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package dedupe

// identify is unavailable; every file is treated as a distinct inode
// and relink failures surface as per-file failures.
func identify(string) (identity, bool) {
	return identity{}, false
}
