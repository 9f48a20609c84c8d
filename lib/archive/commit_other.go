// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package archive

func commitNoReplace(transient, final string) (bool, error) {
	return linkCommit(transient, final)
}
