// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"errors"
	"strings"
)

var errUnsafeName = errors.New("unsafe member name")

// stripComponents drops the first n components of a tar member name.
// It returns "" when nothing remains, and errUnsafeName for absolute
// names or names with a ".." component.
func stripComponents(name string, n int) (string, error) {
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", errUnsafeName
	}
	var parts []string
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", errUnsafeName
		}
		parts = append(parts, part)
	}
	if n >= len(parts) {
		return "", nil
	}
	return strings.Join(parts[n:], "/"), nil
}
