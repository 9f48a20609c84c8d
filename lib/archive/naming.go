// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransientSuffix marks in-progress writes. Transient names also start
// with a dot; canonical names start with a hex digit, so the two can
// never collide whatever extension a client sends.
const TransientSuffix = ".partial"

// StagingDirName is the directory under the root where ingest
// boundaries materialize uploads before saving them. It is not a
// valid partition ID and is skipped by listings.
const StagingDirName = ".incoming"

// maxExtensionLength bounds the preserved extension so canonical
// names stay well under common 255-byte filename limits.
const maxExtensionLength = 32

// Extension returns the extension of a client-supplied filename,
// including the leading dot, verbatim (no case folding). Directory
// components in either slash style are ignored. Names whose only dot
// is the first character (".bashrc"), names ending in a dot, and
// implausibly long extensions yield "".
func Extension(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	index := strings.LastIndexByte(base, '.')
	if index <= 0 || index == len(base)-1 {
		return ""
	}
	extension := base[index:]
	if len(extension) > maxExtensionLength || strings.ContainsRune(extension, 0) {
		return ""
	}
	return extension
}

// CanonicalName is the finalized object name for a digest and
// original filename.
func CanonicalName(digestHex, originalName string) string {
	return digestHex + Extension(originalName)
}

// IsTransient reports whether name is a transient write artifact.
func IsTransient(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, TransientSuffix)
}

// transientPath returns a fresh transient path next to the canonical
// path. The token is a time-ordered UUID: its random bits keep
// concurrent saves of the same content apart, and its timestamp records
// when the save began, which a hard-linked or backdated file's mtime
// does not.
func transientPath(dir, canonicalName string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	token := hex.EncodeToString(id[:])
	return filepath.Join(dir, "."+canonicalName+"."+token+TransientSuffix)
}

// transientCreated recovers the creation time encoded in a transient
// name produced by transientPath. It reports false for names carrying
// any other kind of token.
func transientCreated(name string) (time.Time, bool) {
	if !IsTransient(name) {
		return time.Time{}, false
	}
	stem := strings.TrimSuffix(name, TransientSuffix)
	token := stem[strings.LastIndexByte(stem, '.')+1:]
	if len(token) != 32 {
		return time.Time{}, false
	}
	raw, err := hex.DecodeString(token)
	if err != nil {
		return time.Time{}, false
	}
	id, err := uuid.FromBytes(raw)
	if err != nil || id.Version() != 7 {
		return time.Time{}, false
	}
	var milliseconds int64
	for _, b := range id[:6] {
		milliseconds = milliseconds<<8 | int64(b)
	}
	return time.UnixMilli(milliseconds), true
}
