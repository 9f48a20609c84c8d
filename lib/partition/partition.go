// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package partition maps ingest timestamps to calendar-day partitions
// and creates partition directories on demand.
//
// A partition ID is the fixed-width string YYYY-MM-DD computed in the
// partitioner's configured time zone. Partitions are created lazily
// on first write for a day and are never merged or removed here.
package partition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Layout is the time.Format layout of a partition ID.
const Layout = "2006-01-02"

// ID is a calendar-day partition identifier such as "2026-03-14".
type ID string

// String returns the ID as a plain string.
func (id ID) String() string { return string(id) }

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if !Valid(string(id)) {
		return nil, fmt.Errorf("invalid partition id %q", string(id))
	}
	return []byte(id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Time returns midnight of the partition's day in loc.
func (id ID) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(Layout, string(id), loc)
}

// Parse validates s as a partition ID.
func Parse(s string) (ID, error) {
	if !Valid(s) {
		return "", fmt.Errorf("invalid partition id %q (want YYYY-MM-DD)", s)
	}
	return ID(s), nil
}

// Valid reports whether s is a well-formed partition ID naming a real
// calendar day. "2026-02-30" is rejected.
func Valid(s string) bool {
	if len(s) != len(Layout) {
		return false
	}
	parsed, err := time.Parse(Layout, s)
	if err != nil {
		return false
	}
	return parsed.Format(Layout) == s
}

// Partitioner derives partition IDs in a fixed time zone.
type Partitioner struct {
	// Location is the zone in which calendar days are computed. Nil
	// means time.Local.
	Location *time.Location

	// DirMode is the permission used for created partition
	// directories. Zero means 0o755.
	DirMode os.FileMode
}

// New returns a Partitioner for loc.
func New(loc *time.Location) *Partitioner {
	return &Partitioner{Location: loc}
}

// For returns the partition containing t.
func (p *Partitioner) For(t time.Time) ID {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	return ID(t.In(loc).Format(Layout))
}

// Path returns the directory for id under root without touching the
// filesystem.
func (p *Partitioner) Path(root string, id ID) string {
	return filepath.Join(root, string(id))
}

// Ensure creates the partition directory for id under root (and any
// missing ancestors) and returns its path. It is idempotent and safe
// to call concurrently for the same day: os.MkdirAll treats a
// directory created by a racing caller as success.
func (p *Partitioner) Ensure(root string, id ID) (string, error) {
	if !Valid(string(id)) {
		return "", fmt.Errorf("invalid partition id %q", string(id))
	}
	mode := p.DirMode
	if mode == 0 {
		mode = 0o755
	}
	dir := p.Path(root, id)
	if err := os.MkdirAll(dir, mode); err != nil {
		return "", fmt.Errorf("creating partition %s: %w", id, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("checking partition %s: %w", id, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("partition %s: %w", id, errNotDirectory)
	}
	return dir, nil
}

var errNotDirectory = errors.New("path exists and is not a directory")

// LoadLocation resolves a zone name from configuration. The empty
// string and "Local" select time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", name, err)
	}
	return loc, nil
}
