// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/photobackup/lib/partition"
)

// CleanTransient removes transient artifacts and staged uploads created
// before cutoff. These are debris from saves interrupted by a crash.
// A transient's age comes from the timestamp in its name: a hard-linked
// or copied transient carries the source's mtime, which may be years
// old while the save is still running. Staged uploads and transients
// without a timestamped name are judged by mtime. Finalized objects are
// never touched. Returns the number of files removed.
func (a *Archive) CleanTransient(cutoff time.Time) (int, error) {
	removed := 0
	remove := func(path string, info fs.FileInfo) error {
		created, ok := transientCreated(info.Name())
		if !ok {
			created = info.ModTime()
		}
		if !created.Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
		removed++
		a.logger.Info("removed stale transient", "path", path, "created", created)
		return nil
	}

	entries, err := os.ReadDir(a.root)
	if err != nil {
		return 0, fmt.Errorf("reading archive root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		staging := entry.Name() == StagingDirName
		if !staging && !partition.Valid(entry.Name()) {
			continue
		}
		dir := filepath.Join(a.root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, file := range files {
			if !file.Type().IsRegular() || (!staging && !IsTransient(file.Name())) {
				continue
			}
			info, err := file.Info()
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return removed, err
			}
			if err := remove(filepath.Join(dir, file.Name()), info); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}
