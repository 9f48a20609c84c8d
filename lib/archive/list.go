// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bureau-foundation/photobackup/lib/partition"
)

// Object is a finalized object as seen by the listing boundary.
type Object struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Day is one partition and the objects filed under it.
type Day struct {
	Partition partition.ID `json:"date"`
	Objects   []Object     `json:"files"`
}

// List enumerates every partition in ascending date order with its
// objects sorted by name. Directories that are not partitions (the
// staging directory, operator clutter) and transient artifacts are
// never reported. An empty partition is listed with no objects.
func (a *Archive) List() ([]Day, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("reading archive root: %w", err)
	}
	var days []Day
	for _, entry := range entries {
		if !entry.IsDir() || !partition.Valid(entry.Name()) {
			continue
		}
		objects, err := a.ListPartition(partition.ID(entry.Name()))
		if err != nil {
			return nil, err
		}
		days = append(days, Day{Partition: partition.ID(entry.Name()), Objects: objects})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Partition < days[j].Partition })
	return days, nil
}

// ListPartition returns the finalized objects in one partition. A
// partition that does not exist yet has no objects.
func (a *Archive) ListPartition(id partition.ID) ([]Object, error) {
	if !partition.Valid(string(id)) {
		return nil, fmt.Errorf("invalid partition id %q", string(id))
	}
	dir := a.partitioner.Path(a.root, id)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading partition %s: %w", id, err)
	}
	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || IsTransient(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", filepath.Join(dir, entry.Name()), err)
		}
		objects = append(objects, Object{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}
