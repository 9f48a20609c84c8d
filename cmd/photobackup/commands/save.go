// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/photobackup/cmd/photobackup/cli"
	"github.com/bureau-foundation/photobackup/lib/clock"
	"github.com/bureau-foundation/photobackup/lib/partition"
)

type saveParams struct {
	archiveParams
	cli.JSONOutput
	cli.LogParams
	At   string `json:"-" flag:"at" desc:"arrival time as RFC 3339 or YYYY-MM-DD (default now)"`
	Name string `json:"-" flag:"name" desc:"original filename whose extension names the object (single FILE only)"`
}

type saveEntry struct {
	Source    string `json:"source"`
	SavedPath string `json:"saved_path"`
	Digest    string `json:"digest"`
	Outcome   string `json:"outcome"`
	Size      int64  `json:"size"`
}

func saveCommand(stdout io.Writer) *cli.Command {
	var params saveParams
	return &cli.Command{
		Name:    "save",
		Summary: "Store files in the archive",
		Description: `Store each FILE in the archive under its content digest, filed under
the day of --at. A file whose content is already in that day's
partition is reported as a dedup hit and nothing is written.`,
		Usage: "photobackup save FILE... [flags]",
		Examples: []cli.Example{
			{Description: "Save two photos under today's partition", Command: "photobackup save IMG_0001.jpg IMG_0002.jpg"},
			{Description: "Backfill a staged upload under a known day", Command: "photobackup save --at 2024-01-15 --name IMG_0001.HEIC upload.tmp"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("save", &params) },
		Run: func(ctx context.Context, args []string) error {
			return runSave(ctx, stdout, params, args)
		},
	}
}

func runSave(ctx context.Context, stdout io.Writer, params saveParams, files []string) error {
	if len(files) == 0 {
		return errors.New("at least one FILE is required")
	}
	if params.Name != "" && len(files) != 1 {
		return errors.New("--name requires exactly one FILE")
	}

	store, _, err := params.open(params.Logger())
	if err != nil {
		return err
	}
	at, err := parseAt(params.At, store.Partitioner().Location, clock.Real())
	if err != nil {
		return err
	}

	entries := make([]saveEntry, 0, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		if params.Name != "" {
			name = params.Name
		}
		result, err := store.SaveAs(ctx, file, name, at)
		if err != nil {
			return fmt.Errorf("saving %s: %w", file, err)
		}
		entry := saveEntry{
			Source:    file,
			SavedPath: result.RelativePath,
			Digest:    result.Digest,
			Outcome:   result.Outcome.String(),
			Size:      result.Size,
		}
		entries = append(entries, entry)
		if !params.OutputJSON {
			fmt.Fprintf(stdout, "%s -> %s (%s)\n", entry.Source, entry.SavedPath, entry.Outcome)
		}
	}

	_, err = params.EmitJSON(stdout, entries)
	return err
}

// parseAt accepts an RFC 3339 timestamp or a bare partition date,
// which means midnight of that day in loc. Empty means now.
func parseAt(value string, loc *time.Location, now clock.Clock) (time.Time, error) {
	if value == "" {
		return now.Now(), nil
	}
	if at, err := time.Parse(time.RFC3339, value); err == nil {
		return at, nil
	}
	id, err := partition.Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at %q: want RFC 3339 or %s", value, partition.Layout)
	}
	return id.Time(loc)
}
