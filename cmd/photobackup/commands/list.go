// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/photobackup/cmd/photobackup/cli"
	"github.com/bureau-foundation/photobackup/lib/archive"
)

type listParams struct {
	archiveParams
	cli.JSONOutput
	Objects bool `json:"-" flag:"objects,o" desc:"list every object, not just per-day totals"`
}

func listCommand(stdout io.Writer) *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List archive partitions and their objects",
		Usage:   "photobackup list [flags]",
		Examples: []cli.Example{
			{Description: "Per-day totals", Command: "photobackup list"},
			{Description: "Every object as JSON", Command: "photobackup list --json"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runList(stdout, params)
		},
	}
}

func runList(stdout io.Writer, params listParams) error {
	store, _, err := params.open(nil)
	if err != nil {
		return err
	}
	days, err := store.List()
	if err != nil {
		return err
	}
	if done, err := params.EmitJSON(stdout, days); done {
		return err
	}
	if len(days) == 0 {
		fmt.Fprintf(stdout, "No partitions in %s\n", store.Root())
		return nil
	}

	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	var totalObjects int
	var totalBytes int64
	for _, day := range days {
		bytes := dayBytes(day)
		totalObjects += len(day.Objects)
		totalBytes += bytes
		fmt.Fprintf(writer, "%s\t%d objects\t%s\n", day.Partition, len(day.Objects), humanize.IBytes(uint64(bytes)))
		if params.Objects {
			for _, object := range day.Objects {
				fmt.Fprintf(writer, "  %s\t%s\t%s\n", object.Name, humanize.IBytes(uint64(object.Size)), humanize.Time(object.ModTime))
			}
		}
	}
	fmt.Fprintf(writer, "total\t%d objects\t%s\n", totalObjects, humanize.IBytes(uint64(totalBytes)))
	return writer.Flush()
}

func dayBytes(day archive.Day) int64 {
	var total int64
	for _, object := range day.Objects {
		total += object.Size
	}
	return total
}
