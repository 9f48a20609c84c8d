// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/photobackup/cmd/photobackup/cli"
	"github.com/bureau-foundation/photobackup/lib/importer"
)

type importParams struct {
	archiveParams
	cli.JSONOutput
	cli.LogParams
	Archives         []string `json:"-" flag:"archive,a" desc:"archive path or glob (repeatable)"`
	To               string   `json:"-" flag:"to" desc:"extraction root"`
	SkipExisting     bool     `json:"-" flag:"skip-existing" desc:"leave files already present at the target untouched"`
	StripComponents  int      `json:"-" flag:"strip-components" desc:"leading path components to drop from each member" default:"2"`
	ContentAddressed bool     `json:"-" flag:"content-addressed" desc:"store members in the archive instead of extracting to --to"`
	DryRun           bool     `json:"-" flag:"dry-run" desc:"read the archives and report without writing"`
}

func importCommand(stdout io.Writer) *cli.Command {
	var params importParams
	return &cli.Command{
		Name:    "import",
		Summary: "Import photo service takeout archives",
		Description: `Read tar archives (plain, gzip, zstd or lz4, detected from content)
and either extract their files under --to or, with --content-addressed,
store every file in the archive filed by its modification day.

Members with absolute paths, ".." components, links or device nodes
are rejected and counted, never written.`,
		Usage: "photobackup import --archive GLOB... (--to DIR | --content-addressed) [flags]",
		Examples: []cli.Example{
			{Description: "Extract every takeout part", Command: "photobackup import -a 'takeout-*.tgz' --to ./restored"},
			{Description: "Store a takeout straight into the archive", Command: "photobackup import -a takeout.tar.zst --content-addressed --root /srv/photos"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("import", &params) },
		Run: func(ctx context.Context, args []string) error {
			return runImport(ctx, stdout, params, args)
		},
	}
}

func runImport(ctx context.Context, stdout io.Writer, params importParams, args []string) error {
	patterns := append(append([]string(nil), params.Archives...), args...)
	if len(patterns) == 0 {
		return errors.New("at least one --archive is required")
	}
	logger := params.Logger()
	options := importer.Options{
		Patterns:        patterns,
		Destination:     params.To,
		StripComponents: params.StripComponents,
		SkipExisting:    params.SkipExisting,
		DryRun:          params.DryRun,
		Logger:          logger,
	}
	if params.ContentAddressed {
		store, _, err := params.open(logger)
		if err != nil {
			return err
		}
		options.Policy = importer.PolicyArchive
		options.Archive = store
	} else if params.To == "" {
		return errors.New("--to is required unless --content-addressed is set")
	}

	report, err := importer.Run(ctx, options)
	if errors.Is(err, importer.ErrNoArchives) {
		return fmt.Errorf("%w: %v", err, patterns)
	}
	if report != nil && !params.OutputJSON {
		printImport(stdout, report, err == nil)
	}
	if err != nil {
		return err
	}
	_, err = params.EmitJSON(stdout, report)
	return err
}

func printImport(stdout io.Writer, report *importer.Report, complete bool) {
	verb := "Written"
	if report.DryRun {
		verb = "Would write"
	}
	for _, result := range report.Archives {
		if result.Missing {
			fmt.Fprintf(stdout, "Archive not found: %s\n", result.Path)
			continue
		}
		fmt.Fprintf(stdout, "Processing archive: %s (%s)\n", result.Path, result.Compression)
		fmt.Fprintf(stdout, "  %s: %d  Skipped: %d  Rejected: %d  Size: %s\n",
			verb, result.Written, result.Skipped, result.Rejected, humanize.IBytes(uint64(result.Bytes)))
		if report.Policy == importer.PolicyArchive {
			fmt.Fprintf(stdout, "  Already stored: %d\n", result.Deduplicated)
		}
	}
	if complete {
		fmt.Fprintf(stdout, "Import complete. %s: %d\n", verb, report.Written())
	}
}
