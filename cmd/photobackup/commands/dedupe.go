// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/photobackup/cmd/photobackup/cli"
	"github.com/bureau-foundation/photobackup/lib/codec"
	"github.com/bureau-foundation/photobackup/lib/dedupe"
	"github.com/bureau-foundation/photobackup/lib/digest"
)

type dedupeParams struct {
	archiveParams
	cli.JSONOutput
	cli.LogParams
	LinkHard bool   `json:"-" flag:"link-hard" desc:"replace duplicates with hard links to the canonical copy"`
	Algo     string `json:"-" flag:"algo" desc:"content digest: sha256 or blake3 (default archive.algorithm)"`
	DryRun   bool   `json:"-" flag:"dry-run" desc:"print the planned links without changing anything"`
	Workers  int    `json:"-" flag:"workers" desc:"concurrent hashing workers (default dedupe.workers, then GOMAXPROCS)"`
	Report   string `json:"-" flag:"report" desc:"also write the full report to FILE as CBOR"`
}

func dedupeCommand(stdout io.Writer) *cli.Command {
	var params dedupeParams
	return &cli.Command{
		Name:    "dedupe",
		Summary: "Find duplicate files and optionally hard-link them",
		Description: `Scan the archive root for files with identical content. Without
--link-hard the duplicate sets are only reported. With --link-hard each
duplicate is atomically replaced by a hard link to the lexically first
member of its set. Files that already share that inode are left alone,
so repeated runs converge.

Exits 1 when any file could not be hashed or relinked.`,
		Usage: "photobackup dedupe [--root DIR] [flags]",
		Examples: []cli.Example{
			{Description: "Preview what would be linked", Command: "photobackup dedupe --root /srv/photos --link-hard --dry-run"},
			{Description: "Link duplicates and keep a CBOR report", Command: "photobackup dedupe --link-hard --report dedupe.cbor"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("dedupe", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runDedupe(ctx, stdout, params)
		},
	}
}

func runDedupe(ctx context.Context, stdout io.Writer, params dedupeParams) error {
	cfg, err := params.load()
	if err != nil {
		return err
	}
	algorithmName := params.Algo
	if algorithmName == "" {
		algorithmName = cfg.Archive.Algorithm
	}
	algorithm, err := digest.ParseAlgorithm(algorithmName)
	if err != nil {
		return fmt.Errorf("--algo: %w", err)
	}
	workers := params.Workers
	if workers == 0 {
		workers = cfg.Dedupe.Workers
	}
	mode := dedupe.LinkNone
	if params.LinkHard {
		mode = dedupe.LinkHard
	}

	report, err := dedupe.Run(ctx, dedupe.Options{
		Root:      cfg.Archive.Root,
		Mode:      mode,
		DryRun:    params.DryRun,
		Algorithm: algorithm,
		Workers:   workers,
		Logger:    params.Logger(),
	})
	if err != nil {
		return err
	}

	if params.Report != "" {
		data, err := codec.Marshal(report)
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		if err := os.WriteFile(params.Report, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if done, err := params.EmitJSON(stdout, report); done {
		if err != nil {
			return err
		}
	} else {
		printDedupe(stdout, report)
	}
	if len(report.Failures) > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func printDedupe(stdout io.Writer, report *dedupe.Report) {
	switch {
	case report.DryRun:
		for _, action := range report.Planned {
			fmt.Fprintf(stdout, "DRY-RUN: would hardlink %s -> %s\n", action.Path, action.Canonical)
		}
	case report.Mode == dedupe.LinkNone:
		for _, group := range report.Groups {
			fmt.Fprintf(stdout, "Duplicate set %s (%s):\n", group.Digest, humanize.IBytes(uint64(group.Size)))
			for _, path := range group.Paths {
				fmt.Fprintf(stdout, "  %s\n", path)
			}
		}
	}
	for _, failure := range report.Failures {
		fmt.Fprintf(stdout, "Failed: %s: %s\n", failure.Path, failure.Reason)
	}

	fmt.Fprintf(stdout, "Dedup complete. Actions: %d\n", report.Actions)
	reclaimed := humanize.IBytes(uint64(report.ReclaimedBytes))
	if report.DryRun || report.Mode == dedupe.LinkNone {
		fmt.Fprintf(stdout, "Reclaimable: %s across %d duplicate sets\n", reclaimed, len(report.Groups))
	} else {
		fmt.Fprintf(stdout, "Reclaimed: %s (%d already linked)\n", reclaimed, report.AlreadyLinked)
	}
	if len(report.Failures) > 0 {
		fmt.Fprintf(stdout, "Failures: %d\n", len(report.Failures))
	}
}
