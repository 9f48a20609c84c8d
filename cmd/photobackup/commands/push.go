// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/photobackup/cmd/photobackup/cli"
	"github.com/bureau-foundation/photobackup/lib/config"
	"github.com/bureau-foundation/photobackup/lib/pushclient"
)

type pushParams struct {
	cli.JSONOutput
	cli.LogParams
	Dir         string  `json:"-" flag:"dir" desc:"directory to scan for recent files"`
	Hours       float64 `json:"-" flag:"hours" desc:"upload files modified within this many hours" default:"24"`
	URL         string  `json:"-" flag:"url" desc:"upload endpoint" default:"http://localhost:8080/upload"`
	APIKey      string  `json:"-" flag:"api-key" desc:"shared secret (default $PHOTO_BACKUP_API_KEY)"`
	Concurrency int     `json:"-" flag:"concurrency" desc:"parallel uploads" default:"4"`
}

func pushCommand(stdout io.Writer) *cli.Command {
	var params pushParams
	return &cli.Command{
		Name:    "push",
		Summary: "Upload recently modified files to an ingest server",
		Description: `Walk --dir for regular files modified within --hours and upload each
one to the ingest server. Exits 1 when any upload failed.`,
		Usage: "photobackup push --dir DIR [flags]",
		Examples: []cli.Example{
			{Description: "Upload the last day of camera roll", Command: "photobackup push --dir ~/DCIM --url http://nas:8080/upload"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("push", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runPush(ctx, stdout, params)
		},
	}
}

func runPush(ctx context.Context, stdout io.Writer, params pushParams) error {
	if params.Dir == "" {
		return errors.New("--dir is required")
	}
	if params.Hours <= 0 {
		return errors.New("--hours must be positive")
	}
	apiKey := params.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(config.APIKeyEnv)
	}

	report, err := pushclient.Push(ctx, pushclient.Options{
		Dir:         params.Dir,
		Window:      time.Duration(params.Hours * float64(time.Hour)),
		Client:      pushclient.NewClient(params.URL, apiKey, nil),
		Concurrency: params.Concurrency,
		Logger:      params.Logger(),
	})
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(stdout, report); done {
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintf(stdout, "Found %d files\n", report.Found)
		for _, result := range report.Uploaded {
			fmt.Fprintf(stdout, "Uploaded: %s -> %s (%s)\n", result.Path, result.SavedPath, result.Outcome)
		}
		for _, result := range report.Failed {
			fmt.Fprintf(stdout, "Failed: %s: %s\n", result.Path, result.Error)
		}
	}
	if len(report.Failed) > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
