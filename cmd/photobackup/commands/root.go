// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"

	"github.com/bureau-foundation/photobackup/cmd/photobackup/cli"
)

// Root returns the top-level photobackup command. Command output is
// written to stdout; logs go to stderr.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "photobackup",
		Summary: "Content-addressed photo and video archive",
		Description: `photobackup stores photos and videos exactly once under a
content-derived name, filed by calendar day.

Archive commands read the YAML file named by --config (or by
$PHOTOBACKUP_CONFIG). Without one, $PHOTO_BACKUP_ROOT and the other
PHOTO_BACKUP_* variables seed the defaults.`,
		Subcommands: []*cli.Command{
			saveCommand(stdout),
			listCommand(stdout),
			importCommand(stdout),
			dedupeCommand(stdout),
			pushCommand(stdout),
			versionCommand(stdout),
		},
	}
}
