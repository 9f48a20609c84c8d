// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the photobackup CLI.
//
// A [Command] tree is dispatched by [Command.Execute]: the first
// positional argument selects a subcommand, flags are parsed with
// pflag, and unknown commands or flags get an edit-distance
// suggestion. Parameter structs declare their flags with struct tags
// and are bound by [FlagsFromParams]:
//
//	type saveParams struct {
//	    cli.JSONOutput
//	    Name string `flag:"name" desc:"original file name"`
//	}
//
// Commands that print their own failure summary return an [ExitError]
// so main exits non-zero without an extra "error:" line.
package cli
