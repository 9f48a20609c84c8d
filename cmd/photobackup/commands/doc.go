// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the photobackup command tree.
//
// Each subcommand binds a params struct with [cli.FlagsFromParams],
// loads configuration through [archiveParams] where it needs an
// archive, and writes human output to the stdout given to [Root].
// Subcommands with --json emit the same data as a JSON document.
package commands
