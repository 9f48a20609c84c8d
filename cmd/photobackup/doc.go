// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Photobackup is the operator CLI for a content-addressed photo
// archive.
//
// Subcommands:
//
//	save     store files in the archive
//	list     show partitions and objects
//	import   extract or archive photo service takeouts
//	dedupe   find and hard-link duplicate files
//	push     upload recent files to an ingest server
//	version  print build information
package main
