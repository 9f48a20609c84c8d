// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pushclient uploads recently modified files from a device
// directory to an ingest server.
//
// [FindRecent] walks a directory for regular files modified inside a
// time window; [Client.Upload] streams one file as a multipart
// request without buffering it in memory; [Push] combines the two
// with bounded concurrency. A failed upload is reported and the
// remaining files are still sent.
package pushclient
