// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for photobackup
// packages.
//
// [WriteFile] and [ReadFile] wrap file setup and inspection so tests
// read as a sequence of facts rather than error plumbing. [Names]
// lists a directory's entry names in sorted order, which is what most
// archive-layout assertions compare against.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so concurrency tests
// fail with a message instead of hanging the test binary.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no photobackup-internal dependencies.
package testutil
