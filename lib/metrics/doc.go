// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors exported by the
// ingest server at /metrics.
//
// Collectors register against a caller-supplied registry so that
// tests can use a fresh [prometheus.Registry] per case and assert with
// prometheus/testutil.
package metrics
