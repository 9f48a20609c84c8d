// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpserver runs an http.Handler on a TCP listener with
// readiness signalling and graceful shutdown.
//
// [Server.Serve] binds the listener, closes [Server.Ready], and blocks
// until its context is cancelled; it then stops accepting connections
// and waits up to the shutdown timeout for in-flight uploads to finish.
// [NewLogger] builds the JSON logger used by long-running services.
package httpserver
