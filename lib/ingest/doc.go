// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest is the HTTP boundary of the archive: devices upload
// photos and videos to it and read back the per-day listing.
//
// Routes:
//
//	POST /upload   multipart form, file in field "file"
//	GET  /list     {"days":[{"date":"YYYY-MM-DD","files":[...]}]}
//	GET  /healthz  liveness
//	GET  /metrics  Prometheus exposition
//	GET  /         static files from the public directory, if it exists
//
// An upload body is streamed into a uniquely named staging file under
// the archive's .incoming directory, never a path derived from the
// client's filename, and handed to [archive.Archive.SaveAs] with the
// client filename (for its extension) and the arrival time from the
// injected clock. The staging file is removed whatever the outcome.
//
// When an API key is configured, uploads must present it in the
// X-API-Key header or the x_api_key query parameter. The listing is
// not gated.
package ingest
