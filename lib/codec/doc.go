// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// the photobackup binaries.
//
// JSON is the default on every external surface (HTTP responses, CLI
// --json output). CBOR is the compact alternative: the ingest server
// returns it from /list when the client sends Accept: application/cbor,
// and the dedupe command writes its sweep report as CBOR with
// --report. Both formats use the same `json` struct tags; fxamacker/cbor
// reads them as a fallback when no `cbor` tag is present.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same report always produces identical bytes:
//
//	data, err := codec.Marshal(report)
//	err = codec.Unmarshal(data, &report)
//
// Types implementing encoding.TextMarshaler (digest.Algorithm,
// partition.ID, archive.Outcome) serialize as CBOR text strings.
package codec
