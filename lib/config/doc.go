// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// photobackup binaries.
//
// A configuration file is named by the PHOTOBACKUP_CONFIG environment
// variable (via [Load]) or a --config flag (via [LoadFile]). There is
// no file discovery. When neither is given, [Default] is used as is,
// seeded from the PHOTO_BACKUP_ROOT, PHOTO_BACKUP_API_KEY,
// PHOTO_BACKUP_HOST and PHOTO_BACKUP_PORT variables so that a bare
// server started in a shell behaves like the reference deployment.
//
// The file supports environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production without an explicit
// section refuses to run with an empty API key.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PHOTO_BACKUP_ROOT}, and ${VAR:-default} patterns are
// expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Archive, Server, Dedupe sections
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- joined validation errors
package config
