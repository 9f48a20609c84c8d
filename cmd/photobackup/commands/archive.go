// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/config"
)

// archiveParams locates the archive for commands that read or write it.
type archiveParams struct {
	Config string `json:"-" flag:"config" desc:"path to photobackup.yaml (default $PHOTOBACKUP_CONFIG)"`
	Root   string `json:"-" flag:"root" desc:"archive root (overrides archive.root)"`
}

// load resolves configuration: --config, then $PHOTOBACKUP_CONFIG,
// then the environment-seeded defaults. --root wins over all of them.
func (p *archiveParams) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case p.Config != "":
		cfg, err = config.LoadFile(p.Config)
	case os.Getenv(config.ConfigEnv) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if p.Root != "" {
		cfg.Archive.Root = p.Root
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// open loads configuration and opens the archive it names.
func (p *archiveParams) open(logger *slog.Logger) (*archive.Archive, *config.Config, error) {
	cfg, err := p.load()
	if err != nil {
		return nil, nil, err
	}
	options, err := cfg.ArchiveOptions(logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := archive.New(cfg.Archive.Root, options)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
