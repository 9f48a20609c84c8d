// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Photobackup-server accepts photo and video uploads over HTTP and
// stores them in a content-addressed, date-partitioned archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/clock"
	"github.com/bureau-foundation/photobackup/lib/config"
	"github.com/bureau-foundation/photobackup/lib/httpserver"
	"github.com/bureau-foundation/photobackup/lib/ingest"
	"github.com/bureau-foundation/photobackup/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	root        string
	host        string
	port        int
	apiKey      string
	publicDir   string
	debug       bool
	showVersion bool
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	var f flags
	flagSet := pflag.NewFlagSet("photobackup-server", pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "", "path to photobackup.yaml (default $PHOTOBACKUP_CONFIG)")
	flagSet.StringVar(&f.root, "root", "", "archive root (overrides archive.root)")
	flagSet.StringVar(&f.host, "host", "", "listen host (overrides server.host)")
	flagSet.IntVar(&f.port, "port", 0, "listen port (overrides server.port)")
	flagSet.StringVar(&f.apiKey, "api-key", "", "upload shared secret (overrides server.api_key)")
	flagSet.StringVar(&f.publicDir, "public-dir", "", "static directory served at / (overrides server.public_dir)")
	flagSet.BoolVar(&f.debug, "debug", false, "log at debug level")
	flagSet.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}
	return &f, flagSet, nil
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(f *flags, flagSet *pflag.FlagSet) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
	case os.Getenv(config.ConfigEnv) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flagSet.Changed("root") {
		cfg.Archive.Root = f.root
	}
	if flagSet.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flagSet.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flagSet.Changed("api-key") {
		cfg.Server.APIKey = f.apiKey
	}
	if flagSet.Changed("public-dir") {
		cfg.Server.PublicDir = f.publicDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	f, flagSet, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Printf("photobackup-server %s\n", version.Info())
		return nil
	}

	level := slog.LevelInfo
	if f.debug {
		level = slog.LevelDebug
	}
	logger := httpserver.NewLogger(level)

	cfg, err := loadConfig(f, flagSet)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := newServer(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// newServer opens the archive, clears crash debris older than
// server.transient_max_age, and wires the ingest handler.
func newServer(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*httpserver.Server, error) {
	options, err := cfg.ArchiveOptions(logger)
	if err != nil {
		return nil, err
	}
	store, err := archive.New(cfg.Archive.Root, options)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if cfg.Server.TransientMaxAge > 0 {
		removed, err := store.CleanTransient(clk.Now().Add(-cfg.Server.TransientMaxAge))
		if err != nil {
			logger.Warn("transient cleanup failed", "error", err)
		} else if removed > 0 {
			logger.Info("removed stale transient artifacts", "count", removed)
		}
	}

	var limiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
	}
	if cfg.Server.APIKey == "" {
		logger.Warn("upload authentication disabled: no api_key configured")
	}

	handler, err := ingest.New(ingest.Options{
		Archive:        store,
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		PublicDir:      cfg.Server.PublicDir,
		Limiter:        limiter,
		Clock:          clk,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("photobackup-server starting",
		"version", version.Info(),
		"root", store.Root(),
		"algorithm", store.Algorithm().String(),
		"address", cfg.ListenAddress(),
	)
	return httpserver.New(httpserver.Config{
		Address:         cfg.ListenAddress(),
		Handler:         handler,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	}), nil
}
