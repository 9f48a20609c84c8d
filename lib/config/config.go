// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/digest"
	"github.com/bureau-foundation/photobackup/lib/partition"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// ConfigEnv names the variable [Load] reads the file path from.
const ConfigEnv = "PHOTOBACKUP_CONFIG"

// Reference environment variables seeding [Default].
const (
	RootEnv   = "PHOTO_BACKUP_ROOT"
	APIKeyEnv = "PHOTO_BACKUP_API_KEY"
	HostEnv   = "PHOTO_BACKUP_HOST"
	PortEnv   = "PHOTO_BACKUP_PORT"
)

// Config is the master configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Archive configures the content-addressed store.
	Archive ArchiveConfig `yaml:"archive"`

	// Server configures the ingest HTTP service.
	Server ServerConfig `yaml:"server"`

	// Dedupe configures bulk deduplication sweeps.
	Dedupe DedupeConfig `yaml:"dedupe"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment. Pointer booleans distinguish "unset" from false.
type ConfigOverrides struct {
	Archive *ArchiveOverrides `yaml:"archive,omitempty"`
	Server  *ServerConfig     `yaml:"server,omitempty"`
	Dedupe  *DedupeConfig     `yaml:"dedupe,omitempty"`
}

// ArchiveConfig configures the archive root.
type ArchiveConfig struct {
	// Root is the archive directory.
	// Default: $PHOTO_BACKUP_ROOT or ./backups
	Root string `yaml:"root"`

	// Algorithm is the content digest: sha256 or blake3.
	// Default: sha256
	Algorithm string `yaml:"algorithm"`

	// Timezone is the IANA zone used to map arrival times to day
	// partitions. "Local" or empty means the host zone.
	Timezone string `yaml:"timezone"`

	// LinkSource hard-links sources into the archive when they are on
	// the same filesystem instead of copying them.
	// Default: true
	LinkSource bool `yaml:"link_source"`

	// Verify re-hashes linked objects before commit.
	// Default: false
	Verify bool `yaml:"verify"`

	// Sync fsyncs copied data and partition directories.
	// Default: true
	Sync bool `yaml:"sync"`
}

// ArchiveOverrides is the per-environment form of [ArchiveConfig].
type ArchiveOverrides struct {
	Root       string `yaml:"root,omitempty"`
	Algorithm  string `yaml:"algorithm,omitempty"`
	Timezone   string `yaml:"timezone,omitempty"`
	LinkSource *bool  `yaml:"link_source,omitempty"`
	Verify     *bool  `yaml:"verify,omitempty"`
	Sync       *bool  `yaml:"sync,omitempty"`
}

// ServerConfig configures the ingest HTTP service.
type ServerConfig struct {
	// Host is the listen address.
	// Default: $PHOTO_BACKUP_HOST or 0.0.0.0
	Host string `yaml:"host"`

	// Port is the listen port. Zero picks a free port.
	// Default: $PHOTO_BACKUP_PORT or 8080
	Port int `yaml:"port"`

	// APIKey is the shared secret for uploads. Empty disables the gate.
	// Default: $PHOTO_BACKUP_API_KEY
	APIKey string `yaml:"api_key"`

	// MaxUploadBytes caps a single upload body.
	// Default: 4 GiB
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// PublicDir is served at / when it exists.
	// Default: public
	PublicDir string `yaml:"public_dir"`

	// RateLimit is the sustained uploads per second. Zero disables
	// rate limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the token bucket size.
	// Default: 16
	RateBurst int `yaml:"rate_burst"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TransientMaxAge is the age past which leftover transient
	// artifacts are removed at startup.
	// Default: 1h
	TransientMaxAge time.Duration `yaml:"transient_max_age"`
}

// DedupeConfig configures bulk deduplication.
type DedupeConfig struct {
	// Workers bounds concurrent hashing. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Default returns the default configuration, seeded from the
// reference environment variables.
func Default() *Config {
	port := 8080
	if value := os.Getenv(PortEnv); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			port = parsed
		}
	}
	return &Config{
		Environment: Development,
		Archive: ArchiveConfig{
			Root:       envOr(RootEnv, "./backups"),
			Algorithm:  digest.Default.String(),
			Timezone:   "Local",
			LinkSource: true,
			Sync:       true,
		},
		Server: ServerConfig{
			Host:            envOr(HostEnv, "0.0.0.0"),
			Port:            port,
			APIKey:          os.Getenv(APIKeyEnv),
			MaxUploadBytes:  4 << 30,
			PublicDir:       "public",
			RateBurst:       16,
			ShutdownTimeout: 10 * time.Second,
			TransientMaxAge: time.Hour,
		},
	}
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// Load loads configuration from the file named by PHOTOBACKUP_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnv)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your photobackup.yaml config file, or use --config flag", ConfigEnv)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path on top of
// [Default].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if archive := overrides.Archive; archive != nil {
		if archive.Root != "" {
			c.Archive.Root = archive.Root
		}
		if archive.Algorithm != "" {
			c.Archive.Algorithm = archive.Algorithm
		}
		if archive.Timezone != "" {
			c.Archive.Timezone = archive.Timezone
		}
		if archive.LinkSource != nil {
			c.Archive.LinkSource = *archive.LinkSource
		}
		if archive.Verify != nil {
			c.Archive.Verify = *archive.Verify
		}
		if archive.Sync != nil {
			c.Archive.Sync = *archive.Sync
		}
	}

	if server := overrides.Server; server != nil {
		if server.Host != "" {
			c.Server.Host = server.Host
		}
		if server.Port != 0 {
			c.Server.Port = server.Port
		}
		if server.APIKey != "" {
			c.Server.APIKey = server.APIKey
		}
		if server.MaxUploadBytes != 0 {
			c.Server.MaxUploadBytes = server.MaxUploadBytes
		}
		if server.PublicDir != "" {
			c.Server.PublicDir = server.PublicDir
		}
		if server.RateLimit != 0 {
			c.Server.RateLimit = server.RateLimit
		}
		if server.RateBurst != 0 {
			c.Server.RateBurst = server.RateBurst
		}
		if server.ShutdownTimeout != 0 {
			c.Server.ShutdownTimeout = server.ShutdownTimeout
		}
		if server.TransientMaxAge != 0 {
			c.Server.TransientMaxAge = server.TransientMaxAge
		}
	}

	if dedupe := overrides.Dedupe; dedupe != nil && dedupe.Workers != 0 {
		c.Dedupe.Workers = dedupe.Workers
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Archive.Root = expandVars(c.Archive.Root, vars)
	vars[RootEnv] = c.Archive.Root
	c.Server.PublicDir = expandVars(c.Server.PublicDir, vars)
	c.Server.APIKey = expandVars(c.Server.APIKey, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, checking
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Archive.Root == "" {
		errs = append(errs, errors.New("archive.root is required"))
	}
	if _, err := digest.ParseAlgorithm(c.Archive.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("archive.algorithm: %w", err))
	}
	if _, err := partition.LoadLocation(c.Archive.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("archive.timezone: %w", err))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		errs = append(errs, errors.New("server.rate_burst must be positive when rate_limit is set"))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if c.Environment == Production && c.Server.APIKey == "" {
		errs = append(errs, errors.New("server.api_key is required in production"))
	}

	if c.Dedupe.Workers < 0 {
		errs = append(errs, errors.New("dedupe.workers must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ListenAddress returns host:port for the ingest server.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// DigestAlgorithm returns the parsed archive algorithm.
func (c *Config) DigestAlgorithm() (digest.Algorithm, error) {
	return digest.ParseAlgorithm(c.Archive.Algorithm)
}

// Location returns the parsed archive timezone.
func (c *Config) Location() (*time.Location, error) {
	return partition.LoadLocation(c.Archive.Timezone)
}

// ArchiveOptions translates the archive section into [archive.Options].
func (c *Config) ArchiveOptions(logger *slog.Logger) (archive.Options, error) {
	algorithm, err := c.DigestAlgorithm()
	if err != nil {
		return archive.Options{}, err
	}
	location, err := c.Location()
	if err != nil {
		return archive.Options{}, err
	}
	return archive.Options{
		Algorithm: algorithm,
		Location:  location,
		CopyOnly:  !c.Archive.LinkSource,
		Verify:    c.Archive.Verify,
		SkipSync:  !c.Archive.Sync,
		Logger:    logger,
	}, nil
}
