// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/digest"
)

// Policy selects where archive members are written.
type Policy uint8

const (
	// PolicyExtract writes members at their relative paths.
	PolicyExtract Policy = iota

	// PolicyArchive stores members content-addressed.
	PolicyArchive
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyExtract:
		return "extract"
	case PolicyArchive:
		return "archive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// DefaultStripComponents matches the layout of photo service
// takeouts: "Takeout/Google Photos/<album>/<file>".
const DefaultStripComponents = 2

// ErrNoArchives means no pattern matched any file.
var ErrNoArchives = errors.New("no archives found for provided patterns")

// Options configures an import.
type Options struct {
	// Patterns are archive paths or globs. Required.
	Patterns []string

	// Policy selects extraction or content-addressed storage.
	Policy Policy

	// Destination is the extraction root for PolicyExtract.
	Destination string

	// Archive receives members for PolicyArchive.
	Archive *archive.Archive

	// StripComponents drops leading path components of each member.
	StripComponents int

	// SkipExisting leaves files already present at the extraction
	// path untouched. PolicyArchive always skips existing content.
	SkipExisting bool

	// DryRun reads every archive and reports what would be written
	// without writing anything.
	DryRun bool

	// Logger receives per-archive and per-member events. Nil discards.
	Logger *slog.Logger
}

// ArchiveResult summarizes one archive file.
type ArchiveResult struct {
	Path        string `json:"path"`
	Compression string `json:"compression"`

	// Missing is set when the archive vanished between globbing and
	// opening.
	Missing bool `json:"missing,omitempty"`

	// Written counts extracted files (PolicyExtract) or newly
	// committed objects (PolicyArchive). In a dry run it counts what
	// would be written.
	Written int `json:"written"`

	// Deduplicated counts members whose content was already stored
	// (PolicyArchive only).
	Deduplicated int `json:"deduplicated"`

	// Skipped counts members left alone because the target existed.
	Skipped int `json:"skipped"`

	// Rejected counts unsafe or unsupported members.
	Rejected int `json:"rejected"`

	// Bytes is the total size of regular members processed.
	Bytes int64 `json:"bytes"`
}

// Report summarizes an import.
type Report struct {
	Policy   Policy          `json:"policy"`
	DryRun   bool            `json:"dry_run"`
	Archives []ArchiveResult `json:"archives"`
}

// Written totals Written across archives.
func (r *Report) Written() int {
	total := 0
	for _, result := range r.Archives {
		total += result.Written
	}
	return total
}

// ExpandPatterns returns the sorted, de-duplicated files matching
// patterns.
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var matches []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, match := range found {
			if !seen[match] {
				seen[match] = true
				matches = append(matches, match)
			}
		}
	}
	if len(matches) == 0 {
		return nil, ErrNoArchives
	}
	sort.Strings(matches)
	return matches, nil
}

type importer struct {
	options     Options
	destination string
	logger      *slog.Logger
}

// Run imports every archive matching options.Patterns. Member-level
// problems are counted; an unreadable or corrupt archive aborts the
// import.
func Run(ctx context.Context, options Options) (*Report, error) {
	if options.StripComponents < 0 {
		return nil, errors.New("strip components must not be negative")
	}
	run := &importer{options: options, logger: options.Logger}
	if run.logger == nil {
		run.logger = slog.New(slog.DiscardHandler)
	}

	switch options.Policy {
	case PolicyExtract:
		if options.Destination == "" {
			return nil, errors.New("destination is required")
		}
		destination, err := filepath.Abs(options.Destination)
		if err != nil {
			return nil, err
		}
		if !options.DryRun {
			if err := os.MkdirAll(destination, 0o755); err != nil {
				return nil, fmt.Errorf("creating destination: %w", err)
			}
		}
		run.destination = destination
	case PolicyArchive:
		if options.Archive == nil {
			return nil, errors.New("archive is required for the archive policy")
		}
	default:
		return nil, fmt.Errorf("unknown policy %v", options.Policy)
	}

	paths, err := ExpandPatterns(options.Patterns)
	if err != nil {
		return nil, err
	}

	report := &Report{Policy: options.Policy, DryRun: options.DryRun}
	for _, archivePath := range paths {
		result, err := run.importArchive(ctx, archivePath)
		if err != nil {
			return report, fmt.Errorf("importing %s: %w", archivePath, err)
		}
		report.Archives = append(report.Archives, result)
	}
	return report, nil
}

func (run *importer) importArchive(ctx context.Context, archivePath string) (ArchiveResult, error) {
	result := ArchiveResult{Path: archivePath}
	file, err := os.Open(archivePath)
	if errors.Is(err, fs.ErrNotExist) {
		result.Missing = true
		run.logger.Warn("skipping missing archive", "archive", archivePath)
		return result, nil
	}
	if err != nil {
		return result, err
	}
	defer file.Close()

	stream, compression, release, err := decompress(digest.Reader(ctx, file))
	if err != nil {
		return result, err
	}
	defer release()
	result.Compression = compression.String()
	run.logger.Info("processing archive", "archive", archivePath, "compression", result.Compression)

	reader := tar.NewReader(stream)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("reading tar: %w", err)
		}
		if err := run.member(ctx, reader, header, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// member handles one tar entry. Only filesystem-level failures that
// would recur for every member are returned as errors.
func (run *importer) member(ctx context.Context, reader io.Reader, header *tar.Header, result *ArchiveResult) error {
	logger := run.logger.With("member", header.Name)
	relative, err := stripComponents(header.Name, run.options.StripComponents)
	if err != nil {
		result.Rejected++
		logger.Warn("rejected member", "reason", err)
		return nil
	}
	if relative == "" {
		return nil
	}

	switch header.Typeflag {
	case tar.TypeDir:
		if run.options.Policy == PolicyExtract && !run.options.DryRun {
			target, err := securejoin.SecureJoin(run.destination, relative)
			if err != nil {
				result.Rejected++
				return nil
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
		}
		return nil
	case tar.TypeReg:
	default:
		result.Rejected++
		logger.Debug("skipped non-regular member", "type", string(header.Typeflag))
		return nil
	}
	result.Bytes += header.Size

	if run.options.Policy == PolicyArchive {
		return run.store(ctx, reader, header, path.Base(relative), result)
	}
	return run.extract(reader, header, relative, result)
}

func (run *importer) extract(reader io.Reader, header *tar.Header, relative string, result *ArchiveResult) error {
	target, err := securejoin.SecureJoin(run.destination, relative)
	if err != nil {
		result.Rejected++
		run.logger.Warn("rejected member", "member", header.Name, "reason", err)
		return nil
	}
	if run.options.SkipExisting {
		if _, err := os.Lstat(target); err == nil {
			result.Skipped++
			return nil
		}
	}
	if run.options.DryRun {
		result.Written++
		run.logger.Info("dry run: would extract", "member", header.Name, "target", target)
		return nil
	}

	dir, base := filepath.Split(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	temporary, err := os.CreateTemp(dir, "."+base+".*"+archive.TransientSuffix)
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	defer os.Remove(temporary.Name())

	if _, err := io.Copy(temporary, reader); err != nil {
		temporary.Close()
		return fmt.Errorf("extracting %s: %w", header.Name, err)
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	if err := os.Chmod(temporary.Name(), fileMode(header)); err != nil {
		return err
	}
	if err := os.Rename(temporary.Name(), target); err != nil {
		return fmt.Errorf("placing %s: %w", target, err)
	}
	// Backdated only once placed, so a transient is never older than
	// the extraction that owns it.
	if !header.ModTime.IsZero() {
		if err := os.Chtimes(target, header.ModTime, header.ModTime); err != nil {
			run.logger.Debug("restoring member mtime failed", "member", header.Name, "target", target, "error", err)
		}
	}
	result.Written++
	return nil
}

func (run *importer) store(ctx context.Context, reader io.Reader, header *tar.Header, name string, result *ArchiveResult) error {
	store := run.options.Archive
	if run.options.DryRun {
		result.Written++
		run.logger.Info("dry run: would store", "member", header.Name)
		return nil
	}

	stagingDir := store.StagingDir()
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	staged, err := os.CreateTemp(stagingDir, "import-*")
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}
	defer os.Remove(staged.Name())
	if err := staged.Chmod(0o644); err != nil {
		staged.Close()
		return fmt.Errorf("setting staging file mode: %w", err)
	}
	if _, err := io.Copy(staged, reader); err != nil {
		staged.Close()
		return fmt.Errorf("extracting %s: %w", header.Name, err)
	}
	if err := staged.Close(); err != nil {
		return err
	}

	at := header.ModTime
	if at.IsZero() {
		at = time.Now()
	}
	saved, err := store.SaveAs(ctx, staged.Name(), name, at)
	if err != nil {
		return fmt.Errorf("storing %s: %w", header.Name, err)
	}
	if saved.Outcome.Deduplicated() {
		result.Deduplicated++
	} else {
		result.Written++
	}
	run.logger.Debug("stored member", "member", header.Name, "saved_path", saved.RelativePath, "outcome", saved.Outcome.String())
	return nil
}

// fileMode keeps the member's permission bits but always leaves the
// owner able to read and write.
func fileMode(header *tar.Header) os.FileMode {
	return os.FileMode(header.Mode).Perm() | 0o600
}
