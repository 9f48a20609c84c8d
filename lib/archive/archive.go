// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/photobackup/lib/digest"
	"github.com/bureau-foundation/photobackup/lib/partition"
)

// Options configures an Archive.
type Options struct {
	// Algorithm selects the content digest. Zero means digest.Default.
	Algorithm digest.Algorithm

	// Location is the zone in which ingest timestamps are mapped to
	// calendar-day partitions. Nil means time.Local.
	Location *time.Location

	// CopyOnly disables hard-linking the source into the archive.
	// Set this when sources are user-owned files that may later be
	// edited in place: a linked object shares the source's inode.
	CopyOnly bool

	// Verify re-hashes a hard-linked transient before commit. The copy
	// path always verifies because it hashes while copying.
	Verify bool

	// SkipSync disables fsync of copied data and of the partition
	// directory after commit. Only for tests and throwaway archives.
	SkipSync bool

	// Logger receives debug and info events. Nil discards.
	Logger *slog.Logger
}

// Archive is a handle on one archive root. It is safe for concurrent
// use by any number of goroutines and processes.
type Archive struct {
	root        string
	algorithm   digest.Algorithm
	partitioner *partition.Partitioner
	copyOnly    bool
	verify      bool
	sync        bool
	logger      *slog.Logger
}

// New opens (creating if needed) the archive rooted at root.
func New(root string, options Options) (*Archive, error) {
	if root == "" {
		return nil, errors.New("archive root is required")
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving archive root %s: %w", root, err)
	}
	algorithm := options.Algorithm
	if algorithm == 0 {
		algorithm = digest.Default
	}
	if !algorithm.Valid() {
		return nil, fmt.Errorf("invalid digest algorithm %d", uint8(algorithm))
	}
	for _, dir := range []string{absolute, filepath.Join(absolute, StagingDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
		}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Archive{
		root:        absolute,
		algorithm:   algorithm,
		partitioner: partition.New(options.Location),
		copyOnly:    options.CopyOnly,
		verify:      options.Verify,
		sync:        !options.SkipSync,
		logger:      logger,
	}, nil
}

// Root returns the absolute archive root.
func (a *Archive) Root() string { return a.root }

// Algorithm returns the digest algorithm objects are named by.
func (a *Archive) Algorithm() digest.Algorithm { return a.algorithm }

// Partitioner returns the partitioner used to place objects.
func (a *Archive) Partitioner() *partition.Partitioner { return a.partitioner }

// StagingDir returns the directory where ingest boundaries should
// write uploads before calling Save. It shares the root's filesystem,
// so saving from it takes the hard-link path.
func (a *Archive) StagingDir() string { return filepath.Join(a.root, StagingDirName) }

// Outcome describes how a successful save ended.
type Outcome uint8

const (
	// OutcomeCommitted means this call published a new object.
	OutcomeCommitted Outcome = iota + 1

	// OutcomeDedupHit means the canonical object already existed
	// before this call materialized anything.
	OutcomeDedupHit

	// OutcomeLostRace means a concurrent save of identical content
	// committed first; this call discarded its transient copy.
	OutcomeLostRace
)

// String returns the snake_case outcome name used in logs, metrics,
// and API responses.
func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeDedupHit:
		return "dedup_hit"
	case OutcomeLostRace:
		return "lost_race"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "committed":
		*o = OutcomeCommitted
	case "dedup_hit":
		*o = OutcomeDedupHit
	case "lost_race":
		*o = OutcomeLostRace
	default:
		return fmt.Errorf("unknown save outcome %q", text)
	}
	return nil
}

// Deduplicated reports whether the content was already present.
func (o Outcome) Deduplicated() bool {
	return o == OutcomeDedupHit || o == OutcomeLostRace
}

// SaveResult describes a stored object.
type SaveResult struct {
	// Path is the absolute canonical path.
	Path string

	// RelativePath is "<partition>/<name>" with forward slashes.
	RelativePath string

	// Partition is the calendar day the object was filed under.
	Partition partition.ID

	// Name is the canonical object name: digest plus extension.
	Name string

	// Digest is the lowercase hex content digest.
	Digest string

	// Size is the content length in bytes.
	Size int64

	// Outcome says whether this call committed the object.
	Outcome Outcome

	// Linked is true when the object was materialized by hard link
	// rather than copy. Always false for dedup hits.
	Linked bool
}

// Save stores the file at source, filed under the partition for at.
// The extension is taken from source's own name.
func (a *Archive) Save(ctx context.Context, source string, at time.Time) (*SaveResult, error) {
	return a.SaveAs(ctx, source, filepath.Base(source), at)
}

// SaveAs stores the file at source under the content-derived name
// for originalName's extension, filed under the partition for at.
//
// Every successful return carries the same canonical path for the
// same content and day, whether this call committed the object, found
// it already present, or lost a commit race. A cancelled context
// aborts the save only before the commit rename; once committed, the
// result is returned regardless of ctx.
func (a *Archive) SaveAs(ctx context.Context, source, originalName string, at time.Time) (*SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrSourceUnavailable, source)
	}

	id := a.partitioner.For(at)
	dir, err := a.partitioner.Ensure(a.root, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPartitionUnwritable, err)
	}

	digestHex, size, err := digest.SumFile(ctx, a.algorithm, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	name := CanonicalName(digestHex, originalName)
	final := filepath.Join(dir, name)
	result := &SaveResult{
		Path:         final,
		RelativePath: path.Join(string(id), name),
		Partition:    id,
		Name:         name,
		Digest:       digestHex,
		Size:         size,
	}
	logger := a.logger.With("partition", string(id), "name", name)

	exists, err := objectExists(final)
	if err != nil {
		return nil, err
	}
	if exists {
		result.Outcome = OutcomeDedupHit
		logger.Debug("dedup hit", "source", source)
		return result, nil
	}

	transient := transientPath(dir, name)
	linked, err := a.materialize(ctx, source, transient, digestHex)
	if err != nil {
		removeTransient(transient)
		return nil, err
	}
	result.Linked = linked

	if err := ctx.Err(); err != nil {
		removeTransient(transient)
		return nil, err
	}

	if beforeCommit != nil {
		beforeCommit(final)
	}
	committed, err := commitNoReplace(transient, final)
	if err != nil {
		removeTransient(transient)
		return nil, fmt.Errorf("%w: %w", ErrPartitionUnwritable, err)
	}
	if !committed {
		removeTransient(transient)
		exists, err := objectExists(final)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: commit reported %s present but it is missing", ErrPartitionUnwritable, final)
		}
		result.Outcome = OutcomeLostRace
		result.Linked = false
		logger.Debug("lost commit race to identical content")
		return result, nil
	}

	if a.sync {
		if err := syncDir(dir); err != nil {
			logger.Debug("partition directory sync failed", "error", err)
		}
	}
	result.Outcome = OutcomeCommitted
	logger.Info("object committed", "size", size, "linked", linked)
	return result, nil
}

// beforeCommit, when set, runs between materializing the transient and
// the commit rename. Tests use it to publish a competing object at a
// fixed point in the save.
var beforeCommit func(final string)

// objectExists reports whether a finalized object is present at path.
func objectExists(path string) (bool, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%w: %s", ErrInvalidObject, path)
	}
	return true, nil
}

// materialize places the source's bytes at transient. Returns whether
// a hard link was used.
func (a *Archive) materialize(ctx context.Context, source, transient, digestHex string) (bool, error) {
	if !a.copyOnly {
		err := os.Link(source, transient)
		if err == nil {
			if !a.verify {
				return true, nil
			}
			verified, _, err := digest.SumFile(ctx, a.algorithm, transient)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return true, ctxErr
				}
				return true, fmt.Errorf("%w: verifying linked copy: %w", ErrSourceUnavailable, err)
			}
			if verified != digestHex {
				return true, fmt.Errorf("%w: %s", ErrSourceChanged, source)
			}
			return true, nil
		}
		a.logger.Debug("hard link unavailable, copying", "source", source, "error", err)
	}
	return false, a.copyVerified(ctx, source, transient, digestHex)
}

// copyVerified copies source to a new file at transient, hashing the
// bytes as they are written, and rejects the copy if they do not
// match digestHex.
func (a *Archive) copyVerified(ctx context.Context, source, transient, digestHex string) error {
	input, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer input.Close()

	output, err := os.OpenFile(transient, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating transient: %w", ErrPartitionUnwritable, err)
	}

	hasher := a.algorithm.New()
	buffer := make([]byte, digest.ChunkSize)
	reader := &readTracker{reader: digest.Reader(ctx, input)}
	_, copyErr := io.CopyBuffer(io.MultiWriter(output, hasher), reader, buffer)
	if copyErr == nil && a.sync {
		copyErr = output.Sync()
	}
	closeErr := output.Close()
	switch {
	case copyErr != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if reader.err != nil {
			return fmt.Errorf("%w: reading %s: %w", ErrSourceUnavailable, source, copyErr)
		}
		return fmt.Errorf("%w: writing transient: %w", ErrPartitionUnwritable, copyErr)
	case closeErr != nil:
		return fmt.Errorf("%w: closing transient: %w", ErrPartitionUnwritable, closeErr)
	}

	if hex.EncodeToString(hasher.Sum(nil)) != digestHex {
		return fmt.Errorf("%w: %s", ErrSourceChanged, source)
	}

	// The copy keeps the source's mtime, matching a hard link.
	if info, err := input.Stat(); err == nil {
		if err := os.Chtimes(transient, info.ModTime(), info.ModTime()); err != nil {
			a.logger.Debug("preserving source mtime failed", "transient", transient, "error", err)
		}
	}
	return nil
}

func removeTransient(path string) {
	_ = os.Remove(path)
}

// readTracker remembers the first non-EOF read error so a failed copy
// can be attributed to the source rather than the destination.
type readTracker struct {
	reader io.Reader
	err    error
}

func (r *readTracker) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	return n, err
}
