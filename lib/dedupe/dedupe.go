// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dedupe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/digest"
)

// tempSuffix marks the temporary link created while replacing a
// duplicate. Such files are skipped by the scan.
const tempSuffix = ".dedup-link"

// LinkMode selects what happens to duplicates.
type LinkMode uint8

const (
	// LinkNone reports duplicate sets without changing anything.
	LinkNone LinkMode = iota

	// LinkHard replaces duplicates with hard links to the canonical
	// member.
	LinkHard
)

// String returns the mode name.
func (m LinkMode) String() string {
	switch m {
	case LinkNone:
		return "none"
	case LinkHard:
		return "hard"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m LinkMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseLinkMode parses "none" or "hard".
func ParseLinkMode(name string) (LinkMode, error) {
	switch name {
	case "none", "":
		return LinkNone, nil
	case "hard":
		return LinkHard, nil
	default:
		return 0, fmt.Errorf("unknown link mode %q (want none or hard)", name)
	}
}

// Options configures a sweep.
type Options struct {
	// Root is the tree to scan. Required.
	Root string

	// Mode selects whether duplicates are relinked.
	Mode LinkMode

	// DryRun reports the actions that would be taken without touching
	// the filesystem.
	DryRun bool

	// Algorithm is the content digest. Zero means digest.Default.
	Algorithm digest.Algorithm

	// Workers bounds concurrent hashing. Zero means GOMAXPROCS.
	Workers int

	// Logger receives per-action events. Nil discards.
	Logger *slog.Logger
}

// Action is one duplicate replaced (or, in a dry run or LinkNone
// sweep, one that would be replaced) by a link to Canonical.
type Action struct {
	Path      string `json:"path"`
	Canonical string `json:"canonical"`
	Size      int64  `json:"size"`

	modTime  time.Time
	reclaims bool

	// State of Canonical at scan time. A canonical edited since it was
	// hashed must not become the content of its duplicates.
	canonicalModTime time.Time
	canonicalID      identity
	canonicalKnown   bool
}

// Failure is a file the sweep could not hash or relink.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Group is a set of files with identical content. Paths are sorted;
// Paths[0] is the canonical member.
type Group struct {
	Digest string   `json:"digest"`
	Size   int64    `json:"size"`
	Paths  []string `json:"paths"`
}

// Report summarizes a sweep.
type Report struct {
	Root      string           `json:"root"`
	Mode      LinkMode         `json:"mode"`
	DryRun    bool             `json:"dry_run"`
	Algorithm digest.Algorithm `json:"algorithm"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`

	// FilesScanned counts regular files considered.
	FilesScanned int `json:"files_scanned"`

	// FilesHashed counts distinct inodes that were hashed.
	FilesHashed int `json:"files_hashed"`

	// Groups lists every duplicate set found, including sets whose
	// members are all already linked.
	Groups []Group `json:"groups"`

	// Planned lists every relink the sweep decided on, in execution
	// order.
	Planned []Action `json:"planned"`

	// Actions counts relinks performed, or planned ones in a dry run.
	Actions int `json:"actions"`

	// AlreadyLinked counts duplicates that already share the
	// canonical member's inode.
	AlreadyLinked int `json:"already_linked"`

	// ReclaimedBytes is the space freed by successful relinks, or
	// the space that would be freed when nothing was relinked.
	ReclaimedBytes int64 `json:"reclaimed_bytes"`

	// Failures lists per-file problems. They never abort a sweep.
	Failures []Failure `json:"failures"`
}

type identity struct {
	device uint64
	inode  uint64
}

type scannedFile struct {
	path     string
	size     int64
	modTime  time.Time
	identity identity
	known    bool
	digest   string
}

// Run performs one sweep. It returns an error only when the root
// cannot be scanned or ctx is cancelled; everything else is reported.
func Run(ctx context.Context, options Options) (*Report, error) {
	if options.Root == "" {
		return nil, errors.New("dedupe root is required")
	}
	root, err := filepath.Abs(options.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", options.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}
	algorithm := options.Algorithm
	if algorithm == 0 {
		algorithm = digest.Default
	}
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	report := &Report{
		Root:      root,
		Mode:      options.Mode,
		DryRun:    options.DryRun,
		Algorithm: algorithm,
		StartedAt: time.Now(),
	}

	files, err := scan(ctx, root, report)
	if err != nil {
		return nil, err
	}
	report.FilesScanned = len(files)

	candidates := sizeCandidates(files)
	if err := hashCandidates(ctx, algorithm, workers, candidates, report); err != nil {
		return nil, err
	}

	for _, group := range digestGroups(candidates) {
		plan(group, report)
	}

	if !options.DryRun && options.Mode == LinkHard {
		for _, action := range report.Planned {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := relink(action); err != nil {
				report.Failures = append(report.Failures, Failure{Path: action.Path, Reason: err.Error()})
				logger.Warn("relink failed", "path", action.Path, "canonical", action.Canonical, "error", err)
				continue
			}
			report.Actions++
			if action.reclaims {
				report.ReclaimedBytes += action.Size
			}
			logger.Info("relinked duplicate", "path", action.Path, "canonical", action.Canonical)
		}
	} else {
		for _, action := range report.Planned {
			if action.reclaims {
				report.ReclaimedBytes += action.Size
			}
			if options.DryRun {
				logger.Info("dry run: would hardlink", "path", action.Path, "canonical", action.Canonical)
			}
		}
		if options.DryRun {
			report.Actions = len(report.Planned)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	return report, nil
}

// scan walks root in lexical order and collects regular files.
func scan(ctx context.Context, root string, report *Report) ([]*scannedFile, error) {
	var files []*scannedFile
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			report.Failures = append(report.Failures, Failure{Path: path, Reason: err.Error()})
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if path != root && entry.Name() == archive.StagingDirName {
				return fs.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if !entry.Type().IsRegular() || archive.IsTransient(name) || isTempLink(name) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				report.Failures = append(report.Failures, Failure{Path: path, Reason: err.Error()})
			}
			return nil
		}
		file := &scannedFile{path: path, size: info.Size(), modTime: info.ModTime()}
		file.identity, file.known = identify(path)
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}

// sizeCandidates returns files that share their size with at least
// one other file, ordered by size then path.
func sizeCandidates(files []*scannedFile) []*scannedFile {
	bySize := make(map[int64][]*scannedFile)
	for _, file := range files {
		bySize[file.size] = append(bySize[file.size], file)
	}
	var candidates []*scannedFile
	for _, group := range bySize {
		if len(group) < 2 || allSameInode(group) {
			continue
		}
		candidates = append(candidates, group...)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].size != candidates[j].size {
			return candidates[i].size < candidates[j].size
		}
		return candidates[i].path < candidates[j].path
	})
	return candidates
}

func allSameInode(group []*scannedFile) bool {
	first := group[0]
	if !first.known {
		return false
	}
	for _, file := range group[1:] {
		if !file.known || file.identity != first.identity {
			return false
		}
	}
	return true
}

// hashCandidates fills in digests, hashing each inode once. Files
// that cannot be read become failures and are dropped from grouping
// by leaving their digest empty.
func hashCandidates(ctx context.Context, algorithm digest.Algorithm, workers int, candidates []*scannedFile, report *Report) error {
	var jobs [][]*scannedFile
	jobIndex := make(map[identity]int)
	for _, file := range candidates {
		if file.known {
			if i, ok := jobIndex[file.identity]; ok {
				jobs[i] = append(jobs[i], file)
				continue
			}
			jobIndex[file.identity] = len(jobs)
		}
		jobs = append(jobs, []*scannedFile{file})
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, job := range jobs {
		group.Go(func() error {
			sum, _, err := digest.SumFile(groupCtx, algorithm, job[0].path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				report.Failures = append(report.Failures, Failure{Path: job[0].path, Reason: err.Error()})
				return nil
			}
			report.FilesHashed++
			for _, file := range job {
				file.digest = sum
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Path < report.Failures[j].Path })
	return nil
}

// digestGroups buckets hashed candidates by (size, digest) and returns
// sets with more than one member, each sorted by path, ordered by
// canonical path.
func digestGroups(candidates []*scannedFile) [][]*scannedFile {
	type key struct {
		size   int64
		digest string
	}
	buckets := make(map[key][]*scannedFile)
	for _, file := range candidates {
		if file.digest == "" {
			continue
		}
		k := key{file.size, file.digest}
		buckets[k] = append(buckets[k], file)
	}
	var groups [][]*scannedFile
	for _, members := range buckets {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].path < members[j].path })
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].path < groups[j][0].path })
	return groups
}

// plan records the group and the relinks it needs.
func plan(members []*scannedFile, report *Report) {
	canonical := members[0]
	paths := make([]string, len(members))
	for i, member := range members {
		paths[i] = member.path
	}
	report.Groups = append(report.Groups, Group{Digest: canonical.digest, Size: canonical.size, Paths: paths})

	reclaimed := make(map[identity]bool)
	for _, member := range members[1:] {
		if canonical.known && member.known && member.identity == canonical.identity {
			report.AlreadyLinked++
			continue
		}
		action := Action{
			Path:      member.path,
			Canonical: canonical.path,
			Size:      member.size,
			modTime:   member.modTime,

			canonicalModTime: canonical.modTime,
			canonicalID:      canonical.identity,
			canonicalKnown:   canonical.known,
		}
		if !member.known || !reclaimed[member.identity] {
			action.reclaims = true
			if member.known {
				reclaimed[member.identity] = true
			}
		}
		report.Planned = append(report.Planned, action)
	}
}

// relink atomically replaces action.Path with a hard link to
// action.Canonical.
func relink(action Action) error {
	current, err := os.Lstat(action.Path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if !current.Mode().IsRegular() || current.Size() != action.Size || !current.ModTime().Equal(action.modTime) {
		return errors.New("file changed since scan")
	}
	canonical, err := os.Lstat(action.Canonical)
	if err != nil {
		return fmt.Errorf("stat canonical: %w", err)
	}
	if !canonical.Mode().IsRegular() || canonical.Size() != action.Size || !canonical.ModTime().Equal(action.canonicalModTime) {
		return errors.New("canonical changed since scan")
	}
	canonicalID, canonicalKnown := identify(action.Canonical)
	if action.canonicalKnown && (!canonicalKnown || canonicalID != action.canonicalID) {
		return errors.New("canonical replaced since scan")
	}
	victimID, victimKnown := identify(action.Path)
	if canonicalKnown && victimKnown && canonicalID.device != victimID.device {
		return errors.New("cross-device link not possible")
	}

	dir, base := filepath.Split(action.Path)
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	temporary := filepath.Join(dir, "."+base+"."+token+tempSuffix)
	if err := os.Link(action.Canonical, temporary); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if err := os.Rename(temporary, action.Path); err != nil {
		_ = os.Remove(temporary)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func isTempLink(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tempSuffix)
}
