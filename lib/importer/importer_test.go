// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/testutil"
)

var taken = time.Date(2019, 7, 4, 12, 0, 0, 0, time.UTC)

type member struct {
	name     string
	typeflag byte
	body     string
	linkname string
}

// takeout is a representative export: two leading components, an
// album directory, and a few hostile entries.
var takeout = []member{
	{name: "Takeout/", typeflag: tar.TypeDir},
	{name: "Takeout/Google Photos/", typeflag: tar.TypeDir},
	{name: "Takeout/Google Photos/Trip/", typeflag: tar.TypeDir},
	{name: "Takeout/Google Photos/Trip/IMG_1.jpg", typeflag: tar.TypeReg, body: "first photo"},
	{name: "Takeout/Google Photos/Trip/IMG_2.jpg", typeflag: tar.TypeReg, body: "second photo"},
	{name: "Takeout/Google Photos/Trip/copy.jpg", typeflag: tar.TypeReg, body: "first photo"},
	{name: "Takeout/Google Photos/../../escape.jpg", typeflag: tar.TypeReg, body: "evil"},
	{name: "Takeout/Google Photos/Trip/link.jpg", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
	{name: "Takeout/Google Photos/Trip/hard.jpg", typeflag: tar.TypeLink, linkname: "Takeout/Google Photos/Trip/IMG_1.jpg"},
}

func tarBytes(t *testing.T, members []member) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, m := range members {
		header := &tar.Header{
			Name:     m.name,
			Typeflag: m.typeflag,
			Linkname: m.linkname,
			Mode:     0o644,
			ModTime:  taken,
			Size:     int64(len(m.body)),
		}
		if m.typeflag != tar.TypeReg {
			header.Size = 0
		}
		if m.typeflag == tar.TypeDir {
			header.Mode = 0o755
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if m.typeflag == tar.TypeReg {
			writer.Write([]byte(m.body))
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func compress(t *testing.T, compression Compression, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	var writer io.WriteCloser
	switch compression {
	case CompressionNone:
		return data
	case CompressionGzip:
		writer = gzip.NewWriter(&buffer)
	case CompressionZstd:
		encoder, err := zstd.NewWriter(&buffer)
		if err != nil {
			t.Fatal(err)
		}
		writer = encoder
	case CompressionLZ4:
		writer = lz4.NewWriter(&buffer)
	}
	if _, err := writer.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func writeArchive(t *testing.T, dir, name string, compression Compression, members []member) string {
	t.Helper()
	return testutil.WriteFile(t, filepath.Join(dir, name), compress(t, compression, tarBytes(t, members)))
}

func TestExtractAllCompressions(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			sources := t.TempDir()
			// The extension lies: detection uses magic bytes.
			archivePath := writeArchive(t, sources, "takeout-001.tgz", compression, takeout)
			destination := filepath.Join(t.TempDir(), "restored")

			report, err := Run(context.Background(), Options{
				Patterns:        []string{archivePath},
				Destination:     destination,
				StripComponents: DefaultStripComponents,
			})
			if err != nil {
				t.Fatal(err)
			}
			result := report.Archives[0]
			if result.Compression != compression.String() {
				t.Errorf("compression = %s", result.Compression)
			}
			if result.Written != 3 {
				t.Errorf("Written = %d, want 3", result.Written)
			}
			if result.Rejected != 3 {
				t.Errorf("Rejected = %d, want 3", result.Rejected)
			}
			if got := string(testutil.ReadFile(t, filepath.Join(destination, "Trip", "IMG_2.jpg"))); got != "second photo" {
				t.Errorf("IMG_2.jpg = %q", got)
			}
			if names := testutil.Names(t, filepath.Join(destination, "Trip")); strings.Join(names, ",") != "IMG_1.jpg,IMG_2.jpg,copy.jpg" {
				t.Errorf("Trip entries = %v", names)
			}
			if _, err := os.Lstat(filepath.Join(filepath.Dir(destination), "escape.jpg")); err == nil {
				t.Error("member escaped the destination")
			}
			info, err := os.Stat(filepath.Join(destination, "Trip", "IMG_1.jpg"))
			if err != nil {
				t.Fatal(err)
			}
			if !info.ModTime().Equal(taken) {
				t.Errorf("mtime = %v, want %v", info.ModTime(), taken)
			}
		})
	}
}

func TestExtractSkipExisting(t *testing.T) {
	archivePath := writeArchive(t, t.TempDir(), "a.tar.gz", CompressionGzip, takeout)
	destination := t.TempDir()
	testutil.WriteFile(t, filepath.Join(destination, "Trip", "IMG_1.jpg"), []byte("already here"))

	report, err := Run(context.Background(), Options{
		Patterns:        []string{archivePath},
		Destination:     destination,
		StripComponents: 2,
		SkipExisting:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Archives[0].Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Archives[0].Skipped)
	}
	if got := string(testutil.ReadFile(t, filepath.Join(destination, "Trip", "IMG_1.jpg"))); got != "already here" {
		t.Errorf("existing file overwritten: %q", got)
	}

	// Without SkipExisting the archive wins.
	if _, err := Run(context.Background(), Options{
		Patterns:        []string{archivePath},
		Destination:     destination,
		StripComponents: 2,
	}); err != nil {
		t.Fatal(err)
	}
	if got := string(testutil.ReadFile(t, filepath.Join(destination, "Trip", "IMG_1.jpg"))); got != "first photo" {
		t.Errorf("IMG_1.jpg = %q", got)
	}
}

func TestExtractDryRunWritesNothing(t *testing.T) {
	archivePath := writeArchive(t, t.TempDir(), "a.tar", CompressionNone, takeout)
	destination := filepath.Join(t.TempDir(), "never")

	report, err := Run(context.Background(), Options{
		Patterns:        []string{archivePath},
		Destination:     destination,
		StripComponents: 2,
		DryRun:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Written() != 3 {
		t.Errorf("Written = %d, want 3", report.Written())
	}
	if _, err := os.Stat(destination); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run created destination: %v", err)
	}
}

func TestExtractThroughSymlinkStaysContained(t *testing.T) {
	archivePath := writeArchive(t, t.TempDir(), "a.tar", CompressionNone, []member{
		{name: "pivot/evil.jpg", typeflag: tar.TypeReg, body: "payload"},
	})
	destination := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(destination, "pivot")); err != nil {
		t.Fatal(err)
	}

	if _, err := Run(context.Background(), Options{
		Patterns:    []string{archivePath},
		Destination: destination,
	}); err != nil {
		t.Fatal(err)
	}
	if names := testutil.Names(t, outside); len(names) != 0 {
		t.Errorf("write escaped through symlink: %v", names)
	}
}

func TestArchivePolicyStoresContentAddressed(t *testing.T) {
	archivePath := writeArchive(t, t.TempDir(), "takeout.tar.zst", CompressionZstd, takeout)
	store, err := archive.New(filepath.Join(t.TempDir(), "backups"), archive.Options{Location: time.UTC, SkipSync: true})
	if err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), Options{
		Patterns:        []string{archivePath},
		Policy:          PolicyArchive,
		Archive:         store,
		StripComponents: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	result := report.Archives[0]
	if result.Written != 2 || result.Deduplicated != 1 {
		t.Errorf("Written = %d, Deduplicated = %d; want 2, 1", result.Written, result.Deduplicated)
	}
	days, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 || days[0].Partition != "2019-07-04" || len(days[0].Objects) != 2 {
		t.Fatalf("archive listing = %+v", days)
	}
	objects, err := filepath.Glob(filepath.Join(store.Root(), "2019-07-04", "*"))
	if err != nil {
		t.Fatal(err)
	}
	for _, object := range objects {
		info, err := os.Stat(object)
		if err != nil {
			t.Fatal(err)
		}
		if mode := info.Mode().Perm(); mode != 0o644 {
			t.Errorf("%s mode = %v, want %v", filepath.Base(object), mode, os.FileMode(0o644))
		}
	}
	if names := testutil.Names(t, store.StagingDir()); len(names) != 0 {
		t.Errorf("staging files left behind: %v", names)
	}
}

func TestRunPatterns(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "takeout-001.tgz", CompressionGzip, []member{{name: "a/b/one.jpg", typeflag: tar.TypeReg, body: "1"}})
	writeArchive(t, dir, "takeout-002.tgz", CompressionGzip, []member{{name: "a/b/two.jpg", typeflag: tar.TypeReg, body: "2"}})
	destination := t.TempDir()

	report, err := Run(context.Background(), Options{
		Patterns:        []string{filepath.Join(dir, "takeout-*.tgz"), filepath.Join(dir, "takeout-001.tgz")},
		Destination:     destination,
		StripComponents: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Archives) != 2 {
		t.Fatalf("archives = %+v, want two (duplicates collapsed)", report.Archives)
	}
	if names := testutil.Names(t, destination); strings.Join(names, ",") != "one.jpg,two.jpg" {
		t.Errorf("destination = %v", names)
	}

	if _, err := Run(context.Background(), Options{
		Patterns:    []string{filepath.Join(dir, "*.nothing")},
		Destination: destination,
	}); !errors.Is(err, ErrNoArchives) {
		t.Errorf("unmatched pattern error = %v, want ErrNoArchives", err)
	}
}

func TestRunCorruptArchive(t *testing.T) {
	corrupt := testutil.WriteFile(t, filepath.Join(t.TempDir(), "bad.tgz"), append([]byte{0x1f, 0x8b}, []byte("not really gzip")...))
	if _, err := Run(context.Background(), Options{
		Patterns:    []string{corrupt},
		Destination: t.TempDir(),
	}); err == nil {
		t.Error("corrupt archive imported without error")
	}
}

func TestRunOptionErrors(t *testing.T) {
	archivePath := writeArchive(t, t.TempDir(), "a.tar", CompressionNone, takeout)
	tests := []Options{
		{Patterns: []string{archivePath}},
		{Patterns: []string{archivePath}, Policy: PolicyArchive},
		{Patterns: []string{archivePath}, Destination: t.TempDir(), StripComponents: -1},
	}
	for _, options := range tests {
		if _, err := Run(context.Background(), options); err == nil {
			t.Errorf("Run(%+v) succeeded", options)
		}
	}
}

func TestStripComponents(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
		err  bool
	}{
		{"Takeout/Google Photos/a.jpg", 2, "a.jpg", false},
		{"./Takeout//Google Photos/x/a.jpg", 2, "x/a.jpg", false},
		{"Takeout/Google Photos/", 2, "", false},
		{"a.jpg", 0, "a.jpg", false},
		{"Takeout/../a.jpg", 0, "", true},
		{"/etc/passwd", 0, "", true},
		{`Takeout\..\a.jpg`, 0, "", true},
	}
	for _, test := range tests {
		got, err := stripComponents(test.name, test.n)
		if (err != nil) != test.err || got != test.want {
			t.Errorf("stripComponents(%q, %d) = %q, %v", test.name, test.n, got, err)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := map[Compression][]byte{
		CompressionGzip: {0x1f, 0x8b, 0x08, 0x00},
		CompressionZstd: {0x28, 0xb5, 0x2f, 0xfd},
		CompressionLZ4:  {0x04, 0x22, 0x4d, 0x18},
		CompressionNone: []byte("photo"),
	}
	for want, header := range tests {
		if got := Detect(header); got != want {
			t.Errorf("Detect(%x) = %v, want %v", header, got, want)
		}
	}
	if got := Detect(nil); got != CompressionNone {
		t.Errorf("Detect(nil) = %v", got)
	}
}
