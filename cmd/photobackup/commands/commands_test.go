// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/photobackup/cmd/photobackup/cli"
	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/clock"
	"github.com/bureau-foundation/photobackup/lib/codec"
	"github.com/bureau-foundation/photobackup/lib/config"
	"github.com/bureau-foundation/photobackup/lib/ingest"
	"github.com/bureau-foundation/photobackup/lib/testutil"
)

// clearEnvironment keeps the host's PHOTO_BACKUP_* variables and
// config file out of command tests.
func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, name := range []string{config.ConfigEnv, config.RootEnv, config.APIKeyEnv, config.HostEnv, config.PortEnv} {
		t.Setenv(name, "")
	}
}

// execute runs the command tree and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	err := Root(&stdout).Execute(t.Context(), args)
	return stdout.String(), err
}

func digestOf(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestSaveAndList(t *testing.T) {
	clearEnvironment(t)
	root := t.TempDir()
	source := testutil.WriteFile(t, filepath.Join(t.TempDir(), "IMG_0001.jpg"), []byte("sunrise"))
	want := "2024-01-15/" + digestOf("sunrise") + ".jpg"

	output, err := execute(t, "save", "--root", root, "--at", "2024-01-15", source)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(output, want+" (committed)") {
		t.Errorf("save output = %q, want %s committed", output, want)
	}

	output, err = execute(t, "save", "--root", root, "--at", "2024-01-15", "--json", source)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	var entries []saveEntry
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if len(entries) != 1 || entries[0].Outcome != "dedup_hit" || entries[0].SavedPath != want {
		t.Errorf("entries = %+v, want one dedup_hit at %s", entries, want)
	}

	output, err = execute(t, "list", "--root", root, "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var days []archive.Day
	if err := json.Unmarshal([]byte(output), &days); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if len(days) != 1 || days[0].Partition != "2024-01-15" || len(days[0].Objects) != 1 {
		t.Fatalf("days = %+v", days)
	}
	if days[0].Objects[0].Size != int64(len("sunrise")) {
		t.Errorf("size = %d", days[0].Objects[0].Size)
	}

	output, err = execute(t, "list", "--root", root, "--objects")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, fragment := range []string{"2024-01-15", "1 objects", digestOf("sunrise") + ".jpg", "total"} {
		if !strings.Contains(output, fragment) {
			t.Errorf("list output missing %q:\n%s", fragment, output)
		}
	}
}

func TestSaveName(t *testing.T) {
	clearEnvironment(t)
	root := t.TempDir()
	staged := testutil.WriteFile(t, filepath.Join(t.TempDir(), "upload-1234"), []byte("frame"))

	if _, err := execute(t, "save", "--root", root, "--at", "2024-03-01T10:00:00Z", "--name", "clip.MOV", staged); err != nil {
		t.Fatalf("save: %v", err)
	}
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).In(time.Local).Format("2006-01-02")
	stored := filepath.Join(root, day, digestOf("frame")+".MOV")
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("expected %s: %v", stored, err)
	}

	other := testutil.WriteFile(t, filepath.Join(t.TempDir(), "b"), []byte("b"))
	if _, err := execute(t, "save", "--root", root, "--name", "x.jpg", staged, other); err == nil {
		t.Error("--name with two files accepted")
	}
	if _, err := execute(t, "save", "--root", root); err == nil {
		t.Error("save without files accepted")
	}
	if _, err := execute(t, "save", "--root", root, "--at", "yesterday", staged); err == nil {
		t.Error("bad --at accepted")
	}
}

func TestParseAt(t *testing.T) {
	now := clock.Fake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tests := []struct {
		value string
		want  time.Time
	}{
		{"", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-01-15T23:30:00Z", time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)},
	}
	for _, test := range tests {
		got, err := parseAt(test.value, time.UTC, now)
		if err != nil {
			t.Errorf("parseAt(%q): %v", test.value, err)
			continue
		}
		if !got.Equal(test.want) {
			t.Errorf("parseAt(%q) = %v, want %v", test.value, got, test.want)
		}
	}
	for _, bad := range []string{"2024-02-30", "15/01/2024", "now"} {
		if _, err := parseAt(bad, time.UTC, now); err == nil {
			t.Errorf("parseAt(%q) accepted", bad)
		}
	}
}

func TestDedupe(t *testing.T) {
	clearEnvironment(t)
	root := t.TempDir()
	first := testutil.WriteFile(t, filepath.Join(root, "2024-01-01", "a.jpg"), []byte("same bytes"))
	second := testutil.WriteFile(t, filepath.Join(root, "2024-01-02", "a.jpg"), []byte("same bytes"))
	testutil.WriteFile(t, filepath.Join(root, "2024-01-02", "b.jpg"), []byte("other bytes"))

	output, err := execute(t, "dedupe", "--root", root, "--link-hard", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(output, "DRY-RUN: would hardlink "+second+" -> "+first) {
		t.Errorf("dry run output = %q", output)
	}
	if !strings.Contains(output, "Dedup complete. Actions: 1") {
		t.Errorf("dry run output = %q", output)
	}
	if sameFile(t, first, second) {
		t.Fatal("dry run linked files")
	}

	reportPath := filepath.Join(t.TempDir(), "report.cbor")
	output, err = execute(t, "dedupe", "--root", root, "--link-hard", "--report", reportPath)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	if !strings.Contains(output, "Dedup complete. Actions: 1") || !strings.Contains(output, "Reclaimed: 10 B") {
		t.Errorf("dedupe output = %q", output)
	}
	if !sameFile(t, first, second) {
		t.Error("duplicate was not linked")
	}

	var report map[string]any
	if err := codec.Unmarshal(testutil.ReadFile(t, reportPath), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report["mode"] != "hard" || report["algorithm"] != "sha256" {
		t.Errorf("report mode/algorithm = %v/%v", report["mode"], report["algorithm"])
	}

	output, err = execute(t, "dedupe", "--root", root, "--link-hard", "--algo", "blake3")
	if err != nil {
		t.Fatalf("second dedupe: %v", err)
	}
	if !strings.Contains(output, "Actions: 0") || strings.Contains(output, "DRY-RUN") {
		t.Errorf("second run output = %q, want convergence", output)
	}
}

func TestDedupeReportOnly(t *testing.T) {
	clearEnvironment(t)
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "x.png"), []byte("pixels"))
	testutil.WriteFile(t, filepath.Join(root, "y.png"), []byte("pixels"))

	output, err := execute(t, "dedupe", "--root", root, "--json")
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	var report struct {
		Mode    string `json:"mode"`
		Actions int    `json:"actions"`
		Groups  []struct {
			Paths []string `json:"paths"`
		} `json:"groups"`
	}
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if report.Mode != "none" || report.Actions != 0 || len(report.Groups) != 1 || len(report.Groups[0].Paths) != 2 {
		t.Errorf("report = %+v", report)
	}

	if _, err := execute(t, "dedupe", "--root", root, "--algo", "md5"); err == nil {
		t.Error("unknown algorithm accepted")
	}
}

func TestDedupeFailuresExitOne(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read unreadable files")
	}
	clearEnvironment(t)
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "a"), []byte("dup"))
	locked := testutil.WriteFile(t, filepath.Join(root, "b"), []byte("dup"))
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}

	output, err := execute(t, "dedupe", "--root", root, "--link-hard")
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("error = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "Failed: "+locked) {
		t.Errorf("output = %q, want failure line", output)
	}
}

func sameFile(t *testing.T, a, b string) bool {
	t.Helper()
	infoA, err := os.Stat(a)
	if err != nil {
		t.Fatal(err)
	}
	infoB, err := os.Stat(b)
	if err != nil {
		t.Fatal(err)
	}
	return os.SameFile(infoA, infoB)
}

// writeTakeout writes a gzip tar with a photo service takeout layout.
func writeTakeout(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buffer bytes.Buffer
	compressed := gzip.NewWriter(&buffer)
	writer := tar.NewWriter(compressed)
	modTime := time.Date(2019, 7, 4, 12, 0, 0, 0, time.UTC)
	for name, content := range files {
		header := &tar.Header{
			Name:     "Takeout/Google Photos/" + name,
			Mode:     0o644,
			Size:     int64(len(content)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if _, err := writer.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := compressed.Close(); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, path, buffer.Bytes())
}

func TestImport(t *testing.T) {
	clearEnvironment(t)
	archives := t.TempDir()
	writeTakeout(t, filepath.Join(archives, "takeout-1.tgz"), map[string]string{
		"Trip/beach.jpg":  "waves",
		"Trip/sunset.jpg": "orange",
	})
	writeTakeout(t, filepath.Join(archives, "takeout-2.tgz"), map[string]string{
		"Family/cake.jpg": "candles",
	})

	destination := t.TempDir()
	output, err := execute(t, "import", "-a", filepath.Join(archives, "takeout-*.tgz"), "--to", destination)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(output, "Processing archive: "+filepath.Join(archives, "takeout-1.tgz")+" (gzip)") {
		t.Errorf("output = %q", output)
	}
	if !strings.Contains(output, "Import complete. Written: 3") {
		t.Errorf("output = %q", output)
	}
	if got := string(testutil.ReadFile(t, filepath.Join(destination, "Trip", "beach.jpg"))); got != "waves" {
		t.Errorf("beach.jpg = %q", got)
	}

	root := t.TempDir()
	output, err = execute(t, "import", "-a", filepath.Join(archives, "takeout-1.tgz"), "--content-addressed", "--root", root)
	if err != nil {
		t.Fatalf("content-addressed import: %v", err)
	}
	if !strings.Contains(output, "Already stored: 0") {
		t.Errorf("output = %q", output)
	}
	partition := time.Date(2019, 7, 4, 12, 0, 0, 0, time.UTC).In(time.Local).Format("2006-01-02")
	stored := filepath.Join(root, partition, digestOf("waves")+".jpg")
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("expected %s: %v", stored, err)
	}
}

func TestImportErrors(t *testing.T) {
	clearEnvironment(t)
	if _, err := execute(t, "import", "--to", t.TempDir()); err == nil {
		t.Error("import without --archive accepted")
	}
	if _, err := execute(t, "import", "-a", "x.tgz"); err == nil {
		t.Error("import without --to accepted")
	}
	_, err := execute(t, "import", "-a", filepath.Join(t.TempDir(), "none-*.tgz"), "--to", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "no archives found") {
		t.Errorf("error = %v, want no archives found", err)
	}
}

func TestPush(t *testing.T) {
	clearEnvironment(t)
	store, err := archive.New(t.TempDir(), archive.Options{SkipSync: true})
	if err != nil {
		t.Fatal(err)
	}
	handler, err := ingest.New(ingest.Options{Archive: store, APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "a.jpg"), []byte("alpha"))
	testutil.WriteFile(t, filepath.Join(dir, "nested", "b.jpg"), []byte("beta"))

	output, err := execute(t, "push", "--dir", dir, "--url", server.URL+"/upload", "--api-key", "secret")
	if err != nil {
		t.Fatalf("push: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Found 2 files") || strings.Count(output, "Uploaded: ") != 2 {
		t.Errorf("output = %q", output)
	}

	t.Setenv(config.APIKeyEnv, "wrong")
	output, err = execute(t, "push", "--dir", dir, "--url", server.URL+"/upload")
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("error = %v, want exit code 1", err)
	}
	if strings.Count(output, "Failed: ") != 2 {
		t.Errorf("output = %q, want two failures", output)
	}
}

func TestRootHelpAndVersion(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(output, "photobackup ") {
		t.Errorf("version = %q, %v", output, err)
	}

	_, err = execute(t, "dedup")
	if err == nil || !strings.Contains(err.Error(), `did you mean "dedupe"`) {
		t.Errorf("error = %v, want suggestion", err)
	}
}
