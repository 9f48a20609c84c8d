// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pushclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/clock"
	"github.com/bureau-foundation/photobackup/lib/ingest"
	"github.com/bureau-foundation/photobackup/lib/testutil"
)

func startServer(t *testing.T, apiKey string) (*archive.Archive, *httptest.Server) {
	t.Helper()
	store, err := archive.New(filepath.Join(t.TempDir(), "backups"), archive.Options{Location: time.UTC, SkipSync: true})
	if err != nil {
		t.Fatal(err)
	}
	handler, err := ingest.New(ingest.Options{
		Archive: store,
		APIKey:  apiKey,
		Clock:   clock.Fake(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return store, server
}

func TestUpload(t *testing.T) {
	_, server := startServer(t, "key")
	path := testutil.WriteFile(t, filepath.Join(t.TempDir(), "IMG_9.HEIC"), []byte("heic data"))

	client := NewClient(server.URL+"/upload", "key", nil)
	response, err := client.Upload(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if response.Outcome != archive.OutcomeCommitted {
		t.Errorf("outcome = %v", response.Outcome)
	}
	if filepath.Ext(response.SavedPath) != ".HEIC" {
		t.Errorf("saved_path = %s", response.SavedPath)
	}
}

func TestUploadUnauthorized(t *testing.T) {
	_, server := startServer(t, "key")
	path := testutil.WriteFile(t, filepath.Join(t.TempDir(), "a.jpg"), []byte("a"))

	_, err := NewClient(server.URL+"/upload", "wrong", nil).Upload(context.Background(), path)
	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 StatusError", err)
	}
}

func TestFindRecent(t *testing.T) {
	dir := t.TempDir()
	recent := testutil.WriteFile(t, filepath.Join(dir, "DCIM", "new.jpg"), []byte("n"))
	old := testutil.WriteFile(t, filepath.Join(dir, "DCIM", "old.jpg"), []byte("o"))
	testutil.Backdate(t, old, 48*time.Hour)

	found, err := FindRecent(dir, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0] != recent {
		t.Errorf("FindRecent = %v, want [%s]", found, recent)
	}

	if _, err := FindRecent(filepath.Join(dir, "missing"), time.Time{}); err == nil {
		t.Error("missing directory accepted")
	}
}

func TestPush(t *testing.T) {
	store, server := startServer(t, "")
	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.jpg", "c.mp4", "dup.jpg"} {
		content := name
		if name == "dup.jpg" {
			content = "a.jpg"
		}
		testutil.WriteFile(t, filepath.Join(dir, name), []byte(content))
	}
	stale := testutil.WriteFile(t, filepath.Join(dir, "stale.jpg"), []byte("stale"))
	testutil.Backdate(t, stale, 72*time.Hour)

	report, err := Push(context.Background(), Options{
		Dir:         dir,
		Window:      24 * time.Hour,
		Client:      NewClient(server.URL+"/upload", "", nil),
		Concurrency: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Found != 4 || len(report.Uploaded) != 4 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}
	days, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 || len(days[0].Objects) != 3 {
		t.Errorf("archive = %+v, want three distinct objects", days)
	}
}

func TestPushReportsFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))
	t.Cleanup(failing.Close)
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "a.jpg"), []byte("a"))

	report, err := Push(context.Background(), Options{
		Dir:    dir,
		Window: time.Hour,
		Client: NewClient(failing.URL, "", nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Error == "" {
		t.Errorf("failed = %+v", report.Failed)
	}
}

func TestPushUsesClockWindow(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "a.jpg"), []byte("a"))
	_, server := startServer(t, "")

	// A clock a week ahead puts today's file outside a one-day window.
	report, err := Push(context.Background(), Options{
		Dir:    dir,
		Window: 24 * time.Hour,
		Client: NewClient(server.URL+"/upload", "", nil),
		Clock:  clock.Fake(time.Now().Add(7 * 24 * time.Hour)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Found != 0 {
		t.Errorf("Found = %d, want 0", report.Found)
	}
}

func TestPushOptionErrors(t *testing.T) {
	if _, err := Push(context.Background(), Options{}); err == nil {
		t.Error("empty options accepted")
	}
	if _, err := Push(context.Background(), Options{Dir: t.TempDir(), Client: NewClient("http://x", "", nil)}); err == nil {
		t.Error("zero window accepted")
	}
}
