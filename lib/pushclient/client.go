// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pushclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/photobackup/lib/clock"
	"github.com/bureau-foundation/photobackup/lib/ingest"
	"github.com/bureau-foundation/photobackup/lib/version"
)

// Client uploads files to one ingest endpoint.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewClient returns a client for the upload URL (for example
// http://host:8080/upload). A nil httpClient uses one with a 60
// second per-request timeout.
func NewClient(url, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{url: url, apiKey: apiKey, http: httpClient}
}

// StatusError is a non-200 response from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Upload sends the file at path and returns the server's response.
func (c *Client) Upload(ctx context.Context, path string) (*ingest.UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	body, writer := io.Pipe()
	defer body.Close()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile(ingest.FileField, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", form.FormDataContentType())
	request.Header.Set("User-Agent", version.UserAgent())
	if c.apiKey != "" {
		request.Header.Set(ingest.APIKeyHeader, c.apiKey)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, &StatusError{Code: response.StatusCode, Body: strings.TrimSpace(string(detail))}
	}
	var result ingest.UploadResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

// FindRecent returns the regular files under root modified at or
// after since, sorted by path. Unreadable entries are skipped.
func FindRecent(root string, since time.Time) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(since) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// Options configures Push.
type Options struct {
	// Dir is scanned for recent files. Required.
	Dir string

	// Window is how far back to look. Required.
	Window time.Duration

	// Client performs the uploads. Required.
	Client *Client

	// Concurrency bounds parallel uploads. Zero means 1.
	Concurrency int

	// Clock supplies the current time. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives one event per file. Nil discards.
	Logger *slog.Logger
}

// Result is the outcome of one file.
type Result struct {
	Path      string `json:"path"`
	SavedPath string `json:"saved_path,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes a push.
type Report struct {
	Found    int      `json:"found"`
	Uploaded []Result `json:"uploaded"`
	Failed   []Result `json:"failed"`
}

// Push uploads every file under options.Dir modified within
// options.Window. Individual failures land in Report.Failed; only a
// scan failure or context cancellation returns an error.
func Push(ctx context.Context, options Options) (*Report, error) {
	if options.Dir == "" || options.Client == nil {
		return nil, errors.New("pushclient: Dir and Client are required")
	}
	if options.Window <= 0 {
		return nil, errors.New("pushclient: Window must be positive")
	}
	now := clock.Real().Now
	if options.Clock != nil {
		now = options.Clock.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	files, err := FindRecent(options.Dir, now().Add(-options.Window))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", options.Dir, err)
	}
	report := &Report{Found: len(files)}
	results := make([]Result, len(files))
	succeeded := make([]bool, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, path := range files {
		group.Go(func() error {
			response, err := options.Client.Upload(groupCtx, path)
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("upload failed", "path", path, "error", err)
				results[i] = Result{Path: path, Error: err.Error()}
				return nil
			}
			logger.Info("uploaded", "path", path, "saved_path", response.SavedPath, "outcome", response.Outcome.String())
			succeeded[i] = true
			results[i] = Result{Path: path, SavedPath: response.SavedPath, Outcome: response.Outcome.String()}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	for i, result := range results {
		if succeeded[i] {
			report.Uploaded = append(report.Uploaded, result)
		} else {
			report.Failed = append(report.Failed, result)
		}
	}
	return report, nil
}
