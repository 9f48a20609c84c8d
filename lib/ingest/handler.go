// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/photobackup/lib/archive"
	"github.com/bureau-foundation/photobackup/lib/clock"
	"github.com/bureau-foundation/photobackup/lib/codec"
	"github.com/bureau-foundation/photobackup/lib/metrics"
)

const (
	// APIKeyHeader carries the shared secret.
	APIKeyHeader = "X-API-Key"

	// APIKeyParam is the query parameter alternative to APIKeyHeader.
	APIKeyParam = "x_api_key"

	// FileField is the multipart field holding the upload.
	FileField = "file"

	// RequestIDHeader is set on every response.
	RequestIDHeader = "X-Request-ID"
)

// DefaultMaxUploadBytes applies when Options.MaxUploadBytes is zero.
const DefaultMaxUploadBytes int64 = 4 << 30

// Options configures a Handler.
type Options struct {
	// Archive receives uploads. Required.
	Archive *archive.Archive

	// APIKey is the shared secret. Empty disables the check.
	APIKey string

	// MaxUploadBytes caps the request body.
	MaxUploadBytes int64

	// PublicDir is served at / when it names an existing directory.
	PublicDir string

	// Limiter throttles uploads. Nil means unlimited.
	Limiter *rate.Limiter

	// Clock supplies arrival times. Nil means clock.Real().
	Clock clock.Clock

	// Registry receives the ingest collectors and backs /metrics. Nil
	// uses a private registry.
	Registry *prometheus.Registry

	// Logger receives request events. Nil discards.
	Logger *slog.Logger
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	// SavedPath is "<date>/<digest><ext>" relative to the archive root.
	SavedPath string          `json:"saved_path"`
	Digest    string          `json:"digest"`
	Outcome   archive.Outcome `json:"outcome"`
	Size      int64           `json:"size"`
}

// ListResponse is the body of GET /list.
type ListResponse struct {
	Days []ListDay `json:"days"`
}

// ListDay is one partition in a ListResponse.
type ListDay struct {
	Date  string   `json:"date"`
	Files []string `json:"files"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler serves the ingest routes.
type Handler struct {
	archive   *archive.Archive
	apiKey    []byte
	maxUpload int64
	limiter   *rate.Limiter
	clock     clock.Clock
	metrics   *metrics.Ingest
	logger    *slog.Logger
	mux       *http.ServeMux
}

// New builds a Handler.
func New(options Options) (*Handler, error) {
	if options.Archive == nil {
		return nil, errors.New("ingest: archive is required")
	}
	handler := &Handler{
		archive:   options.Archive,
		apiKey:    []byte(options.APIKey),
		maxUpload: options.MaxUploadBytes,
		limiter:   options.Limiter,
		clock:     options.Clock,
		logger:    options.Logger,
		mux:       http.NewServeMux(),
	}
	if handler.maxUpload <= 0 {
		handler.maxUpload = DefaultMaxUploadBytes
	}
	if handler.clock == nil {
		handler.clock = clock.Real()
	}
	if handler.logger == nil {
		handler.logger = slog.New(slog.DiscardHandler)
	}
	registry := options.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	handler.metrics = metrics.NewIngest(registry)
	handler.metrics.Initialize()

	handler.mux.Handle("POST /upload", handler.metrics.Instrument("/upload", http.HandlerFunc(handler.upload)))
	handler.mux.Handle("GET /list", handler.metrics.Instrument("/list", http.HandlerFunc(handler.list)))
	handler.mux.HandleFunc("GET /healthz", handler.healthz)
	handler.mux.Handle("GET /metrics", metrics.Handler(registry))

	if options.PublicDir != "" {
		if info, err := os.Stat(options.PublicDir); err == nil && info.IsDir() {
			handler.mux.Handle("GET /", http.FileServer(http.Dir(options.PublicDir)))
			handler.logger.Info("serving public directory", "path", options.PublicDir)
		}
	}
	return handler, nil
}

// Metrics returns the handler's collectors.
func (h *Handler) Metrics() *metrics.Ingest { return h.metrics }

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)
	logger := h.logger.With("request_id", requestID, "remote", r.RemoteAddr)

	if !h.authorized(r) {
		h.reject(w, requestID, http.StatusUnauthorized, metrics.ReasonUnauthorized, "Unauthorized")
		logger.Warn("upload rejected", "reason", metrics.ReasonUnauthorized)
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		h.reject(w, requestID, http.StatusTooManyRequests, metrics.ReasonRateLimited, "Too many uploads")
		logger.Warn("upload rejected", "reason", metrics.ReasonRateLimited)
		return
	}
	if r.ContentLength > h.maxUpload {
		h.reject(w, requestID, http.StatusRequestEntityTooLarge, metrics.ReasonTooLarge,
			fmt.Sprintf("Upload exceeds %d bytes", h.maxUpload))
		logger.Warn("upload rejected", "reason", metrics.ReasonTooLarge, "content_length", r.ContentLength)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	staged, filename, err := h.stage(r)
	if staged != "" {
		defer func() {
			if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("removing staging file", "path", staged, "error", err)
			}
		}()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.reject(w, requestID, http.StatusRequestEntityTooLarge, metrics.ReasonTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", h.maxUpload))
		case errors.Is(err, errBadRequest):
			h.reject(w, requestID, http.StatusBadRequest, metrics.ReasonBadRequest, err.Error())
		default:
			h.metrics.Uploads.WithLabelValues(metrics.OutcomeError).Inc()
			writeError(w, requestID, http.StatusInternalServerError, "Failed to stage upload")
		}
		logger.Warn("upload failed while staging", "error", err)
		return
	}

	result, err := h.archive.SaveAs(r.Context(), staged, filename, h.clock.Now())
	if err != nil {
		h.metrics.Uploads.WithLabelValues(metrics.OutcomeError).Inc()
		status := http.StatusInternalServerError
		detail := "Failed to store upload"
		if errors.Is(err, archive.ErrSourceUnavailable) {
			status = http.StatusBadRequest
			detail = "Upload could not be read"
		}
		logger.Error("upload save failed", "filename", filename, "error", err)
		writeError(w, requestID, status, detail)
		return
	}

	h.metrics.Uploads.WithLabelValues(result.Outcome.String()).Inc()
	h.metrics.UploadBytes.Add(float64(result.Size))
	logger.Info("upload stored",
		"filename", filename,
		"saved_path", result.RelativePath,
		"outcome", result.Outcome.String(),
		"size", result.Size,
	)
	writeJSON(w, http.StatusOK, UploadResponse{
		SavedPath: result.RelativePath,
		Digest:    result.Digest,
		Outcome:   result.Outcome,
		Size:      result.Size,
	})
}

var errBadRequest = errors.New("bad request")

// stage streams the file part of the multipart body into a fresh
// staging file. It returns the staging path (set whenever a file was
// created, even on error) and the client's filename.
func (h *Handler) stage(r *http.Request) (string, string, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return "", "", fmt.Errorf("%w: expected multipart/form-data: %v", errBadRequest, err)
	}
	part, err := findFilePart(reader)
	if err != nil {
		return "", "", err
	}
	defer part.Close()

	stagingDir := h.archive.StagingDir()
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating staging directory: %w", err)
	}
	file, err := os.CreateTemp(stagingDir, "upload-*")
	if err != nil {
		return "", "", fmt.Errorf("creating staging file: %w", err)
	}
	staged := file.Name()
	// CreateTemp makes the file 0600, and a hard-linked object inherits
	// the staged file's mode.
	if err := file.Chmod(0o644); err != nil {
		file.Close()
		return staged, "", fmt.Errorf("setting staging file mode: %w", err)
	}
	if _, err := io.Copy(file, part); err != nil {
		file.Close()
		return staged, "", err
	}
	if err := file.Close(); err != nil {
		return staged, "", fmt.Errorf("closing staging file: %w", err)
	}
	return staged, part.FileName(), nil
}

func findFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing %q field", errBadRequest, FileField)
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: malformed multipart body: %v", errBadRequest, err)
		}
		if part.FormName() == FileField {
			return part, nil
		}
		part.Close()
	}
}

// authorized reports whether r carries the configured API key.
func (h *Handler) authorized(r *http.Request) bool {
	if len(h.apiKey) == 0 {
		return true
	}
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		key = r.URL.Query().Get(APIKeyParam)
	}
	return subtle.ConstantTimeCompare([]byte(key), h.apiKey) == 1
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	days, err := h.archive.List()
	if err != nil {
		h.logger.Error("listing archive", "error", err)
		writeError(w, "", http.StatusInternalServerError, "Failed to list archive")
		return
	}
	response := ListResponse{Days: make([]ListDay, 0, len(days))}
	for _, day := range days {
		files := make([]string, 0, len(day.Objects))
		for _, object := range day.Objects {
			files = append(files, object.Name)
		}
		response.Days = append(response.Days, ListDay{Date: day.Partition.String(), Files: files})
	}

	if acceptsCBOR(r) {
		data, err := codec.Marshal(response)
		if err != nil {
			writeError(w, "", http.StatusInternalServerError, "Failed to encode listing")
			return
		}
		w.Header().Set("Content-Type", codec.ContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func acceptsCBOR(r *http.Request) bool {
	for _, accepted := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(accepted), ";")
		if strings.EqualFold(mediaType, codec.ContentType) {
			return true
		}
	}
	return false
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reject(w http.ResponseWriter, requestID string, status int, reason, detail string) {
	h.metrics.Rejections.WithLabelValues(reason).Inc()
	writeError(w, requestID, status, detail)
}

func writeError(w http.ResponseWriter, requestID string, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}
