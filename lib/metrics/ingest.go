// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricUploadsTotal    = "photobackup_uploads_total"
	metricUploadBytes     = "photobackup_upload_bytes_total"
	metricRejectionsTotal = "photobackup_upload_rejections_total"
	metricRequestDuration = "photobackup_http_request_duration_seconds"
)

// Rejection reasons.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonTooLarge     = "too_large"
	ReasonRateLimited  = "rate_limited"
	ReasonBadRequest   = "bad_request"
)

// OutcomeError labels uploads that failed after being accepted.
const OutcomeError = "error"

// DurationBuckets suit uploads: small JPEGs finish in milliseconds,
// multi-gigabyte videos take minutes.
var DurationBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300,
}

// Ingest holds the collectors for the ingest server.
type Ingest struct {
	// Uploads counts completed uploads by outcome (committed,
	// dedup_hit, lost_race, error).
	Uploads *prometheus.CounterVec

	// UploadBytes counts payload bytes received for successful uploads.
	UploadBytes prometheus.Counter

	// Rejections counts uploads refused before reaching the archive.
	Rejections *prometheus.CounterVec

	// RequestDuration tracks request latency by route, method and
	// status code.
	RequestDuration *prometheus.HistogramVec
}

// NewIngest creates the ingest collectors and registers them with
// registerer.
func NewIngest(registerer prometheus.Registerer) *Ingest {
	factory := promauto.With(registerer)
	return &Ingest{
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricUploadsTotal,
			Help: "Uploads processed by outcome",
		}, []string{"outcome"}),

		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: metricUploadBytes,
			Help: "Payload bytes received by successful uploads",
		}),

		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricRejectionsTotal,
			Help: "Uploads rejected before storage by reason",
		}, []string{"reason"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricRequestDuration,
			Help:    "HTTP request duration in seconds",
			Buckets: DurationBuckets,
		}, []string{"route", "method", "status_code"}),
	}
}

// Initialize pre-creates every label combination so the series
// appear in /metrics before the first upload.
func (m *Ingest) Initialize() {
	for _, outcome := range []string{"committed", "dedup_hit", "lost_race", OutcomeError} {
		m.Uploads.WithLabelValues(outcome).Add(0)
	}
	for _, reason := range []string{ReasonUnauthorized, ReasonTooLarge, ReasonRateLimited, ReasonBadRequest} {
		m.Rejections.WithLabelValues(reason).Add(0)
	}
}

// Instrument wraps next so that every request records its duration
// under route.
func (m *Ingest) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		capture := &statusCapture{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(capture, r)
		m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(capture.code)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusCapture struct {
	http.ResponseWriter
	code int
}

func (s *statusCapture) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}
