// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitializeExposesZeroSeries(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewIngest(registry)
	m.Initialize()

	if got := testutil.ToFloat64(m.Uploads.WithLabelValues("committed")); got != 0 {
		t.Errorf("committed = %v, want 0", got)
	}
	if count := testutil.CollectAndCount(m.Rejections); count != 4 {
		t.Errorf("rejection series = %d, want 4", count)
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewIngest(registry)

	handler := m.Instrument("/upload", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/upload", nil))

	if count := testutil.CollectAndCount(m.RequestDuration); count != 1 {
		t.Fatalf("duration series = %d, want 1", count)
	}
	expected := `photobackup_http_request_duration_seconds_count{method="POST",route="/upload",status_code="401"} 1`
	recorder := httptest.NewRecorder()
	Handler(registry).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(recorder.Body)
	if !strings.Contains(string(body), expected) {
		t.Errorf("exposition missing %q:\n%s", expected, body)
	}
}

func TestSeparateRegistries(t *testing.T) {
	first := NewIngest(prometheus.NewRegistry())
	second := NewIngest(prometheus.NewRegistry())
	first.UploadBytes.Add(10)
	if got := testutil.ToFloat64(second.UploadBytes); got != 0 {
		t.Errorf("second registry saw %v bytes", got)
	}
}
