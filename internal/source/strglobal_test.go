package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/cashflow"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func window(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	from, _ := time.Parse("2006-01-02", "2026-08-01")
	to, _ := time.Parse("2006-01-02", "2026-08-02")
	return from, to
}

func TestSTRGlobalFetchSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("startDate") != "2026-08-01" {
			t.Fatalf("unexpected startDate %q", r.URL.Query().Get("startDate"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"date": "2026-08-01", "metric": "ADR", "value": 512.5, "region": "Dubai"},
				{"date": "2026-08-01", "metric": "RevPAR", "value": 410.0, "region": "Dubai"},
			},
		})
	}))
	defer srv.Close()

	s := NewSTRGlobal(STRGlobalOptions{
		BaseURL: srv.URL,
		APIKey:  "key",
		Region:  "Dubai",
		Timeout: time.Second,
	}, noopLogger())

	from, to := window(t)
	obs, err := s.Fetch(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}
	if obs[0].MetricType != cashflow.MetricADR || obs[0].Value != 512.5 {
		t.Fatalf("first observation = %+v", obs[0])
	}
	if obs[1].MetricType != cashflow.MetricRevPAR {
		t.Fatalf("second observation = %+v", obs[1])
	}
}

func TestSTRGlobalServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSTRGlobal(STRGlobalOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	from, to := window(t)
	_, err := s.Fetch(context.Background(), from, to)
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !IsTransient(err) {
		t.Fatalf("502 should be transient, got %v", err)
	}
}

func TestSTRGlobalMalformedPayloadIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": "not-a-list"}`))
	}))
	defer srv.Close()

	s := NewSTRGlobal(STRGlobalOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	from, to := window(t)
	_, err := s.Fetch(context.Background(), from, to)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if IsTransient(err) {
		t.Fatalf("schema mismatch must not be transient: %v", err)
	}
}

func TestSTRGlobalMissingConfig(t *testing.T) {
	s := NewSTRGlobal(STRGlobalOptions{}, noopLogger())
	from, to := window(t)
	if _, err := s.Fetch(context.Background(), from, to); err == nil {
		t.Fatal("expected error without base url")
	}
}
