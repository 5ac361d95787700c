package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"proppulse-risk/internal/source"
	"proppulse-risk/internal/storage"
)

type fakeSource struct {
	name string
	obs  []source.RawObservation

	mu       sync.Mutex
	failures int
	calls    int
	failWith error
}

func (f *fakeSource) Name() string   { return f.name }
func (f *fakeSource) Region() string { return "Dubai" }

func (f *fakeSource) Fetch(ctx context.Context, from, to time.Time) ([]source.RawObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, f.failWith
	}
	return f.obs, nil
}

type memMetricStore struct {
	mu      sync.Mutex
	metrics map[string]storage.MarketMetric
	failOn  string
}

func newMemMetricStore() *memMetricStore {
	return &memMetricStore{metrics: make(map[string]storage.MarketMetric)}
}

func (m *memMetricStore) UpsertMetric(ctx context.Context, metric storage.MarketMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && metric.Source == m.failOn {
		return errors.New("database unavailable")
	}
	key := fmt.Sprintf("%s|%s|%s|%s", metric.Source, metric.Region, metric.MetricType, metric.ObservedAt.Format(time.RFC3339))
	m.metrics[key] = metric
	return nil
}

func (m *memMetricStore) ListMetricsSince(ctx context.Context, regions []string, since time.Time) ([]storage.MarketMetric, error) {
	return nil, nil
}

func (m *memMetricStore) LatestMetricValue(ctx context.Context, metricType string) (float64, time.Time, error) {
	return 0, time.Time{}, errors.New("not implemented")
}

func (m *memMetricStore) CountMetrics(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.metrics)), nil
}

func observation(metricType string, day int, value float64) source.RawObservation {
	return source.RawObservation{
		MetricType: metricType,
		Region:     "Dubai",
		ObservedAt: time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC),
		Value:      value,
	}
}

func testOptions() Options {
	return Options{
		Window:        7 * 24 * time.Hour,
		SourceTimeout: time.Second,
		MaxRetries:    2,
		RetryBackoff:  time.Millisecond,
	}
}

func TestRunCycleStoresAllSources(t *testing.T) {
	store := newMemMetricStore()
	a := &fakeSource{name: "str_global", obs: []source.RawObservation{
		observation("str_adr", 1, 500),
		observation("str_adr", 2, 510),
	}}
	b := &fakeSource{name: "rental_index", obs: []source.RawObservation{
		observation("rent_index", 1, 130),
	}}

	ing := New([]source.Source{a, b}, store, testOptions(), zerolog.Nop())
	report, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.FailedSources() != 0 {
		t.Fatalf("failed sources = %d, want 0", report.FailedSources())
	}

	count, _ := store.CountMetrics(context.Background())
	if count != 3 {
		t.Fatalf("stored %d metrics, want 3", count)
	}
}

func TestRunCycleIsolatesFailingSource(t *testing.T) {
	store := newMemMetricStore()
	healthy := &fakeSource{name: "str_global", obs: []source.RawObservation{observation("str_adr", 1, 500)}}
	broken := &fakeSource{
		name:     "rental_index",
		failures: 100,
		failWith: &source.Error{Source: "rental_index", Transient: false, Err: errors.New("401 unauthorized")},
	}

	ing := New([]source.Source{healthy, broken}, store, testOptions(), zerolog.Nop())
	report, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.FailedSources() != 1 {
		t.Fatalf("failed sources = %d, want 1", report.FailedSources())
	}

	count, _ := store.CountMetrics(context.Background())
	if count != 1 {
		t.Fatalf("stored %d metrics, want 1 from the healthy source", count)
	}
}

func TestRunCycleRetriesTransientOnly(t *testing.T) {
	transient := &fakeSource{
		name:     "str_global",
		obs:      []source.RawObservation{observation("str_adr", 1, 500)},
		failures: 2,
		failWith: &source.Error{Source: "str_global", Transient: true, Err: errors.New("502")},
	}
	permanent := &fakeSource{
		name:     "rental_index",
		failures: 2,
		failWith: &source.Error{Source: "rental_index", Transient: false, Err: errors.New("schema mismatch")},
	}

	store := newMemMetricStore()
	ing := New([]source.Source{transient, permanent}, store, testOptions(), zerolog.Nop())
	report, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if transient.calls != 3 {
		t.Fatalf("transient source called %d times, want 3 (two retries then success)", transient.calls)
	}
	if permanent.calls != 1 {
		t.Fatalf("permanent source called %d times, want 1 (no retry)", permanent.calls)
	}

	for _, res := range report.Results {
		if res.Source == "str_global" {
			if res.Err != nil {
				t.Fatalf("transient source should have recovered: %v", res.Err)
			}
			if res.Attempts != 3 {
				t.Fatalf("attempts = %d, want 3", res.Attempts)
			}
		}
	}
}

func TestRunCycleIdempotent(t *testing.T) {
	store := newMemMetricStore()
	src := &fakeSource{name: "str_global", obs: []source.RawObservation{
		observation("str_adr", 1, 500),
		observation("str_adr", 2, 510),
	}}

	ing := New([]source.Source{src}, store, testOptions(), zerolog.Nop())
	for range 3 {
		if _, err := ing.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
	}

	count, _ := store.CountMetrics(context.Background())
	if count != 2 {
		t.Fatalf("stored %d metrics after three cycles, want 2", count)
	}
}

func TestRunCycleReportsStoreFailure(t *testing.T) {
	store := newMemMetricStore()
	store.failOn = "str_global"
	src := &fakeSource{name: "str_global", obs: []source.RawObservation{observation("str_adr", 1, 500)}}

	ing := New([]source.Source{src}, store, testOptions(), zerolog.Nop())
	report, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.FailedSources() != 1 {
		t.Fatalf("failed sources = %d, want 1", report.FailedSources())
	}
}
