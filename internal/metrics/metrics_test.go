package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveHTTP(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveHTTP("GET /api/db/quizzes/{id}", 200, 250*time.Millisecond)

	families := gather(t, rec, "momentum_http_requests_total", "momentum_http_request_duration_seconds")

	counter := findMetric(t, families["momentum_http_requests_total"], map[string]string{
		"route":       "GET /api/db/quizzes/{id}",
		"status_code": "200",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for http requests")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["momentum_http_request_duration_seconds"], map[string]string{
		"route": "GET /api/db/quizzes/{id}",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for http latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveHTTPUnknownStatus(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveHTTP("  ", 0, time.Millisecond)

	families := gather(t, rec, "momentum_http_requests_total")
	findMetric(t, families["momentum_http_requests_total"], map[string]string{
		"route":       "unknown",
		"status_code": "unknown",
	})
}

func TestRecorderObserveCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCache(CacheOperationGet, CacheResultHit, 10*time.Millisecond)
	rec.ObserveCache(CacheOperationUpsert, CacheResultStored, 5*time.Millisecond)

	families := gather(t, rec, "momentum_cache_operations_total", "momentum_cache_operation_duration_seconds")

	getMetric := findMetric(t, families["momentum_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationGet),
		"result":    string(CacheResultHit),
	})
	if got := getMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected get counter 1, got %v", got)
	}

	latencyMetric := findMetric(t, families["momentum_cache_operation_duration_seconds"], map[string]string{
		"operation": string(CacheOperationUpsert),
		"result":    string(CacheResultStored),
	})
	hist := latencyMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for cache upsert latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.005
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveUpstreamAndWaitlist(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveUpstream("questions", UpstreamResultStatus, 40*time.Millisecond)
	rec.ObserveWaitlist(WaitlistAccepted)
	rec.ObserveWaitlist(WaitlistAccepted)

	families := gather(t, rec, "momentum_upstream_requests_total", "momentum_waitlist_signups_total")

	upstream := findMetric(t, families["momentum_upstream_requests_total"], map[string]string{
		"endpoint": "questions",
		"result":   "bad_status",
	})
	if got := upstream.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected upstream counter 1, got %v", got)
	}
	signups := findMetric(t, families["momentum_waitlist_signups_total"], map[string]string{
		"result": WaitlistAccepted,
	})
	if got := signups.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected signup counter 2, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveHTTP("x", 200, time.Millisecond)
	rec.ObserveCache(CacheOperationGet, CacheResultMiss, time.Millisecond)
	rec.ObserveUpstream("questions", UpstreamResultOK, time.Millisecond)
	rec.ObserveWaitlist(WaitlistError)

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder, got %d", rr.Code)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
