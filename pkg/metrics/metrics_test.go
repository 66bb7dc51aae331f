package metrics

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("routing_optimize_total", "Optimizations")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("expected 5, got %d", c.Value())
	}
	if r.Counter("routing_optimize_total", "") != c {
		t.Fatal("expected same counter instance")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("routing_learning_mae_minutes", "MAE")
	g.Set(1.25)
	g.Inc()
	g.Dec()
	g.Add(0.5)
	if g.Value() != 1.75 {
		t.Fatalf("expected 1.75, got %v", g.Value())
	}
}

func TestGaugeConcurrentAdd(t *testing.T) {
	g := &Gauge{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Add(2)
		}()
	}
	wg.Wait()
	if g.Value() != 100 {
		t.Fatalf("expected 100, got %v", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := New().Histogram("d", "", []float64{1, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.8, 2} {
		h.Observe(v)
	}
	buckets, counts, sum, count := h.snapshot()
	if buckets[0] != 0.1 || buckets[2] != 1 {
		t.Fatalf("buckets not sorted: %v", buckets)
	}
	if counts[0] != 2 || counts[1] != 1 || counts[2] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if count != 5 || math.Abs(sum-3.25) > 1e-9 {
		t.Fatalf("count %d sum %v", count, sum)
	}
}

func TestHistogramSince(t *testing.T) {
	h := New().Histogram("latency", "", nil)
	h.Since(time.Now().Add(-100 * time.Millisecond))
	if _, _, sum, count := h.snapshot(); count != 1 || sum < 0.1 {
		t.Fatalf("count %d sum %v", count, sum)
	}
}

func TestWithLabels(t *testing.T) {
	tests := []struct {
		name string
		kvs  []string
		want string
	}{
		{"routing_feedback_total", []string{"scenario", "personal"}, `routing_feedback_total{scenario="personal"}`},
		{"x", []string{"a", "1", "b", "2"}, `x{a="1",b="2"}`},
		{"x", nil, "x"},
		{"x", []string{"odd"}, "x"},
	}
	for _, tt := range tests {
		if got := WithLabels(tt.name, tt.kvs...); got != tt.want {
			t.Errorf("WithLabels(%q, %v) = %q, want %q", tt.name, tt.kvs, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("routing_optimize_total", "status", "result_ready"), "Optimizations by status").Add(7)
	r.Counter(WithLabels("routing_optimize_total", "status", "no_route"), "").Add(2)
	r.Gauge("routing_sessions", "Open sessions").Set(3)
	r.GaugeFunc("routing_network_cache_entries", "Cached networks", func() float64 { return 4 })
	h := r.Histogram(WithLabels("routing_optimize_duration_seconds", "scenario", "personal"), "Latency", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.5)

	out := r.Render()
	for _, want := range []string{
		"# HELP routing_optimize_total Optimizations by status",
		"# TYPE routing_optimize_total counter",
		`routing_optimize_total{status="no_route"} 2`,
		`routing_optimize_total{status="result_ready"} 7`,
		"# TYPE routing_sessions gauge",
		"routing_sessions 3",
		"routing_network_cache_entries 4",
		"# TYPE routing_optimize_duration_seconds histogram",
		`routing_optimize_duration_seconds_bucket{scenario="personal",le="0.1"} 1`,
		`routing_optimize_duration_seconds_bucket{scenario="personal",le="1"} 2`,
		`routing_optimize_duration_seconds_bucket{scenario="personal",le="+Inf"} 2`,
		`routing_optimize_duration_seconds_sum{scenario="personal"} 0.55`,
		`routing_optimize_duration_seconds_count{scenario="personal"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, `status="no_route"`) > strings.Index(out, `status="result_ready"`) {
		t.Error("series should be sorted")
	}
}

func TestRenderUnlabeledHistogram(t *testing.T) {
	r := New()
	r.Histogram("plain_seconds", "", []float64{1}).Observe(0.5)
	out := r.Render()
	if !strings.Contains(out, `plain_seconds_bucket{le="1"} 1`) || !strings.Contains(out, "plain_seconds_count 1") {
		t.Fatalf("got:\n%s", out)
	}
}

func TestKindMismatchPanics(t *testing.T) {
	r := New()
	r.Counter("dup", "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.Gauge("dup", "")
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("test_total", "test").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "test_total 1") {
		t.Error("missing metric in handler output")
	}
}

func TestCollectRuntime(t *testing.T) {
	r := New()
	r.CollectRuntime("routing", time.Second)
	out := r.Render()
	for _, want := range []string{"routing_goroutines ", "routing_heap_alloc_bytes ", "routing_gc_cycles_total "} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}
