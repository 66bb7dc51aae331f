package incident

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

type fakeES struct {
	created    bool
	lastSearch map[string]any
	bulkLines  []string
	hits       []esDoc
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/incidents":
		if f.created {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/incidents":
		f.created = true
		io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		type hit struct {
			Source esDoc `json:"_source"`
		}
		var resp struct {
			Hits struct {
				Hits []hit `json:"hits"`
			} `json:"hits"`
		}
		for _, d := range f.hits {
			resp.Hits.Hits = append(resp.Hits.Hits, hit{Source: d})
		}
		_ = json.NewEncoder(w).Encode(resp)
	case r.URL.Path == "/_bulk":
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				f.bulkLines = append(f.bulkLines, line)
			}
		}
		io.WriteString(w, `{"errors":false,"items":[]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestElastic(t *testing.T, f *fakeES) *ElasticStore {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatal(err)
	}
	return NewElasticStore(client, "incidents", 100)
}

func TestElasticEnsureIndexAndBulk(t *testing.T) {
	f := &fakeES{}
	s := newTestElastic(t, f)
	ctx := context.Background()

	if err := s.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	if !f.created {
		t.Fatal("expected index to be created")
	}
	if err := s.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}

	incs := []domain.Incident{
		domain.NewIncident("i1", 9, origin, "crash"),
		domain.NewIncident("i2", 4, origin, "closed"),
	}
	if err := s.BulkIndex(ctx, incs); err != nil {
		t.Fatal(err)
	}
	if len(f.bulkLines) != 4 {
		t.Fatalf("expected 4 ndjson lines, got %d", len(f.bulkLines))
	}
	if !strings.Contains(f.bulkLines[0], `"_id":"i1"`) {
		t.Fatalf("unexpected meta line %s", f.bulkLines[0])
	}
}

func TestElasticFetch(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	f := &fakeES{hits: []esDoc{{
		ID: "i1", Type: 3, Location: esLocation{Lat: 12.971, Lon: 77.591},
		Description: "queue", ReportedAt: now,
	}}}
	s := newTestElastic(t, f)

	got, err := s.Fetch(context.Background(), domain.BoxAround(0.05, origin), now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Severity.Label != "Stationary Traffic" {
		t.Fatalf("unexpected result %+v", got)
	}

	q, _ := json.Marshal(f.lastSearch)
	if !strings.Contains(string(q), "geo_bounding_box") || !strings.Contains(string(q), "reported_at") {
		t.Fatalf("unexpected query %s", q)
	}
}

func TestElasticNearPathFiltersByDistance(t *testing.T) {
	f := &fakeES{hits: []esDoc{
		{ID: "near", Type: 9, Location: esLocation{Lat: origin.Lat + 0.0005, Lon: origin.Lon + 0.005}},
		{ID: "far", Type: 9, Location: esLocation{Lat: origin.Lat + 0.01, Lon: origin.Lon + 0.005}},
	}}
	s := newTestElastic(t, f)

	path := []domain.Coordinate{origin, {Lat: origin.Lat, Lon: origin.Lon + 0.01}}
	got, err := s.NearPath(context.Background(), path, 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "near" {
		t.Fatalf("expected only near incident, got %+v", got)
	}
}
