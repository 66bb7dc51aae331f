package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// IndexMapping is the Elasticsearch mapping for incident documents.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "type":        {"type": "integer"},
      "location":    {"type": "geo_point"},
      "description": {"type": "text"},
      "radius_m":    {"type": "float"},
      "reported_at": {"type": "date"}
    }
  }
}`

type esLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type esDoc struct {
	ID          string     `json:"id"`
	Type        int        `json:"type"`
	Location    esLocation `json:"location"`
	Description string     `json:"description,omitempty"`
	RadiusM     float64    `json:"radius_m,omitempty"`
	ReportedAt  time.Time  `json:"reported_at"`
}

func toDoc(inc domain.Incident) esDoc {
	return esDoc{
		ID:          inc.ID,
		Type:        inc.Type,
		Location:    esLocation{Lat: inc.Position.Lat, Lon: inc.Position.Lon},
		Description: inc.Description,
		RadiusM:     inc.RadiusM,
		ReportedAt:  inc.ReportedAt,
	}
}

func (d esDoc) incident() domain.Incident {
	inc := domain.NewIncident(d.ID, d.Type, domain.Coordinate{Lat: d.Location.Lat, Lon: d.Location.Lon}, d.Description)
	inc.RadiusM = d.RadiusM
	inc.ReportedAt = d.ReportedAt
	return inc
}

// ElasticStore keeps incidents in an Elasticsearch index with a geo_point
// location field.
type ElasticStore struct {
	client *elasticsearch.Client
	index  string
	limit  int
	now    func() time.Time
}

// NewElasticStore creates a store on index. limit caps hits per query; zero
// means 500.
func NewElasticStore(client *elasticsearch.Client, index string, limit int) *ElasticStore {
	if limit <= 0 {
		limit = 500
	}
	return &ElasticStore{client: client, index: index, limit: limit, now: time.Now}
}

// EnsureIndex creates the index with IndexMapping if it does not exist.
func (s *ElasticStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("incident: es index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(bytes.NewReader([]byte(IndexMapping))),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("incident: es create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("incident: es create index: %s", body)
	}
	return nil
}

// BulkIndex writes incidents through the _bulk API. Document ids are the
// incident ids, so re-indexing overwrites.
func (s *ElasticStore) BulkIndex(ctx context.Context, incidents []domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, inc := range incidents {
		meta := map[string]any{"index": map[string]any{"_index": s.index, "_id": inc.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("incident: encode bulk meta: %w", err)
		}
		if err := enc.Encode(toDoc(inc)); err != nil {
			return fmt.Errorf("incident: encode bulk doc: %w", err)
		}
	}

	req := esapi.BulkRequest{Body: &buf, Refresh: "true"}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("incident: es bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("incident: es bulk: status %d: %s", res.StatusCode, body)
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  any `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("incident: es bulk decode: %w", err)
	}
	if result.Errors {
		failed := 0
		for _, item := range result.Items {
			for _, op := range item {
				if op.Error != nil {
					failed++
				}
			}
		}
		return fmt.Errorf("incident: es bulk: %d of %d documents failed", failed, len(incidents))
	}
	return nil
}

func (s *ElasticStore) bboxQuery(bbox domain.BoundingBox, since time.Time) map[string]any {
	filters := []any{
		map[string]any{
			"geo_bounding_box": map[string]any{
				"location": map[string]any{
					"top_left":     map[string]any{"lat": bbox.MaxLat, "lon": bbox.MinLon},
					"bottom_right": map[string]any{"lat": bbox.MinLat, "lon": bbox.MaxLon},
				},
			},
		},
	}
	if !since.IsZero() {
		filters = append(filters, map[string]any{
			"range": map[string]any{"reported_at": map[string]any{"gte": since.UTC().Format(time.RFC3339)}},
		})
	}
	return map[string]any{
		"size":  s.limit,
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"sort":  []any{map[string]any{"reported_at": "desc"}},
	}
}

func (s *ElasticStore) search(ctx context.Context, query map[string]any) ([]domain.Incident, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("incident: encode es query: %w", err)
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("incident: es search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return []domain.Incident{}, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("incident: es search: status %d: %s", res.StatusCode, body)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source esDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("incident: es decode: %w", err)
	}
	out := make([]domain.Incident, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		out = append(out, h.Source.incident())
	}
	return out, nil
}

// Fetch returns incidents inside bbox reported at or after since.
func (s *ElasticStore) Fetch(ctx context.Context, bbox domain.BoundingBox, since time.Time) ([]domain.Incident, error) {
	return s.search(ctx, s.bboxQuery(bbox, since))
}

// NearPath queries the path's bounds padded by radiusM and filters by exact
// distance to the polyline. Only incidents from the last DefaultRecency are
// considered.
func (s *ElasticStore) NearPath(ctx context.Context, path []domain.Coordinate, radiusM float64) ([]domain.Incident, error) {
	if len(path) == 0 {
		return []domain.Incident{}, nil
	}
	candidates, err := s.search(ctx, s.bboxQuery(PathBounds(path, radiusM), s.now().Add(-DefaultRecency)))
	if err != nil {
		return nil, err
	}
	return FilterNearPath(candidates, path, radiusM), nil
}
