// Command incident-seeder generates synthetic traffic incidents inside a
// bounding box and bulk-loads them into Elasticsearch or Qdrant, for local
// development and load tests of the routing API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/incident"
)

// typeWeights biases generated incidents towards the common, mild kinds.
var typeWeights = []struct {
	code   int
	weight int
}{
	{domain.IncidentSlowTraffic, 40},
	{domain.IncidentHeavyTraffic, 25},
	{domain.IncidentStationaryTraffic, 15},
	{domain.IncidentAccident, 15},
	{domain.IncidentRoadClosed, 5},
}

// sink is a destination for generated incidents.
type sink interface {
	Prepare(ctx context.Context) error
	Write(ctx context.Context, batch []domain.Incident) error
}

type elasticSink struct{ store *incident.ElasticStore }

func (s elasticSink) Prepare(ctx context.Context) error { return s.store.EnsureIndex(ctx) }
func (s elasticSink) Write(ctx context.Context, b []domain.Incident) error {
	return s.store.BulkIndex(ctx, b)
}

type qdrantSink struct{ store *incident.QdrantStore }

func (s qdrantSink) Prepare(ctx context.Context) error { return s.store.EnsureCollection(ctx) }
func (s qdrantSink) Write(ctx context.Context, b []domain.Incident) error {
	return s.store.Upsert(ctx, b)
}

// jsonSink writes one incident per line, for dry runs.
type jsonSink struct{ enc *json.Encoder }

func (jsonSink) Prepare(context.Context) error { return nil }
func (s jsonSink) Write(_ context.Context, b []domain.Incident) error {
	for _, inc := range b {
		if err := s.enc.Encode(inc); err != nil {
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()
	var (
		count      = flag.Int("n", 1000, "number of incidents")
		bboxFlag   = flag.String("bbox", "12.85,77.45,13.10,77.75", "minLat,minLon,maxLat,maxLon")
		backend    = flag.String("backend", "elastic", "elastic, qdrant or stdout")
		batchSize  = flag.Int("batch", 500, "documents per bulk request")
		maxAge     = flag.Duration("max-age", 24*time.Hour, "oldest generated report time")
		seed       = flag.Int64("seed", 0, "random seed; 0 uses the clock")
		esURL      = flag.String("es", envOr("ELASTICSEARCH_URL", "http://localhost:9200"), "Elasticsearch URL")
		index      = flag.String("index", envOr("ROUTING_INCIDENT_INDEX", "incidents"), "Elasticsearch index")
		qdrantAddr = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection = flag.String("collection", envOr("QDRANT_COLLECTION", "incidents"), "Qdrant collection")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	bbox, err := parseBBox(*bboxFlag)
	if err != nil {
		log.Error("invalid bbox", "error", err)
		os.Exit(2)
	}

	var out sink
	switch *backend {
	case "elastic":
		client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{*esURL}})
		if err != nil {
			log.Error("elasticsearch client", "error", err)
			os.Exit(1)
		}
		out = elasticSink{store: incident.NewElasticStore(client, *index, 0)}
	case "qdrant":
		store, err := incident.NewQdrantStore(*qdrantAddr, *collection, 0)
		if err != nil {
			log.Error("qdrant connect failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		out = qdrantSink{store: store}
	case "stdout":
		out = jsonSink{enc: json.NewEncoder(os.Stdout)}
	default:
		log.Error("unknown backend", "backend", *backend)
		os.Exit(2)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(*seed)
	incidents := generate(faker, *count, bbox, time.Now(), *maxAge)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := out.Prepare(ctx); err != nil {
		log.Error("prepare backend", "backend", *backend, "error", err)
		os.Exit(1)
	}

	var bar *progressbar.ProgressBar
	if *backend != "stdout" {
		bar = progressbar.Default(int64(len(incidents)), "seeding incidents")
	}
	written, err := load(ctx, out, incidents, *batchSize, func(n int) {
		if bar != nil {
			bar.Add(n)
		}
	})
	if err != nil {
		log.Error("seeding stopped", "written", written, "error", err)
		os.Exit(1)
	}
	log.Info("seeding complete", "backend", *backend, "incidents", written, "seed", *seed)
}

// parseBBox reads "minLat,minLon,maxLat,maxLon".
func parseBBox(s string) (domain.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.BoundingBox{}, fmt.Errorf("want 4 comma-separated values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		v[i] = f
	}
	b := domain.BoundingBox{MinLat: v[0], MinLon: v[1], MaxLat: v[2], MaxLon: v[3]}
	lo, hi := domain.Coordinate{Lat: b.MinLat, Lon: b.MinLon}, domain.Coordinate{Lat: b.MaxLat, Lon: b.MaxLon}
	if !lo.Valid() || !hi.Valid() || b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return domain.BoundingBox{}, fmt.Errorf("empty or out-of-range box %s", s)
	}
	return b, nil
}

// generate draws n incidents uniformly inside bbox, reported within maxAge
// before now.
func generate(f *gofakeit.Faker, n int, bbox domain.BoundingBox, now time.Time, maxAge time.Duration) []domain.Incident {
	total := 0
	for _, tw := range typeWeights {
		total += tw.weight
	}
	out := make([]domain.Incident, 0, n)
	for range n {
		code := typeWeights[0].code
		pick := f.Number(0, total-1)
		for _, tw := range typeWeights {
			if pick < tw.weight {
				code = tw.code
				break
			}
			pick -= tw.weight
		}
		pos := domain.Coordinate{
			Lat: f.Float64Range(bbox.MinLat, bbox.MaxLat),
			Lon: f.Float64Range(bbox.MinLon, bbox.MaxLon),
		}
		sev := domain.SeverityFor(code)
		inc := domain.NewIncident(uuid.NewString(), code, pos, fmt.Sprintf("%s on %s", sev.Label, f.Street()))
		inc.RadiusM = float64(f.Number(100, 500))
		inc.ReportedAt = now.Add(-time.Duration(f.Float64Range(0, 1) * float64(maxAge))).Truncate(time.Second)
		out = append(out, inc)
	}
	return out
}

// load writes incidents in batches, calling progress after each one. It
// returns how many were written before any error.
func load(ctx context.Context, out sink, incidents []domain.Incident, batchSize int, progress func(int)) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	written := 0
	for start := 0; start < len(incidents); start += batchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := min(start+batchSize, len(incidents))
		if err := out.Write(ctx, incidents[start:end]); err != nil {
			return written, fmt.Errorf("batch at %d: %w", start, err)
		}
		written += end - start
		progress(end - start)
	}
	return written, nil
}
