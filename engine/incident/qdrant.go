package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// pointsAPI is the subset of pb.PointsClient used here.
type pointsAPI interface {
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient used here.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore keeps incidents as Qdrant points. The vector is the
// (lat, lon) pair; queries use the geo payload filter on "location".
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	limit       int
	now         func() time.Time
}

// NewQdrantStore connects to Qdrant at the given gRPC address.
func NewQdrantStore(addr, collection string, limit int) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("incident: dial qdrant %s: %w", addr, err)
	}
	s := NewQdrantStoreWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, limit)
	s.conn = conn
	return s, nil
}

// NewQdrantStoreWithClients creates a store with injected clients (for tests).
func NewQdrantStoreWithClients(points pointsAPI, collections collectionsAPI, collection string, limit int) *QdrantStore {
	if limit <= 0 {
		limit = 500
	}
	return &QdrantStore{points: points, collections: collections, collection: collection, limit: limit, now: time.Now}
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("incident: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: 2, Distance: pb.Distance_Euclid},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("incident: create collection %s: %w", s.collection, err)
	}
	return nil
}

// PointID derives a stable point UUID from an incident id.
func PointID(incidentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("incident:"+incidentID)).String()
}

func str(v string) *pb.Value     { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}} }
func integer(v int64) *pb.Value  { return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: v}} }
func double(v float64) *pb.Value { return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: v}} }

// Upsert writes incidents as points.
func (s *QdrantStore) Upsert(ctx context.Context, incidents []domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(incidents))
	for i, inc := range incidents {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(inc.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: []float32{float32(inc.Position.Lat), float32(inc.Position.Lon)}},
			}},
			Payload: map[string]*pb.Value{
				"id":          str(inc.ID),
				"type":        integer(int64(inc.Type)),
				"description": str(inc.Description),
				"radius_m":    double(inc.RadiusM),
				"reported_at": integer(inc.ReportedAt.Unix()),
				"location": {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: map[string]*pb.Value{
					"lat": double(inc.Position.Lat),
					"lon": double(inc.Position.Lon),
				}}}},
			},
		}
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("incident: qdrant upsert: %w", err)
	}
	return nil
}

func bboxFilter(bbox domain.BoundingBox, since time.Time) *pb.Filter {
	must := []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key: "location",
			GeoBoundingBox: &pb.GeoBoundingBox{
				TopLeft:     &pb.GeoPoint{Lat: bbox.MaxLat, Lon: bbox.MinLon},
				BottomRight: &pb.GeoPoint{Lat: bbox.MinLat, Lon: bbox.MaxLon},
			},
		}},
	}}
	if !since.IsZero() {
		gte := float64(since.Unix())
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key:   "reported_at",
				Range: &pb.Range{Gte: &gte},
			}},
		})
	}
	return &pb.Filter{Must: must}
}

// Fetch scrolls through every point inside bbox reported at or after since.
func (s *QdrantStore) Fetch(ctx context.Context, bbox domain.BoundingBox, since time.Time) ([]domain.Incident, error) {
	filter := bboxFilter(bbox, since)
	out := []domain.Incident{}
	var offset *pb.PointId
	for len(out) < s.limit {
		page := uint32(min(s.limit-len(out), 256))
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &page,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("incident: qdrant scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			out = append(out, fromPayload(p.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	return out, nil
}

// NearPath fetches the padded path bounds and filters by exact distance.
func (s *QdrantStore) NearPath(ctx context.Context, path []domain.Coordinate, radiusM float64) ([]domain.Incident, error) {
	if len(path) == 0 {
		return []domain.Incident{}, nil
	}
	candidates, err := s.Fetch(ctx, PathBounds(path, radiusM), s.now().Add(-DefaultRecency))
	if err != nil {
		return nil, err
	}
	return FilterNearPath(candidates, path, radiusM), nil
}

func fromPayload(p map[string]*pb.Value) domain.Incident {
	loc := p["location"].GetStructValue().GetFields()
	inc := domain.NewIncident(
		p["id"].GetStringValue(),
		int(p["type"].GetIntegerValue()),
		domain.Coordinate{Lat: loc["lat"].GetDoubleValue(), Lon: loc["lon"].GetDoubleValue()},
		p["description"].GetStringValue(),
	)
	inc.RadiusM = p["radius_m"].GetDoubleValue()
	if ts := p["reported_at"].GetIntegerValue(); ts > 0 {
		inc.ReportedAt = time.Unix(ts, 0).UTC()
	}
	return inc
}
