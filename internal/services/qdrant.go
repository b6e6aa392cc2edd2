package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const cvIDPayloadKey = "cv_id"

type qdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	logger         *zap.Logger
}

func NewQdrantIndex(urlStr, apiKey, collectionName string, vectorSize int, logger *zap.Logger) (VectorIndex, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid qdrant url: %v", ErrConfiguration, err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create qdrant client: %v", ErrConfiguration, err)
	}

	return &qdrantIndex{
		client:         client,
		collectionName: collectionName,
		vectorSize:     uint64(vectorSize),
		logger:         logger.Named("qdrant"),
	}, nil
}

// pointID derives a stable UUID from the CV id so re-upserting replaces the point.
func pointID(cvID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(cvID)).String())
}

// EnsureCollection implements VectorIndex.
func (q *qdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("%w: failed to check collection: %v", ErrStore, err)
	}

	if exists {
		q.logger.Info("collection already exists", zap.String("collection", q.collectionName))
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %v", ErrStore, err)
	}

	q.logger.Info("collection created", zap.String("collection", q.collectionName))
	return nil
}

// Upsert implements VectorIndex.
func (q *qdrantIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		payload := map[string]any{cvIDPayloadKey: rec.ID}
		for k, v := range rec.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upsert points: %v", ErrStore, err)
	}

	q.logger.Debug("upserted vectors", zap.Int("count", len(points)))
	return nil
}

// Query implements VectorIndex.
func (q *qdrantIndex) Query(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query: %v", ErrRetrieval, err)
	}

	candidates := make([]Candidate, 0, len(points))
	for _, point := range points {
		candidate := Candidate{
			Score:    point.GetScore(),
			Metadata: make(map[string]string),
		}

		for key, value := range point.GetPayload() {
			if key == cvIDPayloadKey {
				candidate.ID = value.GetStringValue()
				continue
			}
			if s, ok := value.GetKind().(*qdrant.Value_StringValue); ok {
				candidate.Metadata[key] = s.StringValue
			}
		}

		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// Delete implements VectorIndex.
func (q *qdrantIndex) Delete(ctx context.Context, id string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(cvIDPayloadKey, id),
		},
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete vector: %v", ErrStore, err)
	}

	return nil
}
