package index

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragarena/internal/ragengine/types"
)

// payloadDocumentField and payloadOriginalIDField let the Qdrant backend
// recover document scoping and non-UUID chunk IDs, since Qdrant only
// accepts UUID or integer point IDs.
const (
	payloadDocumentField   = "_document_id"
	payloadOriginalIDField = "_original_id"
	payloadTextField       = "_text"
	payloadPositionField   = "_position"
)

// QdrantIndex is a VectorIndex backed by a Qdrant collection over gRPC.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantIndex connects to Qdrant at dsn (e.g.
// "http://localhost:6334?api_key=...") and ensures the target collection
// exists with the given dimension and distance metric.
func NewQdrantIndex(dsn, collection string, dimension int, metric string) (*QdrantIndex, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("index: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("index: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("index: invalid port in qdrant dsn: %w", err)
	}
	qcfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		qcfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("index: create qdrant client: %w", err)
	}
	q := &QdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("index: ensure collection: %w", err)
	}
	return q, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimension > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointIDFor(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *QdrantIndex) Upsert(ctx context.Context, chunks []types.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		uuidStr := pointIDFor(c.ID)
		payload := make(map[string]any, len(c.Metadata)+4)
		for k, v := range c.Metadata {
			payload[k] = v
		}
		payload[payloadDocumentField] = c.DocumentID
		payload[payloadTextField] = c.Text
		payload[payloadPositionField] = c.Position
		if uuidStr != c.ID {
			payload[payloadOriginalIDField] = c.ID
		}
		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentField, documentID)},
		}),
	})
	return err
}

func (q *QdrantIndex) SimilaritySearch(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if k == 0 {
		return []Hit{}, nil
	}
	if k < 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, values := range filter {
			fieldKey := k
			if k == "document_id" {
				fieldKey = payloadDocumentField
			}
			must = append(must, qdrant.NewMatchKeywords(fieldKey, values...))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, hit := range results {
		chunk := types.Chunk{Metadata: map[string]string{}}
		var originalID string
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				switch k {
				case payloadOriginalIDField:
					originalID = v.GetStringValue()
				case payloadDocumentField:
					chunk.DocumentID = v.GetStringValue()
				case payloadTextField:
					chunk.Text = v.GetStringValue()
				case payloadPositionField:
					chunk.Position = int(v.GetIntegerValue())
				default:
					chunk.Metadata[k] = v.GetStringValue()
				}
			}
		}
		id := originalID
		if id == "" {
			id = hit.Id.GetUuid()
		}
		chunk.ID = id
		hits = append(hits, Hit{Chunk: chunk, Score: float64(hit.Score)})
	}
	return hits, nil
}

func (q *QdrantIndex) Dimension() int { return q.dimension }

func (q *QdrantIndex) Close() error { return q.client.Close() }
