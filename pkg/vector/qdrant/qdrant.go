// Package qdrant provides a Qdrant-backed vector driver over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/vector"
)

// DefaultCollectionName is the default collection for memory records.
const DefaultCollectionName = "engram"

// Driver implements vector.Driver using a Qdrant collection.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host is the Qdrant gRPC host. Defaults to "localhost".
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334.
	Port int

	// APIKey is an optional API key for Qdrant Cloud.
	APIKey string

	// Collection is the collection name. Defaults to DefaultCollectionName.
	Collection string

	// Dimensions is the embedding vector size, required to create the
	// collection on first use.
	Dimensions uint
}

// NewDriver creates a Qdrant vector driver, creating the collection if it
// does not exist yet.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6334
	}
	collection := c.Collection
	if collection == "" {
		collection = DefaultCollectionName
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrConnection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: creating collection: %v", vector.ErrConnection, err)
		}
	}

	logger.Info("qdrant vector driver initialized",
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("collection", collection),
		zap.Uint("dimensions", c.Dimensions),
	)

	return &Driver{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

func payloadToValueMap(p vector.Payload) map[string]*qdrant.Value {
	meta := map[string]any{}
	for k, v := range p.Metadata {
		meta[k] = v
	}

	return qdrant.NewValueMap(map[string]any{
		"data":       p.Data,
		"hash":       p.Hash,
		"user_id":    p.UserID,
		"agent_id":   p.AgentID,
		"run_id":     p.RunID,
		"metadata":   meta,
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"deleted":    p.Deleted,
		"state":      p.State,
	})
}

func valueMapToPayload(values map[string]*qdrant.Value) vector.Payload {
	p := vector.Payload{
		Data:    values["data"].GetStringValue(),
		Hash:    values["hash"].GetStringValue(),
		UserID:  values["user_id"].GetStringValue(),
		AgentID: values["agent_id"].GetStringValue(),
		RunID:   values["run_id"].GetStringValue(),
		Deleted: values["deleted"].GetBoolValue(),
		State:   values["state"].GetStringValue(),
	}

	if s := values["metadata"].GetStructValue(); s != nil {
		p.Metadata = map[string]string{}
		for k, v := range s.GetFields() {
			p.Metadata[k] = v.GetStringValue()
		}
	}

	if ts, err := time.Parse(time.RFC3339Nano, values["created_at"].GetStringValue()); err == nil {
		p.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, values["updated_at"].GetStringValue()); err == nil {
		p.UpdatedAt = ts
	}

	return p
}

func buildFilter(f vector.Filter) *qdrant.Filter {
	var must []*qdrant.Condition

	if f.UserID != "" {
		must = append(must, qdrant.NewMatch("user_id", f.UserID))
	}
	if f.AgentID != "" {
		must = append(must, qdrant.NewMatch("agent_id", f.AgentID))
	}
	if f.RunID != "" {
		must = append(must, qdrant.NewMatch("run_id", f.RunID))
	}
	if !f.IncludeDeleted {
		must = append(must, qdrant.NewMatchBool("deleted", false))
	}
	if f.State != "" {
		must = append(must, qdrant.NewMatch("state", f.State))
	}
	for k, v := range f.Metadata {
		must = append(must, qdrant.NewMatch("metadata."+k, v))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Upsert stores records, replacing any existing record with the same ID.
func (d *Driver) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: payloadToValueMap(rec.Payload),
		})
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: upserting points: %v", vector.ErrConnection, err)
	}

	d.logger.Debug("upserted records to qdrant",
		zap.Int("count", len(records)),
	)

	return nil
}

// Search finds the topK most similar records, restricted by the filter.
func (d *Driver) Search(ctx context.Context, embedding []float32, filter vector.Filter, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying points: %v", vector.ErrConnection, err)
	}

	results := make([]vector.SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, vector.SearchResult{
			Record: vector.Record{
				ID:      point.GetId().GetUuid(),
				Payload: valueMapToPayload(point.GetPayload()),
			},
			Score: point.GetScore(),
		})
	}

	// Equal scores break toward the most recently updated record.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Payload.UpdatedAt.After(results[j].Payload.UpdatedAt)
	})

	d.logger.Debug("queried qdrant",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves a single record by ID.
func (d *Driver) Get(ctx context.Context, id string) (*vector.Record, error) {
	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: getting point %s: %v", vector.ErrConnection, id, err)
	}

	if len(points) == 0 {
		return nil, vector.ErrNotFound
	}

	point := points[0]
	rec := &vector.Record{
		ID:      point.GetId().GetUuid(),
		Payload: valueMapToPayload(point.GetPayload()),
	}
	if vectors := point.GetVectors(); vectors != nil {
		rec.Embedding = vectors.GetVector().GetData()
	}

	return rec, nil
}

// appendScrolled converts one scroll page into records. The scroll offset
// is the id to resume from, so the boundary point of a full page comes
// back again on the next page; seen drops the repeats.
func appendScrolled(records []vector.Record, seen map[string]bool, points []*qdrant.RetrievedPoint) []vector.Record {
	for _, point := range points {
		id := point.GetId().GetUuid()
		if seen[id] {
			continue
		}
		seen[id] = true
		records = append(records, vector.Record{
			ID:      id,
			Payload: valueMapToPayload(point.GetPayload()),
		})
	}
	return records
}

// List returns all records matching the filter by scrolling the collection.
func (d *Driver) List(ctx context.Context, filter vector.Filter) ([]vector.Record, error) {
	var records []vector.Record
	seen := map[string]bool{}
	var offset *qdrant.PointId

	for {
		points, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: d.collection,
			Filter:         buildFilter(filter),
			Limit:          qdrant.PtrOf(uint32(256)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scrolling points: %v", vector.ErrConnection, err)
		}

		if len(points) == 0 {
			break
		}

		records = appendScrolled(records, seen, points)

		if len(points) < 256 {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Payload.UpdatedAt.After(records[j].Payload.UpdatedAt)
	})

	return records, nil
}

// Delete removes records by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: deleting points: %v", vector.ErrConnection, err)
	}

	d.logger.Debug("deleted records from qdrant",
		zap.Int("count", len(ids)),
	)

	return nil
}

// Close releases the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
