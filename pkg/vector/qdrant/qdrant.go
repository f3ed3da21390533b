// Package qdrant provides a vector.Driver backed by a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/keepsake/pkg/logger"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

const (
	// DefaultCollection is the collection used when none is configured.
	DefaultCollection = "keepsake_fact_vectors"

	payloadFactID = "fact_id"
	payloadModel  = "model"
)

// pointNamespace derives stable point ids from (fact id, model).
var pointNamespace = uuid.MustParse("5b0f6c1e-8a4e-4c3e-9d61-6b3f1f7a2c90")

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the Qdrant gRPC address as host:port.
	Target string

	// Collection is the collection name. Defaults to DefaultCollection.
	Collection string

	// Dimensions is the vector size of the collection. Required.
	Dimensions uint

	// APIKey is sent with every request when non-empty.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool
}

// Driver implements vector.Driver using Qdrant. Each point carries its fact
// id and model in the payload so scoring can be restricted to one model.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and creates the collection if it is missing.
func NewDriver(ctx context.Context, c Config, log *slog.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if log == nil {
		log = logger.Nop()
	}

	host, portStr, err := net.SplitHostPort(c.Target)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant target %q: %w", c.Target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant port %q: %w", portStr, err)
	}

	collection := c.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %w", vector.ErrConnection, err)
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
			return nil, fmt.Errorf("creating collection %s: %w", collection, err)
		}
	}

	log.Info("qdrant vector driver initialized",
		"target", c.Target,
		"collection", collection,
		"dimensions", c.Dimensions,
	)

	return &Driver{
		client:     client,
		collection: collection,
		logger:     log,
	}, nil
}

// PointID returns the deterministic Qdrant point id for a fact vector.
func PointID(factID int64, model string) string {
	return uuid.NewSHA1(pointNamespace, []byte(strconv.FormatInt(factID, 10)+"\x00"+model)).String()
}

// Get returns the stored embedding for a fact under model, or nil.
func (d *Driver) Get(ctx context.Context, factID int64, model string) ([]float32, error) {
	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(factID, model))},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting vector for fact %d: %w", factID, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	data := points[0].GetVectors().GetVector().GetData()
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// Upsert stores a fact vector, replacing any existing one for (fact id, model).
func (d *Driver) Upsert(ctx context.Context, rec vector.Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding for fact %d", vector.ErrEmbedding, rec.FactID)
	}

	wait := true
	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(PointID(rec.FactID, rec.Model)),
				Vectors: qdrant.NewVectors(rec.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadFactID: rec.FactID,
					payloadModel:  rec.Model,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting vector for fact %d: %w", rec.FactID, err)
	}

	d.logger.Debug("upserted fact vector",
		"fact_id", rec.FactID,
		"model", rec.Model,
	)
	return nil
}

// Scores runs a filtered query restricted to the requested fact ids under
// the model, returning one cosine score per fact that has a vector.
func (d *Driver) Scores(ctx context.Context, q vector.ScoreQuery) ([]vector.Score, error) {
	if len(q.FactIDs) == 0 || len(q.QueryEmbedding) == 0 {
		return nil, nil
	}

	limit := uint64(len(q.FactIDs))
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(q.QueryEmbedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadModel, q.Model),
				qdrant.NewMatchInts(payloadFactID, q.FactIDs...),
			},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scoring vectors: %w", err)
	}

	scores := make([]vector.Score, 0, len(points))
	for _, p := range points {
		factID := p.GetPayload()[payloadFactID].GetIntegerValue()
		scores = append(scores, vector.Score{
			FactID: factID,
			Score:  vector.ClampScore(float64(p.GetScore())),
		})
	}

	d.logger.Debug("scored fact vectors",
		"requested", len(q.FactIDs),
		"scored", len(scores),
	)

	return scores, nil
}

// Close releases the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
