package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"okucheck/internal/contract"
)

const (
	runsCollection = "runs"
	startedAtIndex = "started_at_-1"
)

type caseDocument struct {
	Step        int     `bson:"step"`
	Name        string  `bson:"name"`
	Outcome     string  `bson:"outcome"`
	FailureKind string  `bson:"failure_kind,omitempty"`
	StatusCode  int     `bson:"status_code"`
	DurationMS  float64 `bson:"duration_ms"`
	Message     string  `bson:"message"`
}

type runDocument struct {
	RunID       string         `bson:"_id"`
	BaseURL     string         `bson:"base_url"`
	Suite       string         `bson:"suite"`
	StartedAt   time.Time      `bson:"started_at"`
	FinishedAt  time.Time      `bson:"finished_at"`
	DurationMS  float64        `bson:"duration_ms"`
	Total       int            `bson:"total"`
	Passed      int            `bson:"passed"`
	Failed      int            `bson:"failed"`
	SuccessRate float64        `bson:"success_rate"`
	Cases       []caseDocument `bson:"cases"`
}

// MongoDBStore implements Store for MongoDB.
// Retention is enforced by a TTL index on started_at.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates the runs collection indexes.
func NewMongoDBStore(ctx context.Context, database *mongo.Database, retentionDays int) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection(runsCollection)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var ttlSeconds *int32
	if retentionDays > 0 {
		ttl := int32(int64(retentionDays) * 24 * 60 * 60)
		ttlSeconds = &ttl
	}
	if err := replaceStaleStartedAtIndex(ctx, collection, ttlSeconds); err != nil {
		return nil, err
	}

	startedAt := mongo.IndexModel{Keys: bson.D{{Key: "started_at", Value: -1}}}
	if ttlSeconds != nil {
		startedAt.Options = options.Index().SetExpireAfterSeconds(*ttlSeconds)
	}
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "suite", Value: 1}}},
		{Keys: bson.D{{Key: "cases.name", Value: 1}}},
		startedAt,
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create history indexes: %w", err)
	}

	return &MongoDBStore{collection: collection}, nil
}

// replaceStaleStartedAtIndex drops the started_at index when its expiry
// differs from ttlSeconds. A TTL index and a plain index share the same
// key and name, so the old one has to go before the new one can be built.
func replaceStaleStartedAtIndex(ctx context.Context, collection *mongo.Collection, ttlSeconds *int32) error {
	specs, err := collection.Indexes().ListSpecifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to list history indexes: %w", err)
	}
	for _, spec := range specs {
		if spec.Name != startedAtIndex || sameExpiry(spec.ExpireAfterSeconds, ttlSeconds) {
			continue
		}
		slog.Info("replacing history started_at index", "index", spec.Name)
		if err := collection.Indexes().DropOne(ctx, spec.Name); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", spec.Name, err)
		}
	}
	return nil
}

func sameExpiry(a, b *int32) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Save inserts the run as one document.
func (s *MongoDBStore) Save(ctx context.Context, r *contract.RunReport) error {
	doc := runDocument{
		RunID:       r.RunID,
		BaseURL:     r.BaseURL,
		Suite:       r.Suite,
		StartedAt:   r.StartedAt.UTC(),
		FinishedAt:  r.FinishedAt.UTC(),
		DurationMS:  r.DurationMS,
		Total:       r.Total,
		Passed:      r.Passed,
		Failed:      r.Failed,
		SuccessRate: r.SuccessRate,
		Cases:       make([]caseDocument, 0, len(r.Cases)),
	}
	for _, tc := range r.Cases {
		doc.Cases = append(doc.Cases, caseDocument{
			Step:        tc.Step,
			Name:        tc.Name,
			Outcome:     string(tc.Outcome),
			FailureKind: string(tc.FailureKind),
			StatusCode:  tc.StatusCode,
			DurationMS:  tc.DurationMS,
			Message:     tc.Message,
		})
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

// Recent returns the newest runs first.
func (s *MongoDBStore) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]RunSummary, 0)
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode run: %w", err)
		}
		rs := RunSummary{
			RunID:       doc.RunID,
			BaseURL:     doc.BaseURL,
			Suite:       doc.Suite,
			StartedAt:   doc.StartedAt,
			DurationMS:  doc.DurationMS,
			Total:       doc.Total,
			Passed:      doc.Passed,
			Failed:      doc.Failed,
			SuccessRate: doc.SuccessRate,
		}
		for _, c := range doc.Cases {
			if c.Outcome == string(contract.OutcomeFail) {
				rs.FailedCases = append(rs.FailedCases, c.Name)
			}
		}
		result = append(result, rs)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run cursor: %w", err)
	}
	return result, nil
}

// Close is a no-op; the client belongs to the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
