package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pharmatrace/traceability-service/internal/repository"
	"github.com/pharmatrace/traceability-service/pkg/metrics"
)

// PendingCaptureStore implements repository.PendingCaptureStore over a
// pending_captures collection
type PendingCaptureStore struct {
	collection *mongo.Collection
	metrics    *metrics.Metrics
}

// NewPendingCaptureStore creates the store and ensures its indexes
func NewPendingCaptureStore(db *mongo.Database, m *metrics.Metrics) *PendingCaptureStore {
	store := &PendingCaptureStore{
		collection: db.Collection("pending_captures"),
		metrics:    m,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextAttemptAt", Value: 1}}},
		{Keys: bson.D{{Key: "correlationId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	store.collection.Indexes().CreateMany(ctx, indexes)
	return store
}

func (s *PendingCaptureStore) Enqueue(ctx context.Context, capture *repository.PendingCapture) error {
	_, err := s.collection.InsertOne(ctx, capture)
	s.metrics.RecordMongoDBOperation("pending_captures", "insertOne", err == nil)
	if err != nil {
		return fmt.Errorf("enqueue capture: %w", err)
	}
	return nil
}

func (s *PendingCaptureStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*repository.PendingCapture, error) {
	filter := bson.M{
		"status":        repository.CapturePending,
		"nextAttemptAt": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "nextAttemptAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	s.metrics.RecordMongoDBOperation("pending_captures", "find", err == nil)
	if err != nil {
		return nil, fmt.Errorf("find due captures: %w", err)
	}
	defer cursor.Close(ctx)

	var captures []*repository.PendingCapture
	if err := cursor.All(ctx, &captures); err != nil {
		return nil, fmt.Errorf("decode due captures: %w", err)
	}
	return captures, nil
}

func (s *PendingCaptureStore) Update(ctx context.Context, capture *repository.PendingCapture) error {
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": capture.ID}, capture)
	s.metrics.RecordMongoDBOperation("pending_captures", "replaceOne", err == nil)
	if err != nil {
		return fmt.Errorf("update capture: %w", err)
	}
	return nil
}

func (s *PendingCaptureStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	s.metrics.RecordMongoDBOperation("pending_captures", "deleteOne", err == nil)
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	return nil
}

func (s *PendingCaptureStore) ListFailed(ctx context.Context, limit int) ([]*repository.PendingCapture, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"status": repository.CaptureFailed}, opts)
	s.metrics.RecordMongoDBOperation("pending_captures", "find", err == nil)
	if err != nil {
		return nil, fmt.Errorf("list failed captures: %w", err)
	}
	defer cursor.Close(ctx)

	var captures []*repository.PendingCapture
	if err := cursor.All(ctx, &captures); err != nil {
		return nil, fmt.Errorf("decode failed captures: %w", err)
	}
	return captures, nil
}

func (s *PendingCaptureStore) CountPending(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"status": repository.CapturePending})
	s.metrics.RecordMongoDBOperation("pending_captures", "countDocuments", err == nil)
	if err != nil {
		return 0, fmt.Errorf("count pending captures: %w", err)
	}
	return n, nil
}
