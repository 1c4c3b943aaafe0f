// Package mongodb implements the persistence collaborators over MongoDB:
// container state, the append-only hierarchy change log, the SSCC sequence
// and the pending-capture queue.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pharmatrace/traceability-service/internal/hierarchy"
	"github.com/pharmatrace/traceability-service/pkg/metrics"
)

// ContainerRepository implements hierarchy.Repository
type ContainerRepository struct {
	containers *mongo.Collection
	changes    *mongo.Collection
	metrics    *metrics.Metrics
}

// NewContainerRepository creates the repository and ensures its indexes
func NewContainerRepository(db *mongo.Database, m *metrics.Metrics) *ContainerRepository {
	repo := &ContainerRepository{
		containers: db.Collection("containers"),
		changes:    db.Collection("hierarchy_changes"),
		metrics:    m,
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *ContainerRepository) ensureIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	containerIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "containerId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "sscc", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "parentId", Value: 1}}},
		{Keys: bson.D{{Key: "shipmentId", Value: 1}, {Key: "caseNumber", Value: 1}}},
		{Keys: bson.D{{Key: "state", Value: 1}}},
	}
	r.containers.Indexes().CreateMany(ctx, containerIndexes)

	changeIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "changeId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "containerId", Value: 1}, {Key: "occurredAt", Value: 1}}},
		{Keys: bson.D{{Key: "newSscc", Value: 1}}},
		{Keys: bson.D{{Key: "oldSscc", Value: 1}}},
	}
	r.changes.Indexes().CreateMany(ctx, changeIndexes)
}

func (r *ContainerRepository) FindContainer(ctx context.Context, containerID string) (*hierarchy.Container, error) {
	var container hierarchy.Container
	err := r.containers.FindOne(ctx, bson.M{"containerId": containerID}).Decode(&container)
	r.metrics.RecordMongoDBOperation("containers", "findOne", err == nil || errors.Is(err, mongo.ErrNoDocuments))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, hierarchy.ErrContainerNotFound
		}
		return nil, fmt.Errorf("find container: %w", err)
	}
	return &container, nil
}

func (r *ContainerRepository) FindBySSCC(ctx context.Context, sscc string) (*hierarchy.Container, error) {
	var container hierarchy.Container
	err := r.containers.FindOne(ctx, bson.M{"sscc": sscc}).Decode(&container)
	r.metrics.RecordMongoDBOperation("containers", "findOne", err == nil || errors.Is(err, mongo.ErrNoDocuments))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, hierarchy.ErrContainerNotFound
		}
		return nil, fmt.Errorf("find container by sscc: %w", err)
	}
	return &container, nil
}

func (r *ContainerRepository) FindChildren(ctx context.Context, containerID string) ([]*hierarchy.Container, error) {
	cursor, err := r.containers.Find(ctx, bson.M{"parentId": containerID})
	r.metrics.RecordMongoDBOperation("containers", "find", err == nil)
	if err != nil {
		return nil, fmt.Errorf("find children: %w", err)
	}
	defer cursor.Close(ctx)

	var children []*hierarchy.Container
	if err := cursor.All(ctx, &children); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	return children, nil
}

func (r *ContainerRepository) FindByCaseNumberRange(ctx context.Context, shipmentID string, start, end int) ([]*hierarchy.Container, error) {
	filter := bson.M{
		"shipmentId": shipmentID,
		"caseNumber": bson.M{"$gte": start, "$lte": end},
	}
	opts := options.Find().SetSort(bson.D{{Key: "caseNumber", Value: 1}})

	cursor, err := r.containers.Find(ctx, filter, opts)
	r.metrics.RecordMongoDBOperation("containers", "find", err == nil)
	if err != nil {
		return nil, fmt.Errorf("find case range: %w", err)
	}
	defer cursor.Close(ctx)

	var cases []*hierarchy.Container
	if err := cursor.All(ctx, &cases); err != nil {
		return nil, fmt.Errorf("decode case range: %w", err)
	}
	return cases, nil
}

// SaveContainer upserts a container guarded by its version: a concurrent
// writer that bumped the version first wins and this save fails.
func (r *ContainerRepository) SaveContainer(ctx context.Context, container *hierarchy.Container) error {
	filter := bson.M{
		"containerId": container.ContainerID,
		"version":     bson.M{"$lt": container.Version},
	}
	update := bson.M{"$set": containerFields(container)}
	opts := options.Update().SetUpsert(true)

	result, err := r.containers.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.metrics.RecordMongoDBOperation("containers", "updateOne", false)
			return hierarchy.ErrConcurrentModification
		}
		r.metrics.RecordMongoDBOperation("containers", "updateOne", false)
		return fmt.Errorf("save container: %w", err)
	}
	r.metrics.RecordMongoDBOperation("containers", "updateOne", true)

	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return hierarchy.ErrConcurrentModification
	}
	return nil
}

func (r *ContainerRepository) SaveContainers(ctx context.Context, containers []*hierarchy.Container) error {
	for _, container := range containers {
		if err := r.SaveContainer(ctx, container); err != nil {
			return err
		}
	}
	return nil
}

// AppendChange inserts an audit record. The change log is append-only; there
// is deliberately no update or delete path.
func (r *ContainerRepository) AppendChange(ctx context.Context, change *hierarchy.HierarchyChange) error {
	_, err := r.changes.InsertOne(ctx, change)
	r.metrics.RecordMongoDBOperation("hierarchy_changes", "insertOne", err == nil)
	if err != nil {
		return fmt.Errorf("append hierarchy change: %w", err)
	}
	return nil
}

func (r *ContainerRepository) ListChanges(ctx context.Context, containerID string) ([]*hierarchy.HierarchyChange, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}})
	cursor, err := r.changes.Find(ctx, bson.M{"containerId": containerID}, opts)
	r.metrics.RecordMongoDBOperation("hierarchy_changes", "find", err == nil)
	if err != nil {
		return nil, fmt.Errorf("list hierarchy changes: %w", err)
	}
	defer cursor.Close(ctx)

	var changes []*hierarchy.HierarchyChange
	if err := cursor.All(ctx, &changes); err != nil {
		return nil, fmt.Errorf("decode hierarchy changes: %w", err)
	}
	return changes, nil
}

// containerFields renders the mutable fields for $set, leaving _id alone
func containerFields(c *hierarchy.Container) bson.M {
	return bson.M{
		"containerId":   c.ContainerID,
		"sscc":          c.SSCC,
		"previousSsccs": c.PreviousSSCCs,
		"epc":           c.EPC,
		"level":         c.Level,
		"shipmentId":    c.ShipmentID,
		"caseNumber":    c.CaseNumber,
		"state":         c.State,
		"parentId":      c.ParentID,
		"childIds":      c.ChildIDs,
		"quantity":      c.Quantity,
		"capacity":      c.Capacity,
		"version":       c.Version,
		"createdAt":     c.CreatedAt,
		"updatedAt":     c.UpdatedAt,
		"packedAt":      c.PackedAt,
		"unpackedAt":    c.UnpackedAt,
	}
}
