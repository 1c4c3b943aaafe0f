package hierarchy

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Operation is the kind of hierarchy mutation a change record describes
type Operation string

const (
	OperationPack     Operation = "pack"
	OperationUnpack   Operation = "unpack"
	OperationRepack   Operation = "repack"
	OperationReassign Operation = "reassign_sscc"
)

// HierarchyChange is the append-only audit record of one hierarchy mutation.
// It is never mutated or deleted after creation; it is the only authoritative
// answer to "why did this SSCC change". A repack produces exactly one record
// carrying both the old and the new SSCC.
type HierarchyChange struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ChangeID    string             `bson:"changeId"`
	Operation   Operation          `bson:"operation"`
	ContainerID string             `bson:"containerId"`
	OldSSCC     string             `bson:"oldSscc,omitempty"`
	NewSSCC     string             `bson:"newSscc,omitempty"`
	ParentSSCC  string             `bson:"parentSscc,omitempty"`
	ShipmentID  string             `bson:"shipmentId,omitempty"`
	ChildIDs    []string           `bson:"childIds,omitempty"`
	Actor       string             `bson:"actor"`
	Reason      string             `bson:"reason,omitempty"`
	Notes       string             `bson:"notes,omitempty"`
	OccurredAt  time.Time          `bson:"occurredAt"`
}

// NewHierarchyChange creates a change record with a fresh change ID
func NewHierarchyChange(op Operation, containerID, actor string) *HierarchyChange {
	return &HierarchyChange{
		ChangeID:    uuid.New().String(),
		Operation:   op,
		ContainerID: containerID,
		Actor:       actor,
		OccurredAt:  time.Now().UTC(),
	}
}
