// Package hierarchy owns the packaging-hierarchy state machine: pack, unpack,
// repack and SSCC reassignment over shipments, packages and cases. It is the
// system of record for containment; EPCIS events are a downstream projection.
package hierarchy

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors
var (
	ErrEmptyChildSet          = errors.New("child set is empty")
	ErrInvalidRange           = errors.New("end case number before start")
	ErrChildAlreadyPacked     = errors.New("child already has a live parent")
	ErrUnknownPackage         = errors.New("package not found")
	ErrSameShipment           = errors.New("container already belongs to that shipment")
	ErrNotPacked              = errors.New("container is not packed")
	ErrCyclicContainment      = errors.New("container cannot contain itself or an ancestor")
	ErrCapacityExceeded       = errors.New("declared capacity exceeded")
	ErrConcurrentModification = errors.New("concurrent hierarchy modification")
)

// State is the lifecycle state of a physical container
type State string

const (
	StateUnassigned State = "UNASSIGNED"
	StatePacked     State = "PACKED"
	StateRepacked   State = "REPACKED"
	StateUnpacked   State = "UNPACKED"
)

// Level is the container's position in the strict 4-level tree
type Level string

const (
	LevelShipment Level = "shipment"
	LevelPackage  Level = "package"
	LevelCase     Level = "case"
	LevelUnit     Level = "unit"
)

// Container is the aggregate root for one physical container. Its identity
// (ContainerID) persists across SSCC changes; the SSCC is the current code
// and historical codes accumulate in PreviousSSCCs.
type Container struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ContainerID   string             `bson:"containerId"`
	SSCC          string             `bson:"sscc,omitempty"`
	PreviousSSCCs []string           `bson:"previousSsccs,omitempty"`
	EPC           string             `bson:"epc,omitempty"`
	Level         Level              `bson:"level"`
	ShipmentID    string             `bson:"shipmentId,omitempty"`
	CaseNumber    int                `bson:"caseNumber,omitempty"`
	State         State              `bson:"state"`
	ParentID      string             `bson:"parentId,omitempty"`
	ChildIDs      []string           `bson:"childIds,omitempty"`
	Quantity      int                `bson:"quantity,omitempty"`
	Capacity      int                `bson:"capacity,omitempty"`
	Version       int64              `bson:"version"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
	PackedAt      *time.Time         `bson:"packedAt,omitempty"`
	UnpackedAt    *time.Time         `bson:"unpackedAt,omitempty"`
	DomainEvents  []DomainEvent      `bson:"-"`
}

// NewContainer creates an unassigned container with a physical identity but
// no SSCC yet
func NewContainer(containerID string, level Level) *Container {
	now := time.Now().UTC()
	return &Container{
		ContainerID: containerID,
		Level:       level,
		State:       StateUnassigned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsPacked reports whether the container currently sits under a live parent
// or holds a live child set. A repacked container is still packed, just under
// a newer code.
func (c *Container) IsPacked() bool {
	return c.State == StatePacked || c.State == StateRepacked
}

// HasLiveParent reports whether the container is currently inside another
// container
func (c *Container) HasLiveParent() bool {
	return c.ParentID != ""
}

// Packable reports whether the container can become a child right now:
// unassigned, or itself packed with no outstanding parent of its own.
func (c *Container) Packable() bool {
	if c.HasLiveParent() {
		return false
	}
	return c.State == StateUnassigned || c.IsPacked()
}

// ChildEPC returns the EPC URN the container contributes to an aggregation
// event: its own EPC for units, otherwise its SSCC URN is stored in EPC at
// pack time.
func (c *Container) ChildEPC() string {
	return c.EPC
}

// attachTo places the container under a parent
func (c *Container) attachTo(parentID string, now time.Time) {
	c.ParentID = parentID
	c.State = StatePacked
	c.PackedAt = &now
	c.UpdatedAt = now
	c.Version++
}

// detach releases the container back to the pool
func (c *Container) detach(now time.Time) {
	c.ParentID = ""
	c.State = StateUnassigned
	c.UpdatedAt = now
	c.Version++
}

// AddDomainEvent records an event for publication after persistence
func (c *Container) AddDomainEvent(event DomainEvent) {
	c.DomainEvents = append(c.DomainEvents, event)
}

// ClearDomainEvents drops recorded events once published
func (c *Container) ClearDomainEvents() {
	c.DomainEvents = nil
}
