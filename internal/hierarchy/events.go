package hierarchy

import (
	"context"
	"time"
)

// DomainEvent is the interface for all hierarchy domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// ContainerPackedEvent is published when children are aggregated under a new
// container SSCC
type ContainerPackedEvent struct {
	ContainerID string    `json:"containerId"`
	SSCC        string    `json:"sscc"`
	ShipmentID  string    `json:"shipmentId"`
	ChildCount  int       `json:"childCount"`
	Actor       string    `json:"actor"`
	PackedAt    time.Time `json:"packedAt"`
}

func (e *ContainerPackedEvent) EventType() string     { return "trace.hierarchy.container-packed" }
func (e *ContainerPackedEvent) OccurredAt() time.Time { return e.PackedAt }

// ContainerUnpackedEvent is published when a container is emptied and its
// children return to the pool
type ContainerUnpackedEvent struct {
	ContainerID string    `json:"containerId"`
	SSCC        string    `json:"sscc"`
	ChildCount  int       `json:"childCount"`
	Actor       string    `json:"actor"`
	Reason      string    `json:"reason"`
	UnpackedAt  time.Time `json:"unpackedAt"`
}

func (e *ContainerUnpackedEvent) EventType() string     { return "trace.hierarchy.container-unpacked" }
func (e *ContainerUnpackedEvent) OccurredAt() time.Time { return e.UnpackedAt }

// ContainerRepackedEvent is published when the same physical container moves
// to a new SSCC
type ContainerRepackedEvent struct {
	ContainerID   string    `json:"containerId"`
	OldSSCC       string    `json:"oldSscc"`
	NewSSCC       string    `json:"newSscc"`
	OldShipmentID string    `json:"oldShipmentId"`
	NewShipmentID string    `json:"newShipmentId"`
	Actor         string    `json:"actor"`
	Reason        string    `json:"reason"`
	RepackedAt    time.Time `json:"repackedAt"`
}

func (e *ContainerRepackedEvent) EventType() string     { return "trace.hierarchy.container-repacked" }
func (e *ContainerRepackedEvent) OccurredAt() time.Time { return e.RepackedAt }

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	PublishAll(ctx context.Context, events []DomainEvent) error
}
