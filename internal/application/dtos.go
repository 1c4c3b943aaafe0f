package application

import "time"

// CaptureResultDTO reports the downstream EPCIS capture outcome. Queued means
// the capture failed transiently and was handed to the retrier; the business
// operation itself has already succeeded.
type CaptureResultDTO struct {
	CorrelationID string   `json:"correlationId"`
	EventIDs      []string `json:"eventIds"`
	Captured      bool     `json:"captured"`
	Queued        bool     `json:"queued"`
	Warning       string   `json:"warning,omitempty"`
}

// ContainerDTO represents a packaging container in responses
type ContainerDTO struct {
	ContainerID   string     `json:"containerId"`
	SSCC          string     `json:"sscc,omitempty"`
	PreviousSSCCs []string   `json:"previousSsccs,omitempty"`
	EPC           string     `json:"epc,omitempty"`
	Level         string     `json:"level"`
	ShipmentID    string     `json:"shipmentId,omitempty"`
	CaseNumber    int        `json:"caseNumber,omitempty"`
	State         string     `json:"state"`
	ParentID      string     `json:"parentId,omitempty"`
	ChildIDs      []string   `json:"childIds,omitempty"`
	Quantity      int        `json:"quantity"`
	Capacity      int        `json:"capacity,omitempty"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	PackedAt      *time.Time `json:"packedAt,omitempty"`
	UnpackedAt    *time.Time `json:"unpackedAt,omitempty"`
}

// HierarchyChangeDTO represents one append-only hierarchy audit record
type HierarchyChangeDTO struct {
	ChangeID    string    `json:"changeId"`
	Operation   string    `json:"operation"`
	ContainerID string    `json:"containerId"`
	OldSSCC     string    `json:"oldSscc,omitempty"`
	NewSSCC     string    `json:"newSscc,omitempty"`
	ParentSSCC  string    `json:"parentSscc,omitempty"`
	ShipmentID  string    `json:"shipmentId,omitempty"`
	ChildIDs    []string  `json:"childIds,omitempty"`
	Actor       string    `json:"actor"`
	Reason      string    `json:"reason,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// HierarchyMutationDTO is the outcome of one pack/unpack/repack operation
type HierarchyMutationDTO struct {
	Container *ContainerDTO       `json:"container"`
	Children  []ContainerDTO      `json:"children,omitempty"`
	Change    *HierarchyChangeDTO `json:"change"`
	Capture   CaptureResultDTO    `json:"capture"`
}

// ContainerDetailDTO is a container with its change history
type ContainerDetailDTO struct {
	Container *ContainerDTO  `json:"container"`
	Children  []ContainerDTO `json:"children,omitempty"`
}

// PendingCaptureDTO represents a capture awaiting retry or given up on
type PendingCaptureDTO struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	EventIDs      []string  `json:"eventIds"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"maxAttempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
