package hierarchy

import (
	"context"
	"errors"
)

// ErrContainerNotFound is returned by repositories when no container matches
var ErrContainerNotFound = errors.New("container not found")

// Repository defines the persistence collaborator for containers and their
// change history. Implementations are assumed transactional per single
// hierarchy operation.
type Repository interface {
	FindContainer(ctx context.Context, containerID string) (*Container, error)
	FindBySSCC(ctx context.Context, sscc string) (*Container, error)
	FindChildren(ctx context.Context, containerID string) ([]*Container, error)
	FindByCaseNumberRange(ctx context.Context, shipmentID string, start, end int) ([]*Container, error)
	SaveContainer(ctx context.Context, container *Container) error
	SaveContainers(ctx context.Context, containers []*Container) error
	AppendChange(ctx context.Context, change *HierarchyChange) error
	ListChanges(ctx context.Context, containerID string) ([]*HierarchyChange, error)
}

// SSCCAllocator hands out fresh serial shipping container codes. Codes are
// never reused, including those of unpacked containers.
type SSCCAllocator interface {
	NextSSCC(ctx context.Context) (string, error)
}
