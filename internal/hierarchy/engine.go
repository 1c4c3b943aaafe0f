package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/internal/gs1"
	"github.com/pharmatrace/traceability-service/internal/translator"
)

const (
	defaultLockAttempts = 3
	defaultLockBackoff  = 25 * time.Millisecond
)

// Engine executes hierarchy mutations. Mutations on the same container (and
// transitively its children) are mutually exclusive; hierarchy state is
// persisted before the caller captures the returned EPCIS events, and a
// downstream capture failure never rolls a mutation back.
type Engine struct {
	repo         Repository
	allocator    SSCCAllocator
	locks        *lockTable
	lockAttempts int
	lockBackoff  time.Duration
}

// NewEngine creates a hierarchy engine over the given persistence
// collaborator and SSCC allocator
func NewEngine(repo Repository, allocator SSCCAllocator) *Engine {
	return &Engine{
		repo:         repo,
		allocator:    allocator,
		locks:        newLockTable(),
		lockAttempts: defaultLockAttempts,
		lockBackoff:  defaultLockBackoff,
	}
}

// PackCommand aggregates children under a new container
type PackCommand struct {
	ShipmentID  string
	ChildIDs    []string
	Capacity    int
	Actor       string
	FacilityGLN string
	Notes       string
}

// PackLiteCommand packs a contiguous case-number range instead of an
// explicit child list
type PackLiteCommand struct {
	ShipmentID      string
	StartCaseNumber int
	EndCaseNumber   int
	Capacity        int
	Actor           string
	FacilityGLN     string
	Notes           string
}

// UnpackCommand empties a packed container
type UnpackCommand struct {
	PackageID   string
	Actor       string
	FacilityGLN string
	Reason      string
}

// RepackCommand moves a packed container to a new SSCC under a new shipment
type RepackCommand struct {
	PackageID     string
	NewShipmentID string
	Actor         string
	FacilityGLN   string
	Reason        string
}

// MutationResult is the outcome of one hierarchy mutation: the updated
// aggregate state, the single audit record, and the EPCIS events the caller
// must capture downstream.
type MutationResult struct {
	Container    *Container
	Children     []*Container
	Change       *HierarchyChange
	EPCISEvents  []*epcis.Event
	DomainEvents []DomainEvent
}

// Pack validates the child set, allocates a fresh SSCC, creates the
// container and transitions every child under it
func (e *Engine) Pack(ctx context.Context, cmd PackCommand) (*MutationResult, error) {
	if len(cmd.ChildIDs) == 0 {
		return nil, ErrEmptyChildSet
	}
	return e.pack(ctx, cmd, cmd.ChildIDs)
}

// PackLite packs the cases whose case numbers fall in [start, end] within
// the shipment
func (e *Engine) PackLite(ctx context.Context, cmd PackLiteCommand) (*MutationResult, error) {
	if cmd.EndCaseNumber < cmd.StartCaseNumber {
		return nil, fmt.Errorf("%w: %d..%d", ErrInvalidRange, cmd.StartCaseNumber, cmd.EndCaseNumber)
	}

	cases, err := e.repo.FindByCaseNumberRange(ctx, cmd.ShipmentID, cmd.StartCaseNumber, cmd.EndCaseNumber)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, ErrEmptyChildSet
	}

	childIDs := make([]string, 0, len(cases))
	for _, c := range cases {
		childIDs = append(childIDs, c.ContainerID)
	}
	return e.pack(ctx, PackCommand{
		ShipmentID:  cmd.ShipmentID,
		Capacity:    cmd.Capacity,
		Actor:       cmd.Actor,
		FacilityGLN: cmd.FacilityGLN,
		Notes:       cmd.Notes,
	}, childIDs)
}

func (e *Engine) pack(ctx context.Context, cmd PackCommand, childIDs []string) (*MutationResult, error) {
	if !e.locks.acquireWithRetry(childIDs, e.lockAttempts, e.lockBackoff) {
		return nil, ErrConcurrentModification
	}
	defer e.locks.release(childIDs)

	containerID := uuid.New().String()
	children := make([]*Container, 0, len(childIDs))
	totalQuantity := 0
	for _, id := range childIDs {
		child, err := e.repo.FindContainer(ctx, id)
		if err != nil {
			if errors.Is(err, ErrContainerNotFound) {
				return nil, fmt.Errorf("%w: child %s", ErrUnknownPackage, id)
			}
			return nil, err
		}
		if !child.Packable() {
			return nil, fmt.Errorf("%w: %s", ErrChildAlreadyPacked, id)
		}
		if err := e.ensureNoCycle(ctx, containerID, child); err != nil {
			return nil, err
		}
		children = append(children, child)
		totalQuantity += childQuantity(child)
	}
	if cmd.Capacity > 0 && totalQuantity > cmd.Capacity {
		return nil, fmt.Errorf("%w: %d units in a container of %d", ErrCapacityExceeded, totalQuantity, cmd.Capacity)
	}

	sscc, ssccURN, err := e.allocate(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	parent := NewContainer(containerID, LevelPackage)
	parent.SSCC = sscc
	parent.EPC = ssccURN
	parent.ShipmentID = cmd.ShipmentID
	parent.Capacity = cmd.Capacity
	parent.Quantity = totalQuantity
	parent.State = StatePacked
	parent.PackedAt = &now
	parent.UpdatedAt = now

	childEPCs := make([]string, 0, len(children))
	for _, child := range children {
		child.attachTo(parent.ContainerID, now)
		parent.ChildIDs = append(parent.ChildIDs, child.ContainerID)
		if epc := child.ChildEPC(); epc != "" {
			childEPCs = append(childEPCs, epc)
		}
	}

	change := NewHierarchyChange(OperationPack, parent.ContainerID, cmd.Actor)
	change.NewSSCC = sscc
	change.ParentSSCC = sscc
	change.ShipmentID = cmd.ShipmentID
	change.ChildIDs = parent.ChildIDs
	change.Notes = cmd.Notes

	events, err := translator.Translate(translator.Pack{
		Header:     e.eventHeader(change.ChangeID, cmd.FacilityGLN, cmd.Actor, now),
		ParentSSCC: sscc,
		ChildEPCs:  childEPCs,
	})
	if err != nil {
		return nil, err
	}

	parent.AddDomainEvent(&ContainerPackedEvent{
		ContainerID: parent.ContainerID,
		SSCC:        sscc,
		ShipmentID:  cmd.ShipmentID,
		ChildCount:  len(children),
		Actor:       cmd.Actor,
		PackedAt:    now,
	})

	if err := e.persist(ctx, parent, children, change); err != nil {
		return nil, err
	}
	return e.result(parent, children, change, events), nil
}

// Unpack detaches every child back to the pool. The container record is
// retained as an empty historical entity so its SSCC is never reused.
func (e *Engine) Unpack(ctx context.Context, cmd UnpackCommand) (*MutationResult, error) {
	container, children, unlock, err := e.loadLocked(ctx, cmd.PackageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !container.IsPacked() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPacked, cmd.PackageID, container.State)
	}

	now := time.Now().UTC()
	childEPCs := make([]string, 0, len(children))
	for _, child := range children {
		child.detach(now)
		if epc := child.ChildEPC(); epc != "" {
			childEPCs = append(childEPCs, epc)
		}
	}

	container.ChildIDs = nil
	container.State = StateUnpacked
	container.UnpackedAt = &now
	container.UpdatedAt = now
	container.Version++

	change := NewHierarchyChange(OperationUnpack, container.ContainerID, cmd.Actor)
	change.OldSSCC = container.SSCC
	change.ParentSSCC = container.SSCC
	change.ShipmentID = container.ShipmentID
	change.Reason = cmd.Reason

	events, err := translator.Translate(translator.Unpack{
		Header:     e.eventHeader(change.ChangeID, cmd.FacilityGLN, cmd.Actor, now),
		ParentSSCC: container.SSCC,
		ChildEPCs:  childEPCs,
	})
	if err != nil {
		return nil, err
	}

	container.AddDomainEvent(&ContainerUnpackedEvent{
		ContainerID: container.ContainerID,
		SSCC:        container.SSCC,
		ChildCount:  len(children),
		Actor:       cmd.Actor,
		Reason:      cmd.Reason,
		UnpackedAt:  now,
	})

	if err := e.persist(ctx, container, children, change); err != nil {
		return nil, err
	}
	return e.result(container, children, change, events), nil
}

// Repack allocates a new SSCC for the same physical container and moves it
// to the new shipment, child set untouched
func (e *Engine) Repack(ctx context.Context, cmd RepackCommand) (*MutationResult, error) {
	container, children, unlock, err := e.loadLocked(ctx, cmd.PackageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if container.ShipmentID == cmd.NewShipmentID {
		return nil, fmt.Errorf("%w: %s", ErrSameShipment, cmd.NewShipmentID)
	}
	if !container.IsPacked() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPacked, cmd.PackageID, container.State)
	}

	now := time.Now().UTC()
	oldSSCC := container.SSCC
	oldShipmentID := container.ShipmentID

	newSSCC, err := e.reassignSSCC(ctx, container, now)
	if err != nil {
		return nil, err
	}
	container.ShipmentID = cmd.NewShipmentID
	container.State = StateRepacked

	change := NewHierarchyChange(OperationRepack, container.ContainerID, cmd.Actor)
	change.OldSSCC = oldSSCC
	change.NewSSCC = newSSCC
	change.ShipmentID = cmd.NewShipmentID
	change.ChildIDs = container.ChildIDs
	change.Reason = cmd.Reason

	childEPCs := make([]string, 0, len(children))
	for _, child := range children {
		if epc := child.ChildEPC(); epc != "" {
			childEPCs = append(childEPCs, epc)
		}
	}
	events, err := translator.Translate(translator.Repack{
		Header:    e.eventHeader(change.ChangeID, cmd.FacilityGLN, cmd.Actor, now),
		OldSSCC:   oldSSCC,
		NewSSCC:   newSSCC,
		ChildEPCs: childEPCs,
	})
	if err != nil {
		return nil, err
	}

	container.AddDomainEvent(&ContainerRepackedEvent{
		ContainerID:   container.ContainerID,
		OldSSCC:       oldSSCC,
		NewSSCC:       newSSCC,
		OldShipmentID: oldShipmentID,
		NewShipmentID: cmd.NewShipmentID,
		Actor:         cmd.Actor,
		Reason:        cmd.Reason,
		RepackedAt:    now,
	})

	if err := e.persist(ctx, container, nil, change); err != nil {
		return nil, err
	}
	return e.result(container, children, change, events), nil
}

// reassignSSCC swaps the container onto a fresh code, retiring the old one
// into PreviousSSCCs. It is deliberately not exposed on its own: every code
// change flows through Repack so the history trail cannot be bypassed.
func (e *Engine) reassignSSCC(ctx context.Context, container *Container, now time.Time) (string, error) {
	sscc, ssccURN, err := e.allocate(ctx)
	if err != nil {
		return "", err
	}
	if container.SSCC != "" {
		container.PreviousSSCCs = append(container.PreviousSSCCs, container.SSCC)
	}
	container.SSCC = sscc
	container.EPC = ssccURN
	container.UpdatedAt = now
	container.Version++
	return sscc, nil
}

// loadLocked resolves a container, locks it together with its current
// children, and re-reads the aggregate under the lock
func (e *Engine) loadLocked(ctx context.Context, packageID string) (*Container, []*Container, func(), error) {
	container, err := e.findContainer(ctx, packageID)
	if err != nil {
		return nil, nil, nil, err
	}

	lockSet := append([]string{container.ContainerID}, container.ChildIDs...)
	if !e.locks.acquireWithRetry(lockSet, e.lockAttempts, e.lockBackoff) {
		return nil, nil, nil, ErrConcurrentModification
	}
	unlock := func() { e.locks.release(lockSet) }

	// Re-read under the lock; the first read raced unlocked
	container, err = e.findContainer(ctx, packageID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	children, err := e.repo.FindChildren(ctx, container.ContainerID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return container, children, unlock, nil
}

func (e *Engine) findContainer(ctx context.Context, id string) (*Container, error) {
	container, err := e.repo.FindContainer(ctx, id)
	if err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
		}
		return nil, err
	}
	return container, nil
}

// ensureNoCycle walks the child's descendants to confirm the would-be parent
// is not among them
func (e *Engine) ensureNoCycle(ctx context.Context, parentID string, child *Container) error {
	if child.ContainerID == parentID {
		return fmt.Errorf("%w: %s", ErrCyclicContainment, parentID)
	}
	pending := append([]string(nil), child.ChildIDs...)
	for len(pending) > 0 {
		id := pending[0]
		pending = pending[1:]
		if id == parentID {
			return fmt.Errorf("%w: %s", ErrCyclicContainment, parentID)
		}
		descendants, err := e.repo.FindChildren(ctx, id)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			pending = append(pending, d.ContainerID)
		}
	}
	return nil
}

func (e *Engine) allocate(ctx context.Context) (sscc, urn string, err error) {
	sscc, err = e.allocator.NextSSCC(ctx)
	if err != nil {
		return "", "", fmt.Errorf("allocate sscc: %w", err)
	}
	urn, err = gs1.BuildSSCCURN(sscc)
	if err != nil {
		return "", "", fmt.Errorf("allocated sscc invalid: %w", err)
	}
	return sscc, urn, nil
}

func (e *Engine) persist(ctx context.Context, container *Container, children []*Container, change *HierarchyChange) error {
	if err := e.repo.SaveContainer(ctx, container); err != nil {
		return err
	}
	if len(children) > 0 {
		if err := e.repo.SaveContainers(ctx, children); err != nil {
			return err
		}
	}
	return e.repo.AppendChange(ctx, change)
}

func (e *Engine) result(container *Container, children []*Container, change *HierarchyChange, events []*epcis.Event) *MutationResult {
	domainEvents := container.DomainEvents
	container.ClearDomainEvents()
	return &MutationResult{
		Container:    container,
		Children:     children,
		Change:       change,
		EPCISEvents:  events,
		DomainEvents: domainEvents,
	}
}

func (e *Engine) eventHeader(correlationID, facilityGLN, actor string, now time.Time) translator.Header {
	return translator.Header{
		CorrelationID:  correlationID,
		Timestamp:      now,
		TimeZoneOffset: now.Format("-07:00"),
		FacilityGLN:    facilityGLN,
		Actor:          actor,
	}
}

func childQuantity(c *Container) int {
	if c.Quantity > 0 {
		return c.Quantity
	}
	return 1
}
