package hierarchy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/internal/gs1"
)

// fakeRepository is an in-memory Repository for engine tests
type fakeRepository struct {
	mu         sync.Mutex
	containers map[string]*Container
	changes    []*HierarchyChange
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{containers: make(map[string]*Container)}
}

func (r *fakeRepository) FindContainer(_ context.Context, id string) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	if !ok {
		return nil, ErrContainerNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *fakeRepository) FindBySSCC(_ context.Context, sscc string) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.containers {
		if c.SSCC == sscc {
			clone := *c
			return &clone, nil
		}
	}
	return nil, ErrContainerNotFound
}

func (r *fakeRepository) FindChildren(_ context.Context, id string) ([]*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var children []*Container
	for _, c := range r.containers {
		if c.ParentID == id {
			clone := *c
			children = append(children, &clone)
		}
	}
	return children, nil
}

func (r *fakeRepository) FindByCaseNumberRange(_ context.Context, shipmentID string, start, end int) ([]*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cases []*Container
	for _, c := range r.containers {
		if c.ShipmentID == shipmentID && c.CaseNumber >= start && c.CaseNumber <= end {
			clone := *c
			cases = append(cases, &clone)
		}
	}
	return cases, nil
}

func (r *fakeRepository) SaveContainer(_ context.Context, c *Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *c
	r.containers[c.ContainerID] = &clone
	return nil
}

func (r *fakeRepository) SaveContainers(ctx context.Context, cs []*Container) error {
	for _, c := range cs {
		if err := r.SaveContainer(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRepository) AppendChange(_ context.Context, change *HierarchyChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return nil
}

func (r *fakeRepository) ListChanges(_ context.Context, containerID string) ([]*HierarchyChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*HierarchyChange
	for _, ch := range r.changes {
		if ch.ContainerID == containerID {
			out = append(out, ch)
		}
	}
	return out, nil
}

// fakeAllocator issues sequential valid SSCCs
type fakeAllocator struct {
	mu   sync.Mutex
	next int64
}

func (a *fakeAllocator) NextSSCC(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return gs1.BuildSSCC("3", "4012345", fmt.Sprintf("%09d", a.next))
}

func newTestEngine() (*Engine, *fakeRepository) {
	repo := newFakeRepository()
	engine := NewEngine(repo, &fakeAllocator{})
	engine.lockBackoff = time.Millisecond
	return engine, repo
}

func seedCase(t *testing.T, repo *fakeRepository, id, shipmentID string, caseNumber int) {
	t.Helper()
	c := NewContainer(id, LevelCase)
	c.ShipmentID = shipmentID
	c.CaseNumber = caseNumber
	c.EPC = fmt.Sprintf("urn:epc:id:sgtin:4012345.1234567.%s", id)
	require.NoError(t, repo.SaveContainer(context.Background(), c))
}

func packCases(t *testing.T, engine *Engine, repo *fakeRepository, ids ...string) *MutationResult {
	t.Helper()
	for i, id := range ids {
		seedCase(t, repo, id, "ship-500", 100+i)
	}
	res, err := engine.Pack(context.Background(), PackCommand{
		ShipmentID:  "ship-500",
		ChildIDs:    ids,
		Actor:       "user-42",
		FacilityGLN: "1234567890128",
	})
	require.NoError(t, err)
	return res
}

func TestPack(t *testing.T) {
	engine, repo := newTestEngine()
	res := packCases(t, engine, repo, "case-101", "case-102", "case-103")

	require.NotNil(t, res.Container)
	assert.Len(t, res.Container.SSCC, gs1.SSCCLength)
	assert.NoError(t, gs1.ValidateSSCC(res.Container.SSCC))
	assert.Equal(t, StatePacked, res.Container.State)
	assert.Len(t, res.Container.ChildIDs, 3)

	// Every case now reports the new container as its live parent
	for _, id := range []string{"case-101", "case-102", "case-103"} {
		child, err := repo.FindContainer(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, res.Container.ContainerID, child.ParentID)
		assert.Equal(t, StatePacked, child.State)
	}

	require.Len(t, res.EPCISEvents, 1)
	ev := res.EPCISEvents[0]
	assert.Equal(t, epcis.TypeAggregationEvent, ev.Type)
	assert.Equal(t, epcis.ActionAdd, ev.Action)
	assert.Len(t, ev.ChildEPCs, 3)

	require.NotNil(t, res.Change)
	assert.Equal(t, OperationPack, res.Change.Operation)
	assert.Equal(t, res.Container.SSCC, res.Change.NewSSCC)

	require.Len(t, res.DomainEvents, 1)
	assert.Equal(t, "trace.hierarchy.container-packed", res.DomainEvents[0].EventType())
}

func TestPackEmptyChildSet(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.Pack(context.Background(), PackCommand{ShipmentID: "ship-500"})
	assert.ErrorIs(t, err, ErrEmptyChildSet)
}

func TestPackUnknownChild(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.Pack(context.Background(), PackCommand{
		ShipmentID: "ship-500",
		ChildIDs:   []string{"missing"},
	})
	assert.ErrorIs(t, err, ErrUnknownPackage)
}

func TestPackChildAlreadyPacked(t *testing.T) {
	engine, repo := newTestEngine()
	packCases(t, engine, repo, "case-201")

	seedCase(t, repo, "case-202", "ship-500", 202)
	_, err := engine.Pack(context.Background(), PackCommand{
		ShipmentID: "ship-500",
		ChildIDs:   []string{"case-201", "case-202"},
	})
	assert.ErrorIs(t, err, ErrChildAlreadyPacked)
}

func TestPackCapacityExceeded(t *testing.T) {
	engine, repo := newTestEngine()
	seedCase(t, repo, "case-301", "ship-500", 301)
	seedCase(t, repo, "case-302", "ship-500", 302)

	_, err := engine.Pack(context.Background(), PackCommand{
		ShipmentID: "ship-500",
		ChildIDs:   []string{"case-301", "case-302"},
		Capacity:   1,
	})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestPackLite(t *testing.T) {
	engine, repo := newTestEngine()
	for i := 1; i <= 5; i++ {
		seedCase(t, repo, fmt.Sprintf("case-%d", i), "ship-600", i)
	}

	res, err := engine.PackLite(context.Background(), PackLiteCommand{
		ShipmentID:      "ship-600",
		StartCaseNumber: 2,
		EndCaseNumber:   4,
		Actor:           "user-42",
		FacilityGLN:     "1234567890128",
	})
	require.NoError(t, err)
	assert.Len(t, res.Container.ChildIDs, 3)
}

func TestPackLiteInvalidRange(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.PackLite(context.Background(), PackLiteCommand{
		ShipmentID:      "ship-600",
		StartCaseNumber: 5,
		EndCaseNumber:   2,
	})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	engine, repo := newTestEngine()
	packed := packCases(t, engine, repo, "case-401", "case-402")

	res, err := engine.Unpack(context.Background(), UnpackCommand{
		PackageID:   packed.Container.ContainerID,
		Actor:       "user-42",
		FacilityGLN: "1234567890128",
		Reason:      "inspection",
	})
	require.NoError(t, err)

	// Round-trip law: every child back to UNASSIGNED, no live parent
	for _, id := range []string{"case-401", "case-402"} {
		child, ferr := repo.FindContainer(context.Background(), id)
		require.NoError(t, ferr)
		assert.Equal(t, StateUnassigned, child.State)
		assert.Empty(t, child.ParentID)
	}

	// Container retained as an empty historical entity
	assert.Equal(t, StateUnpacked, res.Container.State)
	assert.Empty(t, res.Container.ChildIDs)
	assert.Equal(t, packed.Container.SSCC, res.Container.SSCC)

	require.Len(t, res.EPCISEvents, 1)
	ev := res.EPCISEvents[0]
	assert.Equal(t, epcis.ActionDelete, ev.Action)
	wantURN, err := gs1.BuildSSCCURN(packed.Container.SSCC)
	require.NoError(t, err)
	assert.Equal(t, wantURN, ev.ParentID)
}

func TestUnpackRequiresPackedState(t *testing.T) {
	engine, repo := newTestEngine()
	packed := packCases(t, engine, repo, "case-501")

	_, err := engine.Unpack(context.Background(), UnpackCommand{
		PackageID: packed.Container.ContainerID,
		Reason:    "inspection",
	})
	require.NoError(t, err)

	_, err = engine.Unpack(context.Background(), UnpackCommand{
		PackageID: packed.Container.ContainerID,
		Reason:    "again",
	})
	assert.ErrorIs(t, err, ErrNotPacked)
}

func TestUnpackUnknownPackage(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.Unpack(context.Background(), UnpackCommand{PackageID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownPackage)
}

func TestRepack(t *testing.T) {
	engine, repo := newTestEngine()
	packed := packCases(t, engine, repo, "case-601", "case-602")
	oldSSCC := packed.Container.SSCC

	res, err := engine.Repack(context.Background(), RepackCommand{
		PackageID:     packed.Container.ContainerID,
		NewShipmentID: "ship-900",
		Actor:         "user-42",
		FacilityGLN:   "1234567890128",
		Reason:        "route change",
	})
	require.NoError(t, err)

	// Same physical container, new code, child set preserved
	assert.Equal(t, packed.Container.ContainerID, res.Container.ContainerID)
	assert.NotEqual(t, oldSSCC, res.Container.SSCC)
	assert.Contains(t, res.Container.PreviousSSCCs, oldSSCC)
	assert.Equal(t, StateRepacked, res.Container.State)
	assert.Equal(t, "ship-900", res.Container.ShipmentID)
	assert.Equal(t, len(packed.Container.ChildIDs), len(res.Container.ChildIDs))

	// DELETE against the old identity, ADD against the new
	require.Len(t, res.EPCISEvents, 2)
	assert.Equal(t, epcis.ActionDelete, res.EPCISEvents[0].Action)
	assert.Equal(t, epcis.ActionAdd, res.EPCISEvents[1].Action)
	assert.NotEqual(t, res.EPCISEvents[0].ParentID, res.EPCISEvents[1].ParentID)

	// One change record carrying both codes
	require.NotNil(t, res.Change)
	assert.Equal(t, oldSSCC, res.Change.OldSSCC)
	assert.Equal(t, res.Container.SSCC, res.Change.NewSSCC)
}

func TestRepackSameShipment(t *testing.T) {
	engine, repo := newTestEngine()
	packed := packCases(t, engine, repo, "case-701")

	_, err := engine.Repack(context.Background(), RepackCommand{
		PackageID:     packed.Container.ContainerID,
		NewShipmentID: "ship-500",
	})
	assert.ErrorIs(t, err, ErrSameShipment)
}

func TestRepackUnknownPackage(t *testing.T) {
	engine, _ := newTestEngine()
	_, err := engine.Repack(context.Background(), RepackCommand{
		PackageID:     "missing",
		NewShipmentID: "ship-900",
	})
	assert.ErrorIs(t, err, ErrUnknownPackage)
}

func TestOneChangeRecordPerMutation(t *testing.T) {
	engine, repo := newTestEngine()
	packed := packCases(t, engine, repo, "case-801", "case-802")

	_, err := engine.Repack(context.Background(), RepackCommand{
		PackageID:     packed.Container.ContainerID,
		NewShipmentID: "ship-901",
	})
	require.NoError(t, err)

	_, err = engine.Unpack(context.Background(), UnpackCommand{
		PackageID: packed.Container.ContainerID,
		Reason:    "inspection",
	})
	require.NoError(t, err)

	changes, err := repo.ListChanges(context.Background(), packed.Container.ContainerID)
	require.NoError(t, err)
	assert.Len(t, changes, 3)
	assert.Equal(t, OperationPack, changes[0].Operation)
	assert.Equal(t, OperationRepack, changes[1].Operation)
	assert.Equal(t, OperationUnpack, changes[2].Operation)
}

func TestLockContention(t *testing.T) {
	engine, repo := newTestEngine()
	seedCase(t, repo, "case-901", "ship-500", 901)

	// Hold the child's lock so the pack cannot acquire it
	require.True(t, engine.locks.tryAcquire([]string{"case-901"}))
	defer engine.locks.release([]string{"case-901"})

	_, err := engine.Pack(context.Background(), PackCommand{
		ShipmentID: "ship-500",
		ChildIDs:   []string{"case-901"},
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)
}
