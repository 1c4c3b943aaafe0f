package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/internal/gs1"
	"github.com/pharmatrace/traceability-service/internal/hierarchy"
	"github.com/pharmatrace/traceability-service/internal/repository"
	"github.com/pharmatrace/traceability-service/pkg/cloudevents"
	apperrors "github.com/pharmatrace/traceability-service/pkg/errors"
	"github.com/pharmatrace/traceability-service/pkg/kafka"
	"github.com/pharmatrace/traceability-service/pkg/logging"
	"github.com/pharmatrace/traceability-service/pkg/metrics"
)

const (
	testGLN  = "1234567890128"
	testEPC  = "urn:epc:id:sgtin:2345678.190123.SN100"
	testTime = "2025-06-01T10:30:00+03:00"
)

var testCaller = CallerContext{Actor: "op-7", FacilityGLN: testGLN}

// fakeHierarchyRepo is an in-memory hierarchy.Repository
type fakeHierarchyRepo struct {
	mu         sync.Mutex
	containers map[string]*hierarchy.Container
	changes    []*hierarchy.HierarchyChange
}

func newFakeHierarchyRepo() *fakeHierarchyRepo {
	return &fakeHierarchyRepo{containers: make(map[string]*hierarchy.Container)}
}

func (r *fakeHierarchyRepo) FindContainer(_ context.Context, id string) (*hierarchy.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	if !ok {
		return nil, hierarchy.ErrContainerNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *fakeHierarchyRepo) FindBySSCC(_ context.Context, sscc string) (*hierarchy.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.containers {
		if c.SSCC == sscc {
			clone := *c
			return &clone, nil
		}
	}
	return nil, hierarchy.ErrContainerNotFound
}

func (r *fakeHierarchyRepo) FindChildren(_ context.Context, parentID string) ([]*hierarchy.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var children []*hierarchy.Container
	for _, c := range r.containers {
		if c.ParentID == parentID {
			clone := *c
			children = append(children, &clone)
		}
	}
	return children, nil
}

func (r *fakeHierarchyRepo) FindByCaseNumberRange(_ context.Context, shipmentID string, start, end int) ([]*hierarchy.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cases []*hierarchy.Container
	for _, c := range r.containers {
		if c.ShipmentID == shipmentID && c.CaseNumber >= start && c.CaseNumber <= end {
			clone := *c
			cases = append(cases, &clone)
		}
	}
	return cases, nil
}

func (r *fakeHierarchyRepo) SaveContainer(_ context.Context, c *hierarchy.Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *c
	r.containers[c.ContainerID] = &clone
	return nil
}

func (r *fakeHierarchyRepo) SaveContainers(ctx context.Context, containers []*hierarchy.Container) error {
	for _, c := range containers {
		if err := r.SaveContainer(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeHierarchyRepo) AppendChange(_ context.Context, change *hierarchy.HierarchyChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return nil
}

func (r *fakeHierarchyRepo) ListChanges(_ context.Context, containerID string) ([]*hierarchy.HierarchyChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*hierarchy.HierarchyChange
	for _, change := range r.changes {
		if change.ContainerID == containerID {
			out = append(out, change)
		}
	}
	return out, nil
}

// fakeAllocator issues sequential SSCCs
type fakeAllocator struct {
	mu  sync.Mutex
	seq int
}

func (a *fakeAllocator) NextSSCC(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return gs1.BuildSSCC("3", "4012345", fmt.Sprintf("%09d", a.seq))
}

// fakeEPCISRepo records captured documents and optionally fails
type fakeEPCISRepo struct {
	mu       sync.Mutex
	captured []*epcis.Document
	failWith error
}

func (r *fakeEPCISRepo) CaptureEvent(_ context.Context, doc *epcis.Document) (*repository.CaptureResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return &repository.CaptureResponse{Success: false, Errors: []string{r.failWith.Error()}}, r.failWith
	}
	r.captured = append(r.captured, doc)
	return &repository.CaptureResponse{Success: true, EventIDs: doc.EventIDs()}, nil
}

func (r *fakeEPCISRepo) CaptureEvents(ctx context.Context, docs []*epcis.Document) []*repository.CaptureResponse {
	out := make([]*repository.CaptureResponse, len(docs))
	for i, doc := range docs {
		out[i], _ = r.CaptureEvent(ctx, doc)
	}
	return out
}

func (r *fakeEPCISRepo) QueryEvents(context.Context, repository.QueryFilter) (*epcis.QueryDocument, error) {
	return &epcis.QueryDocument{Type: "EPCISQueryDocument", SchemaVersion: "2.0"}, nil
}

func (r *fakeEPCISRepo) GetEventByID(context.Context, string) (*epcis.Event, error) {
	return nil, repository.ErrEventNotFound
}

func (r *fakeEPCISRepo) GetEventsByEPC(context.Context, string, int) ([]*epcis.Event, error) {
	return nil, nil
}

func (r *fakeEPCISRepo) HealthCheck(context.Context) bool { return true }

// fakeQueue records enqueued captures
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
	failWith error
}

func (q *fakeQueue) Enqueue(_ context.Context, _ *epcis.Document, correlationID string, _ error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return q.failWith
	}
	q.enqueued = append(q.enqueued, correlationID)
	return nil
}

// fakeCaptureStore serves the ListFailed read path
type fakeCaptureStore struct {
	failed []*repository.PendingCapture
}

func (s *fakeCaptureStore) Enqueue(context.Context, *repository.PendingCapture) error { return nil }
func (s *fakeCaptureStore) FindDue(context.Context, time.Time, int) ([]*repository.PendingCapture, error) {
	return nil, nil
}
func (s *fakeCaptureStore) Update(context.Context, *repository.PendingCapture) error { return nil }
func (s *fakeCaptureStore) Delete(context.Context, string) error                     { return nil }
func (s *fakeCaptureStore) ListFailed(_ context.Context, limit int) ([]*repository.PendingCapture, error) {
	if len(s.failed) > limit {
		return s.failed[:limit], nil
	}
	return s.failed, nil
}
func (s *fakeCaptureStore) CountPending(context.Context) (int64, error) { return 0, nil }

// fakePublisher records published CloudEvents per topic
type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]*cloudevents.TraceCloudEvent
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][]*cloudevents.TraceCloudEvent)}
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic string, event *cloudevents.TraceCloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[topic] = append(p.published[topic], event)
	return nil
}

func (p *fakePublisher) onTopic(topic string) []*cloudevents.TraceCloudEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[topic]
}

type testFixture struct {
	service       *TraceabilityService
	hierarchyRepo *fakeHierarchyRepo
	epcisRepo     *fakeEPCISRepo
	queue         *fakeQueue
	store         *fakeCaptureStore
	publisher     *fakePublisher
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	hierarchyRepo := newFakeHierarchyRepo()
	epcisRepo := &fakeEPCISRepo{}
	queue := &fakeQueue{}
	store := &fakeCaptureStore{}
	publisher := newFakePublisher()

	service := NewTraceabilityService(
		hierarchy.NewEngine(hierarchyRepo, &fakeAllocator{}),
		hierarchyRepo,
		epcisRepo,
		queue,
		store,
		publisher,
		cloudevents.NewEventFactory("/traceability-service"),
		logging.New(logging.DefaultConfig("test")),
		metrics.New(metrics.DefaultConfig("test")),
	)
	return &testFixture{
		service:       service,
		hierarchyRepo: hierarchyRepo,
		epcisRepo:     epcisRepo,
		queue:         queue,
		store:         store,
		publisher:     publisher,
	}
}

func seedCase(t *testing.T, repo *fakeHierarchyRepo, id string, caseNumber int) {
	t.Helper()
	c := hierarchy.NewContainer(id, hierarchy.LevelCase)
	c.ShipmentID = "ship-500"
	c.CaseNumber = caseNumber
	c.EPC = fmt.Sprintf("urn:epc:id:sgtin:2345678.190123.CASE%d", caseNumber)
	require.NoError(t, repo.SaveContainer(context.Background(), c))
}

func TestSubmitDispenseCapturesDocument(t *testing.T) {
	f := newTestFixture(t)

	result, err := f.service.SubmitDispense(context.Background(), DispenseCommand{
		CallerContext:  testCaller,
		DispensationID: "disp-001",
		Timestamp:      testTime,
		Items:          []ItemLineRequest{{EPCs: []string{testEPC}}},
	})
	require.NoError(t, err)

	assert.True(t, result.Captured)
	assert.False(t, result.Queued)
	assert.Equal(t, "disp-001", result.CorrelationID)
	require.Len(t, result.EventIDs, 1)

	require.Len(t, f.epcisRepo.captured, 1)
	event := f.epcisRepo.captured[0].EPCISBody.EventList[0]
	assert.Equal(t, epcis.ActionDelete, event.Action)
	assert.Equal(t, "+03:00", event.EventTimeZoneOffset)

	audits := f.publisher.onTopic(kafka.Topics.CaptureEvents)
	require.Len(t, audits, 1)
	assert.Equal(t, "trace.epcis.capture-completed", audits[0].Type)
}

func TestSubmitRejectsMalformedTimestamp(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.service.SubmitDispense(context.Background(), DispenseCommand{
		CallerContext:  testCaller,
		DispensationID: "disp-002",
		Timestamp:      "01/06/2025 10:30",
		Items:          []ItemLineRequest{{EPCs: []string{testEPC}}},
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
	assert.Empty(t, f.epcisRepo.captured)
}

func TestSubmitNoOpAdjustmentRejected(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.service.SubmitAdjustment(context.Background(), AdjustmentCommand{
		CallerContext:  testCaller,
		EventID:        "adj-001",
		Timestamp:      testTime,
		GTIN:           "12345678901231",
		QuantityChange: 0,
		Reason:         "damaged",
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
}

func TestSubmitCaptureFailureQueuesDocument(t *testing.T) {
	f := newTestFixture(t)
	f.epcisRepo.failWith = errors.New("connection refused")

	result, err := f.service.SubmitGoodsReceipt(context.Background(), GoodsReceiptCommand{
		CallerContext: testCaller,
		GRNID:         "grn-010",
		Timestamp:     testTime,
		Items:         []ItemLineRequest{{GTIN: "12345678901231", Quantity: 40, UOM: "EA", LotNumber: "LOT-9"}},
		PONumber:      "PO-552",
	})
	require.NoError(t, err)

	assert.False(t, result.Captured)
	assert.True(t, result.Queued)
	assert.NotEmpty(t, result.Warning)
	assert.Equal(t, []string{"grn-010"}, f.queue.enqueued)

	audits := f.publisher.onTopic(kafka.Topics.CaptureEvents)
	require.Len(t, audits, 1)
	assert.Equal(t, "trace.epcis.capture-queued", audits[0].Type)
}

func TestSubmitNotImplementedAlertsOperator(t *testing.T) {
	f := newTestFixture(t)
	f.epcisRepo.failWith = fmt.Errorf("tracelink capture: %w", repository.ErrNotImplemented)

	result, err := f.service.SubmitDispense(context.Background(), DispenseCommand{
		CallerContext:  testCaller,
		DispensationID: "disp-003",
		Timestamp:      testTime,
		Items:          []ItemLineRequest{{EPCs: []string{testEPC}}},
	})
	require.NoError(t, err)

	assert.False(t, result.Captured)
	assert.False(t, result.Queued)
	assert.Contains(t, result.Warning, "operator queue")
	assert.Equal(t, []string{"disp-003"}, f.queue.enqueued)

	alerts := f.publisher.onTopic(kafka.Topics.OperatorAlerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "trace.operator.capture-attention", alerts[0].Type)
}

func TestSubmitQueueFailureSurfacesError(t *testing.T) {
	f := newTestFixture(t)
	f.epcisRepo.failWith = errors.New("connection refused")
	f.queue.failWith = errors.New("mongo down")

	_, err := f.service.SubmitDispense(context.Background(), DispenseCommand{
		CallerContext:  testCaller,
		DispensationID: "disp-004",
		Timestamp:      testTime,
		Items:          []ItemLineRequest{{EPCs: []string{testEPC}}},
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeServiceUnavailable, appErr.Code)
}

func TestPackContainerProjectsAndAudits(t *testing.T) {
	f := newTestFixture(t)
	seedCase(t, f.hierarchyRepo, "case-1", 1)
	seedCase(t, f.hierarchyRepo, "case-2", 2)

	result, err := f.service.PackContainer(context.Background(), PackCommand{
		CallerContext: testCaller,
		ShipmentID:    "ship-500",
		CaseIDs:       []string{"case-1", "case-2"},
	})
	require.NoError(t, err)

	require.NotNil(t, result.Container)
	assert.Len(t, result.Container.SSCC, 18)
	assert.NoError(t, gs1.ValidateSSCC(result.Container.SSCC))
	assert.Equal(t, string(hierarchy.StatePacked), result.Container.State)
	assert.Len(t, result.Children, 2)

	require.NotNil(t, result.Change)
	assert.Equal(t, string(hierarchy.OperationPack), result.Change.Operation)
	assert.Equal(t, result.Container.SSCC, result.Change.NewSSCC)

	assert.True(t, result.Capture.Captured)
	require.Len(t, f.epcisRepo.captured, 1)
	aggregation := f.epcisRepo.captured[0].EPCISBody.EventList[0]
	assert.Equal(t, epcis.TypeAggregationEvent, aggregation.Type)
	assert.Equal(t, epcis.ActionAdd, aggregation.Action)

	hierarchyEvents := f.publisher.onTopic(kafka.Topics.HierarchyEvents)
	require.Len(t, hierarchyEvents, 1)
	assert.Equal(t, "trace.hierarchy.container-packed", hierarchyEvents[0].Type)
	assert.Equal(t, result.Change.ChangeID, hierarchyEvents[0].CorrelationID)
	assert.Equal(t, testGLN, hierarchyEvents[0].FacilityGLN)
}

func TestPackContainerUnknownChildMapsToNotFound(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.service.PackContainer(context.Background(), PackCommand{
		CallerContext: testCaller,
		ShipmentID:    "ship-500",
		CaseIDs:       []string{"ghost"},
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestPackContainerCaptureFailureStillMutates(t *testing.T) {
	f := newTestFixture(t)
	f.epcisRepo.failWith = errors.New("epcis outage")
	seedCase(t, f.hierarchyRepo, "case-1", 1)

	result, err := f.service.PackContainer(context.Background(), PackCommand{
		CallerContext: testCaller,
		ShipmentID:    "ship-500",
		CaseIDs:       []string{"case-1"},
	})
	require.NoError(t, err)

	// Hierarchy is durable even though the projection is queued
	assert.True(t, result.Capture.Queued)
	saved, findErr := f.hierarchyRepo.FindContainer(context.Background(), result.Container.ContainerID)
	require.NoError(t, findErr)
	assert.Equal(t, hierarchy.StatePacked, saved.State)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, result.Change.ChangeID, f.queue.enqueued[0])
}

func TestRepackSameShipmentMapsToValidation(t *testing.T) {
	f := newTestFixture(t)
	seedCase(t, f.hierarchyRepo, "case-1", 1)

	packed, err := f.service.PackContainer(context.Background(), PackCommand{
		CallerContext: testCaller,
		ShipmentID:    "ship-500",
		CaseIDs:       []string{"case-1"},
	})
	require.NoError(t, err)

	_, err = f.service.RepackContainer(context.Background(), RepackCommand{
		CallerContext: testCaller,
		PackageID:     packed.Container.ContainerID,
		NewShipmentID: "ship-500",
		Reason:        "route change",
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
}

func TestGetContainerWithChildren(t *testing.T) {
	f := newTestFixture(t)
	seedCase(t, f.hierarchyRepo, "case-1", 1)
	seedCase(t, f.hierarchyRepo, "case-2", 2)

	packed, err := f.service.PackContainerLite(context.Background(), PackLiteCommand{
		CallerContext:   testCaller,
		ShipmentID:      "ship-500",
		StartCaseNumber: 1,
		EndCaseNumber:   2,
	})
	require.NoError(t, err)

	detail, err := f.service.GetContainer(context.Background(), GetContainerQuery{ContainerID: packed.Container.ContainerID})
	require.NoError(t, err)
	assert.Equal(t, packed.Container.SSCC, detail.Container.SSCC)
	assert.Len(t, detail.Children, 2)

	history, err := f.service.GetContainerHistory(context.Background(), GetContainerQuery{ContainerID: packed.Container.ContainerID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(hierarchy.OperationPack), history[0].Operation)
}

func TestGetContainerNotFound(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.service.GetContainer(context.Background(), GetContainerQuery{ContainerID: "ghost"})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestQueryEventsRejectsMalformedTimeBounds(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.service.QueryEvents(context.Background(), EventQuery{From: "yesterday"})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)

	doc, err := f.service.QueryEvents(context.Background(), EventQuery{BizStep: "packing"})
	require.NoError(t, err)
	assert.Equal(t, "EPCISQueryDocument", doc.Type)
}

func TestListFailedCaptures(t *testing.T) {
	f := newTestFixture(t)
	ev := epcis.NewObjectEvent(epcis.ActionAdd, time.Now().UTC(), "+00:00")
	f.store.failed = []*repository.PendingCapture{{
		ID:            "cap-1",
		Document:      epcis.NewDocument(ev),
		CorrelationID: "grn-99",
		Attempts:      6,
		MaxAttempts:   6,
		LastError:     "connection refused",
		Status:        repository.CaptureFailed,
	}}

	failed, err := f.service.ListFailedCaptures(context.Background(), ListFailedCapturesQuery{})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "grn-99", failed[0].CorrelationID)
	assert.Equal(t, string(repository.CaptureFailed), failed[0].Status)
	assert.Equal(t, []string{ev.EventID}, failed[0].EventIDs)
}
