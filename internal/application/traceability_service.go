// Package application orchestrates the traceability use cases: business-event
// translation and capture, hierarchy mutations with their EPCIS projection,
// and the read-side pass-through to the EPCIS repository.
package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/internal/gs1"
	"github.com/pharmatrace/traceability-service/internal/hierarchy"
	"github.com/pharmatrace/traceability-service/internal/repository"
	"github.com/pharmatrace/traceability-service/internal/translator"
	"github.com/pharmatrace/traceability-service/pkg/cloudevents"
	"github.com/pharmatrace/traceability-service/pkg/errors"
	"github.com/pharmatrace/traceability-service/pkg/kafka"
	"github.com/pharmatrace/traceability-service/pkg/logging"
	"github.com/pharmatrace/traceability-service/pkg/metrics"
	"github.com/pharmatrace/traceability-service/pkg/resilience"
)

const defaultListLimit = 50

// EventPublisher publishes CloudEvents to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.TraceCloudEvent) error
}

// CaptureQueue accepts documents whose downstream capture failed
type CaptureQueue interface {
	Enqueue(ctx context.Context, doc *epcis.Document, correlationID string, cause error) error
}

// TraceabilityService handles the traceability use cases
type TraceabilityService struct {
	engine        *hierarchy.Engine
	hierarchyRepo hierarchy.Repository
	epcisRepo     repository.EPCISRepository
	queue         CaptureQueue
	captureStore  repository.PendingCaptureStore
	producer      EventPublisher
	eventFactory  *cloudevents.EventFactory
	logger        *logging.Logger
	metrics       *metrics.Metrics
}

// NewTraceabilityService creates a new TraceabilityService
func NewTraceabilityService(
	engine *hierarchy.Engine,
	hierarchyRepo hierarchy.Repository,
	epcisRepo repository.EPCISRepository,
	queue CaptureQueue,
	captureStore repository.PendingCaptureStore,
	producer EventPublisher,
	eventFactory *cloudevents.EventFactory,
	logger *logging.Logger,
	m *metrics.Metrics,
) *TraceabilityService {
	return &TraceabilityService{
		engine:        engine,
		hierarchyRepo: hierarchyRepo,
		epcisRepo:     epcisRepo,
		queue:         queue,
		captureStore:  captureStore,
		producer:      producer,
		eventFactory:  eventFactory,
		logger:        logger,
		metrics:       m,
	}
}

// SubmitFacilityReceived translates and captures a facility goods arrival
func (s *TraceabilityService) SubmitFacilityReceived(ctx context.Context, cmd FacilityReceivedCommand) (*CaptureResultDTO, error) {
	ev, err := toFacilityReceived(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// SubmitFacilityConsumed translates and captures a facility consumption
func (s *TraceabilityService) SubmitFacilityConsumed(ctx context.Context, cmd FacilityConsumedCommand) (*CaptureResultDTO, error) {
	ev, err := toFacilityConsumed(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// SubmitDispense translates and captures an LMIS dispensation
func (s *TraceabilityService) SubmitDispense(ctx context.Context, cmd DispenseCommand) (*CaptureResultDTO, error) {
	ev, err := toDispense(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// SubmitGoodsReceipt translates and captures an LMIS goods received note
func (s *TraceabilityService) SubmitGoodsReceipt(ctx context.Context, cmd GoodsReceiptCommand) (*CaptureResultDTO, error) {
	ev, err := toGoodsReceipt(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// SubmitAdjustment translates and captures a stock adjustment
func (s *TraceabilityService) SubmitAdjustment(ctx context.Context, cmd AdjustmentCommand) (*CaptureResultDTO, error) {
	ev, err := toAdjustment(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// SubmitStockCount translates and captures a physical stock count
func (s *TraceabilityService) SubmitStockCount(ctx context.Context, cmd StockCountCommand) (*CaptureResultDTO, error) {
	ev, err := toStockCount(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// SubmitReturn translates and captures a stock return
func (s *TraceabilityService) SubmitReturn(ctx context.Context, cmd ReturnCommand) (*CaptureResultDTO, error) {
	ev, err := toReturn(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// SubmitRecall translates and captures a recall notification
func (s *TraceabilityService) SubmitRecall(ctx context.Context, cmd RecallCommand) (*CaptureResultDTO, error) {
	ev, err := toRecall(cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}
	return s.submit(ctx, ev)
}

// submit runs the translate-then-capture pipeline shared by every
// business-event use case
func (s *TraceabilityService) submit(ctx context.Context, ev translator.BusinessEvent) (*CaptureResultDTO, error) {
	kind := string(ev.Kind())

	events, err := translator.Translate(ev)
	if err != nil {
		s.metrics.RecordTranslationFailure(kind, translationFailureReason(err))
		return nil, mapTranslationError(err)
	}
	for _, epcisEvent := range events {
		s.metrics.RecordEventTranslated(kind, epcisEvent.Type)
	}

	doc := epcis.NewDocument(events...)
	result, err := s.capture(ctx, doc, correlationID(ev))
	if err != nil {
		return nil, err
	}

	s.logger.Event(ctx, "trace.event-translated", map[string]any{
		"businessEventType": kind,
		"correlationId":     result.CorrelationID,
		"epcisEventCount":   len(events),
		"captured":          result.Captured,
		"queued":            result.Queued,
	})
	return result, nil
}

// PackContainer aggregates cases under a freshly allocated SSCC
func (s *TraceabilityService) PackContainer(ctx context.Context, cmd PackCommand) (*HierarchyMutationDTO, error) {
	result, err := s.engine.Pack(ctx, hierarchy.PackCommand{
		ShipmentID:  cmd.ShipmentID,
		ChildIDs:    cmd.CaseIDs,
		Capacity:    cmd.Capacity,
		Actor:       cmd.Actor,
		FacilityGLN: cmd.FacilityGLN,
		Notes:       cmd.Notes,
	})
	return s.finishMutation(ctx, hierarchy.OperationPack, cmd.FacilityGLN, result, err)
}

// PackContainerLite packs a contiguous case-number range within a shipment
func (s *TraceabilityService) PackContainerLite(ctx context.Context, cmd PackLiteCommand) (*HierarchyMutationDTO, error) {
	result, err := s.engine.PackLite(ctx, hierarchy.PackLiteCommand{
		ShipmentID:      cmd.ShipmentID,
		StartCaseNumber: cmd.StartCaseNumber,
		EndCaseNumber:   cmd.EndCaseNumber,
		Capacity:        cmd.Capacity,
		Actor:           cmd.Actor,
		FacilityGLN:     cmd.FacilityGLN,
		Notes:           cmd.Notes,
	})
	return s.finishMutation(ctx, hierarchy.OperationPack, cmd.FacilityGLN, result, err)
}

// UnpackContainer empties a packed container back to the pool
func (s *TraceabilityService) UnpackContainer(ctx context.Context, cmd UnpackCommand) (*HierarchyMutationDTO, error) {
	result, err := s.engine.Unpack(ctx, hierarchy.UnpackCommand{
		PackageID:   cmd.PackageID,
		Actor:       cmd.Actor,
		FacilityGLN: cmd.FacilityGLN,
		Reason:      cmd.Reason,
	})
	return s.finishMutation(ctx, hierarchy.OperationUnpack, cmd.FacilityGLN, result, err)
}

// RepackContainer moves a packed container onto a new SSCC under a new
// shipment
func (s *TraceabilityService) RepackContainer(ctx context.Context, cmd RepackCommand) (*HierarchyMutationDTO, error) {
	result, err := s.engine.Repack(ctx, hierarchy.RepackCommand{
		PackageID:     cmd.PackageID,
		NewShipmentID: cmd.NewShipmentID,
		Actor:         cmd.Actor,
		FacilityGLN:   cmd.FacilityGLN,
		Reason:        cmd.Reason,
	})
	return s.finishMutation(ctx, hierarchy.OperationRepack, cmd.FacilityGLN, result, err)
}

// finishMutation handles the shared tail of every hierarchy operation: error
// mapping, metrics, audit publishing and the EPCIS capture of the projection.
// The mutation is already durable when this runs; capture failure degrades to
// a queued result, never a rollback.
func (s *TraceabilityService) finishMutation(ctx context.Context, op hierarchy.Operation, facilityGLN string, result *hierarchy.MutationResult, err error) (*HierarchyMutationDTO, error) {
	if err != nil {
		s.metrics.RecordHierarchyMutation(string(op), false)
		if stderrors.Is(err, hierarchy.ErrConcurrentModification) {
			s.metrics.RecordLockContention()
		}
		return nil, mapHierarchyError(err)
	}
	s.metrics.RecordHierarchyMutation(string(op), true)

	for _, epcisEvent := range result.EPCISEvents {
		s.metrics.RecordEventTranslated(string(op), epcisEvent.Type)
	}

	s.publishHierarchyEvents(ctx, result, facilityGLN)

	capture, err := s.capture(ctx, epcis.NewDocument(result.EPCISEvents...), result.Change.ChangeID)
	if err != nil {
		return nil, err
	}

	s.logger.Event(ctx, "trace.hierarchy-mutated", map[string]any{
		"operation":   string(op),
		"containerId": result.Container.ContainerID,
		"changeId":    result.Change.ChangeID,
		"sscc":        result.Container.SSCC,
		"childCount":  len(result.Children),
		"captured":    capture.Captured,
	})

	return &HierarchyMutationDTO{
		Container: ToContainerDTO(result.Container),
		Children:  ToContainerDTOs(result.Children),
		Change:    ToHierarchyChangeDTO(result.Change),
		Capture:   *capture,
	}, nil
}

// capture submits a document downstream. A failed capture is queued and
// reported as a success-with-warning; only a failure to even queue surfaces
// as an error.
func (s *TraceabilityService) capture(ctx context.Context, doc *epcis.Document, correlation string) (*CaptureResultDTO, error) {
	result := &CaptureResultDTO{
		CorrelationID: correlation,
		EventIDs:      doc.EventIDs(),
	}

	start := time.Now()
	_, err := s.epcisRepo.CaptureEvent(ctx, doc)
	s.metrics.RecordCapture(err == nil, time.Since(start))

	if err == nil {
		result.Captured = true
		s.publishCaptureAudit(ctx, "trace.epcis.capture-completed", result)
		return result, nil
	}

	if qErr := s.queue.Enqueue(ctx, doc, correlation, err); qErr != nil {
		s.logger.WithContext(ctx).WithError(qErr).Error("Failed to queue capture after downstream failure",
			"correlationId", correlation)
		return nil, errors.ErrServiceUnavailable("EPCIS repository").Wrap(err)
	}

	if stderrors.Is(err, repository.ErrNotImplemented) {
		result.Warning = "capture is not supported by the configured repository; surfaced to the operator queue"
		s.publishCaptureAudit(ctx, "trace.epcis.capture-unsupported", result)
		s.publishOperatorAlert(ctx, result)
	} else {
		result.Queued = true
		result.Warning = "EPCIS capture failed; queued for retry"
		s.publishCaptureAudit(ctx, "trace.epcis.capture-queued", result)
	}
	s.logger.WithContext(ctx).WithError(err).Warn("EPCIS capture deferred", "correlationId", correlation)
	return result, nil
}

// GetContainer retrieves a container and its current children
func (s *TraceabilityService) GetContainer(ctx context.Context, query GetContainerQuery) (*ContainerDetailDTO, error) {
	container, err := s.hierarchyRepo.FindContainer(ctx, query.ContainerID)
	if err != nil {
		if stderrors.Is(err, hierarchy.ErrContainerNotFound) {
			return nil, errors.ErrNotFoundWithID("container", query.ContainerID)
		}
		return nil, fmt.Errorf("failed to get container: %w", err)
	}

	detail := &ContainerDetailDTO{Container: ToContainerDTO(container)}
	if len(container.ChildIDs) > 0 {
		children, err := s.hierarchyRepo.FindChildren(ctx, container.ContainerID)
		if err != nil {
			return nil, fmt.Errorf("failed to get container children: %w", err)
		}
		detail.Children = ToContainerDTOs(children)
	}
	return detail, nil
}

// GetContainerHistory retrieves the append-only change trail of a container
func (s *TraceabilityService) GetContainerHistory(ctx context.Context, query GetContainerQuery) ([]HierarchyChangeDTO, error) {
	if _, err := s.hierarchyRepo.FindContainer(ctx, query.ContainerID); err != nil {
		if stderrors.Is(err, hierarchy.ErrContainerNotFound) {
			return nil, errors.ErrNotFoundWithID("container", query.ContainerID)
		}
		return nil, fmt.Errorf("failed to get container: %w", err)
	}

	changes, err := s.hierarchyRepo.ListChanges(ctx, query.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get container history: %w", err)
	}
	return ToHierarchyChangeDTOs(changes), nil
}

// QueryEvents proxies a CBV-style query to the EPCIS repository
func (s *TraceabilityService) QueryEvents(ctx context.Context, query EventQuery) (*epcis.QueryDocument, error) {
	filter, err := toQueryFilter(query)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	doc, err := s.epcisRepo.QueryEvents(ctx, filter)
	if err != nil {
		return nil, mapRepositoryError("event query", err)
	}
	return doc, nil
}

// GetEvent retrieves a single EPCIS event by its ID
func (s *TraceabilityService) GetEvent(ctx context.Context, eventID string) (*epcis.Event, error) {
	event, err := s.epcisRepo.GetEventByID(ctx, eventID)
	if err != nil {
		if stderrors.Is(err, repository.ErrEventNotFound) {
			return nil, errors.ErrNotFoundWithID("event", eventID)
		}
		return nil, mapRepositoryError("event lookup", err)
	}
	return event, nil
}

// GetEventsByEPC retrieves the event trail of one EPC
func (s *TraceabilityService) GetEventsByEPC(ctx context.Context, epc string, limit int) ([]*epcis.Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	events, err := s.epcisRepo.GetEventsByEPC(ctx, epc, limit)
	if err != nil {
		return nil, mapRepositoryError("epc trail query", err)
	}
	return events, nil
}

// ListFailedCaptures surfaces captures whose retries are exhausted
func (s *TraceabilityService) ListFailedCaptures(ctx context.Context, query ListFailedCapturesQuery) ([]PendingCaptureDTO, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	captures, err := s.captureStore.ListFailed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed captures: %w", err)
	}
	return ToPendingCaptureDTOs(captures), nil
}

// publishHierarchyEvents fans the mutation's domain events out to Kafka.
// Publishing is best effort; the change log in Mongo is the system of record.
func (s *TraceabilityService) publishHierarchyEvents(ctx context.Context, result *hierarchy.MutationResult, facilityGLN string) {
	for _, domainEvent := range result.DomainEvents {
		ce := s.eventFactory.CreateEventWithCorrelation(ctx,
			domainEvent.EventType(), result.Container.ContainerID, domainEvent, result.Change.ChangeID)
		ce.FacilityGLN = facilityGLN
		ce.ShipmentID = result.Change.ShipmentID

		err := s.producer.PublishEvent(ctx, kafka.Topics.HierarchyEvents, ce)
		s.metrics.RecordKafkaPublish(kafka.Topics.HierarchyEvents, err == nil)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish hierarchy event",
				"eventType", domainEvent.EventType(), "containerId", result.Container.ContainerID)
		}
	}
}

func (s *TraceabilityService) publishCaptureAudit(ctx context.Context, eventType string, result *CaptureResultDTO) {
	ce := s.eventFactory.CreateEventWithCorrelation(ctx, eventType, result.CorrelationID, result, result.CorrelationID)
	err := s.producer.PublishEvent(ctx, kafka.Topics.CaptureEvents, ce)
	s.metrics.RecordKafkaPublish(kafka.Topics.CaptureEvents, err == nil)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish capture audit event",
			"correlationId", result.CorrelationID)
	}
}

func (s *TraceabilityService) publishOperatorAlert(ctx context.Context, result *CaptureResultDTO) {
	ce := s.eventFactory.CreateEventWithCorrelation(ctx, "trace.operator.capture-attention", result.CorrelationID, result, result.CorrelationID)
	err := s.producer.PublishEvent(ctx, kafka.Topics.OperatorAlerts, ce)
	s.metrics.RecordKafkaPublish(kafka.Topics.OperatorAlerts, err == nil)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish operator alert",
			"correlationId", result.CorrelationID)
	}
}

func correlationID(ev translator.BusinessEvent) string {
	switch e := ev.(type) {
	case translator.FacilityReceived:
		return e.CorrelationID
	case translator.FacilityConsumed:
		return e.CorrelationID
	case translator.Dispense:
		return e.CorrelationID
	case translator.GoodsReceipt:
		return e.CorrelationID
	case translator.Adjustment:
		return e.CorrelationID
	case translator.StockCount:
		return e.CorrelationID
	case translator.Return:
		return e.CorrelationID
	case translator.Recall:
		return e.CorrelationID
	default:
		return ""
	}
}

// mapTranslationError folds translator and GS1 failures into the API error
// taxonomy
func mapTranslationError(err error) error {
	switch {
	case stderrors.Is(err, translator.ErrMissingCorrelationID),
		stderrors.Is(err, translator.ErrInvalidQuantity),
		stderrors.Is(err, translator.ErrNoOpAdjustment),
		stderrors.Is(err, translator.ErrInvalidDirection),
		stderrors.Is(err, gs1.ErrInvalidInput),
		stderrors.Is(err, gs1.ErrInvalidLength),
		stderrors.Is(err, gs1.ErrInvalidCheckDigit),
		stderrors.Is(err, gs1.ErrInvalidGTIN),
		stderrors.Is(err, gs1.ErrUnsupportedScheme):
		return errors.ErrValidation(err.Error())
	case stderrors.Is(err, translator.ErrUnsupportedEventType):
		return errors.ErrBadRequest(err.Error())
	default:
		return errors.ErrInternal("").Wrap(err)
	}
}

func translationFailureReason(err error) string {
	switch {
	case stderrors.Is(err, translator.ErrMissingCorrelationID):
		return "missing_correlation_id"
	case stderrors.Is(err, translator.ErrInvalidQuantity):
		return "invalid_quantity"
	case stderrors.Is(err, translator.ErrNoOpAdjustment):
		return "noop_adjustment"
	case stderrors.Is(err, translator.ErrInvalidDirection):
		return "invalid_direction"
	case stderrors.Is(err, translator.ErrUnsupportedEventType):
		return "unsupported_event_type"
	default:
		return "invalid_identifier"
	}
}

// mapHierarchyError folds hierarchy failures into the API error taxonomy
func mapHierarchyError(err error) error {
	switch {
	case stderrors.Is(err, hierarchy.ErrUnknownPackage),
		stderrors.Is(err, hierarchy.ErrContainerNotFound):
		return errors.ErrNotFound("package").Wrap(err)
	case stderrors.Is(err, hierarchy.ErrChildAlreadyPacked),
		stderrors.Is(err, hierarchy.ErrConcurrentModification):
		return errors.ErrConflict(err.Error())
	case stderrors.Is(err, hierarchy.ErrEmptyChildSet),
		stderrors.Is(err, hierarchy.ErrInvalidRange),
		stderrors.Is(err, hierarchy.ErrSameShipment),
		stderrors.Is(err, hierarchy.ErrNotPacked),
		stderrors.Is(err, hierarchy.ErrCyclicContainment),
		stderrors.Is(err, hierarchy.ErrCapacityExceeded):
		return errors.ErrValidation(err.Error())
	default:
		return errors.ErrInternal("").Wrap(err)
	}
}

// mapRepositoryError folds read-side repository failures into the API error
// taxonomy
func mapRepositoryError(operation string, err error) error {
	switch {
	case stderrors.Is(err, repository.ErrNotImplemented):
		return errors.ErrNotImplemented(operation)
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return errors.ErrServiceUnavailable("EPCIS repository").Wrap(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout(operation)
	default:
		return errors.ErrServiceUnavailable("EPCIS repository").Wrap(err)
	}
}
