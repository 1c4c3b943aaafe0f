package translator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/internal/gs1"
)

// Translation failures. Validation failures are terminal: the event is
// rejected synchronously and never retried.
var (
	ErrMissingCorrelationID = errors.New("missing correlation identifier")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrNoOpAdjustment       = errors.New("adjustment with zero quantity change")
	ErrInvalidDirection     = errors.New("unknown return direction")
	ErrUnsupportedEventType = errors.New("unsupported business event type")
)

// Extension keys under the event's custom namespace
const (
	extReason           = "reason"
	extQuantityChange   = "quantityChange"
	extSystemQuantity   = "systemQuantity"
	extPhysicalQuantity = "physicalQuantity"
	extRecallClass      = "recallClass"
	extRecallNoticeID   = "recallNoticeId"
	extDirection        = "direction"
	extCorrelationID    = "correlationId"
)

// Translate maps one business event onto zero or more EPCIS events. The
// switch is exhaustive over the sealed variant set; only a value outside the
// union reaches the default arm.
func Translate(ev BusinessEvent) ([]*epcis.Event, error) {
	h := ev.header()
	if strings.TrimSpace(h.CorrelationID) == "" {
		return nil, fmt.Errorf("%w: event_id/correlation id is required", ErrMissingCorrelationID)
	}

	switch e := ev.(type) {
	case FacilityReceived:
		return translateFacilityReceived(e)
	case FacilityConsumed:
		return translateFacilityConsumed(e)
	case Dispense:
		return translateDispense(e)
	case GoodsReceipt:
		return translateGoodsReceipt(e)
	case Adjustment:
		return translateAdjustment(e)
	case StockCount:
		return translateStockCount(e)
	case Return:
		return translateReturn(e)
	case Recall:
		return translateRecall(e)
	case Pack:
		return translatePack(e)
	case Unpack:
		return translateUnpack(e)
	case Repack:
		return translateContainerReassignment(e.Header, e.OldSSCC, e.NewSSCC, e.ChildEPCs, "")
	case ReassignSSCC:
		return translateContainerReassignment(e.Header, e.OldSSCC, e.NewSSCC, e.ChildEPCs, e.Reason)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEventType, ev)
	}
}

func translateFacilityReceived(e FacilityReceived) ([]*epcis.Event, error) {
	ev, err := newFacilityObjectEvent(e.Header, epcis.ActionAdd)
	if err != nil {
		return nil, err
	}
	if err := applyItems(ev, e.Items, false); err != nil {
		return nil, err
	}
	ev.WithBizStep(epcis.BizStepReceiving).WithDisposition(epcis.DispositionActive)
	applyILMD(ev, e.Items)
	return []*epcis.Event{ev}, nil
}

func translateFacilityConsumed(e FacilityConsumed) ([]*epcis.Event, error) {
	ev, err := newFacilityObjectEvent(e.Header, epcis.ActionDelete)
	if err != nil {
		return nil, err
	}
	if err := applyItems(ev, e.Items, false); err != nil {
		return nil, err
	}
	ev.WithBizStep(epcis.BizStepRemoving).WithDisposition(epcis.DispositionUnavailable)
	return []*epcis.Event{ev}, nil
}

func translateDispense(e Dispense) ([]*epcis.Event, error) {
	ev, err := newFacilityObjectEvent(e.Header, epcis.ActionDelete)
	if err != nil {
		return nil, err
	}
	if err := applyItems(ev, e.Items, false); err != nil {
		return nil, err
	}
	ev.WithBizStep(epcis.BizStepDispensing).WithDisposition(epcis.DispositionDispensed)
	return []*epcis.Event{ev}, nil
}

func translateGoodsReceipt(e GoodsReceipt) ([]*epcis.Event, error) {
	ev, err := newFacilityObjectEvent(e.Header, epcis.ActionAdd)
	if err != nil {
		return nil, err
	}
	if err := applyItems(ev, e.Items, false); err != nil {
		return nil, err
	}
	ev.WithBizStep(epcis.BizStepReceiving).WithDisposition(epcis.DispositionActive)
	applyILMD(ev, e.Items)
	if e.PONumber != "" {
		ev.AddBizTransaction(epcis.BizTransactionPO, e.PONumber)
	}
	return []*epcis.Event{ev}, nil
}

func translateAdjustment(e Adjustment) ([]*epcis.Event, error) {
	if e.QuantityChange == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoOpAdjustment, e.CorrelationID)
	}

	action := epcis.ActionAdd
	if e.QuantityChange < 0 {
		action = epcis.ActionDelete
	}
	ev, err := newFacilityObjectEvent(e.Header, action)
	if err != nil {
		return nil, err
	}

	magnitude := e.QuantityChange
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if err := applyItems(ev, []ItemLine{{
		EPCs:      e.EPCs,
		GTIN:      e.GTIN,
		LotNumber: e.LotNumber,
		Quantity:  magnitude,
		UOM:       e.UOM,
	}}, false); err != nil {
		return nil, err
	}

	ev.WithBizStep(epcis.BizStepInspecting).
		WithExtension(extReason, e.Reason).
		WithExtension(extQuantityChange, e.QuantityChange)
	return []*epcis.Event{ev}, nil
}

func translateStockCount(e StockCount) ([]*epcis.Event, error) {
	if e.SystemQuantity < 0 || e.PhysicalQuantity < 0 {
		return nil, fmt.Errorf("%w: stock count quantities cannot be negative", ErrInvalidQuantity)
	}

	ev, err := newFacilityObjectEvent(e.Header, epcis.ActionObserve)
	if err != nil {
		return nil, err
	}
	// Zero physical quantity is a valid out-of-stock confirmation
	if err := applyItems(ev, []ItemLine{{
		EPCs:      e.EPCs,
		GTIN:      e.GTIN,
		LotNumber: e.LotNumber,
		Quantity:  e.PhysicalQuantity,
		UOM:       e.UOM,
	}}, true); err != nil {
		return nil, err
	}

	ev.WithBizStep(epcis.BizStepStockTaking).
		WithExtension(extSystemQuantity, e.SystemQuantity).
		WithExtension(extPhysicalQuantity, e.PhysicalQuantity)
	return []*epcis.Event{ev}, nil
}

func translateReturn(e Return) ([]*epcis.Event, error) {
	var action, bizStep string
	switch e.Direction {
	case DirectionOutbound:
		// Stock leaves the facility back to the supplier
		action, bizStep = epcis.ActionDelete, epcis.BizStepShipping
	case DirectionInbound:
		// Stock comes back from a customer; observed pending inspection
		action, bizStep = epcis.ActionObserve, epcis.BizStepReceiving
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, e.Direction)
	}

	ev, err := newFacilityObjectEvent(e.Header, action)
	if err != nil {
		return nil, err
	}
	if err := applyItems(ev, e.Items, false); err != nil {
		return nil, err
	}
	ev.WithBizStep(bizStep).
		WithDisposition(epcis.DispositionReturned).
		WithExtension(extDirection, string(e.Direction))
	return []*epcis.Event{ev}, nil
}

func translateRecall(e Recall) ([]*epcis.Event, error) {
	if strings.TrimSpace(e.RecallNoticeID) == "" {
		return nil, fmt.Errorf("%w: recall_notice_id is required", ErrMissingCorrelationID)
	}

	action := epcis.ActionObserve
	if e.Removed {
		action = epcis.ActionDelete
	}
	ev, err := newFacilityObjectEvent(e.Header, action)
	if err != nil {
		return nil, err
	}
	if err := applyItems(ev, e.Items, false); err != nil {
		return nil, err
	}
	ev.WithBizStep(epcis.BizStepHolding).
		WithDisposition(epcis.DispositionRecalled).
		WithExtension(extRecallClass, e.RecallClass).
		WithExtension(extRecallNoticeID, e.RecallNoticeID).
		AddBizTransaction(epcis.BizTransactionRecall, e.RecallNoticeID)
	return []*epcis.Event{ev}, nil
}

func translatePack(e Pack) ([]*epcis.Event, error) {
	ev, err := newAggregation(e.Header, epcis.ActionAdd, e.ParentSSCC, e.ChildEPCs)
	if err != nil {
		return nil, err
	}
	ev.WithBizStep(epcis.BizStepPacking).WithDisposition(epcis.DispositionContainerOK)
	return []*epcis.Event{ev}, nil
}

func translateUnpack(e Unpack) ([]*epcis.Event, error) {
	ev, err := newAggregation(e.Header, epcis.ActionDelete, e.ParentSSCC, e.ChildEPCs)
	if err != nil {
		return nil, err
	}
	ev.WithBizStep(epcis.BizStepUnpacking)
	return []*epcis.Event{ev}, nil
}

// translateContainerReassignment produces the DELETE/ADD pair shared by
// Repack and ReassignSSCC. The old SSCC identity is closed and a new one
// opened; a single mutated event would violate event immutability.
func translateContainerReassignment(h Header, oldSSCC, newSSCC string, children []string, reason string) ([]*epcis.Event, error) {
	oldURN, err := containerURN(oldSSCC)
	if err != nil {
		return nil, err
	}

	removed, err := newAggregation(h, epcis.ActionDelete, oldSSCC, children)
	if err != nil {
		return nil, err
	}
	removed.WithBizStep(epcis.BizStepRepackaging)

	added, err := newAggregation(h, epcis.ActionAdd, newSSCC, children)
	if err != nil {
		return nil, err
	}
	added.WithBizStep(epcis.BizStepRepackaging).
		WithDisposition(epcis.DispositionContainerOK).
		AddBizTransaction(epcis.BizTransactionPrevSSCC, oldURN)
	if reason != "" {
		removed.WithExtension(extReason, reason)
		added.WithExtension(extReason, reason)
	}
	return []*epcis.Event{removed, added}, nil
}

// newFacilityObjectEvent builds an ObjectEvent anchored at the reporting
// facility. The facility GLN is a required correlating identifier.
func newFacilityObjectEvent(h Header, action string) (*epcis.Event, error) {
	if strings.TrimSpace(h.FacilityGLN) == "" {
		return nil, fmt.Errorf("%w: facility_gln is required", ErrMissingCorrelationID)
	}
	sgln, err := gs1.BuildSGLN(h.FacilityGLN, "")
	if err != nil {
		return nil, fmt.Errorf("facility gln: %w", err)
	}

	ev := epcis.NewObjectEvent(action, h.Timestamp, h.TimeZoneOffset)
	ev.WithReadPoint(sgln).WithBizLocation(sgln).WithExtension(extCorrelationID, h.CorrelationID)
	return ev, nil
}

func newAggregation(h Header, action, parentSSCC string, children []string) (*epcis.Event, error) {
	parentURN, err := containerURN(parentSSCC)
	if err != nil {
		return nil, err
	}

	ev := epcis.NewAggregationEvent(action, h.Timestamp, h.TimeZoneOffset)
	ev.ParentID = parentURN
	ev.ChildEPCs = children
	ev.WithExtension(extCorrelationID, h.CorrelationID)
	if h.FacilityGLN != "" {
		if sgln, err := gs1.BuildSGLN(h.FacilityGLN, ""); err == nil {
			ev.WithReadPoint(sgln)
		}
	}
	return ev, nil
}

// containerURN accepts either a raw 18-digit SSCC or an already-formed SSCC
// URN and returns the URN form
func containerURN(sscc string) (string, error) {
	sscc = strings.TrimSpace(sscc)
	if sscc == "" {
		return "", fmt.Errorf("%w: sscc is required", ErrMissingCorrelationID)
	}
	if gs1.IsEPCURN(sscc) {
		return sscc, nil
	}
	urn, err := gs1.BuildSSCCURN(sscc)
	if err != nil {
		return "", fmt.Errorf("container sscc: %w", err)
	}
	return urn, nil
}

// applyItems fills the event's epcList and quantityList from the item lines.
// allowZero admits a zero quantity (stock counts); negative quantities are
// never valid here, sign handling belongs to the adjustment mapping.
func applyItems(ev *epcis.Event, items []ItemLine, allowZero bool) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: event carries no items", ErrMissingCorrelationID)
	}

	for _, item := range items {
		if len(item.EPCs) > 0 {
			ev.EPCList = append(ev.EPCList, item.EPCs...)
			continue
		}
		if item.Quantity < 0 || (!allowZero && item.Quantity == 0) {
			return fmt.Errorf("%w: got %v", ErrInvalidQuantity, item.Quantity)
		}
		class, err := gs1.BuildGTINClassURN(item.GTIN, item.LotNumber)
		if err != nil {
			return fmt.Errorf("item gtin: %w", err)
		}
		ev.QuantityList = append(ev.QuantityList, epcis.NewQuantity(class, item.Quantity, item.UOM))
	}
	return nil
}

// applyILMD attaches lot master data from the first item line that carries
// any. EPCIS allows one ilmd block per event; receipts with heterogeneous
// lots arrive as separate events upstream.
func applyILMD(ev *epcis.Event, items []ItemLine) {
	for _, item := range items {
		if item.LotNumber == "" && item.ExpiryDate == "" && item.ProductionDate == "" {
			continue
		}
		ev.WithILMD(&epcis.ILMD{
			LotNumber:          item.LotNumber,
			ItemExpirationDate: item.ExpiryDate,
			ProductionDate:     item.ProductionDate,
		})
		return
	}
}
