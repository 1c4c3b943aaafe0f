package application

import (
	"fmt"
	"time"

	"github.com/pharmatrace/traceability-service/internal/hierarchy"
	"github.com/pharmatrace/traceability-service/internal/repository"
	"github.com/pharmatrace/traceability-service/internal/translator"
)

// parseEventTime parses an ISO-8601 timestamp and renders the offset the
// caller reported. EPCIS wants eventTimeZoneOffset in ±hh:mm form, so a
// trailing Z becomes +00:00; a numeric offset survives verbatim.
func parseEventTime(value string) (time.Time, string, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("timestamp %q is not ISO-8601: %w", value, err)
	}
	return t, t.Format("-07:00"), nil
}

func toHeader(correlationID, timestamp string, caller CallerContext) (translator.Header, error) {
	t, offset, err := parseEventTime(timestamp)
	if err != nil {
		return translator.Header{}, err
	}
	return translator.Header{
		CorrelationID:  correlationID,
		Timestamp:      t,
		TimeZoneOffset: offset,
		FacilityGLN:    caller.FacilityGLN,
		Actor:          caller.Actor,
	}, nil
}

func toItemLines(items []ItemLineRequest) []translator.ItemLine {
	lines := make([]translator.ItemLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, translator.ItemLine{
			EPCs:           item.EPCs,
			GTIN:           item.GTIN,
			Quantity:       item.Quantity,
			UOM:            item.UOM,
			LotNumber:      item.LotNumber,
			ExpiryDate:     item.ExpiryDate,
			ProductionDate: item.ProductionDate,
		})
	}
	return lines
}

func toFacilityReceived(cmd FacilityReceivedCommand) (translator.FacilityReceived, error) {
	h, err := toHeader(cmd.EventID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.FacilityReceived{}, err
	}
	return translator.FacilityReceived{Header: h, Items: toItemLines(cmd.Items)}, nil
}

func toFacilityConsumed(cmd FacilityConsumedCommand) (translator.FacilityConsumed, error) {
	h, err := toHeader(cmd.EventID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.FacilityConsumed{}, err
	}
	return translator.FacilityConsumed{Header: h, Items: toItemLines(cmd.Items)}, nil
}

func toDispense(cmd DispenseCommand) (translator.Dispense, error) {
	h, err := toHeader(cmd.DispensationID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.Dispense{}, err
	}
	return translator.Dispense{Header: h, Items: toItemLines(cmd.Items)}, nil
}

func toGoodsReceipt(cmd GoodsReceiptCommand) (translator.GoodsReceipt, error) {
	h, err := toHeader(cmd.GRNID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.GoodsReceipt{}, err
	}
	return translator.GoodsReceipt{
		Header:   h,
		Items:    toItemLines(cmd.Items),
		PONumber: cmd.PONumber,
	}, nil
}

func toAdjustment(cmd AdjustmentCommand) (translator.Adjustment, error) {
	h, err := toHeader(cmd.EventID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.Adjustment{}, err
	}
	return translator.Adjustment{
		Header:         h,
		EPCs:           cmd.EPCs,
		GTIN:           cmd.GTIN,
		LotNumber:      cmd.LotNumber,
		QuantityChange: cmd.QuantityChange,
		UOM:            cmd.UOM,
		Reason:         cmd.Reason,
	}, nil
}

func toStockCount(cmd StockCountCommand) (translator.StockCount, error) {
	h, err := toHeader(cmd.EventID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.StockCount{}, err
	}
	return translator.StockCount{
		Header:           h,
		EPCs:             cmd.EPCs,
		GTIN:             cmd.GTIN,
		LotNumber:        cmd.LotNumber,
		SystemQuantity:   cmd.SystemQuantity,
		PhysicalQuantity: cmd.PhysicalQuantity,
		UOM:              cmd.UOM,
	}, nil
}

func toReturn(cmd ReturnCommand) (translator.Return, error) {
	h, err := toHeader(cmd.ReturnID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.Return{}, err
	}
	return translator.Return{
		Header:    h,
		Items:     toItemLines(cmd.Items),
		Direction: translator.Direction(cmd.Direction),
	}, nil
}

func toRecall(cmd RecallCommand) (translator.Recall, error) {
	h, err := toHeader(cmd.RecallNoticeID, cmd.Timestamp, cmd.CallerContext)
	if err != nil {
		return translator.Recall{}, err
	}
	return translator.Recall{
		Header:         h,
		Items:          toItemLines(cmd.Items),
		RecallNoticeID: cmd.RecallNoticeID,
		RecallClass:    cmd.RecallClass,
		Removed:        cmd.Removed,
	}, nil
}

// ToContainerDTO converts a hierarchy Container to its response shape
func ToContainerDTO(c *hierarchy.Container) *ContainerDTO {
	if c == nil {
		return nil
	}
	return &ContainerDTO{
		ContainerID:   c.ContainerID,
		SSCC:          c.SSCC,
		PreviousSSCCs: c.PreviousSSCCs,
		EPC:           c.EPC,
		Level:         string(c.Level),
		ShipmentID:    c.ShipmentID,
		CaseNumber:    c.CaseNumber,
		State:         string(c.State),
		ParentID:      c.ParentID,
		ChildIDs:      c.ChildIDs,
		Quantity:      c.Quantity,
		Capacity:      c.Capacity,
		Version:       c.Version,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		PackedAt:      c.PackedAt,
		UnpackedAt:    c.UnpackedAt,
	}
}

// ToContainerDTOs converts a slice of containers
func ToContainerDTOs(containers []*hierarchy.Container) []ContainerDTO {
	dtos := make([]ContainerDTO, 0, len(containers))
	for _, c := range containers {
		if dto := ToContainerDTO(c); dto != nil {
			dtos = append(dtos, *dto)
		}
	}
	return dtos
}

// ToHierarchyChangeDTO converts an audit record to its response shape
func ToHierarchyChangeDTO(change *hierarchy.HierarchyChange) *HierarchyChangeDTO {
	if change == nil {
		return nil
	}
	return &HierarchyChangeDTO{
		ChangeID:    change.ChangeID,
		Operation:   string(change.Operation),
		ContainerID: change.ContainerID,
		OldSSCC:     change.OldSSCC,
		NewSSCC:     change.NewSSCC,
		ParentSSCC:  change.ParentSSCC,
		ShipmentID:  change.ShipmentID,
		ChildIDs:    change.ChildIDs,
		Actor:       change.Actor,
		Reason:      change.Reason,
		Notes:       change.Notes,
		OccurredAt:  change.OccurredAt,
	}
}

// ToHierarchyChangeDTOs converts a slice of audit records
func ToHierarchyChangeDTOs(changes []*hierarchy.HierarchyChange) []HierarchyChangeDTO {
	dtos := make([]HierarchyChangeDTO, 0, len(changes))
	for _, change := range changes {
		if dto := ToHierarchyChangeDTO(change); dto != nil {
			dtos = append(dtos, *dto)
		}
	}
	return dtos
}

// ToPendingCaptureDTO converts a queued capture to its response shape. The
// stored document itself is not exposed; its event IDs are.
func ToPendingCaptureDTO(capture *repository.PendingCapture) *PendingCaptureDTO {
	if capture == nil {
		return nil
	}
	dto := &PendingCaptureDTO{
		ID:            capture.ID,
		CorrelationID: capture.CorrelationID,
		Attempts:      capture.Attempts,
		MaxAttempts:   capture.MaxAttempts,
		NextAttemptAt: capture.NextAttemptAt,
		LastError:     capture.LastError,
		Status:        string(capture.Status),
		CreatedAt:     capture.CreatedAt,
		UpdatedAt:     capture.UpdatedAt,
	}
	if capture.Document != nil {
		dto.EventIDs = capture.Document.EventIDs()
	}
	return dto
}

// ToPendingCaptureDTOs converts a slice of queued captures
func ToPendingCaptureDTOs(captures []*repository.PendingCapture) []PendingCaptureDTO {
	dtos := make([]PendingCaptureDTO, 0, len(captures))
	for _, capture := range captures {
		if dto := ToPendingCaptureDTO(capture); dto != nil {
			dtos = append(dtos, *dto)
		}
	}
	return dtos
}

// toQueryFilter renders the API query parameters into the repository filter
func toQueryFilter(q EventQuery) (repository.QueryFilter, error) {
	filter := repository.QueryFilter{
		EventType:   q.EventType,
		BizStep:     q.BizStep,
		Disposition: q.Disposition,
		EPC:         q.EPC,
		Location:    q.Location,
		Limit:       q.Limit,
	}
	if q.From != "" {
		from, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			return repository.QueryFilter{}, fmt.Errorf("from %q is not ISO-8601: %w", q.From, err)
		}
		filter.GEEventTime = &from
	}
	if q.To != "" {
		to, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			return repository.QueryFilter{}, fmt.Errorf("to %q is not ISO-8601: %w", q.To, err)
		}
		filter.LEEventTime = &to
	}
	return filter, nil
}
