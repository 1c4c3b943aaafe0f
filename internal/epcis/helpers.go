package epcis

import (
	"time"
)

// NewBizTransaction creates a business transaction reference
func NewBizTransaction(txType, txID string) BizTransaction {
	return BizTransaction{Type: txType, BizTransaction: txID}
}

// NewQuantity creates a class-level quantity element
func NewQuantity(epcClass string, quantity float64, uom string) QuantityElement {
	return QuantityElement{EPCClass: epcClass, Quantity: quantity, UOM: uom}
}

// NewSource creates a sourceList entry
func NewSource(sdType, id string) SourceDestination {
	return SourceDestination{Type: sdType, Source: id}
}

// NewDestination creates a destinationList entry
func NewDestination(sdType, id string) SourceDestination {
	return SourceDestination{Type: sdType, Destination: id}
}

// NewSensorElement groups sensor reports under optional metadata
func NewSensorElement(metadata *SensorMetadata, reports ...SensorReport) SensorElement {
	return SensorElement{SensorMetadata: metadata, SensorReport: reports}
}

// NewErrorDeclaration creates an error declaration referencing the corrected
// event IDs. A zero declarationTime defaults to the current time.
func NewErrorDeclaration(reason string, correctiveEventIDs []string, declarationTime time.Time) *ErrorDeclaration {
	if declarationTime.IsZero() {
		declarationTime = time.Now().UTC()
	}
	return &ErrorDeclaration{
		DeclarationTime:    declarationTime,
		Reason:             reason,
		CorrectiveEventIDs: correctiveEventIDs,
	}
}

// WithBizStep sets the business step and returns the event for chaining
func (e *Event) WithBizStep(bizStep string) *Event {
	e.BizStep = bizStep
	return e
}

// WithDisposition sets the disposition and returns the event for chaining
func (e *Event) WithDisposition(disposition string) *Event {
	e.Disposition = disposition
	return e
}

// WithReadPoint sets the read point from an SGLN URN
func (e *Event) WithReadPoint(sgln string) *Event {
	if sgln != "" {
		e.ReadPoint = &ReadPoint{ID: sgln}
	}
	return e
}

// WithBizLocation sets the business location from an SGLN URN
func (e *Event) WithBizLocation(sgln string) *Event {
	if sgln != "" {
		e.BizLocation = &BizLocation{ID: sgln}
	}
	return e
}

// WithExtension adds a custom namespaced extension field
func (e *Event) WithExtension(key string, value any) *Event {
	if e.Extensions == nil {
		e.Extensions = make(map[string]any)
	}
	e.Extensions[key] = value
	return e
}

// WithILMD attaches instance/lot master data
func (e *Event) WithILMD(ilmd *ILMD) *Event {
	e.ILMD = ilmd
	return e
}

// AddBizTransaction appends a business transaction reference
func (e *Event) AddBizTransaction(txType, txID string) *Event {
	e.BizTransactionList = append(e.BizTransactionList, NewBizTransaction(txType, txID))
	return e
}
