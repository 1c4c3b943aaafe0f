package epcis

import (
	"time"
)

// Event types
const (
	TypeObjectEvent      = "ObjectEvent"
	TypeAggregationEvent = "AggregationEvent"
)

// Actions
const (
	ActionAdd     = "ADD"
	ActionObserve = "OBSERVE"
	ActionDelete  = "DELETE"
)

// CBV business steps used by the translator. The model itself treats
// bizStep and disposition as opaque strings; these constants exist so event
// producers agree on spelling, not because the model validates them.
const (
	BizStepReceiving     = "receiving"
	BizStepShipping      = "shipping"
	BizStepDispensing    = "dispensing"
	BizStepPacking       = "packing"
	BizStepUnpacking     = "unpacking"
	BizStepStockTaking   = "stock_taking"
	BizStepInspecting    = "inspecting"
	BizStepDestroying    = "destroying"
	BizStepHolding       = "holding"
	BizStepStorage       = "storing"
	BizStepRemoving      = "removing"
	BizStepRepackaging   = "repackaging"
	BizStepAccepting     = "accepting"
	BizStepDecommission  = "decommissioning"
	BizStepCommissioning = "commissioning"
)

// CBV dispositions
const (
	DispositionActive      = "active"
	DispositionInProgress  = "in_progress"
	DispositionInTransit   = "in_transit"
	DispositionDispensed   = "dispensed"
	DispositionContainerOK = "container_closed"
	DispositionDamaged     = "damaged"
	DispositionDestroyed   = "destroyed"
	DispositionExpired     = "expired"
	DispositionRecalled    = "recalled"
	DispositionReturned    = "returned"
	DispositionSellable    = "sellable_accessible"
	DispositionStolen      = "stolen"
	DispositionUnavailable = "unavailable"
)

// CBV business transaction types
const (
	BizTransactionPO       = "po"
	BizTransactionDesadv   = "desadv"
	BizTransactionInv      = "inv"
	BizTransactionRecall   = "recall_notice"
	BizTransactionPrevSSCC = "prev_container"
)

// Event is a single EPCIS event. One struct covers both ObjectEvent and
// AggregationEvent; Type discriminates, and the JSON shape follows the
// EPCIS 2.0 JSON-LD binding with unused fields omitted.
//
// EventTimeZoneOffset is carried verbatim from the source business event.
// It is never recomputed from EventTime: downstream regulators may sit in a
// different zone than the capture server, and the offset is part of the
// recorded fact.
type Event struct {
	Type                string `json:"type"`
	EventID             string `json:"eventID"`
	EventTime           time.Time `json:"eventTime"`
	EventTimeZoneOffset string    `json:"eventTimeZoneOffset"`
	RecordTime          *time.Time `json:"recordTime,omitempty"`
	Action              string     `json:"action"`

	BizStep     string `json:"bizStep,omitempty"`
	Disposition string `json:"disposition,omitempty"`

	// ObjectEvent fields
	EPCList      []string          `json:"epcList,omitempty"`
	QuantityList []QuantityElement `json:"quantityList,omitempty"`

	// AggregationEvent fields
	ParentID          string            `json:"parentID,omitempty"`
	ChildEPCs         []string          `json:"childEPCs,omitempty"`
	ChildQuantityList []QuantityElement `json:"childQuantityList,omitempty"`

	ReadPoint   *ReadPoint   `json:"readPoint,omitempty"`
	BizLocation *BizLocation `json:"bizLocation,omitempty"`

	BizTransactionList []BizTransaction    `json:"bizTransactionList,omitempty"`
	SourceList         []SourceDestination `json:"sourceList,omitempty"`
	DestinationList    []SourceDestination `json:"destinationList,omitempty"`
	SensorElementList  []SensorElement     `json:"sensorElementList,omitempty"`

	ErrorDeclaration *ErrorDeclaration `json:"errorDeclaration,omitempty"`
	ILMD             *ILMD             `json:"ilmd,omitempty"`

	// Extensions carries custom namespaced fields outside the standard
	// vocabulary (adjustment reasons, stock count figures, recall metadata)
	Extensions map[string]any `json:"pharmatrace:ext,omitempty"`
}

// ReadPoint identifies where an event was observed
type ReadPoint struct {
	ID string `json:"id"`
}

// BizLocation identifies where the objects are after the event
type BizLocation struct {
	ID string `json:"id"`
}

// QuantityElement expresses a class-level quantity of a product
type QuantityElement struct {
	EPCClass string  `json:"epcClass"`
	Quantity float64 `json:"quantity"`
	UOM      string  `json:"uom,omitempty"`
}

// BizTransaction references a business transaction document
type BizTransaction struct {
	Type           string `json:"type,omitempty"`
	BizTransaction string `json:"bizTransaction"`
}

// SourceDestination is an entry in a source or destination list
type SourceDestination struct {
	Type        string `json:"type"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// SensorElement groups sensor metadata with its reports
type SensorElement struct {
	SensorMetadata *SensorMetadata `json:"sensorMetadata,omitempty"`
	SensorReport   []SensorReport  `json:"sensorReport,omitempty"`
}

// SensorMetadata describes the device and measurement window
type SensorMetadata struct {
	Time      *time.Time `json:"time,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	DeviceID  string     `json:"deviceID,omitempty"`
}

// SensorReport is a single sensor measurement
type SensorReport struct {
	Type     string     `json:"type"`
	Value    float64    `json:"value,omitempty"`
	UOM      string     `json:"uom,omitempty"`
	Time     *time.Time `json:"time,omitempty"`
	DeviceID string     `json:"deviceID,omitempty"`
}

// ErrorDeclaration marks this event as a correction of earlier events
type ErrorDeclaration struct {
	DeclarationTime    time.Time `json:"declarationTime"`
	Reason             string    `json:"reason,omitempty"`
	CorrectiveEventIDs []string  `json:"correctiveEventIDs,omitempty"`
}

// ILMD carries instance/lot master data on commissioning-style events
type ILMD struct {
	LotNumber          string         `json:"cbvmda:lotNumber,omitempty"`
	ItemExpirationDate string         `json:"cbvmda:itemExpirationDate,omitempty"`
	ProductionDate     string         `json:"cbvmda:productionDate,omitempty"`
	Additional         map[string]any `json:"cbvmda:additionalTradeItemIdentification,omitempty"`
}

// NewObjectEvent creates an ObjectEvent with a fresh event ID. The timezone
// offset is stored exactly as supplied.
func NewObjectEvent(action string, eventTime time.Time, tzOffset string) *Event {
	return &Event{
		Type:                TypeObjectEvent,
		EventID:             newEventID(),
		EventTime:           eventTime,
		EventTimeZoneOffset: tzOffset,
		Action:              action,
	}
}

// NewAggregationEvent creates an AggregationEvent with a fresh event ID
func NewAggregationEvent(action string, eventTime time.Time, tzOffset string) *Event {
	return &Event{
		Type:                TypeAggregationEvent,
		EventID:             newEventID(),
		EventTime:           eventTime,
		EventTimeZoneOffset: tzOffset,
		Action:              action,
	}
}

// IsAggregation reports whether the event is an AggregationEvent
func (e *Event) IsAggregation() bool {
	return e.Type == TypeAggregationEvent
}
