package cloudevents

import (
	"time"
)

// EventType constants for traceability domain events
const (
	ContainerPacked     = "trace.hierarchy.container-packed"
	ContainerUnpacked   = "trace.hierarchy.container-unpacked"
	ContainerRepacked   = "trace.hierarchy.container-repacked"
	SSCCReassigned      = "trace.hierarchy.sscc-reassigned"
	EventCaptured       = "trace.epcis.event-captured"
	CaptureRetryQueued  = "trace.epcis.capture-retry-queued"
	CaptureExhausted    = "trace.epcis.capture-exhausted"
	BusinessEventMapped = "trace.translator.event-mapped"
)

// TraceCloudEvent represents a CloudEvents v1.0 compliant event envelope
type TraceCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	// Traceability-specific extensions
	CorrelationID string `json:"tracecorrelationid,omitempty"`
	FacilityGLN   string `json:"tracefacilitygln,omitempty"`
	ShipmentID    string `json:"traceshipmentid,omitempty"`
}
