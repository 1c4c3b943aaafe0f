// Package epcis provides a typed representation of GS1 EPCIS 2.0 documents
// and the builder helpers used to construct them. Events are immutable once
// captured; corrections are expressed as new events carrying an error
// declaration, never as mutations.
package epcis

import (
	"time"

	"github.com/google/uuid"
)

// DefaultContext is the JSON-LD context for EPCIS 2.0 documents
const DefaultContext = "https://ref.gs1.org/standards/epcis/2.0/epcis-context.jsonld"

// SchemaVersion is the EPCIS schema version this model produces
const SchemaVersion = "2.0"

// Document is an EPCISDocument wrapping one or more events
type Document struct {
	Context       []string  `json:"@context"`
	Type          string    `json:"type"`
	SchemaVersion string    `json:"schemaVersion"`
	CreationDate  time.Time `json:"creationDate"`
	EPCISBody     Body      `json:"epcisBody"`
}

// Body holds the event list of a document
type Body struct {
	EventList []*Event `json:"eventList"`
}

// QueryDocument is an EPCISQueryDocument returned by repository queries
type QueryDocument struct {
	Context       []string  `json:"@context"`
	Type          string    `json:"type"`
	SchemaVersion string    `json:"schemaVersion"`
	CreationDate  time.Time `json:"creationDate"`
	EPCISBody     QueryBody `json:"epcisBody"`
}

// QueryBody holds the query results of a query document
type QueryBody struct {
	QueryResults QueryResults `json:"queryResults"`
}

// QueryResults carries the name of the query and the matching events
type QueryResults struct {
	QueryName   string      `json:"queryName"`
	ResultsBody ResultsBody `json:"resultsBody"`
}

// ResultsBody holds the matched event list
type ResultsBody struct {
	EventList []*Event `json:"eventList"`
}

// NewDocument wraps events into an EPCISDocument
func NewDocument(events ...*Event) *Document {
	return &Document{
		Context:       []string{DefaultContext},
		Type:          "EPCISDocument",
		SchemaVersion: SchemaVersion,
		CreationDate:  time.Now().UTC(),
		EPCISBody:     Body{EventList: events},
	}
}

// EventIDs returns the IDs of all events in the document
func (d *Document) EventIDs() []string {
	ids := make([]string, 0, len(d.EPCISBody.EventList))
	for _, ev := range d.EPCISBody.EventList {
		ids = append(ids, ev.EventID)
	}
	return ids
}

// newEventID produces a stable UUID URN for an event
func newEventID() string {
	return "urn:uuid:" + uuid.New().String()
}
