package epcis

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument(t *testing.T) {
	ev1 := NewObjectEvent(ActionAdd, time.Now().UTC(), "+02:00")
	ev2 := NewAggregationEvent(ActionDelete, time.Now().UTC(), "+02:00")

	doc := NewDocument(ev1, ev2)

	assert.Equal(t, "EPCISDocument", doc.Type)
	assert.Equal(t, SchemaVersion, doc.SchemaVersion)
	assert.Equal(t, []string{DefaultContext}, doc.Context)
	assert.False(t, doc.CreationDate.IsZero())
	require.Len(t, doc.EPCISBody.EventList, 2)
	assert.Equal(t, []string{ev1.EventID, ev2.EventID}, doc.EventIDs())
}

func TestNewObjectEvent(t *testing.T) {
	eventTime := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	ev := NewObjectEvent(ActionAdd, eventTime, "+05:30")

	assert.Equal(t, TypeObjectEvent, ev.Type)
	assert.Equal(t, ActionAdd, ev.Action)
	assert.Equal(t, eventTime, ev.EventTime)
	assert.Equal(t, "+05:30", ev.EventTimeZoneOffset)
	assert.True(t, strings.HasPrefix(ev.EventID, "urn:uuid:"))
	assert.False(t, ev.IsAggregation())

	// Event IDs are unique per event
	other := NewObjectEvent(ActionAdd, eventTime, "+05:30")
	assert.NotEqual(t, ev.EventID, other.EventID)
}

func TestNewAggregationEvent(t *testing.T) {
	ev := NewAggregationEvent(ActionDelete, time.Now().UTC(), "-04:00")

	assert.Equal(t, TypeAggregationEvent, ev.Type)
	assert.Equal(t, ActionDelete, ev.Action)
	assert.True(t, ev.IsAggregation())
}

func TestTimeZoneOffsetCarriedVerbatim(t *testing.T) {
	// The offset is part of the recorded fact: it survives marshalling
	// untouched, even when it disagrees with the eventTime's own zone.
	ev := NewObjectEvent(ActionObserve, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), "+09:00")

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "+09:00", decoded["eventTimeZoneOffset"])
}

func TestEventBuilderChaining(t *testing.T) {
	ev := NewObjectEvent(ActionAdd, time.Now().UTC(), "+00:00").
		WithBizStep(BizStepReceiving).
		WithDisposition(DispositionActive).
		WithReadPoint("urn:epc:id:sgln:1234567.89012.0").
		WithBizLocation("urn:epc:id:sgln:1234567.89012.0").
		AddBizTransaction(BizTransactionPO, "urn:epcglobal:cbv:bt:1234567890123:PO-42").
		WithExtension("reason", "damaged_in_transit")

	assert.Equal(t, BizStepReceiving, ev.BizStep)
	assert.Equal(t, DispositionActive, ev.Disposition)
	require.NotNil(t, ev.ReadPoint)
	assert.Equal(t, "urn:epc:id:sgln:1234567.89012.0", ev.ReadPoint.ID)
	require.NotNil(t, ev.BizLocation)
	require.Len(t, ev.BizTransactionList, 1)
	assert.Equal(t, BizTransactionPO, ev.BizTransactionList[0].Type)
	assert.Equal(t, "damaged_in_transit", ev.Extensions["reason"])
}

func TestWithReadPointEmptyIsNoOp(t *testing.T) {
	ev := NewObjectEvent(ActionAdd, time.Now().UTC(), "+00:00").
		WithReadPoint("").
		WithBizLocation("")

	assert.Nil(t, ev.ReadPoint)
	assert.Nil(t, ev.BizLocation)
}

func TestNewErrorDeclarationDefaultsTime(t *testing.T) {
	before := time.Now().UTC()
	decl := NewErrorDeclaration("incorrect_data", []string{"urn:uuid:abc"}, time.Time{})
	after := time.Now().UTC()

	assert.False(t, decl.DeclarationTime.Before(before))
	assert.False(t, decl.DeclarationTime.After(after))
	assert.Equal(t, "incorrect_data", decl.Reason)
	assert.Equal(t, []string{"urn:uuid:abc"}, decl.CorrectiveEventIDs)

	explicit := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	decl = NewErrorDeclaration("incorrect_data", nil, explicit)
	assert.Equal(t, explicit, decl.DeclarationTime)
}

func TestNewQuantity(t *testing.T) {
	q := NewQuantity("urn:epc:idpat:sgtin:2345678.190123.*", 480, "EA")
	assert.Equal(t, "urn:epc:idpat:sgtin:2345678.190123.*", q.EPCClass)
	assert.Equal(t, float64(480), q.Quantity)
	assert.Equal(t, "EA", q.UOM)
}

func TestNewSourceDestination(t *testing.T) {
	src := NewSource("urn:epcglobal:cbv:sdt:owning_party", "urn:epc:id:sgln:1234567.89012.0")
	assert.Equal(t, "urn:epc:id:sgln:1234567.89012.0", src.Source)
	assert.Empty(t, src.Destination)

	dst := NewDestination("urn:epcglobal:cbv:sdt:location", "urn:epc:id:sgln:7654321.12345.0")
	assert.Equal(t, "urn:epc:id:sgln:7654321.12345.0", dst.Destination)
	assert.Empty(t, dst.Source)
}

func TestDocumentMarshalShape(t *testing.T) {
	ev := NewObjectEvent(ActionAdd, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), "+02:00")
	ev.EPCList = []string{"urn:epc:id:sgtin:2345678.190123.SN100"}
	ev.WithBizStep(BizStepReceiving)

	data, err := json.Marshal(NewDocument(ev))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "EPCISDocument", decoded["type"])
	assert.Equal(t, "2.0", decoded["schemaVersion"])

	body, ok := decoded["epcisBody"].(map[string]any)
	require.True(t, ok)
	events, ok := body["eventList"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)

	first := events[0].(map[string]any)
	assert.Equal(t, "ObjectEvent", first["type"])
	assert.Equal(t, "ADD", first["action"])
	assert.Equal(t, "receiving", first["bizStep"])
	// Unused aggregation fields stay out of the payload
	assert.NotContains(t, first, "parentID")
	assert.NotContains(t, first, "childEPCs")
	assert.NotContains(t, first, "ilmd")
}
