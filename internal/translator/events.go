// Package translator converts inbound business events into EPCIS 2.0 events.
// It is a pure mapping layer: no persistence, no transport, every failure a
// typed error the caller handles.
package translator

import (
	"time"
)

// Kind discriminates the business-event variants
type Kind string

const (
	KindFacilityReceived Kind = "facility_received"
	KindFacilityConsumed Kind = "facility_consumed"
	KindDispense         Kind = "dispense"
	KindGoodsReceipt     Kind = "goods_receipt"
	KindAdjustment       Kind = "adjustment"
	KindStockCount       Kind = "stock_count"
	KindReturn           Kind = "return"
	KindRecall           Kind = "recall"
	KindPack             Kind = "pack"
	KindUnpack           Kind = "unpack"
	KindRepack           Kind = "repack"
	KindReassignSSCC     Kind = "reassign_sscc"
)

// Header carries the fields every business event must supply. The correlation
// ID is the caller-unique identifier of the source transaction (dispensation
// ID, GRN ID, recall notice ID, ...); the timezone offset travels with the
// timestamp verbatim.
type Header struct {
	CorrelationID  string
	Timestamp      time.Time
	TimeZoneOffset string
	FacilityGLN    string
	Actor          string
}

func (h Header) header() Header { return h }

// BusinessEvent is the tagged union of inbound event variants. The unexported
// method seals the set: adding a variant means adding a type here and a match
// arm in Translate, never a default fallthrough.
type BusinessEvent interface {
	Kind() Kind
	header() Header
}

// ItemLine identifies product in an event, either as serialized EPC URNs or
// as a class-level GTIN quantity. When EPCs are present the quantity fields
// are ignored.
type ItemLine struct {
	EPCs           []string
	GTIN           string
	Quantity       float64
	UOM            string
	LotNumber      string
	ExpiryDate     string
	ProductionDate string
}

// Direction of a return movement relative to the reporting facility
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// FacilityReceived records stock arriving at a facility
type FacilityReceived struct {
	Header
	Items []ItemLine
}

func (FacilityReceived) Kind() Kind { return KindFacilityReceived }

// FacilityConsumed records stock used up at a facility
type FacilityConsumed struct {
	Header
	Items []ItemLine
}

func (FacilityConsumed) Kind() Kind { return KindFacilityConsumed }

// Dispense records an LMIS dispensation to a patient or downstream party
type Dispense struct {
	Header
	Items []ItemLine
}

func (Dispense) Kind() Kind { return KindDispense }

// GoodsReceipt records an LMIS goods received note, optionally referencing
// the purchase order it fulfils
type GoodsReceipt struct {
	Header
	Items    []ItemLine
	PONumber string
}

func (GoodsReceipt) Kind() Kind { return KindGoodsReceipt }

// Adjustment records an authorized stock correction. QuantityChange carries
// the sign: positive adds stock, negative removes it, zero is a caller bug.
type Adjustment struct {
	Header
	EPCs           []string
	GTIN           string
	LotNumber      string
	QuantityChange float64
	UOM            string
	Reason         string
}

func (Adjustment) Kind() Kind { return KindAdjustment }

// StockCount records a physical count against system stock. A physical
// quantity of zero is a valid out-of-stock confirmation.
type StockCount struct {
	Header
	EPCs             []string
	GTIN             string
	LotNumber        string
	SystemQuantity   float64
	PhysicalQuantity float64
	UOM              string
}

func (StockCount) Kind() Kind { return KindStockCount }

// Return records stock returned to a supplier (outbound) or accepted back
// from a customer (inbound)
type Return struct {
	Header
	Items     []ItemLine
	Direction Direction
}

func (Return) Kind() Kind { return KindReturn }

// Recall flags or removes stock under a recall notice
type Recall struct {
	Header
	Items          []ItemLine
	RecallNoticeID string
	RecallClass    string
	Removed        bool
}

func (Recall) Kind() Kind { return KindRecall }

// Pack records children aggregated under a new container SSCC
type Pack struct {
	Header
	ParentSSCC string
	ChildEPCs  []string
}

func (Pack) Kind() Kind { return KindPack }

// Unpack records a container emptied of all its children
type Unpack struct {
	Header
	ParentSSCC string
	ChildEPCs  []string
}

func (Unpack) Kind() Kind { return KindUnpack }

// Repack records the same physical container moving to a new SSCC, child set
// unchanged
type Repack struct {
	Header
	OldSSCC   string
	NewSSCC   string
	ChildEPCs []string
}

func (Repack) Kind() Kind { return KindRepack }

// ReassignSSCC records a manual container code correction. It shares Repack's
// event mechanics and exists as its own variant so corrections are auditable
// separately from routine repacks.
type ReassignSSCC struct {
	Header
	OldSSCC   string
	NewSSCC   string
	ChildEPCs []string
	Reason    string
}

func (ReassignSSCC) Kind() Kind { return KindReassignSSCC }
