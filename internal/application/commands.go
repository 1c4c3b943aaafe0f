package application

// Inbound payloads double as application commands. Gin binds and validates
// them directly; actor identity and facility GLN are attached by the handler
// from the verified request context, never from the body.

// ItemLineRequest identifies product in a business event, either serialized
// (epcs) or class-level (gtin + quantity)
type ItemLineRequest struct {
	EPCs           []string `json:"epcs" binding:"omitempty,dive,epc_urn"`
	GTIN           string   `json:"gtin" binding:"omitempty,gtin"`
	Quantity       float64  `json:"quantity"`
	UOM            string   `json:"uom"`
	LotNumber      string   `json:"lotNumber"`
	ExpiryDate     string   `json:"expiryDate"`
	ProductionDate string   `json:"productionDate"`
}

// CallerContext carries the verified identity attached by the middleware
type CallerContext struct {
	Actor       string `json:"-"`
	FacilityGLN string `json:"-"`
}

// SetCaller attaches the verified caller identity to a bound command
func (c *CallerContext) SetCaller(actor, facilityGLN string) {
	c.Actor = actor
	c.FacilityGLN = facilityGLN
}

// FacilityReceivedCommand reports stock arriving at a facility
type FacilityReceivedCommand struct {
	CallerContext
	EventID   string            `json:"eventId" binding:"required"`
	Timestamp string            `json:"timestamp" binding:"required"`
	Items     []ItemLineRequest `json:"items" binding:"required,min=1,dive"`
}

// FacilityConsumedCommand reports stock used up at a facility
type FacilityConsumedCommand struct {
	CallerContext
	EventID   string            `json:"eventId" binding:"required"`
	Timestamp string            `json:"timestamp" binding:"required"`
	Items     []ItemLineRequest `json:"items" binding:"required,min=1,dive"`
}

// DispenseCommand reports an LMIS dispensation
type DispenseCommand struct {
	CallerContext
	DispensationID string            `json:"dispensationId" binding:"required"`
	Timestamp      string            `json:"timestamp" binding:"required"`
	Items          []ItemLineRequest `json:"items" binding:"required,min=1,dive"`
}

// GoodsReceiptCommand reports an LMIS goods received note
type GoodsReceiptCommand struct {
	CallerContext
	GRNID     string            `json:"grnId" binding:"required"`
	Timestamp string            `json:"timestamp" binding:"required"`
	Items     []ItemLineRequest `json:"items" binding:"required,min=1,dive"`
	PONumber  string            `json:"poNumber"`
}

// AdjustmentCommand reports an authorized stock correction
type AdjustmentCommand struct {
	CallerContext
	EventID        string   `json:"eventId" binding:"required"`
	Timestamp      string   `json:"timestamp" binding:"required"`
	EPCs           []string `json:"epcs" binding:"omitempty,dive,epc_urn"`
	GTIN           string   `json:"gtin" binding:"omitempty,gtin"`
	LotNumber      string   `json:"lotNumber"`
	QuantityChange float64  `json:"quantityChange"`
	UOM            string   `json:"uom"`
	Reason         string   `json:"reason" binding:"required"`
}

// StockCountCommand reports a physical count against system stock
type StockCountCommand struct {
	CallerContext
	EventID          string   `json:"eventId" binding:"required"`
	Timestamp        string   `json:"timestamp" binding:"required"`
	EPCs             []string `json:"epcs" binding:"omitempty,dive,epc_urn"`
	GTIN             string   `json:"gtin" binding:"omitempty,gtin"`
	LotNumber        string   `json:"lotNumber"`
	SystemQuantity   float64  `json:"systemQuantity"`
	PhysicalQuantity float64  `json:"physicalQuantity"`
	UOM              string   `json:"uom"`
}

// ReturnCommand reports stock returned to a supplier or accepted back
type ReturnCommand struct {
	CallerContext
	ReturnID  string            `json:"returnId" binding:"required"`
	Timestamp string            `json:"timestamp" binding:"required"`
	Items     []ItemLineRequest `json:"items" binding:"required,min=1,dive"`
	Direction string            `json:"direction" binding:"required,oneof=inbound outbound"`
}

// RecallCommand flags or removes stock under a recall notice
type RecallCommand struct {
	CallerContext
	RecallNoticeID string            `json:"recallNoticeId" binding:"required"`
	Timestamp      string            `json:"timestamp" binding:"required"`
	Items          []ItemLineRequest `json:"items" binding:"required,min=1,dive"`
	RecallClass    string            `json:"recallClass"`
	Removed        bool              `json:"removed"`
}

// PackCommand aggregates an explicit list of cases under a new container
type PackCommand struct {
	CallerContext
	ShipmentID string   `json:"shipmentId" binding:"required"`
	CaseIDs    []string `json:"caseIds" binding:"required,min=1"`
	Capacity   int      `json:"capacity" binding:"omitempty,min=1"`
	Notes      string   `json:"notes"`
}

// PackLiteCommand packs a contiguous case-number range within a shipment
type PackLiteCommand struct {
	CallerContext
	ShipmentID      string `json:"shipmentId" binding:"required"`
	StartCaseNumber int    `json:"startCaseNumber" binding:"min=0"`
	EndCaseNumber   int    `json:"endCaseNumber" binding:"min=0"`
	Capacity        int    `json:"capacity" binding:"omitempty,min=1"`
	Notes           string `json:"notes"`
}

// UnpackCommand empties a packed container
type UnpackCommand struct {
	CallerContext
	PackageID string `json:"packageId" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// RepackCommand moves a packed container to a new SSCC under a new shipment
type RepackCommand struct {
	CallerContext
	PackageID     string `json:"packageId" binding:"required"`
	NewShipmentID string `json:"newShipmentId" binding:"required"`
	Reason        string `json:"reason" binding:"required"`
}

// EventQuery filters the EPCIS repository pass-through query
type EventQuery struct {
	EventType   string `form:"eventType"`
	BizStep     string `form:"bizStep"`
	Disposition string `form:"disposition"`
	EPC         string `form:"epc"`
	Location    string `form:"location"`
	From        string `form:"from"`
	To          string `form:"to"`
	Limit       int    `form:"limit"`
}

// GetContainerQuery retrieves a container by its stable identity
type GetContainerQuery struct {
	ContainerID string
}

// ListFailedCapturesQuery retrieves exhausted captures for operator review
type ListFailedCapturesQuery struct {
	Limit int
}
