// Package repository is the vendor-agnostic EPCIS adapter layer: the capture
// and query contracts against an external EPCIS 2.0 repository, a concrete
// HTTP implementation, and a swappable vendor path selected once at startup.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pharmatrace/traceability-service/internal/epcis"
)

// Adapter errors
var (
	ErrEventNotFound  = errors.New("epcis event not found")
	ErrNotImplemented = errors.New("not implemented by this vendor adapter")
	ErrCaptureFailed  = errors.New("epcis capture rejected")
)

// Auth schemes the HTTP implementation supports
const (
	AuthNone   = "none"
	AuthBasic  = "basic"
	AuthBearer = "bearer"
	AuthAPIKey = "api-key"
)

// Default timeouts. Capture and query share a budget; health checks are kept
// short so readiness probes stay fast.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Config selects and configures the repository implementation. Vendor is
// read once at process start; there is no per-call dispatch.
type Config struct {
	Vendor        string
	BaseURL       string
	CapturePath   string
	AuthType      string
	APIKey        string
	APISecret     string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

// CaptureResponse reports the outcome of one capture call. A batch capture
// returns one response per document; elements are independent.
type CaptureResponse struct {
	Success  bool     `json:"success"`
	EventIDs []string `json:"eventIds,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// QueryFilter carries the CBV-style simple event query parameters
type QueryFilter struct {
	EventType   string
	BizStep     string
	Disposition string
	EPC         string
	Location    string
	GEEventTime *time.Time
	LEEventTime *time.Time
	Limit       int
}

// EPCISRepository is the vendor-agnostic contract against an external EPCIS
// repository. Implementations never retry internally; retry policy belongs
// to the caller. HealthCheck never returns an error, it degrades to false.
type EPCISRepository interface {
	CaptureEvent(ctx context.Context, doc *epcis.Document) (*CaptureResponse, error)
	CaptureEvents(ctx context.Context, docs []*epcis.Document) []*CaptureResponse
	QueryEvents(ctx context.Context, filter QueryFilter) (*epcis.QueryDocument, error)
	GetEventByID(ctx context.Context, eventID string) (*epcis.Event, error)
	GetEventsByEPC(ctx context.Context, epc string, limit int) ([]*epcis.Event, error)
	HealthCheck(ctx context.Context) bool
}

// NewRepository selects the repository implementation from configuration.
// Selection happens exactly once, at startup.
func NewRepository(cfg Config) (EPCISRepository, error) {
	switch cfg.Vendor {
	case "", "http", "generic":
		return NewHTTPRepository(cfg)
	case "tracelink":
		return NewTraceLinkRepository(cfg), nil
	default:
		return nil, fmt.Errorf("unknown epcis repository vendor %q", cfg.Vendor)
	}
}
