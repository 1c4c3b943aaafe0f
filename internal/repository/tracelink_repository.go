package repository

import (
	"context"
	"fmt"

	"github.com/pharmatrace/traceability-service/internal/epcis"
)

// TraceLinkRepository is the vendor adapter slot for the TraceLink network.
// The integration is not wired up yet: every capture and query path fails
// fast with ErrNotImplemented so operators never spend a retry budget on a
// permanently unsupported path. HealthCheck degrades to false per contract.
type TraceLinkRepository struct {
	cfg Config
}

// NewTraceLinkRepository creates the TraceLink vendor adapter
func NewTraceLinkRepository(cfg Config) *TraceLinkRepository {
	return &TraceLinkRepository{cfg: cfg}
}

func (r *TraceLinkRepository) CaptureEvent(_ context.Context, doc *epcis.Document) (*CaptureResponse, error) {
	err := fmt.Errorf("%w: tracelink capture", ErrNotImplemented)
	return &CaptureResponse{Success: false, Errors: []string{err.Error()}}, err
}

func (r *TraceLinkRepository) CaptureEvents(_ context.Context, docs []*epcis.Document) []*CaptureResponse {
	responses := make([]*CaptureResponse, len(docs))
	for i := range docs {
		responses[i] = &CaptureResponse{
			Success: false,
			Errors:  []string{fmt.Errorf("%w: tracelink capture", ErrNotImplemented).Error()},
		}
	}
	return responses
}

func (r *TraceLinkRepository) QueryEvents(context.Context, QueryFilter) (*epcis.QueryDocument, error) {
	return nil, fmt.Errorf("%w: tracelink query", ErrNotImplemented)
}

func (r *TraceLinkRepository) GetEventByID(context.Context, string) (*epcis.Event, error) {
	return nil, fmt.Errorf("%w: tracelink get event", ErrNotImplemented)
}

func (r *TraceLinkRepository) GetEventsByEPC(context.Context, string, int) ([]*epcis.Event, error) {
	return nil, fmt.Errorf("%w: tracelink get events by epc", ErrNotImplemented)
}

func (r *TraceLinkRepository) HealthCheck(context.Context) bool {
	return false
}
