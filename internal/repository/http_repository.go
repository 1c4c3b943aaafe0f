package repository

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/pkg/resilience"
)

const contentTypeJSONLD = "application/ld+json"

// HTTPRepository talks to a generic EPCIS 2.0 repository over its capture
// and query interfaces. It never retries: a failed capture is the caller's
// to queue. A circuit breaker sheds load while the repository is down.
type HTTPRepository struct {
	cfg     Config
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPRepository creates the generic HTTP-based EPCIS repository adapter
func NewHTTPRepository(cfg Config) (*HTTPRepository, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("epcis repository base url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.CapturePath == "" {
		cfg.CapturePath = "/capture"
	}
	switch cfg.AuthType {
	case "", AuthNone, AuthBasic, AuthBearer, AuthAPIKey:
	default:
		return nil, fmt.Errorf("unknown epcis auth type %q", cfg.AuthType)
	}

	logger := slog.Default().With("component", "epcis-repository")
	return &HTTPRepository{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("epcis-capture"), logger, nil),
		logger:  logger,
	}, nil
}

// SetStateCallback replaces the breaker with one that reports state changes,
// used to feed the circuit-breaker gauge
func (r *HTTPRepository) SetStateCallback(onStateChange func(name string, open bool)) {
	r.breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("epcis-capture"), r.logger, onStateChange)
}

// CaptureEvent posts one EPCISDocument to the capture endpoint
func (r *HTTPRepository) CaptureEvent(ctx context.Context, doc *epcis.Document) (*CaptureResponse, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return &CaptureResponse{Success: false, Errors: []string{err.Error()}}, fmt.Errorf("marshal document: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	_, err = r.breaker.Execute(func() (interface{}, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+r.cfg.CapturePath, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", contentTypeJSONLD)
		r.authorize(req)

		resp, doErr := r.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%w: status %d: %s", ErrCaptureFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
		}
		return nil, nil
	})
	if err != nil {
		return &CaptureResponse{Success: false, Errors: []string{err.Error()}}, err
	}

	return &CaptureResponse{Success: true, EventIDs: doc.EventIDs()}, nil
}

// CaptureEvents fans out independent capture calls, one per document. The
// batch is not atomic; each element of the result must be inspected.
func (r *HTTPRepository) CaptureEvents(ctx context.Context, docs []*epcis.Document) []*CaptureResponse {
	responses := make([]*CaptureResponse, len(docs))
	for i, doc := range docs {
		resp, err := r.CaptureEvent(ctx, doc)
		if err != nil {
			r.logger.Error("EPCIS capture failed",
				"index", i,
				"eventIds", doc.EventIDs(),
				"error", err,
			)
		}
		responses[i] = resp
	}
	return responses
}

// QueryEvents runs a simple event query with CBV-style parameters
func (r *HTTPRepository) QueryEvents(ctx context.Context, filter QueryFilter) (*epcis.QueryDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	endpoint := r.cfg.BaseURL + "/events?" + filter.values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("epcis query failed: status %d", resp.StatusCode)
	}

	var doc epcis.QueryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode query document: %w", err)
	}
	return &doc, nil
}

// GetEventByID fetches a single event by its UUID URN
func (r *HTTPRepository) GetEventByID(ctx context.Context, eventID string) (*epcis.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	endpoint := r.cfg.BaseURL + "/events/" + url.PathEscape(eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("epcis get event failed: status %d", resp.StatusCode)
	}

	var ev epcis.Event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

// GetEventsByEPC returns every event mentioning the EPC
func (r *HTTPRepository) GetEventsByEPC(ctx context.Context, epc string, limit int) ([]*epcis.Event, error) {
	doc, err := r.QueryEvents(ctx, QueryFilter{EPC: epc, Limit: limit})
	if err != nil {
		return nil, err
	}
	return doc.EPCISBody.QueryResults.ResultsBody.EventList, nil
}

// HealthCheck probes the repository. It never returns an error: any failure
// degrades to false.
func (r *HTTPRepository) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *HTTPRepository) authorize(req *http.Request) {
	switch r.cfg.AuthType {
	case AuthBasic:
		creds := base64.StdEncoding.EncodeToString([]byte(r.cfg.APIKey + ":" + r.cfg.APISecret))
		req.Header.Set("Authorization", "Basic "+creds)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	case AuthAPIKey:
		req.Header.Set("X-API-Key", r.cfg.APIKey)
	}
}

// values renders the filter as CBV-style query parameters
func (f QueryFilter) values() url.Values {
	v := url.Values{}
	if f.EventType != "" {
		v.Set("EQ_eventType", f.EventType)
	}
	if f.BizStep != "" {
		v.Set("EQ_bizStep", f.BizStep)
	}
	if f.Disposition != "" {
		v.Set("EQ_disposition", f.Disposition)
	}
	if f.EPC != "" {
		v.Set("EQ_epc", f.EPC)
	}
	if f.Location != "" {
		v.Set("EQ_bizLocation", f.Location)
	}
	if f.GEEventTime != nil {
		v.Set("GE_eventTime", f.GEEventTime.UTC().Format(time.RFC3339))
	}
	if f.LEEventTime != nil {
		v.Set("LE_eventTime", f.LEEventTime.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		v.Set("perPage", strconv.Itoa(f.Limit))
	}
	return v
}
