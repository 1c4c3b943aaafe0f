package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace/traceability-service/internal/epcis"
)

func testDoc(t *testing.T) *epcis.Document {
	t.Helper()
	ev := epcis.NewObjectEvent(epcis.ActionAdd, time.Now().UTC(), "+00:00")
	ev.EPCList = []string{"urn:epc:id:sgtin:2345678.190123.SN100"}
	return epcis.NewDocument(ev)
}

func newTestRepo(t *testing.T, serverURL, authType string) *HTTPRepository {
	t.Helper()
	repo, err := NewHTTPRepository(Config{
		BaseURL:   serverURL,
		AuthType:  authType,
		APIKey:    "key",
		APISecret: "secret",
	})
	require.NoError(t, err)
	return repo
}

func TestCaptureEvent(t *testing.T) {
	var gotContentType, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	repo := newTestRepo(t, server.URL, AuthNone)
	doc := testDoc(t)

	resp, err := repo.CaptureEvent(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, doc.EventIDs(), resp.EventIDs)
	assert.Equal(t, "application/ld+json", gotContentType)
	assert.Equal(t, "/capture", gotPath)
}

func TestCaptureEventRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "schema violation", http.StatusBadRequest)
	}))
	defer server.Close()

	repo := newTestRepo(t, server.URL, AuthNone)
	resp, err := repo.CaptureEvent(context.Background(), testDoc(t))
	assert.ErrorIs(t, err, ErrCaptureFailed)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0], "schema violation")
}

func TestCaptureEventsPartialFailure(t *testing.T) {
	// The repository rejects any document mentioning the poisoned serial;
	// the other documents in the batch must still succeed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		raw, _ := json.Marshal(body)
		if strings.Contains(string(raw), "SN-BAD") {
			http.Error(w, "rejected", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	good := testDoc(t)
	bad := epcis.NewDocument(func() *epcis.Event {
		ev := epcis.NewObjectEvent(epcis.ActionAdd, time.Now().UTC(), "+00:00")
		ev.EPCList = []string{"urn:epc:id:sgtin:2345678.190123.SN-BAD"}
		return ev
	}())

	repo := newTestRepo(t, server.URL, AuthNone)
	responses := repo.CaptureEvents(context.Background(), []*epcis.Document{good, bad})

	require.Len(t, responses, 2)
	assert.True(t, responses[0].Success)
	assert.False(t, responses[1].Success)
	assert.NotEmpty(t, responses[1].Errors)
}

func TestAuthHeaders(t *testing.T) {
	tests := []struct {
		name       string
		authType   string
		wantHeader string
		wantValue  string
	}{
		{name: "basic", authType: AuthBasic, wantHeader: "Authorization", wantValue: "Basic a2V5OnNlY3JldA=="},
		{name: "bearer", authType: AuthBearer, wantHeader: "Authorization", wantValue: "Bearer key"},
		{name: "api key", authType: AuthAPIKey, wantHeader: "X-API-Key", wantValue: "key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.wantHeader)
				w.WriteHeader(http.StatusAccepted)
			}))
			defer server.Close()

			repo := newTestRepo(t, server.URL, tt.authType)
			_, err := repo.CaptureEvent(context.Background(), testDoc(t))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestQueryEvents(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(epcis.QueryDocument{
			Type:          "EPCISQueryDocument",
			SchemaVersion: "2.0",
		})
	}))
	defer server.Close()

	repo := newTestRepo(t, server.URL, AuthNone)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	doc, err := repo.QueryEvents(context.Background(), QueryFilter{
		EventType:   "AggregationEvent",
		BizStep:     "packing",
		EPC:         "urn:epc:id:sscc:2345678.1901234567",
		GEEventTime: &from,
		Limit:       50,
	})
	require.NoError(t, err)
	assert.Equal(t, "EPCISQueryDocument", doc.Type)

	assert.Contains(t, gotQuery, "EQ_eventType=AggregationEvent")
	assert.Contains(t, gotQuery, "EQ_bizStep=packing")
	assert.Contains(t, gotQuery, "GE_eventTime=2025-06-01T00%3A00%3A00Z")
	assert.Contains(t, gotQuery, "perPage=50")
}

func TestGetEventByIDNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	repo := newTestRepo(t, server.URL, AuthNone)
	_, err := repo.GetEventByID(context.Background(), "urn:uuid:missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestHealthCheckNeverErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	repo := newTestRepo(t, server.URL, AuthNone)
	assert.True(t, repo.HealthCheck(context.Background()))

	server.Close()
	assert.False(t, repo.HealthCheck(context.Background()))

	unreachable := newTestRepo(t, "http://127.0.0.1:1", AuthNone)
	assert.False(t, unreachable.HealthCheck(context.Background()))
}

func TestTraceLinkStubFailsFast(t *testing.T) {
	stub := NewTraceLinkRepository(Config{Vendor: "tracelink"})

	resp, err := stub.CaptureEvent(context.Background(), testDoc(t))
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.False(t, resp.Success)

	_, err = stub.QueryEvents(context.Background(), QueryFilter{})
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = stub.GetEventByID(context.Background(), "urn:uuid:x")
	assert.ErrorIs(t, err, ErrNotImplemented)

	assert.False(t, stub.HealthCheck(context.Background()))
}

func TestNewRepositorySelectsVendor(t *testing.T) {
	repo, err := NewRepository(Config{Vendor: "http", BaseURL: "http://epcis.local"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPRepository{}, repo)

	repo, err = NewRepository(Config{Vendor: "tracelink"})
	require.NoError(t, err)
	assert.IsType(t, &TraceLinkRepository{}, repo)

	_, err = NewRepository(Config{Vendor: "acme"})
	assert.Error(t, err)

	_, err = NewRepository(Config{Vendor: "http"})
	assert.Error(t, err, "base url is required")
}
