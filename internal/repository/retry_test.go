package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/pkg/metrics"
)

// fakeStore is an in-memory PendingCaptureStore
type fakeStore struct {
	mu       sync.Mutex
	captures map[string]*PendingCapture
}

func newFakeStore() *fakeStore {
	return &fakeStore{captures: make(map[string]*PendingCapture)}
}

func (s *fakeStore) Enqueue(_ context.Context, c *PendingCapture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	s.captures[c.ID] = &clone
	return nil
}

func (s *fakeStore) FindDue(_ context.Context, now time.Time, limit int) ([]*PendingCapture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*PendingCapture
	for _, c := range s.captures {
		if c.Status == CapturePending && !c.NextAttemptAt.After(now) && len(due) < limit {
			clone := *c
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (s *fakeStore) Update(_ context.Context, c *PendingCapture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	s.captures[c.ID] = &clone
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.captures, id)
	return nil
}

func (s *fakeStore) ListFailed(_ context.Context, limit int) ([]*PendingCapture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed []*PendingCapture
	for _, c := range s.captures {
		if c.Status == CaptureFailed && len(failed) < limit {
			clone := *c
			failed = append(failed, &clone)
		}
	}
	return failed, nil
}

func (s *fakeStore) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.captures {
		if c.Status == CapturePending {
			n++
		}
	}
	return n, nil
}

// scriptedRepo fails captures until failuresLeft reaches zero
type scriptedRepo struct {
	mu           sync.Mutex
	failuresLeft int
	failWith     error
	captured     int
}

func (r *scriptedRepo) CaptureEvent(context.Context, *epcis.Document) (*CaptureResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failuresLeft > 0 {
		r.failuresLeft--
		return &CaptureResponse{Success: false, Errors: []string{r.failWith.Error()}}, r.failWith
	}
	r.captured++
	return &CaptureResponse{Success: true}, nil
}

func (r *scriptedRepo) CaptureEvents(ctx context.Context, docs []*epcis.Document) []*CaptureResponse {
	out := make([]*CaptureResponse, len(docs))
	for i, doc := range docs {
		out[i], _ = r.CaptureEvent(ctx, doc)
	}
	return out
}

func (r *scriptedRepo) QueryEvents(context.Context, QueryFilter) (*epcis.QueryDocument, error) {
	return nil, errors.New("not used")
}
func (r *scriptedRepo) GetEventByID(context.Context, string) (*epcis.Event, error) {
	return nil, errors.New("not used")
}
func (r *scriptedRepo) GetEventsByEPC(context.Context, string, int) ([]*epcis.Event, error) {
	return nil, errors.New("not used")
}
func (r *scriptedRepo) HealthCheck(context.Context) bool { return true }

func newTestRetrier(repo EPCISRepository, store PendingCaptureStore, maxAttempts int) *Retrier {
	cfg := DefaultRetrierConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.InitialBackoff = 0
	return NewRetrier(repo, store, cfg, slog.Default(), metrics.New(metrics.DefaultConfig("test")))
}

func TestRetrierDeliversQueuedCapture(t *testing.T) {
	store := newFakeStore()
	repo := &scriptedRepo{failuresLeft: 1, failWith: errors.New("connection refused")}
	retrier := newTestRetrier(repo, store, 3)

	require.NoError(t, retrier.Enqueue(context.Background(), testDoc(t), "evt-001", errors.New("timeout")))

	// First pass fails, second delivers
	retrier.ProcessDue(context.Background())
	pending, err := store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	retrier.ProcessDue(context.Background())
	pending, err = store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Equal(t, 1, repo.captured)
}

func TestRetrierExhaustsToFailedQueue(t *testing.T) {
	store := newFakeStore()
	repo := &scriptedRepo{failuresLeft: 100, failWith: errors.New("connection refused")}
	retrier := newTestRetrier(repo, store, 2)

	require.NoError(t, retrier.Enqueue(context.Background(), testDoc(t), "evt-002", errors.New("timeout")))

	retrier.ProcessDue(context.Background())
	retrier.ProcessDue(context.Background())

	failed, err := store.ListFailed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, CaptureFailed, failed[0].Status)
	assert.Equal(t, 2, failed[0].Attempts)
	assert.Contains(t, failed[0].LastError, "connection refused")

	// Failed captures are surfaced, not dropped, and never retried again
	retrier.ProcessDue(context.Background())
	failed, err = store.ListFailed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)
}

func TestRetrierNotImplementedSkipsRetryBudget(t *testing.T) {
	store := newFakeStore()
	retrier := newTestRetrier(&scriptedRepo{}, store, 3)

	err := retrier.Enqueue(context.Background(), testDoc(t), "evt-003", ErrNotImplemented)
	require.NoError(t, err)

	failed, err := store.ListFailed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Zero(t, failed[0].Attempts)

	pending, err := store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}
