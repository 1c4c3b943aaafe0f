package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrace/traceability-service/internal/epcis"
	"github.com/pharmatrace/traceability-service/pkg/metrics"
	"github.com/pharmatrace/traceability-service/pkg/resilience"
)

// CaptureStatus is the lifecycle state of a queued capture
type CaptureStatus string

const (
	CapturePending CaptureStatus = "pending"
	CaptureFailed  CaptureStatus = "failed"
)

// PendingCapture is a capture that failed downstream and awaits retry. The
// hierarchy mutation it projects already succeeded and is never re-attempted;
// only the EPCIS submission is retried.
type PendingCapture struct {
	ID            string          `bson:"_id"`
	Document      *epcis.Document `bson:"document"`
	CorrelationID string          `bson:"correlationId,omitempty"`
	Attempts      int             `bson:"attempts"`
	MaxAttempts   int             `bson:"maxAttempts"`
	NextAttemptAt time.Time       `bson:"nextAttemptAt"`
	LastError     string          `bson:"lastError,omitempty"`
	Status        CaptureStatus   `bson:"status"`
	CreatedAt     time.Time       `bson:"createdAt"`
	UpdatedAt     time.Time       `bson:"updatedAt"`
}

// PendingCaptureStore persists the capture retry queue
type PendingCaptureStore interface {
	Enqueue(ctx context.Context, capture *PendingCapture) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]*PendingCapture, error)
	Update(ctx context.Context, capture *PendingCapture) error
	Delete(ctx context.Context, id string) error
	ListFailed(ctx context.Context, limit int) ([]*PendingCapture, error)
	CountPending(ctx context.Context) (int64, error)
}

// RetrierConfig tunes the background capture retrier
type RetrierConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetrierConfig returns the standard retry policy: bounded attempts
// with exponential backoff
func DefaultRetrierConfig() RetrierConfig {
	return RetrierConfig{
		Interval:       15 * time.Second,
		BatchSize:      25,
		MaxAttempts:    6,
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     30 * time.Minute,
		BackoffFactor:  2.0,
	}
}

// Retrier drains the pending-capture queue in the background. Exhausted
// captures are marked failed and surface on the operator queue, never
// dropped.
type Retrier struct {
	repo    EPCISRepository
	store   PendingCaptureStore
	cfg     RetrierConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	stop    chan struct{}
	done    sync.WaitGroup
}

// NewRetrier creates a capture retrier
func NewRetrier(repo EPCISRepository, store PendingCaptureStore, cfg RetrierConfig, logger *slog.Logger, m *metrics.Metrics) *Retrier {
	return &Retrier{
		repo:    repo,
		store:   store,
		cfg:     cfg,
		logger:  logger.With("component", "capture-retrier"),
		metrics: m,
		stop:    make(chan struct{}),
	}
}

// Enqueue queues a document whose capture failed. NotImplemented failures
// are permanent and go straight to the failed queue, no retry budget spent.
func (r *Retrier) Enqueue(ctx context.Context, doc *epcis.Document, correlationID string, cause error) error {
	now := time.Now().UTC()
	capture := &PendingCapture{
		ID:            uuid.New().String(),
		Document:      doc,
		CorrelationID: correlationID,
		MaxAttempts:   r.cfg.MaxAttempts,
		NextAttemptAt: now.Add(r.cfg.InitialBackoff),
		Status:        CapturePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if cause != nil {
		capture.LastError = cause.Error()
	}
	if errors.Is(cause, ErrNotImplemented) {
		capture.Status = CaptureFailed
		r.metrics.RecordCaptureExhausted()
	}

	if err := r.store.Enqueue(ctx, capture); err != nil {
		return err
	}
	if capture.Status == CapturePending {
		r.metrics.RecordCaptureRetry()
	}
	r.logger.Warn("EPCIS capture queued",
		"captureId", capture.ID,
		"correlationId", correlationID,
		"status", capture.Status,
		"error", capture.LastError,
	)
	return nil
}

// Start launches the background drain loop
func (r *Retrier) Start(ctx context.Context) {
	r.done.Add(1)
	go func() {
		defer r.done.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.ProcessDue(ctx)
			}
		}
	}()
}

// Stop halts the drain loop and waits for the in-flight pass to finish
func (r *Retrier) Stop() {
	close(r.stop)
	r.done.Wait()
}

// ProcessDue retries every queued capture whose backoff has elapsed
func (r *Retrier) ProcessDue(ctx context.Context) {
	now := time.Now().UTC()
	due, err := r.store.FindDue(ctx, now, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("Failed to load due captures", "error", err)
		return
	}

	for _, capture := range due {
		r.attempt(ctx, capture)
	}

	if pending, err := r.store.CountPending(ctx); err == nil {
		r.metrics.SetCapturesPending(int(pending))
	}
}

func (r *Retrier) attempt(ctx context.Context, capture *PendingCapture) {
	capture.Attempts++
	capture.UpdatedAt = time.Now().UTC()

	start := time.Now()
	_, err := r.repo.CaptureEvent(ctx, capture.Document)
	r.metrics.RecordCapture(err == nil, time.Since(start))

	if err == nil {
		if delErr := r.store.Delete(ctx, capture.ID); delErr != nil {
			r.logger.Error("Failed to dequeue captured document", "captureId", capture.ID, "error", delErr)
			return
		}
		r.logger.Info("Queued capture delivered",
			"captureId", capture.ID,
			"correlationId", capture.CorrelationID,
			"attempts", capture.Attempts,
		)
		return
	}

	capture.LastError = err.Error()
	if errors.Is(err, ErrNotImplemented) || capture.Attempts >= capture.MaxAttempts {
		capture.Status = CaptureFailed
		r.metrics.RecordCaptureExhausted()
		r.logger.Error("Capture retries exhausted, surfacing to operator queue",
			"captureId", capture.ID,
			"correlationId", capture.CorrelationID,
			"attempts", capture.Attempts,
			"error", err,
		)
	} else {
		delay := resilience.BackoffDelay(capture.Attempts, r.cfg.InitialBackoff, r.cfg.MaxBackoff, r.cfg.BackoffFactor)
		capture.NextAttemptAt = time.Now().UTC().Add(delay)
		r.metrics.RecordCaptureRetry()
		r.logger.Warn("Capture retry failed, backing off",
			"captureId", capture.ID,
			"attempts", capture.Attempts,
			"nextAttemptAt", capture.NextAttemptAt,
			"error", err,
		)
	}

	if updErr := r.store.Update(ctx, capture); updErr != nil {
		r.logger.Error("Failed to update queued capture", "captureId", capture.ID, "error", updErr)
	}
}
