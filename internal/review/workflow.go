// Package review applies curator decisions to mismatches: it validates the
// requested transition, persists it, appends an audit entry, and emits a
// review metric. Batches apply decisions independently in input order.
package review

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/errors"
	"github.com/wmde/mismatch-finder/internal/logging"
	"github.com/wmde/mismatch-finder/internal/observability/metrics"
)

// Package-level logger specific to the review service. Every applied
// decision is logged here, mirroring the audit table in file form.
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "review.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "review", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize review file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "review")
		closeLogger = func() error { return nil }
	}
}

// Decision is a single curator decision within a batch.
type Decision struct {
	MismatchID uint
	Status     datastore.ReviewStatus
}

// BatchResult is the outcome of applying one decision of a batch.
type BatchResult struct {
	MismatchID uint
	Mismatch   datastore.Mismatch
	Err        error
}

// Workflow applies review decisions against the datastore.
type Workflow struct {
	ds      datastore.Interface
	metrics *metrics.MismatchMetrics
}

// NewWorkflow creates a review workflow backed by the given datastore.
func NewWorkflow(ds datastore.Interface) *Workflow {
	return &Workflow{ds: ds}
}

// SetMetrics attaches review metrics. Safe to leave unset.
func (w *Workflow) SetMetrics(m *metrics.MismatchMetrics) {
	w.metrics = m
}

// Close flushes the review log file.
func (w *Workflow) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing review logger: %v", err)
		}
	}
}

// Review applies a single decision. The status transition is guarded: only
// pending mismatches can be reviewed, and a repeated or concurrent review
// fails with a conflict error. On success exactly one audit entry is
// written and one review metric emitted.
func (w *Workflow) Review(ctx context.Context, id uint, status datastore.ReviewStatus, reviewer *datastore.User) (datastore.Mismatch, error) {
	return w.review(ctx, id, status, reviewer, uuid.NewString())
}

// ReviewBatch applies decisions in input order. Decisions are independent:
// one failure never aborts the rest, and each outcome is reported
// separately. All audit entries of a batch share one batch id.
func (w *Workflow) ReviewBatch(ctx context.Context, decisions []Decision, reviewer *datastore.User) []BatchResult {
	batchID := uuid.NewString()
	results := make([]BatchResult, 0, len(decisions))

	for _, decision := range decisions {
		mismatch, err := w.review(ctx, decision.MismatchID, decision.Status, reviewer, batchID)
		results = append(results, BatchResult{
			MismatchID: decision.MismatchID,
			Mismatch:   mismatch,
			Err:        err,
		})
	}

	if w.metrics != nil {
		w.metrics.RecordReviewBatchSize(len(decisions))
	}

	return results
}

func (w *Workflow) review(ctx context.Context, id uint, status datastore.ReviewStatus, reviewer *datastore.User, batchID string) (datastore.Mismatch, error) {
	if err := validateDecision(status); err != nil {
		w.recordError(err)
		return datastore.Mismatch{}, err
	}
	if reviewer == nil {
		err := errors.Newf("review requires an authenticated user").
			Category(errors.CategoryAuth).
			Component("review").
			Build()
		w.recordError(err)
		return datastore.Mismatch{}, err
	}

	current, err := w.ds.GetMismatch(ctx, id)
	if err != nil {
		w.recordError(err)
		return datastore.Mismatch{}, err
	}
	oldStatus := current.ReviewStatus

	updated, err := w.ds.UpdateReviewStatus(ctx, id, reviewer.ID, status)
	if err != nil {
		w.recordError(err)
		return datastore.Mismatch{}, err
	}

	// The status is persisted at this point; audit and metric failures
	// must not surface as a failed review.
	audit := &datastore.MismatchAudit{
		MismatchID: id,
		BatchID:    batchID,
		OldStatus:  oldStatus,
		NewStatus:  status,
		Username:   reviewer.Username,
		MwUserID:   reviewer.MwUserID,
		CreatedAt:  time.Now(),
	}
	if err := w.ds.SaveAudit(ctx, audit); err != nil {
		logger.Error("Failed to write audit entry for applied review",
			"mismatch_id", id,
			"new_status", string(status),
			"error", err)
	}

	if w.metrics != nil {
		w.metrics.RecordReview(string(status))
	}

	logger.Info("Mismatch reviewed",
		"mismatch_id", id,
		"old_status", string(oldStatus),
		"new_status", string(status),
		"username", reviewer.Username,
		"mw_userid", reviewer.MwUserID,
		"batch_id", batchID)

	return updated, nil
}

func (w *Workflow) recordError(err error) {
	if w.metrics != nil {
		w.metrics.RecordReviewError(string(errors.CategoryOf(err)))
	}
}

// validateDecision checks that the target status is an allowed review
// outcome. Pending is not a valid target; review is a one-way transition.
func validateDecision(status datastore.ReviewStatus) error {
	switch status {
	case datastore.StatusAccepted, datastore.StatusRejected:
		return nil
	default:
		return errors.Newf("invalid review status %q", string(status)).
			Category(errors.CategoryValidation).
			Component("review").
			Context("review_status", string(status)).
			Build()
	}
}
