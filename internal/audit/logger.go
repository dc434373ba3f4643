package audit

import (
	"context"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	appCtx "github.com/100x-Engineers100/ugc-tracker/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for operator actions
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// RunStarted logs the start of a batch fetch run
func (l *Logger) RunStarted(ctx context.Context, runID uuid.UUID, cohortID string, total int) {
	l.log.Info().
		Str("action", "run_started").
		Str("run_id", runID.String()).
		Str("cohort_id", cohortID).
		Int("total_users", total).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Batch fetch run started")
}

// UserFetched logs one per-user attempt inside a run
func (l *Logger) UserFetched(ctx context.Context, runID uuid.UUID, userID string, outcome domain.FetchOutcome, detail string) {
	ev := l.log.Info()
	if outcome == domain.FetchFailed {
		ev = l.log.Warn()
	}
	ev.Str("action", "user_fetched").
		Str("run_id", runID.String()).
		Str("user_id", userID).
		Str("outcome", string(outcome)).
		Str("detail", detail).
		Msg("Per-user fetch attempted")
}

// RunCompleted logs the end of a batch fetch run
func (l *Logger) RunCompleted(ctx context.Context, runID uuid.UUID, cohortID string, completed, total int) {
	l.log.Info().
		Str("action", "run_completed").
		Str("run_id", runID.String()).
		Str("cohort_id", cohortID).
		Int("completed", completed).
		Int("total", total).
		Msg("Batch fetch run completed")
}

// SnapshotReplaced logs a wholesale cohort snapshot replace
func (l *Logger) SnapshotReplaced(ctx context.Context, cohortID string, rows int) {
	l.log.Info().
		Str("action", "snapshot_replaced").
		Str("cohort_id", cohortID).
		Int("rows", rows).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Cohort snapshot replaced")
}

// Exported logs a CSV export of the current snapshot
func (l *Logger) Exported(ctx context.Context, cohortID string, rows int) {
	l.log.Info().
		Str("action", "csv_exported").
		Str("cohort_id", cohortID).
		Int("rows", rows).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Cohort exported to CSV")
}
