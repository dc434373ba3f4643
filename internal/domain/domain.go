package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCohortRequired = errors.New("cohort id is required")
	ErrUserNotFound   = errors.New("user not found in cohort")

	ErrRunInProgress = errors.New("a fetch run is already in progress")
	ErrNoUsers       = errors.New("no users loaded for cohort")

	ErrCacheMiss = errors.New("cache miss")
)

// CohortUser is one cohort member's aggregated activity snapshot. IDs are
// opaque strings assigned by the upstream user store, stable within a cohort.
type CohortUser struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Email         string     `json:"email,omitempty"`
	TotalPosts    int        `json:"total_posts"`
	TotalLikes    int        `json:"total_likes"`
	TotalComments int        `json:"total_comments"`
	LastPosted    *time.Time `json:"last_posted,omitempty"`
}

type FetchOutcome string

const (
	FetchSucceeded FetchOutcome = "succeeded"
	FetchFailed    FetchOutcome = "failed"
)

// FetchRecord is one per-user attempt within a run, kept for auditing.
// User counters are never touched by a fetch; only the log grows.
type FetchRecord struct {
	RunID   uuid.UUID
	UserID  string
	Outcome FetchOutcome
	Detail  string
	At      time.Time
}

// RunPhase is the runner's tagged state. There is no paused or canceled
// phase: a run ends only by full traversal or process shutdown.
type RunPhase string

const (
	RunIdle    RunPhase = "idle"
	RunRunning RunPhase = "running"
)

// RunStatus is a point-in-time view of the runner for progress display.
type RunStatus struct {
	Phase     RunPhase   `json:"phase"`
	RunID     *uuid.UUID `json:"run_id,omitempty"`
	CohortID  string     `json:"cohort_id,omitempty"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func (s RunStatus) InProgress() bool { return s.Phase == RunRunning }

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is one operator-facing toast: a severity plus title and
// description. Presentational only, nothing waits on delivery.
type Notification struct {
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// UserRepository is the system of record for cohort snapshots and the
// per-run fetch log.
type UserRepository interface {
	// ListCohortUsers returns the cohort's rows in rank order. The returned
	// slice is the single source of truth for the table, the runner and the
	// CSV export.
	ListCohortUsers(ctx context.Context, cohortID string) ([]CohortUser, error)

	// ReplaceCohortSnapshot swaps a cohort's rows wholesale in one
	// transaction. No incremental merge.
	ReplaceCohortSnapshot(ctx context.Context, cohortID string, users []CohortUser) error

	// RecordFetch appends one per-user attempt to the fetch log.
	RecordFetch(ctx context.Context, rec FetchRecord) error
}

type CacheRepository interface {
	GetCohortUsers(ctx context.Context, cohortID string) ([]CohortUser, error)
	SetCohortUsers(ctx context.Context, cohortID string, users []CohortUser) error
	InvalidateCohort(ctx context.Context, cohortID string) error

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}

// PostFetcher triggers the social platform's per-user post ingestion.
// Idempotent from this service's perspective; failures may carry a
// platform-supplied detail string (see FetchError).
type PostFetcher interface {
	FetchPosts(ctx context.Context, userID, cookie string) error
}

// FetchError carries the optional human-readable detail returned by the
// platform. Detail may be empty; callers fall back to a generic message.
type FetchError struct {
	StatusCode int
	Detail     string
}

func (e *FetchError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return "post fetch failed"
}

// DetailOrDefault prefers a platform-supplied detail over the generic
// fallback, matching the notification contract. Transport errors carry no
// platform detail and fall back too.
func DetailOrDefault(err error, fallback string) string {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Detail != "" {
		return fe.Detail
	}
	return fallback
}
