package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/audit"
	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/google/uuid"
)

// Runner drives one batch fetch run at a time: strictly sequential over the
// snapshot loaded at run start, a fixed pause after every attempt, no
// backoff, no per-user abort. The only thing that stops a run early is the
// service's root context, i.e. process shutdown.
type Runner struct {
	rootCtx  context.Context
	cohorts  *CohortService
	fetcher  domain.PostFetcher
	repo     domain.UserRepository
	notifier domain.Notifier
	auditLog *audit.Logger
	delay    time.Duration

	mu        sync.Mutex
	phase     domain.RunPhase
	rowBusy   bool
	runID     uuid.UUID
	cohortID  string
	completed int
	total     int
	startedAt time.Time
}

// NewRunner binds the runner to rootCtx: a run started from an HTTP request
// outlives that request and ends only by traversal or shutdown.
func NewRunner(rootCtx context.Context, cohorts *CohortService, fetcher domain.PostFetcher, repo domain.UserRepository, notifier domain.Notifier, auditLog *audit.Logger, delay time.Duration) *Runner {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Runner{
		rootCtx:  rootCtx,
		cohorts:  cohorts,
		fetcher:  fetcher,
		repo:     repo,
		notifier: notifier,
		auditLog: auditLog,
		delay:    delay,
		phase:    domain.RunIdle,
	}
}

// Status returns a point-in-time copy for progress display.
func (r *Runner) Status() domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := domain.RunStatus{
		Phase:     r.phase,
		Completed: r.completed,
		Total:     r.total,
	}
	if r.phase == domain.RunRunning {
		id := r.runID
		at := r.startedAt
		st.RunID = &id
		st.CohortID = r.cohortID
		st.StartedAt = &at
	}
	return st
}

// Start begins a batch run over the cohort's current snapshot. Rejected
// while a run is underway or a per-row fetch holds the runner; at most one
// run is ever in flight.
func (r *Runner) Start(ctx context.Context, cohortID, cookie string) (domain.RunStatus, error) {
	users, err := r.cohorts.LoadUsers(ctx, cohortID)
	if err != nil {
		return domain.RunStatus{}, err
	}
	if len(users) == 0 {
		return domain.RunStatus{}, domain.ErrNoUsers
	}

	r.mu.Lock()
	if r.phase == domain.RunRunning || r.rowBusy {
		r.mu.Unlock()
		return domain.RunStatus{}, domain.ErrRunInProgress
	}
	// entering a run resets progress to initial values
	r.phase = domain.RunRunning
	r.runID = uuid.New()
	r.cohortID = cohortID
	r.completed = 0
	r.total = len(users)
	r.startedAt = time.Now().UTC()
	runID := r.runID
	startedAt := r.startedAt
	r.mu.Unlock()

	if r.auditLog != nil {
		r.auditLog.RunStarted(ctx, runID, cohortID, len(users))
	}

	go r.run(runID, cohortID, cookie, users)

	return domain.RunStatus{
		Phase:     domain.RunRunning,
		RunID:     &runID,
		CohortID:  cohortID,
		Completed: 0,
		Total:     len(users),
		StartedAt: &startedAt,
	}, nil
}

// run traverses the snapshot it was handed; the list is never re-read, so
// the run and the table the operator saw agree.
func (r *Runner) run(runID uuid.UUID, cohortID, cookie string, users []domain.CohortUser) {
	ctx := r.rootCtx

	defer func() {
		r.mu.Lock()
		r.phase = domain.RunIdle
		r.mu.Unlock()
	}()

	for _, u := range users {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.fetchUser(ctx, runID, u, cookie); err == nil {
			r.mu.Lock()
			r.completed++
			r.mu.Unlock()
		}

		// fixed throttle after every attempt, the last one included
		if !r.pause(ctx) {
			return
		}
	}

	r.mu.Lock()
	completed := r.completed
	total := r.total
	r.mu.Unlock()

	r.notify(ctx, domain.Notification{
		Severity:    domain.SeveritySuccess,
		Title:       "Batch Fetch Complete",
		Description: fmt.Sprintf("Fetched posts for %d of %d users.", completed, total),
	})
	if r.auditLog != nil {
		r.auditLog.RunCompleted(ctx, runID, cohortID, completed, total)
	}
}

// FetchOne triggers the per-user step in isolation, same notification
// contract as inside a run. The runner stays reserved until the fetch
// returns: at most one per-user call is in flight across both entry points.
func (r *Runner) FetchOne(ctx context.Context, cohortID, userID, cookie string) error {
	if err := r.reserveRow(); err != nil {
		return err
	}
	defer r.releaseRow()

	users, err := r.cohorts.LoadUsers(ctx, cohortID)
	if err != nil {
		return err
	}

	var target *domain.CohortUser
	for i := range users {
		if users[i].ID == userID {
			target = &users[i]
			break
		}
	}
	if target == nil {
		return domain.ErrUserNotFound
	}

	return r.fetchUser(ctx, uuid.New(), *target, cookie)
}

// reserveRow claims the runner for a single per-row fetch. Taken in the
// same critical section Start uses, so neither entry point can slip in
// while the other holds the runner.
func (r *Runner) reserveRow() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == domain.RunRunning || r.rowBusy {
		return domain.ErrRunInProgress
	}
	r.rowBusy = true
	return nil
}

func (r *Runner) releaseRow() {
	r.mu.Lock()
	r.rowBusy = false
	r.mu.Unlock()
}

// fetchUser performs one attempt: remote call, fetch-log append, one
// notification naming the user. The returned error is informational; the
// batch loop never aborts on it.
func (r *Runner) fetchUser(ctx context.Context, runID uuid.UUID, u domain.CohortUser, cookie string) error {
	display := displayName(u)

	err := r.fetcher.FetchPosts(ctx, u.ID, cookie)

	rec := domain.FetchRecord{
		RunID:   runID,
		UserID:  u.ID,
		Outcome: domain.FetchSucceeded,
		At:      time.Now().UTC(),
	}

	if err != nil {
		detail := domain.DetailOrDefault(err, "Failed to fetch posts.")
		rec.Outcome = domain.FetchFailed
		rec.Detail = detail

		r.recordFetch(ctx, rec)
		r.notify(ctx, domain.Notification{
			Severity:    domain.SeverityError,
			Title:       "Fetch Failed",
			Description: fmt.Sprintf("%s: %s", display, detail),
		})
		if r.auditLog != nil {
			r.auditLog.UserFetched(ctx, runID, u.ID, domain.FetchFailed, detail)
		}
		return err
	}

	r.recordFetch(ctx, rec)
	r.notify(ctx, domain.Notification{
		Severity:    domain.SeveritySuccess,
		Title:       "Posts Fetched",
		Description: fmt.Sprintf("Fetched posts for %s.", display),
	})
	if r.auditLog != nil {
		r.auditLog.UserFetched(ctx, runID, u.ID, domain.FetchSucceeded, "")
	}
	return nil
}

// pause sleeps for the fixed delay; false means the root context ended.
func (r *Runner) pause(ctx context.Context) bool {
	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Runner) recordFetch(ctx context.Context, rec domain.FetchRecord) {
	if r.repo == nil {
		return
	}
	// best effort: the fetch log never blocks a run
	_ = r.repo.RecordFetch(ctx, rec)
}

func (r *Runner) notify(ctx context.Context, n domain.Notification) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, n)
	}
}

func displayName(u domain.CohortUser) string {
	if s := strings.TrimSpace(u.Name); s != "" {
		return s
	}
	if s := strings.TrimSpace(u.Email); s != "" {
		return s
	}
	return u.ID
}
