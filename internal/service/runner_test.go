package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/100x-Engineers100/ugc-tracker/internal/service"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu      sync.Mutex
	users   map[string][]domain.CohortUser
	fetches []domain.FetchRecord
	listErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string][]domain.CohortUser{}}
}

func (r *fakeRepo) ListCohortUsers(ctx context.Context, cohortID string) ([]domain.CohortUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.users[cohortID], nil
}

func (r *fakeRepo) ReplaceCohortSnapshot(ctx context.Context, cohortID string, users []domain.CohortUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[cohortID] = users
	return nil
}

func (r *fakeRepo) RecordFetch(ctx context.Context, rec domain.FetchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, rec)
	return nil
}

func (r *fakeRepo) fetchLog() []domain.FetchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.FetchRecord, len(r.fetches))
	copy(out, r.fetches)
	return out
}

type fakeFetcher struct {
	mu     sync.Mutex
	starts []time.Time
	calls  []string
	failOn map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{failOn: map[string]error{}}
}

func (f *fakeFetcher) FetchPosts(ctx context.Context, userID, cookie string) error {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.calls = append(f.calls, userID)
	err := f.failOn[userID]
	f.mu.Unlock()
	return err
}

func (f *fakeFetcher) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeFetcher) startTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.starts))
	copy(out, f.starts)
	return out
}

// blockingFetcher parks every call until released, so tests can hold a
// fetch in flight while poking the runner from another goroutine.
type blockingFetcher struct {
	entered chan string
	release chan struct{}
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{
		entered: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (f *blockingFetcher) FetchPosts(ctx context.Context, userID, cookie string) error {
	f.entered <- userID
	<-f.release
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notif domain.Notification) {
	n.mu.Lock()
	n.items = append(n.items, notif)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Notification, len(n.items))
	copy(out, n.items)
	return out
}

func seedUsers(repo *fakeRepo, cohortID string, n int) []domain.CohortUser {
	users := make([]domain.CohortUser, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, domain.CohortUser{
			ID:   fmt.Sprintf("u%d", i),
			Name: fmt.Sprintf("User %d", i),
		})
	}
	repo.users[cohortID] = users
	return users
}

func waitIdle(t *testing.T, r *service.Runner) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !r.Status().InProgress() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("runner did not return to idle in time")
}

func newTestRunner(t *testing.T, repo *fakeRepo, fetcher *fakeFetcher, notifier *recordingNotifier, delay time.Duration) *service.Runner {
	t.Helper()
	cohorts := service.NewCohortService(repo, nil, notifier, nil)
	return service.NewRunner(context.Background(), cohorts, fetcher, repo, notifier, nil, delay)
}

func TestRunner_FullTraversalWithFailures(t *testing.T) {
	repo := newFakeRepo()
	users := seedUsers(repo, "c1", 6)

	fetcher := newFakeFetcher()
	// failures at positions 2 and 5 of the list
	fetcher.failOn[users[1].ID] = &domain.FetchError{StatusCode: 401, Detail: "session expired"}
	fetcher.failOn[users[4].ID] = &domain.FetchError{StatusCode: 500}

	notifier := &recordingNotifier{}
	r := newTestRunner(t, repo, fetcher, notifier, 5*time.Millisecond)

	st, err := r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)
	require.True(t, st.InProgress())
	require.Equal(t, 6, st.Total)

	waitIdle(t, r)

	// completed counter ends at N-2
	final := r.Status()
	require.Equal(t, 4, final.Completed)

	// every user was attempted, in list order, despite failures
	require.Equal(t, []string{"u1", "u2", "u3", "u4", "u5", "u6"}, fetcher.callOrder())

	// one notification per user in list order, then exactly one aggregate
	notifs := notifier.all()
	require.Len(t, notifs, 7)
	for i, u := range users {
		require.Contains(t, notifs[i].Description, u.Name)
	}
	require.Equal(t, domain.SeverityError, notifs[1].Severity)
	require.Contains(t, notifs[1].Description, "session expired")
	require.Equal(t, domain.SeverityError, notifs[4].Severity)
	require.Equal(t, domain.SeveritySuccess, notifs[6].Severity)
	require.Equal(t, "Batch Fetch Complete", notifs[6].Title)
	require.Contains(t, notifs[6].Description, "4 of 6")

	// fetch log mirrors the outcomes
	log := repo.fetchLog()
	require.Len(t, log, 6)
	require.Equal(t, domain.FetchFailed, log[1].Outcome)
	require.Equal(t, "session expired", log[1].Detail)
	require.Equal(t, domain.FetchSucceeded, log[0].Outcome)
}

func TestRunner_PacingBetweenCalls(t *testing.T) {
	repo := newFakeRepo()
	seedUsers(repo, "c1", 3)

	fetcher := newFakeFetcher()
	notifier := &recordingNotifier{}
	delay := 40 * time.Millisecond
	r := newTestRunner(t, repo, fetcher, notifier, delay)

	_, err := r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)
	waitIdle(t, r)

	starts := fetcher.startTimes()
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		require.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), delay,
			"consecutive call starts must be at least one pause apart")
	}
}

func TestRunner_ReentryRejectedWhileRunning(t *testing.T) {
	repo := newFakeRepo()
	seedUsers(repo, "c1", 4)

	fetcher := newFakeFetcher()
	notifier := &recordingNotifier{}
	r := newTestRunner(t, repo, fetcher, notifier, 30*time.Millisecond)

	_, err := r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)

	// second start while running has no effect
	_, err = r.Start(context.Background(), "c1", "li_at=abc")
	require.ErrorIs(t, err, domain.ErrRunInProgress)

	// per-row triggers are disabled during a run too
	err = r.FetchOne(context.Background(), "c1", "u1", "li_at=abc")
	require.ErrorIs(t, err, domain.ErrRunInProgress)

	waitIdle(t, r)

	// exactly one traversal happened
	require.Len(t, fetcher.callOrder(), 4)

	// and the runner is reusable afterwards
	_, err = r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)
	waitIdle(t, r)
	require.Len(t, fetcher.callOrder(), 8)
}

func TestRunner_SingleFlightAcrossEntryPoints(t *testing.T) {
	repo := newFakeRepo()
	seedUsers(repo, "c1", 3)

	fetcher := newBlockingFetcher()
	notifier := &recordingNotifier{}
	cohorts := service.NewCohortService(repo, nil, notifier, nil)
	r := service.NewRunner(context.Background(), cohorts, fetcher, repo, notifier, nil, time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- r.FetchOne(context.Background(), "c1", "u1", "li_at=abc")
	}()

	// wait until u1 is actually in flight
	select {
	case id := <-fetcher.entered:
		require.Equal(t, "u1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch for u1 never started")
	}

	// while the row fetch holds the runner, nothing else may start a call
	_, err := r.Start(context.Background(), "c1", "li_at=abc")
	require.ErrorIs(t, err, domain.ErrRunInProgress)
	require.ErrorIs(t, r.FetchOne(context.Background(), "c1", "u2", "li_at=abc"), domain.ErrRunInProgress)

	// no second call slipped in behind u1
	select {
	case id := <-fetcher.entered:
		t.Fatalf("call for %q overlapped the in-flight fetch", id)
	default:
	}

	close(fetcher.release)
	require.NoError(t, <-done)

	// the runner frees up once the fetch returns
	_, err = r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		<-fetcher.entered
	}
	waitIdle(t, r)
}

func TestRunner_ProgressResetsOnNewRun(t *testing.T) {
	repo := newFakeRepo()
	seedUsers(repo, "c1", 2)

	fetcher := newFakeFetcher()
	notifier := &recordingNotifier{}
	r := newTestRunner(t, repo, fetcher, notifier, time.Millisecond)

	_, err := r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)
	waitIdle(t, r)
	require.Equal(t, 2, r.Status().Completed)

	st, err := r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)
	require.Equal(t, 0, st.Completed)
	waitIdle(t, r)
}

func TestRunner_ShutdownStopsRun(t *testing.T) {
	repo := newFakeRepo()
	seedUsers(repo, "c1", 50)

	fetcher := newFakeFetcher()
	notifier := &recordingNotifier{}
	cohorts := service.NewCohortService(repo, nil, notifier, nil)

	rootCtx, cancel := context.WithCancel(context.Background())
	r := service.NewRunner(rootCtx, cohorts, fetcher, repo, notifier, nil, 20*time.Millisecond)

	_, err := r.Start(context.Background(), "c1", "li_at=abc")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	cancel()
	waitIdle(t, r)

	// the run stopped short and never emitted the aggregate notification
	require.Less(t, len(fetcher.callOrder()), 50)
	for _, n := range notifier.all() {
		require.NotEqual(t, "Batch Fetch Complete", n.Title)
	}
}

func TestRunner_StartValidation(t *testing.T) {
	repo := newFakeRepo()
	fetcher := newFakeFetcher()
	notifier := &recordingNotifier{}
	r := newTestRunner(t, repo, fetcher, notifier, time.Millisecond)

	_, err := r.Start(context.Background(), "", "li_at=abc")
	require.ErrorIs(t, err, domain.ErrCohortRequired)

	_, err = r.Start(context.Background(), "empty-cohort", "li_at=abc")
	require.ErrorIs(t, err, domain.ErrNoUsers)

	require.Empty(t, fetcher.callOrder())
}

func TestRunner_FetchOne(t *testing.T) {
	repo := newFakeRepo()
	seedUsers(repo, "c1", 3)

	fetcher := newFakeFetcher()
	fetcher.failOn["u3"] = &domain.FetchError{StatusCode: 429, Detail: "rate limited"}

	notifier := &recordingNotifier{}
	r := newTestRunner(t, repo, fetcher, notifier, time.Millisecond)

	require.NoError(t, r.FetchOne(context.Background(), "c1", "u2", "li_at=abc"))

	err := r.FetchOne(context.Background(), "c1", "u3", "li_at=abc")
	require.Error(t, err)

	err = r.FetchOne(context.Background(), "c1", "nope", "li_at=abc")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	notifs := notifier.all()
	require.Len(t, notifs, 2)
	require.Equal(t, domain.SeveritySuccess, notifs[0].Severity)
	require.Contains(t, notifs[0].Description, "User 2")
	require.Equal(t, domain.SeverityError, notifs[1].Severity)
	require.Contains(t, notifs[1].Description, "rate limited")
}
