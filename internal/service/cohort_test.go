package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/100x-Engineers100/ugc-tracker/internal/service"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]domain.CohortUser
	sets   int
	dels   int
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]domain.CohortUser{}}
}

func (c *fakeCache) GetCohortUsers(ctx context.Context, cohortID string) ([]domain.CohortUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	users, ok := c.data[cohortID]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return users, nil
}

func (c *fakeCache) SetCohortUsers(ctx context.Context, cohortID string, users []domain.CohortUser) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cohortID] = users
	c.sets++
	return nil
}

func (c *fakeCache) InvalidateCohort(ctx context.Context, cohortID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, cohortID)
	c.dels++
	return nil
}

func (c *fakeCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func TestCohortService_LoadUsers(t *testing.T) {
	t.Run("empty cohort id issues no read", func(t *testing.T) {
		repo := newFakeRepo()
		svc := service.NewCohortService(repo, nil, nil, nil)

		_, err := svc.LoadUsers(context.Background(), "  ")
		require.ErrorIs(t, err, domain.ErrCohortRequired)
	})

	t.Run("repository order is preserved", func(t *testing.T) {
		repo := newFakeRepo()
		seeded := seedUsers(repo, "c1", 5)
		svc := service.NewCohortService(repo, nil, nil, nil)

		users, err := svc.LoadUsers(context.Background(), "c1")
		require.NoError(t, err)
		require.Equal(t, seeded, users)
	})

	t.Run("repository failure surfaces", func(t *testing.T) {
		repo := newFakeRepo()
		repo.listErr = errors.New("boom")
		svc := service.NewCohortService(repo, nil, nil, nil)

		_, err := svc.LoadUsers(context.Background(), "c1")
		require.Error(t, err)
	})

	t.Run("cache hit skips the repository", func(t *testing.T) {
		repo := newFakeRepo()
		repo.listErr = errors.New("must not be called")
		cache := newFakeCache()
		cache.data["c1"] = []domain.CohortUser{{ID: "u1", Name: "A"}}

		svc := service.NewCohortService(repo, cache, nil, nil)
		users, err := svc.LoadUsers(context.Background(), "c1")
		require.NoError(t, err)
		require.Len(t, users, 1)
	})

	t.Run("cache error degrades to the repository", func(t *testing.T) {
		repo := newFakeRepo()
		seedUsers(repo, "c1", 2)
		cache := newFakeCache()
		cache.getErr = errors.New("redis down")

		svc := service.NewCohortService(repo, cache, nil, nil)
		users, err := svc.LoadUsers(context.Background(), "c1")
		require.NoError(t, err)
		require.Len(t, users, 2)
	})

	t.Run("miss populates the cache", func(t *testing.T) {
		repo := newFakeRepo()
		seedUsers(repo, "c1", 3)
		cache := newFakeCache()

		svc := service.NewCohortService(repo, cache, nil, nil)
		_, err := svc.LoadUsers(context.Background(), "c1")
		require.NoError(t, err)
		require.Equal(t, 1, cache.sets)
	})
}

func TestCohortService_ReplaceSnapshot(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	cache.data["c1"] = []domain.CohortUser{{ID: "stale"}}

	svc := service.NewCohortService(repo, cache, nil, nil)

	next := []domain.CohortUser{{ID: "u1"}, {ID: "u2"}}
	require.NoError(t, svc.ReplaceSnapshot(context.Background(), "c1", next))

	// the snapshot landed wholesale and the cached copy is gone
	got, err := repo.ListCohortUsers(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, next, got)
	require.Equal(t, 1, cache.dels)

	require.ErrorIs(t, svc.ReplaceSnapshot(context.Background(), "", nil), domain.ErrCohortRequired)
}

func TestCohortService_ExportCSV(t *testing.T) {
	t.Run("empty snapshot produces no artifact", func(t *testing.T) {
		repo := newFakeRepo()
		notifier := &recordingNotifier{}
		svc := service.NewCohortService(repo, nil, notifier, nil)

		_, err := svc.ExportCSV(context.Background(), "c1")
		require.ErrorIs(t, err, domain.ErrNoUsers)

		notifs := notifier.all()
		require.Len(t, notifs, 1)
		require.Equal(t, domain.SeverityInfo, notifs[0].Severity)
		require.Equal(t, "No Data", notifs[0].Title)
	})

	t.Run("export reflects the loaded snapshot", func(t *testing.T) {
		repo := newFakeRepo()
		seedUsers(repo, "c1", 2)
		notifier := &recordingNotifier{}
		svc := service.NewCohortService(repo, nil, notifier, nil)

		csv, err := svc.ExportCSV(context.Background(), "c1")
		require.NoError(t, err)
		require.Contains(t, csv, `"ID","Name","Email","Total Posts","Last Posted","Total Likes","Total Comments"`)
		require.Contains(t, csv, `"u1","User 1"`)

		notifs := notifier.all()
		require.Len(t, notifs, 1)
		require.Equal(t, domain.SeveritySuccess, notifs[0].Severity)
	})
}
