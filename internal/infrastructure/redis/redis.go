package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(addr, pass string, db int, ttl time.Duration) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{Client: rdb, TTL: ttl}
}

func cohortKey(cohortID string) string {
	return "cohort:users:" + cohortID
}

// GetCohortUsers returns the cached snapshot for a cohort, position order
// preserved by the JSON encoding.
func (c *Cache) GetCohortUsers(ctx context.Context, cohortID string) ([]domain.CohortUser, error) {
	val, err := c.Client.Get(ctx, cohortKey(cohortID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}

	var users []domain.CohortUser
	if err := json.Unmarshal(val, &users); err != nil {
		// stale or corrupt entry; treat as a miss
		_ = c.Client.Del(ctx, cohortKey(cohortID)).Err()
		return nil, domain.ErrCacheMiss
	}
	return users, nil
}

func (c *Cache) SetCohortUsers(ctx context.Context, cohortID string, users []domain.CohortUser) error {
	b, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, cohortKey(cohortID), b, c.TTL).Err()
}

func (c *Cache) InvalidateCohort(ctx context.Context, cohortID string) error {
	return c.Client.Del(ctx, cohortKey(cohortID)).Err()
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
