package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCohortUsers returns the cohort's rows in snapshot position order.
// Position is assigned at snapshot replace time, so table order, runner
// iteration order and CSV order all agree.
func (r *Repository) ListCohortUsers(ctx context.Context, cohortID string) ([]domain.CohortUser, error) {
	cohortID = strings.TrimSpace(cohortID)
	if cohortID == "" {
		return nil, domain.ErrCohortRequired
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, name, email, total_posts, total_likes, total_comments, last_posted
		FROM cohort_users
		WHERE cohort_id = $1
		ORDER BY position ASC
	`, cohortID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.CohortUser
	for rows.Next() {
		var u domain.CohortUser
		var name, email *string
		var lastPosted *time.Time
		if err := rows.Scan(&u.ID, &name, &email, &u.TotalPosts, &u.TotalLikes, &u.TotalComments, &lastPosted); err != nil {
			return nil, err
		}
		if name != nil {
			u.Name = *name
		}
		if email != nil {
			u.Email = *email
		}
		u.LastPosted = lastPosted
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// ReplaceCohortSnapshot swaps the cohort's rows wholesale. One transaction:
// either the new snapshot lands complete or the old one stays.
func (r *Repository) ReplaceCohortSnapshot(ctx context.Context, cohortID string, users []domain.CohortUser) error {
	cohortID = strings.TrimSpace(cohortID)
	if cohortID == "" {
		return domain.ErrCohortRequired
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM cohort_users WHERE cohort_id = $1`, cohortID); err != nil {
		return err
	}

	for i, u := range users {
		var name, email *string
		if strings.TrimSpace(u.Name) != "" {
			name = &u.Name
		}
		if strings.TrimSpace(u.Email) != "" {
			email = &u.Email
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cohort_users
				(cohort_id, user_id, position, name, email, total_posts, total_likes, total_comments, last_posted, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		`, cohortID, u.ID, i, name, email, u.TotalPosts, u.TotalLikes, u.TotalComments, u.LastPosted)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// RecordFetch appends one per-user attempt to the fetch log. The log is
// append-only; user counters are never updated here.
func (r *Repository) RecordFetch(ctx context.Context, rec domain.FetchRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fetch_log (run_id, user_id, outcome, detail, at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.RunID, rec.UserID, string(rec.Outcome), rec.Detail, at)
	return err
}
