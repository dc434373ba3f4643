package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/100x-Engineers100/ugc-tracker/internal/audit"
	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/100x-Engineers100/ugc-tracker/internal/export"
)

// CohortService owns the cohort snapshot: the one list that feeds the
// table, the batch runner and the CSV export.
type CohortService struct {
	repo     domain.UserRepository
	cache    domain.CacheRepository
	notifier domain.Notifier
	auditLog *audit.Logger
}

func NewCohortService(repo domain.UserRepository, cache domain.CacheRepository, notifier domain.Notifier, auditLog *audit.Logger) *CohortService {
	return &CohortService{repo: repo, cache: cache, notifier: notifier, auditLog: auditLog}
}

// LoadUsers returns the current snapshot in rank order. An empty cohort id
// is a no-op: no read is issued.
func (s *CohortService) LoadUsers(ctx context.Context, cohortID string) ([]domain.CohortUser, error) {
	cohortID = strings.TrimSpace(cohortID)
	if cohortID == "" {
		return nil, domain.ErrCohortRequired
	}

	if s.cache != nil {
		// a miss or a redis error both degrade to the repository read
		if users, err := s.cache.GetCohortUsers(ctx, cohortID); err == nil {
			return users, nil
		}
	}

	users, err := s.repo.ListCohortUsers(ctx, cohortID)
	if err != nil {
		return nil, fmt.Errorf("load cohort %s: %w", cohortID, err)
	}

	if s.cache != nil && len(users) > 0 {
		_ = s.cache.SetCohortUsers(ctx, cohortID, users)
	}

	return users, nil
}

// ReplaceSnapshot swaps the cohort's rows wholesale and drops the cached
// copy so the next read sees the new list.
func (s *CohortService) ReplaceSnapshot(ctx context.Context, cohortID string, users []domain.CohortUser) error {
	cohortID = strings.TrimSpace(cohortID)
	if cohortID == "" {
		return domain.ErrCohortRequired
	}

	if err := s.repo.ReplaceCohortSnapshot(ctx, cohortID, users); err != nil {
		return fmt.Errorf("replace snapshot for cohort %s: %w", cohortID, err)
	}
	if s.cache != nil {
		_ = s.cache.InvalidateCohort(ctx, cohortID)
	}
	if s.auditLog != nil {
		s.auditLog.SnapshotReplaced(ctx, cohortID, len(users))
	}
	return nil
}

// ExportCSV serializes the current snapshot. An empty snapshot produces no
// artifact, only an informational notification.
func (s *CohortService) ExportCSV(ctx context.Context, cohortID string) (string, error) {
	users, err := s.LoadUsers(ctx, cohortID)
	if err != nil {
		return "", err
	}

	if len(users) == 0 {
		s.notify(ctx, domain.Notification{
			Severity:    domain.SeverityInfo,
			Title:       "No Data",
			Description: "There are no users to export.",
		})
		return "", domain.ErrNoUsers
	}

	csv := export.CSV(users)

	s.notify(ctx, domain.Notification{
		Severity:    domain.SeveritySuccess,
		Title:       "Export Complete",
		Description: fmt.Sprintf("Exported %d users to %s.", len(users), export.Filename),
	})
	if s.auditLog != nil {
		s.auditLog.Exported(ctx, cohortID, len(users))
	}

	return csv, nil
}

func (s *CohortService) notify(ctx context.Context, n domain.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}
