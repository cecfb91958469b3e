// Package security records login attempts and admin mutations in the
// security log and seals secrets kept at rest.
package security

import (
	"context"
	"time"

	"propvest/pkg/domain"
	"propvest/pkg/logger"
)

type Repository interface {
	Create(ctx context.Context, entry *domain.SecurityLog) error
	List(ctx context.Context, filter domain.SecurityLogFilter) ([]*domain.SecurityLog, int, error)
}

type Service struct {
	repo   Repository
	logger logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, logger: log, now: func() time.Time { return time.Now().UTC() }}
}

// Log stores an entry. Failures are logged, not returned.
func (s *Service) Log(ctx context.Context, entry *domain.SecurityLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.Details == nil {
		entry.Details = domain.Metadata{}
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write security log", map[string]interface{}{
			"action": entry.Action,
			"error":  err.Error(),
		})
	}
}

func (s *Service) List(ctx context.Context, filter domain.SecurityLogFilter) ([]*domain.SecurityLog, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}
