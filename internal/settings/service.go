package settings

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"propvest/pkg/cache"
	"propvest/pkg/config"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/logger"
)

const cacheKey = "settings:policy"

type Repository interface {
	// Get returns nil, nil when no row has been saved yet.
	Get(ctx context.Context) (*domain.Settings, error)
	Upsert(ctx context.Context, s *domain.Settings) error
}

type Service struct {
	repo     Repository
	cache    cache.Cache
	ttl      time.Duration
	defaults config.PolicyConfig
	logger   logger.Logger
}

func NewService(repo Repository, c cache.Cache, ttl time.Duration, defaults config.PolicyConfig, log logger.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{repo: repo, cache: c, ttl: ttl, defaults: defaults, logger: log}
}

// Defaults converts the configured policy into a Settings value.
func Defaults(p config.PolicyConfig) *domain.Settings {
	return &domain.Settings{
		MinDeposit:           p.MinDeposit,
		MinWithdrawal:        p.MinWithdrawal,
		AutoApproveCeiling:   p.AutoApproveCeiling,
		AutoApproveEnabled:   p.AutoApproveEnabled,
		DepositFeePercent:    p.DepositFeePercent,
		WithdrawalFeePercent: p.WithdrawalFeePercent,
		DefaultProfitPercent: p.DefaultProfitPercent,
		StalePendingHours:    int(p.StalePendingAfter / time.Hour),
	}
}

// Current returns the effective policy: the saved row when there is one,
// otherwise the configured defaults.
func (s *Service) Current(ctx context.Context) (*domain.Settings, error) {
	var cached domain.Settings
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Settings cache read failed", map[string]interface{}{"error": err.Error()})
	}

	current, err := s.repo.Get(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load settings")
	}
	if current == nil {
		current = Defaults(s.defaults)
	}

	if err := s.cache.Set(ctx, cacheKey, current, s.ttl); err != nil {
		s.logger.Warn("Settings cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return current, nil
}

type UpdateRequest struct {
	MinDeposit           *decimal.Decimal `json:"min_deposit" validate:"omitempty,gte=0"`
	MinWithdrawal        *decimal.Decimal `json:"min_withdrawal" validate:"omitempty,gte=0"`
	AutoApproveCeiling   *decimal.Decimal `json:"auto_approve_ceiling" validate:"omitempty,gt=0"`
	AutoApproveEnabled   *bool            `json:"auto_approve_enabled"`
	DepositFeePercent    *decimal.Decimal `json:"deposit_fee_percent" validate:"omitempty,gte=0,lt=100"`
	WithdrawalFeePercent *decimal.Decimal `json:"withdrawal_fee_percent" validate:"omitempty,gte=0,lt=100"`
	DefaultProfitPercent *decimal.Decimal `json:"default_profit_percent" validate:"omitempty,gte=0,lte=100"`
	StalePendingHours    *int             `json:"stale_pending_hours" validate:"omitempty,gte=1,lte=720"`
}

func (s *Service) Update(ctx context.Context, req *UpdateRequest, adminID int64) (*domain.Settings, error) {
	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	next := *current

	if req.MinDeposit != nil {
		next.MinDeposit = *req.MinDeposit
	}
	if req.MinWithdrawal != nil {
		next.MinWithdrawal = *req.MinWithdrawal
	}
	if req.AutoApproveCeiling != nil {
		next.AutoApproveCeiling = *req.AutoApproveCeiling
	}
	if req.AutoApproveEnabled != nil {
		next.AutoApproveEnabled = *req.AutoApproveEnabled
	}
	if req.DepositFeePercent != nil {
		next.DepositFeePercent = *req.DepositFeePercent
	}
	if req.WithdrawalFeePercent != nil {
		next.WithdrawalFeePercent = *req.WithdrawalFeePercent
	}
	if req.DefaultProfitPercent != nil {
		next.DefaultProfitPercent = *req.DefaultProfitPercent
	}
	if req.StalePendingHours != nil {
		next.StalePendingHours = *req.StalePendingHours
	}

	if next.AutoApproveCeiling.LessThanOrEqual(next.MinDeposit) {
		return nil, pkgerrors.NewValidationError("auto_approve_ceiling", "Must be greater than the minimum deposit")
	}

	next.UpdatedBy = &adminID
	next.UpdatedAt = time.Now().UTC()
	if err := s.repo.Upsert(ctx, &next); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to save settings")
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		s.logger.Warn("Settings cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}

	s.logger.Info("Settings updated", map[string]interface{}{
		"updated_by":           adminID,
		"auto_approve_ceiling": next.AutoApproveCeiling.String(),
		"auto_approve_enabled": next.AutoApproveEnabled,
	})
	return &next, nil
}
