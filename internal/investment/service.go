package investment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"propvest/internal/events"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/logger"
)

type Repository interface {
	Create(ctx context.Context, inv *domain.Investment) error
	FindByID(ctx context.Context, id int64) (*domain.Investment, error)
	// UpdateStatus moves an investment from one status to another and fails
	// with ErrInvalidStateTransition when it is no longer in from.
	UpdateStatus(ctx context.Context, id int64, from, to domain.InvestmentStatus) error
	AddActualReturn(ctx context.Context, id int64, amount decimal.Decimal) error
	List(ctx context.Context, filter domain.InvestmentFilter) ([]*domain.Investment, int, error)
	FindMatured(ctx context.Context, asOf time.Time, limit int) ([]*domain.Investment, error)
}

type PropertyReader interface {
	FindByID(ctx context.Context, id int64) (*domain.Property, error)
}

type PlotStore interface {
	FindByID(ctx context.Context, id int64) (*domain.Plot, error)
	Reserve(ctx context.Context, id int64) (*domain.Plot, error)
	Release(ctx context.Context, id int64) error
}

type WalletFinder interface {
	FindByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)
}

type Processor interface {
	DebitInvestment(ctx context.Context, walletID, investmentID int64, amount decimal.Decimal) (*domain.Transaction, error)
	RefundInvestment(ctx context.Context, walletID, investmentID int64, amount decimal.Decimal, reason string) (*domain.Transaction, error)
}

type Service struct {
	repo       Repository
	properties PropertyReader
	plots      PlotStore
	wallets    WalletFinder
	processor  Processor
	publisher  events.Publisher
	logger     logger.Logger
	now        func() time.Time
}

func NewService(repo Repository, properties PropertyReader, plots PlotStore, wallets WalletFinder, processor Processor, pub events.Publisher, log logger.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:       repo,
		properties: properties,
		plots:      plots,
		wallets:    wallets,
		processor:  processor,
		publisher:  pub,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	UserID         int64            `json:"-"`
	PropertyID     int64            `json:"property_id" validate:"required,gt=0"`
	PlotID         *int64           `json:"plot_id" validate:"omitempty,gt=0"`
	Amount         decimal.Decimal  `json:"amount" validate:"required,gt=0"`
	ExpectedReturn *decimal.Decimal `json:"expected_return" validate:"omitempty,gte=0"`
	ReturnRate     *decimal.Decimal `json:"return_rate" validate:"omitempty,gte=0,lte=100"`
	MaturityDate   *time.Time       `json:"maturity_date"`
}

// Create debits the investor's wallet and activates the investment. The plot,
// when given, is reserved first and released again if the debit fails.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*domain.Investment, error) {
	if req.MaturityDate != nil && !req.MaturityDate.After(s.now()) {
		return nil, pkgerrors.NewValidationError("maturity_date", "Must be in the future")
	}

	property, err := s.properties.FindByID(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if property.Status != domain.PropertyStatusActive {
		return nil, pkgerrors.NewValidationError("property_id", "Property is not open for investment")
	}

	wallet, err := s.wallets.FindByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.PlotID != nil {
		plot, err := s.plots.FindByID(ctx, *req.PlotID)
		if err != nil {
			return nil, err
		}
		if plot.PropertyID != property.ID {
			return nil, pkgerrors.NewValidationError("plot_id", "Plot does not belong to the property")
		}
		if _, err := s.plots.Reserve(ctx, plot.ID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	inv := &domain.Investment{
		UserID:         req.UserID,
		WalletID:       wallet.ID,
		PropertyID:     property.ID,
		PlotID:         req.PlotID,
		Amount:         req.Amount,
		Status:         domain.InvestmentStatusPending,
		ExpectedReturn: req.ExpectedReturn,
		ReturnRate:     req.ReturnRate,
		MaturityDate:   req.MaturityDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		s.releasePlot(ctx, inv.PlotID)
		return nil, err
	}

	if _, err := s.processor.DebitInvestment(ctx, wallet.ID, inv.ID, inv.Amount); err != nil {
		if stErr := s.repo.UpdateStatus(ctx, inv.ID, domain.InvestmentStatusPending, domain.InvestmentStatusCancelled); stErr != nil {
			s.logger.Error("Failed to cancel unfunded investment", map[string]interface{}{
				"investment_id": inv.ID,
				"error":         stErr.Error(),
			})
		}
		s.releasePlot(ctx, inv.PlotID)
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, inv.ID, domain.InvestmentStatusPending, domain.InvestmentStatusActive); err != nil {
		return nil, err
	}
	inv.Status = domain.InvestmentStatusActive

	s.logger.Info("Investment created", map[string]interface{}{
		"investment_id": inv.ID,
		"user_id":       inv.UserID,
		"property_id":   inv.PropertyID,
		"amount":        inv.Amount.String(),
	})
	s.announce(ctx, inv)
	return inv, nil
}

// Cancel refunds the invested amount and frees the plot. Investments whose
// plot has already been sold cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*domain.Investment, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvestmentStatusPending && inv.Status != domain.InvestmentStatusActive {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "investment is "+string(inv.Status))
	}
	if inv.PlotID != nil {
		plot, err := s.plots.FindByID(ctx, *inv.PlotID)
		if err != nil {
			return nil, err
		}
		if plot.Status == domain.PlotStatusSold {
			return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "plot already sold")
		}
	}
	if reason == "" {
		reason = "investment cancelled"
	}

	if inv.Status == domain.InvestmentStatusActive {
		if _, err := s.processor.RefundInvestment(ctx, inv.WalletID, inv.ID, inv.Amount, reason); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, inv.ID, inv.Status, domain.InvestmentStatusCancelled); err != nil {
		return nil, err
	}
	inv.Status = domain.InvestmentStatusCancelled
	inv.UpdatedAt = s.now()
	s.releasePlot(ctx, inv.PlotID)

	s.logger.Info("Investment cancelled", map[string]interface{}{
		"investment_id": inv.ID,
		"reason":        reason,
	})
	s.announce(ctx, inv)
	return inv, nil
}

// MatureDue completes active investments whose maturity date has passed.
func (s *Service) MatureDue(ctx context.Context) (int, error) {
	due, err := s.repo.FindMatured(ctx, s.now(), 500)
	if err != nil {
		return 0, err
	}
	matured := 0
	for _, inv := range due {
		err := s.repo.UpdateStatus(ctx, inv.ID, domain.InvestmentStatusActive, domain.InvestmentStatusCompleted)
		if err != nil {
			if !errors.Is(err, pkgerrors.ErrInvalidStateTransition) {
				s.logger.Error("Failed to mature investment", map[string]interface{}{
					"investment_id": inv.ID,
					"error":         err.Error(),
				})
			}
			continue
		}
		inv.Status = domain.InvestmentStatusCompleted
		matured++
		s.announce(ctx, inv)
	}
	return matured, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Investment, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter domain.InvestmentFilter) ([]*domain.Investment, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) releasePlot(ctx context.Context, plotID *int64) {
	if plotID == nil {
		return
	}
	if err := s.plots.Release(ctx, *plotID); err != nil {
		s.logger.Warn("Plot not released", map[string]interface{}{
			"plot_id": *plotID,
			"error":   err.Error(),
		})
	}
}

func (s *Service) announce(ctx context.Context, inv *domain.Investment) {
	if err := s.publisher.Publish(ctx, events.New(events.TypeInvestmentChanged, inv.WalletID, inv)); err != nil {
		s.logger.Warn("Investment event not published", map[string]interface{}{
			"investment_id": inv.ID,
			"error":         err.Error(),
		})
	}
}
