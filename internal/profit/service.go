// Package profit splits realised sale profits between investor and company
// and pays the investor's share through the transaction processor.
package profit

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"propvest/internal/events"
	"propvest/internal/transaction"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/lock"
	"propvest/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

type Repository interface {
	// Create fails with ErrProfitAlreadyExists when the sale already has one.
	Create(ctx context.Context, p *domain.Profit) error
	FindByID(ctx context.Context, id int64) (*domain.Profit, error)
	FindBySaleID(ctx context.Context, saleID int64) (*domain.Profit, error)
	// MarkDistributed fails with ErrInvalidStateTransition unless pending.
	// transactionID is nil when there was nothing to credit.
	MarkDistributed(ctx context.Context, id int64, transactionID *int64, at time.Time) error
	Cancel(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, status *domain.ProfitStatus, limit, offset int) ([]*domain.Profit, int, error)
	Summary(ctx context.Context) (*domain.ProfitSummary, error)
}

type SaleReader interface {
	FindByID(ctx context.Context, id int64) (*domain.Sale, error)
}

type InvestmentStore interface {
	FindByID(ctx context.Context, id int64) (*domain.Investment, error)
	AddActualReturn(ctx context.Context, id int64, amount decimal.Decimal) error
}

type Processor interface {
	CreditProfit(ctx context.Context, req transaction.CreditProfitRequest) (*domain.Transaction, error)
}

type Policy interface {
	Current(ctx context.Context) (*domain.Settings, error)
}

type Service struct {
	repo        Repository
	sales       SaleReader
	investments InvestmentStore
	processor   Processor
	policy      Policy
	publisher   events.Publisher
	locks       *lock.Keyed[int64]
	workers     int
	logger      logger.Logger
	now         func() time.Time
}

func NewService(repo Repository, sales SaleReader, investments InvestmentStore, processor Processor, policy Policy, pub events.Publisher, workers int, log logger.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:        repo,
		sales:       sales,
		investments: investments,
		processor:   processor,
		policy:      policy,
		publisher:   pub,
		locks:       lock.NewKeyed[int64](),
		workers:     workers,
		logger:      log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Split returns the investor and company shares of total for an investor
// percentage. The company share absorbs rounding so the two always add up.
func Split(total, percentage decimal.Decimal) (investor, company decimal.Decimal) {
	investor = total.Mul(percentage).Div(hundred).Round(2)
	company = total.Sub(investor)
	return investor, company
}

// Calculate creates the pending profit record for a sale. A nil percentage
// uses the configured default.
func (s *Service) Calculate(ctx context.Context, saleID int64, percentage *decimal.Decimal) (*domain.Profit, error) {
	if percentage == nil {
		policy, err := s.policy.Current(ctx)
		if err != nil {
			return nil, err
		}
		p := policy.DefaultProfitPercent
		percentage = &p
	}
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return nil, pkgerrors.NewValidationError("profit_percentage", "Must be between 0 and 100")
	}

	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, pkgerrors.ErrProfitAlreadyExists
	}
	if !sale.ProfitAmount.IsPositive() {
		return nil, pkgerrors.NewValidationError("sale_id", "Sale has no profit to distribute")
	}

	inv, err := s.investments.FindByID(ctx, sale.InvestmentID)
	if err != nil {
		return nil, err
	}

	investorShare, companyShare := Split(sale.ProfitAmount, *percentage)
	now := s.now()
	p := &domain.Profit{
		UserID:            inv.UserID,
		InvestmentID:      inv.ID,
		SaleID:            sale.ID,
		TotalProfit:       sale.ProfitAmount,
		ProfitPercentage:  *percentage,
		CompanyPercentage: hundred.Sub(*percentage),
		InvestorShare:     investorShare,
		CompanyShare:      companyShare,
		Status:            domain.ProfitStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Profit calculated", map[string]interface{}{
		"profit_id":      p.ID,
		"sale_id":        sale.ID,
		"total_profit":   p.TotalProfit.String(),
		"investor_share": p.InvestorShare.String(),
		"company_share":  p.CompanyShare.String(),
	})
	s.announce(ctx, events.TypeProfitCalculated, inv.WalletID, p)
	return p, nil
}

// Distribute credits the investor share and marks the profit distributed.
// A second call returns ErrAlreadyDistributed without paying again.
func (s *Service) Distribute(ctx context.Context, id int64) (*domain.Profit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case domain.ProfitStatusDistributed:
		return nil, pkgerrors.ErrAlreadyDistributed
	case domain.ProfitStatusCancelled:
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "profit is cancelled")
	}

	inv, err := s.investments.FindByID(ctx, p.InvestmentID)
	if err != nil {
		return nil, err
	}

	// A zero investor share has nothing to credit.
	var txID *int64
	if p.InvestorShare.IsPositive() {
		tx, err := s.processor.CreditProfit(ctx, transaction.CreditProfitRequest{
			WalletID:     inv.WalletID,
			ProfitID:     p.ID,
			InvestmentID: inv.ID,
			Amount:       p.InvestorShare,
		})
		if err != nil {
			return nil, err
		}
		txID = &tx.ID
	}

	now := s.now()
	if err := s.repo.MarkDistributed(ctx, p.ID, txID, now); err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidStateTransition) {
			return nil, pkgerrors.ErrAlreadyDistributed
		}
		return nil, err
	}
	p.Status = domain.ProfitStatusDistributed
	p.DistributionDate = &now
	p.TransactionID = txID
	p.UpdatedAt = now

	if p.InvestorShare.IsPositive() {
		if err := s.investments.AddActualReturn(ctx, inv.ID, p.InvestorShare); err != nil {
			s.logger.Warn("Investment return not updated", map[string]interface{}{
				"investment_id": inv.ID,
				"profit_id":     p.ID,
				"error":         err.Error(),
			})
		}
	}

	fields := map[string]interface{}{
		"profit_id": p.ID,
		"wallet_id": inv.WalletID,
		"amount":    p.InvestorShare.String(),
	}
	if txID != nil {
		fields["transaction_id"] = *txID
	}
	s.logger.Info("Profit distributed", fields)
	s.announce(ctx, events.TypeProfitDistributed, inv.WalletID, p)
	return p, nil
}

const (
	BulkSuccess = "success"
	BulkFailed  = "failed"
)

type BulkResult struct {
	ProfitID      int64  `json:"profit_id"`
	Status        string `json:"status"`
	TransactionID *int64 `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// DistributeBulk distributes each id independently with a bounded number of
// workers and reports one result per id, in input order. Ledger locking
// keeps credits to the same wallet serialized.
func (s *Service) DistributeBulk(ctx context.Context, ids []int64) []BulkResult {
	results := make([]BulkResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res := BulkResult{ProfitID: id, Status: BulkSuccess}
			p, err := s.Distribute(gctx, id)
			if err != nil {
				res.Status = BulkFailed
				res.Error = err.Error()
			} else {
				res.TransactionID = p.TransactionID
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Status == BulkFailed {
			failed++
		}
	}
	s.logger.Info("Bulk profit distribution finished", map[string]interface{}{
		"requested": len(ids),
		"failed":    failed,
	})
	return results
}

func (s *Service) Cancel(ctx context.Context, id int64) (*domain.Profit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.ProfitStatusDistributed {
		return nil, pkgerrors.ErrAlreadyDistributed
	}
	if p.Status != domain.ProfitStatusPending {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "profit is not pending")
	}
	if err := s.repo.Cancel(ctx, id); err != nil {
		return nil, err
	}
	p.Status = domain.ProfitStatusCancelled
	p.UpdatedAt = s.now()
	return p, nil
}

// Delete removes a profit that was never paid out.
func (s *Service) Delete(ctx context.Context, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == domain.ProfitStatusDistributed {
		return pkgerrors.Wrap(pkgerrors.ErrAlreadyDistributed, "distributed profits cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Profit deleted", map[string]interface{}{"profit_id": id})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Profit, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status *domain.ProfitStatus, limit, offset int) ([]*domain.Profit, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) Summary(ctx context.Context) (*domain.ProfitSummary, error) {
	return s.repo.Summary(ctx)
}

func (s *Service) announce(ctx context.Context, eventType string, walletID int64, p *domain.Profit) {
	if err := s.publisher.Publish(ctx, events.New(eventType, walletID, p)); err != nil {
		s.logger.Warn("Profit event not published", map[string]interface{}{
			"profit_id": p.ID,
			"error":     err.Error(),
		})
	}
}
