package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
)

type ProfitRepository struct{ s *Store }

func (s *Store) Profits() *ProfitRepository { return &ProfitRepository{s: s} }

func (r *ProfitRepository) Create(ctx context.Context, p *domain.Profit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.profits {
		if other.SaleID == p.SaleID {
			return pkgerrors.ErrProfitAlreadyExists
		}
	}
	p.ID = r.s.nextID()
	r.s.profits[p.ID] = *p
	return nil
}

func (r *ProfitRepository) FindByID(ctx context.Context, id int64) (*domain.Profit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profits[id]
	if !ok {
		return nil, pkgerrors.ErrProfitNotFound
	}
	return &p, nil
}

func (r *ProfitRepository) FindBySaleID(ctx context.Context, saleID int64) (*domain.Profit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.profits {
		if p.SaleID == saleID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *ProfitRepository) MarkDistributed(ctx context.Context, id int64, transactionID *int64, at time.Time) error {
	return r.transition(id, func(p *domain.Profit) {
		p.Status = domain.ProfitStatusDistributed
		p.TransactionID = transactionID
		p.DistributionDate = &at
		p.UpdatedAt = at
	})
}

func (r *ProfitRepository) Cancel(ctx context.Context, id int64) error {
	return r.transition(id, func(p *domain.Profit) {
		p.Status = domain.ProfitStatusCancelled
		p.UpdatedAt = time.Now().UTC()
	})
}

func (r *ProfitRepository) transition(id int64, apply func(p *domain.Profit)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profits[id]
	if !ok {
		return pkgerrors.ErrProfitNotFound
	}
	if p.Status != domain.ProfitStatusPending {
		return pkgerrors.ErrInvalidStateTransition
	}
	apply(&p)
	r.s.profits[id] = p
	return nil
}

func (r *ProfitRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profits[id]
	if !ok {
		return pkgerrors.ErrProfitNotFound
	}
	if p.Status == domain.ProfitStatusDistributed {
		return pkgerrors.ErrAlreadyDistributed
	}
	for _, tx := range r.s.transactions {
		if tx.ProfitID != nil && *tx.ProfitID == id {
			return pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "profit has recorded transactions")
		}
	}
	delete(r.s.profits, id)
	return nil
}

func (r *ProfitRepository) List(ctx context.Context, status *domain.ProfitStatus, limit, offset int) ([]*domain.Profit, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Profit
	for _, p := range r.s.profits {
		if status != nil && p.Status != *status {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sortDesc(out, func(p *domain.Profit) int64 { return p.ID })
	return page(out, limit, offset), len(out), nil
}

func (r *ProfitRepository) Summary(ctx context.Context) (*domain.ProfitSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := &domain.ProfitSummary{}
	for _, p := range r.s.profits {
		switch p.Status {
		case domain.ProfitStatusPending:
			sum.PendingCount++
			sum.PendingAmount = sum.PendingAmount.Add(p.InvestorShare)
		case domain.ProfitStatusDistributed:
			sum.DistributedCount++
			sum.DistributedAmount = sum.DistributedAmount.Add(p.InvestorShare)
			sum.CompanyShareAmount = sum.CompanyShareAmount.Add(p.CompanyShare)
		}
	}
	return sum, nil
}

type InvestmentRepository struct{ s *Store }

func (s *Store) Investments() *InvestmentRepository { return &InvestmentRepository{s: s} }

func (r *InvestmentRepository) Create(ctx context.Context, inv *domain.Investment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv.ID = r.s.nextID()
	r.s.investments[inv.ID] = *inv
	return nil
}

func (r *InvestmentRepository) FindByID(ctx context.Context, id int64) (*domain.Investment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.investments[id]
	if !ok {
		return nil, pkgerrors.ErrInvestmentNotFound
	}
	return &inv, nil
}

func (r *InvestmentRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.InvestmentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.investments[id]
	if !ok {
		return pkgerrors.ErrInvestmentNotFound
	}
	if inv.Status != from {
		return pkgerrors.ErrInvalidStateTransition
	}
	inv.Status = to
	inv.UpdatedAt = time.Now().UTC()
	r.s.investments[id] = inv
	return nil
}

func (r *InvestmentRepository) AddActualReturn(ctx context.Context, id int64, amount decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.investments[id]
	if !ok {
		return pkgerrors.ErrInvestmentNotFound
	}
	total := amount
	if inv.ActualReturn != nil {
		total = inv.ActualReturn.Add(amount)
	}
	inv.ActualReturn = &total
	r.s.investments[id] = inv
	return nil
}

func (r *InvestmentRepository) List(ctx context.Context, f domain.InvestmentFilter) ([]*domain.Investment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Investment
	for _, inv := range r.s.investments {
		switch {
		case f.UserID != nil && inv.UserID != *f.UserID,
			f.PropertyID != nil && inv.PropertyID != *f.PropertyID,
			f.Status != nil && inv.Status != *f.Status:
			continue
		}
		inv := inv
		out = append(out, &inv)
	}
	sortDesc(out, func(inv *domain.Investment) int64 { return inv.ID })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *InvestmentRepository) FindMatured(ctx context.Context, asOf time.Time, limit int) ([]*domain.Investment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Investment
	for _, inv := range r.s.investments {
		if inv.Status == domain.InvestmentStatusActive && inv.MaturityDate != nil && !inv.MaturityDate.After(asOf) {
			inv := inv
			out = append(out, &inv)
		}
	}
	return page(out, limit, 0), nil
}

// SetMaturity rewrites an investment's maturity date.
func (r *InvestmentRepository) SetMaturity(id int64, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv := r.s.investments[id]
	inv.MaturityDate = &at
	r.s.investments[id] = inv
}
