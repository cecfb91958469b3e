package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type InvestmentRepository struct {
	db *sqlx.DB
}

func NewInvestmentRepository(db *sqlx.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

func (r *InvestmentRepository) Create(ctx context.Context, inv *domain.Investment) error {
	query := `
		INSERT INTO investments (
			user_id, wallet_id, property_id, plot_id, amount, status, expected_return,
			actual_return, return_rate, maturity_date, reinvestment_count, created_at, updated_at
		) VALUES (
			:user_id, :wallet_id, :property_id, :plot_id, :amount, :status, :expected_return,
			:actual_return, :return_rate, :maturity_date, :reinvestment_count, :created_at, :updated_at
		)
		RETURNING id
	`
	id, err := insertReturningID(ctx, r.db, query, inv)
	if err != nil {
		return errors.Wrap(err, "failed to create investment")
	}
	inv.ID = id
	return nil
}

func (r *InvestmentRepository) FindByID(ctx context.Context, id int64) (*domain.Investment, error) {
	inv := &domain.Investment{}
	if err := r.db.GetContext(ctx, inv, `SELECT * FROM investments WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrInvestmentNotFound
		}
		return nil, errors.Wrap(err, "failed to find investment by id")
	}
	return inv, nil
}

// UpdateStatus moves an investment from one status to another and fails
// when it is no longer in from.
func (r *InvestmentRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.InvestmentStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE investments SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return errors.Wrap(err, "failed to update investment status")
	}
	if err := expectOneRow(res, errors.ErrInvalidStateTransition); err != nil {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return err
	}
	return nil
}

func (r *InvestmentRepository) AddActualReturn(ctx context.Context, id int64, amount decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE investments SET actual_return = COALESCE(actual_return, 0) + $1, updated_at = NOW()
		WHERE id = $2
	`, amount, id)
	if err != nil {
		return errors.Wrap(err, "failed to add actual return")
	}
	return expectOneRow(res, errors.ErrInvestmentNotFound)
}

func (r *InvestmentRepository) List(ctx context.Context, f domain.InvestmentFilter) ([]*domain.Investment, int, error) {
	w := &where{}
	if f.UserID != nil {
		w.add("user_id = $%d", *f.UserID)
	}
	if f.PropertyID != nil {
		w.add("property_id = $%d", *f.PropertyID)
	}
	if f.Status != nil {
		w.add("status = $%d", *f.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM investments`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count investments")
	}

	suffix, args := w.page(f.Limit, f.Offset)
	items := []*domain.Investment{}
	if err := r.db.SelectContext(ctx, &items, `SELECT * FROM investments`+w.String()+` ORDER BY id DESC`+suffix, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list investments")
	}
	return items, total, nil
}

func (r *InvestmentRepository) FindMatured(ctx context.Context, asOf time.Time, limit int) ([]*domain.Investment, error) {
	items := []*domain.Investment{}
	query := `
		SELECT * FROM investments
		WHERE status = 'active' AND maturity_date IS NOT NULL AND maturity_date <= $1
		ORDER BY maturity_date ASC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &items, query, asOf, limit); err != nil {
		return nil, errors.Wrap(err, "failed to find matured investments")
	}
	return items, nil
}
