package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type ProfitRepository struct {
	db *sqlx.DB
}

func NewProfitRepository(db *sqlx.DB) *ProfitRepository {
	return &ProfitRepository{db: db}
}

func (r *ProfitRepository) Create(ctx context.Context, p *domain.Profit) error {
	query := `
		INSERT INTO profits (
			user_id, investment_id, sale_id, total_profit, profit_percentage, company_percentage,
			investor_share, company_share, status, created_at, updated_at
		) VALUES (
			:user_id, :investment_id, :sale_id, :total_profit, :profit_percentage, :company_percentage,
			:investor_share, :company_share, :status, :created_at, :updated_at
		)
		RETURNING id
	`
	id, err := insertReturningID(ctx, r.db, query, p)
	if err != nil {
		if _, ok := pqError(err, codeUniqueViolation); ok {
			return errors.ErrProfitAlreadyExists
		}
		return errors.Wrap(err, "failed to create profit")
	}
	p.ID = id
	return nil
}

func (r *ProfitRepository) FindByID(ctx context.Context, id int64) (*domain.Profit, error) {
	p := &domain.Profit{}
	if err := r.db.GetContext(ctx, p, `SELECT * FROM profits WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrProfitNotFound
		}
		return nil, errors.Wrap(err, "failed to find profit by id")
	}
	return p, nil
}

// FindBySaleID returns nil without error when the sale has no profit yet.
func (r *ProfitRepository) FindBySaleID(ctx context.Context, saleID int64) (*domain.Profit, error) {
	p := &domain.Profit{}
	if err := r.db.GetContext(ctx, p, `SELECT * FROM profits WHERE sale_id = $1`, saleID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find profit by sale")
	}
	return p, nil
}

// MarkDistributed flips a pending profit exactly once. A nil transactionID
// stores NULL.
func (r *ProfitRepository) MarkDistributed(ctx context.Context, id int64, transactionID *int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE profits SET status = 'distributed', transaction_id = $1, distribution_date = $2, updated_at = $2
		WHERE id = $3 AND status = 'pending'
	`, transactionID, at, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark profit distributed")
	}
	return r.guarded(ctx, res, id)
}

func (r *ProfitRepository) Cancel(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE profits SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return errors.Wrap(err, "failed to cancel profit")
	}
	return r.guarded(ctx, res, id)
}

func (r *ProfitRepository) guarded(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return errors.ErrInvalidStateTransition
}

func (r *ProfitRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profits WHERE id = $1 AND status <> 'distributed'`, id)
	if err != nil {
		// Rejected credits still reference the profit.
		if _, ok := pqError(err, codeForeignKeyViolation); ok {
			return errors.Wrap(errors.ErrInvalidStateTransition, "profit has recorded transactions")
		}
		return errors.Wrap(err, "failed to delete profit")
	}
	if err := expectOneRow(res, errors.ErrAlreadyDistributed); err != nil {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return err
	}
	return nil
}

func (r *ProfitRepository) List(ctx context.Context, status *domain.ProfitStatus, limit, offset int) ([]*domain.Profit, int, error) {
	w := &where{}
	if status != nil {
		w.add("status = $%d", *status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM profits`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count profits")
	}

	suffix, args := w.page(limit, offset)
	profits := []*domain.Profit{}
	if err := r.db.SelectContext(ctx, &profits, `SELECT * FROM profits`+w.String()+` ORDER BY id DESC`+suffix, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list profits")
	}
	return profits, total, nil
}

func (r *ProfitRepository) Summary(ctx context.Context) (*domain.ProfitSummary, error) {
	sum := &domain.ProfitSummary{}
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending_count,
			COALESCE(SUM(investor_share) FILTER (WHERE status = 'pending'), 0) AS pending_amount,
			COUNT(*) FILTER (WHERE status = 'distributed') AS distributed_count,
			COALESCE(SUM(investor_share) FILTER (WHERE status = 'distributed'), 0) AS distributed_amount,
			COALESCE(SUM(company_share) FILTER (WHERE status = 'distributed'), 0) AS company_share_amount
		FROM profits
	`
	if err := r.db.GetContext(ctx, sum, query); err != nil {
		return nil, errors.Wrap(err, "failed to summarize profits")
	}
	return sum, nil
}
