package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type SaleRepository struct {
	db *sqlx.DB
}

func NewSaleRepository(db *sqlx.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Create inserts the sale, marks its plot sold and moves the property
// counters in one transaction. A property with no available plot left is
// flagged sold_out.
func (r *SaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE plots SET status = 'sold', updated_at = $1
			WHERE id = $2 AND status <> 'sold'
		`, sale.CreatedAt, sale.PlotID)
		if err != nil {
			return errors.Wrap(err, "failed to mark plot sold")
		}
		if err := expectOneRow(res, errors.ErrSaleAlreadyExists); err != nil {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM plots WHERE id = $1)`, sale.PlotID); err != nil {
				return errors.Wrap(err, "failed to check plot")
			}
			if !exists {
				return errors.ErrPlotNotFound
			}
			return err
		}

		query := `
			INSERT INTO sales (
				plot_id, property_id, investment_id, buyer_name, sale_price,
				purchase_price, profit_amount, sale_date, created_at
			) VALUES (
				:plot_id, :property_id, :investment_id, :buyer_name, :sale_price,
				:purchase_price, :profit_amount, :sale_date, :created_at
			)
			RETURNING id
		`
		id, err := insertReturningID(ctx, tx, query, sale)
		if err != nil {
			if _, ok := pqError(err, codeUniqueViolation); ok {
				return errors.ErrSaleAlreadyExists
			}
			return errors.Wrap(err, "failed to create sale")
		}
		sale.ID = id

		_, err = tx.ExecContext(ctx, `
			UPDATE properties SET
				available_plots = available_plots - 1,
				sold_plots = sold_plots + 1,
				status = CASE WHEN available_plots - 1 = 0 THEN 'sold_out' ELSE status END,
				updated_at = NOW()
			WHERE id = $1
		`, sale.PropertyID)
		return errors.Wrap(err, "failed to update property counters")
	})
}

func (r *SaleRepository) FindByID(ctx context.Context, id int64) (*domain.Sale, error) {
	sale := &domain.Sale{}
	if err := r.db.GetContext(ctx, sale, `SELECT * FROM sales WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrSaleNotFound
		}
		return nil, errors.Wrap(err, "failed to find sale by id")
	}
	return sale, nil
}

func (r *SaleRepository) List(ctx context.Context, f domain.SaleFilter) ([]*domain.Sale, int, error) {
	w := &where{}
	if f.PropertyID != nil {
		w.add("property_id = $%d", *f.PropertyID)
	}
	if f.From != nil {
		w.add("sale_date >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("sale_date <= $%d", *f.To)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sales`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count sales")
	}

	suffix, args := w.page(f.Limit, f.Offset)
	items := []*domain.Sale{}
	if err := r.db.SelectContext(ctx, &items, `SELECT * FROM sales`+w.String()+` ORDER BY sale_date DESC, id DESC`+suffix, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list sales")
	}
	return items, total, nil
}
