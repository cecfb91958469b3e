package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type PropertyRepository struct {
	db *sqlx.DB
}

func NewPropertyRepository(db *sqlx.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

func (r *PropertyRepository) Create(ctx context.Context, p *domain.Property) error {
	p.TotalPlots, p.AvailablePlots, p.SoldPlots = 0, 0, 0
	query := `
		INSERT INTO properties (name, location, description, price_per_plot, status, created_at, updated_at)
		VALUES (:name, :location, :description, :price_per_plot, :status, :created_at, :updated_at)
		RETURNING id
	`
	id, err := insertReturningID(ctx, r.db, query, p)
	if err != nil {
		return errors.Wrap(err, "failed to create property")
	}
	p.ID = id
	return nil
}

func (r *PropertyRepository) FindByID(ctx context.Context, id int64) (*domain.Property, error) {
	p := &domain.Property{}
	if err := r.db.GetContext(ctx, p, `SELECT * FROM properties WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrPropertyNotFound
		}
		return nil, errors.Wrap(err, "failed to find property by id")
	}
	return p, nil
}

func (r *PropertyRepository) Update(ctx context.Context, p *domain.Property) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE properties SET
			name = :name,
			location = :location,
			description = :description,
			price_per_plot = :price_per_plot,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id
	`, p)
	if err != nil {
		return errors.Wrap(err, "failed to update property")
	}
	return expectOneRow(res, errors.ErrPropertyNotFound)
}

// Delete removes a property whose plots are all still available. The plots
// go with it through ON DELETE CASCADE.
func (r *PropertyRepository) Delete(ctx context.Context, id int64) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked int64
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM properties WHERE id = $1 FOR UPDATE`, id); err != nil {
			if isNoRows(err) {
				return errors.ErrPropertyNotFound
			}
			return errors.Wrap(err, "failed to lock property")
		}
		var busy int
		if err := tx.GetContext(ctx, &busy, `
			SELECT COUNT(*) FROM plots WHERE property_id = $1 AND status <> 'available'
		`, id); err != nil {
			return errors.Wrap(err, "failed to count plots")
		}
		if busy > 0 {
			return errors.ErrPropertyHasPlots
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE id = $1`, id); err != nil {
			if _, ok := pqError(err, codeForeignKeyViolation); ok {
				return errors.ErrPropertyHasPlots
			}
			return errors.Wrap(err, "failed to delete property")
		}
		return nil
	})
}

func (r *PropertyRepository) List(ctx context.Context, status *domain.PropertyStatus, limit, offset int) ([]*domain.Property, int, error) {
	w := &where{}
	if status != nil {
		w.add("status = $%d", *status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM properties`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count properties")
	}

	suffix, args := w.page(limit, offset)
	items := []*domain.Property{}
	if err := r.db.SelectContext(ctx, &items, `SELECT * FROM properties`+w.String()+` ORDER BY id DESC`+suffix, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list properties")
	}
	return items, total, nil
}

// PlotRepository keeps the property counters in the same transaction as
// every plot insert and delete.
type PlotRepository struct {
	db *sqlx.DB
}

func NewPlotRepository(db *sqlx.DB) *PlotRepository {
	return &PlotRepository{db: db}
}

func (r *PlotRepository) Create(ctx context.Context, plot *domain.Plot) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE properties SET
				total_plots = total_plots + 1,
				available_plots = available_plots + 1,
				status = CASE WHEN status = 'sold_out' THEN 'active' ELSE status END,
				updated_at = NOW()
			WHERE id = $1
		`, plot.PropertyID)
		if err != nil {
			return errors.Wrap(err, "failed to update plot counters")
		}
		if err := expectOneRow(res, errors.ErrPropertyNotFound); err != nil {
			return err
		}

		query := `
			INSERT INTO plots (property_id, plot_number, area, price, status, created_at, updated_at)
			VALUES (:property_id, :plot_number, :area, :price, :status, :created_at, :updated_at)
			RETURNING id
		`
		id, err := insertReturningID(ctx, tx, query, plot)
		if err != nil {
			if _, ok := pqError(err, codeUniqueViolation); ok {
				return errors.NewValidationError("plot_number", "Plot number already exists for this property")
			}
			return errors.Wrap(err, "failed to create plot")
		}
		plot.ID = id
		return nil
	})
}

func (r *PlotRepository) FindByID(ctx context.Context, id int64) (*domain.Plot, error) {
	plot := &domain.Plot{}
	if err := r.db.GetContext(ctx, plot, `SELECT * FROM plots WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrPlotNotFound
		}
		return nil, errors.Wrap(err, "failed to find plot by id")
	}
	return plot, nil
}

func (r *PlotRepository) Update(ctx context.Context, plot *domain.Plot) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE plots SET plot_number = :plot_number, area = :area, price = :price, updated_at = :updated_at
		WHERE id = :id
	`, plot)
	if err != nil {
		if _, ok := pqError(err, codeUniqueViolation); ok {
			return errors.NewValidationError("plot_number", "Plot number already exists for this property")
		}
		return errors.Wrap(err, "failed to update plot")
	}
	return expectOneRow(res, errors.ErrPlotNotFound)
}

func (r *PlotRepository) Delete(ctx context.Context, id int64) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var propertyID int64
		err := tx.GetContext(ctx, &propertyID, `
			DELETE FROM plots WHERE id = $1 AND status = 'available' RETURNING property_id
		`, id)
		if err != nil {
			if !isNoRows(err) {
				return errors.Wrap(err, "failed to delete plot")
			}
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM plots WHERE id = $1)`, id); err != nil {
				return errors.Wrap(err, "failed to check plot")
			}
			if !exists {
				return errors.ErrPlotNotFound
			}
			return errors.ErrPlotUnavailable
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE properties SET total_plots = total_plots - 1, available_plots = available_plots - 1, updated_at = NOW()
			WHERE id = $1
		`, propertyID)
		return errors.Wrap(err, "failed to update plot counters")
	})
}

func (r *PlotRepository) ListByProperty(ctx context.Context, propertyID int64) ([]*domain.Plot, error) {
	plots := []*domain.Plot{}
	if err := r.db.SelectContext(ctx, &plots, `SELECT * FROM plots WHERE property_id = $1 ORDER BY id`, propertyID); err != nil {
		return nil, errors.Wrap(err, "failed to list plots")
	}
	return plots, nil
}

// Reserve claims an available plot for an investment.
func (r *PlotRepository) Reserve(ctx context.Context, id int64) (*domain.Plot, error) {
	plot := &domain.Plot{}
	err := r.db.GetContext(ctx, plot, `
		UPDATE plots SET status = 'reserved', updated_at = $1
		WHERE id = $2 AND status = 'available'
		RETURNING *
	`, time.Now().UTC(), id)
	if err != nil {
		if isNoRows(err) {
			if _, findErr := r.FindByID(ctx, id); findErr != nil {
				return nil, findErr
			}
			return nil, errors.ErrPlotUnavailable
		}
		return nil, errors.Wrap(err, "failed to reserve plot")
	}
	return plot, nil
}

// Release returns a reserved plot to the pool. Sold plots stay sold.
func (r *PlotRepository) Release(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE plots SET status = 'available', updated_at = $1
		WHERE id = $2 AND status <> 'sold'
	`, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "failed to release plot")
	}
	if err := expectOneRow(res, errors.ErrPlotUnavailable); err != nil {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return err
	}
	return nil
}
