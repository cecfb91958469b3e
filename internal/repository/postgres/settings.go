package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type SettingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns nil without error until an admin saves the settings once.
func (r *SettingsRepository) Get(ctx context.Context) (*domain.Settings, error) {
	s := &domain.Settings{}
	query := `
		SELECT min_deposit, min_withdrawal, auto_approve_ceiling, auto_approve_enabled,
			deposit_fee_percent, withdrawal_fee_percent, default_profit_percent,
			stale_pending_hours, updated_by, updated_at
		FROM settings WHERE id = 1
	`
	if err := r.db.GetContext(ctx, s, query); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to load settings")
	}
	return s, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, s *domain.Settings) error {
	query := `
		INSERT INTO settings (
			id, min_deposit, min_withdrawal, auto_approve_ceiling, auto_approve_enabled,
			deposit_fee_percent, withdrawal_fee_percent, default_profit_percent,
			stale_pending_hours, updated_by, updated_at
		) VALUES (
			1, :min_deposit, :min_withdrawal, :auto_approve_ceiling, :auto_approve_enabled,
			:deposit_fee_percent, :withdrawal_fee_percent, :default_profit_percent,
			:stale_pending_hours, :updated_by, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			min_deposit = EXCLUDED.min_deposit,
			min_withdrawal = EXCLUDED.min_withdrawal,
			auto_approve_ceiling = EXCLUDED.auto_approve_ceiling,
			auto_approve_enabled = EXCLUDED.auto_approve_enabled,
			deposit_fee_percent = EXCLUDED.deposit_fee_percent,
			withdrawal_fee_percent = EXCLUDED.withdrawal_fee_percent,
			default_profit_percent = EXCLUDED.default_profit_percent,
			stale_pending_hours = EXCLUDED.stale_pending_hours,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.NamedExecContext(ctx, query, s)
	return errors.Wrap(err, "failed to save settings")
}

type PaymentMethodRepository struct {
	db *sqlx.DB
}

func NewPaymentMethodRepository(db *sqlx.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, m *domain.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (name, mode, details, is_active, created_at)
		VALUES (:name, :mode, :details, :is_active, :created_at)
		RETURNING id
	`
	id, err := insertReturningID(ctx, r.db, query, m)
	if err != nil {
		return errors.Wrap(err, "failed to create payment method")
	}
	m.ID = id
	return nil
}

func (r *PaymentMethodRepository) FindByID(ctx context.Context, id int64) (*domain.PaymentMethod, error) {
	m := &domain.PaymentMethod{}
	if err := r.db.GetContext(ctx, m, `SELECT * FROM payment_methods WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, errors.ErrPaymentMethodInvalid
		}
		return nil, errors.Wrap(err, "failed to find payment method")
	}
	return m, nil
}

func (r *PaymentMethodRepository) List(ctx context.Context, activeOnly bool) ([]*domain.PaymentMethod, error) {
	query := `SELECT * FROM payment_methods`
	if activeOnly {
		query += ` WHERE is_active`
	}
	methods := []*domain.PaymentMethod{}
	if err := r.db.SelectContext(ctx, &methods, query+` ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "failed to list payment methods")
	}
	return methods, nil
}
