package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// saveTransaction inserts a new record or moves a pending one to its final
// state. The partial unique indexes on profit credits and refunds surface as
// domain errors.
func saveTransaction(ctx context.Context, q sqlx.ExtContext, tx *domain.Transaction) error {
	if tx.ID == 0 {
		return insertTransaction(ctx, q, tx)
	}
	query := `
		UPDATE transactions SET
			status = :status,
			processing_fee = :processing_fee,
			net_amount = :net_amount,
			balance_before = :balance_before,
			balance_after = :balance_after,
			approved_by = :approved_by,
			approved_at = :approved_at,
			rejected_by = :rejected_by,
			rejected_at = :rejected_at,
			rejection_reason = :rejection_reason,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id AND status = 'pending'
	`
	bound, args, err := q.BindNamed(query, tx)
	if err != nil {
		return errors.Wrap(err, "failed to bind transaction update")
	}
	res, err := q.ExecContext(ctx, bound, args...)
	if err != nil {
		return mapTransactionError(err, "failed to update transaction")
	}
	return expectOneRow(res, errors.ErrInvalidStateTransition)
}

func insertTransaction(ctx context.Context, q sqlx.ExtContext, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			reference, wallet_id, user_id, type, amount, processing_fee, net_amount,
			balance_before, balance_after, status, payment_method_id, payment_mode,
			payment_reference, bank_account, upi_id, notes, investment_id, profit_id,
			approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
			created_at, updated_at
		) VALUES (
			:reference, :wallet_id, :user_id, :type, :amount, :processing_fee, :net_amount,
			:balance_before, :balance_after, :status, :payment_method_id, :payment_mode,
			:payment_reference, :bank_account, :upi_id, :notes, :investment_id, :profit_id,
			:approved_by, :approved_at, :rejected_by, :rejected_at, :rejection_reason,
			:created_at, :updated_at
		)
		RETURNING id
	`
	id, err := insertReturningID(ctx, q, query, tx)
	if err != nil {
		return mapTransactionError(err, "failed to create transaction")
	}
	tx.ID = id
	return nil
}

func mapTransactionError(err error, message string) error {
	if pqErr, ok := pqError(err, codeUniqueViolation); ok {
		switch pqErr.Constraint {
		case "uq_transactions_profit_credit":
			return errors.ErrAlreadyDistributed
		case "uq_transactions_investment_refund":
			return errors.Wrap(errors.ErrInvalidStateTransition, "investment already refunded")
		default:
			return errors.ErrDuplicateRequest
		}
	}
	return errors.Wrap(err, message)
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	tx.ID = 0
	return insertTransaction(ctx, r.db, tx)
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	err := r.db.GetContext(ctx, tx, `SELECT * FROM transactions WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find transaction by id")
	}
	return tx, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *domain.Transaction) error {
	return saveTransaction(ctx, r.db, tx)
}

func (r *TransactionRepository) UpdateDetails(ctx context.Context, tx *domain.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET payment_reference = $1, notes = $2, updated_at = $3
		WHERE id = $4 AND status = 'pending'
	`, tx.PaymentReference, tx.Notes, tx.UpdatedAt, tx.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update transaction details")
	}
	if err := expectOneRow(res, errors.ErrInvalidStateTransition); err != nil {
		if _, findErr := r.FindByID(ctx, tx.ID); findErr != nil {
			return findErr
		}
		return err
	}
	return nil
}

// Delete removes a transaction that never touched a balance.
func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND status <> 'completed'`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete transaction")
	}
	if err := expectOneRow(res, errors.ErrInvalidStateTransition); err != nil {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	w := &where{}
	if f.WalletID != nil {
		w.add("wallet_id = $%d", *f.WalletID)
	}
	if f.UserID != nil {
		w.add("user_id = $%d", *f.UserID)
	}
	if f.Type != nil {
		w.add("type = $%d", *f.Type)
	}
	if f.Status != nil {
		w.add("status = $%d", *f.Status)
	}
	if f.From != nil {
		w.add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("created_at <= $%d", *f.To)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count transactions")
	}

	suffix, args := w.page(f.Limit, f.Offset)
	txs := []*domain.Transaction{}
	query := `SELECT * FROM transactions` + w.String() + ` ORDER BY created_at DESC, id DESC` + suffix
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list transactions")
	}
	return txs, total, nil
}

func (r *TransactionRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Transaction, error) {
	txs := []*domain.Transaction{}
	query := `
		SELECT * FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &txs, query, before, limit); err != nil {
		return nil, errors.Wrap(err, "failed to find stale transactions")
	}
	return txs, nil
}

func (r *TransactionRepository) FindCompletedFor(ctx context.Context, txType domain.TransactionType, relatedID int64) (*domain.Transaction, error) {
	column := "investment_id"
	if txType == domain.TransactionTypeProfit {
		column = "profit_id"
	}
	tx := &domain.Transaction{}
	query := `SELECT * FROM transactions WHERE type = $1 AND status = 'completed' AND ` + column + ` = $2 LIMIT 1`
	err := r.db.GetContext(ctx, tx, query, txType, relatedID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find completed transaction")
	}
	return tx, nil
}
