package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"propvest/internal/ledger"
	"propvest/pkg/domain"
	"propvest/pkg/errors"
)

const ledgerEntryColumns = `id, wallet_id, transaction_id, event_type, amount, balance_after, previous_hash, hash, created_at`

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	now := time.Now().UTC()
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = now
	}
	wallet.UpdatedAt = now
	if wallet.Status == "" {
		wallet.Status = domain.WalletStatusActive
	}
	return createWallet(ctx, r.db, wallet)
}

func createWallet(ctx context.Context, q sqlx.ExtContext, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (user_id, status, created_at, updated_at)
		VALUES (:user_id, :status, :created_at, :updated_at)
		RETURNING id
	`
	id, err := insertReturningID(ctx, q, query, wallet)
	if err != nil {
		if _, ok := pqError(err, codeUniqueViolation); ok {
			return errors.ErrWalletAlreadyExists
		}
		return errors.Wrap(err, "failed to create wallet")
	}
	wallet.ID = id
	return nil
}

func (r *WalletRepository) FindByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	wallet := &domain.Wallet{}
	err := r.db.GetContext(ctx, wallet, `SELECT * FROM wallets WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.ErrWalletNotFound
		}
		return nil, errors.Wrap(err, "failed to find wallet by id")
	}
	return wallet, nil
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet := &domain.Wallet{}
	err := r.db.GetContext(ctx, wallet, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.ErrWalletNotFound
		}
		return nil, errors.Wrap(err, "failed to find wallet by user id")
	}
	return wallet, nil
}

func (r *WalletRepository) List(ctx context.Context, status *domain.WalletStatus, limit, offset int) ([]*domain.Wallet, int, error) {
	w := &where{}
	if status != nil {
		w.add("status = $%d", *status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallets`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count wallets")
	}

	suffix, args := w.page(limit, offset)
	wallets := []*domain.Wallet{}
	query := `SELECT * FROM wallets` + w.String() + ` ORDER BY id DESC` + suffix
	if err := r.db.SelectContext(ctx, &wallets, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list wallets")
	}
	return wallets, total, nil
}

// Delete removes an empty wallet. Wallets that ever carried a transaction
// or ledger entry are kept by their foreign keys.
func (r *WalletRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM wallets
		WHERE id = $1 AND balance = 0 AND frozen_amount = 0 AND pending_amount = 0
	`, id)
	if err != nil {
		if _, ok := pqError(err, codeForeignKeyViolation); ok {
			return errors.ErrWalletNotEmpty
		}
		return errors.Wrap(err, "failed to delete wallet")
	}
	if err := expectOneRow(res, errors.ErrWalletNotEmpty); err != nil {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return err
	}
	return nil
}

func (r *WalletRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM wallets ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "failed to list wallet ids")
	}
	return ids, nil
}

// Mutate locks the wallet row with SELECT ... FOR UPDATE, so the ledger
// chain of one wallet is always extended by a single writer.
func (r *WalletRepository) Mutate(ctx context.Context, walletID int64, fn func(w *domain.Wallet) (*domain.WalletMutation, error)) (*domain.Wallet, error) {
	var out *domain.Wallet
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet := &domain.Wallet{}
		if err := tx.GetContext(ctx, wallet, `SELECT * FROM wallets WHERE id = $1 FOR UPDATE`, walletID); err != nil {
			if isNoRows(err) {
				return errors.ErrWalletNotFound
			}
			return errors.Wrap(err, "failed to lock wallet")
		}

		m, err := fn(wallet)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		wallet.UpdatedAt = now
		if err := updateWallet(ctx, tx, wallet); err != nil {
			return err
		}

		if m != nil && m.Record != nil {
			if err := saveTransaction(ctx, tx, m.Record); err != nil {
				return err
			}
			if m.Entry != nil {
				id := m.Record.ID
				m.Entry.TransactionID = &id
			}
		}
		if m != nil && m.Entry != nil {
			m.Entry.WalletID = walletID
			if err := appendEntry(ctx, tx, m.Entry, now); err != nil {
				return err
			}
		}
		out = wallet
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func updateWallet(ctx context.Context, tx *sqlx.Tx, wallet *domain.Wallet) error {
	query := `
		UPDATE wallets SET
			balance = :balance,
			total_deposits = :total_deposits,
			total_withdrawals = :total_withdrawals,
			total_investments = :total_investments,
			total_profits = :total_profits,
			frozen_amount = :frozen_amount,
			pending_amount = :pending_amount,
			status = :status,
			last_transaction_at = :last_transaction_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	_, err := tx.NamedExecContext(ctx, query, wallet)
	if err != nil {
		if pqErr, ok := pqError(err, codeCheckViolation); ok {
			if pqErr.Constraint == "wallets_balance_identity" {
				return errors.Wrap(errors.ErrInvalidStateTransition, "balance identity violated")
			}
			return errors.ErrInsufficientFunds
		}
		return errors.Wrap(err, "failed to update wallet")
	}
	return nil
}

func appendEntry(ctx context.Context, tx *sqlx.Tx, entry *domain.LedgerEntry, now time.Time) error {
	prev := ledger.GenesisHash
	err := tx.GetContext(ctx, &prev, `
		SELECT hash FROM ledger_entries WHERE wallet_id = $1 ORDER BY seq DESC LIMIT 1
	`, entry.WalletID)
	if err != nil && !isNoRows(err) {
		return errors.Wrap(err, "failed to read chain head")
	}
	ledger.Seal(entry, prev, now)

	query := `
		INSERT INTO ledger_entries (` + ledgerEntryColumns + `)
		VALUES (:id, :wallet_id, :transaction_id, :event_type, :amount, :balance_after, :previous_hash, :hash, :created_at)
	`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return errors.Wrap(err, "failed to insert ledger entry")
	}
	return nil
}

// Entries returns a wallet's ledger entries, oldest first.
func (r *WalletRepository) Entries(ctx context.Context, walletID int64) ([]*domain.LedgerEntry, error) {
	entries := []*domain.LedgerEntry{}
	query := `SELECT ` + ledgerEntryColumns + ` FROM ledger_entries WHERE wallet_id = $1 ORDER BY seq ASC`
	if err := r.db.SelectContext(ctx, &entries, query, walletID); err != nil {
		return nil, errors.Wrap(err, "failed to read ledger")
	}
	return entries, nil
}

func (r *WalletRepository) VerifyChain(ctx context.Context, walletID int64) error {
	entries, err := r.Entries(ctx, walletID)
	if err != nil {
		return err
	}
	return ledger.VerifyEntries(entries)
}
