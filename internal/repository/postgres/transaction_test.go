package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propvest/internal/repository/postgres"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
)

func profitCredit() *domain.Transaction {
	profitID := int64(9)
	return &domain.Transaction{
		Reference:   "PRF-TEST",
		WalletID:    1,
		UserID:      1,
		Type:        domain.TransactionTypeProfit,
		Amount:      decimal.NewFromInt(1600),
		NetAmount:   decimal.NewFromInt(1600),
		Status:      domain.TransactionStatusCompleted,
		PaymentMode: domain.PaymentModeWallet,
		ProfitID:    &profitID,
	}
}

func TestTransactionRepository_CreateMapsUniqueIndexes(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{"transactions_reference_key", pkgerrors.ErrDuplicateRequest},
		{"uq_transactions_profit_credit", pkgerrors.ErrAlreadyDistributed},
		{"uq_transactions_investment_refund", pkgerrors.ErrInvalidStateTransition},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			db, mock := newMock(t)
			repo := postgres.NewTransactionRepository(db)

			mock.ExpectQuery(q("INSERT INTO transactions")).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tc.constraint})

			err := repo.Create(context.Background(), profitCredit())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTransactionRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewTransactionRepository(db)

	mock.ExpectQuery(q("INSERT INTO transactions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))

	tx := profitCredit()
	require.NoError(t, repo.Create(context.Background(), tx))
	assert.Equal(t, int64(31), tx.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_UpdateStatusOnlyFromPending(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewTransactionRepository(db)

	tx := profitCredit()
	tx.ID = 31
	mock.ExpectExec("(?s)"+q("UPDATE transactions SET")+".*"+q("WHERE id = $13 AND status = 'pending'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), tx)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_DeleteRefusesCompleted(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewTransactionRepository(db)
	now := time.Now()

	mock.ExpectExec(q("DELETE FROM transactions WHERE id = $1 AND status <> 'completed'")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT * FROM transactions WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "status", "amount", "processing_fee", "net_amount", "created_at", "updated_at"}).
			AddRow(int64(4), "DEP-X", "completed", "100.00", "0.00", "100.00", now, now))

	err := repo.Delete(context.Background(), 4)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_ListBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewTransactionRepository(db)

	walletID := int64(3)
	status := domain.TransactionStatusPending
	mock.ExpectQuery(q("SELECT COUNT(*) FROM transactions WHERE wallet_id = $1 AND status = $2")).
		WithArgs(walletID, status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(q("SELECT * FROM transactions WHERE wallet_id = $1 AND status = $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4")).
		WithArgs(walletID, status, 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	items, total, err := repo.List(context.Background(), domain.TransactionFilter{
		WalletID: &walletID, Status: &status, Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_FindCompletedFor(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewTransactionRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(q("AND profit_id = $2")).
		WithArgs(domain.TransactionTypeProfit, int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference"}).AddRow(int64(31), "PRF-X"))
	got, err := repo.FindCompletedFor(ctx, domain.TransactionTypeProfit, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(31), got.ID)

	mock.ExpectQuery(q("AND investment_id = $2")).
		WithArgs(domain.TransactionTypeRefund, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	got, err = repo.FindCompletedFor(ctx, domain.TransactionTypeRefund, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
