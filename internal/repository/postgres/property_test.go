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

func TestSaleRepository_CreateMovesCounters(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewSaleRepository(db)

	sale := &domain.Sale{
		PlotID: 4, PropertyID: 2, InvestmentID: 8, BuyerName: "R. Mehta",
		SalePrice: decimal.NewFromInt(62000), PurchasePrice: decimal.NewFromInt(50000), ProfitAmount: decimal.NewFromInt(12000),
		SaleDate: time.Now(), CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE plots SET status = 'sold'")).
		WithArgs(sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("INSERT INTO sales")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))
	mock.ExpectExec(q("sold_plots = sold_plots + 1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), sale))
	assert.Equal(t, int64(17), sale.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaleRepository_CreateSoldPlot(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewSaleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE plots SET status = 'sold'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM plots WHERE id = $1)")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &domain.Sale{PlotID: 4, PropertyID: 2})
	assert.ErrorIs(t, err, pkgerrors.ErrSaleAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlotRepository_CreateDuplicateNumber(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("total_plots = total_plots + 1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("INSERT INTO plots")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "plots_property_id_plot_number_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &domain.Plot{PropertyID: 2, PlotNumber: "A-1"})
	ve, ok := pkgerrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "plot_number")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlotRepository_Reserve(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPlotRepository(db)
	ctx := context.Background()
	now := time.Now()
	cols := []string{"id", "property_id", "plot_number", "area", "price", "status", "created_at", "updated_at"}

	mock.ExpectQuery(q("UPDATE plots SET status = 'reserved'")).
		WithArgs(sqlmock.AnyArg(), int64(4)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(4), int64(2), "A-1", "1200.00", "50000.00", "reserved", now, now))
	plot, err := repo.Reserve(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.PlotStatusReserved, plot.Status)

	mock.ExpectQuery(q("UPDATE plots SET status = 'reserved'")).WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(q("SELECT * FROM plots WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(4), int64(2), "A-1", "1200.00", "50000.00", "reserved", now, now))
	_, err = repo.Reserve(ctx, 4)
	assert.ErrorIs(t, err, pkgerrors.ErrPlotUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPropertyRepository_DeleteWithBusyPlots(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPropertyRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM properties WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM plots WHERE property_id = $1 AND status <> 'available'")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Delete(context.Background(), 2), pkgerrors.ErrPropertyHasPlots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfitRepository_MarkDistributedTwice(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewProfitRepository(db)
	now := time.Now()

	mock.ExpectExec(q("UPDATE profits SET status = 'distributed'")).
		WithArgs(int64(31), sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT * FROM profits WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "total_profit", "investor_share", "company_share", "created_at", "updated_at"}).
			AddRow(int64(9), "distributed", "2000.00", "1600.00", "400.00", now, now))

	txID := int64(31)
	err := repo.MarkDistributed(context.Background(), 9, &txID, now)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfitRepository_MarkDistributedWithoutTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewProfitRepository(db)

	mock.ExpectExec(q("UPDATE profits SET status = 'distributed'")).
		WithArgs(nil, sqlmock.AnyArg(), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkDistributed(context.Background(), 12, nil, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfitRepository_DeleteReferencedByTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewProfitRepository(db)

	mock.ExpectExec(q("DELETE FROM profits WHERE id = $1")).
		WithArgs(int64(14)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "transactions_profit_fk"})

	err := repo.Delete(context.Background(), 14)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfitRepository_Summary(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewProfitRepository(db)

	mock.ExpectQuery(q("FROM profits")).
		WillReturnRows(sqlmock.NewRows([]string{"pending_count", "pending_amount", "distributed_count", "distributed_amount", "company_share_amount"}).
			AddRow(2, "3200.00", 1, "1600.00", "400.00"))

	sum, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.PendingCount)
	assert.True(t, sum.DistributedAmount.Equal(decimal.NewFromInt(1600)))
	assert.True(t, sum.CompanyShareAmount.Equal(decimal.NewFromInt(400)))
}

func TestInvestmentRepository_UpdateStatusGuard(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewInvestmentRepository(db)
	now := time.Now()

	mock.ExpectExec(q("UPDATE investments SET status = $1, updated_at = NOW()")).
		WithArgs(domain.InvestmentStatusCancelled, int64(8), domain.InvestmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT * FROM investments WHERE id = $1")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "amount", "created_at", "updated_at"}).
			AddRow(int64(8), "cancelled", "50000.00", now, now))

	err := repo.UpdateStatus(context.Background(), 8, domain.InvestmentStatusActive, domain.InvestmentStatusCancelled)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}
