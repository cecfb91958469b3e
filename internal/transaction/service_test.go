package transaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propvest/internal/ledger"
	"propvest/internal/repository/memory"
	"propvest/internal/settings"
	"propvest/internal/transaction"
	"propvest/pkg/config"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/logger"
)

const adminID = int64(900)

type fixture struct {
	svc      *transaction.Service
	txs      *memory.TransactionRepository
	wallets  *memory.WalletRepository
	settings *settings.Service
	wallet   *domain.Wallet
	upi      *domain.PaymentMethod
	bank     *domain.PaymentMethod
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func strPtr(s string) *string { return &s }

func defaultPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		MinDeposit:           dec(500),
		MinWithdrawal:        dec(1000),
		AutoApproveCeiling:   dec(10000),
		AutoApproveEnabled:   true,
		DefaultProfitPercent: dec(80),
		StalePendingAfter:    72 * time.Hour,
	}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	f := &fixture{
		txs:     store.Transactions(),
		wallets: store.Wallets(),
	}
	log := logger.NewNop()
	f.settings = settings.NewService(store.Settings(), nil, time.Minute, defaultPolicy(), log)
	l := ledger.NewService(f.wallets, nil, time.Minute, nil, log)
	methods := store.PaymentMethods()
	f.svc = transaction.NewService(f.txs, l, f.wallets, methods, f.settings, nil, log)

	f.wallet = &domain.Wallet{UserID: 10, Status: domain.WalletStatusActive}
	require.NoError(t, f.wallets.Create(ctx, f.wallet))
	f.upi = &domain.PaymentMethod{Name: "UPI", Mode: domain.PaymentModeUPI, IsActive: true}
	require.NoError(t, methods.Create(ctx, f.upi))
	f.bank = &domain.PaymentMethod{Name: "NEFT", Mode: domain.PaymentModeBankTransfer, IsActive: true}
	require.NoError(t, methods.Create(ctx, f.bank))
	return f
}

func (f *fixture) fund(t *testing.T, amount int64) {
	t.Helper()
	_, err := f.svc.Store(context.Background(), &transaction.StoreRequest{
		WalletID:        f.wallet.ID,
		Type:            domain.TransactionTypeDeposit,
		Amount:          dec(amount),
		PaymentMethodID: f.bank.ID,
		PaymentMode:     domain.PaymentModeBankTransfer,
		Status:          domain.TransactionStatusCompleted,
	}, adminID)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T) *domain.Wallet {
	t.Helper()
	w, err := f.wallets.FindByID(context.Background(), f.wallet.ID)
	require.NoError(t, err)
	return w
}

func (f *fixture) deposit(amount int64, auto bool) *transaction.DepositRequest {
	return &transaction.DepositRequest{
		WalletID:        f.wallet.ID,
		Amount:          dec(amount),
		PaymentMethodID: f.upi.ID,
		PaymentMode:     domain.PaymentModeUPI,
		AutoApprove:     auto,
	}
}

func (f *fixture) withdrawal(amount int64) *transaction.WithdrawalRequest {
	return &transaction.WithdrawalRequest{
		WalletID:        f.wallet.ID,
		Amount:          dec(amount),
		PaymentMethodID: f.upi.ID,
		PaymentMode:     domain.PaymentModeUPI,
		UPIID:           strPtr("investor@okaxis"),
	}
}

func TestCreateDeposit_AutoApproval(t *testing.T) {
	cases := []struct {
		name    string
		amount  int64
		auto    bool
		enabled bool
		want    domain.TransactionStatus
		balance int64
	}{
		{"below ceiling with flag", 5000, true, true, domain.TransactionStatusCompleted, 5000},
		{"at ceiling stays pending", 10000, true, true, domain.TransactionStatusPending, 0},
		{"above ceiling stays pending", 25000, true, true, domain.TransactionStatusPending, 0},
		{"flag not set", 5000, false, true, domain.TransactionStatusPending, 0},
		{"disabled by policy", 5000, true, false, domain.TransactionStatusPending, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			_, err := f.settings.Update(context.Background(), &settings.UpdateRequest{AutoApproveEnabled: &tc.enabled}, adminID)
			require.NoError(t, err)

			tx, err := f.svc.CreateDeposit(context.Background(), f.deposit(tc.amount, tc.auto))
			require.NoError(t, err)
			assert.Equal(t, tc.want, tx.Status)
			assert.True(t, f.balance(t).Balance.Equal(dec(tc.balance)))
			assert.Regexp(t, `^DEP-[0-9A-Z]{26}$`, tx.Reference)
		})
	}
}

func TestCreateDeposit_BelowMinimum(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateDeposit(context.Background(), f.deposit(499, true))

	ve, ok := pkgerrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields["amount"], "500.00")
}

func TestCreateDeposit_AppliesFee(t *testing.T) {
	f := setup(t)
	fee := decimal.RequireFromString("2.5")
	_, err := f.settings.Update(context.Background(), &settings.UpdateRequest{DepositFeePercent: &fee}, adminID)
	require.NoError(t, err)

	tx, err := f.svc.CreateDeposit(context.Background(), f.deposit(4000, true))
	require.NoError(t, err)
	assert.True(t, tx.ProcessingFee.Equal(dec(100)))
	assert.True(t, tx.NetAmount.Equal(dec(3900)))
	assert.True(t, f.balance(t).Balance.Equal(dec(3900)))
}

func TestCreateDeposit_PaymentMethodMustMatchMode(t *testing.T) {
	f := setup(t)
	req := f.deposit(1000, false)
	req.PaymentMode = domain.PaymentModeCard

	_, err := f.svc.CreateDeposit(context.Background(), req)
	ve, ok := pkgerrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "payment_mode")
}

func TestCreateWithdrawal_InsufficientFundsIsRejected(t *testing.T) {
	f := setup(t)
	f.fund(t, 10000)

	tx, err := f.svc.CreateWithdrawal(context.Background(), f.withdrawal(12000))
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
	require.NotNil(t, tx)
	assert.Equal(t, domain.TransactionStatusRejected, tx.Status)
	require.NotNil(t, tx.RejectionReason)
	assert.Equal(t, "insufficient funds", *tx.RejectionReason)

	stored, err := f.txs.FindByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRejected, stored.Status)

	w := f.balance(t)
	assert.True(t, w.Balance.Equal(dec(10000)))
	assert.True(t, w.PendingAmount.IsZero())
}

func TestCreateWithdrawal_RequiresDestination(t *testing.T) {
	f := setup(t)
	req := f.withdrawal(2000)
	req.UPIID = nil

	_, err := f.svc.CreateWithdrawal(context.Background(), req)
	ve, ok := pkgerrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "upi_id")
}

func TestWithdrawal_HoldThenApprove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 10000)

	tx, err := f.svc.CreateWithdrawal(ctx, f.withdrawal(4000))
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, tx.Status)

	w := f.balance(t)
	assert.True(t, w.PendingAmount.Equal(dec(4000)))
	assert.True(t, w.Available().Equal(dec(6000)))

	approved, err := f.svc.Approve(ctx, tx.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, approved.Status)
	assert.Equal(t, adminID, *approved.ApprovedBy)
	assert.True(t, approved.BalanceAfter.Equal(dec(6000)))

	w = f.balance(t)
	assert.True(t, w.Balance.Equal(dec(6000)))
	assert.True(t, w.PendingAmount.IsZero())
	assert.True(t, w.TotalWithdrawals.Equal(dec(4000)))

	_, err = f.svc.Approve(ctx, tx.ID, adminID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
}

func TestWithdrawal_WithFeeDebitsNetAmount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fee := dec(1)
	_, err := f.settings.Update(ctx, &settings.UpdateRequest{WithdrawalFeePercent: &fee}, adminID)
	require.NoError(t, err)
	f.fund(t, 10000)

	tx, err := f.svc.CreateWithdrawal(ctx, f.withdrawal(5000))
	require.NoError(t, err)
	assert.True(t, tx.NetAmount.Equal(dec(4950)))

	_, err = f.svc.Approve(ctx, tx.ID, adminID)
	require.NoError(t, err)
	w := f.balance(t)
	assert.True(t, w.Balance.Equal(dec(5050)))
	assert.True(t, w.PendingAmount.IsZero())
}

func TestWithdrawal_RejectReleasesHold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 10000)

	tx, err := f.svc.CreateWithdrawal(ctx, f.withdrawal(3000))
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, tx.ID, adminID, "")
	_, ok := pkgerrors.AsValidation(err)
	assert.True(t, ok)

	rejected, err := f.svc.Reject(ctx, tx.ID, adminID, "KYC incomplete")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRejected, rejected.Status)
	assert.Equal(t, "KYC incomplete", *rejected.RejectionReason)

	w := f.balance(t)
	assert.True(t, w.PendingAmount.IsZero())
	assert.True(t, w.Balance.Equal(dec(10000)))
}

func TestApprove_DepositOnSuspendedWalletIsRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tx, err := f.svc.CreateDeposit(ctx, f.deposit(2000, false))
	require.NoError(t, err)

	l := ledger.NewService(f.wallets, nil, time.Minute, nil, logger.NewNop())
	_, err = l.SetStatus(ctx, f.wallet.ID, domain.WalletStatusSuspended)
	require.NoError(t, err)

	got, err := f.svc.Approve(ctx, tx.ID, adminID)
	assert.ErrorIs(t, err, pkgerrors.ErrWalletNotActive)
	require.NotNil(t, got)
	assert.Equal(t, domain.TransactionStatusRejected, got.Status)
	assert.Equal(t, "wallet not active", *got.RejectionReason)
	assert.True(t, f.balance(t).Balance.IsZero())
}

func TestCancel_OnlyOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 5000)
	tx, err := f.svc.CreateWithdrawal(ctx, f.withdrawal(2000))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, tx.ID, 999)
	assert.ErrorIs(t, err, pkgerrors.ErrAccessDenied)

	cancelled, err := f.svc.Cancel(ctx, tx.ID, f.wallet.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCancelled, cancelled.Status)
	assert.True(t, f.balance(t).PendingAmount.IsZero())
}

func TestExpireStale_FailsOldPendingAndReleasesHolds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 5000)

	old, err := f.svc.CreateWithdrawal(ctx, f.withdrawal(2000))
	require.NoError(t, err)
	fresh, err := f.svc.CreateDeposit(ctx, f.deposit(1000, false))
	require.NoError(t, err)
	f.txs.SetCreatedAt(old.ID, time.Now().Add(-100*time.Hour))

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.txs.FindByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, got.Status)
	assert.Contains(t, *got.RejectionReason, "expired")
	assert.True(t, f.balance(t).PendingAmount.IsZero())

	got, err = f.txs.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)
}

func TestCreditProfit_IsIdempotentPerProfit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := transaction.CreditProfitRequest{WalletID: f.wallet.ID, ProfitID: 77, InvestmentID: 5, Amount: dec(1600)}

	first, err := f.svc.CreditProfit(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.CreditProfit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.TransactionStatusCompleted, first.Status)
	w := f.balance(t)
	assert.True(t, w.Balance.Equal(dec(1600)))
	assert.True(t, w.TotalProfits.Equal(dec(1600)))
}

func TestDebitAndRefundInvestment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 8000)

	_, err := f.svc.DebitInvestment(ctx, f.wallet.ID, 3, dec(9000))
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

	_, err = f.svc.DebitInvestment(ctx, f.wallet.ID, 3, dec(6000))
	require.NoError(t, err)
	assert.True(t, f.balance(t).Balance.Equal(dec(2000)))

	r1, err := f.svc.RefundInvestment(ctx, f.wallet.ID, 3, dec(6000), "plot withdrawn")
	require.NoError(t, err)
	r2, err := f.svc.RefundInvestment(ctx, f.wallet.ID, 3, dec(6000), "plot withdrawn")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)

	w := f.balance(t)
	assert.True(t, w.Balance.Equal(dec(8000)))
	assert.True(t, w.TotalInvestments.IsZero())
}

func TestAdminStore_BypassesMinimums(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 100)
	assert.True(t, f.balance(t).Balance.Equal(dec(100)))

	tx, err := f.svc.Store(ctx, &transaction.StoreRequest{
		WalletID:        f.wallet.ID,
		Type:            domain.TransactionTypeWithdrawal,
		Amount:          dec(50),
		PaymentMethodID: f.bank.ID,
		PaymentMode:     domain.PaymentModeBankTransfer,
		BankAccount:     strPtr("50100012345678"),
		Status:          domain.TransactionStatusCompleted,
	}, adminID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, tx.Status)
	assert.True(t, f.balance(t).Balance.Equal(dec(50)))
}

func TestUpdateDetailsAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 5000)

	pending, err := f.svc.CreateWithdrawal(ctx, f.withdrawal(1500))
	require.NoError(t, err)

	updated, err := f.svc.UpdateDetails(ctx, pending.ID, &transaction.UpdateRequest{Notes: strPtr("call before payout")})
	require.NoError(t, err)
	assert.Equal(t, "call before payout", *updated.Notes)

	completed, _, err := f.svc.List(ctx, domain.TransactionFilter{Status: statusPtr(domain.TransactionStatusCompleted)})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	err = f.svc.Delete(ctx, completed[0].ID, adminID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)

	require.NoError(t, f.svc.Delete(ctx, pending.ID, adminID))
	_, err = f.svc.Get(ctx, pending.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	assert.True(t, f.balance(t).PendingAmount.IsZero())
}

func TestList_FiltersAndPaginates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateDeposit(ctx, f.deposit(1000, false))
		require.NoError(t, err)
	}
	f.fund(t, 1000)

	pending := domain.TransactionStatusPending
	items, total, err := f.svc.List(ctx, domain.TransactionFilter{WalletID: &f.wallet.ID, Status: &pending, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)
}

func statusPtr(s domain.TransactionStatus) *domain.TransactionStatus { return &s }
