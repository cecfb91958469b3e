package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propvest/internal/events"
	"propvest/internal/ledger"
	"propvest/internal/repository/memory"
	"propvest/pkg/cache"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

type fixture struct {
	svc     *ledger.Service
	wallets *memory.WalletRepository
	cache   *cache.Memory
	pub     *recordingPublisher
	wallet  *domain.Wallet
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		wallets: store.Wallets(),
		cache:   cache.NewMemory(),
		pub:     &recordingPublisher{},
	}
	f.svc = ledger.NewService(f.wallets, f.cache, time.Minute, f.pub, logger.NewNop())
	f.wallet = &domain.Wallet{UserID: 1, Status: domain.WalletStatusActive}
	require.NoError(t, f.wallets.Create(context.Background(), f.wallet))
	return f
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) post(t *testing.T, typ domain.TransactionType, amount int64) (*ledger.PostingResult, error) {
	t.Helper()
	return f.svc.ApplyTransaction(context.Background(), ledger.Posting{
		WalletID: f.wallet.ID,
		Type:     typ,
		Amount:   dec(amount),
	})
}

func assertIdentity(t *testing.T, w *domain.Wallet) {
	t.Helper()
	expected := w.TotalDeposits.Sub(w.TotalWithdrawals).Sub(w.TotalInvestments).Add(w.TotalProfits)
	assert.True(t, w.Balance.Equal(expected), "balance %s != %s", w.Balance, expected)
}

func TestApplyTransaction_UpdatesTotals(t *testing.T) {
	f := setup(t)

	res, err := f.post(t, domain.TransactionTypeDeposit, 10000)
	require.NoError(t, err)
	assert.True(t, res.BalanceBefore.IsZero())
	assert.True(t, res.BalanceAfter.Equal(dec(10000)))

	_, err = f.post(t, domain.TransactionTypeInvestment, -4000)
	require.NoError(t, err)
	_, err = f.post(t, domain.TransactionTypeProfit, 1600)
	require.NoError(t, err)
	_, err = f.post(t, domain.TransactionTypeRefund, 1000)
	require.NoError(t, err)
	res, err = f.post(t, domain.TransactionTypeWithdrawal, -2500)
	require.NoError(t, err)

	w := res.Wallet
	assert.True(t, w.Balance.Equal(dec(6100)))
	assert.True(t, w.TotalInvestments.Equal(dec(3000)))
	assert.True(t, w.TotalWithdrawals.Equal(dec(2500)))
	assert.NotNil(t, w.LastTransactionAt)
	assertIdentity(t, w)

	entries := f.wallets.Entries(f.wallet.ID)
	require.Len(t, entries, 5)
	assert.Equal(t, ledger.GenesisHash, entries[0].PreviousHash)
	assert.Equal(t, entries[0].Hash, entries[1].PreviousHash)
	require.NoError(t, f.wallets.VerifyChain(context.Background(), f.wallet.ID))
}

func TestApplyTransaction_FillsRecordBalances(t *testing.T) {
	f := setup(t)
	_, err := f.post(t, domain.TransactionTypeDeposit, 500)
	require.NoError(t, err)

	record := &domain.Transaction{
		Reference: "DEP-1",
		WalletID:  f.wallet.ID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    dec(250),
		NetAmount: dec(250),
		Status:    domain.TransactionStatusCompleted,
	}
	_, err = f.svc.ApplyTransaction(context.Background(), ledger.Posting{
		WalletID: f.wallet.ID, Type: record.Type, Amount: record.NetAmount, Record: record,
	})
	require.NoError(t, err)

	assert.NotZero(t, record.ID)
	require.NotNil(t, record.BalanceBefore)
	assert.True(t, record.BalanceBefore.Equal(dec(500)))
	assert.True(t, record.BalanceAfter.Equal(dec(750)))

	entries := f.wallets.Entries(f.wallet.ID)
	require.NotNil(t, entries[1].TransactionID)
	assert.Equal(t, record.ID, *entries[1].TransactionID)
}

func TestApplyTransaction_InsufficientFundsLeavesWalletUntouched(t *testing.T) {
	f := setup(t)
	_, err := f.post(t, domain.TransactionTypeDeposit, 10000)
	require.NoError(t, err)

	_, err = f.post(t, domain.TransactionTypeWithdrawal, -12000)
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

	w, err := f.wallets.FindByID(context.Background(), f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec(10000)))
	assert.Len(t, f.wallets.Entries(f.wallet.ID), 1)
}

func TestApplyTransaction_RespectsFrozenAndPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.post(t, domain.TransactionTypeDeposit, 10000)
	require.NoError(t, err)

	_, err = f.svc.Freeze(ctx, f.wallet.ID, dec(6000))
	require.NoError(t, err)
	_, err = f.svc.HoldPending(ctx, f.wallet.ID, dec(3000), nil)
	require.NoError(t, err)

	_, err = f.post(t, domain.TransactionTypeInvestment, -1500)
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

	// Releasing the hold as part of the posting frees it for the debit.
	res, err := f.svc.ApplyTransaction(ctx, ledger.Posting{
		WalletID:    f.wallet.ID,
		Type:        domain.TransactionTypeWithdrawal,
		Amount:      dec(-3000),
		ReleaseHold: dec(3000),
	})
	require.NoError(t, err)
	assert.True(t, res.Wallet.PendingAmount.IsZero())
	assert.True(t, res.Wallet.Balance.Equal(dec(7000)))
	assert.True(t, res.Wallet.Available().Equal(dec(1000)))
}

func TestApplyTransaction_RejectsInactiveWallet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.post(t, domain.TransactionTypeDeposit, 1000)
	require.NoError(t, err)
	_, err = f.svc.HoldPending(ctx, f.wallet.ID, dec(400), nil)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, f.wallet.ID, domain.WalletStatusSuspended)
	require.NoError(t, err)

	_, err = f.post(t, domain.TransactionTypeDeposit, 100)
	assert.ErrorIs(t, err, pkgerrors.ErrWalletNotActive)

	w, err := f.svc.ReleasePending(ctx, f.wallet.ID, dec(400), nil)
	require.NoError(t, err)
	assert.True(t, w.PendingAmount.IsZero())
}

func TestApplyTransaction_ValidatesPosting(t *testing.T) {
	f := setup(t)

	cases := []struct {
		name   string
		typ    domain.TransactionType
		amount int64
	}{
		{"zero", domain.TransactionTypeDeposit, 0},
		{"credit with negative amount", domain.TransactionTypeProfit, -10},
		{"debit with positive amount", domain.TransactionTypeWithdrawal, 10},
		{"unknown type", domain.TransactionType("bonus"), 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.post(t, tc.typ, tc.amount)
			_, ok := pkgerrors.AsValidation(err)
			assert.True(t, ok, "expected validation error, got %v", err)
		})
	}
}

func TestGetSummary_ServedFromCacheAfterMutation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.post(t, domain.TransactionTypeDeposit, 2500)
	require.NoError(t, err)

	var cached ledger.Summary
	require.NoError(t, f.cache.Get(ctx, "wallet:summary:1", &cached))
	assert.True(t, cached.Balance.Equal(dec(2500)))

	summary, err := f.svc.GetSummary(ctx, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, summary.AvailableBalance.Equal(dec(2500)))
	assert.Equal(t, f.wallet.ID, summary.WalletID)
}

func TestGetSummary_FillsCacheOnMiss(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.post(t, domain.TransactionTypeDeposit, 300)
	require.NoError(t, err)
	require.NoError(t, f.cache.Delete(ctx, "wallet:summary:1"))

	summary, err := f.svc.GetSummary(ctx, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(dec(300)))

	var cached ledger.Summary
	assert.NoError(t, f.cache.Get(ctx, "wallet:summary:1", &cached))
}

type flakyCache struct {
	*cache.Memory
	failWrites bool
}

func (c *flakyCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.failWrites {
		return errors.New("redis: connection refused")
	}
	return c.Memory.Set(ctx, key, value, expiration)
}

func TestMutation_FailedCacheWriteDropsStaleSummary(t *testing.T) {
	store := memory.New()
	c := &flakyCache{Memory: cache.NewMemory()}
	svc := ledger.NewService(store.Wallets(), c, time.Minute, nil, logger.NewNop())
	w := &domain.Wallet{UserID: 1, Status: domain.WalletStatusActive}
	require.NoError(t, store.Wallets().Create(context.Background(), w))
	ctx := context.Background()

	deposit := func(amount int64) {
		_, err := svc.ApplyTransaction(ctx, ledger.Posting{
			WalletID: w.ID,
			Type:     domain.TransactionTypeDeposit,
			Amount:   dec(amount),
		})
		require.NoError(t, err)
	}

	deposit(2500)
	var cached ledger.Summary
	require.NoError(t, c.Get(ctx, "wallet:summary:1", &cached))

	c.failWrites = true
	deposit(500)
	assert.ErrorIs(t, c.Get(ctx, "wallet:summary:1", &cached), cache.ErrMiss)

	summary, err := svc.GetSummary(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(dec(3000)))
}

func TestMutations_PublishWalletEvents(t *testing.T) {
	f := setup(t)
	_, err := f.post(t, domain.TransactionTypeDeposit, 100)
	require.NoError(t, err)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.TypeWalletMutated, f.pub.events[0].Type)
	assert.Equal(t, "1", f.pub.events[0].Key)
}

func TestApplyTransaction_ConcurrentPostingsSerializePerWallet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.post(t, domain.TransactionTypeDeposit, 1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ, amount := domain.TransactionTypeDeposit, dec(50)
			if i%2 == 1 {
				typ, amount = domain.TransactionTypeWithdrawal, dec(-25)
			}
			_, err := f.svc.ApplyTransaction(ctx, ledger.Posting{WalletID: f.wallet.ID, Type: typ, Amount: amount})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	w, err := f.wallets.FindByID(ctx, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec(1500)), "got %s", w.Balance)
	assertIdentity(t, w)
	assert.Len(t, f.wallets.Entries(f.wallet.ID), 41)
	assert.NoError(t, f.wallets.VerifyChain(ctx, f.wallet.ID))
}

func TestVerifyAll_ReportsTamperedWallets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.post(t, domain.TransactionTypeDeposit, 100)
	require.NoError(t, err)

	other := &domain.Wallet{UserID: 2, Status: domain.WalletStatusActive}
	require.NoError(t, f.wallets.Create(ctx, other))
	_, err = f.svc.ApplyTransaction(ctx, ledger.Posting{WalletID: other.ID, Type: domain.TransactionTypeDeposit, Amount: dec(100)})
	require.NoError(t, err)

	broken, err := f.svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, broken)

	f.wallets.TamperEntry(other.ID, 0, dec(99999))
	broken, err = f.svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{other.ID}, broken)
}

func TestFreezeAndUnfreeze(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.post(t, domain.TransactionTypeDeposit, 1000)
	require.NoError(t, err)

	_, err = f.svc.Freeze(ctx, f.wallet.ID, dec(1500))
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

	w, err := f.svc.Freeze(ctx, f.wallet.ID, dec(400))
	require.NoError(t, err)
	assert.True(t, w.Available().Equal(dec(600)))

	w, err = f.svc.Unfreeze(ctx, f.wallet.ID, dec(1000))
	require.NoError(t, err)
	assert.True(t, w.FrozenAmount.IsZero())
	assert.True(t, w.Balance.Equal(dec(1000)))
}
