package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"propvest/internal/ledger"
	"propvest/pkg/domain"
	"propvest/pkg/errors"
	"propvest/pkg/logger"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockRepository) FindByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockRepository) FindByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, status *domain.WalletStatus, limit, offset int) ([]*domain.Wallet, int, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Wallet), args.Int(1), args.Error(2)
}

func (m *MockRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetSummary(ctx context.Context, walletID int64) (*ledger.Summary, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Summary), args.Error(1)
}

func (m *MockLedger) Freeze(ctx context.Context, walletID int64, amount decimal.Decimal) (*domain.Wallet, error) {
	args := m.Called(ctx, walletID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockLedger) Unfreeze(ctx context.Context, walletID int64, amount decimal.Decimal) (*domain.Wallet, error) {
	args := m.Called(ctx, walletID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockLedger) SetStatus(ctx context.Context, walletID int64, status domain.WalletStatus) (*domain.Wallet, error) {
	args := m.Called(ctx, walletID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

type MockTransactions struct {
	mock.Mock
}

func (m *MockTransactions) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Transaction), args.Int(1), args.Error(2)
}

type MockMethods struct {
	mock.Mock
}

func (m *MockMethods) List(ctx context.Context, activeOnly bool) ([]*domain.PaymentMethod, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentMethod), args.Error(1)
}

type mocks struct {
	repo    *MockRepository
	ledger  *MockLedger
	txs     *MockTransactions
	methods *MockMethods
}

func newService() (*Service, *mocks) {
	m := &mocks{
		repo:    new(MockRepository),
		ledger:  new(MockLedger),
		txs:     new(MockTransactions),
		methods: new(MockMethods),
	}
	return NewService(m.repo, m.ledger, m.txs, m.methods, logger.NewNop()), m
}

// --- Tests ---

func TestOverview(t *testing.T) {
	service, m := newService()
	ctx := context.Background()

	w := &domain.Wallet{ID: 7, UserID: 3, Balance: decimal.NewFromInt(10000), Status: domain.WalletStatusActive}
	summary := &ledger.Summary{WalletID: 7, Balance: w.Balance, AvailableBalance: w.Balance}
	recent := []*domain.Transaction{{ID: 1, WalletID: 7}, {ID: 2, WalletID: 7}}
	methods := []*domain.PaymentMethod{{ID: 1, Name: "Company UPI", Mode: domain.PaymentModeUPI, IsActive: true}}

	m.repo.On("FindByUserID", ctx, int64(3)).Return(w, nil)
	m.ledger.On("GetSummary", ctx, int64(7)).Return(summary, nil)
	m.txs.On("List", ctx, mock.MatchedBy(func(f domain.TransactionFilter) bool {
		return f.WalletID != nil && *f.WalletID == 7 && f.Limit == RecentLimit
	})).Return(recent, 2, nil)
	m.methods.On("List", ctx, true).Return(methods, nil)

	overview, err := service.Overview(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, w, overview.Wallet)
	assert.Equal(t, summary, overview.Summary)
	assert.Len(t, overview.RecentTransactions, 2)
	assert.Len(t, overview.PaymentMethods, 1)
	m.txs.AssertExpectations(t)
}

func TestOverview_NoWallet(t *testing.T) {
	service, m := newService()
	ctx := context.Background()

	m.repo.On("FindByUserID", ctx, int64(3)).Return(nil, errors.ErrWalletNotFound)

	_, err := service.Overview(ctx, 3)
	assert.ErrorIs(t, err, errors.ErrWalletNotFound)
	m.ledger.AssertNotCalled(t, "GetSummary", mock.Anything, mock.Anything)
}

func TestCreateWallet(t *testing.T) {
	t.Run("creates when none exists", func(t *testing.T) {
		service, m := newService()
		ctx := context.Background()

		m.repo.On("FindByUserID", ctx, int64(3)).Return(nil, errors.ErrWalletNotFound)
		m.repo.On("Create", ctx, mock.AnythingOfType("*domain.Wallet")).Return(nil).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Wallet).ID = 12
		})

		w, err := service.CreateWallet(ctx, &CreateWalletRequest{UserID: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(12), w.ID)
		assert.Equal(t, domain.WalletStatusActive, w.Status)
		assert.True(t, w.Balance.IsZero())
	})

	t.Run("rejects a second wallet", func(t *testing.T) {
		service, m := newService()
		ctx := context.Background()

		m.repo.On("FindByUserID", ctx, int64(3)).Return(&domain.Wallet{ID: 7, UserID: 3}, nil)

		_, err := service.CreateWallet(ctx, &CreateWalletRequest{UserID: 3})
		assert.ErrorIs(t, err, errors.ErrWalletAlreadyExists)
		m.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		wallet *domain.Wallet
		want   error
	}{
		{"empty", &domain.Wallet{ID: 7}, nil},
		{"balance", &domain.Wallet{ID: 7, Balance: decimal.NewFromInt(1)}, errors.ErrWalletNotEmpty},
		{"pending hold", &domain.Wallet{ID: 7, PendingAmount: decimal.NewFromInt(1)}, errors.ErrWalletNotEmpty},
		{"frozen", &domain.Wallet{ID: 7, FrozenAmount: decimal.NewFromInt(1)}, errors.ErrWalletNotEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service, m := newService()
			m.repo.On("FindByID", ctx, int64(7)).Return(tc.wallet, nil)
			m.repo.On("Delete", ctx, int64(7)).Return(nil)

			err := service.Delete(ctx, 7)
			if tc.want == nil {
				require.NoError(t, err)
				m.repo.AssertCalled(t, "Delete", ctx, int64(7))
				return
			}
			assert.ErrorIs(t, err, tc.want)
			m.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		})
	}
}

func TestAdminControlsGoThroughLedger(t *testing.T) {
	service, m := newService()
	ctx := context.Background()
	amount := decimal.NewFromInt(500)

	frozen := &domain.Wallet{ID: 7, FrozenAmount: amount}
	m.ledger.On("Freeze", ctx, int64(7), amount).Return(frozen, nil)
	m.ledger.On("Unfreeze", ctx, int64(7), amount).Return(&domain.Wallet{ID: 7}, nil)
	m.ledger.On("SetStatus", ctx, int64(7), domain.WalletStatusSuspended).
		Return(&domain.Wallet{ID: 7, Status: domain.WalletStatusSuspended}, nil)
	m.ledger.On("Freeze", ctx, int64(8), amount).Return(nil, errors.ErrInsufficientFunds)

	w, err := service.Freeze(ctx, 7, amount, 1)
	require.NoError(t, err)
	assert.True(t, w.FrozenAmount.Equal(amount))

	_, err = service.Unfreeze(ctx, 7, amount, 1)
	require.NoError(t, err)

	w, err = service.UpdateStatus(ctx, 7, domain.WalletStatusSuspended, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStatusSuspended, w.Status)

	_, err = service.Freeze(ctx, 8, amount, 1)
	assert.ErrorIs(t, err, errors.ErrInsufficientFunds)
	m.ledger.AssertExpectations(t)
}

func TestList_ClampsLimit(t *testing.T) {
	service, m := newService()
	ctx := context.Background()

	m.repo.On("List", ctx, (*domain.WalletStatus)(nil), 20, 0).Return([]*domain.Wallet{}, 0, nil)

	_, _, err := service.List(ctx, nil, 1000, 0)
	require.NoError(t, err)
	m.repo.AssertExpectations(t)
}
