package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"propvest/internal/ledger"
	"propvest/pkg/domain"
	"propvest/pkg/errors"
	"propvest/pkg/logger"
)

// RecentLimit is the number of transactions shown on the wallet dashboard.
const RecentLimit = 10

type Repository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	FindByID(ctx context.Context, id int64) (*domain.Wallet, error)
	FindByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)
	List(ctx context.Context, status *domain.WalletStatus, limit, offset int) ([]*domain.Wallet, int, error)
	Delete(ctx context.Context, id int64) error
}

// Ledger is the subset of the ledger service the wallet admin needs. Status
// and freeze changes go through it so they are chained like postings.
type Ledger interface {
	GetSummary(ctx context.Context, walletID int64) (*ledger.Summary, error)
	Freeze(ctx context.Context, walletID int64, amount decimal.Decimal) (*domain.Wallet, error)
	Unfreeze(ctx context.Context, walletID int64, amount decimal.Decimal) (*domain.Wallet, error)
	SetStatus(ctx context.Context, walletID int64, status domain.WalletStatus) (*domain.Wallet, error)
}

type TransactionLister interface {
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int, error)
}

type PaymentMethodLister interface {
	List(ctx context.Context, activeOnly bool) ([]*domain.PaymentMethod, error)
}

type Service struct {
	repo         Repository
	ledger       Ledger
	transactions TransactionLister
	methods      PaymentMethodLister
	logger       logger.Logger
}

func NewService(repo Repository, l Ledger, transactions TransactionLister, methods PaymentMethodLister, log logger.Logger) *Service {
	return &Service{
		repo:         repo,
		ledger:       l,
		transactions: transactions,
		methods:      methods,
		logger:       log,
	}
}

// Overview is the customer wallet dashboard.
type Overview struct {
	Wallet             *domain.Wallet          `json:"wallet"`
	RecentTransactions []*domain.Transaction   `json:"recent_transactions"`
	Summary            *ledger.Summary         `json:"summary"`
	PaymentMethods     []*domain.PaymentMethod `json:"payment_methods"`
}

func (s *Service) Overview(ctx context.Context, userID int64) (*Overview, error) {
	w, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary, err := s.ledger.GetSummary(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	recent, _, err := s.transactions.List(ctx, domain.TransactionFilter{WalletID: &w.ID, Limit: RecentLimit})
	if err != nil {
		return nil, err
	}

	methods, err := s.methods.List(ctx, true)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Wallet:             w,
		RecentTransactions: recent,
		Summary:            summary,
		PaymentMethods:     methods,
	}, nil
}

// WalletFor returns the wallet owned by userID.
func (s *Service) WalletFor(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return s.repo.FindByUserID(ctx, userID)
}

type CreateWalletRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// CreateWallet opens an empty wallet for a user who has none.
func (s *Service) CreateWallet(ctx context.Context, req *CreateWalletRequest) (*domain.Wallet, error) {
	existing, err := s.repo.FindByUserID(ctx, req.UserID)
	if err == nil && existing != nil {
		return nil, errors.ErrWalletAlreadyExists
	}
	if err != nil && !errors.Is(err, errors.ErrWalletNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		UserID:    req.UserID,
		Status:    domain.WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		return nil, err
	}

	s.logger.Info("Wallet created", map[string]interface{}{
		"wallet_id": wallet.ID,
		"user_id":   req.UserID,
	})
	return wallet, nil
}

func (s *Service) GetWallet(ctx context.Context, id int64) (*domain.Wallet, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status *domain.WalletStatus, limit, offset int) ([]*domain.Wallet, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) UpdateStatus(ctx context.Context, id int64, status domain.WalletStatus, adminID int64) (*domain.Wallet, error) {
	w, err := s.ledger.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Wallet status changed", map[string]interface{}{
		"wallet_id": id,
		"status":    status,
		"admin_id":  adminID,
	})
	return w, nil
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

func (s *Service) Freeze(ctx context.Context, id int64, amount decimal.Decimal, adminID int64) (*domain.Wallet, error) {
	w, err := s.ledger.Freeze(ctx, id, amount)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Wallet funds frozen", map[string]interface{}{
		"wallet_id": id,
		"amount":    amount.String(),
		"admin_id":  adminID,
	})
	return w, nil
}

func (s *Service) Unfreeze(ctx context.Context, id int64, amount decimal.Decimal, adminID int64) (*domain.Wallet, error) {
	w, err := s.ledger.Unfreeze(ctx, id, amount)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Wallet funds unfrozen", map[string]interface{}{
		"wallet_id": id,
		"amount":    amount.String(),
		"admin_id":  adminID,
	})
	return w, nil
}

// Delete removes a wallet with no balance, holds or history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !w.Balance.IsZero() || !w.PendingAmount.IsZero() || !w.FrozenAmount.IsZero() {
		return errors.ErrWalletNotEmpty
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Wallet deleted", map[string]interface{}{"wallet_id": id})
	return nil
}
