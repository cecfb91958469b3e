// Package ledger owns wallet balances. Every balance, hold or freeze change
// goes through Service so that it is serialized per wallet, chained into the
// ledger entry log and announced on the event bus.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"propvest/internal/events"
	"propvest/pkg/cache"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/lock"
	"propvest/pkg/logger"
)

const (
	EventHold     = "hold"
	EventRelease  = "release"
	EventFreeze   = "freeze"
	EventUnfreeze = "unfreeze"
	EventStatus   = "status"
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*domain.Wallet, error)
	// Mutate locks the wallet row, hands it to fn and persists the wallet
	// together with the returned mutation atomically. Nothing is written
	// when fn fails.
	Mutate(ctx context.Context, walletID int64, fn func(w *domain.Wallet) (*domain.WalletMutation, error)) (*domain.Wallet, error)
	VerifyChain(ctx context.Context, walletID int64) error
	ListIDs(ctx context.Context) ([]int64, error)
}

type Service struct {
	repo      Repository
	cache     cache.Cache
	cacheTTL  time.Duration
	publisher events.Publisher
	locks     *lock.Keyed[int64]
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, c cache.Cache, cacheTTL time.Duration, pub events.Publisher, log logger.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:      repo,
		cache:     c,
		cacheTTL:  cacheTTL,
		publisher: pub,
		locks:     lock.NewKeyed[int64](),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Summary is the read model served to the wallet dashboard.
type Summary struct {
	WalletID          int64               `json:"wallet_id"`
	UserID            int64               `json:"user_id"`
	Balance           decimal.Decimal     `json:"balance"`
	AvailableBalance  decimal.Decimal     `json:"available_balance"`
	TotalDeposits     decimal.Decimal     `json:"total_deposits"`
	TotalWithdrawals  decimal.Decimal     `json:"total_withdrawals"`
	TotalInvestments  decimal.Decimal     `json:"total_investments"`
	TotalProfits      decimal.Decimal     `json:"total_profits"`
	FrozenAmount      decimal.Decimal     `json:"frozen_amount"`
	PendingAmount     decimal.Decimal     `json:"pending_amount"`
	Status            domain.WalletStatus `json:"status"`
	LastTransactionAt *time.Time          `json:"last_transaction_at,omitempty"`
}

func summaryOf(w *domain.Wallet) *Summary {
	return &Summary{
		WalletID:          w.ID,
		UserID:            w.UserID,
		Balance:           w.Balance,
		AvailableBalance:  w.Available(),
		TotalDeposits:     w.TotalDeposits,
		TotalWithdrawals:  w.TotalWithdrawals,
		TotalInvestments:  w.TotalInvestments,
		TotalProfits:      w.TotalProfits,
		FrozenAmount:      w.FrozenAmount,
		PendingAmount:     w.PendingAmount,
		Status:            w.Status,
		LastTransactionAt: w.LastTransactionAt,
	}
}

func summaryKey(walletID int64) string {
	return fmt.Sprintf("wallet:summary:%d", walletID)
}

// GetSummary returns the wallet position. Cache fills and mutations share the
// wallet lock, so a fill never overwrites a newer write from this process.
func (s *Service) GetSummary(ctx context.Context, walletID int64) (*Summary, error) {
	var cached Summary
	if err := s.cache.Get(ctx, summaryKey(walletID), &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Wallet summary cache read failed", map[string]interface{}{
			"wallet_id": walletID,
			"error":     err.Error(),
		})
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	summary := summaryOf(w)
	s.storeSummary(ctx, summary)
	return summary, nil
}

// Posting describes one balance change. Amount is signed: positive for
// deposit, profit and refund, negative for withdrawal and investment.
// ReleaseHold is removed from the pending amount before the debit is checked.
type Posting struct {
	WalletID    int64
	Type        domain.TransactionType
	Amount      decimal.Decimal
	ReleaseHold decimal.Decimal
	Record      *domain.Transaction
}

type PostingResult struct {
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Wallet        *domain.Wallet
}

func (p Posting) validate() error {
	if !p.Type.Valid() {
		return pkgerrors.NewValidationError("type", "unknown transaction type")
	}
	if p.Amount.IsZero() {
		return pkgerrors.NewValidationError("amount", "must not be zero")
	}
	if p.Type.IsCredit() != p.Amount.IsPositive() {
		return pkgerrors.NewValidationError("amount", fmt.Sprintf("sign does not match %s", p.Type))
	}
	if p.ReleaseHold.IsNegative() {
		return pkgerrors.NewValidationError("release_hold", "must not be negative")
	}
	return nil
}

// ApplyTransaction mutates the balance and running totals atomically. When
// p.Record is set its balance_before/balance_after are filled in and it is
// persisted in the same database transaction.
func (s *Service) ApplyTransaction(ctx context.Context, p Posting) (*PostingResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	result := &PostingResult{}
	w, err := s.mutate(ctx, p.WalletID, func(w *domain.Wallet) (*domain.WalletMutation, error) {
		if w.Status != domain.WalletStatusActive {
			return nil, pkgerrors.ErrWalletNotActive
		}
		if p.ReleaseHold.IsPositive() {
			w.PendingAmount = decimal.Max(decimal.Zero, w.PendingAmount.Sub(p.ReleaseHold))
		}
		if p.Amount.IsNegative() && w.Available().LessThan(p.Amount.Neg()) {
			return nil, pkgerrors.ErrInsufficientFunds
		}

		result.BalanceBefore = w.Balance
		w.Balance = w.Balance.Add(p.Amount)
		result.BalanceAfter = w.Balance

		abs := p.Amount.Abs()
		switch p.Type {
		case domain.TransactionTypeDeposit:
			w.TotalDeposits = w.TotalDeposits.Add(abs)
		case domain.TransactionTypeWithdrawal:
			w.TotalWithdrawals = w.TotalWithdrawals.Add(abs)
		case domain.TransactionTypeInvestment:
			w.TotalInvestments = w.TotalInvestments.Add(abs)
		case domain.TransactionTypeProfit:
			w.TotalProfits = w.TotalProfits.Add(abs)
		case domain.TransactionTypeRefund:
			w.TotalInvestments = w.TotalInvestments.Sub(abs)
		}

		now := s.now()
		w.LastTransactionAt = &now

		if p.Record != nil {
			before, after := result.BalanceBefore, result.BalanceAfter
			p.Record.BalanceBefore = &before
			p.Record.BalanceAfter = &after
			p.Record.UpdatedAt = now
		}

		return &domain.WalletMutation{
			Entry: &domain.LedgerEntry{
				EventType:    string(p.Type),
				Amount:       p.Amount,
				BalanceAfter: w.Balance,
			},
			Record: p.Record,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	result.Wallet = w
	s.logger.Info("Ledger posting applied", map[string]interface{}{
		"wallet_id":      w.ID,
		"type":           p.Type,
		"amount":         p.Amount.String(),
		"balance_before": result.BalanceBefore.String(),
		"balance_after":  result.BalanceAfter.String(),
	})
	return result, nil
}

// HoldPending reserves amount for a pending withdrawal.
func (s *Service) HoldPending(ctx context.Context, walletID int64, amount decimal.Decimal, record *domain.Transaction) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.NewValidationError("amount", "must be positive")
	}
	return s.mutate(ctx, walletID, func(w *domain.Wallet) (*domain.WalletMutation, error) {
		if w.Status != domain.WalletStatusActive {
			return nil, pkgerrors.ErrWalletNotActive
		}
		if w.Available().LessThan(amount) {
			return nil, pkgerrors.ErrInsufficientFunds
		}
		w.PendingAmount = w.PendingAmount.Add(amount)
		return &domain.WalletMutation{
			Entry:  &domain.LedgerEntry{EventType: EventHold, Amount: amount, BalanceAfter: w.Balance},
			Record: record,
		}, nil
	})
}

// ReleasePending returns a hold to the available balance. It works on
// frozen and suspended wallets too so pending requests can always be closed.
func (s *Service) ReleasePending(ctx context.Context, walletID int64, amount decimal.Decimal, record *domain.Transaction) (*domain.Wallet, error) {
	if amount.IsNegative() {
		return nil, pkgerrors.NewValidationError("amount", "must not be negative")
	}
	return s.mutate(ctx, walletID, func(w *domain.Wallet) (*domain.WalletMutation, error) {
		released := decimal.Min(amount, w.PendingAmount)
		w.PendingAmount = w.PendingAmount.Sub(released)
		return &domain.WalletMutation{
			Entry:  &domain.LedgerEntry{EventType: EventRelease, Amount: released, BalanceAfter: w.Balance},
			Record: record,
		}, nil
	})
}

// Freeze blocks part of the available balance.
func (s *Service) Freeze(ctx context.Context, walletID int64, amount decimal.Decimal) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.NewValidationError("amount", "must be positive")
	}
	return s.mutate(ctx, walletID, func(w *domain.Wallet) (*domain.WalletMutation, error) {
		if w.Available().LessThan(amount) {
			return nil, pkgerrors.ErrInsufficientFunds
		}
		w.FrozenAmount = w.FrozenAmount.Add(amount)
		return &domain.WalletMutation{
			Entry: &domain.LedgerEntry{EventType: EventFreeze, Amount: amount, BalanceAfter: w.Balance},
		}, nil
	})
}

func (s *Service) Unfreeze(ctx context.Context, walletID int64, amount decimal.Decimal) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.NewValidationError("amount", "must be positive")
	}
	return s.mutate(ctx, walletID, func(w *domain.Wallet) (*domain.WalletMutation, error) {
		released := decimal.Min(amount, w.FrozenAmount)
		w.FrozenAmount = w.FrozenAmount.Sub(released)
		return &domain.WalletMutation{
			Entry: &domain.LedgerEntry{EventType: EventUnfreeze, Amount: released, BalanceAfter: w.Balance},
		}, nil
	})
}

func (s *Service) SetStatus(ctx context.Context, walletID int64, status domain.WalletStatus) (*domain.Wallet, error) {
	switch status {
	case domain.WalletStatusActive, domain.WalletStatusFrozen, domain.WalletStatusSuspended:
	default:
		return nil, pkgerrors.NewValidationError("status", "must be one of: active frozen suspended")
	}
	return s.mutate(ctx, walletID, func(w *domain.Wallet) (*domain.WalletMutation, error) {
		w.Status = status
		return &domain.WalletMutation{
			Entry: &domain.LedgerEntry{EventType: EventStatus + ":" + string(status), Amount: decimal.Zero, BalanceAfter: w.Balance},
		}, nil
	})
}

// VerifyAll checks the entry hash chain of every wallet and returns the ids
// whose chain is broken.
func (s *Service) VerifyAll(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	var broken []int64
	for _, id := range ids {
		if err := s.repo.VerifyChain(ctx, id); err != nil {
			s.logger.Error("Ledger chain verification failed", map[string]interface{}{
				"wallet_id": id,
				"error":     err.Error(),
			})
			broken = append(broken, id)
		}
	}
	return broken, nil
}

func (s *Service) mutate(ctx context.Context, walletID int64, fn func(w *domain.Wallet) (*domain.WalletMutation, error)) (*domain.Wallet, error) {
	unlock := s.locks.Lock(walletID)
	w, err := s.repo.Mutate(ctx, walletID, func(w *domain.Wallet) (*domain.WalletMutation, error) {
		m, err := fn(w)
		if err != nil {
			return nil, err
		}
		w.UpdatedAt = s.now()
		if m != nil && m.Entry != nil {
			m.Entry.WalletID = w.ID
			if m.Record != nil && m.Record.ID != 0 {
				id := m.Record.ID
				m.Entry.TransactionID = &id
			}
		}
		return m, nil
	})
	if err != nil {
		unlock()
		return nil, err
	}
	s.storeSummary(ctx, summaryOf(w))
	unlock()

	if pubErr := s.publisher.Publish(ctx, events.New(events.TypeWalletMutated, w.ID, summaryOf(w))); pubErr != nil {
		s.logger.Warn("Wallet event not published", map[string]interface{}{
			"wallet_id": w.ID,
			"error":     pubErr.Error(),
		})
	}
	return w, nil
}

// storeSummary refreshes the cached summary. When the write fails the old
// entry is dropped so readers fall back to the database.
func (s *Service) storeSummary(ctx context.Context, summary *Summary) {
	key := summaryKey(summary.WalletID)
	err := s.cache.Set(ctx, key, summary, s.cacheTTL)
	if err == nil {
		return
	}
	s.logger.Warn("Wallet summary cache write failed", map[string]interface{}{
		"wallet_id": summary.WalletID,
		"error":     err.Error(),
	})
	if delErr := s.cache.Delete(ctx, key); delErr != nil {
		s.logger.Error("Stale wallet summary left in cache", map[string]interface{}{
			"wallet_id": summary.WalletID,
			"error":     delErr.Error(),
		})
	}
}
