// Package transaction is the only writer of ledger-affecting records. It
// validates deposit and withdrawal requests against wallet policy, drives
// the pending → terminal lifecycle and posts completed records to the ledger.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"propvest/internal/events"
	"propvest/internal/ledger"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

type Repository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id int64) (*domain.Transaction, error)
	// UpdateStatus persists a transition out of pending and fails with
	// ErrInvalidStateTransition when the row is no longer pending.
	UpdateStatus(ctx context.Context, tx *domain.Transaction) error
	UpdateDetails(ctx context.Context, tx *domain.Transaction) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int, error)
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Transaction, error)
	// FindCompletedFor returns the completed transaction of txType linked to
	// relatedID (profit id for profits, investment id otherwise), or nil.
	FindCompletedFor(ctx context.Context, txType domain.TransactionType, relatedID int64) (*domain.Transaction, error)
}

type Ledger interface {
	ApplyTransaction(ctx context.Context, p ledger.Posting) (*ledger.PostingResult, error)
	HoldPending(ctx context.Context, walletID int64, amount decimal.Decimal, record *domain.Transaction) (*domain.Wallet, error)
	ReleasePending(ctx context.Context, walletID int64, amount decimal.Decimal, record *domain.Transaction) (*domain.Wallet, error)
}

type WalletReader interface {
	FindByID(ctx context.Context, id int64) (*domain.Wallet, error)
}

type PaymentMethodReader interface {
	FindByID(ctx context.Context, id int64) (*domain.PaymentMethod, error)
}

type Policy interface {
	Current(ctx context.Context) (*domain.Settings, error)
}

type Service struct {
	repo      Repository
	ledger    Ledger
	wallets   WalletReader
	methods   PaymentMethodReader
	policy    Policy
	publisher events.Publisher
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, l Ledger, wallets WalletReader, methods PaymentMethodReader, policy Policy, pub events.Publisher, log logger.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:      repo,
		ledger:    l,
		wallets:   wallets,
		methods:   methods,
		policy:    policy,
		publisher: pub,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type DepositRequest struct {
	WalletID         int64              `json:"-"`
	Amount           decimal.Decimal    `json:"amount" validate:"required,gt=0"`
	PaymentMethodID  int64              `json:"payment_method_id" validate:"required,gt=0"`
	PaymentMode      domain.PaymentMode `json:"payment_mode" validate:"required,oneof=upi bank_transfer card cash cheque"`
	PaymentReference *string            `json:"payment_reference" validate:"omitempty,max=120"`
	Notes            *string            `json:"notes" validate:"omitempty,max=1000"`
	AutoApprove      bool               `json:"auto_approve"`
}

type WithdrawalRequest struct {
	WalletID        int64              `json:"-"`
	Amount          decimal.Decimal    `json:"amount" validate:"required,gt=0"`
	PaymentMethodID int64              `json:"payment_method_id" validate:"required,gt=0"`
	PaymentMode     domain.PaymentMode `json:"payment_mode" validate:"required,oneof=upi bank_transfer"`
	BankAccount     *string            `json:"bank_account" validate:"omitempty,min=6,max=34"`
	UPIID           *string            `json:"upi_id" validate:"omitempty,upi"`
	Notes           *string            `json:"notes" validate:"omitempty,max=1000"`
}

// CreateDeposit records a deposit. It completes immediately only when the
// client asks for auto-approval, the server policy allows it and the amount
// is below the ceiling. Otherwise it waits for an admin.
func (s *Service) CreateDeposit(ctx context.Context, req *DepositRequest) (*domain.Transaction, error) {
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount.LessThan(policy.MinDeposit) {
		return nil, pkgerrors.NewValidationError("amount", fmt.Sprintf("Minimum deposit amount is ₹%s", policy.MinDeposit.StringFixed(2)))
	}

	autoApprove := req.AutoApprove && policy.AutoApproveEnabled && req.Amount.LessThan(policy.AutoApproveCeiling)
	return s.createDeposit(ctx, req, policy, autoApprove, nil)
}

func (s *Service) createDeposit(ctx context.Context, req *DepositRequest, policy *domain.Settings, complete bool, approverID *int64) (*domain.Transaction, error) {
	wallet, err := s.activeWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMethod(ctx, req.PaymentMethodID, req.PaymentMode); err != nil {
		return nil, err
	}

	fee := feeFor(req.Amount, policy.DepositFeePercent)
	now := s.now()
	methodID := req.PaymentMethodID
	tx := &domain.Transaction{
		Reference:        newReference("DEP"),
		WalletID:         wallet.ID,
		UserID:           wallet.UserID,
		Type:             domain.TransactionTypeDeposit,
		Amount:           req.Amount,
		ProcessingFee:    fee,
		NetAmount:        req.Amount.Sub(fee),
		Status:           domain.TransactionStatusPending,
		PaymentMethodID:  &methodID,
		PaymentMode:      req.PaymentMode,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if !complete {
		if err := s.repo.Create(ctx, tx); err != nil {
			return nil, err
		}
		s.logger.Info("Deposit pending approval", map[string]interface{}{
			"transaction_id": tx.ID,
			"wallet_id":      tx.WalletID,
			"amount":         tx.Amount.String(),
		})
		s.announce(ctx, tx)
		return tx, nil
	}

	tx.Status = domain.TransactionStatusCompleted
	tx.ApprovedBy = approverID
	tx.ApprovedAt = &now
	if _, err := s.ledger.ApplyTransaction(ctx, ledger.Posting{
		WalletID: tx.WalletID,
		Type:     tx.Type,
		Amount:   tx.NetAmount,
		Record:   tx,
	}); err != nil {
		return s.persistRejected(ctx, tx, err)
	}

	s.logger.Info("Deposit auto-approved", map[string]interface{}{
		"transaction_id": tx.ID,
		"wallet_id":      tx.WalletID,
		"amount":         tx.Amount.String(),
	})
	s.announce(ctx, tx)
	return tx, nil
}

// CreateWithdrawal places a pending withdrawal and holds its amount. A
// request above the available balance is stored as rejected, the ledger is
// left untouched and ErrInsufficientFunds is returned with the record.
func (s *Service) CreateWithdrawal(ctx context.Context, req *WithdrawalRequest) (*domain.Transaction, error) {
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount.LessThan(policy.MinWithdrawal) {
		return nil, pkgerrors.NewValidationError("amount", fmt.Sprintf("Minimum withdrawal amount is ₹%s", policy.MinWithdrawal.StringFixed(2)))
	}
	if err := payoutDestination(req); err != nil {
		return nil, err
	}
	if err := s.checkMethod(ctx, req.PaymentMethodID, req.PaymentMode); err != nil {
		return nil, err
	}

	wallet, err := s.wallets.FindByID(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}

	fee := feeFor(req.Amount, policy.WithdrawalFeePercent)
	now := s.now()
	methodID := req.PaymentMethodID
	tx := &domain.Transaction{
		Reference:       newReference("WDR"),
		WalletID:        wallet.ID,
		UserID:          wallet.UserID,
		Type:            domain.TransactionTypeWithdrawal,
		Amount:          req.Amount,
		ProcessingFee:   fee,
		NetAmount:       req.Amount.Sub(fee),
		Status:          domain.TransactionStatusPending,
		PaymentMethodID: &methodID,
		PaymentMode:     req.PaymentMode,
		BankAccount:     req.BankAccount,
		UPIID:           req.UPIID,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := s.ledger.HoldPending(ctx, wallet.ID, tx.Amount, tx); err != nil {
		return s.persistRejected(ctx, tx, err)
	}

	s.logger.Info("Withdrawal pending approval", map[string]interface{}{
		"transaction_id": tx.ID,
		"wallet_id":      tx.WalletID,
		"amount":         tx.Amount.String(),
	})
	s.announce(ctx, tx)
	return tx, nil
}

// Approve completes a pending deposit or withdrawal. A ledger refusal turns
// the transaction into a rejected one carrying the reason.
func (s *Service) Approve(ctx context.Context, id, approverID int64) (*domain.Transaction, error) {
	tx, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx.Status = domain.TransactionStatusCompleted
	tx.ApprovedBy = &approverID
	tx.ApprovedAt = &now

	posting := ledger.Posting{WalletID: tx.WalletID, Type: tx.Type, Record: tx}
	switch tx.Type {
	case domain.TransactionTypeDeposit:
		posting.Amount = tx.NetAmount
	case domain.TransactionTypeWithdrawal:
		posting.Amount = tx.NetAmount.Neg()
		posting.ReleaseHold = tx.Amount
	default:
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, fmt.Sprintf("%s transactions are not approved manually", tx.Type))
	}

	if _, err := s.ledger.ApplyTransaction(ctx, posting); err != nil {
		if !isLedgerRefusal(err) {
			return nil, err
		}
		tx.ApprovedBy, tx.ApprovedAt = nil, nil
		if closeErr := s.close(ctx, tx, domain.TransactionStatusRejected, &approverID, reasonFor(err)); closeErr != nil {
			return nil, closeErr
		}
		s.announce(ctx, tx)
		return tx, err
	}

	s.logger.Info("Transaction approved", map[string]interface{}{
		"transaction_id": tx.ID,
		"approved_by":    approverID,
		"type":           tx.Type,
	})
	s.announce(ctx, tx)
	return tx, nil
}

func (s *Service) Reject(ctx context.Context, id, approverID int64, reason string) (*domain.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.NewValidationError("reason", "This field is required")
	}
	tx, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.close(ctx, tx, domain.TransactionStatusRejected, &approverID, reason); err != nil {
		return nil, err
	}
	s.logger.Info("Transaction rejected", map[string]interface{}{
		"transaction_id": tx.ID,
		"rejected_by":    approverID,
		"reason":         reason,
	})
	s.announce(ctx, tx)
	return tx, nil
}

// Cancel lets the owner withdraw their own pending request.
func (s *Service) Cancel(ctx context.Context, id, userID int64) (*domain.Transaction, error) {
	tx, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, pkgerrors.ErrAccessDenied
	}
	if err := s.close(ctx, tx, domain.TransactionStatusCancelled, nil, "cancelled by user"); err != nil {
		return nil, err
	}
	s.announce(ctx, tx)
	return tx, nil
}

// ExpireStale fails pending transactions created before the policy window
// and releases their holds. It returns how many were expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return 0, err
	}
	window := time.Duration(policy.StalePendingHours) * time.Hour
	stale, err := s.repo.FindStalePending(ctx, s.now().Add(-window), 500)
	if err != nil {
		return 0, err
	}

	expired := 0
	reason := fmt.Sprintf("expired after %d hours pending", policy.StalePendingHours)
	for _, tx := range stale {
		if err := s.close(ctx, tx, domain.TransactionStatusFailed, nil, reason); err != nil {
			if errors.Is(err, pkgerrors.ErrInvalidStateTransition) {
				continue
			}
			s.logger.Error("Failed to expire transaction", map[string]interface{}{
				"transaction_id": tx.ID,
				"error":          err.Error(),
			})
			continue
		}
		expired++
		s.announce(ctx, tx)
	}
	return expired, nil
}

type CreditProfitRequest struct {
	WalletID     int64
	ProfitID     int64
	InvestmentID int64
	Amount       decimal.Decimal
}

// CreditProfit posts a completed profit transaction. A profit that already
// has a completed credit returns that credit instead of paying twice.
func (s *Service) CreditProfit(ctx context.Context, req CreditProfitRequest) (*domain.Transaction, error) {
	if existing, err := s.repo.FindCompletedFor(ctx, domain.TransactionTypeProfit, req.ProfitID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	profitID, investmentID := req.ProfitID, req.InvestmentID
	return s.postSystem(ctx, req.WalletID, domain.TransactionTypeProfit, req.Amount, "PRF", func(tx *domain.Transaction) {
		tx.ProfitID = &profitID
		tx.InvestmentID = &investmentID
	})
}

// DebitInvestment takes the invested amount out of the wallet.
func (s *Service) DebitInvestment(ctx context.Context, walletID, investmentID int64, amount decimal.Decimal) (*domain.Transaction, error) {
	return s.postSystem(ctx, walletID, domain.TransactionTypeInvestment, amount, "INV", func(tx *domain.Transaction) {
		tx.InvestmentID = &investmentID
	})
}

// RefundInvestment returns a cancelled investment's amount to the wallet,
// at most once per investment.
func (s *Service) RefundInvestment(ctx context.Context, walletID, investmentID int64, amount decimal.Decimal, reason string) (*domain.Transaction, error) {
	if existing, err := s.repo.FindCompletedFor(ctx, domain.TransactionTypeRefund, investmentID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	return s.postSystem(ctx, walletID, domain.TransactionTypeRefund, amount, "RFD", func(tx *domain.Transaction) {
		tx.InvestmentID = &investmentID
		if reason != "" {
			tx.Notes = &reason
		}
	})
}

func (s *Service) postSystem(ctx context.Context, walletID int64, txType domain.TransactionType, amount decimal.Decimal, prefix string, decorate func(*domain.Transaction)) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.NewValidationError("amount", "must be positive")
	}
	wallet, err := s.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx := &domain.Transaction{
		Reference:   newReference(prefix),
		WalletID:    wallet.ID,
		UserID:      wallet.UserID,
		Type:        txType,
		Amount:      amount,
		NetAmount:   amount,
		Status:      domain.TransactionStatusCompleted,
		PaymentMode: domain.PaymentModeWallet,
		ApprovedAt:  &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	decorate(tx)

	signed := amount
	if !txType.IsCredit() {
		signed = amount.Neg()
	}
	if _, err := s.ledger.ApplyTransaction(ctx, ledger.Posting{
		WalletID: wallet.ID,
		Type:     txType,
		Amount:   signed,
		Record:   tx,
	}); err != nil {
		return s.persistRejected(ctx, tx, err)
	}

	s.announce(ctx, tx)
	return tx, nil
}

type StoreRequest struct {
	WalletID         int64                    `json:"wallet_id" validate:"required,gt=0"`
	Type             domain.TransactionType   `json:"type" validate:"required,oneof=deposit withdrawal"`
	Amount           decimal.Decimal          `json:"amount" validate:"required,gt=0"`
	PaymentMethodID  int64                    `json:"payment_method_id" validate:"required,gt=0"`
	PaymentMode      domain.PaymentMode       `json:"payment_mode" validate:"required,oneof=upi bank_transfer card cash cheque"`
	PaymentReference *string                  `json:"payment_reference" validate:"omitempty,max=120"`
	BankAccount      *string                  `json:"bank_account" validate:"omitempty,min=6,max=34"`
	UPIID            *string                  `json:"upi_id" validate:"omitempty,upi"`
	Notes            *string                  `json:"notes" validate:"omitempty,max=1000"`
	Status           domain.TransactionStatus `json:"status" validate:"required,oneof=pending completed"`
}

// Store is the admin's manual entry. Minimums and the auto-approval
// ceiling do not apply; the entry is completed on the admin's authority
// when Status is completed.
func (s *Service) Store(ctx context.Context, req *StoreRequest, adminID int64) (*domain.Transaction, error) {
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}

	if req.Type == domain.TransactionTypeDeposit {
		return s.createDeposit(ctx, &DepositRequest{
			WalletID:         req.WalletID,
			Amount:           req.Amount,
			PaymentMethodID:  req.PaymentMethodID,
			PaymentMode:      req.PaymentMode,
			PaymentReference: req.PaymentReference,
			Notes:            req.Notes,
		}, policy, req.Status == domain.TransactionStatusCompleted, &adminID)
	}

	wreq := &WithdrawalRequest{
		WalletID:        req.WalletID,
		Amount:          req.Amount,
		PaymentMethodID: req.PaymentMethodID,
		PaymentMode:     req.PaymentMode,
		BankAccount:     req.BankAccount,
		UPIID:           req.UPIID,
		Notes:           req.Notes,
	}
	if err := payoutDestination(wreq); err != nil {
		return nil, err
	}
	if err := s.checkMethod(ctx, wreq.PaymentMethodID, wreq.PaymentMode); err != nil {
		return nil, err
	}
	wallet, err := s.wallets.FindByID(ctx, wreq.WalletID)
	if err != nil {
		return nil, err
	}

	fee := feeFor(req.Amount, policy.WithdrawalFeePercent)
	now := s.now()
	methodID := req.PaymentMethodID
	tx := &domain.Transaction{
		Reference:        newReference("WDR"),
		WalletID:         wallet.ID,
		UserID:           wallet.UserID,
		Type:             domain.TransactionTypeWithdrawal,
		Amount:           req.Amount,
		ProcessingFee:    fee,
		NetAmount:        req.Amount.Sub(fee),
		Status:           domain.TransactionStatusPending,
		PaymentMethodID:  &methodID,
		PaymentMode:      req.PaymentMode,
		PaymentReference: req.PaymentReference,
		BankAccount:      req.BankAccount,
		UPIID:            req.UPIID,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := s.ledger.HoldPending(ctx, wallet.ID, tx.Amount, tx); err != nil {
		return s.persistRejected(ctx, tx, err)
	}
	if req.Status == domain.TransactionStatusCompleted {
		return s.Approve(ctx, tx.ID, adminID)
	}
	s.announce(ctx, tx)
	return tx, nil
}

type UpdateRequest struct {
	PaymentReference *string `json:"payment_reference" validate:"omitempty,max=120"`
	Notes            *string `json:"notes" validate:"omitempty,max=1000"`
}

// UpdateDetails edits the free-text fields of a pending transaction. Amounts
// and types are immutable once created.
func (s *Service) UpdateDetails(ctx context.Context, id int64, req *UpdateRequest) (*domain.Transaction, error) {
	tx, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PaymentReference != nil {
		tx.PaymentReference = req.PaymentReference
	}
	if req.Notes != nil {
		tx.Notes = req.Notes
	}
	tx.UpdatedAt = s.now()
	if err := s.repo.UpdateDetails(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Delete removes a transaction that never reached the ledger. A pending one
// is cancelled first so its hold is released.
func (s *Service) Delete(ctx context.Context, id, adminID int64) error {
	tx, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if tx.Status == domain.TransactionStatusCompleted {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "completed transactions cannot be deleted")
	}
	if tx.Status == domain.TransactionStatusPending {
		if err := s.close(ctx, tx, domain.TransactionStatusCancelled, &adminID, "deleted by admin"); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Transaction deleted", map[string]interface{}{
		"transaction_id": id,
		"deleted_by":     adminID,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// close moves a pending transaction to a non-completed terminal status,
// releasing a withdrawal hold in the same write.
func (s *Service) close(ctx context.Context, tx *domain.Transaction, status domain.TransactionStatus, actorID *int64, reason string) error {
	now := s.now()
	tx.Status = status
	tx.UpdatedAt = now
	if status == domain.TransactionStatusRejected {
		tx.RejectedBy = actorID
		tx.RejectedAt = &now
	}
	if reason != "" {
		r := reason
		tx.RejectionReason = &r
	}

	if tx.Type == domain.TransactionTypeWithdrawal {
		_, err := s.ledger.ReleasePending(ctx, tx.WalletID, tx.Amount, tx)
		return err
	}
	return s.repo.UpdateStatus(ctx, tx)
}

// persistRejected stores tx as rejected with the ledger's reason and returns
// the record together with the original error.
func (s *Service) persistRejected(ctx context.Context, tx *domain.Transaction, cause error) (*domain.Transaction, error) {
	if !isLedgerRefusal(cause) {
		return nil, cause
	}
	now := s.now()
	reason := reasonFor(cause)
	tx.Status = domain.TransactionStatusRejected
	tx.RejectedAt = &now
	tx.RejectionReason = &reason
	tx.ApprovedAt, tx.ApprovedBy = nil, nil
	tx.BalanceBefore, tx.BalanceAfter = nil, nil
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Warn("Transaction rejected by ledger", map[string]interface{}{
		"transaction_id": tx.ID,
		"wallet_id":      tx.WalletID,
		"type":           tx.Type,
		"amount":         tx.Amount.String(),
		"reason":         reason,
	})
	s.announce(ctx, tx)
	return tx, pkgerrors.Wrap(cause, fmt.Sprintf("%s %s rejected", tx.Type, tx.Reference))
}

func (s *Service) pending(ctx context.Context, id int64) (*domain.Transaction, error) {
	tx, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, fmt.Sprintf("transaction is %s", tx.Status))
	}
	return tx, nil
}

func (s *Service) activeWallet(ctx context.Context, walletID int64) (*domain.Wallet, error) {
	w, err := s.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WalletStatusActive {
		return nil, pkgerrors.ErrWalletNotActive
	}
	return w, nil
}

func (s *Service) checkMethod(ctx context.Context, id int64, mode domain.PaymentMode) error {
	method, err := s.methods.FindByID(ctx, id)
	if err != nil || method == nil || !method.IsActive {
		return pkgerrors.NewValidationError("payment_method_id", pkgerrors.ErrPaymentMethodInvalid.Error())
	}
	if method.Mode != mode {
		return pkgerrors.NewValidationError("payment_mode", fmt.Sprintf("payment method only supports %s", method.Mode))
	}
	return nil
}

func (s *Service) announce(ctx context.Context, tx *domain.Transaction) {
	if err := s.publisher.Publish(ctx, events.New(events.TypeTransactionChanged, tx.WalletID, tx)); err != nil {
		s.logger.Warn("Transaction event not published", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
	}
}

func payoutDestination(req *WithdrawalRequest) error {
	switch req.PaymentMode {
	case domain.PaymentModeBankTransfer:
		if req.BankAccount == nil || strings.TrimSpace(*req.BankAccount) == "" {
			return pkgerrors.NewValidationError("bank_account", "Bank account is required for bank transfers")
		}
	case domain.PaymentModeUPI:
		if req.UPIID == nil || strings.TrimSpace(*req.UPIID) == "" {
			return pkgerrors.NewValidationError("upi_id", "UPI ID is required for UPI withdrawals")
		}
	}
	return nil
}

func feeFor(amount, percent decimal.Decimal) decimal.Decimal {
	if !percent.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(percent).Div(hundred).Round(2)
}

// newReference returns a sortable reference such as DEP-01J9Z3K8W2C4R6T8V0X2Y4Z6A8.
func newReference(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}

func isLedgerRefusal(err error) bool {
	return errors.Is(err, pkgerrors.ErrInsufficientFunds) || errors.Is(err, pkgerrors.ErrWalletNotActive)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, pkgerrors.ErrInsufficientFunds):
		return "insufficient funds"
	case errors.Is(err, pkgerrors.ErrWalletNotActive):
		return "wallet not active"
	}
	return err.Error()
}
