package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"propvest/internal/transaction"
	"propvest/internal/wallet"
	"propvest/pkg/domain"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

type WalletService interface {
	Overview(ctx context.Context, userID int64) (*wallet.Overview, error)
	WalletFor(ctx context.Context, userID int64) (*domain.Wallet, error)
	CreateWallet(ctx context.Context, req *wallet.CreateWalletRequest) (*domain.Wallet, error)
	GetWallet(ctx context.Context, id int64) (*domain.Wallet, error)
	List(ctx context.Context, status *domain.WalletStatus, limit, offset int) ([]*domain.Wallet, int, error)
	UpdateStatus(ctx context.Context, id int64, status domain.WalletStatus, adminID int64) (*domain.Wallet, error)
	Freeze(ctx context.Context, id int64, amount decimal.Decimal, adminID int64) (*domain.Wallet, error)
	Unfreeze(ctx context.Context, id int64, amount decimal.Decimal, adminID int64) (*domain.Wallet, error)
	Delete(ctx context.Context, id int64) error
}

type TransactionService interface {
	CreateDeposit(ctx context.Context, req *transaction.DepositRequest) (*domain.Transaction, error)
	CreateWithdrawal(ctx context.Context, req *transaction.WithdrawalRequest) (*domain.Transaction, error)
	Cancel(ctx context.Context, id, userID int64) (*domain.Transaction, error)
	Approve(ctx context.Context, id, approverID int64) (*domain.Transaction, error)
	Reject(ctx context.Context, id, approverID int64, reason string) (*domain.Transaction, error)
	Store(ctx context.Context, req *transaction.StoreRequest, adminID int64) (*domain.Transaction, error)
	UpdateDetails(ctx context.Context, id int64, req *transaction.UpdateRequest) (*domain.Transaction, error)
	Delete(ctx context.Context, id, adminID int64) error
	Get(ctx context.Context, id int64) (*domain.Transaction, error)
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, int, error)
}

// WalletHandler serves the customer wallet and the wallet admin pages.
type WalletHandler struct {
	wallets      WalletService
	transactions TransactionService
	validator    *validator.Validator
	logger       logger.Logger
}

func NewWalletHandler(wallets WalletService, transactions TransactionService, val *validator.Validator, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		wallets:      wallets,
		transactions: transactions,
		validator:    val,
		logger:       log,
	}
}

// Summary returns the caller's wallet dashboard.
func (h *WalletHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	overview, err := h.wallets.Overview(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load wallet", err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req transaction.DepositRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	wl, err := h.wallets.WalletFor(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load wallet", err)
		return
	}
	req.WalletID = wl.ID

	tx, err := h.transactions.CreateDeposit(r.Context(), &req)
	if err != nil {
		writeTxError(w, r, h.logger, "Deposit failed", tx, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req transaction.WithdrawalRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	wl, err := h.wallets.WalletFor(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load wallet", err)
		return
	}
	req.WalletID = wl.ID

	tx, err := h.transactions.CreateWithdrawal(r.Context(), &req)
	if err != nil {
		writeTxError(w, r, h.logger, "Withdrawal failed", tx, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// Transactions lists the caller's own transactions.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	filter := transactionFilter(r)
	filter.UserID = &userID
	filter.WalletID = nil

	items, total, err := h.transactions.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list transactions", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *WalletHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.transactions.Cancel(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, h.logger, "Cancel failed", err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	var status *domain.WalletStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.WalletStatus(v)
		status = &s
	}
	items, total, err := h.wallets.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list wallets", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	wl, err := h.wallets.GetWallet(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load wallet", err)
		return
	}
	respondJSON(w, http.StatusOK, wl)
}

func (h *WalletHandler) StoreWallet(w http.ResponseWriter, r *http.Request) {
	var req wallet.CreateWalletRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	wl, err := h.wallets.CreateWallet(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to create wallet", err)
		return
	}
	respondJSON(w, http.StatusCreated, wl)
}

type walletStatusRequest struct {
	Status domain.WalletStatus `json:"status" validate:"required,oneof=active frozen suspended"`
}

func (h *WalletHandler) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req walletStatusRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	wl, err := h.wallets.UpdateStatus(r.Context(), id, req.Status, adminID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update wallet", err)
		return
	}
	respondJSON(w, http.StatusOK, wl)
}

func (h *WalletHandler) FreezeWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustFrozen(w, r, h.wallets.Freeze)
}

func (h *WalletHandler) UnfreezeWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustFrozen(w, r, h.wallets.Unfreeze)
}

func (h *WalletHandler) adjustFrozen(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64, decimal.Decimal, int64) (*domain.Wallet, error)) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req wallet.AmountRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	wl, err := apply(r.Context(), id, req.Amount, adminID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update frozen amount", err)
		return
	}
	respondJSON(w, http.StatusOK, wl)
}

func (h *WalletHandler) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.wallets.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "Failed to delete wallet", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func transactionFilter(r *http.Request) domain.TransactionFilter {
	limit, offset := page(r)
	filter := domain.TransactionFilter{
		WalletID: queryInt64(r, "wallet_id"),
		UserID:   queryInt64(r, "user_id"),
		From:     queryDate(r, "from"),
		To:       queryDate(r, "to"),
		Limit:    limit,
		Offset:   offset,
	}
	if v := r.URL.Query().Get("type"); v != "" {
		t := domain.TransactionType(v)
		filter.Type = &t
	}
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.TransactionStatus(v)
		filter.Status = &s
	}
	return filter
}
