package handler

import (
	"net/http"

	"propvest/internal/transaction"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

// TransactionHandler serves the admin transaction pages.
type TransactionHandler struct {
	service   TransactionService
	validator *validator.Validator
	logger    logger.Logger
}

func NewTransactionHandler(service TransactionService, val *validator.Validator, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{service: service, validator: val, logger: log}
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := transactionFilter(r)
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list transactions", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load transaction", err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// Store records a manual deposit or withdrawal on a customer's behalf.
func (h *TransactionHandler) Store(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req transaction.StoreRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	tx, err := h.service.Store(r.Context(), &req, adminID)
	if err != nil {
		writeTxError(w, r, h.logger, "Failed to store transaction", tx, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req transaction.UpdateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	tx, err := h.service.UpdateDetails(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update transaction", err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, adminID); err != nil {
		writeError(w, r, h.logger, "Failed to delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tx, err := h.service.Approve(r.Context(), id, adminID)
	if err != nil {
		writeTxError(w, r, h.logger, "Approval failed", tx, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *TransactionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	tx, err := h.service.Reject(r.Context(), id, adminID, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, "Rejection failed", err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}
