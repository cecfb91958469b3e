package handler

import (
	"context"
	"net/http"

	"propvest/internal/investment"
	"propvest/pkg/domain"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

type InvestmentService interface {
	Create(ctx context.Context, req *investment.CreateRequest) (*domain.Investment, error)
	Cancel(ctx context.Context, id int64, reason string) (*domain.Investment, error)
	Get(ctx context.Context, id int64) (*domain.Investment, error)
	List(ctx context.Context, filter domain.InvestmentFilter) ([]*domain.Investment, int, error)
}

type InvestmentHandler struct {
	service   InvestmentService
	validator *validator.Validator
	logger    logger.Logger
}

func NewInvestmentHandler(service InvestmentService, val *validator.Validator, log logger.Logger) *InvestmentHandler {
	return &InvestmentHandler{service: service, validator: val, logger: log}
}

// Create invests from the caller's wallet.
func (h *InvestmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req investment.CreateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	req.UserID = userID

	inv, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, "Investment failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

// Mine lists the caller's investments.
func (h *InvestmentHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	filter := investmentFilter(r)
	filter.UserID = &userID
	h.list(w, r, filter)
}

func (h *InvestmentHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := investmentFilter(r)
	filter.UserID = queryInt64(r, "user_id")
	h.list(w, r, filter)
}

func (h *InvestmentHandler) list(w http.ResponseWriter, r *http.Request, filter domain.InvestmentFilter) {
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list investments", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *InvestmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load investment", err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Cancel refunds an investment to the investor's wallet.
func (h *InvestmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	inv, err := h.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, "Cancellation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func investmentFilter(r *http.Request) domain.InvestmentFilter {
	limit, offset := page(r)
	filter := domain.InvestmentFilter{
		PropertyID: queryInt64(r, "property_id"),
		Limit:      limit,
		Offset:     offset,
	}
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.InvestmentStatus(v)
		filter.Status = &s
	}
	return filter
}
