package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"propvest/internal/profit"
	"propvest/pkg/domain"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

type ProfitService interface {
	Calculate(ctx context.Context, saleID int64, percentage *decimal.Decimal) (*domain.Profit, error)
	Distribute(ctx context.Context, id int64) (*domain.Profit, error)
	DistributeBulk(ctx context.Context, ids []int64) []profit.BulkResult
	Cancel(ctx context.Context, id int64) (*domain.Profit, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Profit, error)
	List(ctx context.Context, status *domain.ProfitStatus, limit, offset int) ([]*domain.Profit, int, error)
	Summary(ctx context.Context) (*domain.ProfitSummary, error)
}

// ProfitHandler serves the admin profit distribution pages.
type ProfitHandler struct {
	service   ProfitService
	validator *validator.Validator
	logger    logger.Logger
}

func NewProfitHandler(service ProfitService, val *validator.Validator, log logger.Logger) *ProfitHandler {
	return &ProfitHandler{service: service, validator: val, logger: log}
}

type calculateRequest struct {
	SaleID           int64            `json:"sale_id" validate:"required,gt=0"`
	ProfitPercentage *decimal.Decimal `json:"profit_percentage" validate:"omitempty,gte=0,lte=100"`
}

func (h *ProfitHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	p, err := h.service.Calculate(r.Context(), req.SaleID, req.ProfitPercentage)
	if err != nil {
		writeError(w, r, h.logger, "Profit calculation failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *ProfitHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	var status *domain.ProfitStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.ProfitStatus(v)
		status = &s
	}
	items, total, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list profits", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *ProfitHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "Failed to load profit summary", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *ProfitHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load profit", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProfitHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Distribute(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Distribution failed", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type bulkRequest struct {
	ProfitIDs []int64 `json:"profit_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

// DistributeBulk always answers 200; failures are reported per id.
func (h *ProfitHandler) DistributeBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	results := h.service.DistributeBulk(r.Context(), req.ProfitIDs)

	succeeded := 0
	for _, res := range results {
		if res.Status == profit.BulkSuccess {
			succeeded++
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

func (h *ProfitHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Cancellation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProfitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "Failed to delete profit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
