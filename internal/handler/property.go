package handler

import (
	"context"
	"net/http"

	"propvest/internal/property"
	"propvest/pkg/domain"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

type PropertyService interface {
	Create(ctx context.Context, req *property.PropertyRequest) (*domain.Property, error)
	Update(ctx context.Context, id int64, req *property.PropertyRequest) (*domain.Property, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Property, error)
	List(ctx context.Context, status *domain.PropertyStatus, limit, offset int) ([]*domain.Property, int, error)
	CreatePlot(ctx context.Context, req *property.PlotRequest) (*domain.Plot, error)
	UpdatePlot(ctx context.Context, id int64, req *property.PlotRequest) (*domain.Plot, error)
	DeletePlot(ctx context.Context, id int64) error
	ListPlots(ctx context.Context, propertyID int64) ([]*domain.Plot, error)
	RecordSale(ctx context.Context, req *property.SaleRequest) (*domain.Sale, *domain.Profit, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]*domain.Sale, int, error)
}

// PropertyHandler serves properties, plots and sales.
type PropertyHandler struct {
	service   PropertyService
	validator *validator.Validator
	logger    logger.Logger
}

func NewPropertyHandler(service PropertyService, val *validator.Validator, log logger.Logger) *PropertyHandler {
	return &PropertyHandler{service: service, validator: val, logger: log}
}

func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	var status *domain.PropertyStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.PropertyStatus(v)
		status = &s
	}
	items, total, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list properties", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load property", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PropertyHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req property.PropertyRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	p, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to create property", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req property.PropertyRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	p, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update property", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "Failed to delete property", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Plots lists the plots of one property.
func (h *PropertyHandler) Plots(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	plots, err := h.service.ListPlots(r.Context(), propertyID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list plots", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": plots, "total": len(plots)})
}

func (h *PropertyHandler) StorePlot(w http.ResponseWriter, r *http.Request) {
	var req property.PlotRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	plot, err := h.service.CreatePlot(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to create plot", err)
		return
	}
	respondJSON(w, http.StatusCreated, plot)
}

func (h *PropertyHandler) UpdatePlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req property.PlotRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	plot, err := h.service.UpdatePlot(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update plot", err)
		return
	}
	respondJSON(w, http.StatusOK, plot)
}

func (h *PropertyHandler) DeletePlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePlot(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "Failed to delete plot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type saleResponse struct {
	Sale   *domain.Sale   `json:"sale"`
	Profit *domain.Profit `json:"profit,omitempty"`
}

func (h *PropertyHandler) StoreSale(w http.ResponseWriter, r *http.Request) {
	var req property.SaleRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	sale, p, err := h.service.RecordSale(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to record sale", err)
		return
	}
	respondJSON(w, http.StatusCreated, saleResponse{Sale: sale, Profit: p})
}

func (h *PropertyHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load sale", err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

func (h *PropertyHandler) Sales(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	filter := domain.SaleFilter{
		PropertyID: queryInt64(r, "property_id"),
		From:       queryDate(r, "from"),
		To:         queryDate(r, "to"),
		Limit:      limit,
		Offset:     offset,
	}
	items, total, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list sales", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}
