package handler

import (
	"context"
	"net/http"

	"propvest/internal/settings"
	"propvest/pkg/domain"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

type SettingsService interface {
	Current(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, req *settings.UpdateRequest, adminID int64) (*domain.Settings, error)
}

type SettingsHandler struct {
	service   SettingsService
	validator *validator.Validator
	logger    logger.Logger
}

func NewSettingsHandler(service SettingsService, val *validator.Validator, log logger.Logger) *SettingsHandler {
	return &SettingsHandler{service: service, validator: val, logger: log}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Current(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "Failed to load settings", err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req settings.UpdateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	s, err := h.service.Update(r.Context(), &req, adminID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update settings", err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}
