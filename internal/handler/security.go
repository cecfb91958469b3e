package handler

import (
	"context"
	"net/http"

	"propvest/pkg/domain"
	"propvest/pkg/logger"
)

type SecurityLogService interface {
	List(ctx context.Context, filter domain.SecurityLogFilter) ([]*domain.SecurityLog, int, error)
}

type SecurityHandler struct {
	service SecurityLogService
	logger  logger.Logger
}

func NewSecurityHandler(service SecurityLogService, log logger.Logger) *SecurityHandler {
	return &SecurityHandler{service: service, logger: log}
}

// Logs lists security log entries, newest first.
func (h *SecurityHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	filter := domain.SecurityLogFilter{
		UserID: queryInt64(r, "user_id"),
		Action: r.URL.Query().Get("action"),
		From:   queryDate(r, "from"),
		To:     queryDate(r, "to"),
		Limit:  limit,
		Offset: offset,
	}
	logs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Failed to fetch security logs", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: logs, Total: total, Limit: limit, Offset: offset})
}
