package handler

import (
	"context"
	"net/http"
	"time"

	"propvest/internal/auth"
	"propvest/internal/middleware"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

type AuthService interface {
	Login(ctx context.Context, req *auth.LoginRequest, client auth.ClientInfo) (*auth.TokenResponse, error)
	EnrollTOTP(ctx context.Context, userID int64) (*auth.Enrollment, error)
	ConfirmTOTP(ctx context.Context, userID int64, code string) error
	DisableTOTP(ctx context.Context, userID int64, code string) error
}

// TokenRevoker revokes access tokens on logout.
type TokenRevoker interface {
	Blacklist(ctx context.Context, token string, expiration time.Duration) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	service   AuthService
	revoker   TokenRevoker
	tokenTTL  time.Duration
	validator *validator.Validator
	logger    logger.Logger
}

func NewAuthHandler(service AuthService, revoker TokenRevoker, tokenTTL time.Duration, val *validator.Validator, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		revoker:   revoker,
		tokenTTL:  tokenTTL,
		validator: val,
		logger:    log,
	}
}

// Login authenticates a user and returns an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	response, err := h.service.Login(r.Context(), &req, auth.ClientInfo{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, h.logger, "Login failed", err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// Logout revokes the caller's token for the rest of its lifetime.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := h.revoker.Blacklist(r.Context(), token, h.tokenTTL); err != nil {
		writeError(w, r, h.logger, "Logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	enrollment, err := h.service.EnrollTOTP(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, "TOTP enrolment failed", err)
		return
	}
	respondJSON(w, http.StatusOK, enrollment)
}

type totpCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *AuthHandler) ConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req totpCodeRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	if err := h.service.ConfirmTOTP(r.Context(), userID, req.Code); err != nil {
		writeError(w, r, h.logger, "TOTP confirmation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"totp_enabled": true})
}

func (h *AuthHandler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req totpCodeRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	if err := h.service.DisableTOTP(r.Context(), userID, req.Code); err != nil {
		writeError(w, r, h.logger, "Disabling TOTP failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"totp_enabled": false})
}
