// Package handler exposes the wallet, investment and admin services over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"propvest/internal/middleware"
	"propvest/pkg/domain"
	apperrors "propvest/pkg/errors"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, fields map[string]string) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"error":  "Validation failed",
		"errors": fields,
	})
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials),
		errors.Is(err, apperrors.ErrInvalidTOTP),
		errors.Is(err, apperrors.ErrTOTPRequired):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrUserInactive),
		errors.Is(err, apperrors.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrUserNotFound),
		errors.Is(err, apperrors.ErrTeamNotFound),
		errors.Is(err, apperrors.ErrWalletNotFound),
		errors.Is(err, apperrors.ErrTransactionNotFound),
		errors.Is(err, apperrors.ErrProfitNotFound),
		errors.Is(err, apperrors.ErrPropertyNotFound),
		errors.Is(err, apperrors.ErrPlotNotFound),
		errors.Is(err, apperrors.ErrSaleNotFound),
		errors.Is(err, apperrors.ErrInvestmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrUserAlreadyExists),
		errors.Is(err, apperrors.ErrWalletAlreadyExists),
		errors.Is(err, apperrors.ErrWalletNotEmpty),
		errors.Is(err, apperrors.ErrInvalidStateTransition),
		errors.Is(err, apperrors.ErrAlreadyDistributed),
		errors.Is(err, apperrors.ErrProfitAlreadyExists),
		errors.Is(err, apperrors.ErrPlotUnavailable),
		errors.Is(err, apperrors.ErrPropertyHasPlots),
		errors.Is(err, apperrors.ErrSaleAlreadyExists),
		errors.Is(err, apperrors.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInsufficientFunds),
		errors.Is(err, apperrors.ErrWalletNotActive),
		errors.Is(err, apperrors.ErrPaymentMethodInvalid):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError renders err as JSON. Validation errors carry their field map;
// internal errors are logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, msg string, err error) {
	if ve, ok := apperrors.AsValidation(err); ok {
		respondValidationErrors(w, ve.Fields)
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(msg, map[string]interface{}{
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
		respondError(w, status, msg)
		return
	}
	respondError(w, status, err.Error())
}

// writeTxError is writeError for calls that persist a rejected transaction
// before failing; the record is returned alongside the error.
func writeTxError(w http.ResponseWriter, r *http.Request, log logger.Logger, msg string, tx *domain.Transaction, err error) {
	status := statusFor(err)
	if tx == nil || tx.ID == 0 || status == http.StatusInternalServerError {
		writeError(w, r, log, msg, err)
		return
	}
	respondJSON(w, status, map[string]interface{}{
		"error":       err.Error(),
		"transaction": tx,
	})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, val *validator.Validator, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			respondError(w, http.StatusBadRequest, "Request body is required")
		case errors.As(err, &maxErr):
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		default:
			respondError(w, http.StatusBadRequest, "Invalid request body")
		}
		return false
	}

	if fields := val.ValidateStructured(dst); fields != nil {
		respondValidationErrors(w, fields)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return id, true
}

// page reads limit/offset query parameters, clamping limit to [1,200].
func page(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func queryInt64(r *http.Request, name string) *int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// queryDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func queryDate(r *http.Request, name string) *time.Time {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t
	}
	return nil
}

type listResponse struct {
	Items  interface{} `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
