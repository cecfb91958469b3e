// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidTOTP         = errors.New("invalid one-time code")
	ErrTOTPRequired        = errors.New("one-time code required")
	ErrUserInactive        = errors.New("user is inactive")
	ErrTeamNotFound        = errors.New("team not found")
	ErrDuplicateRequest    = errors.New("duplicate request in progress")
	ErrAccessDenied        = errors.New("access denied")

	ErrPaymentMethodInvalid = errors.New("payment method not found or inactive")

	// Ledger errors
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyExists = errors.New("wallet already exists")
	ErrWalletNotActive     = errors.New("wallet not active")
	ErrWalletNotEmpty      = errors.New("wallet still holds funds")
	ErrInsufficientFunds   = errors.New("insufficient funds")

	// Transaction errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Profit errors
	ErrProfitNotFound      = errors.New("profit not found")
	ErrProfitAlreadyExists = errors.New("profit already calculated for sale")
	ErrAlreadyDistributed  = errors.New("profit already distributed")

	// Property errors
	ErrPropertyNotFound   = errors.New("property not found")
	ErrPlotNotFound       = errors.New("plot not found")
	ErrPlotUnavailable    = errors.New("plot not available")
	ErrPropertyHasPlots   = errors.New("property still has sold or reserved plots")
	ErrSaleNotFound       = errors.New("sale not found")
	ErrSaleAlreadyExists  = errors.New("plot already sold")
	ErrInvestmentNotFound = errors.New("investment not found")
)

// ValidationError carries per-field messages for request validation failures.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// AsValidation reports whether err is a ValidationError and returns it.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Is is re-exported so callers need only one errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
