package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type depositForm struct {
	Amount      decimal.Decimal `json:"amount" validate:"required,gt=0"`
	PaymentMode string          `json:"payment_mode" validate:"required,oneof=upi bank_transfer"`
	UPIID       string          `json:"upi_id" validate:"omitempty,upi"`
	Phone       string          `json:"phone" validate:"omitempty,in_phone"`
}

func TestValidateStructured(t *testing.T) {
	v := New()

	errs := v.ValidateStructured(&depositForm{
		Amount:      decimal.NewFromInt(-5),
		PaymentMode: "crypto",
		UPIID:       "not-a-upi",
		Phone:       "12345",
	})

	assert.Equal(t, "Must be greater than 0", errs["amount"])
	assert.Equal(t, "Must be one of: upi bank_transfer", errs["payment_mode"])
	assert.Equal(t, "Invalid UPI ID", errs["upi_id"])
	assert.Equal(t, "Invalid phone number", errs["phone"])
}

func TestValidateStructured_Valid(t *testing.T) {
	v := New()

	errs := v.ValidateStructured(&depositForm{
		Amount:      decimal.NewFromInt(5000),
		PaymentMode: "upi",
		UPIID:       "investor.one@okaxis",
		Phone:       "+919876543210",
	})

	assert.Nil(t, errs)
	assert.NoError(t, v.Validate(&depositForm{Amount: decimal.NewFromInt(1), PaymentMode: "bank_transfer"}))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", Sanitize("  <b>hi</b> "))
}
