package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// UserRole separates customers from back-office staff.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
	RoleManager  UserRole = "manager"
)

// IsStaff reports whether the role may use the admin endpoints.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleManager
}

// User represents a platform user
type User struct {
	ID            int64      `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	Phone         *string    `json:"phone,omitempty" db:"phone"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Role          UserRole   `json:"role" db:"role"`
	TeamID        *int64     `json:"team_id,omitempty" db:"team_id"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	TOTPSecret    *string    `json:"-" db:"totp_secret"`
	IsTOTPEnabled bool       `json:"is_totp_enabled" db:"is_totp_enabled"`
	LastLogin     *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// UserFilter narrows user listings. Search matches name or email.
type UserFilter struct {
	Role     *UserRole
	TeamID   *int64
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

// Team groups users under a leader.
type Team struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	LeaderID    *int64    `json:"leader_id,omitempty" db:"leader_id"`
	MemberCount int       `json:"member_count" db:"member_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WalletStatus represents the status of a wallet
type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "active"
	WalletStatusFrozen    WalletStatus = "frozen"
	WalletStatusSuspended WalletStatus = "suspended"
)

// Wallet is a user's INR position. Balance always equals
// TotalDeposits - TotalWithdrawals - TotalInvestments + TotalProfits.
type Wallet struct {
	ID                int64           `json:"id" db:"id"`
	UserID            int64           `json:"user_id" db:"user_id"`
	Balance           decimal.Decimal `json:"balance" db:"balance"`
	TotalDeposits     decimal.Decimal `json:"total_deposits" db:"total_deposits"`
	TotalWithdrawals  decimal.Decimal `json:"total_withdrawals" db:"total_withdrawals"`
	TotalInvestments  decimal.Decimal `json:"total_investments" db:"total_investments"`
	TotalProfits      decimal.Decimal `json:"total_profits" db:"total_profits"`
	FrozenAmount      decimal.Decimal `json:"frozen_amount" db:"frozen_amount"`
	PendingAmount     decimal.Decimal `json:"pending_amount" db:"pending_amount"`
	Status            WalletStatus    `json:"status" db:"status"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty" db:"last_transaction_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Available is the balance that may still be debited or held.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.FrozenAmount).Sub(w.PendingAmount)
}

// TransactionStatus represents transaction lifecycle states
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

// TransactionType represents categories of transactions
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeInvestment TransactionType = "investment"
	TransactionTypeProfit     TransactionType = "profit"
	TransactionTypeRefund     TransactionType = "refund"
)

// IsCredit reports whether the type adds money to the wallet.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeProfit || t == TransactionTypeRefund
}

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeInvestment,
		TransactionTypeProfit, TransactionTypeRefund:
		return true
	}
	return false
}

// PaymentMode is how money moves in or out of the platform.
type PaymentMode string

const (
	PaymentModeUPI          PaymentMode = "upi"
	PaymentModeBankTransfer PaymentMode = "bank_transfer"
	PaymentModeCard         PaymentMode = "card"
	PaymentModeCash         PaymentMode = "cash"
	PaymentModeCheque       PaymentMode = "cheque"
	PaymentModeWallet       PaymentMode = "wallet"
)

// Transaction represents a single ledger-affecting event
type Transaction struct {
	ID               int64             `json:"id" db:"id"`
	Reference        string            `json:"reference" db:"reference"`
	WalletID         int64             `json:"wallet_id" db:"wallet_id"`
	UserID           int64             `json:"user_id" db:"user_id"`
	Type             TransactionType   `json:"type" db:"type"`
	Amount           decimal.Decimal   `json:"amount" db:"amount"`
	ProcessingFee    decimal.Decimal   `json:"processing_fee" db:"processing_fee"`
	NetAmount        decimal.Decimal   `json:"net_amount" db:"net_amount"`
	BalanceBefore    *decimal.Decimal  `json:"balance_before,omitempty" db:"balance_before"`
	BalanceAfter     *decimal.Decimal  `json:"balance_after,omitempty" db:"balance_after"`
	Status           TransactionStatus `json:"status" db:"status"`
	PaymentMethodID  *int64            `json:"payment_method_id,omitempty" db:"payment_method_id"`
	PaymentMode      PaymentMode       `json:"payment_mode" db:"payment_mode"`
	PaymentReference *string           `json:"payment_reference,omitempty" db:"payment_reference"`
	BankAccount      *string           `json:"bank_account,omitempty" db:"bank_account"`
	UPIID            *string           `json:"upi_id,omitempty" db:"upi_id"`
	Notes            *string           `json:"notes,omitempty" db:"notes"`
	InvestmentID     *int64            `json:"investment_id,omitempty" db:"investment_id"`
	ProfitID         *int64            `json:"profit_id,omitempty" db:"profit_id"`
	ApprovedBy       *int64            `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy       *int64            `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt       *time.Time        `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionReason  *string           `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	WalletID *int64
	UserID   *int64
	Type     *TransactionType
	Status   *TransactionStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// LedgerEntry is one hash-chained record of a wallet mutation.
type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	WalletID      int64           `json:"wallet_id" db:"wallet_id"`
	TransactionID *int64          `json:"transaction_id,omitempty" db:"transaction_id"`
	EventType     string          `json:"event_type" db:"event_type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	PreviousHash  string          `json:"previous_hash" db:"previous_hash"`
	Hash          string          `json:"hash" db:"hash"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// WalletMutation is written in the same database transaction as the wallet
// row it accompanies. A Record with zero ID is inserted; otherwise it is
// updated only while still pending.
type WalletMutation struct {
	Entry  *LedgerEntry
	Record *Transaction
}

// PaymentMethod is a channel customers can deposit through or withdraw to.
type PaymentMethod struct {
	ID        int64       `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Mode      PaymentMode `json:"mode" db:"mode"`
	Details   Metadata    `json:"details" db:"details"`
	IsActive  bool        `json:"is_active" db:"is_active"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Settings is the wallet policy admins can tune at runtime.
type Settings struct {
	MinDeposit           decimal.Decimal `json:"min_deposit" db:"min_deposit"`
	MinWithdrawal        decimal.Decimal `json:"min_withdrawal" db:"min_withdrawal"`
	AutoApproveCeiling   decimal.Decimal `json:"auto_approve_ceiling" db:"auto_approve_ceiling"`
	AutoApproveEnabled   bool            `json:"auto_approve_enabled" db:"auto_approve_enabled"`
	DepositFeePercent    decimal.Decimal `json:"deposit_fee_percent" db:"deposit_fee_percent"`
	WithdrawalFeePercent decimal.Decimal `json:"withdrawal_fee_percent" db:"withdrawal_fee_percent"`
	DefaultProfitPercent decimal.Decimal `json:"default_profit_percent" db:"default_profit_percent"`
	StalePendingHours    int             `json:"stale_pending_hours" db:"stale_pending_hours"`
	UpdatedBy            *int64          `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// SecurityLog records a login attempt or an admin mutation.
type SecurityLog struct {
	ID         int64     `json:"id" db:"id"`
	UserID     *int64    `json:"user_id,omitempty" db:"user_id"`
	Action     string    `json:"action" db:"action"`
	Resource   string    `json:"resource" db:"resource"`
	ResourceID *string   `json:"resource_id,omitempty" db:"resource_id"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	Status     int       `json:"status" db:"status"`
	Details    Metadata  `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SecurityLogFilter narrows security log listings.
type SecurityLogFilter struct {
	UserID *int64
	Action string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, m)
}
