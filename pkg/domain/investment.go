package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentStatus represents investment lifecycle states
type InvestmentStatus string

const (
	InvestmentStatusPending   InvestmentStatus = "pending"
	InvestmentStatusActive    InvestmentStatus = "active"
	InvestmentStatusCompleted InvestmentStatus = "completed"
	InvestmentStatusCancelled InvestmentStatus = "cancelled"
)

type Investment struct {
	ID                int64            `json:"id" db:"id"`
	UserID            int64            `json:"user_id" db:"user_id"`
	WalletID          int64            `json:"wallet_id" db:"wallet_id"`
	PropertyID        int64            `json:"property_id" db:"property_id"`
	PlotID            *int64           `json:"plot_id,omitempty" db:"plot_id"`
	Amount            decimal.Decimal  `json:"amount" db:"amount"`
	Status            InvestmentStatus `json:"status" db:"status"`
	ExpectedReturn    *decimal.Decimal `json:"expected_return,omitempty" db:"expected_return"`
	ActualReturn      *decimal.Decimal `json:"actual_return,omitempty" db:"actual_return"`
	ReturnRate        *decimal.Decimal `json:"return_rate,omitempty" db:"return_rate"`
	MaturityDate      *time.Time       `json:"maturity_date,omitempty" db:"maturity_date"`
	ReinvestmentCount int              `json:"reinvestment_count" db:"reinvestment_count"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// ProfitStatus represents profit lifecycle states
type ProfitStatus string

const (
	ProfitStatusPending     ProfitStatus = "pending"
	ProfitStatusDistributed ProfitStatus = "distributed"
	ProfitStatusCancelled   ProfitStatus = "cancelled"
)

// Profit splits the realised profit of one sale between the investor and
// the company. InvestorShare + CompanyShare == TotalProfit.
type Profit struct {
	ID                int64           `json:"id" db:"id"`
	UserID            int64           `json:"user_id" db:"user_id"`
	InvestmentID      int64           `json:"investment_id" db:"investment_id"`
	SaleID            int64           `json:"sale_id" db:"sale_id"`
	TotalProfit       decimal.Decimal `json:"total_profit" db:"total_profit"`
	ProfitPercentage  decimal.Decimal `json:"profit_percentage" db:"profit_percentage"`
	CompanyPercentage decimal.Decimal `json:"company_percentage" db:"company_percentage"`
	InvestorShare     decimal.Decimal `json:"investor_share" db:"investor_share"`
	CompanyShare      decimal.Decimal `json:"company_share" db:"company_share"`
	Status            ProfitStatus    `json:"status" db:"status"`
	DistributionDate  *time.Time      `json:"distribution_date,omitempty" db:"distribution_date"`
	TransactionID     *int64          `json:"transaction_id,omitempty" db:"transaction_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ProfitSummary aggregates profit amounts by status.
type ProfitSummary struct {
	PendingCount       int             `json:"pending_count" db:"pending_count"`
	PendingAmount      decimal.Decimal `json:"pending_amount" db:"pending_amount"`
	DistributedCount   int             `json:"distributed_count" db:"distributed_count"`
	DistributedAmount  decimal.Decimal `json:"distributed_amount" db:"distributed_amount"`
	CompanyShareAmount decimal.Decimal `json:"company_share_amount" db:"company_share_amount"`
}

// InvestmentFilter narrows investment listings.
type InvestmentFilter struct {
	UserID     *int64
	PropertyID *int64
	Status     *InvestmentStatus
	Limit      int
	Offset     int
}
