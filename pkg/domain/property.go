package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PropertyStatus string

const (
	PropertyStatusActive   PropertyStatus = "active"
	PropertyStatusSoldOut  PropertyStatus = "sold_out"
	PropertyStatusInactive PropertyStatus = "inactive"
)

// Property owns plots; TotalPlots == AvailablePlots + SoldPlots.
// Reserved plots count as available until sold.
type Property struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Location       string          `json:"location" db:"location"`
	Description    *string         `json:"description,omitempty" db:"description"`
	TotalPlots     int             `json:"total_plots" db:"total_plots"`
	AvailablePlots int             `json:"available_plots" db:"available_plots"`
	SoldPlots      int             `json:"sold_plots" db:"sold_plots"`
	PricePerPlot   decimal.Decimal `json:"price_per_plot" db:"price_per_plot"`
	Status         PropertyStatus  `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

type PlotStatus string

const (
	PlotStatusAvailable PlotStatus = "available"
	PlotStatusReserved  PlotStatus = "reserved"
	PlotStatusSold      PlotStatus = "sold"
)

type Plot struct {
	ID         int64           `json:"id" db:"id"`
	PropertyID int64           `json:"property_id" db:"property_id"`
	PlotNumber string          `json:"plot_number" db:"plot_number"`
	Area       decimal.Decimal `json:"area" db:"area"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Status     PlotStatus      `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Sale records the sale of exactly one plot.
type Sale struct {
	ID            int64           `json:"id" db:"id"`
	PlotID        int64           `json:"plot_id" db:"plot_id"`
	PropertyID    int64           `json:"property_id" db:"property_id"`
	InvestmentID  int64           `json:"investment_id" db:"investment_id"`
	BuyerName     string          `json:"buyer_name" db:"buyer_name"`
	SalePrice     decimal.Decimal `json:"sale_price" db:"sale_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price" db:"purchase_price"`
	ProfitAmount  decimal.Decimal `json:"profit_amount" db:"profit_amount"`
	SaleDate      time.Time       `json:"sale_date" db:"sale_date"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// SaleFilter narrows sale listings.
type SaleFilter struct {
	PropertyID *int64
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
