// Package property manages the real-estate inventory: properties, their
// plots and the sales that realise an investment's profit.
package property

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/logger"
)

type Repository interface {
	Create(ctx context.Context, p *domain.Property) error
	FindByID(ctx context.Context, id int64) (*domain.Property, error)
	Update(ctx context.Context, p *domain.Property) error
	// Delete fails with ErrPropertyHasPlots while any plot is reserved or sold.
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, status *domain.PropertyStatus, limit, offset int) ([]*domain.Property, int, error)
}

// PlotRepository keeps the owning property's plot counters in step with
// every insert, delete and sale.
type PlotRepository interface {
	Create(ctx context.Context, plot *domain.Plot) error
	FindByID(ctx context.Context, id int64) (*domain.Plot, error)
	Update(ctx context.Context, plot *domain.Plot) error
	Delete(ctx context.Context, id int64) error
	ListByProperty(ctx context.Context, propertyID int64) ([]*domain.Plot, error)
	Reserve(ctx context.Context, id int64) (*domain.Plot, error)
	Release(ctx context.Context, id int64) error
}

type SaleRepository interface {
	// Create records the sale and marks the plot sold in one transaction.
	Create(ctx context.Context, sale *domain.Sale) error
	FindByID(ctx context.Context, id int64) (*domain.Sale, error)
	List(ctx context.Context, filter domain.SaleFilter) ([]*domain.Sale, int, error)
}

type InvestmentReader interface {
	FindByID(ctx context.Context, id int64) (*domain.Investment, error)
}

type ProfitCalculator interface {
	Calculate(ctx context.Context, saleID int64, percentage *decimal.Decimal) (*domain.Profit, error)
}

type Service struct {
	repo        Repository
	plots       PlotRepository
	sales       SaleRepository
	investments InvestmentReader
	profits     ProfitCalculator
	logger      logger.Logger
	now         func() time.Time
}

func NewService(repo Repository, plots PlotRepository, sales SaleRepository, investments InvestmentReader, profits ProfitCalculator, log logger.Logger) *Service {
	return &Service{
		repo:        repo,
		plots:       plots,
		sales:       sales,
		investments: investments,
		profits:     profits,
		logger:      log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type PropertyRequest struct {
	Name         string                 `json:"name" validate:"required,min=2,max=200"`
	Location     string                 `json:"location" validate:"required,max=255"`
	Description  *string                `json:"description" validate:"omitempty,max=5000"`
	PricePerPlot decimal.Decimal        `json:"price_per_plot" validate:"gte=0"`
	Status       *domain.PropertyStatus `json:"status" validate:"omitempty,oneof=active sold_out inactive"`
}

func (s *Service) Create(ctx context.Context, req *PropertyRequest) (*domain.Property, error) {
	now := s.now()
	p := &domain.Property{
		Name:         req.Name,
		Location:     req.Location,
		Description:  req.Description,
		PricePerPlot: req.PricePerPlot,
		Status:       domain.PropertyStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Property created", map[string]interface{}{"property_id": p.ID, "name": p.Name})
	return p, nil
}

// Update edits descriptive fields. Plot counters are owned by the plot and
// sale repositories and never change here.
func (s *Service) Update(ctx context.Context, id int64, req *PropertyRequest) (*domain.Property, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = req.Name
	p.Location = req.Location
	p.Description = req.Description
	p.PricePerPlot = req.PricePerPlot
	if req.Status != nil {
		p.Status = *req.Status
	}
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Property deleted", map[string]interface{}{"property_id": id})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Property, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status *domain.PropertyStatus, limit, offset int) ([]*domain.Property, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, status, limit, offset)
}

type PlotRequest struct {
	PropertyID int64            `json:"property_id" validate:"required,gt=0"`
	PlotNumber string           `json:"plot_number" validate:"required,max=50"`
	Area       decimal.Decimal  `json:"area" validate:"gte=0"`
	Price      *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
}

// CreatePlot adds a plot to a property. Without an explicit price the
// property's price per plot applies.
func (s *Service) CreatePlot(ctx context.Context, req *PlotRequest) (*domain.Plot, error) {
	property, err := s.repo.FindByID(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	price := property.PricePerPlot
	if req.Price != nil {
		price = *req.Price
	}
	now := s.now()
	plot := &domain.Plot{
		PropertyID: property.ID,
		PlotNumber: req.PlotNumber,
		Area:       req.Area,
		Price:      price,
		Status:     domain.PlotStatusAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.plots.Create(ctx, plot); err != nil {
		return nil, err
	}
	return plot, nil
}

func (s *Service) UpdatePlot(ctx context.Context, id int64, req *PlotRequest) (*domain.Plot, error) {
	plot, err := s.plots.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plot.Status == domain.PlotStatusSold {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "sold plots cannot be edited")
	}
	plot.PlotNumber = req.PlotNumber
	plot.Area = req.Area
	if req.Price != nil {
		plot.Price = *req.Price
	}
	plot.UpdatedAt = s.now()
	if err := s.plots.Update(ctx, plot); err != nil {
		return nil, err
	}
	return plot, nil
}

// DeletePlot removes an available plot.
func (s *Service) DeletePlot(ctx context.Context, id int64) error {
	plot, err := s.plots.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if plot.Status != domain.PlotStatusAvailable {
		return pkgerrors.ErrPlotUnavailable
	}
	return s.plots.Delete(ctx, id)
}

func (s *Service) ListPlots(ctx context.Context, propertyID int64) ([]*domain.Plot, error) {
	if _, err := s.repo.FindByID(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.plots.ListByProperty(ctx, propertyID)
}

type SaleRequest struct {
	PlotID           int64            `json:"plot_id" validate:"required,gt=0"`
	InvestmentID     int64            `json:"investment_id" validate:"required,gt=0"`
	BuyerName        string           `json:"buyer_name" validate:"required,max=200"`
	SalePrice        decimal.Decimal  `json:"sale_price" validate:"required,gt=0"`
	SaleDate         *time.Time       `json:"sale_date"`
	CalculateProfit  bool             `json:"calculate_profit"`
	ProfitPercentage *decimal.Decimal `json:"profit_percentage" validate:"omitempty,gte=0,lte=100"`
}

// RecordSale sells the plot held by an active investment. The purchase price
// is what the investor paid, so ProfitAmount may be negative on a loss.
// With CalculateProfit set a pending profit is created for positive sales.
func (s *Service) RecordSale(ctx context.Context, req *SaleRequest) (*domain.Sale, *domain.Profit, error) {
	plot, err := s.plots.FindByID(ctx, req.PlotID)
	if err != nil {
		return nil, nil, err
	}
	if plot.Status == domain.PlotStatusSold {
		return nil, nil, pkgerrors.ErrSaleAlreadyExists
	}
	inv, err := s.investments.FindByID(ctx, req.InvestmentID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status != domain.InvestmentStatusActive && inv.Status != domain.InvestmentStatusCompleted {
		return nil, nil, pkgerrors.NewValidationError("investment_id", "Investment is not active")
	}
	if inv.PropertyID != plot.PropertyID {
		return nil, nil, pkgerrors.NewValidationError("plot_id", "Plot belongs to another property")
	}
	claimed := false
	if inv.PlotID != nil {
		if *inv.PlotID != plot.ID {
			return nil, nil, pkgerrors.NewValidationError("plot_id", "Plot is not held by this investment")
		}
	} else {
		// A plot-less investment can only sell a plot nobody holds.
		if _, err := s.plots.Reserve(ctx, plot.ID); err != nil {
			return nil, nil, err
		}
		claimed = true
	}

	now := s.now()
	saleDate := now
	if req.SaleDate != nil {
		saleDate = req.SaleDate.UTC()
	}
	sale := &domain.Sale{
		PlotID:        plot.ID,
		PropertyID:    plot.PropertyID,
		InvestmentID:  inv.ID,
		BuyerName:     req.BuyerName,
		SalePrice:     req.SalePrice,
		PurchasePrice: inv.Amount,
		ProfitAmount:  req.SalePrice.Sub(inv.Amount),
		SaleDate:      saleDate,
		CreatedAt:     now,
	}
	if err := s.sales.Create(ctx, sale); err != nil {
		if claimed {
			if relErr := s.plots.Release(ctx, plot.ID); relErr != nil {
				s.logger.Warn("Plot release after failed sale", map[string]interface{}{
					"plot_id": plot.ID,
					"error":   relErr.Error(),
				})
			}
		}
		return nil, nil, err
	}
	s.logger.Info("Sale recorded", map[string]interface{}{
		"sale_id":       sale.ID,
		"plot_id":       sale.PlotID,
		"investment_id": sale.InvestmentID,
		"profit_amount": sale.ProfitAmount.String(),
	})

	if !req.CalculateProfit || !sale.ProfitAmount.IsPositive() {
		return sale, nil, nil
	}
	profit, err := s.profits.Calculate(ctx, sale.ID, req.ProfitPercentage)
	if err != nil {
		return sale, nil, err
	}
	return sale, profit, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.sales.FindByID(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]*domain.Sale, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.sales.List(ctx, filter)
}
