package property_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"propvest/internal/property"
	"propvest/internal/repository/memory"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
	"propvest/pkg/logger"
)

type MockCalculator struct {
	mock.Mock
}

func (m *MockCalculator) Calculate(ctx context.Context, saleID int64, pct *decimal.Decimal) (*domain.Profit, error) {
	args := m.Called(ctx, saleID, pct)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profit), args.Error(1)
}

type fixture struct {
	store *memory.Store
	calc  *MockCalculator
	svc   *property.Service
}

func setup() *fixture {
	store := memory.New()
	calc := new(MockCalculator)
	return &fixture{
		store: store,
		calc:  calc,
		svc:   property.NewService(store.Properties(), store.Plots(), store.Sales(), store.Investments(), calc, logger.NewNop()),
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) property(t *testing.T, plots ...string) (*domain.Property, []*domain.Plot) {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.Create(ctx, &property.PropertyRequest{Name: "Green Acres", Location: "Pune", PricePerPlot: dec(50000)})
	require.NoError(t, err)
	var out []*domain.Plot
	for _, n := range plots {
		plot, err := f.svc.CreatePlot(ctx, &property.PlotRequest{PropertyID: p.ID, PlotNumber: n, Area: dec(1200)})
		require.NoError(t, err)
		out = append(out, plot)
	}
	return p, out
}

// investIn records an active investment holding plot directly in the store.
func (f *fixture) investIn(t *testing.T, plot *domain.Plot, amount int64) *domain.Investment {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Plots().Reserve(ctx, plot.ID)
	require.NoError(t, err)
	inv := &domain.Investment{
		UserID:     1,
		WalletID:   1,
		PropertyID: plot.PropertyID,
		PlotID:     &plot.ID,
		Amount:     dec(amount),
		Status:     domain.InvestmentStatusActive,
	}
	require.NoError(t, f.store.Investments().Create(ctx, inv))
	return inv
}

func TestCreatePlot_UpdatesCountersAndDefaultsPrice(t *testing.T) {
	f := setup()
	p, plots := f.property(t, "A-1", "A-2", "A-3")

	assert.True(t, plots[0].Price.Equal(dec(50000)))
	got, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalPlots)
	assert.Equal(t, 3, got.AvailablePlots)
	assert.Equal(t, 0, got.SoldPlots)

	_, err = f.svc.CreatePlot(context.Background(), &property.PlotRequest{PropertyID: p.ID, PlotNumber: "A-1"})
	ve, ok := pkgerrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "plot_number")
}

func TestCreatePlot_UnknownProperty(t *testing.T) {
	f := setup()
	_, err := f.svc.CreatePlot(context.Background(), &property.PlotRequest{PropertyID: 99, PlotNumber: "X"})
	assert.ErrorIs(t, err, pkgerrors.ErrPropertyNotFound)
}

func TestRecordSale_MarksPlotSoldAndSoldOut(t *testing.T) {
	f := setup()
	ctx := context.Background()
	p, plots := f.property(t, "B-1")
	inv := f.investIn(t, plots[0], 50000)

	sale, profit, err := f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID:       plots[0].ID,
		InvestmentID: inv.ID,
		BuyerName:    "R. Mehta",
		SalePrice:    dec(62000),
	})
	require.NoError(t, err)
	assert.Nil(t, profit)
	assert.True(t, sale.PurchasePrice.Equal(dec(50000)))
	assert.True(t, sale.ProfitAmount.Equal(dec(12000)))

	plot, err := f.store.Plots().FindByID(ctx, plots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlotStatusSold, plot.Status)

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PropertyStatusSoldOut, got.Status)
	assert.Equal(t, 1, got.SoldPlots)
	assert.Equal(t, 0, got.AvailablePlots)

	_, _, err = f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID:       plots[0].ID,
		InvestmentID: inv.ID,
		BuyerName:    "Someone Else",
		SalePrice:    dec(70000),
	})
	assert.ErrorIs(t, err, pkgerrors.ErrSaleAlreadyExists)
	f.calc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordSale_CalculatesProfitWhenRequested(t *testing.T) {
	f := setup()
	ctx := context.Background()
	_, plots := f.property(t, "C-1")
	inv := f.investIn(t, plots[0], 10000)
	pct := dec(75)

	f.calc.On("Calculate", mock.Anything, mock.AnythingOfType("int64"), &pct).
		Return(&domain.Profit{ID: 5, TotalProfit: dec(2000), InvestorShare: dec(1500), CompanyShare: dec(500)}, nil).
		Once()

	_, profit, err := f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID:           plots[0].ID,
		InvestmentID:     inv.ID,
		BuyerName:        "K. Iyer",
		SalePrice:        dec(12000),
		CalculateProfit:  true,
		ProfitPercentage: &pct,
	})
	require.NoError(t, err)
	require.NotNil(t, profit)
	assert.True(t, profit.InvestorShare.Equal(dec(1500)))
	f.calc.AssertExpectations(t)
}

func TestRecordSale_LossSkipsCalculation(t *testing.T) {
	f := setup()
	_, plots := f.property(t, "D-1")
	inv := f.investIn(t, plots[0], 10000)

	sale, profit, err := f.svc.RecordSale(context.Background(), &property.SaleRequest{
		PlotID:          plots[0].ID,
		InvestmentID:    inv.ID,
		BuyerName:       "N. Shah",
		SalePrice:       dec(9000),
		CalculateProfit: true,
	})
	require.NoError(t, err)
	assert.Nil(t, profit)
	assert.True(t, sale.ProfitAmount.Equal(dec(-1000)))
	f.calc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordSale_RejectsMismatchedInvestment(t *testing.T) {
	f := setup()
	ctx := context.Background()
	_, plots := f.property(t, "E-1", "E-2")
	inv := f.investIn(t, plots[0], 10000)

	_, _, err := f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID:       plots[1].ID,
		InvestmentID: inv.ID,
		BuyerName:    "A. Das",
		SalePrice:    dec(15000),
	})
	ve, ok := pkgerrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "plot_id")

	require.NoError(t, f.store.Investments().UpdateStatus(ctx, inv.ID, domain.InvestmentStatusActive, domain.InvestmentStatusCancelled))
	_, _, err = f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID:       plots[0].ID,
		InvestmentID: inv.ID,
		BuyerName:    "A. Das",
		SalePrice:    dec(15000),
	})
	ve, ok = pkgerrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "investment_id")
}

func TestDelete_Guards(t *testing.T) {
	f := setup()
	ctx := context.Background()
	p, plots := f.property(t, "F-1", "F-2")
	f.investIn(t, plots[0], 10000)

	assert.ErrorIs(t, f.svc.DeletePlot(ctx, plots[0].ID), pkgerrors.ErrPlotUnavailable)
	assert.ErrorIs(t, f.svc.Delete(ctx, p.ID), pkgerrors.ErrPropertyHasPlots)

	require.NoError(t, f.svc.DeletePlot(ctx, plots[1].ID))
	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalPlots)

	empty, _ := f.property(t)
	require.NoError(t, f.svc.Delete(ctx, empty.ID))
	_, err = f.svc.Get(ctx, empty.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrPropertyNotFound)
}

func TestUpdatePlot_SoldIsFrozen(t *testing.T) {
	f := setup()
	ctx := context.Background()
	_, plots := f.property(t, "G-1")
	inv := f.investIn(t, plots[0], 10000)
	_, _, err := f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID: plots[0].ID, InvestmentID: inv.ID, BuyerName: "P. Nair", SalePrice: dec(11000),
	})
	require.NoError(t, err)

	price := dec(1)
	_, err = f.svc.UpdatePlot(ctx, plots[0].ID, &property.PlotRequest{PlotNumber: "G-1", Price: &price})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
}

func TestListSales_FiltersByProperty(t *testing.T) {
	f := setup()
	ctx := context.Background()
	p1, plots1 := f.property(t, "H-1")
	_, plots2 := f.property(t, "H-1")
	for _, plot := range []*domain.Plot{plots1[0], plots2[0]} {
		inv := f.investIn(t, plot, 10000)
		_, _, err := f.svc.RecordSale(ctx, &property.SaleRequest{
			PlotID: plot.ID, InvestmentID: inv.ID, BuyerName: "Buyer", SalePrice: dec(12000),
		})
		require.NoError(t, err)
	}

	all, total, err := f.svc.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	only, total, err := f.svc.ListSales(ctx, domain.SaleFilter{PropertyID: &p1.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, p1.ID, only[0].PropertyID)
}

func (f *fixture) investWithoutPlot(t *testing.T, propertyID int64, userID int64, amount int64) *domain.Investment {
	t.Helper()
	inv := &domain.Investment{
		UserID:     userID,
		WalletID:   userID,
		PropertyID: propertyID,
		Amount:     dec(amount),
		Status:     domain.InvestmentStatusActive,
	}
	require.NoError(t, f.store.Investments().Create(context.Background(), inv))
	return inv
}

func TestRecordSale_PlotlessInvestmentCannotSellReservedPlot(t *testing.T) {
	f := setup()
	ctx := context.Background()
	p, plots := f.property(t, "F-1")
	f.investIn(t, plots[0], 10000)
	other := f.investWithoutPlot(t, p.ID, 2, 5000)

	_, _, err := f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID:       plots[0].ID,
		InvestmentID: other.ID,
		BuyerName:    "R. Menon",
		SalePrice:    dec(60000),
	})
	assert.ErrorIs(t, err, pkgerrors.ErrPlotUnavailable)

	plot, err := f.store.Plots().FindByID(ctx, plots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlotStatusReserved, plot.Status)

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SoldPlots)
}

func TestRecordSale_PlotlessInvestmentSellsAvailablePlot(t *testing.T) {
	f := setup()
	ctx := context.Background()
	p, plots := f.property(t, "G-1", "G-2")
	inv := f.investWithoutPlot(t, p.ID, 2, 40000)

	sale, _, err := f.svc.RecordSale(ctx, &property.SaleRequest{
		PlotID:       plots[1].ID,
		InvestmentID: inv.ID,
		BuyerName:    "S. Rao",
		SalePrice:    dec(55000),
	})
	require.NoError(t, err)
	assert.True(t, sale.ProfitAmount.Equal(dec(15000)))

	plot, err := f.store.Plots().FindByID(ctx, plots[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlotStatusSold, plot.Status)
}
