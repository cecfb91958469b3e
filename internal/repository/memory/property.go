package memory

import (
	"context"
	"time"

	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
)

type PropertyRepository struct{ s *Store }

func (s *Store) Properties() *PropertyRepository { return &PropertyRepository{s: s} }

func (r *PropertyRepository) Create(ctx context.Context, p *domain.Property) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.nextID()
	p.TotalPlots, p.AvailablePlots, p.SoldPlots = 0, 0, 0
	r.s.properties[p.ID] = *p
	return nil
}

func (r *PropertyRepository) FindByID(ctx context.Context, id int64) (*domain.Property, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.properties[id]
	if !ok {
		return nil, pkgerrors.ErrPropertyNotFound
	}
	return &p, nil
}

func (r *PropertyRepository) Update(ctx context.Context, p *domain.Property) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.properties[p.ID]
	if !ok {
		return pkgerrors.ErrPropertyNotFound
	}
	stored.Name = p.Name
	stored.Location = p.Location
	stored.Description = p.Description
	stored.PricePerPlot = p.PricePerPlot
	stored.Status = p.Status
	stored.UpdatedAt = p.UpdatedAt
	r.s.properties[p.ID] = stored
	return nil
}

func (r *PropertyRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.properties[id]; !ok {
		return pkgerrors.ErrPropertyNotFound
	}
	for _, plot := range r.s.plots {
		if plot.PropertyID == id && plot.Status != domain.PlotStatusAvailable {
			return pkgerrors.ErrPropertyHasPlots
		}
	}
	for pid, plot := range r.s.plots {
		if plot.PropertyID == id {
			delete(r.s.plots, pid)
		}
	}
	delete(r.s.properties, id)
	return nil
}

func (r *PropertyRepository) List(ctx context.Context, status *domain.PropertyStatus, limit, offset int) ([]*domain.Property, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Property
	for _, p := range r.s.properties {
		if status != nil && p.Status != *status {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sortDesc(out, func(p *domain.Property) int64 { return p.ID })
	return page(out, limit, offset), len(out), nil
}

type PlotRepository struct{ s *Store }

func (s *Store) Plots() *PlotRepository { return &PlotRepository{s: s} }

func (r *PlotRepository) Create(ctx context.Context, plot *domain.Plot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.properties[plot.PropertyID]
	if !ok {
		return pkgerrors.ErrPropertyNotFound
	}
	for _, other := range r.s.plots {
		if other.PropertyID == plot.PropertyID && other.PlotNumber == plot.PlotNumber {
			return pkgerrors.NewValidationError("plot_number", "Plot number already exists for this property")
		}
	}
	plot.ID = r.s.nextID()
	r.s.plots[plot.ID] = *plot
	p.TotalPlots++
	p.AvailablePlots++
	if p.Status == domain.PropertyStatusSoldOut {
		p.Status = domain.PropertyStatusActive
	}
	r.s.properties[p.ID] = p
	return nil
}

func (r *PlotRepository) FindByID(ctx context.Context, id int64) (*domain.Plot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plot, ok := r.s.plots[id]
	if !ok {
		return nil, pkgerrors.ErrPlotNotFound
	}
	return &plot, nil
}

func (r *PlotRepository) Update(ctx context.Context, plot *domain.Plot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.plots[plot.ID]
	if !ok {
		return pkgerrors.ErrPlotNotFound
	}
	stored.PlotNumber = plot.PlotNumber
	stored.Area = plot.Area
	stored.Price = plot.Price
	stored.UpdatedAt = plot.UpdatedAt
	r.s.plots[plot.ID] = stored
	return nil
}

func (r *PlotRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plot, ok := r.s.plots[id]
	if !ok {
		return pkgerrors.ErrPlotNotFound
	}
	if plot.Status != domain.PlotStatusAvailable {
		return pkgerrors.ErrPlotUnavailable
	}
	delete(r.s.plots, id)
	p := r.s.properties[plot.PropertyID]
	p.TotalPlots--
	p.AvailablePlots--
	r.s.properties[p.ID] = p
	return nil
}

func (r *PlotRepository) ListByProperty(ctx context.Context, propertyID int64) ([]*domain.Plot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Plot
	for _, plot := range r.s.plots {
		if plot.PropertyID == propertyID {
			plot := plot
			out = append(out, &plot)
		}
	}
	sortDesc(out, func(p *domain.Plot) int64 { return -p.ID })
	return out, nil
}

func (r *PlotRepository) Reserve(ctx context.Context, id int64) (*domain.Plot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plot, ok := r.s.plots[id]
	if !ok {
		return nil, pkgerrors.ErrPlotNotFound
	}
	if plot.Status != domain.PlotStatusAvailable {
		return nil, pkgerrors.ErrPlotUnavailable
	}
	plot.Status = domain.PlotStatusReserved
	plot.UpdatedAt = time.Now().UTC()
	r.s.plots[id] = plot
	return &plot, nil
}

func (r *PlotRepository) Release(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plot, ok := r.s.plots[id]
	if !ok {
		return pkgerrors.ErrPlotNotFound
	}
	if plot.Status == domain.PlotStatusSold {
		return pkgerrors.ErrPlotUnavailable
	}
	plot.Status = domain.PlotStatusAvailable
	plot.UpdatedAt = time.Now().UTC()
	r.s.plots[id] = plot
	return nil
}

type SaleRepository struct{ s *Store }

func (s *Store) Sales() *SaleRepository { return &SaleRepository{s: s} }

func (r *SaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plot, ok := r.s.plots[sale.PlotID]
	if !ok {
		return pkgerrors.ErrPlotNotFound
	}
	if plot.Status == domain.PlotStatusSold {
		return pkgerrors.ErrSaleAlreadyExists
	}
	sale.ID = r.s.nextID()
	r.s.sales[sale.ID] = *sale

	plot.Status = domain.PlotStatusSold
	plot.UpdatedAt = sale.CreatedAt
	r.s.plots[plot.ID] = plot

	p := r.s.properties[plot.PropertyID]
	p.AvailablePlots--
	p.SoldPlots++
	if p.AvailablePlots == 0 {
		p.Status = domain.PropertyStatusSoldOut
	}
	r.s.properties[p.ID] = p
	return nil
}

func (r *SaleRepository) FindByID(ctx context.Context, id int64) (*domain.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.sales[id]
	if !ok {
		return nil, pkgerrors.ErrSaleNotFound
	}
	return &sale, nil
}

func (r *SaleRepository) List(ctx context.Context, f domain.SaleFilter) ([]*domain.Sale, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Sale
	for _, sale := range r.s.sales {
		switch {
		case f.PropertyID != nil && sale.PropertyID != *f.PropertyID,
			f.From != nil && sale.SaleDate.Before(*f.From),
			f.To != nil && sale.SaleDate.After(*f.To):
			continue
		}
		sale := sale
		out = append(out, &sale)
	}
	sortDesc(out, func(s *domain.Sale) int64 { return s.ID })
	return page(out, f.Limit, f.Offset), len(out), nil
}
