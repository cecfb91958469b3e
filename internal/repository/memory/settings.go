package memory

import (
	"context"

	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
)

type SettingsRepository struct{ s *Store }

func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{s: s} }

func (r *SettingsRepository) Get(ctx context.Context) (*domain.Settings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settings == nil {
		return nil, nil
	}
	cp := *r.s.settings
	return &cp, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, settings *domain.Settings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *settings
	r.s.settings = &cp
	return nil
}

type PaymentMethodRepository struct{ s *Store }

func (s *Store) PaymentMethods() *PaymentMethodRepository { return &PaymentMethodRepository{s: s} }

func (r *PaymentMethodRepository) Create(ctx context.Context, m *domain.PaymentMethod) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.nextID()
	r.s.methods[m.ID] = *m
	return nil
}

func (r *PaymentMethodRepository) FindByID(ctx context.Context, id int64) (*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.methods[id]
	if !ok {
		return nil, pkgerrors.ErrPaymentMethodInvalid
	}
	return &m, nil
}

func (r *PaymentMethodRepository) List(ctx context.Context, activeOnly bool) ([]*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.PaymentMethod
	for _, m := range r.s.methods {
		if activeOnly && !m.IsActive {
			continue
		}
		m := m
		out = append(out, &m)
	}
	sortDesc(out, func(m *domain.PaymentMethod) int64 { return -m.ID })
	return out, nil
}
