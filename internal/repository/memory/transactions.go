package memory

import (
	"context"
	"time"

	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
)

type TransactionRepository struct{ s *Store }

func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{s: s} }

// putTransaction inserts a new record or replaces a pending one. Callers
// hold s.mu.
func (s *Store) putTransaction(tx *domain.Transaction) error {
	if tx.ID == 0 {
		if err := s.checkUnique(tx); err != nil {
			return err
		}
		tx.ID = s.nextID()
		s.transactions[tx.ID] = *tx
		return nil
	}
	stored, ok := s.transactions[tx.ID]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	if stored.Status != domain.TransactionStatusPending {
		return pkgerrors.ErrInvalidStateTransition
	}
	if err := s.checkUnique(tx); err != nil {
		return err
	}
	s.transactions[tx.ID] = *tx
	return nil
}

func (s *Store) checkUnique(tx *domain.Transaction) error {
	for id, other := range s.transactions {
		if id == tx.ID {
			continue
		}
		if other.Reference == tx.Reference {
			return pkgerrors.ErrDuplicateRequest
		}
		if tx.Status != domain.TransactionStatusCompleted || other.Status != domain.TransactionStatusCompleted || other.Type != tx.Type {
			continue
		}
		switch tx.Type {
		case domain.TransactionTypeProfit:
			if sameID(tx.ProfitID, other.ProfitID) {
				return pkgerrors.ErrAlreadyDistributed
			}
		case domain.TransactionTypeRefund:
			if sameID(tx.InvestmentID, other.InvestmentID) {
				return pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "investment already refunded")
			}
		}
	}
	return nil
}

func sameID(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx.ID = 0
	return r.s.putTransaction(tx)
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return &tx, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.putTransaction(tx)
}

func (r *TransactionRepository) UpdateDetails(ctx context.Context, tx *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.transactions[tx.ID]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	if stored.Status != domain.TransactionStatusPending {
		return pkgerrors.ErrInvalidStateTransition
	}
	stored.PaymentReference = tx.PaymentReference
	stored.Notes = tx.Notes
	stored.UpdatedAt = tx.UpdatedAt
	r.s.transactions[tx.ID] = stored
	return nil
}

func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.transactions[id]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	if stored.Status == domain.TransactionStatusCompleted {
		return pkgerrors.ErrInvalidStateTransition
	}
	delete(r.s.transactions, id)
	return nil
}

func (r *TransactionRepository) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range r.s.transactions {
		switch {
		case f.WalletID != nil && tx.WalletID != *f.WalletID,
			f.UserID != nil && tx.UserID != *f.UserID,
			f.Type != nil && tx.Type != *f.Type,
			f.Status != nil && tx.Status != *f.Status,
			f.From != nil && tx.CreatedAt.Before(*f.From),
			f.To != nil && tx.CreatedAt.After(*f.To):
			continue
		}
		tx := tx
		out = append(out, &tx)
	}
	sortDesc(out, func(tx *domain.Transaction) int64 { return tx.ID })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *TransactionRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range r.s.transactions {
		if tx.Status == domain.TransactionStatusPending && tx.CreatedAt.Before(before) {
			tx := tx
			out = append(out, &tx)
		}
	}
	sortDesc(out, func(tx *domain.Transaction) int64 { return -tx.ID })
	return page(out, limit, 0), nil
}

func (r *TransactionRepository) FindCompletedFor(ctx context.Context, txType domain.TransactionType, relatedID int64) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tx := range r.s.transactions {
		if tx.Type != txType || tx.Status != domain.TransactionStatusCompleted {
			continue
		}
		ref := tx.InvestmentID
		if txType == domain.TransactionTypeProfit {
			ref = tx.ProfitID
		}
		if ref != nil && *ref == relatedID {
			return &tx, nil
		}
	}
	return nil, nil
}

// SetCreatedAt backdates a transaction for expiry tests.
func (r *TransactionRepository) SetCreatedAt(id int64, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx := r.s.transactions[id]
	tx.CreatedAt = at
	r.s.transactions[id] = tx
}
