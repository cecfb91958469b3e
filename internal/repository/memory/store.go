// Package memory is an in-process implementation of the repositories used
// by the service tests. It enforces the same guards and unique keys as the
// SQL schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"propvest/internal/ledger"
	"propvest/pkg/domain"
	pkgerrors "propvest/pkg/errors"
)

// Store holds every table behind one mutex. Repositories are thin views.
type Store struct {
	mu           sync.Mutex
	seq          int64
	wallets      map[int64]domain.Wallet
	entries      map[int64][]domain.LedgerEntry
	transactions map[int64]domain.Transaction
	methods      map[int64]domain.PaymentMethod
	settings     *domain.Settings
	profits      map[int64]domain.Profit
	investments  map[int64]domain.Investment
	properties   map[int64]domain.Property
	plots        map[int64]domain.Plot
	sales        map[int64]domain.Sale
}

func New() *Store {
	return &Store{
		wallets:      make(map[int64]domain.Wallet),
		entries:      make(map[int64][]domain.LedgerEntry),
		transactions: make(map[int64]domain.Transaction),
		methods:      make(map[int64]domain.PaymentMethod),
		profits:      make(map[int64]domain.Profit),
		investments:  make(map[int64]domain.Investment),
		properties:   make(map[int64]domain.Property),
		plots:        make(map[int64]domain.Plot),
		sales:        make(map[int64]domain.Sale),
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func sortDesc[T any](items []T, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) > id(items[j]) })
}

type WalletRepository struct{ s *Store }

func (s *Store) Wallets() *WalletRepository { return &WalletRepository{s: s} }

func (r *WalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.wallets {
		if existing.UserID == w.UserID {
			return pkgerrors.ErrWalletAlreadyExists
		}
	}
	w.ID = r.s.nextID()
	if w.Status == "" {
		w.Status = domain.WalletStatusActive
	}
	r.s.wallets[w.ID] = *w
	return nil
}

func (r *WalletRepository) FindByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, pkgerrors.ErrWalletNotFound
	}
	return &w, nil
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	return nil, pkgerrors.ErrWalletNotFound
}

func (r *WalletRepository) List(ctx context.Context, status *domain.WalletStatus, limit, offset int) ([]*domain.Wallet, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Wallet
	for _, w := range r.s.wallets {
		if status != nil && w.Status != *status {
			continue
		}
		w := w
		out = append(out, &w)
	}
	sortDesc(out, func(w *domain.Wallet) int64 { return w.ID })
	return page(out, limit, offset), len(out), nil
}

// Delete removes a wallet that has never been used.
func (r *WalletRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return pkgerrors.ErrWalletNotFound
	}
	if !w.Balance.IsZero() || len(r.s.entries[id]) > 0 {
		return pkgerrors.ErrWalletNotEmpty
	}
	for _, tx := range r.s.transactions {
		if tx.WalletID == id {
			return pkgerrors.ErrWalletNotEmpty
		}
	}
	delete(r.s.wallets, id)
	return nil
}

func (r *WalletRepository) ListIDs(ctx context.Context) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]int64, 0, len(r.s.wallets))
	for id := range r.s.wallets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Mutate works on a copy of the wallet so a failing fn leaves no trace.
func (r *WalletRepository) Mutate(ctx context.Context, walletID int64, fn func(w *domain.Wallet) (*domain.WalletMutation, error)) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.wallets[walletID]
	if !ok {
		return nil, pkgerrors.ErrWalletNotFound
	}
	w := current
	m, err := fn(&w)
	if err != nil {
		return nil, err
	}
	if w.PendingAmount.IsNegative() || w.FrozenAmount.IsNegative() {
		return nil, pkgerrors.ErrInsufficientFunds
	}
	expected := w.TotalDeposits.Sub(w.TotalWithdrawals).Sub(w.TotalInvestments).Add(w.TotalProfits)
	if !w.Balance.Equal(expected) {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidStateTransition, "balance identity violated")
	}

	if m != nil && m.Record != nil {
		if err := r.s.putTransaction(m.Record); err != nil {
			return nil, err
		}
		if m.Entry != nil {
			id := m.Record.ID
			m.Entry.TransactionID = &id
		}
	}
	if m != nil && m.Entry != nil {
		prev := ledger.GenesisHash
		if chain := r.s.entries[walletID]; len(chain) > 0 {
			prev = chain[len(chain)-1].Hash
		}
		m.Entry.WalletID = walletID
		ledger.Seal(m.Entry, prev, time.Now())
		r.s.entries[walletID] = append(r.s.entries[walletID], *m.Entry)
	}

	r.s.wallets[walletID] = w
	return &w, nil
}

func (r *WalletRepository) VerifyChain(ctx context.Context, walletID int64) error {
	return ledger.VerifyEntries(r.Entries(walletID))
}

// Entries returns the wallet's ledger entries, oldest first.
func (r *WalletRepository) Entries(walletID int64) []*domain.LedgerEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chain := r.s.entries[walletID]
	out := make([]*domain.LedgerEntry, len(chain))
	for i := range chain {
		e := chain[i]
		out[i] = &e
	}
	return out
}

// TamperEntry overwrites the amount of a stored entry without resealing it.
func (r *WalletRepository) TamperEntry(walletID int64, index int, amount decimal.Decimal) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.entries[walletID][index].Amount = amount
}
