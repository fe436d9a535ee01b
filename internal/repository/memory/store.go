// Package memory is an in-process ledger store for single-node runs and tests.
package memory

import (
	"context"
	"payouts/internal/domain"
	"payouts/internal/port"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	_ port.WithdrawalRepository = (*Store)(nil)
	_ port.BalanceRepository    = (*Store)(nil)
	_ port.SellerDirectory      = (*Store)(nil)
)

type account struct {
	mu        sync.Mutex
	balance   int64
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// Store keeps balances behind per-seller locks so writers on different
// sellers never wait on each other. Lock order is account.mu before mu.
type Store struct {
	accountsMu sync.RWMutex
	accounts   map[string]*account

	mu            sync.RWMutex
	withdrawals   map[uuid.UUID]*domain.Withdrawal
	order         []uuid.UUID
	txids         map[string]struct{}
	entries       map[uuid.UUID]*domain.LedgerEntry
	entryOf       map[uuid.UUID]uuid.UUID
	sellerEntries map[string][]uuid.UUID
	sellers       map[string]domain.SellerContact

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts:      make(map[string]*account),
		withdrawals:   make(map[uuid.UUID]*domain.Withdrawal),
		txids:         make(map[string]struct{}),
		entries:       make(map[uuid.UUID]*domain.LedgerEntry),
		entryOf:       make(map[uuid.UUID]uuid.UUID),
		sellerEntries: make(map[string][]uuid.UUID),
		sellers:       make(map[string]domain.SellerContact),
		now:           time.Now,
	}
}

func (s *Store) account(sellerID string) (*account, bool) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()
	a, ok := s.accounts[sellerID]
	return a, ok
}

// ---------------- balances

func (s *Store) OpenAccount(ctx context.Context, sellerID string, initial int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if initial < 0 {
		return &domain.ValidationError{Field: "availableBalance", Err: domain.ErrInvalidAmount}
	}

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	if _, ok := s.accounts[sellerID]; ok {
		return domain.ErrAccountExists
	}
	now := s.now()
	s.accounts[sellerID] = &account{balance: initial, createdAt: now, updatedAt: now}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, sellerID string) (*domain.BalanceAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := s.account(sellerID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct := &domain.BalanceAccount{
		SellerID:         sellerID,
		AvailableBalance: a.balance,
		Version:          a.version,
		Transactions:     make([]domain.LedgerEntry, 0, len(s.sellerEntries[sellerID])),
		CreatedAt:        a.createdAt,
		UpdatedAt:        a.updatedAt,
	}
	for _, id := range s.sellerEntries[sellerID] {
		acct.Transactions = append(acct.Transactions, *s.entries[id])
	}
	return acct, nil
}

func (s *Store) CompareAndSetBalance(ctx context.Context, sellerID string, version, balance int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if balance < 0 {
		return domain.ErrInsufficientBalance
	}
	a, ok := s.account(sellerID)
	if !ok {
		return domain.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.version != version {
		return domain.ErrConflict
	}
	a.balance = balance
	a.version++
	a.updatedAt = s.now()
	return nil
}

func (s *Store) Credit(ctx context.Context, sellerID string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return &domain.ValidationError{Field: "amount", Err: domain.ErrInvalidAmount}
	}
	a, ok := s.account(sellerID)
	if !ok {
		return domain.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance += amount
	a.version++
	a.updatedAt = s.now()
	return nil
}

// ---------------- withdrawals

func (s *Store) Create(ctx context.Context, w *domain.Withdrawal, entry domain.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.account(w.SellerID); !ok {
		return domain.ErrAccountNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txids[w.TransactionID]; ok {
		return domain.ErrDuplicateTransactionID
	}

	s.withdrawals[w.ID] = w.Clone()
	s.order = append(s.order, w.ID)
	s.txids[w.TransactionID] = struct{}{}

	e := entry
	s.entries[e.ID] = &e
	s.entryOf[w.ID] = e.ID
	s.sellerEntries[w.SellerID] = append(s.sellerEntries[w.SellerID], e.ID)
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, domain.ErrWithdrawalNotFound
	}
	return w.Clone(), nil
}

func (s *Store) ListBySeller(ctx context.Context, sellerID string) ([]domain.Withdrawal, error) {
	return s.list(ctx, func(w *domain.Withdrawal) bool { return w.SellerID == sellerID })
}

func (s *Store) List(ctx context.Context, filter domain.ListFilter) ([]domain.Withdrawal, error) {
	return s.list(ctx, func(w *domain.Withdrawal) bool {
		return filter.Status == "" || w.Status == filter.Status
	})
}

// list returns matches newest first.
func (s *Store) list(ctx context.Context, match func(*domain.Withdrawal) bool) ([]domain.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Withdrawal, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		w := s.withdrawals[s.order[i]]
		if match(w) {
			out = append(out, *w.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Finalize(ctx context.Context, upd domain.FinalizeUpdate) (*domain.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := s.account(upd.SellerID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[upd.ID]
	if !ok {
		return nil, domain.ErrWithdrawalNotFound
	}
	if w.Status != domain.StatusProcessing {
		return nil, domain.ErrAlreadyProcessed
	}

	w.Apply(upd)
	if e, ok := s.entries[s.entryOf[w.ID]]; ok {
		e.Status = upd.Status
		e.UpdatedAt = upd.ProcessedAt
	}
	if upd.Refund > 0 {
		a.balance += upd.Refund
		a.version++
		a.updatedAt = upd.ProcessedAt
	}

	return w.Clone(), nil
}

func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make(map[domain.WithdrawalStatus]*domain.StatusStat)
	for _, w := range s.withdrawals {
		r, ok := rows[w.Status]
		if !ok {
			r = &domain.StatusStat{Status: w.Status}
			rows[w.Status] = r
		}
		r.Count++
		r.TotalAmount += w.Amount
	}

	flat := make([]domain.StatusStat, 0, len(rows))
	for _, r := range rows {
		flat = append(flat, *r)
	}
	return domain.NewStats(flat), nil
}

// ---------------- seller directory

func (s *Store) AddSeller(c domain.SellerContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellers[c.SellerID] = c
}

func (s *Store) Contact(ctx context.Context, sellerID string) (*domain.SellerContact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sellers[sellerID]
	if !ok {
		return nil, domain.ErrSellerNotFound
	}
	return &c, nil
}
