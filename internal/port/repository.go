package port

import (
	"context"
	"payouts/internal/domain"

	"github.com/google/uuid"
)

type WithdrawalRepository interface {
	// Create persists w together with its ledger entry, both or neither.
	// A clashing transaction id yields domain.ErrDuplicateTransactionID.
	Create(ctx context.Context, w *domain.Withdrawal, entry domain.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.Withdrawal, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Withdrawal, error)
	// Finalize applies upd only while the request is still Processing. It
	// updates the ledger entry and credits upd.Refund in the same write, and
	// returns domain.ErrAlreadyProcessed when another writer got there first.
	Finalize(ctx context.Context, upd domain.FinalizeUpdate) (*domain.Withdrawal, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

type BalanceRepository interface {
	GetAccount(ctx context.Context, sellerID string) (*domain.BalanceAccount, error)
	// CompareAndSetBalance writes balance only if the stored version still
	// equals version, otherwise domain.ErrConflict.
	CompareAndSetBalance(ctx context.Context, sellerID string, version, balance int64) error
	OpenAccount(ctx context.Context, sellerID string, initial int64) error
	Credit(ctx context.Context, sellerID string, amount int64) error
}

type SellerDirectory interface {
	Contact(ctx context.Context, sellerID string) (*domain.SellerContact, error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
