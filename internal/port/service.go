package port

import (
	"context"
	"payouts/internal/domain"

	"github.com/google/uuid"
)

type WithdrawalService interface {
	CreateWithdrawal(ctx context.Context, req domain.CreateWithdrawalReq) (*domain.Withdrawal, error)
	Finalize(ctx context.Context, req domain.FinalizeReq) (*domain.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	ListSellerWithdrawals(ctx context.Context, sellerID string) ([]domain.Withdrawal, error)
	ListAll(ctx context.Context, filter domain.ListFilter) ([]domain.Withdrawal, error)
	AggregateStats(ctx context.Context) (*domain.Stats, error)
	Balance(ctx context.Context, sellerID string) (*domain.BalanceAccount, error)
	CreditBalance(ctx context.Context, sellerID string, amount int64) (*domain.BalanceAccount, error)
}
