package service

import (
	"context"
	"errors"
	"fmt"
	"payouts/internal/domain"
	"payouts/internal/port"

	"go.uber.org/zap"
)

// Seed is a balance account to open at startup.
type Seed struct {
	SellerID string
	Balance  int64
}

// OpenAccounts opens every seed that has no account yet. Accounts that
// already exist keep their balance.
func OpenAccounts(ctx context.Context, repo port.BalanceRepository, seeds []Seed, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, seed := range seeds {
		err := repo.OpenAccount(ctx, seed.SellerID, seed.Balance)
		switch {
		case err == nil:
			logger.Info("account opened",
				zap.String("seller_id", seed.SellerID),
				zap.Int64("balance", seed.Balance),
			)
		case errors.Is(err, domain.ErrAccountExists):
			logger.Debug("account already open", zap.String("seller_id", seed.SellerID))
		default:
			return fmt.Errorf("open account %s: %w", seed.SellerID, translate(err))
		}
	}
	return nil
}
