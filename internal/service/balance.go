package service

import (
	"context"
	"errors"
	"fmt"
	"payouts/internal/domain"
	"payouts/internal/port"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config carries the tunables of the withdrawal flow.
type Config struct {
	Policy domain.Policy
	// ContentionRetries is how many extra attempts a balance write gets after
	// a version conflict.
	ContentionRetries int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	StoreTimeout      time.Duration
	TxIDPrefix        string
	TxIDRetries       int
}

func DefaultConfig() Config {
	return Config{
		Policy:            domain.DefaultPolicy(),
		ContentionRetries: 3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        200 * time.Millisecond,
		StoreTimeout:      5 * time.Second,
		TxIDPrefix:        "WD",
		TxIDRetries:       3,
	}
}

// balanceAccounts serializes reserve and refund per seller with optimistic
// concurrency on the account version.
type balanceAccounts struct {
	repo port.BalanceRepository
	cfg  Config
}

func (b *balanceAccounts) reserve(ctx context.Context, sellerID string, amount int64) error {
	return b.update(ctx, sellerID, func(a *domain.BalanceAccount) error {
		return a.Reserve(amount)
	})
}

func (b *balanceAccounts) refund(ctx context.Context, sellerID string, amount int64) error {
	return b.update(ctx, sellerID, func(a *domain.BalanceAccount) error {
		return a.Refund(amount)
	})
}

// credit is a plain increment and needs no version check. A seller without
// an account gets one holding amount.
func (b *balanceAccounts) credit(ctx context.Context, sellerID string, amount int64) error {
	ctx, cancel := withStoreTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	err := b.repo.Credit(ctx, sellerID, amount)
	if errors.Is(err, domain.ErrAccountNotFound) {
		err = b.repo.OpenAccount(ctx, sellerID, amount)
		if errors.Is(err, domain.ErrAccountExists) {
			err = b.repo.Credit(ctx, sellerID, amount)
		}
	}
	return translate(err)
}

func (b *balanceAccounts) get(ctx context.Context, sellerID string) (*domain.BalanceAccount, error) {
	ctx, cancel := withStoreTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	acct, err := b.repo.GetAccount(ctx, sellerID)
	return acct, translate(err)
}

func (b *balanceAccounts) update(ctx context.Context, sellerID string, mutate func(*domain.BalanceAccount) error) error {
	op := func() error {
		acct, err := b.get(ctx, sellerID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := mutate(acct); err != nil {
			return backoff.Permanent(err)
		}

		sctx, cancel := withStoreTimeout(ctx, b.cfg.StoreTimeout)
		defer cancel()
		err = b.repo.CompareAndSetBalance(sctx, sellerID, acct.Version, acct.AvailableBalance)
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(translate(err))
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(b.backOff(), ctx))
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("%w: seller %s", domain.ErrContention, sellerID)
	}
	return translate(err)
}

func (b *balanceAccounts) backOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.cfg.InitialBackoff
	exp.MaxInterval = b.cfg.MaxBackoff
	exp.MaxElapsedTime = 0

	retries := b.cfg.ContentionRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(exp, uint64(retries))
}

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// translate maps store failures onto the error taxonomy callers see.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
