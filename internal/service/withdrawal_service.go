package service

import (
	"context"
	"errors"
	"fmt"
	"payouts/internal/domain"
	"payouts/internal/port"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type withdrawalService struct {
	withdrawalRepo port.WithdrawalRepository
	balances       *balanceAccounts
	notifier       port.Notifier
	cfg            Config
	logger         *zap.Logger
	now            func() time.Time
}

func NewWithdrawalService(
	withdrawalRepo port.WithdrawalRepository,
	balanceRepo port.BalanceRepository,
	notifier port.Notifier,
	cfg Config,
	logger *zap.Logger,
) port.WithdrawalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TxIDRetries < 1 {
		cfg.TxIDRetries = 1
	}
	return &withdrawalService{
		withdrawalRepo: withdrawalRepo,
		balances:       &balanceAccounts{repo: balanceRepo, cfg: cfg},
		notifier:       notifier,
		cfg:            cfg,
		logger:         logger.Named("withdrawal"),
		now:            time.Now,
	}
}

func (s *withdrawalService) CreateWithdrawal(ctx context.Context, req domain.CreateWithdrawalReq) (*domain.Withdrawal, error) {
	if err := s.cfg.Policy.ValidateCreate(req); err != nil {
		return nil, err
	}

	if err := s.balances.reserve(ctx, req.SellerID, req.Amount); err != nil {
		return nil, err
	}

	w, err := s.persist(ctx, req)
	if err != nil && mayHaveCommitted(err) {
		stored, cerr := s.committed(ctx, w)
		if cerr != nil {
			s.logger.Error("create outcome unknown, reservation kept",
				zap.String("seller_id", req.SellerID),
				zap.Int64("amount", req.Amount),
				zap.String("transaction_id", w.TransactionID),
				zap.NamedError("create_error", err),
				zap.Error(cerr),
			)
			return nil, fmt.Errorf("%w: create outcome unknown: %v", domain.ErrUnavailable, err)
		}
		if stored {
			err = nil
		}
	}
	if err != nil {
		// Give the reservation back even if the caller is gone.
		if rerr := s.balances.refund(context.WithoutCancel(ctx), req.SellerID, req.Amount); rerr != nil {
			fields := []zap.Field{
				zap.String("seller_id", req.SellerID),
				zap.Int64("amount", req.Amount),
				zap.NamedError("create_error", err),
				zap.Error(rerr),
			}
			if w != nil {
				fields = append(fields, zap.String("transaction_id", w.TransactionID))
			}
			s.logger.Error("reservation leaked after failed create", fields...)
		}
		return nil, err
	}

	s.logger.Info("withdrawal created",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("seller_id", w.SellerID),
		zap.Int64("amount", w.Amount),
		zap.String("transaction_id", w.TransactionID),
	)
	s.notify(ctx, w, domain.EventSubmitted)
	return w, nil
}

// persist stores the request and its ledger entry, drawing a fresh
// transaction id whenever the previous one collided.
func (s *withdrawalService) persist(ctx context.Context, req domain.CreateWithdrawalReq) (*domain.Withdrawal, error) {
	var w *domain.Withdrawal
	op := func() error {
		now := s.now()
		txid, err := domain.NewTransactionID(s.cfg.TxIDPrefix, now)
		if err != nil {
			return backoff.Permanent(err)
		}
		w = domain.NewWithdrawal(req, txid, now)

		sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
		err = s.withdrawalRepo.Create(sctx, w, w.LedgerEntry())
		if errors.Is(err, domain.ErrDuplicateTransactionID) {
			s.logger.Warn("transaction id collision", zap.String("transaction_id", txid))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	retries := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(s.cfg.TxIDRetries-1))
	if err := backoff.Retry(op, backoff.WithContext(retries, ctx)); err != nil {
		return w, translate(err)
	}
	return w, nil
}

// mayHaveCommitted is false for create failures that prove nothing was
// written.
func mayHaveCommitted(err error) bool {
	switch {
	case errors.Is(err, domain.ErrDuplicateTransactionID),
		errors.Is(err, domain.ErrAccountNotFound),
		domain.Kind(err) == domain.KindValidation:
		return false
	}
	return true
}

// committed looks the request up after a failed create. An error means the
// outcome is still unknown.
func (s *withdrawalService) committed(ctx context.Context, w *domain.Withdrawal) (bool, error) {
	if w == nil {
		return false, nil
	}
	ctx, cancel := withStoreTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()

	_, err := s.withdrawalRepo.GetByID(ctx, w.ID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrWithdrawalNotFound):
		return false, nil
	}
	return false, err
}

func (s *withdrawalService) Finalize(ctx context.Context, req domain.FinalizeReq) (*domain.Withdrawal, error) {
	if strings.TrimSpace(req.AdminID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := s.cfg.Policy.ValidateFinalize(req); err != nil {
		return nil, err
	}

	w, err := s.GetWithdrawal(ctx, req.WithdrawalID)
	if err != nil {
		return nil, err
	}

	upd, err := w.Finalize(req.Decision, req.AdminID, req.Note, s.now())
	if err != nil {
		return nil, err
	}

	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	updated, err := s.withdrawalRepo.Finalize(sctx, upd)
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("withdrawal finalized",
		zap.String("withdrawal_id", updated.ID.String()),
		zap.String("seller_id", updated.SellerID),
		zap.String("status", string(updated.Status)),
		zap.String("admin_id", updated.ProcessedBy),
		zap.Int64("refund", upd.Refund),
	)

	event := domain.EventSucceeded
	if updated.Status == domain.StatusRejected {
		event = domain.EventRejected
	}
	s.notify(ctx, updated, event)
	return updated, nil
}

func (s *withdrawalService) GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	w, err := s.withdrawalRepo.GetByID(ctx, id)
	return w, translate(err)
}

func (s *withdrawalService) ListSellerWithdrawals(ctx context.Context, sellerID string) ([]domain.Withdrawal, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, &domain.ValidationError{Field: "sellerId", Err: domain.ErrInvalidSeller}
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	list, err := s.withdrawalRepo.ListBySeller(ctx, sellerID)
	return list, translate(err)
}

func (s *withdrawalService) ListAll(ctx context.Context, filter domain.ListFilter) ([]domain.Withdrawal, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	list, err := s.withdrawalRepo.List(ctx, filter)
	return list, translate(err)
}

func (s *withdrawalService) AggregateStats(ctx context.Context) (*domain.Stats, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	st, err := s.withdrawalRepo.Stats(ctx)
	return st, translate(err)
}

func (s *withdrawalService) Balance(ctx context.Context, sellerID string) (*domain.BalanceAccount, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, &domain.ValidationError{Field: "sellerId", Err: domain.ErrInvalidSeller}
	}
	return s.balances.get(ctx, sellerID)
}

// CreditBalance adds earnings to a seller's available balance, opening the
// account on the first credit.
func (s *withdrawalService) CreditBalance(ctx context.Context, sellerID string, amount int64) (*domain.BalanceAccount, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, &domain.ValidationError{Field: "sellerId", Err: domain.ErrInvalidSeller}
	}
	if amount <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Err: domain.ErrInvalidAmount}
	}

	if err := s.balances.credit(ctx, sellerID, amount); err != nil {
		return nil, err
	}
	s.logger.Info("balance credited",
		zap.String("seller_id", sellerID),
		zap.Int64("amount", amount),
	)
	return s.balances.get(ctx, sellerID)
}

// notify hands the event to the dispatcher. Failures never reach the caller.
func (s *withdrawalService) notify(ctx context.Context, w *domain.Withdrawal, event domain.NotificationEvent) {
	if s.notifier == nil {
		return
	}

	n := domain.Notification{
		Event:         event,
		SellerID:      w.SellerID,
		WithdrawalID:  w.ID.String(),
		Amount:        w.Amount,
		TransactionID: w.TransactionID,
		Note:          w.AdminNote,
		OccurredAt:    s.now(),
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Warn("notification not dispatched",
			zap.String("event", string(event)),
			zap.String("withdrawal_id", n.WithdrawalID),
			zap.Error(err),
		)
	}
}
