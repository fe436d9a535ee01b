package postgresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"payouts/internal/config"
	"payouts/internal/domain"
	"time"

	"github.com/lib/pq"
)

type ctxtype string

const (
	trKey ctxtype = "tx"
)

var (
	uniqueConstraint     pq.ErrorCode = "23505"
	foreignKeyViolation  pq.ErrorCode = "23503"
	checkViolation       pq.ErrorCode = "23514"
	serializationFailure pq.ErrorCode = "40001"
	deadlockDetected     pq.ErrorCode = "40P01"
	lockNotAvailable     pq.ErrorCode = "55P03"
	adminShutdown        pq.ErrorCode = "57P01"
	cannotConnectNow     pq.ErrorCode = "57P03"
)

const (
	txIDConstraint      = "withdrawal_requests_transaction_id_key"
	balanceNonNegative  = "balance_accounts_available_balance_check"
	withdrawalSellerFK  = "withdrawal_requests_seller_id_fkey"
	ledgerEntrySellerFK = "ledger_entries_seller_id_fkey"
)

// Open connects to PostgreSQL with the pool limits from cfg.
func Open(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConnection)
	db.SetMaxIdleConns(cfg.MaxIdleConnection)
	db.SetConnMaxLifetime(cfg.ConnectionLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTr(ctx context.Context) (*sql.Tx, bool) {
	tr, ok := ctx.Value(trKey).(*sql.Tx)
	return tr, ok
}

// conn returns the transaction carried by ctx, or db when there is none.
func conn(ctx context.Context, db *sql.DB) querier {
	if tr, ok := getTr(ctx); ok {
		return tr
	}
	return db
}

// inTx runs fn inside a transaction stored in ctx. A transaction already in
// ctx is reused.
func inTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := getTr(ctx); ok {
		return fn(ctx)
	}

	tr, err := db.BeginTx(ctx, opts)
	if err != nil {
		return mapErr(err)
	}
	if err := fn(context.WithValue(ctx, trKey, tr)); err != nil {
		_ = tr.Rollback()
		return err
	}
	return mapErr(tr.Commit())
}

// mapErr turns driver failures into domain errors where one applies.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case serializationFailure, deadlockDetected, lockNotAvailable:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pqErr.Message)
		case adminShutdown, cannotConnectNow:
			return fmt.Errorf("%w: %s", domain.ErrUnavailable, pqErr.Message)
		case uniqueConstraint:
			if pqErr.Constraint == txIDConstraint {
				return domain.ErrDuplicateTransactionID
			}
		case foreignKeyViolation:
			if pqErr.Constraint == withdrawalSellerFK || pqErr.Constraint == ledgerEntrySellerFK {
				return domain.ErrAccountNotFound
			}
		case checkViolation:
			if pqErr.Constraint == balanceNonNegative {
				return domain.ErrInsufficientBalance
			}
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
