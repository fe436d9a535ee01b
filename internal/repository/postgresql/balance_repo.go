package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"payouts/internal/domain"
	"payouts/internal/port"
	"time"
)

type balanceRepository struct {
	db *sql.DB
}

func NewBalanceRepository(db *sql.DB) port.BalanceRepository {
	return &balanceRepository{db: db}
}

// GetAccount reads the balance and its ledger from one snapshot.
func (r *balanceRepository) GetAccount(ctx context.Context, sellerID string) (*domain.BalanceAccount, error) {
	const accountQuery = `SELECT seller_id, available_balance, version, created_at, updated_at
	FROM balance_accounts WHERE seller_id = $1`
	const entriesQuery = `SELECT id, seller_id, withdrawal_id, amount, status, type, created_at, updated_at
	FROM ledger_entries WHERE seller_id = $1 ORDER BY created_at, id`

	var acct domain.BalanceAccount
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := inTx(ctx, r.db, opts, func(ctx context.Context) error {
		q := conn(ctx, r.db)

		err := q.QueryRowContext(ctx, accountQuery, sellerID).Scan(
			&acct.SellerID, &acct.AvailableBalance, &acct.Version, &acct.CreatedAt, &acct.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return mapErr(err)
		}

		rows, err := q.QueryContext(ctx, entriesQuery, sellerID)
		if err != nil {
			return mapErr(err)
		}
		defer rows.Close()

		acct.Transactions = make([]domain.LedgerEntry, 0)
		for rows.Next() {
			var e domain.LedgerEntry
			if err := rows.Scan(&e.ID, &e.SellerID, &e.WithdrawalID, &e.Amount, &e.Status, &e.Type, &e.CreatedAt, &e.UpdatedAt); err != nil {
				return mapErr(err)
			}
			acct.Transactions = append(acct.Transactions, e)
		}
		return mapErr(rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *balanceRepository) CompareAndSetBalance(ctx context.Context, sellerID string, version, balance int64) error {
	const query = `UPDATE balance_accounts
	SET available_balance = $3, version = version + 1, updated_at = $4
	WHERE seller_id = $1 AND version = $2`

	res, err := conn(ctx, r.db).ExecContext(ctx, query, sellerID, version, balance, time.Now())
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return r.missingOrConflict(ctx, sellerID)
}

func (r *balanceRepository) missingOrConflict(ctx context.Context, sellerID string) error {
	const query = `SELECT EXISTS (SELECT 1 FROM balance_accounts WHERE seller_id = $1)`

	var found bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, sellerID).Scan(&found); err != nil {
		return mapErr(err)
	}
	if !found {
		return domain.ErrAccountNotFound
	}
	return domain.ErrConflict
}

func (r *balanceRepository) OpenAccount(ctx context.Context, sellerID string, initial int64) error {
	const query = `INSERT INTO balance_accounts (seller_id, available_balance, version, created_at, updated_at)
	VALUES ($1, $2, 0, $3, $3)
	ON CONFLICT (seller_id) DO NOTHING`

	if initial < 0 {
		return &domain.ValidationError{Field: "availableBalance", Err: domain.ErrInvalidAmount}
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, query, sellerID, initial, time.Now())
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountExists
	}
	return nil
}

func (r *balanceRepository) Credit(ctx context.Context, sellerID string, amount int64) error {
	const query = `UPDATE balance_accounts
	SET available_balance = available_balance + $2, version = version + 1, updated_at = $3
	WHERE seller_id = $1`

	if amount <= 0 {
		return &domain.ValidationError{Field: "amount", Err: domain.ErrInvalidAmount}
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, query, sellerID, amount, time.Now())
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
