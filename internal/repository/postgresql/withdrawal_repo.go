package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"payouts/internal/domain"
	"payouts/internal/port"

	"github.com/google/uuid"
)

type withdrawalRepository struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) port.WithdrawalRepository {
	return &withdrawalRepository{db: db}
}

const withdrawalColumns = `id, seller_id, amount, payment_method, payment_details, status,
	admin_note, processed_by, processed_at, transaction_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner) (*domain.Withdrawal, error) {
	var (
		w           domain.Withdrawal
		details     []byte
		processedAt sql.NullTime
	)
	err := row.Scan(
		&w.ID, &w.SellerID, &w.Amount, &w.PaymentMethod, &details, &w.Status,
		&w.AdminNote, &w.ProcessedBy, &processedAt, &w.TransactionID, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &w.PaymentDetails); err != nil {
		return nil, fmt.Errorf("decode payment details of %s: %w", w.ID, err)
	}
	if processedAt.Valid {
		at := processedAt.Time
		w.ProcessedAt = &at
	}
	return &w, nil
}

func (r *withdrawalRepository) Create(ctx context.Context, w *domain.Withdrawal, entry domain.LedgerEntry) error {
	const insertWithdrawal = `INSERT INTO withdrawal_requests (` + withdrawalColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	const insertEntry = `INSERT INTO ledger_entries (id, seller_id, withdrawal_id, amount, status, type, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	details, err := json.Marshal(w.PaymentDetails)
	if err != nil {
		return fmt.Errorf("encode payment details: %w", err)
	}

	return inTx(ctx, r.db, nil, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		_, err := q.ExecContext(ctx, insertWithdrawal,
			w.ID, w.SellerID, w.Amount, w.PaymentMethod, details, w.Status,
			w.AdminNote, w.ProcessedBy, w.ProcessedAt, w.TransactionID, w.CreatedAt, w.UpdatedAt,
		)
		if err != nil {
			return mapErr(err)
		}

		_, err = q.ExecContext(ctx, insertEntry,
			entry.ID, entry.SellerID, entry.WithdrawalID, entry.Amount, entry.Status, entry.Type, entry.CreatedAt, entry.UpdatedAt,
		)
		return mapErr(err)
	})
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

	w, err := scanWithdrawal(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	return w, mapErr(err)
}

func (r *withdrawalRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
	WHERE seller_id = $1 ORDER BY created_at DESC`

	return r.query(ctx, query, sellerID)
}

func (r *withdrawalRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
	WHERE ($1::text = '' OR status = $1) ORDER BY created_at DESC`

	return r.query(ctx, query, string(filter.Status))
}

func (r *withdrawalRepository) query(ctx context.Context, query string, args ...any) ([]domain.Withdrawal, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]domain.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *w)
	}
	return out, mapErr(rows.Err())
}

// Finalize is one transaction: the conditional status flip, the ledger entry
// update and, for rejections, the refund credit.
func (r *withdrawalRepository) Finalize(ctx context.Context, upd domain.FinalizeUpdate) (*domain.Withdrawal, error) {
	const finalize = `UPDATE withdrawal_requests
	SET status = $2, admin_note = $3, processed_by = $4, processed_at = $5, updated_at = $5
	WHERE id = $1 AND status = 'Processing'
	RETURNING ` + withdrawalColumns
	const exists = `SELECT EXISTS (SELECT 1 FROM withdrawal_requests WHERE id = $1)`
	const updateEntry = `UPDATE ledger_entries SET status = $2, updated_at = $3 WHERE withdrawal_id = $1`
	const credit = `UPDATE balance_accounts
	SET available_balance = available_balance + $2, version = version + 1, updated_at = $3
	WHERE seller_id = $1`

	var out *domain.Withdrawal
	err := inTx(ctx, r.db, nil, func(ctx context.Context) error {
		q := conn(ctx, r.db)

		w, err := scanWithdrawal(q.QueryRowContext(ctx, finalize,
			upd.ID, upd.Status, upd.AdminNote, upd.ProcessedBy, upd.ProcessedAt,
		))
		if errors.Is(err, sql.ErrNoRows) {
			var found bool
			if err := q.QueryRowContext(ctx, exists, upd.ID).Scan(&found); err != nil {
				return mapErr(err)
			}
			if found {
				return domain.ErrAlreadyProcessed
			}
			return domain.ErrWithdrawalNotFound
		}
		if err != nil {
			return mapErr(err)
		}

		if _, err := q.ExecContext(ctx, updateEntry, upd.ID, upd.Status, upd.ProcessedAt); err != nil {
			return mapErr(err)
		}

		if upd.Refund > 0 {
			res, err := q.ExecContext(ctx, credit, w.SellerID, upd.Refund, upd.ProcessedAt)
			if err != nil {
				return mapErr(err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrAccountNotFound
			}
		}

		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *withdrawalRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	const query = `SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
	FROM withdrawal_requests GROUP BY status`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var stats []domain.StatusStat
	for rows.Next() {
		var s domain.StatusStat
		if err := rows.Scan(&s.Status, &s.Count, &s.TotalAmount); err != nil {
			return nil, mapErr(err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return domain.NewStats(stats), nil
}
