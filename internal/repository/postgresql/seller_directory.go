package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"payouts/internal/domain"
	"payouts/internal/port"
)

type sellerDirectory struct {
	db *sql.DB
}

func NewSellerDirectory(db *sql.DB) port.SellerDirectory {
	return &sellerDirectory{db: db}
}

func (r *sellerDirectory) Contact(ctx context.Context, sellerID string) (*domain.SellerContact, error) {
	const query = `SELECT id, name, email FROM sellers WHERE id = $1`

	var c domain.SellerContact
	err := conn(ctx, r.db).QueryRowContext(ctx, query, sellerID).Scan(&c.SellerID, &c.Name, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSellerNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}
