// Package notify delivers withdrawal notifications to sellers. Delivery is
// best effort and at most once per event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"payouts/internal/domain"
	"payouts/internal/port"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Sender puts a rendered message on the wire.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Deliverer resolves the seller's address and sends the rendered message.
type Deliverer struct {
	directory port.SellerDirectory
	sender    Sender
	logger    *zap.Logger
}

func NewDeliverer(directory port.SellerDirectory, sender Sender, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{directory: directory, sender: sender, logger: logger.Named("notify")}
}

func (d *Deliverer) Deliver(ctx context.Context, n domain.Notification) error {
	contact, err := d.directory.Contact(ctx, n.SellerID)
	if err != nil {
		return fmt.Errorf("resolve seller %s: %w", n.SellerID, err)
	}

	subject, body := Render(n, contact)
	if err := d.sender.Send(ctx, contact.Email, subject, body); err != nil {
		return fmt.Errorf("send %s notification: %w", n.Event, err)
	}

	d.logger.Debug("notification delivered",
		zap.String("event", string(n.Event)),
		zap.String("withdrawal_id", n.WithdrawalID),
	)
	return nil
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, domain.Notification) error { return nil }
