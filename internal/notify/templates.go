package notify

import (
	"fmt"
	"payouts/internal/domain"
	"strings"
)

// Render builds the subject and plain-text body for n.
func Render(n domain.Notification, c *domain.SellerContact) (subject, body string) {
	name := c.Name
	if name == "" {
		name = "there"
	}
	amount := formatAmount(n.Amount)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n", name)

	switch n.Event {
	case domain.EventSubmitted:
		subject = "Withdrawal request received"
		fmt.Fprintf(&sb, "We received your withdrawal request for %s.\n", amount)
		sb.WriteString("The amount has been reserved from your available balance while an admin reviews it.\n")
	case domain.EventSucceeded:
		subject = "Withdrawal approved"
		fmt.Fprintf(&sb, "Your withdrawal of %s has been approved and is on its way.\n", amount)
	case domain.EventRejected:
		subject = "Withdrawal rejected"
		fmt.Fprintf(&sb, "Your withdrawal of %s was rejected and the amount is back in your available balance.\n", amount)
	default:
		subject = "Withdrawal update"
		fmt.Fprintf(&sb, "There is an update on your withdrawal of %s.\n", amount)
	}

	if n.Note != "" {
		fmt.Fprintf(&sb, "\nNote from our team: %s\n", n.Note)
	}
	fmt.Fprintf(&sb, "\nTransaction ID: %s\n", n.TransactionID)
	return subject, sb.String()
}

// formatAmount prints minor units as major.minor.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
