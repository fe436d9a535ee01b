package domain

// Reserve deducts amount from the available balance. The account is left
// untouched when funds are short.
func (a *BalanceAccount) Reserve(amount int64) error {
	if amount <= 0 {
		return invalid("amount", ErrInvalidAmount)
	}
	if a.AvailableBalance < amount {
		return ErrInsufficientBalance
	}
	a.AvailableBalance -= amount
	return nil
}

// Refund returns amount to the available balance.
func (a *BalanceAccount) Refund(amount int64) error {
	if amount <= 0 {
		return invalid("amount", ErrInvalidAmount)
	}
	a.AvailableBalance += amount
	return nil
}

// Reserved sums the entries still waiting for an admin decision.
func (a *BalanceAccount) Reserved() int64 {
	var total int64
	for _, e := range a.Transactions {
		if e.Status == StatusProcessing {
			total += e.Amount
		}
	}
	return total
}
