package domain

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Policy holds the business constants for withdrawals.
type Policy struct {
	MinAmount       int64
	MaxAdminNoteLen int
}

func DefaultPolicy() Policy {
	return Policy{MinAmount: 100, MaxAdminNoteLen: 500}
}

var transitions = map[WithdrawalStatus][]WithdrawalStatus{
	StatusProcessing: {StatusSucceed, StatusRejected},
	StatusSucceed:    nil,
	StatusRejected:   nil,
}

func (s WithdrawalStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s WithdrawalStatus) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func (s WithdrawalStatus) CanTransitionTo(to WithdrawalStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentBankTransfer, PaymentPayPal, PaymentStripe, PaymentJazzCash, PaymentEasypaisa:
		return true
	}
	return false
}

// Validate checks that details match the method: bank fields for bank
// transfers, a wallet id for everything else, never both.
func (d PaymentDetails) Validate(method PaymentMethod) error {
	if !method.Valid() {
		return invalid("paymentMethod", ErrInvalidPaymentMethod)
	}

	if method == PaymentBankTransfer {
		if d.DigitalWallet != nil {
			return invalid("paymentDetails.digitalWallet", ErrIncompletePaymentDetails)
		}
		b := d.BankAccount
		switch {
		case b == nil:
			return invalid("paymentDetails.bankAccount", ErrIncompletePaymentDetails)
		case blank(b.BankName):
			return invalid("paymentDetails.bankAccount.bankName", ErrIncompletePaymentDetails)
		case blank(b.AccountNumber):
			return invalid("paymentDetails.bankAccount.accountNumber", ErrIncompletePaymentDetails)
		case blank(b.AccountTitle):
			return invalid("paymentDetails.bankAccount.accountTitle", ErrIncompletePaymentDetails)
		}
		return nil
	}

	if d.BankAccount != nil {
		return invalid("paymentDetails.bankAccount", ErrIncompletePaymentDetails)
	}
	w := d.DigitalWallet
	switch {
	case w == nil:
		return invalid("paymentDetails.digitalWallet", ErrIncompletePaymentDetails)
	case blank(w.WalletID):
		return invalid("paymentDetails.digitalWallet.walletId", ErrIncompletePaymentDetails)
	case w.WalletType != "" && w.WalletType != method:
		return invalid("paymentDetails.digitalWallet.walletType", ErrIncompletePaymentDetails)
	}
	return nil
}

// ValidateCreate runs every guard for entering Processing except the
// balance reservation.
func (p Policy) ValidateCreate(req CreateWithdrawalReq) error {
	if blank(req.SellerID) {
		return invalid("sellerId", ErrInvalidSeller)
	}
	if req.Amount <= 0 {
		return invalid("amount", ErrInvalidAmount)
	}
	if req.Amount < p.MinAmount {
		return invalid("amount", ErrBelowMinimum)
	}
	return req.PaymentDetails.Validate(req.PaymentMethod)
}

func (p Policy) ValidateFinalize(req FinalizeReq) error {
	if req.Decision != StatusSucceed && req.Decision != StatusRejected {
		return invalid("status", ErrInvalidDecision)
	}
	if p.MaxAdminNoteLen > 0 && len([]rune(req.Note)) > p.MaxAdminNoteLen {
		return invalid("adminNote", ErrAdminNoteTooLong)
	}
	return nil
}

// NewWithdrawal builds a Processing request. Callers must have validated req.
func NewWithdrawal(req CreateWithdrawalReq, transactionID string, now time.Time) *Withdrawal {
	details := req.PaymentDetails
	if details.DigitalWallet != nil && details.DigitalWallet.WalletType == "" {
		wallet := *details.DigitalWallet
		wallet.WalletType = req.PaymentMethod
		details.DigitalWallet = &wallet
	}
	return &Withdrawal{
		ID:             uuid.New(),
		SellerID:       req.SellerID,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: details,
		Status:         StatusProcessing,
		TransactionID:  transactionID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// LedgerEntry returns the entry paired with w.
func (w *Withdrawal) LedgerEntry() LedgerEntry {
	return LedgerEntry{
		ID:           uuid.New(),
		SellerID:     w.SellerID,
		WithdrawalID: w.ID,
		Amount:       w.Amount,
		Status:       w.Status,
		Type:         LedgerTypeWithdrawal,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

// Finalize moves w out of Processing. It only mutates w when the transition
// is legal.
func (w *Withdrawal) Finalize(decision WithdrawalStatus, adminID, note string, now time.Time) (FinalizeUpdate, error) {
	if decision != StatusSucceed && decision != StatusRejected {
		return FinalizeUpdate{}, invalid("status", ErrInvalidDecision)
	}
	if !w.Status.CanTransitionTo(decision) {
		return FinalizeUpdate{}, ErrAlreadyProcessed
	}

	upd := FinalizeUpdate{
		ID:          w.ID,
		SellerID:    w.SellerID,
		Status:      decision,
		AdminNote:   note,
		ProcessedBy: adminID,
		ProcessedAt: now,
	}
	if decision == StatusRejected {
		upd.Refund = w.Amount
	}

	w.Apply(upd)
	return upd, nil
}

// Clone returns a copy of w that shares no pointers with it.
func (w *Withdrawal) Clone() *Withdrawal {
	out := *w
	if b := w.PaymentDetails.BankAccount; b != nil {
		bank := *b
		out.PaymentDetails.BankAccount = &bank
	}
	if d := w.PaymentDetails.DigitalWallet; d != nil {
		wallet := *d
		out.PaymentDetails.DigitalWallet = &wallet
	}
	if w.ProcessedAt != nil {
		at := *w.ProcessedAt
		out.ProcessedAt = &at
	}
	return &out
}

// Apply copies a finalize update onto w.
func (w *Withdrawal) Apply(upd FinalizeUpdate) {
	at := upd.ProcessedAt
	w.Status = upd.Status
	w.AdminNote = upd.AdminNote
	w.ProcessedBy = upd.ProcessedBy
	w.ProcessedAt = &at
	w.UpdatedAt = at
}

const txidAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTransactionID returns prefix + epoch millis + four random base36 chars,
// e.g. WD1718000000000K3ZQ.
func NewTransactionID(prefix string, now time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 10))

	max := big.NewInt(int64(len(txidAlphabet)))
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(txidAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func (f ListFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return invalid("status", ErrInvalidStatus)
	}
	return nil
}

// Statuses lists every status in lifecycle order.
func Statuses() []WithdrawalStatus {
	return []WithdrawalStatus{StatusProcessing, StatusSucceed, StatusRejected}
}

// NewStats folds per-status rows into Stats. Statuses without rows are
// reported with zero count.
func NewStats(rows []StatusStat) *Stats {
	byStatus := make(map[WithdrawalStatus]StatusStat, len(rows))
	for _, r := range rows {
		byStatus[r.Status] = r
	}

	st := &Stats{ByStatus: make([]StatusStat, 0, len(transitions))}
	for _, status := range Statuses() {
		row := byStatus[status]
		row.Status = status
		st.ByStatus = append(st.ByStatus, row)
		st.TotalCount += row.Count
		st.TotalAmount += row.TotalAmount
	}
	return st
}
