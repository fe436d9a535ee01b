package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrBelowMinimum             = errors.New("amount is below the minimum withdrawal amount")
	ErrInvalidPaymentMethod     = errors.New("unknown payment method")
	ErrIncompletePaymentDetails = errors.New("payment details are incomplete")
	ErrAdminNoteTooLong         = errors.New("admin note is too long")
	ErrInvalidDecision          = errors.New("decision must be Succeed or Rejected")
	ErrInvalidSeller            = errors.New("seller id is required")
	ErrInvalidStatus            = errors.New("unknown withdrawal status")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyProcessed    = errors.New("withdrawal already processed")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrAccountNotFound     = errors.New("balance account not found")
	ErrAccountExists       = errors.New("balance account already exists")
	ErrSellerNotFound      = errors.New("seller not found")

	ErrConflict               = errors.New("concurrent modification")
	ErrContention             = errors.New("too much contention, try again")
	ErrUnavailable            = errors.New("ledger store unavailable")
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ValidationError names the offending field and unwraps to one of the
// validation sentinels above.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ErrorKind is the coarse class an error belongs to.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindBusiness
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Kind classifies err. Unknown errors are internal.
func Kind(err error) ErrorKind {
	var ve *ValidationError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &ve),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrBelowMinimum),
		errors.Is(err, ErrInvalidPaymentMethod),
		errors.Is(err, ErrIncompletePaymentDetails),
		errors.Is(err, ErrAdminNoteTooLong),
		errors.Is(err, ErrInvalidDecision),
		errors.Is(err, ErrInvalidSeller),
		errors.Is(err, ErrInvalidStatus):
		return KindValidation
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrWithdrawalNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrSellerNotFound):
		return KindBusiness
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrContention),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrDuplicateTransactionID),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return KindInternal
}
