package domain

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	StatusProcessing WithdrawalStatus = "Processing"
	StatusSucceed    WithdrawalStatus = "Succeed"
	StatusRejected   WithdrawalStatus = "Rejected"
)

type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
	PaymentPayPal       PaymentMethod = "PayPal"
	PaymentStripe       PaymentMethod = "Stripe"
	PaymentJazzCash     PaymentMethod = "Jazz Cash"
	PaymentEasypaisa    PaymentMethod = "Easypaisa"
)

const LedgerTypeWithdrawal = "withdrawal"

const (
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

type BankAccount struct {
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountTitle  string `json:"accountTitle"`
	BranchCode    string `json:"branchCode,omitempty"`
}

type DigitalWallet struct {
	WalletType  PaymentMethod `json:"walletType,omitempty"`
	WalletID    string        `json:"walletId"`
	PhoneNumber string        `json:"phoneNumber,omitempty"`
}

// PaymentDetails holds exactly one of BankAccount or DigitalWallet,
// depending on the payment method.
type PaymentDetails struct {
	BankAccount   *BankAccount   `json:"bankAccount,omitempty"`
	DigitalWallet *DigitalWallet `json:"digitalWallet,omitempty"`
}

type Withdrawal struct {
	ID             uuid.UUID        `json:"id"`
	SellerID       string           `json:"sellerId"`
	Amount         int64            `json:"amount"`
	PaymentMethod  PaymentMethod    `json:"paymentMethod"`
	PaymentDetails PaymentDetails   `json:"paymentDetails"`
	Status         WithdrawalStatus `json:"status"`
	AdminNote      string           `json:"adminNote,omitempty"`
	ProcessedBy    string           `json:"processedBy,omitempty"`
	ProcessedAt    *time.Time       `json:"processedAt,omitempty"`
	TransactionID  string           `json:"transactionId"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type LedgerEntry struct {
	ID           uuid.UUID        `json:"id"`
	SellerID     string           `json:"sellerId"`
	WithdrawalID uuid.UUID        `json:"withdrawalId"`
	Amount       int64            `json:"amount"`
	Status       WithdrawalStatus `json:"status"`
	Type         string           `json:"type"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type BalanceAccount struct {
	SellerID         string        `json:"sellerId"`
	AvailableBalance int64         `json:"availableBalance"`
	Version          int64         `json:"-"`
	Transactions     []LedgerEntry `json:"transactions"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

type StatusStat struct {
	Status      WithdrawalStatus `json:"status"`
	Count       int64            `json:"count"`
	TotalAmount int64            `json:"totalAmount"`
}

type Stats struct {
	ByStatus    []StatusStat `json:"byStatus"`
	TotalCount  int64        `json:"totalCount"`
	TotalAmount int64        `json:"totalAmount"`
}

// Identity is the already verified caller handed over by the auth layer.
type Identity struct {
	Subject string
	Role    string
}

type SellerContact struct {
	SellerID string
	Name     string
	Email    string
}

type NotificationEvent string

const (
	EventSubmitted NotificationEvent = "submitted"
	EventSucceeded NotificationEvent = "succeeded"
	EventRejected  NotificationEvent = "rejected"
)

type Notification struct {
	Event         NotificationEvent `json:"event"`
	SellerID      string            `json:"seller_id"`
	WithdrawalID  string            `json:"withdrawal_id"`
	Amount        int64             `json:"amount"`
	TransactionID string            `json:"transaction_id"`
	Note          string            `json:"note,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

type CreateWithdrawalReq struct {
	SellerID       string         `json:"-"`
	Amount         int64          `json:"amount" validate:"gt=0"`
	PaymentMethod  PaymentMethod  `json:"paymentMethod" validate:"required"`
	PaymentDetails PaymentDetails `json:"paymentDetails"`
}

type FinalizeReq struct {
	WithdrawalID uuid.UUID        `json:"-"`
	AdminID      string           `json:"-"`
	Decision     WithdrawalStatus `json:"status" validate:"required,oneof=Succeed Rejected"`
	Note         string           `json:"adminNote"`
}

// CreditReq carries earnings an admin books onto a seller's balance.
type CreditReq struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type ListFilter struct {
	Status WithdrawalStatus
}

// FinalizeUpdate is what the store applies atomically when a request leaves
// Processing. Refund is credited to the seller in the same write.
type FinalizeUpdate struct {
	ID          uuid.UUID
	SellerID    string
	Status      WithdrawalStatus
	AdminNote   string
	ProcessedBy string
	ProcessedAt time.Time
	Refund      int64
}
