package domain

import "time"

// DefaultCurrency is applied when a payment request carries no currency tag.
const DefaultCurrency = "USD"

// AccountType distinguishes end users from merchants.
type AccountType string

const (
	AccountTypeUser     AccountType = "user"
	AccountTypeMerchant AccountType = "merchant"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	return t == AccountTypeUser || t == AccountTypeMerchant
}

// Account is immutable once created; the core only ever reads it.
type Account struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// PaymentRequest is the DTO for an incoming transfer.
type PaymentRequest struct {
	FromAccountID  int64  `json:"from_account_id"`
	ToAccountID    int64  `json:"to_account_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Payment is the immutable record of one processed transfer. Amounts are
// minor currency units throughout; no floating point anywhere.
type Payment struct {
	ID             int64     `json:"id"`
	FromAccountID  int64     `json:"from_account_id"`
	ToAccountID    int64     `json:"to_account_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LedgerEntry is one leg of a double-entry posting. Negative = debit,
// positive = credit. The two entries for a given PaymentID always sum to 0.
type LedgerEntry struct {
	ID          int64 `json:"id"`
	PaymentID   int64 `json:"payment_id"`
	AccountID   int64 `json:"account_id"`
	AmountCents int64 `json:"amount_cents_signed"`
}

// PaymentWithNames denormalizes counterparty names for history listings.
type PaymentWithNames struct {
	Payment
	FromName string `json:"from_name"`
	ToName   string `json:"to_name"`
}

// Balance is derived from the entry log on every read; it is never stored.
type Balance struct {
	AccountID    int64 `json:"account_id"`
	BalanceCents int64 `json:"balance_cents"`
}
