package service

import (
	"context"

	"github.com/payledger/payledger/internal/domain"
)

// TxStore is the storage surface available inside one unit of work. Every
// method runs on the same database transaction; nothing becomes visible
// until the enclosing InTx commits.
type TxStore interface {
	// PaymentByKey returns the payment recorded under the idempotency key,
	// or nil when no such payment exists.
	PaymentByKey(ctx context.Context, key string) (*domain.Payment, error)
	// CountAccounts returns how many of the given account ids exist.
	CountAccounts(ctx context.Context, ids []int64) (int, error)
	// InsertPayment persists p and fills in its ID and CreatedAt.
	InsertPayment(ctx context.Context, p *domain.Payment) error
	// InsertEntries persists the ledger entries for an already inserted payment.
	InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error
}

// Store runs units of work against durable storage.
type Store interface {
	// InTx runs fn inside a transaction, committing when fn returns nil and
	// rolling back otherwise. No partial writes survive an error.
	InTx(ctx context.Context, fn func(TxStore) error) error
	// PaymentByKey is the committed-state lookup used after losing an
	// idempotency race to a concurrent writer.
	PaymentByKey(ctx context.Context, key string) (*domain.Payment, error)
}
