package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payledger/payledger/internal/domain"
	"github.com/payledger/payledger/internal/service"
)

// Store is the pgx-backed ledger store. Writes go through InTx; reads run
// directly against the pool and observe committed state only.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Close() {
	s.db.Close()
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so the row scans
// below serve the pool-level and transactional lookups alike.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InTx runs fn inside a transaction. The deferred rollback targets the same
// transaction handle that performed the writes; after a successful commit it
// is a no-op.
func (s *Store) InTx(ctx context.Context, fn func(service.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// PaymentByKey looks up a committed payment by idempotency key.
func (s *Store) PaymentByKey(ctx context.Context, key string) (*domain.Payment, error) {
	return paymentByKey(ctx, s.db, key)
}

// Balance derives the account's balance as the sum of its ledger entries.
// Accounts with no entries (or unknown accounts) report 0.
func (s *Store) Balance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount_cents_signed), 0) FROM ledger_entries WHERE account_id = $1",
		accountID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("balance query failed: %w", err)
	}
	return balance, nil
}

// PaymentsFor lists payments where the account is sender or receiver, most
// recent first, with counterparty names denormalized in.
func (s *Store) PaymentsFor(ctx context.Context, accountID int64) ([]domain.PaymentWithNames, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.from_account_id, p.to_account_id, p.amount_cents, p.currency,
		       COALESCE(p.idempotency_key, ''), p.created_at,
		       a_from.name, a_to.name
		FROM payments p
		JOIN accounts a_from ON p.from_account_id = a_from.id
		JOIN accounts a_to   ON p.to_account_id   = a_to.id
		WHERE p.from_account_id = $1 OR p.to_account_id = $1
		ORDER BY p.created_at DESC, p.id DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("payments query failed: %w", err)
	}
	defer rows.Close()

	var payments []domain.PaymentWithNames
	for rows.Next() {
		var p domain.PaymentWithNames
		if err := rows.Scan(&p.ID, &p.FromAccountID, &p.ToAccountID, &p.AmountCents,
			&p.Currency, &p.IdempotencyKey, &p.CreatedAt, &p.FromName, &p.ToName); err != nil {
			return nil, fmt.Errorf("payment scan failed: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CreateAccount inserts a new account and returns it with id and timestamp.
func (s *Store) CreateAccount(ctx context.Context, name string, accountType domain.AccountType) (*domain.Account, error) {
	acc := &domain.Account{Name: name, Type: accountType}
	err := s.db.QueryRow(ctx,
		"INSERT INTO accounts (name, type) VALUES ($1, $2) RETURNING id, created_at",
		name, accountType).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("account insert failed: %w", err)
	}
	return acc, nil
}

// ListAccounts returns all accounts ordered by id.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx, "SELECT id, name, type, created_at FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("accounts query failed: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.Type, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("account scan failed: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// txStore implements service.TxStore on a single pgx transaction.
type txStore struct {
	tx pgx.Tx
}

func (t *txStore) PaymentByKey(ctx context.Context, key string) (*domain.Payment, error) {
	return paymentByKey(ctx, t.tx, key)
}

func (t *txStore) CountAccounts(ctx context.Context, ids []int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, "SELECT COUNT(*) FROM accounts WHERE id = ANY($1)", ids).Scan(&n)
	return n, err
}

func (t *txStore) InsertPayment(ctx context.Context, p *domain.Payment) error {
	// NULLIF keeps the unique constraint off payments without a key.
	return t.tx.QueryRow(ctx, `
		INSERT INTO payments (from_account_id, to_account_id, amount_cents, currency, idempotency_key)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id, created_at`,
		p.FromAccountID, p.ToAccountID, p.AmountCents, p.Currency, p.IdempotencyKey,
	).Scan(&p.ID, &p.CreatedAt)
}

func (t *txStore) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	b := &pgx.Batch{}
	for _, e := range entries {
		b.Queue("INSERT INTO ledger_entries (payment_id, account_id, amount_cents_signed) VALUES ($1, $2, $3)",
			e.PaymentID, e.AccountID, e.AmountCents)
	}
	return t.tx.SendBatch(ctx, b).Close()
}

func paymentByKey(ctx context.Context, q querier, key string) (*domain.Payment, error) {
	var p domain.Payment
	err := q.QueryRow(ctx, `
		SELECT id, from_account_id, to_account_id, amount_cents, currency,
		       COALESCE(idempotency_key, ''), created_at
		FROM payments WHERE idempotency_key = $1`,
		key).Scan(&p.ID, &p.FromAccountID, &p.ToAccountID, &p.AmountCents,
		&p.Currency, &p.IdempotencyKey, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
