package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/payledger/payledger/internal/domain"
)

const pgUniqueViolation = "23505"

// TransferProcessor executes the double-entry transfer protocol: idempotency
// check, validation, then payment plus entry pair, all inside one unit of work.
type TransferProcessor struct {
	store Store
}

func NewTransferProcessor(store Store) *TransferProcessor {
	return &TransferProcessor{store: store}
}

// ProcessPayment runs one transfer request to completion. It returns the
// resulting payment and replayed=true when the idempotency key matched a
// previously committed payment, in which case nothing was written.
//
// Calling this N times with the same key yields one payment and one pair of
// ledger entries in storage, with every call returning that same payment.
func (s *TransferProcessor) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.Payment, bool, error) {
	if req.Currency == "" {
		req.Currency = domain.DefaultCurrency
	}

	var (
		payment  *domain.Payment
		replayed bool
	)
	err := s.store.InTx(ctx, func(tx TxStore) error {
		// Replay path first: a request bearing an already-processed key
		// returns the stored outcome without re-validating or writing.
		if req.IdempotencyKey != "" {
			existing, err := tx.PaymentByKey(ctx, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("idempotency lookup failed: %w", err)
			}
			if existing != nil {
				payment = existing
				replayed = true
				return nil
			}
		}

		if err := ValidateRequest(req); err != nil {
			return err
		}
		n, err := tx.CountAccounts(ctx, []int64{req.FromAccountID, req.ToAccountID})
		if err != nil {
			return fmt.Errorf("account lookup failed: %w", err)
		}
		if n != 2 {
			return domain.ErrAccountNotFound
		}

		p := &domain.Payment{
			FromAccountID:  req.FromAccountID,
			ToAccountID:    req.ToAccountID,
			AmountCents:    req.AmountCents,
			Currency:       req.Currency,
			IdempotencyKey: req.IdempotencyKey,
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return fmt.Errorf("payment insert failed: %w", err)
		}
		entries := []domain.LedgerEntry{
			{PaymentID: p.ID, AccountID: req.FromAccountID, AmountCents: -req.AmountCents},
			{PaymentID: p.ID, AccountID: req.ToAccountID, AmountCents: req.AmountCents},
		}
		if err := tx.InsertEntries(ctx, entries); err != nil {
			return fmt.Errorf("ledger entry insert failed: %w", err)
		}
		payment = p
		return nil
	})
	if err != nil {
		// A concurrent request with the same key won the insert race; its
		// committed payment is the outcome for this call too.
		if req.IdempotencyKey != "" && isUniqueViolation(err) {
			existing, lookupErr := s.store.PaymentByKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, true, nil
			}
		}
		if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrAccountNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %v", domain.ErrProcessingFailed, err)
	}
	return payment, replayed, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
