package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/payledger/payledger/internal/domain"
	"github.com/payledger/payledger/internal/service"
)

// mockTx is a testify mock for the transactional storage surface.
type mockTx struct {
	mock.Mock
}

func (m *mockTx) PaymentByKey(ctx context.Context, key string) (*domain.Payment, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockTx) CountAccounts(ctx context.Context, ids []int64) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

func (m *mockTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	args := m.Called(ctx, p)
	if args.Error(0) == nil {
		p.ID = 1
		p.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *mockTx) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

// stubStore runs the unit of work against the mock tx without a database.
type stubStore struct {
	tx        service.TxStore
	beginErr  error
	commitErr error
	byKey     *domain.Payment
	byKeyErr  error
}

func (s *stubStore) InTx(ctx context.Context, fn func(service.TxStore) error) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	if err := fn(s.tx); err != nil {
		return err
	}
	return s.commitErr
}

func (s *stubStore) PaymentByKey(ctx context.Context, key string) (*domain.Payment, error) {
	return s.byKey, s.byKeyErr
}

func validRequest() domain.PaymentRequest {
	return domain.PaymentRequest{
		FromAccountID:  1,
		ToAccountID:    2,
		AmountCents:    1500,
		IdempotencyKey: "k1",
	}
}

func TestProcessPayment_CreatesPaymentWithEntryPair(t *testing.T) {
	ctx := context.Background()
	tx := new(mockTx)
	tx.On("PaymentByKey", ctx, "k1").Return(nil, nil).Once()
	tx.On("CountAccounts", ctx, []int64{1, 2}).Return(2, nil).Once()
	tx.On("InsertPayment", ctx, mock.AnythingOfType("*domain.Payment")).Return(nil).Once()

	var written []domain.LedgerEntry
	tx.On("InsertEntries", ctx, mock.AnythingOfType("[]domain.LedgerEntry")).
		Run(func(args mock.Arguments) {
			written = args.Get(1).([]domain.LedgerEntry)
		}).Return(nil).Once()

	processor := service.NewTransferProcessor(&stubStore{tx: tx})
	payment, replayed, err := processor.ProcessPayment(ctx, validRequest())

	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.False(t, replayed)
	assert.Equal(t, int64(1), payment.ID)
	assert.Equal(t, "USD", payment.Currency)
	assert.False(t, payment.CreatedAt.IsZero())

	// Double-entry invariant: exactly two entries, offsetting, summing to zero.
	require.Len(t, written, 2)
	assert.Equal(t, payment.ID, written[0].PaymentID)
	assert.Equal(t, payment.ID, written[1].PaymentID)
	assert.Equal(t, int64(1), written[0].AccountID)
	assert.Equal(t, int64(-1500), written[0].AmountCents)
	assert.Equal(t, int64(2), written[1].AccountID)
	assert.Equal(t, int64(1500), written[1].AmountCents)
	assert.Zero(t, written[0].AmountCents+written[1].AmountCents)

	tx.AssertExpectations(t)
}

func TestProcessPayment_ReplayReturnsExistingWithoutWriting(t *testing.T) {
	ctx := context.Background()
	existing := &domain.Payment{ID: 42, FromAccountID: 1, ToAccountID: 2, AmountCents: 1500, Currency: "USD"}

	tx := new(mockTx)
	tx.On("PaymentByKey", ctx, "k1").Return(existing, nil).Once()

	processor := service.NewTransferProcessor(&stubStore{tx: tx})
	payment, replayed, err := processor.ProcessPayment(ctx, validRequest())

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, existing, payment)
	tx.AssertNotCalled(t, "CountAccounts", mock.Anything, mock.Anything)
	tx.AssertNotCalled(t, "InsertPayment", mock.Anything, mock.Anything)
	tx.AssertNotCalled(t, "InsertEntries", mock.Anything, mock.Anything)
}

func TestProcessPayment_ReplaySkipsValidation(t *testing.T) {
	// A stored key replays the prior outcome even when the retried request
	// would no longer validate.
	ctx := context.Background()
	existing := &domain.Payment{ID: 42, FromAccountID: 1, ToAccountID: 2, AmountCents: 1500}

	tx := new(mockTx)
	tx.On("PaymentByKey", ctx, "k1").Return(existing, nil).Once()

	req := domain.PaymentRequest{FromAccountID: 1, ToAccountID: 1, AmountCents: -5, IdempotencyKey: "k1"}
	processor := service.NewTransferProcessor(&stubStore{tx: tx})
	payment, replayed, err := processor.ProcessPayment(ctx, req)

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, existing, payment)
}

func TestProcessPayment_NoKeySkipsIdempotencyLookup(t *testing.T) {
	ctx := context.Background()
	tx := new(mockTx)
	tx.On("CountAccounts", ctx, []int64{1, 2}).Return(2, nil).Once()
	tx.On("InsertPayment", ctx, mock.AnythingOfType("*domain.Payment")).Return(nil).Once()
	tx.On("InsertEntries", ctx, mock.AnythingOfType("[]domain.LedgerEntry")).Return(nil).Once()

	req := validRequest()
	req.IdempotencyKey = ""

	processor := service.NewTransferProcessor(&stubStore{tx: tx})
	_, replayed, err := processor.ProcessPayment(ctx, req)

	require.NoError(t, err)
	assert.False(t, replayed)
	tx.AssertNotCalled(t, "PaymentByKey", mock.Anything, mock.Anything)
}

func TestProcessPayment_RejectsInvalidWithoutWriting(t *testing.T) {
	tests := []struct {
		name string
		req  domain.PaymentRequest
	}{
		{"zero amount", domain.PaymentRequest{FromAccountID: 1, ToAccountID: 2}},
		{"negative amount", domain.PaymentRequest{FromAccountID: 1, ToAccountID: 2, AmountCents: -100}},
		{"self transfer", domain.PaymentRequest{FromAccountID: 1, ToAccountID: 1, AmountCents: 100}},
		{"missing accounts", domain.PaymentRequest{AmountCents: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tx := new(mockTx)

			processor := service.NewTransferProcessor(&stubStore{tx: tx})
			payment, _, err := processor.ProcessPayment(ctx, tt.req)

			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Nil(t, payment)
			tx.AssertNotCalled(t, "InsertPayment", mock.Anything, mock.Anything)
			tx.AssertNotCalled(t, "InsertEntries", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessPayment_AccountMissing(t *testing.T) {
	ctx := context.Background()
	tx := new(mockTx)
	tx.On("PaymentByKey", ctx, "k1").Return(nil, nil).Once()
	tx.On("CountAccounts", ctx, []int64{1, 2}).Return(1, nil).Once()

	processor := service.NewTransferProcessor(&stubStore{tx: tx})
	payment, _, err := processor.ProcessPayment(ctx, validRequest())

	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Nil(t, payment)
	tx.AssertNotCalled(t, "InsertPayment", mock.Anything, mock.Anything)
}

func TestProcessPayment_UniqueViolationReplaysCommittedPayment(t *testing.T) {
	// A concurrent writer with the same key committed first: the insert hits
	// the unique constraint and the processor re-queries and replays.
	ctx := context.Background()
	existing := &domain.Payment{ID: 42, FromAccountID: 1, ToAccountID: 2, AmountCents: 1500}

	tx := new(mockTx)
	tx.On("PaymentByKey", ctx, "k1").Return(nil, nil).Once()
	tx.On("CountAccounts", ctx, []int64{1, 2}).Return(2, nil).Once()
	tx.On("InsertPayment", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&pgconn.PgError{Code: "23505"}).Once()

	store := &stubStore{tx: tx, byKey: existing}
	processor := service.NewTransferProcessor(store)
	payment, replayed, err := processor.ProcessPayment(ctx, validRequest())

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, existing, payment)
}

func TestProcessPayment_StorageFailureSurfacesProcessingError(t *testing.T) {
	ctx := context.Background()
	tx := new(mockTx)
	tx.On("PaymentByKey", ctx, "k1").Return(nil, nil).Once()
	tx.On("CountAccounts", ctx, []int64{1, 2}).Return(2, nil).Once()
	tx.On("InsertPayment", ctx, mock.AnythingOfType("*domain.Payment")).Return(nil).Once()
	tx.On("InsertEntries", ctx, mock.AnythingOfType("[]domain.LedgerEntry")).
		Return(errors.New("connection reset")).Once()

	processor := service.NewTransferProcessor(&stubStore{tx: tx})
	payment, _, err := processor.ProcessPayment(ctx, validRequest())

	assert.ErrorIs(t, err, domain.ErrProcessingFailed)
	assert.Nil(t, payment)
}

func TestProcessPayment_BeginAndCommitFailures(t *testing.T) {
	ctx := context.Background()

	processor := service.NewTransferProcessor(&stubStore{beginErr: errors.New("pool exhausted")})
	_, _, err := processor.ProcessPayment(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrProcessingFailed)

	tx := new(mockTx)
	tx.On("PaymentByKey", ctx, "k1").Return(nil, nil).Once()
	tx.On("CountAccounts", ctx, []int64{1, 2}).Return(2, nil).Once()
	tx.On("InsertPayment", ctx, mock.AnythingOfType("*domain.Payment")).Return(nil).Once()
	tx.On("InsertEntries", ctx, mock.AnythingOfType("[]domain.LedgerEntry")).Return(nil).Once()

	processor = service.NewTransferProcessor(&stubStore{tx: tx, commitErr: errors.New("commit timeout")})
	_, _, err = processor.ProcessPayment(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrProcessingFailed)
}
