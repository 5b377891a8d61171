package service

import (
	"fmt"

	"github.com/payledger/payledger/internal/domain"
)

// ValidateRequest checks the structural rules for a transfer, short-circuiting
// on the first failure. Account existence is checked separately, inside the
// processor's transaction, with a single count query.
func ValidateRequest(req domain.PaymentRequest) error {
	if req.FromAccountID <= 0 || req.ToAccountID <= 0 {
		return fmt.Errorf("%w: from and to account ids are required", domain.ErrInvalidRequest)
	}
	if req.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidRequest)
	}
	if req.FromAccountID == req.ToAccountID {
		return fmt.Errorf("%w: from and to must differ", domain.ErrInvalidRequest)
	}
	return nil
}
