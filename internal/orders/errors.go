package orders

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrEmptyCart      = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrMissingAddress = fmt.Errorf("%w: delivery address required", ErrValidation)
	ErrInvalidPhone   = fmt.Errorf("%w: invalid phone number", ErrValidation)

	ErrOrderNotFound  = errors.New("order not found")
	ErrAmountMismatch = errors.New("amount mismatch")
	ErrNotCancellable = errors.New("order can no longer be cancelled")
	ErrBadTransition  = errors.New("invalid status transition")
	ErrNotPayable     = errors.New("order is not payable")
)
