package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrCheckoutFailed = errors.New("checkout failed")
)

// Checkout steps reported by CheckoutError.
const (
	StepValidate  = "validate"
	StepSagaLog   = "saga_log"
	StepHistory   = "history"
	StepPayment   = "payment"
	StepInventory = "inventory"
)

// CheckoutError identifies the checkout step that failed.
type CheckoutError struct {
	Step string
	Err  error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout failed at step %s: %v", e.Step, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

func (e *CheckoutError) Is(target error) bool {
	return target == ErrCheckoutFailed
}

// Validationf returns an error matching ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Persistence wraps a store error so it matches ErrPersistence and the cause.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
