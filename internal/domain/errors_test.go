package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckoutError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("write conflict")
	err := error(&CheckoutError{Step: StepPayment, Err: cause})

	assert.ErrorIs(t, err, ErrCheckoutFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "payment")

	var ce *CheckoutError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, StepPayment, ce.Step)
}

func TestPersistence_WrapsBoth(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence("find user", cause)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "find user")
}

func TestValidationf(t *testing.T) {
	err := Validationf("quantity %d out of range", 0)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "quantity 0 out of range")
}
