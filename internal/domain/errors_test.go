package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "something invalid")
	assert.Equal(t, "[VALIDATION_ERROR] something invalid", err.Error())

	wrapped := NewDomainErrorWithCause(ErrCodeInternalError, "boom", errors.New("cause"))
	assert.Equal(t, "[INTERNAL_ERROR] boom: cause", wrapped.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewDomainErrorWithCause(ErrCodeProviderUnavail, "provider down", cause)
	assert.ErrorIs(t, err, cause)
}

func TestDomainError_IsMatchesSentinelThroughWrapping(t *testing.T) {
	err := fmt.Errorf("answering failed: %w",
		NewDomainErrorWithCause(ErrCodeRateLimited, ErrRateLimited.Message, errors.New("429")))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}
