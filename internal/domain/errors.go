package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is treats two domain errors with the same code and message as equal, so
// sentinel errors survive wrapping via NewDomainErrorWithCause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeProviderUnavail    = "PROVIDER_UNAVAILABLE"
	ErrCodeProvidersExhausted = "PROVIDERS_EXHAUSTED"
	ErrCodeIndexUnavailable   = "INDEX_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// Validation errors. Never retried; surfaced immediately.
var (
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrEmptyEmbeddingInput  = NewDomainError(ErrCodeValidation, "embedding input cannot be empty")
	ErrInvalidK             = NewDomainError(ErrCodeValidation, "k must be at least 1")
	ErrDimensionMismatch    = NewDomainError(ErrCodeValidation, "embedding has wrong dimensionality")
	ErrShapeMismatch        = NewDomainError(ErrCodeValidation, "texts, embeddings and metadata must have equal lengths")
	ErrInvalidSessionID     = NewDomainError(ErrCodeValidation, "session_id must be a valid UUID")
	ErrQuestionTooLong      = NewDomainError(ErrCodeValidation, "question exceeds maximum length")
	ErrInvalidMessageRole   = NewDomainError(ErrCodeValidation, "role must be user or assistant")
	ErrEmptyMessageContent  = NewDomainError(ErrCodeValidation, "message content cannot be empty")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrProfileNotFound = NewDomainError(ErrCodeNotFound, "profile document not found")
)

// Provider errors. Rate limiting is distinguished from generic transient
// failure only after the retry budget is exhausted.
var (
	ErrRateLimited           = NewDomainError(ErrCodeRateLimited, "completion provider rate limit exhausted")
	ErrProviderUnavailable   = NewDomainError(ErrCodeProviderUnavail, "completion provider unavailable")
	ErrAllProvidersExhausted = NewDomainError(ErrCodeProvidersExhausted, "the assistant is temporarily unavailable, please try again later")
)

// Index errors
var (
	ErrIndexUnavailable = NewDomainError(ErrCodeIndexUnavailable, "similarity index unavailable")
)
