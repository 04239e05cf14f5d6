package toolflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyInput is returned when a required input slice is empty.
var ErrEmptyInput = errors.New("empty input")

// ErrorCategory tells a caller how to react to a provider failure.
type ErrorCategory string

const (
	// ErrorTransient failures (rate limits, overload, 5xx) may succeed on retry.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent failures (bad credentials, missing permissions) will not.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorUserInput failures need a different request.
	ErrorUserInput ErrorCategory = "user_input"
)

// CategorizedError is implemented by errors that know their category.
// retry.Transient consults it before falling back to heuristics.
type CategorizedError interface {
	error
	Category() ErrorCategory
	StatusCode() int
	RetryAfter() time.Duration
}

// ProviderError is returned by the provider adapters when the vendor API
// answers with an error status.
type ProviderError struct {
	Provider Provider
	Status   int
	// Wait is the server's Retry-After hint, zero when absent.
	Wait time.Duration
	Err  error
}

// NewProviderError categorizes a failed provider call by its HTTP status.
func NewProviderError(p Provider, status int, wait time.Duration, err error) *ProviderError {
	return &ProviderError{Provider: p, Status: status, Wait: wait, Err: err}
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Category derives the category from the status. A Retry-After hint makes
// any status transient.
func (e *ProviderError) Category() ErrorCategory {
	if e.Wait > 0 {
		return ErrorTransient
	}
	return CategoryForStatus(e.Status)
}

func (e *ProviderError) StatusCode() int { return e.Status }

func (e *ProviderError) RetryAfter() time.Duration { return e.Wait }

// CategoryForStatus maps an HTTP status code to an error category.
func CategoryForStatus(code int) ErrorCategory {
	switch {
	case code == 429, code >= 500 && code < 600:
		return ErrorTransient
	case code == 400, code == 404, code == 422:
		return ErrorUserInput
	default:
		return ErrorPermanent
	}
}

func categorized(err error) (CategorizedError, bool) {
	var ce CategorizedError
	ok := errors.As(err, &ce)
	return ce, ok
}

// IsTransient reports whether err carries the transient category.
func IsTransient(err error) bool {
	ce, ok := categorized(err)
	return ok && ce.Category() == ErrorTransient
}

// IsPermanent reports whether err carries the permanent category.
func IsPermanent(err error) bool {
	ce, ok := categorized(err)
	return ok && ce.Category() == ErrorPermanent
}

// IsUserInput reports whether err carries the user input category.
func IsUserInput(err error) bool {
	ce, ok := categorized(err)
	return ok && ce.Category() == ErrorUserInput
}

// StatusCodeOf returns the HTTP status of a categorized error, or 0.
func StatusCodeOf(err error) int {
	if ce, ok := categorized(err); ok {
		return ce.StatusCode()
	}
	return 0
}

// RetryAfterOf returns the Retry-After hint of a categorized error, or 0.
func RetryAfterOf(err error) time.Duration {
	if ce, ok := categorized(err); ok {
		return ce.RetryAfter()
	}
	return 0
}
