package translation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"horse.fit/babel/internal/cost"
	"horse.fit/babel/internal/ratelimit"
)

// ErrUndetermined is returned when neither a provider nor the local model can
// identify the language of a text.
var ErrUndetermined = errors.New("language could not be determined")

// ValidationError rejects a request before any cache or provider work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RateLimitedError carries the limiter decision that rejected the caller.
type RateLimitedError struct {
	Identifier string
	RetryAfter time.Duration
	Decision   ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %ds", e.Identifier, e.Decision.RetryAfterSeconds())
}

// AttemptError is the final error one provider produced.
type AttemptError struct {
	Provider string `json:"provider"`
	Tries    int    `json:"tries"`
	Err      error  `json:"-"`
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s (%d tries): %v", e.Provider, e.Tries, e.Err)
}

// TranslationFailedError aggregates the attempts of every provider in the chain.
type TranslationFailedError struct {
	Attempts []AttemptError
}

func (e *TranslationFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "translation failed: no provider attempted"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, attempt.Error())
	}
	return "translation failed: all providers exhausted: " + strings.Join(parts, "; ")
}

// Unwrap exposes each attempt's cause to errors.Is and errors.As.
func (e *TranslationFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		if attempt.Err != nil {
			errs = append(errs, attempt.Err)
		}
	}
	return errs
}

type BudgetExceededError = cost.BudgetExceededError
