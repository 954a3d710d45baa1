package checkout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSignatureInvalid rejects a webhook whose body signature does not match
// the tenant's webhook secret. Mapped to HTTP 403, nothing is mutated.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// ErrNoRedirectURL fails a checkout start when the provider accepted the
// session but returned no redirect URL to send the shopper to.
var ErrNoRedirectURL = errors.New("provider response lacks redirect url")

// ErrOrderNotFound is returned when a session points at a local order that
// no longer resolves. Mapped to HTTP 404.
var ErrOrderNotFound = errors.New("linked order not found")

// MalformedEventError rejects a structurally invalid webhook. Mapped to
// HTTP 400, nothing is mutated.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return "malformed webhook event: " + e.Reason
}

// MaterializationError wraps a failure to turn the pending cart into an
// order. Mapped to HTTP 500 so the provider redelivers; local state is left
// unchanged.
type MaterializationError struct {
	ReferenceID string
	Err         error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("failed to materialize order for reference %s: %v", e.ReferenceID, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// ValidationError carries the full list of price violations found while
// validating a confirm payload. Mapped to HTTP 400.
type ValidationError struct {
	Violations []PriceViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "price validation failed: " + strings.Join(parts, "; ")
}
