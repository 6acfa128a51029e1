package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openquant/pmccscan/internal/infra"
)

// Kind classifies an error per the scanner's taxonomy. Every provider
// error carries exactly one kind; the registry and coordinator branch on
// it for retries, breaker accounting and fallback.
type Kind string

const (
	KindConfig        Kind = "config"
	KindUnsupportedOp Kind = "unsupported_operation"
	KindNoProvider    Kind = "no_provider_available"
	KindRateLimited   Kind = "rate_limited"
	KindDailyLimit    Kind = "daily_limit_exceeded"
	KindBudget        Kind = "budget_exceeded"
	KindCircuitOpen   Kind = "circuit_open"
	KindTransient     Kind = "upstream_transient"
	KindClient        Kind = "upstream_client_error"
	KindAuth          Kind = "auth_error"
	KindParse         Kind = "parse_error"
	KindNoData        Kind = "no_data"
	KindInvariant     Kind = "invariant_violation"
	KindNotification  Kind = "notification_failure"
	KindCancelled     Kind = "cancelled"
)

// Error is the typed error the provider layer returns. Retryable and
// ProviderID drive registry behaviour; RetryAfter carries an upstream
// backoff hint when present.
type Error struct {
	Kind       Kind
	ProviderID string
	Op         Op
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.ProviderID != "" {
		msg += " [" + e.ProviderID + "]"
	}
	if e.Op != "" {
		msg += " " + string(e.Op)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed error with the kind's default retryability.
func NewError(kind Kind, providerID string, op Op, err error) *Error {
	return &Error{
		Kind:       kind,
		ProviderID: providerID,
		Op:         op,
		Retryable:  kind == KindTransient || kind == KindRateLimited || kind == KindCircuitOpen,
		Err:        err,
	}
}

// Errorf builds a typed error from a format string.
func Errorf(kind Kind, providerID string, op Op, format string, args ...any) *Error {
	return NewError(kind, providerID, op, fmt.Errorf(format, args...))
}

// KindOf extracts the kind from an error chain, or "" if untyped.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsRetryable reports whether the error should be retried within the
// same provider.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// RetryAfterHint extracts an upstream retry-after hint, or 0.
func RetryAfterHint(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// BreakerCounted reports whether the error counts toward circuit-breaker
// failure thresholds. Only retryable and server-side errors count;
// client errors (4xx other than 408/429) and parse errors do not.
func BreakerCounted(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	}
	return false
}

// Classify maps a raw adapter error onto the taxonomy. Adapters call a
// single upstream attempt and return whatever failed; this is the one
// place status codes and sentinel errors become kinds.
func Classify(providerID string, op Op, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	if errors.Is(err, infra.ErrDailyLimitExceeded) {
		return NewError(KindDailyLimit, providerID, op, err)
	}
	if errors.Is(err, infra.ErrRateLimited) {
		return NewError(KindRateLimited, providerID, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindCancelled, providerID, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// Call deadline expiry counts as a retryable upstream failure.
		return NewError(KindTransient, providerID, op, err)
	}

	var he *infra.ErrHTTP
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden:
			return NewError(KindAuth, providerID, op, err)
		case he.StatusCode == http.StatusTooManyRequests || he.StatusCode == http.StatusRequestTimeout:
			e := NewError(KindRateLimited, providerID, op, err)
			e.RetryAfter = he.RetryAfter
			return e
		case he.StatusCode >= 500:
			return NewError(KindTransient, providerID, op, err)
		default:
			return NewError(KindClient, providerID, op, err)
		}
	}

	// Connection resets, DNS failures and other transport errors.
	return NewError(KindTransient, providerID, op, err)
}
