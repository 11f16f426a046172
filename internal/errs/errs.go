// Package errs implements the workflow engine's closed error taxonomy.
//
// Every failure that crosses a node, template, or token-accounting boundary
// is one of a fixed set of Kinds, never a free-form string. Errors carry a
// chain of context frames describing where they were raised, mirroring the
// context-chain idiom of mbflow's domain/errors package but collapsed onto
// one struct instead of one type per concern.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of error variants the engine distinguishes.
type Kind int

const (
	KindInvalidInput Kind = iota
	KindValidation
	KindProcessing
	KindTimeout
	KindExternalService
	KindSerialization
	KindDeserialization
	KindConfiguration
	KindUnauthorized
	KindNotFound
	KindRateLimited
	KindTokenBudgetExceeded
	KindCircuitOpen
	KindCancelled
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindValidation:
		return "validation"
	case KindProcessing:
		return "processing"
	case KindTimeout:
		return "timeout"
	case KindExternalService:
		return "external_service"
	case KindSerialization:
		return "serialization"
	case KindDeserialization:
		return "deserialization"
	case KindConfiguration:
		return "configuration"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTokenBudgetExceeded:
		return "token_budget_exceeded"
	case KindCircuitOpen:
		return "circuit_open"
	case KindCancelled:
		return "cancelled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Severity classifies how alarming an error is to an operator.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ContextFrame is one entry in an error's causal chain, added by with_context.
type ContextFrame struct {
	Key   string
	Value any
}

// Error is the engine's single tagged-variant error type. Fields holds
// variant-specific data (e.g. {"operation":..., "duration":...} for a
// Timeout), keyed by name rather than modeled as N Go types, since the
// taxonomy is closed and callers type-switch on Kind, not on Go type.
type Error struct {
	Kind       Kind
	Message    string
	Fields     map[string]any
	Cause      error
	OccurredAt time.Time
	frames     []ContextFrame
	retryable  bool
	severity   Severity
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	for _, f := range e.frames {
		msg += fmt.Sprintf(" [%s=%v]", f.Key, f.Value)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Frames returns the context chain in the order frames were attached.
func (e *Error) Frames() []ContextFrame {
	out := make([]ContextFrame, len(e.frames))
	copy(out, e.frames)
	return out
}

// WithContext returns a new *Error with an additional context frame,
// preserving causal order. The receiver is not mutated.
func (e *Error) WithContext(key string, value any) *Error {
	clone := *e
	clone.frames = append(append([]ContextFrame{}, e.frames...), ContextFrame{Key: key, Value: value})
	return &clone
}

// Field returns a variant-specific field, if present.
func (e *Error) Field(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// classify's retryable=true for KindCircuitOpen is unqualified: a breaker
// only reports CircuitOpen once it is actually open, never before cooldown
// has a chance to run, so "retryable" here really means "worth trying
// again once the breaker's own cooldown allows it." That timing decision
// cannot be made from the error alone (it depends on how long the caller
// is willing to wait), so retry.Executor special-cases KindCircuitOpen to
// recheck on its own short interval instead of consuming the bound
// Policy's attempt budget or backoff.
func classify(kind Kind) (retryable bool, sev Severity) {
	switch kind {
	case KindTimeout, KindExternalService, KindRateLimited, KindCircuitOpen:
		retryable = true
	default:
		retryable = false
	}
	switch kind {
	case KindInternal, KindConfiguration:
		sev = SeverityCritical
	case KindInvalidInput, KindValidation, KindNotFound, KindUnauthorized, KindCancelled:
		sev = SeverityWarning
	default:
		sev = SeverityError
	}
	return
}

// New constructs an *Error of the given kind with optional variant fields.
func New(kind Kind, message string, fields map[string]any) *Error {
	retryable, sev := classify(kind)
	return &Error{
		Kind:       kind,
		Message:    message,
		Fields:     fields,
		OccurredAt: time.Now(),
		retryable:  retryable,
		severity:   sev,
	}
}

// Wrap constructs an *Error chaining an existing cause.
func Wrap(kind Kind, message string, cause error, fields map[string]any) *Error {
	e := New(kind, message, fields)
	e.Cause = cause
	return e
}

// IsRetryable reports whether err (or any error in its Is/As chain when it
// is not itself an *Error) should be retried per the taxonomy's fixed rule:
// Timeout, ExternalService, RateLimited, and CircuitOpen are retryable.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.retryable
	}
	return false
}

// SeverityOf returns the severity of err, or SeverityError for unrecognized
// error types (fail safe toward treating unknowns as significant).
func SeverityOf(err error) Severity {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.severity
	}
	return SeverityError
}

// KindOf extracts the Kind of err, ok=false if err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Convenience constructors mirroring the variant-specific fields §4.1 names.

func InvalidInput(field string) *Error {
	return New(KindInvalidInput, fmt.Sprintf("invalid input field %q", field), map[string]any{"field": field})
}

func Validation(message string, fields map[string]any) *Error {
	return New(KindValidation, message, fields)
}

func Processing(message string) *Error {
	return New(KindProcessing, message, nil)
}

func TimeoutErr(operation string, duration time.Duration) *Error {
	return New(KindTimeout, fmt.Sprintf("%s timed out after %s", operation, duration), map[string]any{
		"operation": operation,
		"duration":  duration,
	})
}

func ExternalService(statusCode int, message string) *Error {
	return New(KindExternalService, message, map[string]any{"status_code": statusCode})
}

func Serialization(message string, cause error) *Error {
	return Wrap(KindSerialization, message, cause, nil)
}

func Deserialization(message string, cause error) *Error {
	return Wrap(KindDeserialization, message, cause, nil)
}

func Configuration(message string) *Error {
	return New(KindConfiguration, message, nil)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message, nil)
}

func NotFound(what string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", what), map[string]any{"what": what})
}

func RateLimited(retryAfter time.Duration) *Error {
	return New(KindRateLimited, "rate limited", map[string]any{"retry_after": retryAfter})
}

func TokenBudgetExceeded(dimension string, limit, estimate float64) *Error {
	return New(KindTokenBudgetExceeded, fmt.Sprintf("token budget exceeded on dimension %q", dimension), map[string]any{
		"dimension": dimension,
		"limit":     limit,
		"estimate":  estimate,
	})
}

func CircuitOpen(key string) *Error {
	return New(KindCircuitOpen, fmt.Sprintf("circuit %q is open", key), map[string]any{"key": key})
}

func Cancelled(reason string) *Error {
	return New(KindCancelled, reason, nil)
}

func Internal(cause error) *Error {
	msg := "internal error"
	if cause != nil {
		msg = cause.Error()
	}
	return Wrap(KindInternal, msg, cause, nil)
}
