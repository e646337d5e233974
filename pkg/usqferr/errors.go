// Package usqferr implements the error taxonomy and response envelope
// described by the framework's error handling design: a small set of typed
// errors the composer and router raise, and a stable JSON envelope the
// (out-of-scope) HTTP boundary renders them into.
//
// It is grounded on the teacher's common/constant (business error catalog +
// ValidateBusinessError switch) and common/net/http (ResponseError,
// ValidationKnownFieldsError) but generalized: this framework has no fixed
// entity catalog, so errors are classified by kind, not by a per-entity
// business-error enum.
package usqferr

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// Code is a stable, user-facing error kind from spec §4.6.
type Code string

const (
	CodeValidationFailed            Code = "VALIDATION_FAILED"
	CodeConstraintViolation         Code = "CONSTRAINT_VIOLATION"
	CodeUnauthorized                Code = "UNAUTHORIZED"
	CodeForbidden                   Code = "FORBIDDEN"
	CodeNotFound                    Code = "NOT_FOUND"
	CodeConflict                    Code = "CONFLICT"
	CodeInvariantViolation          Code = "INVARIANT_VIOLATION"
	CodeInfrastructureUnavailable   Code = "INFRASTRUCTURE_UNAVAILABLE"
	CodeInternal                    Code = "INTERNAL"
)

// FieldValidation describes one rejected field in a VALIDATION_FAILED error.
type FieldValidation struct {
	Field         string `json:"field"`
	RejectedValue string `json:"rejectedValue,omitempty"`
	Message       string `json:"message"`
	Code          string `json:"code,omitempty"`
}

// Error is the single typed error every USQF/DSR operation raises. HTTP (or
// any other) boundaries switch on Code to pick a status.
type Error struct {
	Code    Code
	Title   string
	Message string
	Fields  []FieldValidation
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

func new_(code Code, title, message string, cause error, fields ...FieldValidation) *Error {
	return &Error{Code: code, Title: title, Message: message, Fields: fields, cause: cause}
}

// NewValidation builds a VALIDATION_FAILED error — the only kind that ever
// carries field-level detail (spec §4.6).
func NewValidation(message string, fields ...FieldValidation) *Error {
	return new_(CodeValidationFailed, "Validation Failed", message, nil, fields...)
}

// NewInvariantViolation signals framework misuse: a descriptor registered
// without default search columns, a mid-transaction re-route, a descriptor
// that pairs a fetch-join collection with a subquery field for the same
// path.
func NewInvariantViolation(message string) *Error {
	return new_(CodeInvariantViolation, "Invariant Violation", message, nil)
}

// NewNotFound builds a NOT_FOUND error for an addressable resource.
func NewNotFound(message string) *Error {
	return new_(CodeNotFound, "Not Found", message, nil)
}

// NewConflict builds a CONFLICT error (unique/foreign-key violation).
func NewConflict(message string) *Error {
	return new_(CodeConflict, "Conflict", message, nil)
}

// NewConstraintViolation builds a value-level CONSTRAINT_VIOLATION error.
func NewConstraintViolation(message string) *Error {
	return new_(CodeConstraintViolation, "Constraint Violation", message, nil)
}

// NewUnauthorized builds an UNAUTHORIZED error.
func NewUnauthorized(message string) *Error {
	return new_(CodeUnauthorized, "Unauthorized", message, nil)
}

// NewForbidden builds a FORBIDDEN error.
func NewForbidden(message string) *Error {
	return new_(CodeForbidden, "Forbidden", message, nil)
}

// NewInfrastructureUnavailable builds an INFRASTRUCTURE_UNAVAILABLE error
// (pool exhaustion, connection timeout, external SDK failure).
func NewInfrastructureUnavailable(message string, cause error) *Error {
	return new_(CodeInfrastructureUnavailable, "Infrastructure Unavailable", message, cause)
}

// NewInternal wraps an uncaught/unexpected error.
func NewInternal(cause error) *Error {
	return new_(CodeInternal, "Internal Error", "The server encountered an unexpected error. Please try again later.", cause)
}

// ClassifyPgError maps a Postgres driver error onto the taxonomy by SQLSTATE
// class, the generic analogue of the teacher's per-constraint-name switch in
// services.ValidatePGError — this framework has no fixed entity catalog to
// switch on, only the SQLSTATE the driver reports.
func ClassifyPgError(err error) *Error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return NewInternal(err)
	}

	switch {
	case pgErr.Code == "23505": // unique_violation
		return new_(CodeConflict, "Conflict", "A record with the same unique key already exists.", pgErr)
	case pgErr.Code == "23503": // foreign_key_violation
		return new_(CodeConflict, "Conflict", "The referenced record does not exist.", pgErr)
	case pgErr.Code == "23502", pgErr.Code == "23514": // not_null / check violation
		return new_(CodeConstraintViolation, "Constraint Violation", pgErr.Message, pgErr)
	case strings.HasPrefix(pgErr.Code, "08"): // connection exception class
		return NewInfrastructureUnavailable("database connection unavailable", pgErr)
	default:
		return NewInternal(pgErr)
	}
}

// Envelope is the wire shape of spec §3/§4.6/§6 for an error response.
type Envelope struct {
	Success          bool              `json:"success"`
	ErrorCode        Code              `json:"errorCode"`
	Message          string            `json:"message"`
	Path             string            `json:"path,omitempty"`
	Method           string            `json:"method,omitempty"`
	ClientIP         string            `json:"clientIp,omitempty"`
	TraceID          string            `json:"traceId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []FieldValidation `json:"validationErrors,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

var secretFieldPattern = regexp.MustCompile(`(?i)password|token|secret|key`)

const maskedSentinel = "***MASKED***"
const maxRejectedValueLen = 100

// MaskRejectedValue applies the masking rule from spec §4.6: a field whose
// name looks like a secret is replaced outright; anything else longer than
// 100 characters is truncated.
func MaskRejectedValue(field, value string) string {
	if secretFieldPattern.MatchString(field) {
		return maskedSentinel
	}

	if len(value) > maxRejectedValueLen {
		return value[:maxRejectedValueLen] + "…"
	}

	return value
}

// ToEnvelope renders err into the outbound error envelope. Any error not
// already an *Error is coerced to INTERNAL, matching spec §7's "uncaught/
// unexpected -> INTERNAL" rule.
func ToEnvelope(err error, path, method, clientIP, traceID string, now time.Time) Envelope {
	var e *Error
	if !errors.As(err, &e) {
		e = NewInternal(err)
	}

	fields := make([]FieldValidation, 0, len(e.Fields))

	for _, f := range e.Fields {
		fields = append(fields, FieldValidation{
			Field:         f.Field,
			RejectedValue: MaskRejectedValue(f.Field, f.RejectedValue),
			Message:       f.Message,
			Code:          f.Code,
		})
	}

	return Envelope{
		Success:          false,
		ErrorCode:        e.Code,
		Message:          e.Message,
		Path:             path,
		Method:           method,
		ClientIP:         clientIP,
		TraceID:          traceID,
		Timestamp:        now,
		ValidationErrors: fields,
	}
}
