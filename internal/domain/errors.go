package domain

import "errors"

// ErrorKind classifies failures for callers and transports.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindInvalidInput    ErrorKind = "invalid_input"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindConflict        ErrorKind = "conflict"
	KindUpstream        ErrorKind = "upstream"
	KindInternal        ErrorKind = "internal"
)

// Error is a classified failure with a machine-readable code.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrEntryNotFound = newError(KindNotFound, "entry_not_found", "entry not found")
	ErrPayerNotFound = newError(KindNotFound, "payer_not_found", "payer not found")

	ErrInvalidStatus        = newError(KindInvalidInput, "invalid_status", "invalid status value")
	ErrInvalidAmount        = newError(KindInvalidInput, "invalid_amount", "amount must be a non-negative number")
	ErrInvalidPeriod        = newError(KindInvalidInput, "invalid_period", "malformed billing period")
	ErrInvalidPaymentMethod = newError(KindInvalidInput, "invalid_payment_method", "unknown payment method")
	ErrInvalidKind          = newError(KindInvalidInput, "invalid_ledger", "unknown ledger kind")
	ErrInvalidRequest       = newError(KindInvalidInput, "invalid_request", "malformed request")

	ErrUnauthenticated = newError(KindUnauthenticated, "unauthenticated", "authentication required")
	ErrUnauthorized    = newError(KindUnauthorized, "unauthorized", "caller may not perform this action")

	ErrAlreadyPaid = newError(KindConflict, "already_paid", "entry is already paid")
	// ErrDuplicatePeriod is raised by the store's (kind, payer, period) uniqueness constraint.
	ErrDuplicatePeriod = newError(KindConflict, "duplicate_period", "an entry already exists for this payer and period")

	ErrUpstream = newError(KindUpstream, "upstream_failure", "collaborator failure")
)

// KindOf returns the classification of err, KindInternal when unclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine code of err, "internal" when unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
