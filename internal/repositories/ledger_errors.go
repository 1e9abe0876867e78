package repositories

import "fmt"

// LedgerErrorCode enumerates store-independent failure causes.
type LedgerErrorCode string

const (
	// LedgerErrorNotFound indicates the requested record does not exist.
	LedgerErrorNotFound LedgerErrorCode = "ledger_not_found"
	// LedgerErrorConflict indicates a concurrent writer invalidated the transaction or a duplicate insert.
	LedgerErrorConflict LedgerErrorCode = "ledger_conflict"
	// LedgerErrorUnavailable indicates the store could not serve the request.
	LedgerErrorUnavailable LedgerErrorCode = "ledger_unavailable"
)

// LedgerError implements RepositoryError for ledger adapters that do not produce their own errors.
type LedgerError struct {
	Op      string
	Code    LedgerErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *LedgerError) IsNotFound() bool    { return e != nil && e.Code == LedgerErrorNotFound }
func (e *LedgerError) IsConflict() bool    { return e != nil && e.Code == LedgerErrorConflict }
func (e *LedgerError) IsUnavailable() bool { return e != nil && e.Code == LedgerErrorUnavailable }

// NewLedgerError constructs a typed ledger error.
func NewLedgerError(op string, code LedgerErrorCode, message string) *LedgerError {
	if message == "" {
		message = string(code)
	}
	return &LedgerError{Op: op, Code: code, Message: message}
}

// NotFound is shorthand for a LedgerErrorNotFound error.
func NotFound(op, format string, args ...any) *LedgerError {
	return NewLedgerError(op, LedgerErrorNotFound, fmt.Sprintf(format, args...))
}
