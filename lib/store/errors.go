package store

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid input, e.g. an unknown collection.
	RetCConnectionError                     // 4: Opening or upgrading the database failed.
	RetCDuplicateKey                        // 5: A document with the same _id exists.
	RetCTransactionError                    // 6: The transaction of the operation failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConnectionError:
		return "ConnectionError"
	case RetCDuplicateKey:
		return "DuplicateKey"
	case RetCTransactionError:
		return "TransactionError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code, a message and optionally the error that caused it.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	Cause error   // The underlying error, may be nil
}

// Sentinel errors for matching with errors.Is, only the code is compared.
var (
	ErrInternal             = &Error{Code: RetCInternalError}
	ErrUnsupportedOperation = &Error{Code: RetCUnsupportedOperation}
	ErrInvalidOperation     = &Error{Code: RetCInvalidOperation}
	ErrConnection           = &Error{Code: RetCConnectionError}
	ErrDuplicateKey         = &Error{Code: RetCDuplicateKey}
	ErrTransaction          = &Error{Code: RetCTransactionError}
)

func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Detail())
}

// Detail returns the message followed by the cause, without the code.
func (e *Error) Detail() string {
	switch {
	case e.Cause == nil:
		return e.Msg
	case e.Msg == "":
		return e.Cause.Error()
	default:
		return e.Msg + ": " + e.Cause.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error that keeps cause as the underlying error.
func WrapError(code RetCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		Cause: cause,
	}
}
