package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by WarrantyService wraps exactly one of
// them; callers classify with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrInvalidDate = errors.New("invalid date")
	ErrNotFound    = errors.New("not found")
	ErrRemoteCall  = errors.New("metafield store call failed")
)

// Messages returned verbatim to the embedded admin page.
const (
	MsgDeleteRequiredFields = "customerId and order_id are required fields"
	MsgWarrantyNotFound     = "warranty information not found"
)

// Error is a classified service failure. Message is safe to show to the
// caller; Err is the underlying cause, if any.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationError(msg string) *Error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func invalidDateError(err error) *Error {
	return &Error{Kind: ErrInvalidDate, Message: err.Error()}
}

func notFoundError(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func remoteError(msg string, err error) *Error {
	return &Error{Kind: ErrRemoteCall, Message: msg, Err: err}
}
