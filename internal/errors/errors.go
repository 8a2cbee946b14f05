package errors

import (
	"errors"
	"fmt"
)

// Re-exported so callers need a single errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// ErrorCode identifies a class of failure across packages.
type ErrorCode string

// Error is a coded error. Two Errors match under errors.Is when their codes
// are equal, so a bare Factory.New(code) works as a sentinel.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	Data() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

type coded struct {
	code  ErrorCode
	msg   string
	cause error
	data  any
}

func (e *coded) Error() string {
	msg := e.msg
	if msg == "" {
		msg = GetErrorMessage(e.code)
	}
	switch {
	case e.data != nil:
		return fmt.Sprintf("%s: %v", msg, e.data)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *coded) Code() ErrorCode { return e.code }
func (e *coded) Data() any       { return e.data }
func (e *coded) Unwrap() error   { return e.cause }

func (e *coded) WithMessage(msg string) Error {
	c := *e
	c.msg = msg
	return &c
}

func (e *coded) WithData(data any) Error {
	c := *e
	c.data = data
	return &c
}

func (e *coded) Is(target error) bool {
	t, ok := target.(*coded)
	return ok && t.code == e.code
}

type factory struct{}

func (factory) New(code ErrorCode) Error             { return &coded{code: code} }
func (factory) Wrap(code ErrorCode, err error) Error { return &coded{code: code, cause: err} }

func (factory) WithMessage(code ErrorCode, msg string) Error {
	return &coded{code: code, msg: msg}
}

func (factory) WithData(code ErrorCode, data any) Error {
	return &coded{code: code, data: data}
}

// New returns the error Factory.
func New() Factory {
	return factory{}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &coded{code: code})
}

// CodeOf returns the code of the outermost coded error in err's chain, or
// ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var c Error
	if errors.As(err, &c) {
		return c.Code()
	}
	return ErrInternal
}
