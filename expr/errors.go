package expr

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	SyntaxError ErrorKind = iota
	ReferenceError
	TypeError
	RangeError
)

func (k ErrorKind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case ReferenceError:
		return "ReferenceError"
	case TypeError:
		return "TypeError"
	case RangeError:
		return "RangeError"
	default:
		return "Error"
	}
}

var (
	ErrNotCallable = errors.New("expr: value is not callable")
	ErrPanic       = errors.New("expr: panic during evaluation")
)

// Error is a positioned syntax or runtime error.
type Error struct {
	Kind ErrorKind
	Pos  int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func syntaxErrorf(pos int, format string, args ...any) *Error {
	return &Error{Kind: SyntaxError, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func referenceErrorf(pos int, format string, args ...any) *Error {
	return &Error{Kind: ReferenceError, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func typeErrorf(pos int, format string, args ...any) *Error {
	return &Error{Kind: TypeError, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// wrapNative positions an error raised by a native function or a rejected
// promise. The original stays reachable through errors.Is.
func wrapNative(pos int, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: TypeError, Pos: pos, Msg: err.Error(), Err: err}
}
