package proc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies evaluation failures. Every kind is terminal for the
// evaluation that produced it. ErrorKind implements error so that callers
// can test for a kind with errors.Is(err, proc.Unreadable).
type ErrorKind uint8

const (
	SyntaxError ErrorKind = iota + 1
	NotFound
	IncompleteType
	NoSuchMember
	TypeMismatch
	AddressOverflow
	DivideByZero
	Unreadable
	StaleContext
	Timeout
	ProcessError
	ReadOnly
	IndexOutOfBounds
)

var errorKindNames = map[ErrorKind]string{
	SyntaxError:      "syntax error",
	NotFound:         "not found",
	IncompleteType:   "incomplete type",
	NoSuchMember:     "no such member",
	TypeMismatch:     "type mismatch",
	AddressOverflow:  "address overflow",
	DivideByZero:     "divide by zero",
	Unreadable:       "unreadable memory",
	StaleContext:     "stale context",
	Timeout:          "evaluation timeout",
	ProcessError:     "process error",
	ReadOnly:         "read-only memory",
	IndexOutOfBounds: "index out of bounds",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

func (k ErrorKind) Error() string { return k.String() }

// EvalError is the error returned by every failing evaluation. It carries
// the kind of the failure and, when known, the span of the expression that
// caused it.
type EvalError struct {
	Kind ErrorKind
	Msg  string
	Err  error

	// Expr is the full expression text, Pos and End the byte offsets of the
	// failing sub-expression within it. Pos is -1 when the failure is not
	// attributable to a node.
	Expr     string
	Pos, End int
}

func (e *EvalError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil && e.Msg != "" {
		msg += ": " + e.Err.Error()
	} else if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Pos < 0 || e.Expr == "" {
		return msg
	}
	end := e.End
	if end > len(e.Expr) || end < e.Pos {
		end = len(e.Expr)
	}
	if e.Kind == SyntaxError || e.Pos == end {
		return fmt.Sprintf("%s at offset %d in expression %q", msg, e.Pos, e.Expr)
	}
	return fmt.Sprintf("%s at offset %d in expression %q (%q)", msg, e.Pos, e.Expr, e.Expr[e.Pos:end])
}

func (e *EvalError) Unwrap() error { return e.Err }

// Is reports whether target is the kind of e.
func (e *EvalError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) *EvalError {
	return &EvalError{Kind: kind, Msg: fmt.Sprintf(format, args...), Pos: -1}
}

func wrapError(kind ErrorKind, err error, format string, args ...interface{}) *EvalError {
	return &EvalError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err, Pos: -1}
}

// KindOf returns the ErrorKind of err, zero if err carries none.
func KindOf(err error) ErrorKind {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return 0
}

// asEvalError converts err into an *EvalError, classifying errors that do
// not carry a kind as def.
func asEvalError(err error, def ErrorKind) *EvalError {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee
	}
	if k := KindOf(err); k != 0 {
		return &EvalError{Kind: k, Err: err, Pos: -1}
	}
	return &EvalError{Kind: def, Err: err, Pos: -1}
}
