package compiler

import "fmt"

// ErrorKind classifies a compile error.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrUndefinedVariable
	ErrUndefinedFunction
	ErrUnknownOperator
	ErrRegisterOverflow
	ErrUnsupportedConstruct
)

// String returns the name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "SyntaxError"
	case ErrUndefinedVariable:
		return "UndefinedVariable"
	case ErrUndefinedFunction:
		return "UndefinedFunction"
	case ErrUnknownOperator:
		return "UnknownOperator"
	case ErrRegisterOverflow:
		return "RegisterOverflow"
	case ErrUnsupportedConstruct:
		return "UnsupportedConstruct"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a compile-time error with a source position.
type Error struct {
	Kind ErrorKind
	Pos  Position
	Msg  string
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, pos Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// ErrorKindOf returns the kind of a compile error.
// The second return is false if err is not an *Error.
func ErrorKindOf(err error) (ErrorKind, bool) {
	if e, ok := err.(*Error); ok {
		return e.Kind, true
	}
	return 0, false
}
