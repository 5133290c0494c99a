package optimize

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/vito/sheetc/pkg/formula"
)

// Kinds of user-facing compile errors. They abort the optimization of the
// formula they occur in; match them with errors.Is.
var (
	ErrUnsupported     = errors.New("unsupported expression")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrRefOutOfRange   = errors.New("reference out of range")
	ErrShapeMismatch   = errors.New("shape mismatch")
)

// Error is a compile error located at the subtree that caused it.
type Error struct {
	Err  error
	Node formula.Node
	// Cell is the cell whose formula was being optimized, if any.
	Cell *formula.Cell
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Node != nil {
		msg = fmt.Sprintf("%s in %s", msg, e.Node)
	}
	if e.Cell != nil {
		msg = e.Cell.String() + ": " + msg
	}
	return msg
}

func (env *Env) errorf(n formula.Node, kind error, format string, args ...any) error {
	return &Error{
		Err:  errors.WithMessagef(kind, format, args...),
		Node: n,
		Cell: env.Origin,
	}
}
