// Package numeric defines how operators and functions compute over
// concrete values. The optimizer only consumes the Engine interface.
package numeric

import (
	"errors"

	"github.com/vito/sheetc/pkg/formula"
)

// Expected failures. A computation failing with one of these is not an
// error in the formula at compile time; it only means the value cannot be
// folded and has to be computed at runtime.
var (
	// ErrDomain is an argument outside a function's domain, e.g. the
	// square root of a negative number or text where a number is needed.
	ErrDomain = errors.New("domain error")
	// ErrArithmetic is an arithmetic fault such as division by zero.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrEnvironment means the result depends on the runtime environment.
	ErrEnvironment = errors.New("result depends on the runtime environment")
)

// Foldability classifies a computation error.
type Foldability int

const (
	// Computed means there was no error.
	Computed Foldability = iota
	// NotFoldable is an expected failure: leave the computation to runtime.
	NotFoldable
	// Failed is a hard error.
	Failed
)

// Classify returns how a computation error affects folding.
func Classify(err error) Foldability {
	switch {
	case err == nil:
		return Computed
	case errors.Is(err, ErrDomain), errors.Is(err, ErrArithmetic), errors.Is(err, ErrEnvironment):
		return NotFoldable
	default:
		return Failed
	}
}

// Engine computes operators and functions over concrete values: float64,
// string, bool, nil and *formula.Array.
type Engine interface {
	ComputeOperator(op formula.Op, args ...any) (any, error)
	ComputeFunction(fn formula.Func, args ...any) (any, error)
	ToBoolean(v any) (bool, error)
	ToInt(v any, def int) int
	// AdjustConstantValue normalizes a computed constant before it is
	// baked into the tree.
	AdjustConstantValue(v any) any
	// IsVolatile reports functions that reflect external state and must
	// never be folded.
	IsVolatile(fn formula.Func) bool
}
