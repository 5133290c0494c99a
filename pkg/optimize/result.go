package optimize

import (
	"github.com/vito/sheetc/pkg/formula"
)

// Result is what evaluating a shadow node yields: either a constant value
// with its data type, or a residual expression that still has to be
// computed at runtime.
type Result struct {
	node  formula.Node
	value any
	typ   formula.DataType
	// constant caches the aggregate constancy of node.
	constant bool
}

// Const is a folded constant.
func Const(v any, t formula.DataType) Result {
	if t == formula.Unknown {
		t = formula.TypeOf(v)
	}
	return Result{value: v, typ: t, constant: true}
}

// Dynamic wraps an expression node. Constant nodes are unwrapped into
// constant results.
func Dynamic(n formula.Node) Result {
	if c, ok := n.(*formula.Constant); ok {
		return Const(c.Value, c.DataType)
	}
	return Result{node: n, typ: n.Type(), constant: aggregateConstant(n)}
}

// aggregateConstant reports whether n is a range or substitution made
// only of constants, recursively. Those nodes are values that have not
// been materialized yet rather than runtime dependencies.
func aggregateConstant(n formula.Node) bool {
	switch n.(type) {
	case *formula.Range, *formula.Substitution:
	default:
		return false
	}
	for _, el := range n.Args() {
		switch el := el.(type) {
		case nil:
			return false
		case *formula.Constant:
		default:
			if !aggregateConstant(el) {
				return false
			}
		}
	}
	return true
}

// IsConstant reports whether the result is known at compile time, either
// as a plain value or as an aggregate of constants.
func (r Result) IsConstant() bool {
	return r.node == nil || r.constant
}

// HasConstantValue reports whether the result is a plain value.
func (r Result) HasConstantValue() bool {
	return r.node == nil
}

// ConstantValue returns the plain value. It panics on residual results.
func (r Result) ConstantValue() any {
	if r.node != nil {
		panic("ConstantValue on residual result " + r.node.String())
	}
	return r.value
}

func (r Result) DataType() formula.DataType {
	return r.typ
}

// Node returns the result as an expression node.
func (r Result) Node() formula.Node {
	if r.node == nil {
		return &formula.Constant{Value: r.value, DataType: r.typ}
	}
	return r.node
}

// Value materializes a constant result: plain values as they are,
// aggregates as *formula.Array.
func (r Result) Value() any {
	if r.node == nil {
		return r.value
	}
	if !r.constant {
		panic("Value on residual result " + r.node.String())
	}
	return materialize(r.node)
}

func materialize(n formula.Node) any {
	switch n := n.(type) {
	case nil:
		return nil
	case *formula.Constant:
		return n.Value
	case *formula.Range:
		vals := make([]any, len(n.Elements))
		for i, el := range n.Elements {
			vals[i] = materialize(el)
		}
		return formula.NewArray(n.Rows, n.Cols, vals)
	default:
		vals := make([]any, len(n.Args()))
		for i, el := range n.Args() {
			vals[i] = materialize(el)
		}
		return formula.NewArray(1, len(vals), vals)
	}
}

// Elements returns the element results of an aggregate result, or false
// when it is not a range or substitution.
func (r Result) Elements() ([]Result, bool) {
	switch r.node.(type) {
	case *formula.Range, *formula.Substitution:
	default:
		return nil, false
	}
	args := r.node.Args()
	els := make([]Result, len(args))
	for i, a := range args {
		if a == nil {
			els[i] = Const(nil, formula.Null)
			continue
		}
		els[i] = Dynamic(a)
	}
	return els, true
}

func (r Result) String() string {
	return r.Node().String()
}

// allConstant reports whether every result is constant.
func allConstant(rs []Result) bool {
	for _, r := range rs {
		if !r.IsConstant() {
			return false
		}
	}
	return true
}

// values flattens constant results into computation arguments:
// substitutions are spliced in place, ranges become arrays.
func values(rs []Result) []any {
	vals := make([]any, 0, len(rs))
	for _, r := range rs {
		if _, ok := r.node.(*formula.Substitution); ok {
			els, _ := r.Elements()
			vals = append(vals, values(els)...)
			continue
		}
		vals = append(vals, r.Value())
	}
	return vals
}
