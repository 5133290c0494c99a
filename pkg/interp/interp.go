// Package interp evaluates expression trees at runtime. It is the
// reference the optimizer's residual trees are checked against: an
// optimized tree must evaluate to the same value as the tree it came
// from.
package interp

import (
	"context"
	"fmt"
	"math"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/numeric"
)

// splice is the value of a substitution: its elements are spliced into
// the enclosing argument list.
type splice []any

type Interpreter struct {
	engine numeric.Engine
	inputs Inputs
	// visiting guards against circular cell references.
	visiting map[*formula.Cell]bool
}

func New(engine numeric.Engine, inputs Inputs) *Interpreter {
	return &Interpreter{
		engine:   engine,
		inputs:   inputs,
		visiting: map[*formula.Cell]bool{},
	}
}

// Eval evaluates expr as the formula of origin, which may be nil.
func (in *Interpreter) Eval(ctx context.Context, expr formula.Node, origin *formula.Cell) (any, error) {
	v, err := in.eval(ctx, &Env{origin: origin}, expr)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(splice); ok {
		return formula.NewArray(1, len(s), s), nil
	}
	return v, nil
}

// EvalCell evaluates a cell's value.
func (in *Interpreter) EvalCell(ctx context.Context, cell *formula.Cell) (any, error) {
	return in.Eval(ctx, &formula.CellRef{Cell: cell}, cell)
}

func (in *Interpreter) eval(ctx context.Context, env *Env, n formula.Node) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *formula.Constant:
		return n.Value, nil
	case *formula.Operator:
		args, err := in.evalArgs(ctx, env, n.Operands)
		if err != nil {
			return nil, err
		}
		return in.computed(n, func() (any, error) {
			return in.engine.ComputeOperator(n.Op, args...)
		})
	case *formula.Function:
		return in.function(ctx, env, n)
	case *formula.CellRef:
		return in.cell(ctx, env, n.Cell)
	case *formula.Range:
		vals := make([]any, len(n.Elements))
		for i, el := range n.Elements {
			v, err := in.eval(ctx, env, el)
			if err != nil {
				return nil, err
			}
			vals[i] = arrayElement(v)
		}
		return formula.NewArray(n.Rows, n.Cols, vals), nil
	case *formula.Substitution:
		vals := make(splice, 0, len(n.Elements))
		for _, el := range n.Elements {
			v, err := in.eval(ctx, env, el)
			if err != nil {
				return nil, err
			}
			if s, ok := v.(splice); ok {
				vals = append(vals, s...)
				continue
			}
			vals = append(vals, v)
		}
		return vals, nil
	case *formula.Let:
		v, err := in.eval(ctx, env, n.Value)
		if err != nil {
			return nil, err
		}
		return in.eval(ctx, env.Set(n.Name, v), n.In)
	case *formula.LetVar:
		v, ok := env.Get(n.Name)
		if !ok {
			return nil, fmt.Errorf("unbound name %q", n.Name)
		}
		return v, nil
	case *formula.Switch:
		sel, err := in.eval(ctx, env, n.Selector)
		if err != nil {
			return nil, err
		}
		k := in.engine.ToInt(sel, math.MinInt)
		for _, c := range n.Cases {
			if c.Matches(k) {
				return in.eval(ctx, env, c.Branch)
			}
		}
		return in.eval(ctx, env, n.Default)
	case *formula.SwitchCase:
		return in.eval(ctx, env, n.Branch)
	case *formula.ParentSection:
		return in.eval(ctx, env.outerRow(), n.Inner)
	case *formula.SubSection:
		var vals splice
		for _, r := range in.inputs.Sections[n.Section] {
			rowEnv := env.withRow(r)
			for _, el := range n.Elements {
				v, err := in.eval(ctx, rowEnv, el)
				if err != nil {
					return nil, err
				}
				if s, ok := v.(splice); ok {
					vals = append(vals, s...)
					continue
				}
				vals = append(vals, v)
			}
		}
		return vals, nil
	case *formula.Count:
		total := n.Static
		for _, arg := range n.Arguments[:formula.Cardinality(n.Arguments)] {
			if arg == nil {
				continue
			}
			total += in.count(arg)
		}
		return float64(total), nil
	case *formula.Fold:
		return in.foldElements(ctx, env, n.Def, n.Def.Inits(n.Seeds), n.Folded, n.Elements)
	case *formula.FoldList:
		return in.foldElements(ctx, env, n.Def, n.Def.Inits(n.Seeds), n.Folded, n.Elements)
	case *formula.Reduce:
		return in.foldElements(ctx, env, n.Def, []formula.Node{n.Seed}, n.Folded, n.Elements)
	case *formula.FoldArray:
		return in.foldArray(ctx, env, n)
	case *formula.FoldVectors:
		return in.foldVectors(ctx, env, n)
	case *formula.FoldDatabase:
		return in.foldDatabase(ctx, env, n)
	default:
		return nil, fmt.Errorf("cannot evaluate %T", n)
	}
}

// evalArgs evaluates arguments up to their cardinality, splicing
// substitutions into the list.
func (in *Interpreter) evalArgs(ctx context.Context, env *Env, nodes []formula.Node) ([]any, error) {
	var args []any
	for _, n := range nodes[:formula.Cardinality(nodes)] {
		v, err := in.eval(ctx, env, n)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(splice); ok {
			args = append(args, s...)
			continue
		}
		args = append(args, v)
	}
	return args, nil
}

// computed normalizes a computed value the way constants are normalized.
func (in *Interpreter) computed(n formula.Node, compute func() (any, error)) (any, error) {
	v, err := compute()
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", n, err)
	}
	return in.engine.AdjustConstantValue(v), nil
}

func (in *Interpreter) cell(ctx context.Context, env *Env, cell *formula.Cell) (any, error) {
	if v, ok := env.cellValue(cell); ok {
		return v, nil
	}
	if cell.Input {
		v, ok := in.inputs.Cells[cell]
		if !ok {
			return nil, fmt.Errorf("no value for input %s", cell)
		}
		return v, nil
	}
	switch {
	case cell.Expr != nil:
		if in.visiting[cell] {
			return nil, fmt.Errorf("circular reference to %s", cell)
		}
		in.visiting[cell] = true
		defer delete(in.visiting, cell)
		return in.eval(ctx, &Env{origin: cell, row: env.row}, cell.Expr)
	case cell.Value != nil:
		v := cell.Value
		if b, ok := v.(bool); ok {
			v = 0.0
			if b {
				v = 1.0
			}
		}
		return in.engine.AdjustConstantValue(v), nil
	default:
		return nil, nil
	}
}

func (in *Interpreter) function(ctx context.Context, env *Env, n *formula.Function) (any, error) {
	switch n.Fn {
	case formula.IF:
		return in.ifFunction(ctx, env, n)
	case formula.AND, formula.OR:
		return in.boolSeq(ctx, env, n)
	case formula.ROW, formula.COLUMN:
		if v, ok := position(env, n); ok {
			return v, nil
		}
	}
	args, err := in.evalArgs(ctx, env, n.Arguments)
	if err != nil {
		return nil, err
	}
	return in.computed(n, func() (any, error) {
		return in.engine.ComputeFunction(n.Fn, args...)
	})
}

func position(env *Env, n *formula.Function) (float64, bool) {
	var addr formula.Address
	switch formula.Cardinality(n.Arguments) {
	case 0:
		if env.origin == nil {
			return 0, false
		}
		addr = env.origin.Addr
	case 1:
		ref, ok := n.Arguments[0].(*formula.CellRef)
		if !ok {
			return 0, false
		}
		addr = ref.Cell.Addr
	default:
		return 0, false
	}
	if n.Fn == formula.ROW {
		return float64(addr.Row), true
	}
	return float64(addr.Col), true
}

func (in *Interpreter) ifFunction(ctx context.Context, env *Env, n *formula.Function) (any, error) {
	args := n.Arguments
	if formula.Cardinality(args) == 0 {
		return in.computed(n, func() (any, error) {
			return in.engine.ComputeFunction(formula.IF)
		})
	}
	cond, err := in.eval(ctx, env, args[0])
	if err != nil {
		return nil, err
	}
	b, err := in.engine.ToBoolean(cond)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", n, err)
	}
	branch, missing := 1, any(0.0)
	if !b {
		branch, missing = 2, any(false)
	}
	if branch >= len(args) || args[branch] == nil {
		return missing, nil
	}
	return in.eval(ctx, env, args[branch])
}

// boolSeq evaluates AND and OR left to right, stopping at the first
// argument that decides the result.
func (in *Interpreter) boolSeq(ctx context.Context, env *Env, n *formula.Function) (any, error) {
	decisive := n.Fn == formula.OR
	for _, arg := range n.Arguments {
		if arg == nil {
			continue
		}
		v, err := in.eval(ctx, env, arg)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(splice); ok {
			v = formula.NewArray(1, len(s), s)
		}
		if _, ok := v.(*formula.Array); ok {
			v, err = in.engine.ComputeFunction(n.Fn, v)
			if err != nil {
				return nil, fmt.Errorf("evaluating %s: %w", n, err)
			}
		}
		b, err := in.engine.ToBoolean(v)
		if err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", n, err)
		}
		if b == decisive {
			return decisive, nil
		}
	}
	return !decisive, nil
}

// count sizes an argument of COUNT by its shape.
func (in *Interpreter) count(n formula.Node) int {
	switch n := n.(type) {
	case *formula.SubSection:
		per := 0
		for _, el := range n.Elements {
			per += in.count(el)
		}
		return per * len(in.inputs.Sections[n.Section])
	case *formula.Range, *formula.Substitution:
		total := 0
		for _, el := range n.Args() {
			if el == nil {
				total++
				continue
			}
			total += in.count(el)
		}
		return total
	case *formula.ParentSection:
		return in.count(n.Inner)
	default:
		return 1
	}
}

// arrayElement stores a value inside an array: spliced values become
// nested arrays.
func arrayElement(v any) any {
	if s, ok := v.(splice); ok {
		return formula.NewArray(1, len(s), s)
	}
	return v
}

// flatten splices arrays and substitutions into a flat element list.
func flatten(v any) []any {
	switch x := v.(type) {
	case splice:
		var out []any
		for _, el := range x {
			out = append(out, flatten(el)...)
		}
		return out
	case *formula.Array:
		var out []any
		for _, el := range x.Values {
			out = append(out, flatten(el)...)
		}
		return out
	default:
		return []any{v}
	}
}
