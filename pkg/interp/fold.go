package interp

import (
	"context"
	"fmt"

	"github.com/vito/sheetc/pkg/formula"
)

// accumulator mirrors one running fold.
type accumulator struct {
	in     *Interpreter
	def    *formula.FoldDef
	accs   []any
	seeded bool
	folded int
}

func (in *Interpreter) start(ctx context.Context, env *Env, def *formula.FoldDef, inits []formula.Node, folded int) (*accumulator, error) {
	acc := &accumulator{in: in, def: def, folded: folded}
	if len(inits) == 1 && inits[0] == nil {
		return acc, nil
	}
	for _, init := range inits {
		v, err := in.eval(ctx, env, init)
		if err != nil {
			return nil, err
		}
		acc.accs = append(acc.accs, arrayElement(v))
	}
	acc.seeded = true
	return acc, nil
}

func (a *accumulator) step(ctx context.Context, env *Env, elts []any, extraNames []string, extraVals []any) error {
	if len(elts) != len(a.def.Elements) {
		return fmt.Errorf("%d elements for %d element names", len(elts), len(a.def.Elements))
	}
	if !a.seeded {
		if len(elts) == 0 {
			return fmt.Errorf("reduction without an element name")
		}
		a.accs = []any{elts[0]}
		a.seeded = true
		a.folded++
		return nil
	}
	scope := env.SetAll(a.def.AccumulatorNames(), a.accs).SetAll(a.def.Elements, elts)
	if a.def.Index != "" {
		scope = scope.Set(a.def.Index, float64(a.folded+1))
	}
	scope = scope.SetAll(extraNames, extraVals)
	next := make([]any, len(a.def.Accumulators))
	for i, acc := range a.def.Accumulators {
		v, err := a.in.eval(ctx, scope, acc.Step)
		if err != nil {
			return err
		}
		next[i] = arrayElement(v)
	}
	a.accs = next
	a.folded++
	return nil
}

func (a *accumulator) result(ctx context.Context, env *Env) (any, error) {
	if a.folded == 0 && a.def.WhenEmpty != nil {
		return a.in.eval(ctx, env, a.def.WhenEmpty)
	}
	if !a.seeded {
		return nil, nil
	}
	if a.def.Merge == nil {
		return a.accs[0], nil
	}
	scope := env.SetAll(a.def.AccumulatorNames(), a.accs)
	if a.def.Count != "" {
		scope = scope.Set(a.def.Count, float64(a.folded))
	}
	return a.in.eval(ctx, scope, a.def.Merge)
}

func (in *Interpreter) foldElements(ctx context.Context, env *Env, def *formula.FoldDef, inits []formula.Node, folded int, elements []formula.Node) (any, error) {
	acc, err := in.start(ctx, env, def, inits, folded)
	if err != nil {
		return nil, err
	}
	for _, el := range elements {
		v, err := in.eval(ctx, env, el)
		if err != nil {
			return nil, err
		}
		for _, x := range flatten(v) {
			if err := acc.step(ctx, env, []any{x}, nil, nil); err != nil {
				return nil, err
			}
		}
	}
	return acc.result(ctx, env)
}

func (in *Interpreter) foldArray(ctx context.Context, env *Env, n *formula.FoldArray) (any, error) {
	v, err := in.eval(ctx, env, n.Array)
	if err != nil {
		return nil, err
	}
	acc, err := in.start(ctx, env, n.Def, n.Def.Inits(nil), 0)
	if err != nil {
		return nil, err
	}
	for _, x := range flatten(v) {
		if err := acc.step(ctx, env, []any{x}, nil, nil); err != nil {
			return nil, err
		}
	}
	return acc.result(ctx, env)
}

func (in *Interpreter) foldVectors(ctx context.Context, env *Env, n *formula.FoldVectors) (any, error) {
	if len(n.Vectors) == 0 || len(n.Vectors) != len(n.Def.Elements) {
		return nil, fmt.Errorf("%d vectors for %d element names", len(n.Vectors), len(n.Def.Elements))
	}
	vecs := make([][]any, len(n.Vectors))
	for i, vn := range n.Vectors {
		v, err := in.eval(ctx, env, vn)
		if err != nil {
			return nil, err
		}
		vecs[i] = flatten(v)
		if len(vecs[i]) != len(vecs[0]) {
			return nil, fmt.Errorf("vector %d has %d elements, vector 1 has %d", i+1, len(vecs[i]), len(vecs[0]))
		}
	}
	acc, err := in.start(ctx, env, n.Def, n.Def.Inits(n.Seeds), n.Folded)
	if err != nil {
		return nil, err
	}
	for pos := range vecs[0] {
		tuple := make([]any, len(vecs))
		for i := range vecs {
			tuple[i] = vecs[i][pos]
		}
		if err := acc.step(ctx, env, tuple, nil, nil); err != nil {
			return nil, err
		}
	}
	return acc.result(ctx, env)
}

func (in *Interpreter) foldDatabase(ctx context.Context, env *Env, n *formula.FoldDatabase) (any, error) {
	v, err := in.eval(ctx, env, n.Table)
	if err != nil {
		return nil, err
	}
	table, ok := v.(*formula.Array)
	if !ok {
		return nil, fmt.Errorf("database table is %s, not an array", formula.FormatValue(v))
	}
	if table.Cols != len(n.Columns) {
		return nil, fmt.Errorf("table has %d columns, %d are named", table.Cols, len(n.Columns))
	}
	if n.FoldColumn < 0 || n.FoldColumn >= table.Cols {
		return nil, fmt.Errorf("fold column %d of %d", n.FoldColumn+1, table.Cols)
	}
	acc, err := in.start(ctx, env, n.Def, n.Def.Inits(n.Seeds), n.Folded)
	if err != nil {
		return nil, err
	}
	for r := 0; r < table.Rows; r++ {
		row := make([]any, table.Cols)
		for c := range row {
			row[c] = table.At(r, c)
		}
		if n.Filter != nil {
			f, err := in.eval(ctx, env.SetAll(n.Columns, row), n.Filter)
			if err != nil {
				return nil, err
			}
			pass, err := in.engine.ToBoolean(f)
			if err != nil {
				return nil, fmt.Errorf("filtering row %d: %w", r+1, err)
			}
			if !pass {
				continue
			}
		}
		var elts []any
		if len(n.Def.Elements) > 0 {
			elts = []any{row[n.FoldColumn]}
		}
		if err := acc.step(ctx, env, elts, n.Columns, row); err != nil {
			return nil, err
		}
	}
	return acc.result(ctx, env)
}
