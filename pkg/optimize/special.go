package optimize

import (
	"context"
	"math"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/numeric"
)

// ifEval evaluates only the branch a constant condition selects.
type ifEval struct {
	base
}

func (e *ifEval) Eval(ctx context.Context, env *Env) (Result, error) {
	if formula.Cardinality(e.node.Args()) == 0 || e.args[0] == nil {
		return e.evalGeneric(ctx, env, e.compute(env))
	}
	cond, err := e.args[0].Eval(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if cond.HasConstantValue() {
		b, err := env.engine().ToBoolean(cond.ConstantValue())
		switch numeric.Classify(err) {
		case numeric.Computed:
			branch, missing := 1, Const(0.0, formula.Numeric)
			if !b {
				branch, missing = 2, Const(false, formula.Numeric)
			}
			if branch >= len(e.args) || e.args[branch] == nil {
				return missing, nil
			}
			return e.args[branch].Eval(ctx, env)
		case numeric.Failed:
			return Result{}, err
		}
	}
	return e.evalGeneric(ctx, env, e.compute(env), cond)
}

func (e *ifEval) compute(env *Env) func([]Result) (any, error) {
	return func(args []Result) (any, error) {
		return env.engine().ComputeFunction(formula.IF, values(args)...)
	}
}

// boolSeqEval short-circuits AND and OR from left to right. Constants
// that do not decide the result are dropped from the residual.
type boolSeqEval struct {
	base
}

func (e *boolSeqEval) Eval(ctx context.Context, env *Env) (Result, error) {
	fn := e.node.(*formula.Function).Fn
	decisive := fn == formula.OR
	var rest []formula.Node
	for i := 0; i < formula.Cardinality(e.node.Args()); i++ {
		if e.args[i] == nil {
			continue
		}
		r, err := e.args[i].Eval(ctx, env)
		if err != nil {
			return Result{}, err
		}
		if r.IsConstant() {
			b, ok, err := env.truth(fn, r)
			if err != nil {
				return Result{}, err
			}
			if ok {
				if b == decisive {
					return Const(decisive, formula.Numeric), nil
				}
				continue
			}
		}
		rest = append(rest, r.Node())
	}
	if len(rest) == 0 {
		return Const(!decisive, formula.Numeric), nil
	}
	return Dynamic(e.node.With(rest)), nil
}

// truth converts a constant argument of AND/OR. ok is false when the
// conversion has to be left to runtime.
func (env *Env) truth(fn formula.Func, r Result) (bool, bool, error) {
	var b bool
	var err error
	if r.HasConstantValue() {
		b, err = env.engine().ToBoolean(r.ConstantValue())
	} else {
		var v any
		v, err = env.engine().ComputeFunction(fn, r.Value())
		if err == nil {
			b, err = env.engine().ToBoolean(v)
		}
	}
	switch numeric.Classify(err) {
	case numeric.NotFoldable:
		return false, false, nil
	case numeric.Failed:
		return false, false, err
	}
	return b, true, nil
}

// indexEval resolves INDEX with constant indices directly into the
// referenced range, evaluating only the selected element.
type indexEval struct {
	base
}

func (e *indexEval) Eval(ctx context.Context, env *Env) (Result, error) {
	n := formula.Cardinality(e.node.Args())
	if n < 2 || n > 3 || e.args[1] == nil || (n == 3 && e.args[2] == nil) {
		return e.generic(ctx, env)
	}
	rng, isRange := e.node.Args()[0].(*formula.Range)
	if !isRange {
		return e.generic(ctx, env)
	}
	evaluated := make([]Result, 0, 2)
	idx := make([]int, 0, 2)
	for i := 1; i < n; i++ {
		r, err := e.args[i].Eval(ctx, env)
		if err != nil {
			return Result{}, err
		}
		evaluated = append(evaluated, r)
		if !r.HasConstantValue() {
			return e.fallback(ctx, env, evaluated)
		}
		v := env.engine().ToInt(r.ConstantValue(), math.MinInt)
		if v == math.MinInt {
			// not a number; the runtime reports it
			return e.fallback(ctx, env, evaluated)
		}
		idx = append(idx, v)
	}
	var pos int
	if len(idx) == 1 {
		if rng.Rows > 1 && rng.Cols > 1 {
			return e.fallback(ctx, env, evaluated)
		}
		i := idx[0]
		switch {
		case i < 1:
			return Result{}, env.errorf(e.node, ErrValueOutOfRange, "index %d is below 1", i)
		case i > len(rng.Elements):
			return Result{}, env.errorf(e.node, ErrRefOutOfRange, "index %d exceeds %d elements", i, len(rng.Elements))
		}
		pos = i - 1
	} else {
		row, col := idx[0], idx[1]
		switch {
		case row < 1 || col < 1:
			return Result{}, env.errorf(e.node, ErrValueOutOfRange, "index (%d, %d) is below 1", row, col)
		case row > rng.Rows || col > rng.Cols:
			return Result{}, env.errorf(e.node, ErrRefOutOfRange, "index (%d, %d) exceeds %dx%d", row, col, rng.Rows, rng.Cols)
		}
		pos = (row-1)*rng.Cols + (col - 1)
	}
	el := e.args[0].(*aggregateEval).args[pos]
	if el == nil {
		return Const(nil, formula.Null), nil
	}
	return el.Eval(ctx, env)
}

func (e *indexEval) generic(ctx context.Context, env *Env, done ...Result) (Result, error) {
	return e.evalGeneric(ctx, env, func(args []Result) (any, error) {
		return env.engine().ComputeFunction(formula.INDEX, values(args)...)
	}, done...)
}

// fallback evaluates the range and continues generically with the
// indices evaluated so far.
func (e *indexEval) fallback(ctx context.Context, env *Env, indices []Result) (Result, error) {
	rng, err := e.args[0].Eval(ctx, env)
	if err != nil {
		return Result{}, err
	}
	return e.generic(ctx, env, append([]Result{rng}, indices...)...)
}

// switchEval evaluates only the selected branch when the selector is
// constant; otherwise every branch stays in the residual.
type switchEval struct {
	base
}

func (e *switchEval) Eval(ctx context.Context, env *Env) (Result, error) {
	sw := e.node.(*formula.Switch)
	sel, err := e.args[0].Eval(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if !sel.HasConstantValue() {
		args, err := e.evalArgs(ctx, env, sel)
		if err != nil {
			return Result{}, err
		}
		return e.residual(args), nil
	}
	k := env.engine().ToInt(sel.ConstantValue(), math.MinInt)
	for i, c := range sw.Cases {
		if !c.Matches(k) {
			continue
		}
		branch := e.args[1+i].(*caseEval).args[0]
		if branch == nil {
			return Const(nil, formula.Null), nil
		}
		return branch.Eval(ctx, env)
	}
	def := e.args[len(e.args)-1]
	if def == nil {
		return Const(nil, formula.Null), nil
	}
	return def.Eval(ctx, env)
}

// countEval counts arguments by their shape. Sub-sections are only sized
// at runtime, so they are left in the residual count.
type countEval struct {
	node *formula.Count
}

func (e *countEval) Node() formula.Node { return e.node }

func (e *countEval) Eval(_ context.Context, env *Env) (Result, error) {
	static := e.node.Static
	var dynamic []formula.Node
	for _, arg := range e.node.Arguments[:formula.Cardinality(e.node.Arguments)] {
		if arg == nil {
			continue
		}
		n, sections, err := env.count(arg)
		if err != nil {
			return Result{}, err
		}
		static += n
		dynamic = append(dynamic, sections...)
	}
	if len(dynamic) == 0 {
		return Const(float64(static), formula.Numeric), nil
	}
	return Dynamic(&formula.Count{Static: static, Arguments: dynamic}), nil
}

func (env *Env) count(n formula.Node) (int, []formula.Node, error) {
	switch n := n.(type) {
	case *formula.SubSection:
		for _, el := range n.Elements {
			if containsSubSection(el) {
				return 0, nil, env.errorf(n, ErrUnsupported, "counting nested sections of %s", n.Section)
			}
		}
		return 0, []formula.Node{n}, nil
	case *formula.Range, *formula.Substitution:
		total := 0
		var sections []formula.Node
		for _, el := range n.Args() {
			if el == nil {
				total++
				continue
			}
			c, s, err := env.count(el)
			if err != nil {
				return 0, nil, err
			}
			total += c
			sections = append(sections, s...)
		}
		return total, sections, nil
	case *formula.ParentSection:
		return env.count(n.Inner)
	default:
		return 1, nil, nil
	}
}

func containsSubSection(n formula.Node) bool {
	switch n := n.(type) {
	case nil:
		return false
	case *formula.SubSection:
		return true
	case *formula.Range, *formula.Substitution, *formula.ParentSection:
		for _, el := range n.Args() {
			if containsSubSection(el) {
				return true
			}
		}
	}
	return false
}

// cellEval folds a cell reference through the cell's memoized result.
type cellEval struct {
	node *formula.CellRef
}

func (e *cellEval) Node() formula.Node { return e.node }

func (e *cellEval) Eval(ctx context.Context, env *Env) (Result, error) {
	cell := e.node.Cell
	if cell.Input {
		return Dynamic(e.node), nil
	}
	if c, ok := cell.CachedResult(); ok {
		env.opt.stats.CacheHits++
		return Const(c.Value, c.DataType), nil
	}
	var res Result
	switch {
	case cell.Expr != nil:
		if !cell.BeginOptimizing() {
			// circular reference
			return Dynamic(e.node), nil
		}
		r, err := func() (Result, error) {
			defer cell.EndOptimizing()
			sub := &Env{Bindings: NewBindings(), Origin: cell, opt: env.opt}
			return Shadow(cell.Expr).Eval(ctx, sub)
		}()
		if err != nil {
			return Result{}, err
		}
		if !r.HasConstantValue() {
			return Dynamic(e.node), nil
		}
		res = r
	case cell.Value != nil:
		v := cell.Value
		if b, ok := v.(bool); ok {
			v = 0.0
			if b {
				v = 1.0
			}
		}
		res = Const(env.engine().AdjustConstantValue(v), cell.DataType)
	default:
		res = Const(nil, formula.Null)
	}
	env.opt.cache(ctx, cell, res)
	return res, nil
}

// concatEval merges runs of adjacent constant arguments of CONCATENATE.
type concatEval struct {
	base
}

func (e *concatEval) Eval(ctx context.Context, env *Env) (Result, error) {
	args, err := e.evalArgs(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if len(args) == 0 {
		res, ok, err := env.tryConst(ctx, e.node, func() (any, error) {
			return env.engine().ComputeFunction(formula.CONCATENATE)
		})
		if err != nil || ok {
			return res, err
		}
		return Dynamic(e.node), nil
	}
	var merged []formula.Node
	var run []Result
	flush := func() (Result, bool, error) {
		defer func() { run = nil }()
		// a lone aggregate still collapses into its joined text
		if len(run) > 1 || (len(run) == 1 && (len(args) == 1 || !run[0].HasConstantValue())) {
			res, ok, err := env.tryConst(ctx, e.node, func() (any, error) {
				return env.engine().ComputeFunction(formula.CONCATENATE, values(run)...)
			})
			if err != nil || ok {
				return res, ok, err
			}
		}
		for _, r := range run {
			merged = append(merged, r.Node())
		}
		return Result{}, false, nil
	}
	for _, r := range args {
		if r.IsConstant() {
			run = append(run, r)
			continue
		}
		res, ok, err := flush()
		if err != nil {
			return Result{}, err
		}
		if ok {
			merged = append(merged, res.Node())
		}
		merged = append(merged, r.Node())
	}
	whole := len(run) == len(args)
	res, ok, err := flush()
	if err != nil {
		return Result{}, err
	}
	if ok {
		if whole {
			return res, nil
		}
		merged = append(merged, res.Node())
	}
	return Dynamic(e.node.With(merged)), nil
}
