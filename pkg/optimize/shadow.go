package optimize

import (
	"context"
	"fmt"
	"math"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/numeric"
)

// Evaluator is the shadow of one tree node: it knows how to fold that
// node's kind.
type Evaluator interface {
	Node() formula.Node
	Eval(ctx context.Context, env *Env) (Result, error)
}

// Shadow builds the evaluator tree for n. The result mirrors the shape of
// n exactly; nothing is evaluated.
func Shadow(n formula.Node) Evaluator {
	switch n := n.(type) {
	case nil:
		return nil
	case *formula.Constant:
		return &constantEval{node: n}
	case *formula.Operator:
		return &operatorEval{base: newBase(n)}
	case *formula.Function:
		return shadowFunction(n)
	case *formula.CellRef:
		return &cellEval{node: n}
	case *formula.Range:
		return &aggregateEval{base: newBase(n)}
	case *formula.Substitution:
		return &aggregateEval{base: newBase(n)}
	case *formula.Let:
		return &letEval{node: n, value: Shadow(n.Value), in: Shadow(n.In)}
	case *formula.LetVar:
		return &letVarEval{node: n}
	case *formula.Switch:
		return &switchEval{base: newBase(n)}
	case *formula.SwitchCase:
		return &caseEval{base: newBase(n)}
	case *formula.Fold:
		return &foldEval{base: newBase(n), def: shadowDef(n.Def, n.Seeds)}
	case *formula.Reduce:
		return &reduceEval{base: newBase(n), def: shadowDef(n.Def, []formula.Node{n.Seed})}
	case *formula.FoldArray:
		return &foldArrayEval{base: newBase(n), def: shadowDef(n.Def, nil)}
	case *formula.FoldList:
		return &foldListEval{base: newBase(n), def: shadowDef(n.Def, n.Seeds)}
	case *formula.FoldVectors:
		return &foldVectorsEval{base: newBase(n), def: shadowDef(n.Def, n.Seeds)}
	case *formula.FoldDatabase:
		return &foldDatabaseEval{base: newBase(n), def: shadowDef(n.Def, n.Seeds), filter: Shadow(n.Filter)}
	case *formula.ParentSection:
		return &parentEval{base: newBase(n)}
	case *formula.SubSection:
		return &subSectionEval{base: newBase(n)}
	case *formula.Count:
		return &countEval{node: n}
	default:
		panic(fmt.Sprintf("no evaluator for %T", n))
	}
}

func shadowFunction(n *formula.Function) Evaluator {
	b := newBase(n)
	switch n.Fn {
	case formula.IF:
		return &ifEval{base: b}
	case formula.AND, formula.OR:
		return &boolSeqEval{base: b}
	case formula.INDEX:
		return &indexEval{base: b}
	case formula.CONCATENATE:
		return &concatEval{base: b}
	default:
		return &functionEval{base: b}
	}
}

func shadowAll(nodes []formula.Node) []Evaluator {
	evals := make([]Evaluator, len(nodes))
	for i, n := range nodes {
		evals[i] = Shadow(n)
	}
	return evals
}

// base carries the node and the shadows of its children, and implements
// the evaluation protocol shared by most kinds.
type base struct {
	node formula.Node
	args []Evaluator
}

func newBase(n formula.Node) base {
	return base{node: n, args: shadowAll(n.Args())}
}

func (b *base) Node() formula.Node {
	return b.node
}

// evalArgs evaluates the children up to the node's cardinality. Results
// already computed for a prefix of the children are passed as done.
func (b *base) evalArgs(ctx context.Context, env *Env, done ...Result) ([]Result, error) {
	n := formula.Cardinality(b.node.Args())
	res := make([]Result, n)
	copy(res, done)
	for i := len(done); i < n; i++ {
		if b.args[i] == nil {
			res[i] = Const(nil, formula.Null)
			continue
		}
		r, err := b.args[i].Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		res[i] = r
	}
	return res, nil
}

// residual rebuilds the node around evaluated children. Folded children
// become constant leaves; omitted arguments stay omitted.
func (b *base) residual(args []Result) Result {
	orig := b.node.Args()
	kids := make([]formula.Node, len(orig))
	for i, r := range args {
		if orig[i] == nil {
			continue
		}
		kids[i] = r.Node()
	}
	return Dynamic(b.node.With(kids))
}

// evalGeneric evaluates the children and, when all of them are constant,
// tries to compute the node's value. Anything it cannot compute is
// rebuilt as a residual node.
func (b *base) evalGeneric(ctx context.Context, env *Env, compute func([]Result) (any, error), done ...Result) (Result, error) {
	args, err := b.evalArgs(ctx, env, done...)
	if err != nil {
		return Result{}, err
	}
	if allConstant(args) {
		res, ok, err := env.tryConst(ctx, b.node, func() (any, error) {
			return compute(args)
		})
		if err != nil {
			return Result{}, err
		}
		if ok {
			return res, nil
		}
	}
	return b.residual(args), nil
}

// tryConst runs a constant computation. Expected numeric failures and
// non-finite results are reported as not ok rather than as errors: the
// node is then left to runtime.
func (env *Env) tryConst(ctx context.Context, n formula.Node, compute func() (any, error)) (Result, bool, error) {
	v, err := compute()
	switch numeric.Classify(err) {
	case numeric.NotFoldable:
		env.opt.stats.Refused++
		env.opt.logger.DebugContext(ctx, "left to runtime", "expr", n.String(), "reason", err)
		return Result{}, false, nil
	case numeric.Failed:
		return Result{}, false, fmt.Errorf("computing %s: %w", n, err)
	}
	if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		// the consuming numeric type decides what these mean
		env.opt.stats.Refused++
		env.opt.logger.DebugContext(ctx, "refusing to fold non-finite value", "expr", n.String(), "value", f)
		return Result{}, false, nil
	}
	v = env.engine().AdjustConstantValue(v)
	env.opt.stats.Folded++
	t := formula.TypeOf(v)
	if t == formula.Unknown {
		t = n.Type()
	}
	return Const(v, t), true, nil
}

type constantEval struct {
	node *formula.Constant
}

func (e *constantEval) Node() formula.Node { return e.node }

func (e *constantEval) Eval(context.Context, *Env) (Result, error) {
	return Const(e.node.Value, e.node.DataType), nil
}

type operatorEval struct {
	base
}

func (e *operatorEval) Eval(ctx context.Context, env *Env) (Result, error) {
	op := e.node.(*formula.Operator).Op
	return e.evalGeneric(ctx, env, func(args []Result) (any, error) {
		return env.engine().ComputeOperator(op, values(args)...)
	})
}

type functionEval struct {
	base
}

func (e *functionEval) Eval(ctx context.Context, env *Env) (Result, error) {
	n := e.node.(*formula.Function)
	if n.Fn == formula.ROW || n.Fn == formula.COLUMN {
		// positions are known without evaluating the referenced cell
		res, ok, err := env.tryConst(ctx, n, func() (any, error) {
			return env.position(n)
		})
		if err != nil || ok {
			return res, err
		}
		// the engine has no origin either
		args, err := e.evalArgs(ctx, env)
		if err != nil {
			return Result{}, err
		}
		return e.residual(args), nil
	}
	return e.evalGeneric(ctx, env, func(args []Result) (any, error) {
		return e.compute(env, args)
	})
}

func (e *functionEval) compute(env *Env, args []Result) (any, error) {
	n := e.node.(*formula.Function)
	if env.engine().IsVolatile(n.Fn) {
		return nil, fmt.Errorf("%w: %s is volatile", numeric.ErrEnvironment, n.Fn)
	}
	return env.engine().ComputeFunction(n.Fn, values(args)...)
}

// position resolves ROW and COLUMN: of a referenced cell, or of the
// originating cell when called without arguments.
func (env *Env) position(n *formula.Function) (any, error) {
	var addr formula.Address
	switch {
	case formula.Cardinality(n.Arguments) == 0 && env.Origin != nil:
		addr = env.Origin.Addr
	case formula.Cardinality(n.Arguments) == 1:
		ref, ok := n.Arguments[0].(*formula.CellRef)
		if !ok {
			return nil, fmt.Errorf("%w: %s of a computed value", numeric.ErrDomain, n.Fn)
		}
		addr = ref.Cell.Addr
	default:
		return nil, fmt.Errorf("%w: %s needs the originating cell", numeric.ErrEnvironment, n.Fn)
	}
	if n.Fn == formula.ROW {
		return float64(addr.Row), nil
	}
	return float64(addr.Col), nil
}

// aggregateEval handles ranges and substitutions. They are never computed
// into a single value; a residual made of constants counts as constant.
type aggregateEval struct {
	base
}

func (e *aggregateEval) Eval(ctx context.Context, env *Env) (Result, error) {
	args, err := e.evalArgs(ctx, env)
	if err != nil {
		return Result{}, err
	}
	return e.residual(args), nil
}

type letEval struct {
	node  *formula.Let
	value Evaluator
	in    Evaluator
}

func (e *letEval) Node() formula.Node { return e.node }

func (e *letEval) Eval(ctx context.Context, env *Env) (Result, error) {
	val, err := e.value.Eval(ctx, env)
	if err != nil {
		return Result{}, err
	}
	var scope Scope
	if val.IsConstant() {
		scope = env.Bindings.Let(e.node.Name, val)
	} else {
		// hide any outer binding of the same name
		scope = env.Bindings.LetUndef(e.node.Name)
	}
	body, err := func() (Result, error) {
		defer scope.Release()
		return e.in.Eval(ctx, env)
	}()
	if err != nil {
		return Result{}, err
	}
	if body.HasConstantValue() {
		return body, nil
	}
	// fold definitions in the body may still refer to the name
	return Dynamic(&formula.Let{Name: e.node.Name, Value: val.Node(), In: body.Node()}), nil
}

type letVarEval struct {
	node *formula.LetVar
}

func (e *letVarEval) Node() formula.Node { return e.node }

func (e *letVarEval) Eval(_ context.Context, env *Env) (Result, error) {
	val, known := env.Bindings.Lookup(e.node.Name)
	if !known {
		return Dynamic(e.node), nil
	}
	return val, nil
}

// caseEval only ever produces a residual case: a case is selected by its
// switch, never computed on its own.
type caseEval struct {
	base
}

func (e *caseEval) Eval(ctx context.Context, env *Env) (Result, error) {
	args, err := e.evalArgs(ctx, env)
	if err != nil {
		return Result{}, err
	}
	return e.residual(args), nil
}

type parentEval struct {
	base
}

func (e *parentEval) Eval(ctx context.Context, env *Env) (Result, error) {
	args, err := e.evalArgs(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if args[0].HasConstantValue() {
		return args[0], nil
	}
	return e.residual(args), nil
}

// subSectionEval simplifies the per-row elements; the section itself is
// sized at runtime and never folds.
type subSectionEval struct {
	base
}

func (e *subSectionEval) Eval(ctx context.Context, env *Env) (Result, error) {
	args, err := e.evalArgs(ctx, env)
	if err != nil {
		return Result{}, err
	}
	return e.residual(args), nil
}
