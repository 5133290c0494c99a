package optimize

import (
	"context"
	"slices"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/numeric"
)

// defEval is the shadow of a fold definition.
type defEval struct {
	def *formula.FoldDef
	// inits is a single nil evaluator for folds seeded by their first
	// element.
	inits     []Evaluator
	steps     []Evaluator
	merge     Evaluator
	whenEmpty Evaluator
}

func shadowDef(def *formula.FoldDef, seeds []formula.Node) *defEval {
	d := &defEval{
		def:       def,
		inits:     shadowAll(def.Inits(seeds)),
		merge:     Shadow(def.Merge),
		whenEmpty: Shadow(def.WhenEmpty),
	}
	for _, acc := range def.Accumulators {
		d.steps = append(d.steps, Shadow(acc.Step))
	}
	return d
}

func (d *defEval) unseeded() bool {
	return len(d.inits) == 1 && d.inits[0] == nil
}

// start evaluates the initial accumulator values. It returns false when
// any of them is not constant, in which case nothing can be folded.
func (d *defEval) start(ctx context.Context, env *Env, node formula.Node, folded int) (*accumulator, bool, error) {
	acc := &accumulator{env: env, d: d, node: node, folded: folded}
	if d.unseeded() {
		return acc, true, nil
	}
	for _, init := range d.inits {
		if init == nil {
			return nil, false, nil
		}
		r, err := init.Eval(ctx, env)
		if err != nil {
			return nil, false, err
		}
		if !r.IsConstant() {
			return nil, false, nil
		}
		acc.accs = append(acc.accs, r)
	}
	acc.seeded = true
	return acc, true, nil
}

// accumulator is the state of one fold while its elements are walked.
type accumulator struct {
	env  *Env
	d    *defEval
	node formula.Node

	accs   []Result
	seeded bool
	// folded counts every element in accs, including those folded by an
	// earlier pass.
	folded int
	// progress is set once the walk changed anything: an element was
	// folded or filtered out.
	progress bool
	// stopped is set when an order-sensitive fold had to hold an element;
	// everything after it is held too.
	stopped bool
	held    [][]formula.Node
}

// fold runs the steps for one element tuple. It returns false, leaving
// the accumulators untouched, when a step is not constant.
func (a *accumulator) fold(ctx context.Context, elts []Result, extraNames []string, extraVals []Result) (bool, error) {
	def := a.d.def
	if len(elts) != len(def.Elements) {
		return false, a.env.errorf(a.node, ErrShapeMismatch, "%d elements for %d element names", len(elts), len(def.Elements))
	}
	if !a.seeded {
		if len(elts) == 0 {
			return false, a.env.errorf(a.node, ErrUnsupported, "reduction without an element name")
		}
		a.accs = []Result{elts[0]}
		a.seeded = true
		a.folded++
		a.progress = true
		return true, nil
	}

	names := append(def.AccumulatorNames(), def.Elements...)
	vals := append(slices.Clone(a.accs), elts...)
	if def.Index != "" {
		names = append(names, def.Index)
		vals = append(vals, Const(float64(a.folded+1), formula.Numeric))
	}
	names = append(names, extraNames...)
	vals = append(vals, extraVals...)

	next, err := func() ([]Result, error) {
		scope := a.env.Bindings.LetAll(names, vals)
		defer scope.Release()
		next := make([]Result, len(a.d.steps))
		for i, step := range a.d.steps {
			r, err := step.Eval(ctx, a.env)
			if err != nil {
				return nil, err
			}
			if !r.IsConstant() {
				return nil, nil
			}
			next[i] = r
		}
		return next, nil
	}()
	if err != nil || next == nil {
		return false, err
	}
	a.accs = next
	a.folded++
	a.progress = true
	return true, nil
}

// hold keeps an element tuple for runtime.
func (a *accumulator) hold(nodes ...formula.Node) {
	a.held = append(a.held, nodes)
	if a.d.def.OrderSensitive() {
		a.stopped = true
	}
}

// walk folds a flat element list, holding what cannot be folded.
func (a *accumulator) walk(ctx context.Context, flat []Result) error {
	for _, el := range flat {
		if a.stopped || !el.HasConstantValue() {
			a.hold(el.Node())
			continue
		}
		ok, err := a.fold(ctx, []Result{el}, nil, nil)
		if err != nil {
			return err
		}
		if !ok {
			a.hold(el.Node())
		}
	}
	return nil
}

// result computes the fold's value from the final accumulators.
func (a *accumulator) result(ctx context.Context) (Result, error) {
	if a.folded == 0 && a.d.whenEmpty != nil {
		return a.d.whenEmpty.Eval(ctx, a.env)
	}
	if !a.seeded {
		return Const(nil, formula.Null), nil
	}
	if a.d.merge == nil {
		return a.accs[0], nil
	}
	names := a.d.def.AccumulatorNames()
	vals := slices.Clone(a.accs)
	if a.d.def.Count != "" {
		names = append(names, a.d.def.Count)
		vals = append(vals, Const(float64(a.folded), formula.Numeric))
	}
	scope := a.env.Bindings.LetAll(names, vals)
	defer scope.Release()
	return a.d.merge.Eval(ctx, a.env)
}

// seeds returns the accumulators as seeds of a residual fold.
func (a *accumulator) seeds() []formula.Node {
	if !a.seeded {
		return nil
	}
	seeds := make([]formula.Node, len(a.accs))
	for i, r := range a.accs {
		seeds[i] = r.Node()
	}
	return seeds
}

// finish completes the fold. With nothing held the fold is computed;
// otherwise the held elements are rebuilt into a residual fold seeded
// with what was accumulated, or the whole fold is kept when nothing was
// gained.
func (a *accumulator) finish(ctx context.Context, whole func() Result, rebuild func(seeds []formula.Node, folded int) formula.Node) (Result, error) {
	if len(a.held) == 0 {
		return a.result(ctx)
	}
	if !a.progress || !a.env.opt.partial {
		return whole(), nil
	}
	a.env.opt.stats.PartialFolds++
	res := rebuild(a.seeds(), a.folded)
	a.env.opt.logger.DebugContext(ctx, "partial fold",
		"fold", a.node.Kind().Tag(),
		"folded", a.folded,
		"held", len(a.held))
	return Dynamic(res), nil
}

func (a *accumulator) heldNodes() []formula.Node {
	var nodes []formula.Node
	for _, tuple := range a.held {
		nodes = append(nodes, tuple...)
	}
	return nodes
}

// evalAll evaluates every child, omitted ones as NULL.
func (b *base) evalAll(ctx context.Context, env *Env) ([]Result, error) {
	res := make([]Result, len(b.args))
	for i, arg := range b.args {
		if arg == nil {
			res[i] = Const(nil, formula.Null)
			continue
		}
		r, err := arg.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		res[i] = r
	}
	return res, nil
}

// flattenResults splices ranges and substitutions into their elements,
// recursively and in encounter order.
func flattenResults(rs []Result) []Result {
	var flat []Result
	for _, r := range rs {
		if els, ok := r.Elements(); ok {
			flat = append(flat, flattenResults(els)...)
			continue
		}
		flat = append(flat, r)
	}
	return flat
}

// foldElements is shared by the folds over element lists.
func (b *base) foldElements(ctx context.Context, env *Env, d *defEval, folded int, rebuild func(seeds, elements []formula.Node, folded int) formula.Node) (Result, error) {
	args, err := b.evalAll(ctx, env)
	if err != nil {
		return Result{}, err
	}
	whole := func() Result { return b.residual(args) }
	acc, ok, err := d.start(ctx, env, b.node, folded)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return whole(), nil
	}
	if err := acc.walk(ctx, flattenResults(args)); err != nil {
		return Result{}, err
	}
	return acc.finish(ctx, whole, func(seeds []formula.Node, folded int) formula.Node {
		return rebuild(seeds, acc.heldNodes(), folded)
	})
}

type foldEval struct {
	base
	def *defEval
}

func (e *foldEval) Eval(ctx context.Context, env *Env) (Result, error) {
	n := e.node.(*formula.Fold)
	return e.foldElements(ctx, env, e.def, n.Folded, func(seeds, elements []formula.Node, folded int) formula.Node {
		cp := *n
		cp.Seeds, cp.Elements, cp.Folded = seeds, elements, folded
		return &cp
	})
}

type foldListEval struct {
	base
	def *defEval
}

func (e *foldListEval) Eval(ctx context.Context, env *Env) (Result, error) {
	n := e.node.(*formula.FoldList)
	return e.foldElements(ctx, env, e.def, n.Folded, func(seeds, elements []formula.Node, folded int) formula.Node {
		cp := *n
		cp.Seeds, cp.Elements, cp.Folded = seeds, elements, folded
		return &cp
	})
}

type reduceEval struct {
	base
	def *defEval
}

func (e *reduceEval) Eval(ctx context.Context, env *Env) (Result, error) {
	n := e.node.(*formula.Reduce)
	return e.foldElements(ctx, env, e.def, n.Folded, func(seeds, elements []formula.Node, folded int) formula.Node {
		cp := *n
		cp.Seed, cp.Elements, cp.Folded = nil, elements, folded
		if len(seeds) > 0 {
			cp.Seed = seeds[0]
		}
		return &cp
	})
}

// foldArrayEval folds an array whole or not at all.
type foldArrayEval struct {
	base
	def *defEval
}

func (e *foldArrayEval) Eval(ctx context.Context, env *Env) (Result, error) {
	args, err := e.evalAll(ctx, env)
	if err != nil {
		return Result{}, err
	}
	var elts []Result
	if els, ok := args[0].Elements(); ok {
		elts = flattenResults(els)
	} else if args[0].HasConstantValue() {
		if arr, ok := args[0].ConstantValue().(*formula.Array); ok {
			for _, v := range arr.Values {
				elts = append(elts, Const(v, formula.Unknown))
			}
		} else {
			elts = []Result{args[0]}
		}
	} else {
		return e.residual(args), nil
	}
	acc, ok, err := e.def.start(ctx, env, e.node, 0)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return e.residual(args), nil
	}
	for _, el := range elts {
		if !el.HasConstantValue() {
			return e.residual(args), nil
		}
		ok, err := acc.fold(ctx, []Result{el}, nil, nil)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return e.residual(args), nil
		}
	}
	return acc.result(ctx)
}

// foldVectorsEval advances the vectors position by position.
type foldVectorsEval struct {
	base
	def *defEval
}

func (e *foldVectorsEval) Eval(ctx context.Context, env *Env) (Result, error) {
	n := e.node.(*formula.FoldVectors)
	args, err := e.evalAll(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if len(args) == 0 || len(args) != len(n.Def.Elements) {
		return Result{}, env.errorf(n, ErrShapeMismatch, "%d vectors for %d element names", len(args), len(n.Def.Elements))
	}
	vecs := make([][]Result, len(args))
	for i, r := range args {
		els, ok := r.Elements()
		if !ok {
			// sized at runtime
			return e.residual(args), nil
		}
		vecs[i] = flattenResults(els)
		if len(vecs[i]) != len(vecs[0]) {
			return Result{}, env.errorf(n, ErrShapeMismatch, "vector %d has %d elements, vector 1 has %d", i+1, len(vecs[i]), len(vecs[0]))
		}
	}
	acc, ok, err := e.def.start(ctx, env, n, n.Folded)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return e.residual(args), nil
	}
	for pos := range vecs[0] {
		tuple := make([]Result, len(vecs))
		nodes := make([]formula.Node, len(vecs))
		constant := true
		for i, vec := range vecs {
			tuple[i] = vec[pos]
			nodes[i] = vec[pos].Node()
			constant = constant && vec[pos].HasConstantValue()
		}
		if acc.stopped || !constant {
			acc.hold(nodes...)
			continue
		}
		ok, err := acc.fold(ctx, tuple, nil, nil)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			acc.hold(nodes...)
		}
	}
	return acc.finish(ctx, func() Result { return e.residual(args) }, func(seeds []formula.Node, folded int) formula.Node {
		vectors := make([]formula.Node, len(vecs))
		for i := range vectors {
			col := make([]formula.Node, len(acc.held))
			for k, tuple := range acc.held {
				col[k] = tuple[i]
			}
			vectors[i] = formula.NewVector(col...)
		}
		cp := *n
		cp.Seeds, cp.Vectors, cp.Folded = seeds, vectors, folded
		return &cp
	})
}

// foldDatabaseEval filters the rows of a static table and folds one of
// its columns.
type foldDatabaseEval struct {
	base
	def    *defEval
	filter Evaluator
}

func (e *foldDatabaseEval) Eval(ctx context.Context, env *Env) (Result, error) {
	n := e.node.(*formula.FoldDatabase)
	args, err := e.evalAll(ctx, env)
	if err != nil {
		return Result{}, err
	}
	table, ok := args[0].Node().(*formula.Range)
	if !ok {
		// sized at runtime
		return e.residual(args), nil
	}
	if table.Cols != len(n.Columns) {
		return Result{}, env.errorf(n, ErrShapeMismatch, "table has %d columns, %d are named", table.Cols, len(n.Columns))
	}
	if n.FoldColumn < 0 || n.FoldColumn >= table.Cols {
		return Result{}, env.errorf(n, ErrShapeMismatch, "fold column %d of %d", n.FoldColumn+1, table.Cols)
	}
	acc, ok, err := e.def.start(ctx, env, n, n.Folded)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return e.residual(args), nil
	}
	els, _ := args[0].Elements()
	if len(els) != table.Rows*table.Cols {
		return Result{}, env.errorf(n, ErrShapeMismatch, "%dx%d table has %d elements", table.Rows, table.Cols, len(els))
	}
	for r := 0; r < table.Rows; r++ {
		row := els[r*table.Cols : (r+1)*table.Cols]
		nodes := make([]formula.Node, len(row))
		constant := true
		for i, el := range row {
			nodes[i] = el.Node()
			constant = constant && el.HasConstantValue()
		}
		if acc.stopped || !constant {
			acc.hold(nodes...)
			continue
		}
		pass, known, err := e.passes(ctx, env, n, row)
		if err != nil {
			return Result{}, err
		}
		if !known {
			acc.hold(nodes...)
			continue
		}
		if !pass {
			acc.progress = true
			continue
		}
		var elts []Result
		if len(n.Def.Elements) > 0 {
			elts = []Result{row[n.FoldColumn]}
		}
		ok, err := acc.fold(ctx, elts, n.Columns, row)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			acc.hold(nodes...)
		}
	}
	return acc.finish(ctx, func() Result { return e.residual(args) }, func(seeds []formula.Node, folded int) formula.Node {
		held := acc.heldNodes()
		cp := *n
		cp.Seeds, cp.Folded = seeds, folded
		cp.Table = &formula.Range{Rows: len(acc.held), Cols: table.Cols, Elements: held}
		return &cp
	})
}

// passes evaluates the row filter. known is false when the filter has to
// be left to runtime.
func (e *foldDatabaseEval) passes(ctx context.Context, env *Env, n *formula.FoldDatabase, row []Result) (pass, known bool, err error) {
	if e.filter == nil {
		return true, true, nil
	}
	scope := env.Bindings.LetAll(n.Columns, row)
	defer scope.Release()
	f, err := e.filter.Eval(ctx, env)
	if err != nil {
		return false, false, err
	}
	if !f.HasConstantValue() {
		return false, false, nil
	}
	b, err := env.engine().ToBoolean(f.ConstantValue())
	switch numeric.Classify(err) {
	case numeric.NotFoldable:
		return false, false, nil
	case numeric.Failed:
		return false, false, err
	}
	return b, true, nil
}
