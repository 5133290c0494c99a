// Package optimize folds formula expression trees ahead of code
// generation. Every subtree is reduced to a constant where its inputs are
// known at compile time; what cannot be reduced is rewritten into a
// smaller, equivalent residual tree.
package optimize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/numeric"
)

// Optimizer runs optimization passes over expression trees. It is not
// safe for concurrent use, and two optimizers must not work on the same
// cell model graph at the same time: cells memoize their folded values.
type Optimizer struct {
	engine  numeric.Engine
	logger  *slog.Logger
	partial bool
	stats   Stats
}

// Stats counts what the optimizer did.
type Stats struct {
	// Folded counts subtrees computed to a constant.
	Folded int
	// Refused counts constant computations that were left to runtime:
	// expected numeric failures and infinite or NaN results.
	Refused int
	// PartialFolds counts folds reduced to a smaller residual fold.
	PartialFolds int
	// CacheHits counts cell references served from the cell's cache.
	CacheHits int
}

type Option func(*Optimizer)

// WithLogger sets the logger for debug output. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		o.logger = logger
	}
}

// WithoutPartialFolds makes every fold all-or-nothing: a fold that cannot
// be computed completely is kept as it was.
func WithoutPartialFolds() Option {
	return func(o *Optimizer) {
		o.partial = false
	}
}

func New(engine numeric.Engine, opts ...Option) *Optimizer {
	o := &Optimizer{
		engine:  engine,
		logger:  slog.Default(),
		partial: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Optimizer) Stats() Stats {
	return o.stats
}

// Env is the per-walk evaluation state.
type Env struct {
	Bindings *Bindings
	// Origin is the cell whose formula is being optimized, if any.
	Origin *formula.Cell

	opt *Optimizer
}

func (env *Env) engine() numeric.Engine {
	return env.opt.engine
}

// Optimize folds expr. origin is the cell the expression belongs to and
// may be nil.
func (o *Optimizer) Optimize(ctx context.Context, expr formula.Node, origin *formula.Cell) (Result, error) {
	env := &Env{Bindings: NewBindings(), Origin: origin, opt: o}
	res, err := Shadow(expr).Eval(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if d := env.Bindings.Depth(); d != 0 {
		panic(fmt.Sprintf("unbalanced bindings after optimizing %s: %d left", expr, d))
	}
	o.logger.DebugContext(ctx, "optimized expression",
		"expr", expr.String(),
		"folded", res.HasConstantValue(),
		"residual", res.String())
	return res, nil
}

// OptimizeCell folds the defining expression of a cell. Cells without an
// expression yield their value, inputs a residual reference.
func (o *Optimizer) OptimizeCell(ctx context.Context, cell *formula.Cell) (Result, error) {
	if cell.Expr == nil {
		return o.Optimize(ctx, &formula.CellRef{Cell: cell}, nil)
	}
	if !cell.BeginOptimizing() {
		return Dynamic(&formula.CellRef{Cell: cell}), nil
	}
	defer cell.EndOptimizing()
	res, err := o.Optimize(ctx, cell.Expr, cell)
	if err != nil {
		return Result{}, err
	}
	if res.HasConstantValue() {
		o.cache(ctx, cell, res)
	}
	return res, nil
}

func (o *Optimizer) cache(ctx context.Context, cell *formula.Cell, res Result) {
	c := res.Node().(*formula.Constant)
	cell.SetCachedResult(c)
	o.logger.DebugContext(ctx, "cached cell result", "cell", cell.String(), "value", c.String())
}
