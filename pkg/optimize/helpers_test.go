package optimize_test

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/dagger/testctx/oteltest"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/numeric"
)

func TestMain(m *testing.M) {
	os.Exit(oteltest.Main(m))
}

// countingEngine counts the computations that reach the engine.
type countingEngine struct {
	numeric.Engine
	operators atomic.Int32
	functions atomic.Int32
}

func newCountingEngine() *countingEngine {
	return &countingEngine{Engine: numeric.NewDouble(numeric.Options{})}
}

func (e *countingEngine) ComputeOperator(op formula.Op, args ...any) (any, error) {
	e.operators.Add(1)
	return e.Engine.ComputeOperator(op, args...)
}

func (e *countingEngine) ComputeFunction(fn formula.Func, args ...any) (any, error) {
	e.functions.Add(1)
	return e.Engine.ComputeFunction(fn, args...)
}

type book struct {
	wb *formula.Workbook
}

func newBook() *book {
	return &book{wb: formula.NewWorkbook()}
}

func (b *book) cell(ref string) *formula.Cell {
	addr, err := formula.ParseAddress(ref)
	if err != nil {
		panic(err)
	}
	return b.wb.Cell(addr)
}

func (b *book) input(ref string) *formula.CellRef {
	c := b.cell(ref)
	c.Input = true
	c.DataType = formula.Numeric
	return &formula.CellRef{Cell: c}
}

func (b *book) value(ref string, v any) *formula.CellRef {
	c := b.cell(ref)
	c.Value = v
	c.DataType = formula.TypeOf(v)
	return &formula.CellRef{Cell: c}
}

func (b *book) formula(ref string, expr formula.Node) *formula.CellRef {
	c := b.cell(ref)
	c.Expr = expr
	c.DataType = expr.Type()
	return &formula.CellRef{Cell: c}
}

func num(v float64) *formula.Constant { return formula.NewConstant(v) }

func str(v string) *formula.Constant { return formula.NewConstant(v) }

func op(o formula.Op, args ...formula.Node) *formula.Operator {
	dt := formula.Numeric
	if o == formula.OpConcat {
		dt = formula.String
	}
	return &formula.Operator{Op: o, Operands: args, DataType: dt}
}

func fn(f formula.Func, args ...formula.Node) *formula.Function {
	return &formula.Function{Fn: f, Arguments: args, DataType: formula.Numeric}
}

func ref(name string) *formula.LetVar {
	return &formula.LetVar{Name: name, DataType: formula.Numeric}
}

// sumDef adds its elements; commutative unless an index is asked for.
func sumDef() *formula.FoldDef {
	return &formula.FoldDef{
		Accumulators: []formula.Accumulator{{Name: "acc", Init: num(0), Step: op(formula.OpAdd, ref("acc"), ref("x"))}},
		Elements:     []string{"x"},
		Commutative:  true,
	}
}

// concatDef joins its elements in order.
func concatDef() *formula.FoldDef {
	return &formula.FoldDef{
		Accumulators: []formula.Accumulator{{Name: "acc", Init: str(""), Step: op(formula.OpConcat, ref("acc"), ref("x"))}},
		Elements:     []string{"x"},
	}
}

// averageDef keeps a sum and merges it with the element count.
func averageDef() *formula.FoldDef {
	return &formula.FoldDef{
		Accumulators: []formula.Accumulator{{Name: "sum", Init: num(0), Step: op(formula.OpAdd, ref("sum"), ref("x"))}},
		Elements:     []string{"x"},
		Count:        "n",
		Merge:        op(formula.OpDiv, ref("sum"), ref("n")),
		WhenEmpty:    str("empty"),
		Commutative:  true,
	}
}

// maxDef reduces without an initial value.
func maxDef() *formula.FoldDef {
	return &formula.FoldDef{
		Accumulators: []formula.Accumulator{{Name: "m", Step: fn(formula.MAX, ref("m"), ref("x"))}},
		Elements:     []string{"x"},
		Commutative:  true,
	}
}
