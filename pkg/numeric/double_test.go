package numeric

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/sheetc/pkg/formula"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, Computed, Classify(nil))
	assert.Equal(t, NotFoldable, Classify(ErrDomain))
	assert.Equal(t, NotFoldable, Classify(fmt.Errorf("wrapped: %w", ErrArithmetic)))
	assert.Equal(t, NotFoldable, Classify(ErrEnvironment))
	assert.Equal(t, Failed, Classify(errors.New("boom")))
}

func TestOperators(t *testing.T) {
	d := NewDouble(Options{})
	tests := []struct {
		op   formula.Op
		args []any
		want any
	}{
		{formula.OpAdd, []any{1.0, 2.0}, 3.0},
		{formula.OpAdd, []any{"1.5", true}, 2.5},
		{formula.OpSub, []any{nil, 2.0}, -2.0},
		{formula.OpMul, []any{3.0, 4.0}, 12.0},
		{formula.OpDiv, []any{1.0, 4.0}, 0.25},
		{formula.OpPow, []any{2.0, 10.0}, 1024.0},
		{formula.OpNeg, []any{5.0}, -5.0},
		{formula.OpPercent, []any{50.0}, 0.5},
		{formula.OpConcat, []any{"a", 1.0}, "a1"},
		{formula.OpConcat, []any{nil, true}, "TRUE"},
		{formula.OpEq, []any{"ABC", "abc"}, true},
		{formula.OpLt, []any{9.0, "a"}, true},
		{formula.OpGe, []any{2.0, 2.0}, true},
		{formula.OpNe, []any{1.0, 2.0}, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.op, tt.args), func(t *testing.T) {
			got, err := d.ComputeOperator(tt.op, tt.args...)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOperatorFailures(t *testing.T) {
	d := NewDouble(Options{})

	_, err := d.ComputeOperator(formula.OpDiv, 1.0, 0.0)
	require.ErrorIs(t, err, ErrArithmetic)

	_, err = d.ComputeOperator(formula.OpAdd, "x", 1.0)
	require.ErrorIs(t, err, ErrDomain)

	_, err = d.ComputeOperator(formula.OpAdd, 1.0)
	require.Error(t, err)
	require.Equal(t, Failed, Classify(err))
}

func TestFunctions(t *testing.T) {
	d := NewDouble(Options{})
	arr := formula.NewArray(2, 2, []any{1.0, "x", 3.0, nil})
	tests := []struct {
		fn   formula.Func
		args []any
		want any
	}{
		{formula.ABS, []any{-2.0}, 2.0},
		{formula.INT, []any{-1.5}, -2.0},
		{formula.SQRT, []any{9.0}, 3.0},
		{formula.ROUND, []any{1.2345, 2.0}, 1.23},
		{formula.ROUND, []any{2.5}, 3.0},
		{formula.MOD, []any{-1.0, 3.0}, 2.0},
		{formula.POWER, []any{3.0, 2.0}, 9.0},
		{formula.SUM, []any{arr, 10.0}, 14.0},
		{formula.PRODUCT, []any{arr}, 3.0},
		{formula.MIN, []any{arr, -1.0}, -1.0},
		{formula.MAX, []any{}, 0.0},
		{formula.AVERAGE, []any{arr}, 2.0},
		{formula.NOT, []any{0.0}, true},
		{formula.AND, []any{true, 1.0}, true},
		{formula.OR, []any{formula.NewArray(1, 2, []any{false, 0.0}), "TRUE"}, true},
		{formula.IF, []any{true, "a", "b"}, "a"},
		{formula.IF, []any{true}, 0.0},
		{formula.IF, []any{false, "a"}, false},
		{formula.CONCATENATE, []any{"a", formula.NewArray(1, 2, []any{1.0, "b"}), nil}, "a1b"},
		{formula.LEN, []any{"héllo"}, 5.0},
		{formula.UPPER, []any{"abc"}, "ABC"},
		{formula.LOWER, []any{"ABC"}, "abc"},
		{formula.LEFT, []any{"abc"}, "a"},
		{formula.RIGHT, []any{"abc", 2.0}, "bc"},
		{formula.RIGHT, []any{"abc", 10.0}, "abc"},
		{formula.INDEX, []any{formula.NewArray(1, 3, []any{"a", "b", "c"}), 2.0}, "b"},
		{formula.INDEX, []any{arr, 2.0, 1.0}, 3.0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.fn, tt.args), func(t *testing.T) {
			got, err := d.ComputeFunction(tt.fn, tt.args...)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFunctionFailures(t *testing.T) {
	d := NewDouble(Options{})
	tests := []struct {
		fn   formula.Func
		args []any
		kind error
	}{
		{formula.SQRT, []any{-1.0}, ErrDomain},
		{formula.MOD, []any{1.0, 0.0}, ErrArithmetic},
		{formula.AVERAGE, []any{formula.NewArray(1, 1, []any{"x"})}, ErrArithmetic},
		{formula.AND, nil, ErrDomain},
		{formula.NOT, []any{"maybe"}, ErrDomain},
		{formula.INDEX, []any{formula.NewArray(1, 2, []any{1.0, 2.0}), 3.0}, ErrDomain},
		{formula.INDEX, []any{formula.NewArray(2, 2, []any{1.0, 2.0, 3.0, 4.0}), 1.0}, ErrDomain},
		{formula.ROW, nil, ErrEnvironment},
		{formula.LEFT, []any{"abc", -1.0}, ErrDomain},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.fn, tt.args), func(t *testing.T) {
			_, err := d.ComputeFunction(tt.fn, tt.args...)
			require.ErrorIs(t, err, tt.kind)
		})
	}

	_, err := d.ComputeFunction("VLOOKUP", 1.0)
	require.Equal(t, Failed, Classify(err))
}

func TestVolatile(t *testing.T) {
	d := NewDouble(Options{Volatile: []formula.Func{"upper"}})
	assert.True(t, d.IsVolatile(formula.NOW))
	assert.True(t, d.IsVolatile(formula.TODAY))
	assert.True(t, d.IsVolatile(formula.RAND))
	assert.True(t, d.IsVolatile(formula.UPPER))
	assert.False(t, d.IsVolatile(formula.SUM))

	now, err := d.ComputeFunction(formula.NOW)
	require.NoError(t, err)
	assert.Greater(t, now.(float64), 45000.0)
}

func TestToBoolean(t *testing.T) {
	d := NewDouble(Options{})
	for _, v := range []any{true, 1.0, -2.0, "true", " TRUE ", formula.NewArray(1, 1, []any{1.0})} {
		b, err := d.ToBoolean(v)
		require.NoError(t, err)
		assert.True(t, b, "%v", v)
	}
	for _, v := range []any{nil, false, 0.0, "False"} {
		b, err := d.ToBoolean(v)
		require.NoError(t, err)
		assert.False(t, b, "%v", v)
	}
	_, err := d.ToBoolean("yes")
	require.ErrorIs(t, err, ErrDomain)
	_, err = d.ToBoolean(formula.NewArray(1, 2, []any{1.0, 0.0}))
	require.ErrorIs(t, err, ErrDomain)
}

func TestToInt(t *testing.T) {
	d := NewDouble(Options{})
	assert.Equal(t, 2, d.ToInt(2.9, -1))
	assert.Equal(t, -2, d.ToInt(-2.9, -1))
	assert.Equal(t, 3, d.ToInt("3", -1))
	assert.Equal(t, 1, d.ToInt(true, -1))
	assert.Equal(t, -1, d.ToInt("x", -1))
	assert.Equal(t, -1, d.ToInt(math.NaN(), -1))
	assert.Equal(t, -1, d.ToInt(math.Inf(1), -1))
}

func TestAdjustConstantValue(t *testing.T) {
	d := NewDouble(Options{})
	assert.Equal(t, 3.0, d.AdjustConstantValue(3))
	assert.Equal(t, "a", d.AdjustConstantValue("a"))
	negZero := d.AdjustConstantValue(math.Copysign(0, -1)).(float64)
	assert.False(t, math.Signbit(negZero))
	assert.Equal(t, 0.1+0.2, d.AdjustConstantValue(0.1+0.2))

	rounded := NewDouble(Options{Precision: 15})
	assert.Equal(t, 0.3, rounded.AdjustConstantValue(0.1+0.2))
	assert.Equal(t, 1.0/3, NewDouble(Options{Precision: 17}).AdjustConstantValue(1.0/3))
}
