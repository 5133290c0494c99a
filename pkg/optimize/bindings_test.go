package optimize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vito/sheetc/pkg/formula"
)

func TestBindingsShadowing(t *testing.T) {
	b := NewBindings()
	outer := b.Let("x", Const(1.0, formula.Numeric))
	inner := b.Let("x", Const(2.0, formula.Numeric))

	v, known := b.Lookup("x")
	require.True(t, known)
	require.Equal(t, 2.0, v.ConstantValue())

	inner.Release()
	v, known = b.Lookup("x")
	require.True(t, known)
	require.Equal(t, 1.0, v.ConstantValue())

	undef := b.LetUndef("x")
	_, known = b.Lookup("x")
	require.False(t, known)
	undef.Release()

	outer.Release()
	require.Zero(t, b.Depth())
	require.Panics(t, func() { b.Lookup("x") })
}

func TestBindingsLetAll(t *testing.T) {
	b := NewBindings()
	scope := b.LetAll(
		[]string{"acc", "", "x"},
		[]Result{Const(1.0, formula.Numeric), Const(2.0, formula.Numeric), Const("a", formula.String)},
	)
	require.Equal(t, 2, b.Depth())
	v, _ := b.Lookup("x")
	require.Equal(t, "a", v.ConstantValue())
	scope.Release()
	require.Zero(t, b.Depth())

	require.Panics(t, func() {
		b.LetAll([]string{"a"}, nil)
	})
}

func TestBindingsUnbalanced(t *testing.T) {
	b := NewBindings()
	first := b.Let("a", Const(1.0, formula.Numeric))
	b.Let("b", Const(2.0, formula.Numeric))
	require.Panics(t, first.Release)

	require.Panics(t, func() { b.Unlet("a") })
	b.Unlet("b")
	b.Unlet("a")
	require.Panics(t, func() { b.UnletN(1) })
}
