package formula

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		ref  string
		want Address
	}{
		{"A1", Address{Row: 1, Col: 1}},
		{"b3", Address{Row: 3, Col: 2}},
		{"Z9", Address{Row: 9, Col: 26}},
		{"AA10", Address{Row: 10, Col: 27}},
		{"Sheet2!C4", Address{Sheet: "Sheet2", Row: 4, Col: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			addr, err := ParseAddress(tt.ref)
			require.NoError(t, err)
			require.Equal(t, tt.want, addr)
			require.Equal(t, strings.ToUpper(tt.ref[:1])+tt.ref[1:], addr.String())
		})
	}

	for _, bad := range []string{"", "A", "12", "A0", "A-1"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestKindTags(t *testing.T) {
	assert.Equal(t, "cell_ref", KindCellRef.Tag())
	assert.Equal(t, "fold_database", KindFoldDatabase.Tag())
	for k := range kindNames {
		kind, err := ParseKind(Kind(k).Tag())
		require.NoError(t, err)
		require.Equal(t, Kind(k), kind)
	}
	_, err := ParseKind("lambda")
	require.Error(t, err)
}

func TestCardinality(t *testing.T) {
	one := NewConstant(1)
	assert.Equal(t, 0, Cardinality(nil))
	assert.Equal(t, 2, Cardinality([]Node{one, one}))
	assert.Equal(t, 1, Cardinality([]Node{one, nil, nil}))
	assert.Equal(t, 3, Cardinality([]Node{nil, nil, one}))
}

func TestPrinter(t *testing.T) {
	wb := NewWorkbook()
	a1 := &CellRef{Cell: wb.Cell(Address{Row: 1, Col: 1})}
	sum := &FoldDef{
		Accumulators: []Accumulator{{Name: "acc", Init: NewConstant(0), Step: add(&LetVar{Name: "acc"}, &LetVar{Name: "x"})}},
		Elements:     []string{"x"},
		Commutative:  true,
	}

	tests := []struct {
		name string
		node Node
		want string
	}{
		{
			name: "nested operators",
			node: add(NewConstant(1), &Operator{Op: OpMul, Operands: []Node{a1, NewConstant(2)}}),
			want: "1 + (A1 * 2)",
		},
		{
			name: "negation",
			node: &Operator{Op: OpNeg, Operands: []Node{add(a1, NewConstant(1))}},
			want: "-(A1 + 1)",
		},
		{
			name: "percent",
			node: &Operator{Op: OpPercent, Operands: []Node{NewConstant(50)}},
			want: "50%",
		},
		{
			name: "function over a range",
			node: &Function{Fn: SUM, Arguments: []Node{a1, &Range{Rows: 2, Cols: 2, Elements: []Node{
				NewConstant(1), NewConstant(2), NewConstant(3), NewConstant(4),
			}}}},
			want: "SUM(A1, {1, 2; 3, 4})",
		},
		{
			name: "omitted trailing arguments",
			node: &Function{Fn: IF, Arguments: []Node{a1, NewConstant("yes"), nil}},
			want: `IF(A1, "yes")`,
		},
		{
			name: "let",
			node: &Let{Name: "x", Value: NewConstant(1), In: add(&LetVar{Name: "x"}, NewConstant(2))},
			want: "LET(x, 1, x + 2)",
		},
		{
			name: "switch",
			node: &Switch{
				Selector: a1,
				Cases: []*SwitchCase{
					{Values: []int{1, 2}, Branch: NewConstant("a")},
					{Values: []int{3}, Branch: NewConstant("b")},
				},
				Default: NewConstant("c"),
			},
			want: `SWITCH(A1, 1, 2: "a", 3: "b", DEFAULT: "c")`,
		},
		{
			name: "fold",
			node: &Fold{Def: sum, Elements: []Node{a1, NewVector(NewConstant(1), NewConstant(2))}},
			want: "FOLD[acc = 0; x => acc + x; commutative](A1, {1; 2})",
		},
		{
			name: "seeded fold",
			node: &Fold{Def: sum, Seeds: []Node{NewConstant(3)}, Folded: 2, Elements: []Node{a1}},
			want: "FOLD[acc = 3; x => acc + x; commutative; folded 2](A1)",
		},
		{
			name: "count",
			node: &Count{Static: 2, Arguments: []Node{&SubSection{Section: wb.Section("items"), Elements: []Node{a1}}}},
			want: "COUNT[2](SECTION[items](A1))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.node.String())
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", FormatValue(nil))
	assert.Equal(t, "TRUE", FormatValue(true))
	assert.Equal(t, "0.5", FormatValue(0.5))
	assert.Equal(t, "-3", FormatValue(-3.0))
	assert.Equal(t, `"a\"b"`, FormatValue(`a"b`))
	assert.Equal(t, "{1, 2; 3, 4}", FormatValue(NewArray(2, 2, []any{1.0, 2.0, 3.0, 4.0})))
}

func TestRangeWithReshapes(t *testing.T) {
	r := &Range{Rows: 2, Cols: 2, Elements: []Node{NewConstant(1), NewConstant(2), NewConstant(3), NewConstant(4)}}

	same := r.With([]Node{NewConstant(5), NewConstant(6), NewConstant(7), NewConstant(8)}).(*Range)
	assert.Equal(t, 2, same.Rows)
	assert.Equal(t, 2, same.Cols)

	fewer := r.With([]Node{NewConstant(5)}).(*Range)
	assert.Equal(t, 1, fewer.Rows)
	assert.Equal(t, 1, fewer.Cols)
}

func TestSwitchWithRequiresCases(t *testing.T) {
	sw := &Switch{Selector: NewConstant(1), Default: NewConstant(2)}
	require.Panics(t, func() {
		sw.With([]Node{NewConstant(1)})
	})
	require.Panics(t, func() {
		sw.With([]Node{NewConstant(1), NewConstant(3), NewConstant(2)})
	})
	rebuilt := sw.With([]Node{NewConstant(1), nil}).(*Switch)
	require.Nil(t, rebuilt.Default)
}

func TestCachedResultConflict(t *testing.T) {
	cell := &Cell{Addr: Address{Row: 1, Col: 1}}
	cell.SetCachedResult(NewConstant(1))
	cell.SetCachedResult(NewConstant(1))
	require.Panics(t, func() {
		cell.SetCachedResult(NewConstant(2))
	})
}

func TestCircularMarker(t *testing.T) {
	cell := &Cell{}
	require.True(t, cell.BeginOptimizing())
	require.False(t, cell.BeginOptimizing())
	cell.EndOptimizing()
	require.True(t, cell.BeginOptimizing())
}

func add(a, b Node) *Operator {
	return &Operator{Op: OpAdd, Operands: []Node{a, b}, DataType: Numeric}
}
