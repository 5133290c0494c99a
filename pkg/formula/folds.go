package formula

// Accumulator is one accumulator slot of a fold: its name, its initial
// value and the step computing its next value.
type Accumulator struct {
	Name string
	// Init is nil for reductions, which seed from the first element.
	Init Node
	Step Node
}

// FoldDef describes the shape of a fold. It is built once with the tree
// and only ever read afterwards.
type FoldDef struct {
	Accumulators []Accumulator
	// Elements names the element(s) bound for each step. Vector folds bind
	// one name per vector.
	Elements []string
	// Index, when set, is bound to the 1-based position of the element.
	Index string
	// Count, when set, is bound to the number of folded elements while
	// evaluating Merge.
	Count string
	// Merge computes the fold's result from the final accumulators. When
	// nil the first accumulator is the result.
	Merge Node
	// WhenEmpty is the result of a fold that saw no elements at all.
	WhenEmpty Node
	// Commutative folds may fold elements out of encounter order.
	Commutative bool
}

// OrderSensitive reports whether elements must be folded in encounter
// order.
func (d *FoldDef) OrderSensitive() bool {
	return !d.Commutative || d.Index != ""
}

// AccumulatorNames lists the accumulator names in slot order.
func (d *FoldDef) AccumulatorNames() []string {
	names := make([]string, len(d.Accumulators))
	for i, acc := range d.Accumulators {
		names[i] = acc.Name
	}
	return names
}

// Inits lists the accumulator initial values, using seeds when given.
func (d *FoldDef) Inits(seeds []Node) []Node {
	if seeds != nil {
		return seeds
	}
	inits := make([]Node, len(d.Accumulators))
	for i, acc := range d.Accumulators {
		inits[i] = acc.Init
	}
	return inits
}

// Fold folds a single accumulator over a flat or nested element list.
//
// Seeds and Folded are set on residual folds: Seeds replaces the
// definition's initial values with what was already accumulated and Folded
// counts the elements that went into it.
type Fold struct {
	Def      *FoldDef
	Seeds    []Node
	Folded   int
	Elements []Node
	DataType DataType
}

func (f *Fold) Kind() Kind     { return KindFold }
func (f *Fold) Type() DataType { return f.DataType }
func (f *Fold) Args() []Node   { return f.Elements }
func (f *Fold) With(args []Node) Node {
	cp := *f
	cp.Elements = args
	return &cp
}

// Reduce folds without an initial value: the first element seeds the
// accumulator. Seed is set on residual reductions that already hold a
// value.
type Reduce struct {
	Def      *FoldDef
	Seed     Node
	Folded   int
	Elements []Node
	DataType DataType
}

func (r *Reduce) Kind() Kind     { return KindReduce }
func (r *Reduce) Type() DataType { return r.DataType }
func (r *Reduce) Args() []Node   { return r.Elements }
func (r *Reduce) With(args []Node) Node {
	cp := *r
	cp.Elements = args
	return &cp
}

// FoldArray folds over the element positions of one array, binding the
// definition's index name. It is folded whole or not at all.
type FoldArray struct {
	Def      *FoldDef
	Array    Node
	DataType DataType
}

func (f *FoldArray) Kind() Kind     { return KindFoldArray }
func (f *FoldArray) Type() DataType { return f.DataType }
func (f *FoldArray) Args() []Node   { return []Node{f.Array} }
func (f *FoldArray) With(args []Node) Node {
	mustArity(f, args, 1)
	cp := *f
	cp.Array = args[0]
	return &cp
}

// FoldList folds any number of accumulators over a flat or nested element
// list.
type FoldList struct {
	Def      *FoldDef
	Seeds    []Node
	Folded   int
	Elements []Node
	DataType DataType
}

func (f *FoldList) Kind() Kind     { return KindFoldList }
func (f *FoldList) Type() DataType { return f.DataType }
func (f *FoldList) Args() []Node   { return f.Elements }
func (f *FoldList) With(args []Node) Node {
	cp := *f
	cp.Elements = args
	return &cp
}

// FoldVectors advances several equally long vectors together, binding one
// element name per vector.
type FoldVectors struct {
	Def      *FoldDef
	Seeds    []Node
	Folded   int
	Vectors  []Node
	DataType DataType
}

func (f *FoldVectors) Kind() Kind     { return KindFoldVectors }
func (f *FoldVectors) Type() DataType { return f.DataType }
func (f *FoldVectors) Args() []Node   { return f.Vectors }
func (f *FoldVectors) With(args []Node) Node {
	cp := *f
	cp.Vectors = args
	return &cp
}

// FoldDatabase folds one column of the table rows that pass Filter. Each
// row binds Columns[i] to its i-th value while Filter and the fold step
// are evaluated. A nil Filter passes every row.
type FoldDatabase struct {
	Def        *FoldDef
	Seeds      []Node
	Folded     int
	Columns    []string
	Filter     Node
	FoldColumn int
	Table      Node
	DataType   DataType
}

func (f *FoldDatabase) Kind() Kind     { return KindFoldDatabase }
func (f *FoldDatabase) Type() DataType { return f.DataType }
func (f *FoldDatabase) Args() []Node   { return []Node{f.Table} }
func (f *FoldDatabase) With(args []Node) Node {
	mustArity(f, args, 1)
	cp := *f
	cp.Table = args[0]
	return &cp
}
