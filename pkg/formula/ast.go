package formula

import (
	"fmt"
	"slices"

	"github.com/iancoleman/strcase"
)

// Kind tags the closed set of expression node kinds.
type Kind int

const (
	KindConstant Kind = iota
	KindOperator
	KindFunction
	KindCellRef
	KindRange
	KindLet
	KindLetVar
	KindSubstitution
	KindSwitch
	KindSwitchCase
	KindFold
	KindReduce
	KindFoldArray
	KindFoldList
	KindFoldVectors
	KindFoldDatabase
	KindParentSection
	KindSubSection
	KindCount
)

var kindNames = [...]string{
	KindConstant:      "Constant",
	KindOperator:      "Operator",
	KindFunction:      "Function",
	KindCellRef:       "CellRef",
	KindRange:         "Range",
	KindLet:           "Let",
	KindLetVar:        "LetVar",
	KindSubstitution:  "Substitution",
	KindSwitch:        "Switch",
	KindSwitchCase:    "SwitchCase",
	KindFold:          "Fold",
	KindReduce:        "Reduce",
	KindFoldArray:     "FoldArray",
	KindFoldList:      "FoldList",
	KindFoldVectors:   "FoldVectors",
	KindFoldDatabase:  "FoldDatabase",
	KindParentSection: "ParentSection",
	KindSubSection:    "SubSection",
	KindCount:         "Count",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Tag is the snake_case name used for the kind in JSON documents.
func (k Kind) Tag() string {
	return strcase.ToSnake(k.String())
}

// ParseKind resolves a JSON kind tag.
func ParseKind(tag string) (Kind, error) {
	for k := range kindNames {
		if Kind(k).Tag() == tag {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", tag)
}

// Node is one expression tree node. Trees are never mutated in place;
// rewrites go through With, which copies the node with new children.
type Node interface {
	Kind() Kind
	Type() DataType
	// Args returns the ordered children. Trailing nil entries are omitted
	// optional arguments.
	Args() []Node
	// With returns a node of the same kind with the given children.
	With(args []Node) Node
	String() string
}

// Cardinality is the effective argument count: trailing nils excluded.
func Cardinality(args []Node) int {
	n := len(args)
	for n > 0 && args[n-1] == nil {
		n--
	}
	return n
}

var (
	_ Node = (*Constant)(nil)
	_ Node = (*Operator)(nil)
	_ Node = (*Function)(nil)
	_ Node = (*CellRef)(nil)
	_ Node = (*Range)(nil)
	_ Node = (*Let)(nil)
	_ Node = (*LetVar)(nil)
	_ Node = (*Substitution)(nil)
	_ Node = (*Switch)(nil)
	_ Node = (*SwitchCase)(nil)
	_ Node = (*Fold)(nil)
	_ Node = (*Reduce)(nil)
	_ Node = (*FoldArray)(nil)
	_ Node = (*FoldList)(nil)
	_ Node = (*FoldVectors)(nil)
	_ Node = (*FoldDatabase)(nil)
	_ Node = (*ParentSection)(nil)
	_ Node = (*SubSection)(nil)
	_ Node = (*Count)(nil)
)

type Constant struct {
	Value    any
	DataType DataType
}

// NewConstant wraps a literal, inferring its data type.
func NewConstant(v any) *Constant {
	if i, ok := v.(int); ok {
		v = float64(i)
	}
	return &Constant{Value: v, DataType: TypeOf(v)}
}

func (c *Constant) Kind() Kind     { return KindConstant }
func (c *Constant) Type() DataType { return c.DataType }
func (c *Constant) Args() []Node   { return nil }
func (c *Constant) With(args []Node) Node {
	mustArity(c, args, 0)
	return c
}

type Operator struct {
	Op       Op
	Operands []Node
	DataType DataType
}

func (o *Operator) Kind() Kind     { return KindOperator }
func (o *Operator) Type() DataType { return o.DataType }
func (o *Operator) Args() []Node   { return o.Operands }
func (o *Operator) With(args []Node) Node {
	cp := *o
	cp.Operands = args
	return &cp
}

type Function struct {
	Fn        Func
	Arguments []Node
	DataType  DataType
}

func (f *Function) Kind() Kind     { return KindFunction }
func (f *Function) Type() DataType { return f.DataType }
func (f *Function) Args() []Node   { return f.Arguments }
func (f *Function) With(args []Node) Node {
	cp := *f
	cp.Arguments = args
	return &cp
}

// CellRef references a cell model.
type CellRef struct {
	Cell *Cell
}

func (r *CellRef) Kind() Kind     { return KindCellRef }
func (r *CellRef) Type() DataType { return r.Cell.DataType }
func (r *CellRef) Args() []Node   { return nil }
func (r *CellRef) With(args []Node) Node {
	mustArity(r, args, 0)
	return r
}

// Range is an array literal or a range reference, already expanded into
// its rows x cols element nodes in row-major order.
type Range struct {
	Rows, Cols int
	Elements   []Node
}

// NewVector builds a single-column range.
func NewVector(elements ...Node) *Range {
	return &Range{Rows: len(elements), Cols: 1, Elements: elements}
}

// NewRow builds a single-row range.
func NewRow(elements ...Node) *Range {
	return &Range{Rows: 1, Cols: len(elements), Elements: elements}
}

func (r *Range) Kind() Kind     { return KindRange }
func (r *Range) Type() DataType { return Unknown }
func (r *Range) Args() []Node   { return r.Elements }
func (r *Range) With(args []Node) Node {
	cp := *r
	cp.Elements = args
	if len(args) != r.Rows*r.Cols {
		cp.Rows, cp.Cols = 1, len(args)
	}
	return &cp
}

// Let binds Name to Value while evaluating In.
type Let struct {
	Name  string
	Value Node
	In    Node
}

func (l *Let) Kind() Kind     { return KindLet }
func (l *Let) Type() DataType { return l.In.Type() }
func (l *Let) Args() []Node   { return []Node{l.Value, l.In} }
func (l *Let) With(args []Node) Node {
	mustArity(l, args, 2)
	return &Let{Name: l.Name, Value: args[0], In: args[1]}
}

type LetVar struct {
	Name     string
	DataType DataType
}

func (v *LetVar) Kind() Kind     { return KindLetVar }
func (v *LetVar) Type() DataType { return v.DataType }
func (v *LetVar) Args() []Node   { return nil }
func (v *LetVar) With(args []Node) Node {
	mustArity(v, args, 0)
	return v
}

// Substitution is a group of arguments spliced into the enclosing
// argument list.
type Substitution struct {
	Elements []Node
}

func (s *Substitution) Kind() Kind     { return KindSubstitution }
func (s *Substitution) Type() DataType { return Unknown }
func (s *Substitution) Args() []Node   { return s.Elements }
func (s *Substitution) With(args []Node) Node {
	return &Substitution{Elements: args}
}

// Switch selects a case by the integer value of Selector. Default may be
// nil, in which case an unmatched selector yields NULL.
type Switch struct {
	Selector Node
	Cases    []*SwitchCase
	Default  Node
	DataType DataType
}

func (s *Switch) Kind() Kind     { return KindSwitch }
func (s *Switch) Type() DataType { return s.DataType }

func (s *Switch) Args() []Node {
	args := make([]Node, 0, len(s.Cases)+2)
	args = append(args, s.Selector)
	for _, c := range s.Cases {
		args = append(args, c)
	}
	return append(args, s.Default)
}

func (s *Switch) With(args []Node) Node {
	if len(args) < 2 {
		panic(fmt.Sprintf("switch takes a selector and a default, got %d children", len(args)))
	}
	cp := &Switch{
		Selector: args[0],
		Default:  args[len(args)-1],
		DataType: s.DataType,
	}
	for _, a := range args[1 : len(args)-1] {
		c, ok := a.(*SwitchCase)
		if !ok {
			panic(fmt.Sprintf("switch case must be a SwitchCase, got %T", a))
		}
		cp.Cases = append(cp.Cases, c)
	}
	return cp
}

type SwitchCase struct {
	Values []int
	Branch Node
}

func (c *SwitchCase) Kind() Kind     { return KindSwitchCase }
func (c *SwitchCase) Type() DataType { return c.Branch.Type() }
func (c *SwitchCase) Args() []Node   { return []Node{c.Branch} }
func (c *SwitchCase) With(args []Node) Node {
	mustArity(c, args, 1)
	return &SwitchCase{Values: c.Values, Branch: args[0]}
}

// Matches reports whether the case handles the selector value.
func (c *SwitchCase) Matches(v int) bool {
	return slices.Contains(c.Values, v)
}

// ParentSection evaluates Inner in the context of the enclosing section.
type ParentSection struct {
	Section *Section
	Inner   Node
}

func (p *ParentSection) Kind() Kind     { return KindParentSection }
func (p *ParentSection) Type() DataType { return p.Inner.Type() }
func (p *ParentSection) Args() []Node   { return []Node{p.Inner} }
func (p *ParentSection) With(args []Node) Node {
	mustArity(p, args, 1)
	return &ParentSection{Section: p.Section, Inner: args[0]}
}

// SubSection yields Elements once per row of a repeating section. Its
// size is only known at runtime.
type SubSection struct {
	Section  *Section
	Elements []Node
}

func (s *SubSection) Kind() Kind     { return KindSubSection }
func (s *SubSection) Type() DataType { return Unknown }
func (s *SubSection) Args() []Node   { return s.Elements }
func (s *SubSection) With(args []Node) Node {
	return &SubSection{Section: s.Section, Elements: args}
}

// Count counts its arguments' elements. Static is added to the result and
// carries what was already counted at compile time.
type Count struct {
	Static    int
	Arguments []Node
}

func (c *Count) Kind() Kind     { return KindCount }
func (c *Count) Type() DataType { return Numeric }
func (c *Count) Args() []Node   { return c.Arguments }
func (c *Count) With(args []Node) Node {
	return &Count{Static: c.Static, Arguments: args}
}

func mustArity(n Node, args []Node, want int) {
	if len(args) != want {
		panic(fmt.Sprintf("%s takes %d children, got %d", n.Kind(), want, len(args)))
	}
}
