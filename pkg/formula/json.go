package formula

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Document is the JSON form of a workbook: its sections, its cells and,
// for runtime evaluation, input values and section rows.
type Document struct {
	Sections map[string]*SectionDoc `json:"sections,omitempty"`
	Cells    map[string]*CellDoc    `json:"cells"`
	// Inputs maps input cell addresses to their runtime values.
	Inputs map[string]any `json:"inputs,omitempty"`
}

type SectionDoc struct {
	Parent string `json:"parent,omitempty"`
	// Rows holds one map of cell address to value per runtime row.
	Rows []map[string]any `json:"rows,omitempty"`
}

type CellDoc struct {
	Value   any      `json:"value,omitempty"`
	Expr    *NodeDoc `json:"expr,omitempty"`
	Input   bool     `json:"input,omitempty"`
	Section string   `json:"section,omitempty"`
	Type    string   `json:"type,omitempty"`
}

// NodeDoc is one expression node. Only the fields meaningful for Kind are
// read.
type NodeDoc struct {
	Kind       string      `json:"kind"`
	Value      any         `json:"value,omitempty"`
	Type       string      `json:"type,omitempty"`
	Op         string      `json:"op,omitempty"`
	Fn         string      `json:"fn,omitempty"`
	Cell       string      `json:"cell,omitempty"`
	Name       string      `json:"name,omitempty"`
	Rows       int         `json:"rows,omitempty"`
	Cols       int         `json:"cols,omitempty"`
	Values     []int       `json:"values,omitempty"`
	Section    string      `json:"section,omitempty"`
	Static     int         `json:"static,omitempty"`
	Def        *FoldDefDoc `json:"def,omitempty"`
	Columns    []string    `json:"columns,omitempty"`
	Filter     *NodeDoc    `json:"filter,omitempty"`
	FoldColumn int         `json:"fold_column,omitempty"`
	Args       []*NodeDoc  `json:"args,omitempty"`
}

type FoldDefDoc struct {
	Accumulators []AccumulatorDoc `json:"accumulators"`
	Elements     []string         `json:"elements"`
	Index        string           `json:"index,omitempty"`
	Count        string           `json:"count,omitempty"`
	Merge        *NodeDoc         `json:"merge,omitempty"`
	WhenEmpty    *NodeDoc         `json:"when_empty,omitempty"`
	Commutative  bool             `json:"commutative,omitempty"`
}

type AccumulatorDoc struct {
	Name string   `json:"name"`
	Init *NodeDoc `json:"init,omitempty"`
	Step *NodeDoc `json:"step"`
}

// ReadDocument decodes a workbook document.
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding workbook: %w", err)
	}
	return &doc, nil
}

// Workbook builds the cell model described by the document.
func (d *Document) Workbook() (*Workbook, error) {
	wb := NewWorkbook()
	for name, sd := range d.Sections {
		sec := wb.Section(name)
		if sd != nil && sd.Parent != "" {
			sec.Parent = wb.Section(sd.Parent)
		}
	}
	// create every cell first so expressions can reference them in any order
	for ref := range d.Cells {
		addr, err := ParseAddress(ref)
		if err != nil {
			return nil, err
		}
		wb.Cell(addr)
	}
	for ref, cd := range d.Cells {
		addr, _ := ParseAddress(ref)
		cell := wb.Cell(addr)
		if cd == nil {
			continue
		}
		cell.Value = NormalizeValue(cd.Value)
		cell.Input = cd.Input
		if cd.Section != "" {
			cell.Section = wb.Section(cd.Section)
		}
		dt, err := parseDataType(cd.Type)
		if err != nil {
			return nil, fmt.Errorf("cell %s: %w", ref, err)
		}
		cell.DataType = dt
		if cd.Expr != nil {
			expr, err := decodeNode(wb, cd.Expr)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", ref, err)
			}
			cell.Expr = expr
		}
		if cell.DataType == Unknown {
			switch {
			case cell.Expr != nil:
				cell.DataType = cell.Expr.Type()
			case cell.Value != nil:
				cell.DataType = TypeOf(cell.Value)
			}
		}
	}
	return wb, nil
}

// DecodeNode decodes a single expression against a workbook.
func DecodeNode(wb *Workbook, data []byte) (Node, error) {
	var doc NodeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return decodeNode(wb, &doc)
}

func decodeNode(wb *Workbook, d *NodeDoc) (Node, error) {
	if d == nil {
		return nil, nil
	}
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return nil, err
	}
	dt, err := parseDataType(d.Type)
	if err != nil {
		return nil, err
	}
	args, err := decodeNodes(wb, d.Args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Kind, err)
	}
	switch kind {
	case KindConstant:
		c := NewConstant(NormalizeValue(d.Value))
		if dt != Unknown {
			c.DataType = dt
		}
		return c, nil
	case KindOperator:
		op, err := ParseOp(d.Op, len(args) == 1)
		if err != nil {
			return nil, err
		}
		def := Numeric
		if op == OpConcat {
			def = String
		}
		return &Operator{Op: op, Operands: args, DataType: orType(dt, def)}, nil
	case KindFunction:
		return &Function{Fn: Func(strings.ToUpper(d.Fn)), Arguments: args, DataType: dt}, nil
	case KindCellRef:
		addr, err := ParseAddress(d.Cell)
		if err != nil {
			return nil, err
		}
		return &CellRef{Cell: wb.Cell(addr)}, nil
	case KindRange:
		rows, cols := d.Rows, d.Cols
		if rows*cols != len(args) {
			rows, cols = 1, len(args)
		}
		return &Range{Rows: rows, Cols: cols, Elements: args}, nil
	case KindLet:
		if len(args) != 2 {
			return nil, fmt.Errorf("let %s takes a value and a body", d.Name)
		}
		return &Let{Name: d.Name, Value: args[0], In: args[1]}, nil
	case KindLetVar:
		return &LetVar{Name: d.Name, DataType: dt}, nil
	case KindSubstitution:
		return &Substitution{Elements: args}, nil
	case KindSwitch:
		if len(args) < 2 {
			return nil, fmt.Errorf("switch takes a selector and a default")
		}
		sw := &Switch{Selector: args[0], Default: args[len(args)-1], DataType: dt}
		for _, a := range args[1 : len(args)-1] {
			c, ok := a.(*SwitchCase)
			if !ok {
				return nil, fmt.Errorf("switch case must be a switch_case, got %s", a.Kind().Tag())
			}
			sw.Cases = append(sw.Cases, c)
		}
		return sw, nil
	case KindSwitchCase:
		if len(args) != 1 {
			return nil, fmt.Errorf("switch_case takes one branch")
		}
		return &SwitchCase{Values: d.Values, Branch: args[0]}, nil
	case KindParentSection:
		if len(args) != 1 {
			return nil, fmt.Errorf("parent_section takes one expression")
		}
		return &ParentSection{Section: sectionOf(wb, d.Section), Inner: args[0]}, nil
	case KindSubSection:
		return &SubSection{Section: sectionOf(wb, d.Section), Elements: args}, nil
	case KindCount:
		return &Count{Static: d.Static, Arguments: args}, nil
	}

	def, err := decodeFoldDef(wb, d.Def)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Kind, err)
	}
	switch kind {
	case KindFold:
		return &Fold{Def: def, Elements: args, DataType: dt}, nil
	case KindReduce:
		return &Reduce{Def: def, Elements: args, DataType: dt}, nil
	case KindFoldList:
		return &FoldList{Def: def, Elements: args, DataType: dt}, nil
	case KindFoldVectors:
		return &FoldVectors{Def: def, Vectors: args, DataType: dt}, nil
	case KindFoldArray:
		if len(args) != 1 {
			return nil, fmt.Errorf("fold_array takes one array")
		}
		return &FoldArray{Def: def, Array: args[0], DataType: dt}, nil
	case KindFoldDatabase:
		if len(args) != 1 {
			return nil, fmt.Errorf("fold_database takes one table")
		}
		filter, err := decodeNode(wb, d.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		return &FoldDatabase{
			Def:        def,
			Columns:    d.Columns,
			Filter:     filter,
			FoldColumn: d.FoldColumn,
			Table:      args[0],
			DataType:   dt,
		}, nil
	}
	return nil, fmt.Errorf("unhandled node kind %s", kind)
}

func decodeNodes(wb *Workbook, docs []*NodeDoc) ([]Node, error) {
	if docs == nil {
		return nil, nil
	}
	nodes := make([]Node, len(docs))
	for i, d := range docs {
		n, err := decodeNode(wb, d)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func decodeFoldDef(wb *Workbook, d *FoldDefDoc) (*FoldDef, error) {
	if d == nil {
		return nil, fmt.Errorf("missing fold definition")
	}
	if len(d.Accumulators) == 0 {
		return nil, fmt.Errorf("fold definition needs an accumulator")
	}
	def := &FoldDef{
		Elements:    d.Elements,
		Index:       d.Index,
		Count:       d.Count,
		Commutative: d.Commutative,
	}
	for _, ad := range d.Accumulators {
		init, err := decodeNode(wb, ad.Init)
		if err != nil {
			return nil, fmt.Errorf("accumulator %s: %w", ad.Name, err)
		}
		step, err := decodeNode(wb, ad.Step)
		if err != nil {
			return nil, fmt.Errorf("accumulator %s: %w", ad.Name, err)
		}
		if step == nil {
			return nil, fmt.Errorf("accumulator %s has no step", ad.Name)
		}
		def.Accumulators = append(def.Accumulators, Accumulator{Name: ad.Name, Init: init, Step: step})
	}
	var err error
	if def.Merge, err = decodeNode(wb, d.Merge); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if def.WhenEmpty, err = decodeNode(wb, d.WhenEmpty); err != nil {
		return nil, fmt.Errorf("when_empty: %w", err)
	}
	return def, nil
}

func sectionOf(wb *Workbook, name string) *Section {
	if name == "" {
		return nil
	}
	return wb.Section(name)
}

func parseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "":
		return Unknown, nil
	case "numeric", "number":
		return Numeric, nil
	case "string", "text":
		return String, nil
	case "null":
		return Null, nil
	}
	return Unknown, fmt.Errorf("unknown data type %q", s)
}

func orType(dt, def DataType) DataType {
	if dt == Unknown {
		return def
	}
	return dt
}

// NormalizeValue maps decoded JSON values onto constant values: numbers
// are float64 already, arrays become *Array.
func NormalizeValue(v any) any {
	if vs, ok := v.([]any); ok {
		vals := make([]any, len(vs))
		for i, x := range vs {
			vals[i] = NormalizeValue(x)
		}
		return NewArray(1, len(vals), vals)
	}
	return v
}
