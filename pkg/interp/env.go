package interp

import (
	"fmt"

	"github.com/vito/sheetc/pkg/formula"
)

// Inputs are the runtime values of input cells and the rows of sections.
type Inputs struct {
	Cells map[*formula.Cell]any
	// Sections holds one map of cell to value per runtime row.
	Sections map[*formula.Section][]map[*formula.Cell]any
}

// InputsFromDocument resolves the input values and section rows of a
// document against its workbook.
func InputsFromDocument(doc *formula.Document, wb *formula.Workbook) (Inputs, error) {
	in := Inputs{
		Cells:    map[*formula.Cell]any{},
		Sections: map[*formula.Section][]map[*formula.Cell]any{},
	}
	for ref, v := range doc.Inputs {
		cell, err := lookup(wb, ref)
		if err != nil {
			return Inputs{}, fmt.Errorf("input %s: %w", ref, err)
		}
		in.Cells[cell] = formula.NormalizeValue(v)
	}
	for name, sd := range doc.Sections {
		if sd == nil {
			continue
		}
		sec := wb.Section(name)
		for i, row := range sd.Rows {
			vals := map[*formula.Cell]any{}
			for ref, v := range row {
				cell, err := lookup(wb, ref)
				if err != nil {
					return Inputs{}, fmt.Errorf("section %s row %d: %w", name, i+1, err)
				}
				vals[cell] = formula.NormalizeValue(v)
			}
			in.Sections[sec] = append(in.Sections[sec], vals)
		}
	}
	return in, nil
}

func lookup(wb *formula.Workbook, ref string) (*formula.Cell, error) {
	addr, err := formula.ParseAddress(ref)
	if err != nil {
		return nil, err
	}
	cell, ok := wb.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("no cell at %s", addr)
	}
	return cell, nil
}

// Env is an immutable evaluation scope. Set forks a child scope.
type Env struct {
	parent *Env
	name   string
	value  any

	// origin is the cell whose formula is being evaluated.
	origin *formula.Cell
	// row is the innermost section row being evaluated, if any.
	row *row
}

type row struct {
	parent *row
	values map[*formula.Cell]any
}

func (e *Env) Get(name string) (any, bool) {
	for s := e; s != nil; s = s.parent {
		if s.name == name && s.name != "" {
			return s.value, true
		}
	}
	return nil, false
}

func (e *Env) Set(name string, value any) *Env {
	if name == "" {
		return e
	}
	return &Env{parent: e, name: name, value: value, origin: e.origin, row: e.row}
}

// SetAll binds names to values pairwise.
func (e *Env) SetAll(names []string, values []any) *Env {
	if len(names) != len(values) {
		panic(fmt.Sprintf("binding %d names to %d values", len(names), len(values)))
	}
	for i, name := range names {
		e = e.Set(name, values[i])
	}
	return e
}

func (e *Env) withRow(values map[*formula.Cell]any) *Env {
	cp := *e
	cp.row = &row{parent: e.row, values: values}
	return &cp
}

func (e *Env) outerRow() *Env {
	cp := *e
	if cp.row != nil {
		cp.row = cp.row.parent
	}
	return &cp
}

// cellValue looks a cell up in the enclosing section rows.
func (e *Env) cellValue(cell *formula.Cell) (any, bool) {
	for r := e.row; r != nil; r = r.parent {
		if v, ok := r.values[cell]; ok {
			return v, true
		}
	}
	return nil, false
}
