package formula

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Address locates a cell. Row and Col are 1-based.
type Address struct {
	Sheet string
	Row   int
	Col   int
}

func (a Address) String() string {
	ref := columnName(a.Col) + strconv.Itoa(a.Row)
	if a.Sheet != "" {
		return a.Sheet + "!" + ref
	}
	return ref
}

func columnName(col int) string {
	var name []byte
	for col > 0 {
		col--
		name = append([]byte{byte('A' + col%26)}, name...)
		col /= 26
	}
	return string(name)
}

// ParseAddress parses references like "B3" or "Sheet2!AA10".
func ParseAddress(ref string) (Address, error) {
	var addr Address
	if sheet, rest, ok := strings.Cut(ref, "!"); ok {
		addr.Sheet = sheet
		ref = rest
	}
	i := 0
	for i < len(ref) && unicode.IsLetter(rune(ref[i])) {
		addr.Col = addr.Col*26 + int(unicode.ToUpper(rune(ref[i]))-'A') + 1
		i++
	}
	if i == 0 || i == len(ref) {
		return Address{}, fmt.Errorf("invalid cell reference %q", ref)
	}
	row, err := strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return Address{}, fmt.Errorf("invalid cell reference %q", ref)
	}
	addr.Row = row
	return addr, nil
}

// Section is a repeating group of rows whose size is only known at runtime.
type Section struct {
	Name   string
	Parent *Section
}

func (s *Section) String() string {
	if s.Parent != nil {
		return s.Parent.String() + "." + s.Name
	}
	return s.Name
}

// Cell is the model behind a cell reference: a literal value, a defining
// expression, or an input whose value is only known at runtime.
//
// The cached result is written by the optimizer the first time the cell is
// proven constant and is never invalidated afterwards. A Cell must not be
// shared by concurrent optimizer passes.
type Cell struct {
	Addr     Address
	Section  *Section
	Value    any
	Expr     Node
	Input    bool
	DataType DataType

	cached     *Constant
	optimizing bool
}

func (c *Cell) String() string {
	return c.Addr.String()
}

// Empty reports whether the cell has neither a value nor an expression.
func (c *Cell) Empty() bool {
	return c.Value == nil && c.Expr == nil && !c.Input
}

// CachedResult returns the memoized constant, if any.
func (c *Cell) CachedResult() (*Constant, bool) {
	return c.cached, c.cached != nil
}

// SetCachedResult memoizes the cell's constant value. Storing the same
// value again is allowed; storing a different one means two passes
// disagree about the cell and panics.
func (c *Cell) SetCachedResult(r *Constant) {
	if c.cached != nil && FormatValue(c.cached.Value) != FormatValue(r.Value) {
		panic(fmt.Sprintf("cell %s: cached %s, now %s", c, FormatValue(c.cached.Value), FormatValue(r.Value)))
	}
	c.cached = r
}

// BeginOptimizing marks the cell's expression as being optimized. It
// returns false when it already is, i.e. the reference is circular.
func (c *Cell) BeginOptimizing() bool {
	if c.optimizing {
		return false
	}
	c.optimizing = true
	return true
}

func (c *Cell) EndOptimizing() {
	c.optimizing = false
}

// Workbook owns the cells and sections that expression trees reference.
type Workbook struct {
	cells    map[Address]*Cell
	sections map[string]*Section
}

func NewWorkbook() *Workbook {
	return &Workbook{
		cells:    map[Address]*Cell{},
		sections: map[string]*Section{},
	}
}

// Cell returns the cell at addr, creating an empty one if needed.
func (w *Workbook) Cell(addr Address) *Cell {
	c, ok := w.cells[addr]
	if !ok {
		c = &Cell{Addr: addr}
		w.cells[addr] = c
	}
	return c
}

// Lookup returns the cell at addr if it exists.
func (w *Workbook) Lookup(addr Address) (*Cell, bool) {
	c, ok := w.cells[addr]
	return c, ok
}

// Section returns the named section, creating it if needed.
func (w *Workbook) Section(name string) *Section {
	s, ok := w.sections[name]
	if !ok {
		s = &Section{Name: name}
		w.sections[name] = s
	}
	return s
}

// Cells returns all cells ordered by sheet, row and column.
func (w *Workbook) Cells() []*Cell {
	cells := make([]*Cell, 0, len(w.cells))
	for _, c := range w.cells {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i].Addr, cells[j].Addr
		if a.Sheet != b.Sheet {
			return a.Sheet < b.Sheet
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	return cells
}
