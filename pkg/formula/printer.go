package formula

import (
	"fmt"
	"strconv"
	"strings"
)

func (c *Constant) String() string { return FormatValue(c.Value) }

func (o *Operator) String() string {
	switch {
	case o.Op == OpNeg && len(o.Operands) == 1:
		return "-" + operand(o.Operands[0])
	case o.Op == OpPercent && len(o.Operands) == 1:
		return operand(o.Operands[0]) + "%"
	}
	parts := make([]string, len(o.Operands))
	for i, arg := range o.Operands {
		parts[i] = operand(arg)
	}
	return strings.Join(parts, " "+o.Op.String()+" ")
}

func operand(n Node) string {
	if op, ok := n.(*Operator); ok && !op.Op.Unary() {
		return "(" + op.String() + ")"
	}
	return str(n)
}

func (f *Function) String() string {
	return string(f.Fn) + "(" + list(f.Arguments) + ")"
}

func (r *CellRef) String() string { return r.Cell.String() }

func (r *Range) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, el := range r.Elements {
		if i > 0 {
			if r.Cols > 0 && i%r.Cols == 0 {
				b.WriteString("; ")
			} else {
				b.WriteString(", ")
			}
		}
		b.WriteString(str(el))
	}
	b.WriteByte('}')
	return b.String()
}

func (l *Let) String() string {
	return fmt.Sprintf("LET(%s, %s, %s)", l.Name, str(l.Value), str(l.In))
}

func (v *LetVar) String() string { return v.Name }

func (s *Substitution) String() string {
	return "SPLICE(" + list(s.Elements) + ")"
}

func (s *Switch) String() string {
	parts := []string{str(s.Selector)}
	for _, c := range s.Cases {
		parts = append(parts, c.String())
	}
	if s.Default != nil {
		parts = append(parts, "DEFAULT: "+str(s.Default))
	}
	return "SWITCH(" + strings.Join(parts, ", ") + ")"
}

func (c *SwitchCase) String() string {
	vals := make([]string, len(c.Values))
	for i, v := range c.Values {
		vals[i] = strconv.Itoa(v)
	}
	return strings.Join(vals, ", ") + ": " + str(c.Branch)
}

func (p *ParentSection) String() string {
	return "PARENT(" + str(p.Inner) + ")"
}

func (s *SubSection) String() string {
	return "SECTION[" + s.Section.String() + "](" + list(s.Elements) + ")"
}

func (c *Count) String() string {
	if c.Static != 0 {
		return fmt.Sprintf("COUNT[%d](%s)", c.Static, list(c.Arguments))
	}
	return "COUNT(" + list(c.Arguments) + ")"
}

func (f *Fold) String() string {
	return "FOLD[" + defString(f.Def, f.Def.Inits(f.Seeds), f.Folded) + "](" + list(f.Elements) + ")"
}

func (r *Reduce) String() string {
	inits := make([]Node, len(r.Def.Accumulators))
	if r.Seed != nil {
		inits[0] = r.Seed
	}
	return "REDUCE[" + defString(r.Def, inits, r.Folded) + "](" + list(r.Elements) + ")"
}

func (f *FoldArray) String() string {
	return "FOLD_ARRAY[" + defString(f.Def, f.Def.Inits(nil), 0) + "](" + str(f.Array) + ")"
}

func (f *FoldList) String() string {
	return "FOLD_LIST[" + defString(f.Def, f.Def.Inits(f.Seeds), f.Folded) + "](" + list(f.Elements) + ")"
}

func (f *FoldVectors) String() string {
	return "FOLD_VECTORS[" + defString(f.Def, f.Def.Inits(f.Seeds), f.Folded) + "](" + list(f.Vectors) + ")"
}

func (f *FoldDatabase) String() string {
	def := defString(f.Def, f.Def.Inits(f.Seeds), f.Folded)
	def += "; columns " + strings.Join(f.Columns, ", ")
	if f.Filter != nil {
		def += "; filter " + str(f.Filter)
	}
	if f.FoldColumn >= 0 && f.FoldColumn < len(f.Columns) {
		def += "; fold " + f.Columns[f.FoldColumn]
	}
	return "FOLD_DB[" + def + "](" + str(f.Table) + ")"
}

// defString renders a fold definition as
// "acc = init, ...; elt, ... => step, ...; options".
func defString(def *FoldDef, inits []Node, folded int) string {
	accs := make([]string, len(def.Accumulators))
	steps := make([]string, len(def.Accumulators))
	for i, acc := range def.Accumulators {
		accs[i] = acc.Name
		if i < len(inits) && inits[i] != nil {
			accs[i] += " = " + str(inits[i])
		}
		steps[i] = str(acc.Step)
	}
	parts := []string{
		strings.Join(accs, ", "),
		strings.Join(def.Elements, ", ") + " => " + strings.Join(steps, ", "),
	}
	if def.Index != "" {
		parts = append(parts, "index "+def.Index)
	}
	if def.Count != "" {
		parts = append(parts, "count "+def.Count)
	}
	if def.Merge != nil {
		parts = append(parts, "merge "+str(def.Merge))
	}
	if def.WhenEmpty != nil {
		parts = append(parts, "empty "+str(def.WhenEmpty))
	}
	if def.Commutative {
		parts = append(parts, "commutative")
	}
	if folded > 0 {
		parts = append(parts, fmt.Sprintf("folded %d", folded))
	}
	return strings.Join(parts, "; ")
}

func list(args []Node) string {
	n := Cardinality(args)
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = str(args[i])
	}
	return strings.Join(parts, ", ")
}

func str(n Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}
