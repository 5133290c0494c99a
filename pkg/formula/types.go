package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DataType is the semantic type of a node or a constant value.
type DataType int

const (
	Unknown DataType = iota
	Numeric
	String
	Null
)

func (t DataType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case String:
		return "string"
	case Null:
		return "null"
	default:
		return "unknown"
	}
}

// TypeOf returns the data type a constant value carries.
func TypeOf(v any) DataType {
	switch v.(type) {
	case nil:
		return Null
	case string:
		return String
	case float64, bool, int:
		return Numeric
	default:
		return Unknown
	}
}

// Op is a spreadsheet operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpNeg
	OpPercent
	OpConcat
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var opSymbols = [...]string{
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpPow:     "^",
	OpNeg:     "-",
	OpPercent: "%",
	OpConcat:  "&",
	OpEq:      "=",
	OpNe:      "<>",
	OpLt:      "<",
	OpLe:      "<=",
	OpGt:      ">",
	OpGe:      ">=",
}

func (o Op) String() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Unary reports whether the operator takes a single operand.
func (o Op) Unary() bool {
	return o == OpNeg || o == OpPercent
}

// ParseOp resolves an operator symbol. A "-" with one operand is a negation;
// callers pass unary to disambiguate.
func ParseOp(sym string, unary bool) (Op, error) {
	if sym == "-" && unary {
		return OpNeg, nil
	}
	for op, s := range opSymbols {
		if s == sym && Op(op) != OpNeg {
			return Op(op), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", sym)
}

// Func names a spreadsheet function.
type Func string

const (
	ABS         Func = "ABS"
	AND         Func = "AND"
	AVERAGE     Func = "AVERAGE"
	COLUMN      Func = "COLUMN"
	CONCATENATE Func = "CONCATENATE"
	IF          Func = "IF"
	INDEX       Func = "INDEX"
	INT         Func = "INT"
	LEFT        Func = "LEFT"
	LEN         Func = "LEN"
	LOWER       Func = "LOWER"
	MAX         Func = "MAX"
	MIN         Func = "MIN"
	MOD         Func = "MOD"
	NOT         Func = "NOT"
	NOW         Func = "NOW"
	OR          Func = "OR"
	POWER       Func = "POWER"
	PRODUCT     Func = "PRODUCT"
	RAND        Func = "RAND"
	RIGHT       Func = "RIGHT"
	ROUND       Func = "ROUND"
	ROW         Func = "ROW"
	SQRT        Func = "SQRT"
	SUM         Func = "SUM"
	TODAY       Func = "TODAY"
	UPPER       Func = "UPPER"
)

// Array is the materialized value of a range or array literal.
type Array struct {
	Rows, Cols int
	Values     []any
}

// NewArray builds a rows x cols array; a zero shape means a single row.
func NewArray(rows, cols int, values []any) *Array {
	if rows <= 0 || cols <= 0 {
		rows, cols = 1, len(values)
	}
	return &Array{Rows: rows, Cols: cols, Values: values}
}

// At returns the element at a 0-based row and column.
func (a *Array) At(row, col int) any {
	return a.Values[row*a.Cols+col]
}

func (a *Array) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range a.Values {
		if i > 0 {
			if a.Cols > 0 && i%a.Cols == 0 {
				b.WriteString("; ")
			} else {
				b.WriteString(", ")
			}
		}
		b.WriteString(FormatValue(v))
	}
	b.WriteByte('}')
	return b.String()
}

// FormatValue renders a constant the way it would be written in a formula.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN"
		case math.IsInf(x, 1):
			return "Inf"
		case math.IsInf(x, -1):
			return "-Inf"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return strconv.Quote(x)
	case *Array:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
