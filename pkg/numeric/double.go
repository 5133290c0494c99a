package numeric

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vito/sheetc/pkg/formula"
)

// Options configures the Double engine.
type Options struct {
	// Precision rounds folded constants to this many significant digits.
	// Zero leaves them untouched.
	Precision int
	// Volatile adds functions to the built-in volatile set (NOW, TODAY,
	// RAND).
	Volatile []formula.Func
}

// Double computes over float64 numbers with spreadsheet coercion rules.
type Double struct {
	opts     Options
	volatile map[formula.Func]bool
}

var _ Engine = (*Double)(nil)

func NewDouble(opts Options) *Double {
	volatile := map[formula.Func]bool{
		formula.NOW:   true,
		formula.TODAY: true,
		formula.RAND:  true,
	}
	for _, fn := range opts.Volatile {
		volatile[formula.Func(strings.ToUpper(string(fn)))] = true
	}
	return &Double{opts: opts, volatile: volatile}
}

func (d *Double) IsVolatile(fn formula.Func) bool {
	return d.volatile[fn]
}

func (d *Double) AdjustConstantValue(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return x
		}
		if x == 0 {
			// drop negative zero
			return 0.0
		}
		if d.opts.Precision > 0 {
			rounded, err := strconv.ParseFloat(strconv.FormatFloat(x, 'g', d.opts.Precision, 64), 64)
			if err == nil {
				return rounded
			}
		}
		return x
	}
	return v
}

func (d *Double) ToBoolean(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q is not a boolean", ErrDomain, x)
	case *formula.Array:
		if len(x.Values) == 1 {
			return d.ToBoolean(x.Values[0])
		}
	}
	return false, fmt.Errorf("%w: %s is not a boolean", ErrDomain, formula.FormatValue(v))
}

func (d *Double) ToInt(v any, def int) int {
	f, err := toNumber(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return int(math.Trunc(f))
}

func (d *Double) ComputeOperator(op formula.Op, args ...any) (any, error) {
	if op.Unary() {
		if len(args) != 1 {
			return nil, fmt.Errorf("operator %s takes one operand, got %d", op, len(args))
		}
		x, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		if op == formula.OpNeg {
			return -x, nil
		}
		return x / 100, nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("operator %s takes two operands, got %d", op, len(args))
	}
	a, b := args[0], args[1]
	switch op {
	case formula.OpConcat:
		sa, err := toText(a)
		if err != nil {
			return nil, err
		}
		sb, err := toText(b)
		if err != nil {
			return nil, err
		}
		return sa + sb, nil
	case formula.OpEq, formula.OpNe, formula.OpLt, formula.OpLe, formula.OpGt, formula.OpGe:
		c, err := compare(a, b)
		if err != nil {
			return nil, err
		}
		switch op {
		case formula.OpEq:
			return c == 0, nil
		case formula.OpNe:
			return c != 0, nil
		case formula.OpLt:
			return c < 0, nil
		case formula.OpLe:
			return c <= 0, nil
		case formula.OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	x, err := toNumber(a)
	if err != nil {
		return nil, err
	}
	y, err := toNumber(b)
	if err != nil {
		return nil, err
	}
	switch op {
	case formula.OpAdd:
		return x + y, nil
	case formula.OpSub:
		return x - y, nil
	case formula.OpMul:
		return x * y, nil
	case formula.OpDiv:
		if y == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
		}
		return x / y, nil
	case formula.OpPow:
		return math.Pow(x, y), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

func (d *Double) ComputeFunction(fn formula.Func, args ...any) (any, error) {
	switch fn {
	case formula.ABS:
		return unary(args, math.Abs)
	case formula.INT:
		return unary(args, math.Floor)
	case formula.SQRT:
		x, err := oneNumber(args)
		if err != nil {
			return nil, err
		}
		if x < 0 {
			return nil, fmt.Errorf("%w: square root of %v", ErrDomain, x)
		}
		return math.Sqrt(x), nil
	case formula.ROUND:
		x, err := argNumber(args, 0, 0)
		if err != nil {
			return nil, err
		}
		digits, err := argNumber(args, 1, 0)
		if err != nil {
			return nil, err
		}
		scale := math.Pow(10, math.Trunc(digits))
		return math.Round(x*scale) / scale, nil
	case formula.MOD:
		x, err := argNumber(args, 0, 0)
		if err != nil {
			return nil, err
		}
		y, err := argNumber(args, 1, 0)
		if err != nil {
			return nil, err
		}
		if y == 0 {
			return nil, fmt.Errorf("%w: MOD by zero", ErrArithmetic)
		}
		return x - y*math.Floor(x/y), nil
	case formula.POWER:
		x, err := argNumber(args, 0, 0)
		if err != nil {
			return nil, err
		}
		y, err := argNumber(args, 1, 1)
		if err != nil {
			return nil, err
		}
		return math.Pow(x, y), nil
	case formula.SUM, formula.PRODUCT, formula.MIN, formula.MAX, formula.AVERAGE:
		return aggregate(fn, args)
	case formula.NOT:
		b, err := d.ToBoolean(firstArg(args))
		if err != nil {
			return nil, err
		}
		return !b, nil
	case formula.AND, formula.OR:
		return d.logical(fn, args)
	case formula.IF:
		c, err := d.ToBoolean(firstArg(args))
		if err != nil {
			return nil, err
		}
		if c {
			return argAt(args, 1, 0.0), nil
		}
		return argAt(args, 2, false), nil
	case formula.CONCATENATE:
		var b strings.Builder
		for _, v := range flatten(args) {
			s, err := toText(v)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case formula.LEN:
		s, err := toText(firstArg(args))
		if err != nil {
			return nil, err
		}
		return float64(utf8.RuneCountInString(s)), nil
	case formula.UPPER, formula.LOWER:
		s, err := toText(firstArg(args))
		if err != nil {
			return nil, err
		}
		if fn == formula.UPPER {
			return strings.ToUpper(s), nil
		}
		return strings.ToLower(s), nil
	case formula.LEFT, formula.RIGHT:
		return substring(fn, args)
	case formula.INDEX:
		return index(args)
	case formula.ROW, formula.COLUMN:
		return nil, fmt.Errorf("%w: %s needs the originating cell", ErrEnvironment, fn)
	case formula.NOW:
		return serialDate(time.Now()), nil
	case formula.TODAY:
		return math.Floor(serialDate(time.Now())), nil
	case formula.RAND:
		return rand.Float64(), nil
	}
	return nil, fmt.Errorf("unsupported function %s", fn)
}

func (d *Double) logical(fn formula.Func, args []any) (any, error) {
	vals := flatten(args)
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s needs at least one argument", ErrDomain, fn)
	}
	result := fn == formula.AND
	for _, v := range vals {
		b, err := d.ToBoolean(v)
		if err != nil {
			return nil, err
		}
		if fn == formula.AND {
			result = result && b
		} else {
			result = result || b
		}
	}
	return result, nil
}

func aggregate(fn formula.Func, args []any) (any, error) {
	var nums []float64
	for _, a := range args {
		if arr, ok := a.(*formula.Array); ok {
			// text and blanks inside ranges are skipped
			for _, v := range arr.Values {
				if f, ok := v.(float64); ok {
					nums = append(nums, f)
				}
			}
			continue
		}
		f, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		nums = append(nums, f)
	}
	switch fn {
	case formula.SUM:
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum, nil
	case formula.PRODUCT:
		if len(nums) == 0 {
			return 0.0, nil
		}
		prod := 1.0
		for _, n := range nums {
			prod *= n
		}
		return prod, nil
	case formula.MIN:
		if len(nums) == 0 {
			return 0.0, nil
		}
		return slices.Min(nums), nil
	case formula.MAX:
		if len(nums) == 0 {
			return 0.0, nil
		}
		return slices.Max(nums), nil
	default:
		if len(nums) == 0 {
			return nil, fmt.Errorf("%w: AVERAGE of nothing", ErrArithmetic)
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums)), nil
	}
}

func index(args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: INDEX needs an array and an index", ErrDomain)
	}
	arr, ok := args[0].(*formula.Array)
	if !ok {
		arr = formula.NewArray(1, 1, []any{args[0]})
	}
	row, err := argNumber(args, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(args) < 3 || args[2] == nil {
		i := int(row)
		if arr.Rows > 1 && arr.Cols > 1 {
			return nil, fmt.Errorf("%w: INDEX into a %dx%d array needs a column", ErrDomain, arr.Rows, arr.Cols)
		}
		if i < 1 || i > len(arr.Values) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrDomain, i)
		}
		return arr.Values[i-1], nil
	}
	col, err := argNumber(args, 2, 0)
	if err != nil {
		return nil, err
	}
	r, c := int(row), int(col)
	if r < 1 || c < 1 || r > arr.Rows || c > arr.Cols {
		return nil, fmt.Errorf("%w: index (%d, %d) out of range", ErrDomain, r, c)
	}
	return arr.At(r-1, c-1), nil
}

func substring(fn formula.Func, args []any) (any, error) {
	s, err := toText(firstArg(args))
	if err != nil {
		return nil, err
	}
	n, err := argNumber(args, 1, 1)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s with negative length", ErrDomain, fn)
	}
	runes := []rune(s)
	k := min(int(n), len(runes))
	if fn == formula.LEFT {
		return string(runes[:k]), nil
	}
	return string(runes[len(runes)-k:]), nil
}

func unary(args []any, f func(float64) float64) (any, error) {
	x, err := oneNumber(args)
	if err != nil {
		return nil, err
	}
	return f(x), nil
}

func oneNumber(args []any) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one argument, got %d", ErrDomain, len(args))
	}
	return toNumber(args[0])
}

// argNumber converts the i-th argument, using def when it was omitted.
func argNumber(args []any, i int, def float64) (float64, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	return toNumber(args[i])
}

func argAt(args []any, i int, def any) any {
	if i >= len(args) || args[i] == nil {
		return def
	}
	return args[i]
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func flatten(args []any) []any {
	var out []any
	for _, a := range args {
		if arr, ok := a.(*formula.Array); ok {
			out = append(out, arr.Values...)
			continue
		}
		out = append(out, a)
	}
	return out
}

func toNumber(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrDomain, x)
		}
		return f, nil
	case *formula.Array:
		if len(x.Values) == 1 {
			return toNumber(x.Values[0])
		}
	}
	return 0, fmt.Errorf("%w: %s is not a number", ErrDomain, formula.FormatValue(v))
}

func toText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool, float64, int:
		s := formula.FormatValue(x)
		return s, nil
	case *formula.Array:
		if len(x.Values) == 1 {
			return toText(x.Values[0])
		}
	}
	return "", fmt.Errorf("%w: %s is not text", ErrDomain, formula.FormatValue(v))
}

// compare orders values the way spreadsheets do: numbers before text,
// text compared case-insensitively.
func compare(a, b any) (int, error) {
	sa, aText := a.(string)
	sb, bText := b.(string)
	switch {
	case aText && bText:
		return strings.Compare(strings.ToLower(sa), strings.ToLower(sb)), nil
	case aText && b == nil:
		return strings.Compare(strings.ToLower(sa), ""), nil
	case bText && a == nil:
		return strings.Compare("", strings.ToLower(sb)), nil
	case aText:
		return 1, nil
	case bText:
		return -1, nil
	}
	x, err := toNumber(a)
	if err != nil {
		return 0, err
	}
	y, err := toNumber(b)
	if err != nil {
		return 0, err
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	}
	return 0, nil
}

var epoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func serialDate(t time.Time) float64 {
	return t.UTC().Sub(epoch).Hours() / 24
}
