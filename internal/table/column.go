package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind distinguishes the two column representations.
type Kind int

const (
	Categorical Kind = iota
	Numeric
)

func (k Kind) String() string {
	switch k {
	case Categorical:
		return "categorical"
	case Numeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// missingCode marks a missing cell in a categorical column.
const missingCode = -1

// Column is a named sequence of cells of one kind. Categorical columns hold
// codes into an explicit, ordered level list; numeric columns hold float64
// values with a parallel missing mask. Columns are immutable once built.
type Column struct {
	Name string
	// Description is the variable label read from the source file, if any.
	Description string

	kind Kind

	// Categorical
	levels []string
	codes  []int

	// Numeric
	nums    []float64
	missing []bool
}

// Value is a single cell. Str is the label for categorical cells and the
// formatted number for numeric cells.
type Value struct {
	Str   string
	Num   float64
	Valid bool
}

// NewCategorical builds a categorical column from codes into levels. A code
// of -1 is missing. Levels must be unique.
func NewCategorical(name string, levels []string, codes []int) (*Column, error) {
	seen := make(map[string]struct{}, len(levels))
	for _, l := range levels {
		if _, ok := seen[l]; ok {
			return nil, fmt.Errorf("column %q: duplicate level %q", name, l)
		}
		seen[l] = struct{}{}
	}
	for i, c := range codes {
		if c < missingCode || c >= len(levels) {
			return nil, fmt.Errorf("column %q: code %d at row %d outside %d levels", name, c, i, len(levels))
		}
	}
	return &Column{
		Name:   name,
		kind:   Categorical,
		levels: append([]string(nil), levels...),
		codes:  append([]int(nil), codes...),
	}, nil
}

// CategoricalFromLabels builds a categorical column from per-row labels.
// Rows flagged in missing (which may be nil) are missing. A label outside
// levels is an UnknownLabelError.
func CategoricalFromLabels(name string, levels []string, labels []string, missing []bool) (*Column, error) {
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}
	codes := make([]int, len(labels))
	for i, l := range labels {
		if missing != nil && missing[i] {
			codes[i] = missingCode
			continue
		}
		c, ok := index[l]
		if !ok {
			return nil, &UnknownLabelError{Column: name, Label: l}
		}
		codes[i] = c
	}
	return NewCategorical(name, levels, codes)
}

// NewNumeric builds a numeric column. missing may be nil; NaN values are
// treated as missing as well.
func NewNumeric(name string, vals []float64, missing []bool) *Column {
	n := len(vals)
	m := make([]bool, n)
	if missing != nil {
		copy(m, missing)
	}
	v := make([]float64, n)
	for i, x := range vals {
		if math.IsNaN(x) {
			m[i] = true
			continue
		}
		if !m[i] {
			v[i] = x
		}
	}
	return &Column{Name: name, kind: Numeric, nums: v, missing: m}
}

// Kind reports whether the column is categorical or numeric.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of rows.
func (c *Column) Len() int {
	if c.kind == Categorical {
		return len(c.codes)
	}
	return len(c.nums)
}

// Levels returns a copy of the declared level order. Nil for numeric columns.
func (c *Column) Levels() []string {
	if c.kind != Categorical {
		return nil
	}
	return append([]string(nil), c.levels...)
}

// HasLevel reports whether label is a declared level.
func (c *Column) HasLevel(label string) bool {
	return c.LevelIndex(label) >= 0
}

// LevelIndex returns the position of label in the level order, or -1.
func (c *Column) LevelIndex(label string) int {
	for i, l := range c.levels {
		if l == label {
			return i
		}
	}
	return -1
}

// Code returns the level index of row i, or -1 when missing.
func (c *Column) Code(i int) int {
	return c.codes[i]
}

// IsMissing reports whether row i is missing.
func (c *Column) IsMissing(i int) bool {
	if c.kind == Categorical {
		return c.codes[i] == missingCode
	}
	return c.missing[i]
}

// CountMissing returns the number of missing rows.
func (c *Column) CountMissing() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Label returns the label of row i for categorical columns.
func (c *Column) Label(i int) (string, bool) {
	if c.kind != Categorical || c.codes[i] == missingCode {
		return "", false
	}
	return c.levels[c.codes[i]], true
}

// Float returns the value of row i for numeric columns.
func (c *Column) Float(i int) (float64, bool) {
	if c.kind != Numeric || c.missing[i] {
		return 0, false
	}
	return c.nums[i], true
}

// At returns row i as a Value.
func (c *Column) At(i int) Value {
	if c.IsMissing(i) {
		return Value{}
	}
	if c.kind == Categorical {
		return Value{Str: c.levels[c.codes[i]], Num: math.NaN(), Valid: true}
	}
	x := c.nums[i]
	return Value{Str: FormatFloat(x), Num: x, Valid: true}
}

// Floats returns copies of the numeric values and the missing mask.
func (c *Column) Floats() ([]float64, []bool, error) {
	if c.kind != Numeric {
		return nil, nil, fmt.Errorf("column %q is %s: %w", c.Name, c.kind, ErrKind)
	}
	return append([]float64(nil), c.nums...), append([]bool(nil), c.missing...), nil
}

// Codes returns a copy of the categorical codes (-1 for missing).
func (c *Column) Codes() ([]int, error) {
	if c.kind != Categorical {
		return nil, fmt.Errorf("column %q is %s: %w", c.Name, c.kind, ErrKind)
	}
	return append([]int(nil), c.codes...), nil
}

// Rename returns a copy of the column under a new name.
func (c *Column) Rename(name string) *Column {
	cp := *c
	cp.Name = name
	return &cp
}

// Take returns a new column holding the given rows, in order.
func (c *Column) Take(rows []int) *Column {
	if c.kind == Categorical {
		codes := make([]int, len(rows))
		for j, i := range rows {
			codes[j] = c.codes[i]
		}
		return &Column{Name: c.Name, Description: c.Description, kind: Categorical, levels: c.levels, codes: codes}
	}
	vals := make([]float64, len(rows))
	miss := make([]bool, len(rows))
	for j, i := range rows {
		vals[j] = c.nums[i]
		miss[j] = c.missing[i]
	}
	return &Column{Name: c.Name, Description: c.Description, kind: Numeric, nums: vals, missing: miss}
}

// AsCategorical returns the column as categorical. Numeric columns get one
// level per distinct value, in ascending order.
func (c *Column) AsCategorical() *Column {
	if c.kind == Categorical {
		return c
	}
	distinct := make([]float64, 0)
	seen := map[float64]struct{}{}
	for i, x := range c.nums {
		if c.missing[i] {
			continue
		}
		if _, ok := seen[x]; !ok {
			seen[x] = struct{}{}
			distinct = append(distinct, x)
		}
	}
	sort.Float64s(distinct)
	levels := make([]string, len(distinct))
	index := make(map[float64]int, len(distinct))
	for i, x := range distinct {
		levels[i] = FormatFloat(x)
		index[x] = i
	}
	codes := make([]int, len(c.nums))
	for i, x := range c.nums {
		if c.missing[i] {
			codes[i] = missingCode
			continue
		}
		codes[i] = index[x]
	}
	return &Column{Name: c.Name, Description: c.Description, kind: Categorical, levels: levels, codes: codes}
}

// RequireKind returns ErrKind wrapped with the column name when the column
// is not of kind k.
func (c *Column) RequireKind(k Kind) error {
	if c.kind != k {
		return fmt.Errorf("column %q is %s, want %s: %w", c.Name, c.kind, k, ErrKind)
	}
	return nil
}

// FormatFloat renders a number the way cell values are keyed and printed.
func FormatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
