// Package recode rewrites single columns: label recodes, label to missing,
// categorical to numeric conversion and constant scaling. Every operation
// returns a new column and leaves its input untouched.
package recode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

// Rule is one step of a recode. With Missing set, From becomes missing;
// otherwise From is relabelled To.
type Rule struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Missing bool   `yaml:"missing"`
}

// Label replaces every occurrence of from with to. Other values pass
// through. If to already is a level the two levels merge; otherwise to
// takes from's place in the level order.
func Label(col *table.Column, from, to string) (*table.Column, error) {
	if err := col.RequireKind(table.Categorical); err != nil {
		return nil, err
	}
	src := col.LevelIndex(from)
	if src < 0 {
		return nil, &table.UnknownLabelError{Column: col.Name, Label: from}
	}
	levels := col.Levels()
	if from == to {
		return remap(col, levels, identity(len(levels)))
	}

	dst := col.LevelIndex(to)
	if dst < 0 {
		levels[src] = to
		return remap(col, levels, identity(len(levels)))
	}

	// Merge: drop from and send its rows to to.
	next := make([]string, 0, len(levels)-1)
	mapping := make([]int, len(levels))
	for i, l := range levels {
		if i == src {
			continue
		}
		mapping[i] = len(next)
		next = append(next, l)
	}
	mapping[src] = mapping[dst]
	return remap(col, next, mapping)
}

// ToMissing turns the given labels into missing values and removes them
// from the level list.
func ToMissing(col *table.Column, labels ...string) (*table.Column, error) {
	if err := col.RequireKind(table.Categorical); err != nil {
		return nil, err
	}
	drop := make(map[int]bool, len(labels))
	for _, l := range labels {
		i := col.LevelIndex(l)
		if i < 0 {
			return nil, &table.UnknownLabelError{Column: col.Name, Label: l}
		}
		drop[i] = true
	}
	levels := col.Levels()
	next := make([]string, 0, len(levels))
	mapping := make([]int, len(levels))
	for i, l := range levels {
		if drop[i] {
			mapping[i] = -1
			continue
		}
		mapping[i] = len(next)
		next = append(next, l)
	}
	return remap(col, next, mapping)
}

// ToNumeric converts a categorical column to the literal numeric text of
// its labels. Every declared level must parse; the first that does not is
// reported as a NonNumericLabelError. Numeric input is returned as a copy.
func ToNumeric(col *table.Column) (*table.Column, error) {
	if col.Kind() == table.Numeric {
		vals, miss, _ := col.Floats()
		return table.NewNumeric(col.Name, vals, miss), nil
	}
	levels := col.Levels()
	parsed := make([]float64, len(levels))
	for i, l := range levels {
		x, err := strconv.ParseFloat(strings.TrimSpace(l), 64)
		if err != nil {
			return nil, &table.NonNumericLabelError{Column: col.Name, Label: l, Row: firstRow(col, i)}
		}
		parsed[i] = x
	}
	return fromCodes(col, func(code int) float64 { return parsed[code] }), nil
}

// ToOrdinal converts a categorical column to the 1-based position of each
// label in the level order.
func ToOrdinal(col *table.Column) (*table.Column, error) {
	if err := col.RequireKind(table.Categorical); err != nil {
		return nil, err
	}
	return fromCodes(col, func(code int) float64 { return float64(code + 1) }), nil
}

// Scale multiplies every non-missing value by factor. The product is
// computed in decimal so that e.g. 30 * 2.19 is exactly 65.7; infinite
// cells stay infinite. factor must be finite.
func Scale(col *table.Column, factor float64) (*table.Column, error) {
	if math.IsInf(factor, 0) || math.IsNaN(factor) {
		return nil, fmt.Errorf("scale %s: factor must be finite, got %v", col.Name, factor)
	}
	vals, miss, err := col.Floats()
	if err != nil {
		return nil, err
	}
	f := decimal.NewFromFloat(factor)
	for i, x := range vals {
		if miss[i] {
			continue
		}
		if math.IsInf(x, 0) {
			vals[i] = x * factor
			continue
		}
		vals[i], _ = decimal.NewFromFloat(x).Mul(f).Float64()
	}
	return table.NewNumeric(col.Name, vals, miss), nil
}

// Apply runs rules in order.
func Apply(col *table.Column, rules ...Rule) (*table.Column, error) {
	out := col
	for i, r := range rules {
		var err error
		if r.Missing {
			out, err = ToMissing(out, r.From)
		} else {
			out, err = Label(out, r.From, r.To)
		}
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return out, nil
}

func remap(col *table.Column, levels []string, mapping []int) (*table.Column, error) {
	codes, _ := col.Codes()
	for i, c := range codes {
		if c >= 0 {
			codes[i] = mapping[c]
		}
	}
	return table.NewCategorical(col.Name, levels, codes)
}

func fromCodes(col *table.Column, value func(code int) float64) *table.Column {
	codes, _ := col.Codes()
	vals := make([]float64, len(codes))
	miss := make([]bool, len(codes))
	for i, c := range codes {
		if c < 0 {
			miss[i] = true
			continue
		}
		vals[i] = value(c)
	}
	return table.NewNumeric(col.Name, vals, miss)
}

func firstRow(col *table.Column, code int) int {
	for i := 0; i < col.Len(); i++ {
		if col.Code(i) == code {
			return i
		}
	}
	return -1
}

func identity(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}
