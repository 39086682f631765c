// Package reshape pivots tables between long and wide layouts.
package reshape

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

// missingLabel shows a missing id component in errors.
const missingLabel = "<missing>"

// PivotWide turns one row per (id, category) into one row per id, with one
// column per category holding valueCol. Ids keep their order of first
// appearance; category columns follow the level order of nameCol (ascending
// for numeric names). Rows with a missing category are skipped. Two rows
// for the same (id, category) are a DuplicateKeyError. Absent cells are
// missing.
func PivotWide(long *table.Table, idKeys []string, nameCol, valueCol string) (*table.Table, error) {
	ids, err := columns(long, idKeys)
	if err != nil {
		return nil, err
	}
	nc, err := long.Column(nameCol)
	if err != nil {
		return nil, err
	}
	vc, err := long.Column(valueCol)
	if err != nil {
		return nil, err
	}
	names := nc.AsCategorical()
	levels := names.Levels()

	type idRow struct {
		parts []string
		first int
		cells map[int]int // category code -> source row
	}
	index := map[string]*idRow{}
	var order []*idRow
	used := make([]bool, len(levels))
	for i := 0; i < long.NumRows(); i++ {
		code := names.Code(i)
		if code < 0 {
			continue
		}
		parts := keyParts(ids, i)
		k := keyID(ids, i)
		r, ok := index[k]
		if !ok {
			r = &idRow{parts: parts, first: i, cells: map[int]int{}}
			index[k] = r
			order = append(order, r)
		}
		if _, dup := r.cells[code]; dup {
			return nil, &table.DuplicateKeyError{ID: parts, Category: levels[code]}
		}
		r.cells[code] = i
		used[code] = true
	}

	for code, lvl := range levels {
		if !used[code] {
			continue
		}
		for _, k := range idKeys {
			if k == lvl {
				return nil, fmt.Errorf("pivot wide: %s level %q clashes with id column %q", nameCol, lvl, k)
			}
		}
	}

	first := make([]int, len(order))
	for j, r := range order {
		first[j] = r.first
	}
	out := make([]*table.Column, 0, len(ids)+len(levels))
	for _, c := range ids {
		out = append(out, c.Take(first))
	}
	for code, lvl := range levels {
		if !used[code] {
			continue
		}
		// -1 marks an absent cell
		src := make([]int, len(order))
		for j, r := range order {
			if row, ok := r.cells[code]; ok {
				src[j] = row
			} else {
				src[j] = -1
			}
		}
		col, err := gather(vc, lvl, src)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return table.New(out...)
}

// PivotLong is the inverse of PivotWide: every non-missing cell of
// valueCols becomes one row holding the id columns, the source column name
// in nameCol and the cell in valueCol. The value columns must share a kind
// (and levels, when categorical).
func PivotLong(wide *table.Table, idKeys, valueCols []string, nameCol, valueCol string) (*table.Table, error) {
	if len(valueCols) == 0 {
		return nil, fmt.Errorf("pivot long: no value columns")
	}
	ids, err := columns(wide, idKeys)
	if err != nil {
		return nil, err
	}
	vals, err := columns(wide, valueCols)
	if err != nil {
		return nil, err
	}
	kind := vals[0].Kind()
	levels := vals[0].Levels()
	for _, c := range vals[1:] {
		if err := c.RequireKind(kind); err != nil {
			return nil, err
		}
		if kind == table.Categorical && !equal(levels, c.Levels()) {
			return nil, fmt.Errorf("pivot long: column %q has different levels than %q", c.Name, vals[0].Name)
		}
	}

	var rows, nameCodes, codes []int
	var nums []float64
	for i := 0; i < wide.NumRows(); i++ {
		for j, c := range vals {
			if c.IsMissing(i) {
				continue
			}
			rows = append(rows, i)
			nameCodes = append(nameCodes, j)
			if kind == table.Categorical {
				codes = append(codes, c.Code(i))
			} else {
				x, _ := c.Float(i)
				nums = append(nums, x)
			}
		}
	}

	out := make([]*table.Column, 0, len(ids)+2)
	for _, c := range ids {
		out = append(out, c.Take(rows))
	}
	nameColumn, err := table.NewCategorical(nameCol, valueCols, nameCodes)
	if err != nil {
		return nil, err
	}
	out = append(out, nameColumn)
	if kind == table.Categorical {
		vc, err := table.NewCategorical(valueCol, levels, codes)
		if err != nil {
			return nil, err
		}
		out = append(out, vc)
	} else {
		out = append(out, table.NewNumeric(valueCol, nums, nil))
	}
	return table.New(out...)
}

func columns(t *table.Table, names []string) ([]*table.Column, error) {
	out := make([]*table.Column, len(names))
	for i, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func keyParts(cols []*table.Column, i int) []string {
	parts := make([]string, len(cols))
	for j, c := range cols {
		if v := c.At(i); v.Valid {
			parts[j] = v.Str
		} else {
			parts[j] = missingLabel
		}
	}
	return parts
}

// keyID identifies the id of row i. Missing components get their own
// marker so they never collide with a level spelled like missingLabel.
func keyID(cols []*table.Column, i int) string {
	var b strings.Builder
	for j, c := range cols {
		if j > 0 {
			b.WriteByte(0x1f)
		}
		if v := c.At(i); v.Valid {
			b.WriteByte(0x01)
			b.WriteString(v.Str)
		} else {
			b.WriteByte(0x00)
		}
	}
	return b.String()
}

// gather builds a column named name from rows of src; -1 is missing.
func gather(src *table.Column, name string, rows []int) (*table.Column, error) {
	if src.Kind() == table.Categorical {
		codes := make([]int, len(rows))
		for j, r := range rows {
			codes[j] = -1
			if r >= 0 {
				codes[j] = src.Code(r)
			}
		}
		return table.NewCategorical(name, src.Levels(), codes)
	}
	vals := make([]float64, len(rows))
	miss := make([]bool, len(rows))
	for j, r := range rows {
		if r < 0 {
			miss[j] = true
			continue
		}
		x, ok := src.Float(r)
		vals[j], miss[j] = x, !ok
	}
	return table.NewNumeric(name, vals, miss), nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
