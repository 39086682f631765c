package aggregate

import (
	"fmt"
	"math"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

// Margin selects what crosstab proportions are normalized along.
type Margin int

const (
	// MarginNone divides by the grand total.
	MarginNone Margin = iota
	// MarginRow divides every cell by its row total.
	MarginRow
	// MarginCol divides every cell by its column total.
	MarginCol
)

func (m Margin) String() string {
	switch m {
	case MarginRow:
		return "row"
	case MarginCol:
		return "col"
	default:
		return "none"
	}
}

// ParseMargin reads "row", "col" or "none".
func ParseMargin(s string) (Margin, error) {
	switch s {
	case "row":
		return MarginRow, nil
	case "col", "column":
		return MarginCol, nil
	case "none", "":
		return MarginNone, nil
	}
	return MarginNone, fmt.Errorf("unknown margin %q (want row, col or none)", s)
}

// CrosstabOptions controls Contingency.
type CrosstabOptions struct {
	Proportions bool
	Margin      Margin
}

// Crosstab is a two-way table over every combination of row and column
// levels, zero cells included.
type Crosstab struct {
	RowKey    string
	ColKey    string
	RowLevels []string
	ColLevels []string
	// Counts[i][j] is the number of rows with row level i and column level j.
	Counts [][]float64
	// Values holds the counts, or the proportions when requested. A
	// proportion over a zero total is NaN.
	Values  [][]float64
	Options CrosstabOptions
	// Excluded is the number of rows dropped for a missing key.
	Excluded int
}

// Contingency cross-tabulates rowKey against colKey. Rows with a missing
// key are excluded. Numeric keys use their distinct values as levels.
func Contingency(t *table.Table, rowKey, colKey string, opts CrosstabOptions) (*Crosstab, error) {
	rc, err := t.Column(rowKey)
	if err != nil {
		return nil, err
	}
	cc, err := t.Column(colKey)
	if err != nil {
		return nil, err
	}
	rc, cc = rc.AsCategorical(), cc.AsCategorical()

	ct := &Crosstab{
		RowKey:    rowKey,
		ColKey:    colKey,
		RowLevels: rc.Levels(),
		ColLevels: cc.Levels(),
		Options:   opts,
	}
	ct.Counts = grid(len(ct.RowLevels), len(ct.ColLevels))
	for i := 0; i < t.NumRows(); i++ {
		r, c := rc.Code(i), cc.Code(i)
		if r < 0 || c < 0 {
			ct.Excluded++
			continue
		}
		ct.Counts[r][c]++
	}

	ct.Values = grid(len(ct.RowLevels), len(ct.ColLevels))
	rowTot := make([]float64, len(ct.RowLevels))
	colTot := make([]float64, len(ct.ColLevels))
	grand := 0.0
	for i, row := range ct.Counts {
		for j, n := range row {
			rowTot[i] += n
			colTot[j] += n
			grand += n
		}
	}
	for i, row := range ct.Counts {
		for j, n := range row {
			if !opts.Proportions {
				ct.Values[i][j] = n
				continue
			}
			var den float64
			switch opts.Margin {
			case MarginRow:
				den = rowTot[i]
			case MarginCol:
				den = colTot[j]
			default:
				den = grand
			}
			if den == 0 {
				ct.Values[i][j] = math.NaN()
				continue
			}
			ct.Values[i][j] = n / den
		}
	}
	return ct, nil
}

// Table returns the wide form: the row key column followed by one numeric
// column per column level. Zero-total proportions are missing.
func (ct *Crosstab) Table() (*table.Table, error) {
	for _, lvl := range ct.ColLevels {
		if lvl == ct.RowKey {
			return nil, fmt.Errorf("crosstab: %s level %q clashes with row key column %q", ct.ColKey, lvl, ct.RowKey)
		}
	}
	codes := make([]int, len(ct.RowLevels))
	for i := range codes {
		codes[i] = i
	}
	key, err := table.NewCategorical(ct.RowKey, ct.RowLevels, codes)
	if err != nil {
		return nil, err
	}
	cols := []*table.Column{key}
	for j, lvl := range ct.ColLevels {
		vals := make([]float64, len(ct.RowLevels))
		for i := range vals {
			vals[i] = ct.Values[i][j]
		}
		cols = append(cols, table.NewNumeric(lvl, vals, nil))
	}
	return table.New(cols...)
}

func grid(r, c int) [][]float64 {
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
	}
	return out
}
