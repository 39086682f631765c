package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

// Options controls the dataset description.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// TopLevels is the number of most frequent levels listed per
	// categorical column.
	TopLevels int
	// Outlier detection via robust Z-score (MAD). If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset analysis.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		TopLevels:        5,
		Outliers:         true,
		OutlierThreshold: 3.5,
	}
}

// Report is a markdown-friendly description of a loaded dataset.
type Report struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Created  time.Time       `json:"created"`
	Rows     int             `json:"rows"`
	Cols     []ColumnSummary `json:"columns"`
	Samples  [][]string      `json:"samples,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ColumnSummary captures kind and statistics per column.
type ColumnSummary struct {
	Name string `json:"name"`
	// Label is the variable label from the source file.
	Label   string `json:"label,omitempty"`
	Kind    string `json:"kind"` // numeric|categorical
	NonNull int    `json:"non_null"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique"`
	// Numeric stats
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	// Outliers (robust Z via MAD)
	OutliersCount    int     `json:"outliers,omitempty"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`
	// Categorical levels
	Levels       int             `json:"levels,omitempty"`
	TopValues    []CategoryCount `json:"top_values,omitempty"`
	UnusedLevels []string        `json:"unused_levels,omitempty"`
	// NonNumericLevels lists the labels that stop a column whose other
	// labels are numbers from converting to numeric.
	NonNumericLevels []string `json:"non_numeric_levels,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Describe summarizes every column of t.
func Describe(name string, t *table.Table, opt Options) *Report {
	r := &Report{
		ID:      uuid.NewString(),
		Name:    name,
		Created: time.Now().UTC(),
		Rows:    t.NumRows(),
	}
	for _, c := range t.Columns() {
		var cs ColumnSummary
		if c.Kind() == table.Numeric {
			cs = describeNumeric(c, opt)
		} else {
			cs = describeCategorical(c, opt)
		}
		cs.Label = c.Description
		r.Cols = append(r.Cols, cs)

		if cs.NonNull == 0 && t.NumRows() > 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s: every value is missing", c.Name))
		}
		if len(cs.NonNumericLevels) > 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s: numeric labels except %s; recode before converting to numeric",
				c.Name, strings.Join(quoteAll(cs.NonNumericLevels), ", ")))
		}
		if cs.OutliersCount > 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %d outliers above |z|>%.1f", c.Name, cs.OutliersCount, cs.OutlierThreshold))
		}
	}

	n := opt.SampleRows
	if n > t.NumRows() {
		n = t.NumRows()
	}
	for i := 0; i < n; i++ {
		row := make([]string, 0, t.NumCols())
		for _, v := range t.Row(i) {
			if v.Valid {
				row = append(row, v.Str)
			} else {
				row = append(row, "")
			}
		}
		r.Samples = append(r.Samples, row)
	}
	return r
}

func describeNumeric(c *table.Column, opt Options) ColumnSummary {
	cs := ColumnSummary{Name: c.Name, Kind: "numeric"}
	vals := make([]float64, 0, c.Len())
	uniq := map[float64]struct{}{}
	for i := 0; i < c.Len(); i++ {
		x, ok := c.Float(i)
		if !ok {
			cs.Missing++
			continue
		}
		vals = append(vals, x)
		uniq[x] = struct{}{}
	}
	cs.NonNull = len(vals)
	cs.Unique = len(uniq)
	if len(vals) == 0 {
		return cs
	}

	cs.Min, cs.Max = vals[0], vals[0]
	sum := 0.0
	for _, x := range vals {
		cs.Min = math.Min(cs.Min, x)
		cs.Max = math.Max(cs.Max, x)
		sum += x
	}
	cs.Mean = sum / float64(len(vals))
	if len(vals) > 1 {
		ss := 0.0
		for _, x := range vals {
			d := x - cs.Mean
			ss += d * d
		}
		cs.Std = math.Sqrt(ss / float64(len(vals)-1))
	}

	med, mad := medianMAD(vals)
	cs.Median = med
	if opt.Outliers && opt.OutlierThreshold > 0 && mad > 0 {
		cs.OutlierThreshold = opt.OutlierThreshold
		for _, x := range vals {
			// 0.6745 scales MAD to a standard deviation under normality.
			z := math.Abs(0.6745 * (x - med) / mad)
			if z > opt.OutlierThreshold {
				cs.OutliersCount++
				cs.OutliersMaxAbsZ = math.Max(cs.OutliersMaxAbsZ, z)
			}
		}
	}
	return cs
}

func describeCategorical(c *table.Column, opt Options) ColumnSummary {
	levels := c.Levels()
	cs := ColumnSummary{Name: c.Name, Kind: "categorical", Levels: len(levels)}
	counts := make([]int, len(levels))
	for i := 0; i < c.Len(); i++ {
		code := c.Code(i)
		if code < 0 {
			cs.Missing++
			continue
		}
		cs.NonNull++
		counts[code]++
	}

	top := make([]CategoryCount, 0, len(levels))
	numeric := 0
	var text []string
	for i, l := range levels {
		if counts[i] == 0 {
			cs.UnusedLevels = append(cs.UnusedLevels, l)
		} else {
			cs.Unique++
			top = append(top, CategoryCount{Value: l, Count: counts[i]})
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(l), 64); err == nil {
			numeric++
		} else {
			text = append(text, l)
		}
	}
	// A mostly numeric level list with a few text labels is an open-ended
	// category such as "89 OR OLDER".
	if numeric > 0 && len(text) > 0 && numeric >= 2*len(text) {
		cs.NonNumericLevels = text
	}

	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if opt.TopLevels > 0 && len(top) > opt.TopLevels {
		top = top[:opt.TopLevels]
	}
	cs.TopValues = top
	return cs
}

// Markdown renders the report in the sectioned layout used by every
// command.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.ID != "" {
		b.WriteString(fmt.Sprintf("Run: %s\n", r.ID))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString("- " + safeName(c.Name))
		if c.Label != "" {
			b.WriteString(fmt.Sprintf(" [%s]", safeVal(c.Label)))
		}
		b.WriteString(fmt.Sprintf(": %s (non-null %d, missing %.1f%%)", c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case "numeric":
			if c.NonNull > 0 {
				b.WriteString(fmt.Sprintf("; min %.4g, max %.4g, mean %.4g, median %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Median, c.Std))
			}
		case "categorical":
			b.WriteString(fmt.Sprintf("; %d levels", c.Levels))
			if len(c.TopValues) > 0 {
				b.WriteString("; top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
			}
			if len(c.UnusedLevels) > 0 {
				b.WriteString(fmt.Sprintf("; unused: %s", safeVal(strings.Join(c.UnusedLevels, ", "))))
			}
		}
		b.WriteString("\n")
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n")
		b.WriteString("| ")
		for i := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}
func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strconv.Quote(s)
	}
	return out
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
