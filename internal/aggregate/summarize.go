// Package aggregate computes grouped summaries and contingency tables.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

// Normalize selects the denominator of the Proportion metric.
type Normalize int

const (
	// WithinOuter divides by the total of the sibling groups that share
	// every key but the last, like row proportions of a contingency table.
	WithinOuter Normalize = iota
	// Overall divides by the total of all groups.
	Overall
)

// Spec describes a grouped summary.
type Spec struct {
	Keys []string
	// Value is the column the metrics read. It may be empty when only
	// Count and Proportion are requested.
	Value   string
	Metrics []Metric
	// DropMissing removes rows with a missing key component before
	// grouping. Otherwise a missing component forms its own group.
	DropMissing bool
	Normalize   Normalize
}

// Result holds the summary table, one row per group in order of first
// appearance, and the warnings raised while computing it.
type Result struct {
	Table    *table.Table
	Warnings []table.MissingDataWarning
}

type group struct {
	label string
	rows  []int
	outer string
}

// missingLabel names a missing key component in warnings. Group identity
// uses keyID, so a real "<missing>" level stays a separate group.
const missingLabel = "<missing>"

// keyID encodes one key component: a missing marker, or a valid marker
// followed by the label.
func keyID(v table.Value) string {
	if !v.Valid {
		return "\x00"
	}
	return "\x01" + v.Str
}

// GroupSummarize groups the rows of t by Keys and computes every metric
// per group. A metric with nothing to work on in a group yields a missing
// cell and a warning; the other groups are unaffected.
func GroupSummarize(t *table.Table, spec Spec) (*Result, error) {
	if len(spec.Keys) == 0 {
		return nil, errors.New("group summary: at least one key is required")
	}
	if len(spec.Metrics) == 0 {
		return nil, errors.New("group summary: at least one metric is required")
	}

	keys := make([]*table.Column, len(spec.Keys))
	for i, k := range spec.Keys {
		c, err := t.Column(k)
		if err != nil {
			return nil, err
		}
		keys[i] = c
	}

	var value *table.Column
	if spec.Value != "" {
		c, err := t.Column(spec.Value)
		if err != nil {
			return nil, err
		}
		value = c
	}
	for _, m := range spec.Metrics {
		if m.needsValue() && value == nil {
			return nil, fmt.Errorf("metric %q needs a value column", m.Name)
		}
		if m.needsNumeric() {
			if err := value.RequireKind(table.Numeric); err != nil {
				return nil, fmt.Errorf("metric %q: %w", m.Name, err)
			}
		}
	}

	groups := groupRows(t.NumRows(), keys, spec.DropMissing)

	first := make([]int, len(groups))
	for i, g := range groups {
		first[i] = g.rows[0]
	}
	out := make([]*table.Column, 0, len(keys)+len(spec.Metrics))
	for _, k := range keys {
		out = append(out, k.Take(first))
	}

	res := &Result{}
	counts := make([]float64, len(groups))
	for i, g := range groups {
		counts[i] = float64(countValues(g.rows, value))
	}
	for _, m := range spec.Metrics {
		vals := make([]float64, len(groups))
		miss := make([]bool, len(groups))
		for i, g := range groups {
			x, reason := evaluate(m, g, i, groups, counts, value, spec.Normalize)
			if reason != "" {
				miss[i] = true
				res.Warnings = append(res.Warnings, table.MissingDataWarning{Group: g.label, Metric: m.Name, Reason: reason})
				continue
			}
			vals[i] = x
		}
		out = append(out, table.NewNumeric(m.Name, vals, miss))
	}

	tbl, err := table.New(out...)
	if err != nil {
		return nil, err
	}
	res.Table = tbl
	return res, nil
}

func groupRows(n int, keys []*table.Column, dropMissing bool) []*group {
	index := map[string]*group{}
	var groups []*group
	parts := make([]string, len(keys))
	ids := make([]string, len(keys))
	for i := 0; i < n; i++ {
		skip := false
		for j, k := range keys {
			v := k.At(i)
			if !v.Valid && dropMissing {
				skip = true
				break
			}
			ids[j] = keyID(v)
			parts[j] = v.Str
			if !v.Valid {
				parts[j] = missingLabel
			}
		}
		if skip {
			continue
		}
		id := strings.Join(ids, "\x1f")
		g, ok := index[id]
		if !ok {
			g = &group{
				label: strings.Join(parts, ", "),
				outer: strings.Join(ids[:len(ids)-1], "\x1f"),
			}
			index[id] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, i)
	}
	return groups
}

func countValues(rows []int, value *table.Column) int {
	if value == nil {
		return len(rows)
	}
	n := 0
	for _, r := range rows {
		if !value.IsMissing(r) {
			n++
		}
	}
	return n
}

// evaluate computes metric m for group g. A non-empty reason means the
// cell is missing.
func evaluate(m Metric, g *group, gi int, groups []*group, counts []float64, value *table.Column, norm Normalize) (float64, string) {
	switch m.kind {
	case kindCount:
		return counts[gi], ""
	case kindProportion:
		total := 0.0
		for i, other := range groups {
			if norm == Overall || other.outer == g.outer {
				total += counts[i]
			}
		}
		if total == 0 {
			return math.NaN(), "no values among the groups it is normalized against"
		}
		return counts[gi] / total, ""
	case kindMean, kindMedian:
		xs := make([]float64, 0, len(g.rows))
		for _, r := range g.rows {
			if x, ok := value.Float(r); ok {
				xs = append(xs, x)
			}
		}
		if len(xs) == 0 {
			return math.NaN(), "no non-missing values"
		}
		if m.kind == kindMean {
			return mean(xs), ""
		}
		return median(xs), ""
	case kindWhere:
		n, hit := 0, 0
		for _, r := range g.rows {
			v := value.At(r)
			if !v.Valid {
				continue
			}
			n++
			if m.pred(v) {
				hit++
			}
		}
		if n == 0 {
			return math.NaN(), "no non-missing values"
		}
		return float64(hit) / float64(n), ""
	}
	return math.NaN(), "unknown metric"
}
