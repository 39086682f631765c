package aggregate

import (
	"sort"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

type metricKind int

const (
	kindMean metricKind = iota
	kindMedian
	kindCount
	kindProportion
	kindWhere
)

// Metric is a named summary statistic. Metrics come from the constructors
// below; the set is closed.
type Metric struct {
	Name string
	kind metricKind
	pred func(table.Value) bool
}

// Mean is the arithmetic mean of the non-missing values.
func Mean() Metric { return Metric{Name: "mean", kind: kindMean} }

// Median is the middle non-missing value, or the mean of the two middle
// values for an even count.
func Median() Metric { return Metric{Name: "median", kind: kindMedian} }

// Count is the number of non-missing values, or of rows when Spec.Value is
// empty.
func Count() Metric { return Metric{Name: "count", kind: kindCount} }

// Proportion is a group's count as a share of the total count of the
// groups it is normalized against (see Normalize).
func Proportion() Metric { return Metric{Name: "proportion", kind: kindProportion} }

// ProportionWhere is the share of a group's non-missing values for which
// pred holds.
func ProportionWhere(name string, pred func(table.Value) bool) Metric {
	return Metric{Name: name, kind: kindWhere, pred: pred}
}

// ProportionEq is the share of a group's non-missing values equal to label.
func ProportionEq(label string) Metric {
	return ProportionWhere("prop_"+label, func(v table.Value) bool { return v.Str == label })
}

// MetricByName resolves the textual metric names used by recipes and the
// CLI: mean, median, count, proportion, and eq:<label>.
func MetricByName(name string) (Metric, bool) {
	switch name {
	case "mean":
		return Mean(), true
	case "median":
		return Median(), true
	case "count":
		return Count(), true
	case "proportion":
		return Proportion(), true
	}
	if len(name) > 3 && name[:3] == "eq:" {
		return ProportionEq(name[3:]), true
	}
	return Metric{}, false
}

func (m Metric) needsNumeric() bool { return m.kind == kindMean || m.kind == kindMedian }

func (m Metric) needsValue() bool { return m.kind != kindCount && m.kind != kindProportion }

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
