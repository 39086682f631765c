// Package binning derives categorical columns from numeric ones, either by
// equal-count quantile bins or by fixed cut points.
package binning

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

// Labels of the out-of-range bins produced by Fixed.
const (
	BelowRange = "below range"
	AboveRange = "above range"
)

// Bin describes one quantile bin after assignment.
type Bin struct {
	Label string
	Count int
	// Target is the size the bin would have without ties.
	Target int
	Min    float64
	Max    float64
}

// Summary documents a quantile binning: the size of every bin and a note
// for each bin whose size was changed by tie merging.
type Summary struct {
	Column string
	Bins   []Bin
	Notes  []string
}

// Uneven reports whether ties changed any bin size.
func (s *Summary) Uneven() bool { return len(s.Notes) > 0 }

// Quantile splits the non-missing values of col into n equal-count bins.
// Values are stably sorted; bin k covers sorted positions
// [floor(k*m/n), floor((k+1)*m/n)). A run of equal values that straddles a
// boundary goes wholly to the bin of its first position, so the lower bin
// grows and the next one shrinks (possibly to empty). labels may be nil for
// "1".."n".
func Quantile(col *table.Column, n int, labels []string) (*table.Column, *Summary, error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("quantile bins: n must be positive, got %d", n)
	}
	labels, err := binLabels(n, labels)
	if err != nil {
		return nil, nil, err
	}
	vals, miss, err := col.Floats()
	if err != nil {
		return nil, nil, err
	}

	order := make([]int, 0, len(vals))
	for i := range vals {
		if !miss[i] {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })
	m := len(order)

	codes := make([]int, len(vals))
	for i := range codes {
		codes[i] = -1
	}
	sum := &Summary{Column: col.Name, Bins: make([]Bin, n)}
	for k := range sum.Bins {
		sum.Bins[k].Label = labels[k]
		sum.Bins[k].Target = (k+1)*m/n - k*m/n
	}

	natural, bin := 0, 0
	for pos, row := range order {
		for natural+1 < n && pos >= (natural+1)*m/n {
			natural++
		}
		// A tie run stays in the bin of its first value.
		if pos == 0 || vals[row] != vals[order[pos-1]] {
			bin = natural
		}
		codes[row] = bin
		b := &sum.Bins[bin]
		if b.Count == 0 {
			b.Min = vals[row]
		}
		b.Max = vals[row]
		b.Count++
	}

	for _, b := range sum.Bins {
		if b.Count != b.Target {
			sum.Notes = append(sum.Notes, fmt.Sprintf("bin %q holds %d values instead of %d because of ties at a boundary", b.Label, b.Count, b.Target))
		}
	}

	out, err := table.NewCategorical(col.Name, labels, codes)
	if err != nil {
		return nil, nil, err
	}
	return out, sum, nil
}

// Fixed assigns each value to the interval [cuts[i], cuts[i+1]) labelled
// labels[i]. Values below cuts[0] are BelowRange and values at or above the
// last cut are AboveRange. The level order is BelowRange, labels...,
// AboveRange.
func Fixed(col *table.Column, cuts []float64, labels []string) (*table.Column, error) {
	if len(cuts) < 2 {
		return nil, fmt.Errorf("fixed bins: need at least two cut points, got %d", len(cuts))
	}
	if !sort.Float64sAreSorted(cuts) {
		return nil, fmt.Errorf("fixed bins: cut points must be ascending")
	}
	for i := 1; i < len(cuts); i++ {
		if cuts[i] == cuts[i-1] {
			return nil, fmt.Errorf("fixed bins: duplicate cut point %v", cuts[i])
		}
	}
	labels, err := binLabels(len(cuts)-1, labels)
	if err != nil {
		return nil, err
	}
	vals, miss, err := col.Floats()
	if err != nil {
		return nil, err
	}

	levels := make([]string, 0, len(labels)+2)
	levels = append(levels, BelowRange)
	levels = append(levels, labels...)
	levels = append(levels, AboveRange)

	codes := make([]int, len(vals))
	for i, x := range vals {
		if miss[i] {
			codes[i] = -1
			continue
		}
		// index of the first cut strictly greater than x
		j := sort.Search(len(cuts), func(k int) bool { return cuts[k] > x })
		codes[i] = j
	}
	return table.NewCategorical(col.Name, levels, codes)
}

func binLabels(n int, labels []string) ([]string, error) {
	if labels == nil {
		labels = make([]string, n)
		for i := range labels {
			labels[i] = strconv.Itoa(i + 1)
		}
		return labels, nil
	}
	if len(labels) != n {
		return nil, fmt.Errorf("bins: got %d labels for %d bins", len(labels), n)
	}
	return labels, nil
}
