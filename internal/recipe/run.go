package recipe

import (
	"fmt"
	"io"

	"github.com/KaramelBytes/surveyloom/internal/aggregate"
	"github.com/KaramelBytes/surveyloom/internal/binning"
	"github.com/KaramelBytes/surveyloom/internal/loader"
	"github.com/KaramelBytes/surveyloom/internal/recode"
	"github.com/KaramelBytes/surveyloom/internal/render"
	"github.com/KaramelBytes/surveyloom/internal/reshape"
	"github.com/KaramelBytes/surveyloom/internal/table"
)

// Answer is the result table of one question.
type Answer struct {
	Title string
	Table *table.Table
	Notes []string
}

// Outcome is everything a recipe run produced.
type Outcome struct {
	// Data is the dataset with every derived column added.
	Data    *table.Table
	Answers []Answer
	// Notes collects step-level remarks such as uneven quantile bins.
	Notes []string
}

// Run loads the recipe at path and its dataset, then executes it. defaults
// apply when the recipe has no load section.
func Run(path string, defaults loader.Options) (*Outcome, error) {
	r, err := Load(path)
	if err != nil {
		return nil, err
	}
	opts := defaults
	if r.Load != nil {
		opts = *r.Load
	}
	t, err := loader.Load(r.DatasetPath(), opts)
	if err != nil {
		return nil, err
	}
	return r.Apply(t)
}

// Apply runs the steps and questions against an already loaded table.
func (r *Recipe) Apply(t *table.Table) (*Outcome, error) {
	out := &Outcome{}
	for i, s := range r.Steps {
		col, notes, err := s.apply(t)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if t, err = t.With(col); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		out.Notes = append(out.Notes, notes...)
	}
	out.Data = t

	for i, q := range r.Questions {
		a, err := q.answer(t)
		if err != nil {
			return nil, fmt.Errorf("question %d (%s): %w", i+1, q.Title, err)
		}
		out.Answers = append(out.Answers, *a)
	}
	return out, nil
}

// Render writes every answer in format f, separated by blank lines.
func (o *Outcome) Render(w io.Writer, f render.Format, precision int) error {
	for i, a := range o.Answers {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := render.Table(w, a.Table, f, render.Options{Title: a.Title, Precision: precision, Notes: a.Notes}); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) apply(t *table.Table) (*table.Column, []string, error) {
	name, target, err := s.op()
	if err != nil {
		return nil, nil, err
	}
	src, err := t.Column(target.Column)
	if err != nil {
		return nil, nil, err
	}

	var col *table.Column
	var notes []string
	switch name {
	case "recode":
		col, err = recode.Apply(src, s.Recode.Rules...)
	case "missing":
		col, err = recode.ToMissing(src, s.Missing.Labels...)
	case "numeric":
		col, err = recode.ToNumeric(src)
	case "ordinal":
		col, err = recode.ToOrdinal(src)
	case "scale":
		col, err = recode.Scale(src, s.Scale.Factor)
	case "qbin":
		var sum *binning.Summary
		col, sum, err = binning.Quantile(src, s.QBin.N, s.QBin.Labels)
		if sum != nil {
			for _, n := range sum.Notes {
				notes = append(notes, fmt.Sprintf("%s: %s", target.As, n))
			}
		}
	case "cut":
		col, err = binning.Fixed(src, s.Cut.Cuts, s.Cut.Labels)
	}
	if err != nil {
		return nil, nil, err
	}
	return col.Rename(target.As), notes, nil
}

func (q Question) answer(t *table.Table) (*Answer, error) {
	a := &Answer{Title: q.Title}
	if q.Crosstab != nil {
		margin, err := aggregate.ParseMargin(q.Crosstab.Margin)
		if err != nil {
			return nil, err
		}
		ct, err := aggregate.Contingency(t, q.Crosstab.Row, q.Crosstab.Col, aggregate.CrosstabOptions{
			Proportions: q.Crosstab.Proportions,
			Margin:      margin,
		})
		if err != nil {
			return nil, err
		}
		if a.Table, err = ct.Table(); err != nil {
			return nil, err
		}
		if ct.Excluded > 0 {
			a.Notes = append(a.Notes, fmt.Sprintf("%d rows with a missing %s or %s excluded", ct.Excluded, ct.RowKey, ct.ColKey))
		}
		return a, nil
	}

	spec, err := q.Summarize.toSpec()
	if err != nil {
		return nil, err
	}
	res, err := aggregate.GroupSummarize(t, spec)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		a.Notes = append(a.Notes, w.String())
	}
	a.Table = res.Table
	if q.Pivot != nil {
		if a.Table, err = reshape.PivotWide(res.Table, q.Pivot.ID, q.Pivot.Name, q.Pivot.Value); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (s *SummarizeSpec) toSpec() (aggregate.Spec, error) {
	spec := aggregate.Spec{Keys: s.Keys, Value: s.Value, DropMissing: s.DropMissing}
	switch s.Normalize {
	case "", "within":
		spec.Normalize = aggregate.WithinOuter
	case "overall":
		spec.Normalize = aggregate.Overall
	default:
		return spec, fmt.Errorf("unknown normalize %q (want within or overall)", s.Normalize)
	}
	for _, name := range s.Metrics {
		m, ok := aggregate.MetricByName(name)
		if !ok {
			return spec, fmt.Errorf("unknown metric %q", name)
		}
		spec.Metrics = append(spec.Metrics, m)
	}
	return spec, nil
}
