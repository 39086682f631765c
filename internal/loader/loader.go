// Package loader reads survey datasets (Stata dta or CSV) into tables.
package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/KaramelBytes/surveyloom/internal/dta"
	"github.com/KaramelBytes/surveyloom/internal/recode"
	"github.com/KaramelBytes/surveyloom/internal/table"
)

// Options controls how a dataset is turned into a table.
type Options struct {
	// DecodeLabels turns numeric variables with a value label dictionary
	// into categorical columns. Otherwise they stay numeric codes.
	DecodeLabels bool `yaml:"decode_labels" mapstructure:"decode_labels"`
	// Levels declares the ordered level list of named columns.
	Levels map[string][]string `yaml:"levels" mapstructure:"levels"`
	// MissingLabels are converted to missing on every categorical column
	// that declares them.
	MissingLabels []string `yaml:"missing_labels" mapstructure:"missing_labels"`
}

// csvMissing are the cell values read as missing in CSV input.
var csvMissing = []string{"", "NA", "NaN", "<nil>"}

// Load reads the dataset at path, dispatching on its extension.
func Load(path string, opts Options) (*table.Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".dta" && ext != ".csv" {
		return nil, &table.FormatError{Path: path, Err: fmt.Errorf("unsupported file type %q (want .dta or .csv)", ext)}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var t *table.Table
	if ext == ".dta" {
		t, err = ReadDTA(f, opts)
	} else {
		t, err = ReadCSV(f, opts)
	}
	if fe, ok := err.(*table.FormatError); ok && fe.Path == "" {
		fe.Path = path
	}
	return t, err
}

// ReadDTA reads a Stata dta stream.
func ReadDTA(r io.ReadSeeker, opts Options) (*table.Table, error) {
	rdr, err := dta.NewReader(r)
	if err != nil {
		return nil, &table.FormatError{Err: err}
	}
	vars, err := rdr.Read()
	if err != nil {
		return nil, &table.FormatError{Err: err}
	}

	cols := make([]*table.Column, 0, len(vars))
	for _, v := range vars {
		var col *table.Column
		switch {
		case v.IsString:
			col, err = stringColumn(v.Name, v.Strings, v.Missing, opts.Levels[v.Name])
		case opts.DecodeLabels && rdr.ValueLabels[v.ValueLabel] != nil:
			col, err = labelledColumn(v, rdr.ValueLabels[v.ValueLabel], opts.Levels[v.Name])
		default:
			col = table.NewNumeric(v.Name, v.Numbers, v.Missing)
		}
		if err != nil {
			return nil, err
		}
		col.Description = v.Label
		cols = append(cols, col)
	}
	return finish(cols, opts)
}

// ReadCSV reads a CSV stream with a header row.
func ReadCSV(r io.Reader, opts Options) (*table.Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(csvMissing),
	)
	if df.Err != nil {
		return nil, &table.FormatError{Err: df.Err}
	}

	cols := make([]*table.Column, 0, df.Ncol())
	for _, name := range df.Names() {
		s := df.Col(name)
		n := s.Len()
		cells := make([]string, n)
		missing := make([]bool, n)
		for i := 0; i < n; i++ {
			e := s.Elem(i)
			if e.IsNA() {
				missing[i] = true
				continue
			}
			cells[i] = e.String()
		}

		var col *table.Column
		var err error
		if declared, ok := opts.Levels[name]; ok {
			col, err = table.CategoricalFromLabels(name, declared, cells, missing)
		} else if vals, ok := parseNumbers(cells, missing); ok {
			col = table.NewNumeric(name, vals, missing)
		} else {
			col, err = stringColumn(name, cells, missing, nil)
		}
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return finish(cols, opts)
}

func finish(cols []*table.Column, opts Options) (*table.Table, error) {
	if len(opts.MissingLabels) > 0 {
		for i, c := range cols {
			if c.Kind() != table.Categorical {
				continue
			}
			var present []string
			for _, l := range opts.MissingLabels {
				if c.HasLevel(l) {
					present = append(present, l)
				}
			}
			if len(present) == 0 {
				continue
			}
			nc, err := recode.ToMissing(c, present...)
			if err != nil {
				return nil, err
			}
			nc.Description = c.Description
			cols[i] = nc
		}
	}
	t, err := table.New(cols...)
	if err != nil {
		return nil, &table.FormatError{Err: err}
	}
	return t, nil
}

// stringColumn builds a categorical column from text cells. Empty cells are
// missing. Levels are the declared list, or the sorted distinct values.
func stringColumn(name string, cells []string, missing []bool, declared []string) (*table.Column, error) {
	miss := make([]bool, len(cells))
	for i, s := range cells {
		miss[i] = s == "" || (missing != nil && missing[i])
	}
	levels := declared
	if levels == nil {
		seen := map[string]struct{}{}
		for i, s := range cells {
			if miss[i] {
				continue
			}
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				levels = append(levels, s)
			}
		}
		sort.Strings(levels)
	}
	return table.CategoricalFromLabels(name, levels, cells, miss)
}

// labelledColumn decodes a numeric variable through its value label
// dictionary. Observed codes without a label keep their numeric text; the
// level order follows the numeric codes.
func labelledColumn(v *dta.Variable, dict map[int32]string, declared []string) (*table.Column, error) {
	type level struct {
		code  float64
		label string
	}
	byCode := map[float64]string{}
	for c, l := range dict {
		byCode[float64(c)] = l
	}
	labels := make([]string, len(v.Numbers))
	for i, x := range v.Numbers {
		if v.Missing[i] {
			continue
		}
		l, ok := byCode[x]
		if !ok {
			l = table.FormatFloat(x)
			byCode[x] = l
		}
		labels[i] = l
	}

	levels := declared
	if levels == nil {
		all := make([]level, 0, len(byCode))
		for c, l := range byCode {
			all = append(all, level{c, l})
		}
		sort.Slice(all, func(a, b int) bool { return all[a].code < all[b].code })
		seen := map[string]struct{}{}
		for _, lv := range all {
			// Two codes sharing a label collapse into one level.
			if _, ok := seen[lv.label]; ok {
				continue
			}
			seen[lv.label] = struct{}{}
			levels = append(levels, lv.label)
		}
	}
	return table.CategoricalFromLabels(v.Name, levels, labels, v.Missing)
}

func parseNumbers(cells []string, missing []bool) ([]float64, bool) {
	vals := make([]float64, len(cells))
	found := false
	for i, s := range cells {
		if missing[i] {
			continue
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, false
		}
		vals[i] = x
		found = true
	}
	return vals, found
}
