// Package recipe runs a YAML description of an analysis: load a dataset,
// derive columns step by step, then answer a list of questions.
//
//	dataset: gss.dta
//	load:
//	  decode_labels: true
//	  missing_labels: [IAP, DK, NA]
//	steps:
//	  - recode: {column: age, as: age_r, rules: [{from: "89 OR OLDER", to: "90"}]}
//	  - numeric: {column: age_r, as: age_num}
//	  - scale: {column: realinc, as: realinc16, factor: 2.19}
//	  - qbin: {column: realinc16, as: inc_q, n: 5}
//	questions:
//	  - title: Happiness by income quintile
//	    crosstab: {row: inc_q, col: happy, proportions: true, margin: row}
package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/surveyloom/internal/loader"
	"github.com/KaramelBytes/surveyloom/internal/recode"
)

// Recipe is the YAML document.
type Recipe struct {
	Dataset   string          `yaml:"dataset"`
	Load      *loader.Options `yaml:"load"`
	Steps     []Step          `yaml:"steps"`
	Questions []Question      `yaml:"questions"`

	// dir resolves a relative Dataset path.
	dir string
}

// Step derives one new column. Exactly one field must be set.
type Step struct {
	Recode  *RecodeStep  `yaml:"recode"`
	Missing *MissingStep `yaml:"missing"`
	Numeric *ColumnStep  `yaml:"numeric"`
	Ordinal *ColumnStep  `yaml:"ordinal"`
	Scale   *ScaleStep   `yaml:"scale"`
	QBin    *QBinStep    `yaml:"qbin"`
	Cut     *CutStep     `yaml:"cut"`
}

// ColumnStep reads Column and adds the result as As.
type ColumnStep struct {
	Column string `yaml:"column"`
	As     string `yaml:"as"`
}

type RecodeStep struct {
	ColumnStep `yaml:",inline"`
	Rules      []recode.Rule `yaml:"rules"`
}

type MissingStep struct {
	ColumnStep `yaml:",inline"`
	Labels     []string `yaml:"labels"`
}

type ScaleStep struct {
	ColumnStep `yaml:",inline"`
	Factor     float64 `yaml:"factor"`
}

type QBinStep struct {
	ColumnStep `yaml:",inline"`
	N          int      `yaml:"n"`
	Labels     []string `yaml:"labels"`
}

type CutStep struct {
	ColumnStep `yaml:",inline"`
	Cuts       []float64 `yaml:"cuts"`
	Labels     []string  `yaml:"labels"`
}

// Question is one table to produce. Summarize or Crosstab must be set;
// Pivot reshapes the summary wide.
type Question struct {
	Title     string         `yaml:"title"`
	Summarize *SummarizeSpec `yaml:"summarize"`
	Crosstab  *CrosstabSpec  `yaml:"crosstab"`
	Pivot     *PivotSpec     `yaml:"pivot"`
}

type SummarizeSpec struct {
	Keys        []string `yaml:"keys"`
	Value       string   `yaml:"value"`
	Metrics     []string `yaml:"metrics"`
	DropMissing bool     `yaml:"drop_missing"`
	// Normalize is "within" (default) or "overall".
	Normalize string `yaml:"normalize"`
}

type CrosstabSpec struct {
	Row         string `yaml:"row"`
	Col         string `yaml:"col"`
	Proportions bool   `yaml:"proportions"`
	Margin      string `yaml:"margin"`
}

type PivotSpec struct {
	ID    []string `yaml:"id"`
	Name  string   `yaml:"name"`
	Value string   `yaml:"value"`
}

// Load reads and validates a recipe file. Unknown fields are errors.
func Load(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipe: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var r Recipe
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	r.dir = filepath.Dir(path)
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}
	return &r, nil
}

// DatasetPath returns the dataset path, resolved against the recipe file.
func (r *Recipe) DatasetPath() string {
	if r.Dataset == "" || filepath.IsAbs(r.Dataset) || r.dir == "" {
		return r.Dataset
	}
	return filepath.Join(r.dir, r.Dataset)
}

// Validate checks the recipe structure without touching data.
func (r *Recipe) Validate() error {
	if r.Dataset == "" {
		return errors.New("dataset is required")
	}
	for i, s := range r.Steps {
		if _, _, err := s.op(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	if len(r.Questions) == 0 {
		return errors.New("at least one question is required")
	}
	for i, q := range r.Questions {
		if (q.Summarize == nil) == (q.Crosstab == nil) {
			return fmt.Errorf("question %d: set exactly one of summarize or crosstab", i+1)
		}
		if q.Pivot != nil && q.Summarize == nil {
			return fmt.Errorf("question %d: pivot needs a summarize", i+1)
		}
	}
	return nil
}

// op returns the name and column target of the single operation a step
// holds.
func (s Step) op() (string, *ColumnStep, error) {
	type candidate struct {
		name string
		col  *ColumnStep
	}
	var found []candidate
	if s.Recode != nil {
		found = append(found, candidate{"recode", &s.Recode.ColumnStep})
	}
	if s.Missing != nil {
		found = append(found, candidate{"missing", &s.Missing.ColumnStep})
	}
	if s.Numeric != nil {
		found = append(found, candidate{"numeric", s.Numeric})
	}
	if s.Ordinal != nil {
		found = append(found, candidate{"ordinal", s.Ordinal})
	}
	if s.Scale != nil {
		found = append(found, candidate{"scale", &s.Scale.ColumnStep})
	}
	if s.QBin != nil {
		found = append(found, candidate{"qbin", &s.QBin.ColumnStep})
	}
	if s.Cut != nil {
		found = append(found, candidate{"cut", &s.Cut.ColumnStep})
	}
	if len(found) != 1 {
		return "", nil, fmt.Errorf("want exactly one operation, got %d", len(found))
	}
	c := found[0]
	if c.col.Column == "" || c.col.As == "" {
		return "", nil, fmt.Errorf("%s: column and as are required", c.name)
	}
	return c.name, c.col, nil
}
