// Package export writes tables to columnar files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/KaramelBytes/surveyloom/internal/table"
)

// LevelsKeyPrefix prefixes the file metadata keys that record the level
// order of categorical columns, as a JSON array.
const LevelsKeyPrefix = "surveyloom.levels."

// WriteParquet writes t as a single row group. Categorical columns become
// optional strings and numeric columns optional doubles; missing cells are
// nulls.
func WriteParquet(w io.Writer, t *table.Table) error {
	cols := t.Columns()
	group := parquet.Group{}
	opts := []parquet.WriterOption{}
	for _, c := range cols {
		if c.Kind() == table.Categorical {
			group[c.Name] = parquet.Optional(parquet.String())
			levels, err := json.Marshal(c.Levels())
			if err != nil {
				return fmt.Errorf("encode levels of %q: %w", c.Name, err)
			}
			opts = append(opts, parquet.KeyValueMetadata(LevelsKeyPrefix+c.Name, string(levels)))
		} else {
			group[c.Name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		}
	}
	schema := parquet.NewSchema("survey", group)
	opts = append(opts, schema)

	// Group fields are laid out in name order.
	order := make([]int, len(cols))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return cols[order[a]].Name < cols[order[b]].Name })

	pw := parquet.NewWriter(w, opts...)
	rows := make([]parquet.Row, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		row := make(parquet.Row, len(cols))
		for idx, j := range order {
			row[idx] = cell(cols[j], i, idx)
		}
		rows = append(rows, row)
	}
	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func cell(c *table.Column, i, idx int) parquet.Value {
	if c.IsMissing(i) {
		return parquet.NullValue().Level(0, 0, idx)
	}
	if c.Kind() == table.Categorical {
		l, _ := c.Label(i)
		return parquet.ByteArrayValue([]byte(l)).Level(0, 1, idx)
	}
	x, _ := c.Float(i)
	return parquet.DoubleValue(x).Level(0, 1, idx)
}
