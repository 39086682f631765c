package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom/internal/export"
	"github.com/KaramelBytes/surveyloom/internal/render"
	"github.com/KaramelBytes/surveyloom/internal/table"
	"github.com/KaramelBytes/surveyloom/internal/utils"
)

var exportColumns []string

var exportCmd = &cobra.Command{
	Use:   "export <file> <out.parquet|out.csv>",
	Short: "Convert a dataset to Parquet or CSV with labels decoded",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTable(args[0])
		if err != nil {
			return err
		}
		if len(exportColumns) > 0 {
			if t, err = t.Select(exportColumns...); err != nil {
				return err
			}
		}
		if err := writeData(args[1], t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d rows to %s\n", t.NumRows(), args[1])
		return nil
	},
}

// writeData stores t by file extension.
func writeData(path string, t *table.Table) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		if err := export.WriteParquet(&buf, t); err != nil {
			return err
		}
	case ".csv":
		if err := render.WriteCSV(&buf, t, render.Options{}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported export extension %q (use .parquet or .csv)", filepath.Ext(path))
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringSliceVar(&exportColumns, "columns", nil, "comma-separated subset of columns to export")
}
