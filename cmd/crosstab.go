package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom/internal/aggregate"
	"github.com/KaramelBytes/surveyloom/internal/render"
)

var (
	ctRow         string
	ctCol         string
	ctProportions bool
	ctMargin      string
	ctTitle       string
	ctOutputPath  string
)

var crosstabCmd = &cobra.Command{
	Use:   "crosstab <file>",
	Short: "Count or share rows by two categorical columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		margin, err := aggregate.ParseMargin(ctMargin)
		if err != nil {
			return err
		}
		t, err := loadTable(args[0])
		if err != nil {
			return err
		}
		ct, err := aggregate.Contingency(t, ctRow, ctCol, aggregate.CrosstabOptions{Proportions: ctProportions, Margin: margin})
		if err != nil {
			return err
		}
		out, err := ct.Table()
		if err != nil {
			return err
		}
		var notes []string
		if ct.Excluded > 0 {
			notes = append(notes, fmt.Sprintf("%d rows with a missing %s or %s excluded", ct.Excluded, ctRow, ctCol))
		}
		return renderTo(cmd, ctOutputPath, out, render.Options{Title: ctTitle, Notes: notes})
	},
}

func init() {
	rootCmd.AddCommand(crosstabCmd)
	crosstabCmd.Flags().StringVarP(&ctRow, "row", "r", "", "row column (required)")
	crosstabCmd.Flags().StringVarP(&ctCol, "col", "c", "", "column column (required)")
	crosstabCmd.Flags().BoolVar(&ctProportions, "proportions", false, "report shares instead of counts")
	crosstabCmd.Flags().StringVar(&ctMargin, "margin", "row", "share denominator with --proportions: row | col | none")
	crosstabCmd.Flags().StringVar(&ctTitle, "title", "", "table title")
	crosstabCmd.Flags().StringVarP(&ctOutputPath, "output", "o", "", "optional path to write the table")
	_ = crosstabCmd.MarkFlagRequired("row")
	_ = crosstabCmd.MarkFlagRequired("col")
}
