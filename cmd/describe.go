package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom/internal/analysis"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/utils"
)

var (
	descOutputPath string
	descSampleRows int
	descTopLevels  int
	descOutliers   bool
	descOutlierThr float64
	descJSON       bool
)

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Describe the columns of a .dta or .csv dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		opt := analysis.DefaultOptions()
		opt.SampleRows = settings().SampleRows
		if cmd.Flags().Changed("sample-rows") {
			opt.SampleRows = descSampleRows
		}
		if descTopLevels > 0 {
			opt.TopLevels = descTopLevels
		}
		opt.Outliers = descOutliers
		if descOutlierThr > 0 {
			opt.OutlierThreshold = descOutlierThr
		}

		t, err := loadTable(path)
		if err != nil {
			return err
		}
		rep := analysis.Describe(filepath.Base(path), t, opt)
		logging.WithRun(rep.ID).Debug("dataset described", "warnings", len(rep.Warnings))
		if descJSON {
			b, err := utils.PrettyJSON(rep)
			if err != nil {
				return err
			}
			return emit(cmd, descOutputPath, b)
		}
		return emit(cmd, descOutputPath, []byte(rep.Markdown()))
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVarP(&descOutputPath, "output", "o", "", "optional path to write the description (Markdown)")
	describeCmd.Flags().IntVar(&descSampleRows, "sample-rows", 5, "number of sample rows to include (overrides config)")
	describeCmd.Flags().IntVar(&descTopLevels, "top", 5, "most frequent levels listed per categorical column")
	describeCmd.Flags().BoolVar(&descOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	describeCmd.Flags().BoolVar(&descJSON, "json", false, "emit the description as JSON instead of Markdown")
	describeCmd.Flags().Float64Var(&descOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
}
