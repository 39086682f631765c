package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom/internal/aggregate"
	"github.com/KaramelBytes/surveyloom/internal/render"
	"github.com/KaramelBytes/surveyloom/internal/reshape"
)

var (
	sumKeys        []string
	sumValue       string
	sumMetrics     []string
	sumDropMissing bool
	sumNormalize   string
	sumPivot       string
	sumTitle       string
	sumOutputPath  string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file>",
	Short: "Group rows by key columns and compute metrics per group",
	Example: `  surveyloom summarize gss.dta --keys degree --value evolved --metrics count,eq:TRUE
  surveyloom summarize gss.dta --keys sex,happy --metrics proportion --drop-missing --pivot happy`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := aggregate.Spec{Keys: sumKeys, Value: sumValue, DropMissing: sumDropMissing}
		switch sumNormalize {
		case "within":
			spec.Normalize = aggregate.WithinOuter
		case "overall":
			spec.Normalize = aggregate.Overall
		default:
			return fmt.Errorf("invalid --normalize: %s (use within or overall)", sumNormalize)
		}
		for _, name := range sumMetrics {
			m, ok := aggregate.MetricByName(name)
			if !ok {
				return fmt.Errorf("unknown metric %q (use mean, median, count, proportion or eq:<label>)", name)
			}
			spec.Metrics = append(spec.Metrics, m)
		}

		t, err := loadTable(args[0])
		if err != nil {
			return err
		}
		res, err := aggregate.GroupSummarize(t, spec)
		if err != nil {
			return err
		}
		out := res.Table
		if sumPivot != "" {
			var ids []string
			for _, k := range sumKeys {
				if k != sumPivot {
					ids = append(ids, k)
				}
			}
			if len(ids) == len(sumKeys) {
				return fmt.Errorf("--pivot %s must be one of --keys", sumPivot)
			}
			if out, err = reshape.PivotWide(res.Table, ids, sumPivot, spec.Metrics[0].Name); err != nil {
				return err
			}
		}

		notes := make([]string, 0, len(res.Warnings))
		for _, w := range res.Warnings {
			slog.Warn("missing cell", "group", w.Group, "metric", w.Metric, "reason", w.Reason)
			notes = append(notes, w.String())
		}
		return renderTo(cmd, sumOutputPath, out, render.Options{Title: sumTitle, Notes: notes})
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().StringSliceVarP(&sumKeys, "keys", "k", nil, "comma-separated key columns (required)")
	summarizeCmd.Flags().StringVarP(&sumValue, "value", "v", "", "value column the metrics read")
	summarizeCmd.Flags().StringSliceVarP(&sumMetrics, "metrics", "m", []string{"count"}, "metrics: mean, median, count, proportion, eq:<label>")
	summarizeCmd.Flags().BoolVar(&sumDropMissing, "drop-missing", false, "drop rows with a missing key instead of grouping them")
	summarizeCmd.Flags().StringVar(&sumNormalize, "normalize", "within", "proportion denominator: within | overall")
	summarizeCmd.Flags().StringVar(&sumPivot, "pivot", "", "key column to spread into columns (uses the first metric)")
	summarizeCmd.Flags().StringVar(&sumTitle, "title", "", "table title")
	summarizeCmd.Flags().StringVarP(&sumOutputPath, "output", "o", "", "optional path to write the table")
	_ = summarizeCmd.MarkFlagRequired("keys")
}
