package cmd

import (
	"bytes"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/recipe"
)

var (
	runOutputPath string
	runDataOut    string
)

var runRecipeCmd = &cobra.Command{
	Use:   "run <recipe.yaml>",
	Short: "Execute a recipe: load, derive columns, answer every question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.WithRun(uuid.NewString())
		f, err := outputFormat()
		if err != nil {
			return err
		}
		log.Info("running recipe", "recipe", args[0])
		out, err := recipe.Run(args[0], loaderOptions())
		if err != nil {
			return err
		}
		for _, n := range out.Notes {
			log.Warn("step note", "note", n)
		}
		log.Debug("recipe finished", "answers", len(out.Answers), "rows", out.Data.NumRows())

		if runDataOut != "" {
			if err := writeData(runDataOut, out.Data); err != nil {
				return err
			}
			slog.Info("derived data written", "path", runDataOut)
		}
		var buf bytes.Buffer
		if err := out.Render(&buf, f, precision()); err != nil {
			return err
		}
		return emit(cmd, runOutputPath, buf.Bytes())
	},
}

func init() {
	rootCmd.AddCommand(runRecipeCmd)
	runRecipeCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "optional path to write the answers")
	runRecipeCmd.Flags().StringVar(&runDataOut, "data-out", "", "also write the derived dataset (.parquet or .csv)")
}
