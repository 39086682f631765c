package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/surveyloom/internal/config"
	"github.com/KaramelBytes/surveyloom/internal/loader"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/render"
	"github.com/KaramelBytes/surveyloom/internal/table"
	"github.com/KaramelBytes/surveyloom/internal/utils"
)

var (
	// Global flags
	cfgFile       string
	debug         bool
	flagFormat    string
	flagPrecision int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "surveyloom",
	Short: "SurveyLoom: recode, bin and summarize survey data",
	Long: `SurveyLoom loads labelled survey data (Stata .dta or CSV), derives new
columns by recoding and binning, and answers grouped questions as Markdown,
HTML or CSV tables.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.surveyloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "", "output format: markdown | html | csv (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagPrecision, "precision", -1, "decimals for non-integral numbers (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = defaults()
	}
	cfg = c

	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logging.Setup(level, cfg.LogFormat)
	slog.Debug("config loaded", "file", cfgFile, "format", cfg.OutputFormat, "precision", cfg.Precision)
}

func defaults() *cfgpkg.Global {
	return &cfgpkg.Global{
		DecodeLabels:  true,
		MissingLabels: []string{"IAP", "DK", "NA"},
		OutputFormat:  "markdown",
		Precision:     3,
		SampleRows:    5,
		LogLevel:      "warn",
		LogFormat:     "text",
	}
}

func settings() *cfgpkg.Global {
	if cfg == nil {
		return defaults()
	}
	return cfg
}

func loaderOptions() loader.Options {
	c := settings()
	return loader.Options{DecodeLabels: c.DecodeLabels, MissingLabels: c.MissingLabels}
}

// outputFormat resolves --format against the configured default.
func outputFormat() (render.Format, error) {
	if flagFormat != "" {
		return render.ParseFormat(flagFormat)
	}
	return render.ParseFormat(settings().OutputFormat)
}

func precision() int {
	if flagPrecision >= 0 {
		return flagPrecision
	}
	return settings().Precision
}

func loadTable(path string) (*table.Table, error) {
	t, err := loader.Load(path, loaderOptions())
	if err != nil {
		return nil, err
	}
	slog.Info("dataset loaded", "file", path, "rows", t.NumRows(), "cols", t.NumCols())
	return t, nil
}

// renderTo renders t and writes it to outPath, or to the command's stdout
// when outPath is empty.
func renderTo(cmd *cobra.Command, outPath string, t *table.Table, opts render.Options) error {
	f, err := outputFormat()
	if err != nil {
		return err
	}
	opts.Precision = precision()
	var buf bytes.Buffer
	if err := render.Table(&buf, t, f, opts); err != nil {
		return err
	}
	return emit(cmd, outPath, buf.Bytes())
}

func emit(cmd *cobra.Command, outPath string, data []byte) error {
	if outPath == "" {
		_, err := io.Copy(cmd.OutOrStdout(), bytes.NewReader(data))
		return err
	}
	if err := utils.SafeWriteFile(outPath, data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", outPath)
	return nil
}
