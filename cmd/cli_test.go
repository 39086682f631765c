package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom/internal/dta/dtatest"
)

const gssCSV = `degree,evolved,age
HS,TRUE,25
HS,FALSE,40
COLLEGE,TRUE,33
COLLEGE,TRUE,61
HS,,50
`

// resetFlags puts every flag back to its default so state from a previous
// invocation does not leak into the next one.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			def := strings.Trim(fl.DefValue, "[]")
			if def == "" {
				_ = sv.Replace(nil)
			} else {
				_ = sv.Replace(strings.Split(def, ","))
			}
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args and return what
// it printed.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := tryCmd(args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func tryCmd(args ...string) (string, error) {
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// tempHome isolates config under a temporary HOME.
func tempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	oldHome := os.Getenv("HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		cfg = nil
	})
	os.Setenv("HOME", home)
	return home
}

func writeCSV(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "gss.csv")
	require.NoError(t, os.WriteFile(p, []byte(gssCSV), 0o644))
	return p
}

func TestCLI_DescribeWritesOutput(t *testing.T) {
	home := tempHome(t)
	data := writeCSV(t, home)
	out := filepath.Join(home, "summary.md")

	msg := runCmd(t, "describe", data, "-o", out, "--sample-rows", "2")
	require.Contains(t, msg, "✓ Wrote")

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	md := string(b)
	require.Contains(t, md, "[DATASET SUMMARY]")
	require.Contains(t, md, "File: gss.csv")
	require.Contains(t, md, "- degree: categorical")
	require.Contains(t, md, "- age: numeric")
	require.Contains(t, md, "| HS | FALSE | 40 |")
	require.NotContains(t, md, "| COLLEGE | TRUE | 33 |")

	js := runCmd(t, "describe", data, "--json")
	require.Contains(t, js, `"rows": 5`)
	require.Contains(t, js, `"kind": "categorical"`)
}

func TestCLI_SummarizeProportionEq(t *testing.T) {
	home := tempHome(t)
	data := writeCSV(t, home)

	out := runCmd(t, "summarize", data, "--keys", "degree", "--value", "evolved", "--metrics", "count,eq:TRUE", "--title", "evolution")
	require.Contains(t, out, "[EVOLUTION]")
	require.Contains(t, out, "| degree | count | prop_TRUE |")
	require.Contains(t, out, "| HS | 2 | 0.5 |")
	require.Contains(t, out, "| COLLEGE | 2 | 1 |")

	_, err := tryCmd("summarize", data, "--keys", "degree", "--metrics", "mode")
	require.ErrorContains(t, err, `unknown metric "mode"`)
}

func TestCLI_SummarizePivot(t *testing.T) {
	home := tempHome(t)
	data := writeCSV(t, home)

	out := runCmd(t, "summarize", data, "--keys", "degree,evolved", "--metrics", "proportion", "--drop-missing", "--pivot", "evolved", "--format", "csv")
	require.Equal(t, "degree,FALSE,TRUE\nHS,0.5,0.5\nCOLLEGE,,1\n", out)
}

func TestCLI_CrosstabCSV(t *testing.T) {
	home := tempHome(t)
	data := writeCSV(t, home)

	out := runCmd(t, "crosstab", data, "--row", "degree", "--col", "evolved", "--proportions", "--format", "csv", "--precision", "2")
	require.Equal(t, "degree,FALSE,TRUE\nCOLLEGE,0,1\nHS,0.5,0.5\n", out)

	_, err := tryCmd("crosstab", data, "--row", "degree", "--col", "evolved", "--margin", "diagonal")
	require.ErrorContains(t, err, "unknown margin")
}

func TestCLI_ExportParquet(t *testing.T) {
	home := tempHome(t)
	f := dtatest.File{
		Vars: []dtatest.Var{
			{Name: "happy", Type: "byte", ValueLabel: "happy", Numbers: []float64{1, 2, 0}},
			{Name: "age", Type: "int", Numbers: []float64{30, 45, 60}},
		},
		ValueLabels: map[string]map[int32]string{"happy": {0: "IAP", 1: "VERY HAPPY", 2: "NOT TOO HAPPY"}},
	}
	data := filepath.Join(home, "gss.dta")
	require.NoError(t, f.WriteFile(data))
	out := filepath.Join(home, "gss.parquet")

	msg := runCmd(t, "export", data, out)
	require.Contains(t, msg, "Exported 3 rows")

	pf, err := parquet.OpenFile(mustOpen(t, out), mustSize(t, out))
	require.NoError(t, err)
	require.Equal(t, int64(3), pf.NumRows())

	_, err = tryCmd("export", data, filepath.Join(home, "gss.xlsx"))
	require.ErrorContains(t, err, "unsupported export extension")
}

func TestCLI_RunRecipe(t *testing.T) {
	home := tempHome(t)
	writeCSV(t, home)
	recipePath := filepath.Join(home, "recipe.yaml")
	require.NoError(t, os.WriteFile(recipePath, []byte(`
dataset: gss.csv
steps:
  - cut: {column: age, as: age_group, cuts: [18, 45, 90], labels: [younger, older]}
questions:
  - title: Evolution by age
    summarize: {keys: [age_group], value: evolved, metrics: ["eq:TRUE"]}
`), 0o644))
	dataOut := filepath.Join(home, "derived.csv")

	out := runCmd(t, "run", recipePath, "--data-out", dataOut)
	require.Contains(t, out, "[EVOLUTION BY AGE]")
	require.Contains(t, out, "| younger | 0.667 |")
	require.Contains(t, out, "| older | 1 |")

	b, err := os.ReadFile(dataOut)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "degree,evolved,age,age_group\n"))
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home := tempHome(t)

	runCmd(t, "config", "set", "precision", "5")
	runCmd(t, "config", "set", "missing_labels", "IAP, DK")
	_, err := os.Stat(filepath.Join(home, ".surveyloom", "config.yaml"))
	require.NoError(t, err)

	out := runCmd(t, "config", "show")
	require.Contains(t, out, "precision: 5")
	require.Contains(t, out, "missing_labels: IAP,DK")

	_, err = tryCmd("config", "set", "output_format", "pdf")
	require.Error(t, err)
	_, err = tryCmd("config", "set", "api_key", "x")
	require.ErrorContains(t, err, "unknown key")
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func mustSize(t *testing.T, path string) int64 {
	t.Helper()
	st, err := os.Stat(path)
	require.NoError(t, err)
	return st.Size()
}
