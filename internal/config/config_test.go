package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	require.True(t, c.DecodeLabels)
	require.Equal(t, []string{"IAP", "DK", "NA"}, c.MissingLabels)
	require.Equal(t, "markdown", c.OutputFormat)
	require.Equal(t, 3, c.Precision)
}

func TestSaveThenLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	c.OutputFormat = "html"
	c.Precision = 2
	require.NoError(t, Save(c, ""))

	_, err = os.Stat(filepath.Join(home, ".surveyloom", "config.yaml"))
	require.NoError(t, err)

	got, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "html", got.OutputFormat)
	require.Equal(t, 2, got.Precision)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: csv\nprecision: 4\n"), 0o644))
	t.Setenv("SURVEYLOOM_PRECISION", "6")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "csv", c.OutputFormat)
	require.Equal(t, 6, c.Precision)
}

func TestLoadRejectsBadFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: pdf\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "output_format")
}
