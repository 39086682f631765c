package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Loading
	DecodeLabels  bool     `mapstructure:"decode_labels" yaml:"decode_labels"`
	MissingLabels []string `mapstructure:"missing_labels" yaml:"missing_labels"`

	// Output
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	Precision    int    `mapstructure:"precision" yaml:"precision"`
	SampleRows   int    `mapstructure:"sample_rows" yaml:"sample_rows"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Keys lists the settable configuration keys.
var Keys = []string{"decode_labels", "missing_labels", "output_format", "precision", "sample_rows", "log_level", "log_format"}

// Dir returns ~/.surveyloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".surveyloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.surveyloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("SURVEYLOOM")
	v.AutomaticEnv()

	v.SetDefault("decode_labels", true)
	// GSS non-response codes
	v.SetDefault("missing_labels", []string{"IAP", "DK", "NA"})
	v.SetDefault("output_format", "markdown")
	v.SetDefault("precision", 3)
	v.SetDefault("sample_rows", 5)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks enumerated settings.
func (c *Global) Validate() error {
	switch c.OutputFormat {
	case "markdown", "html", "csv":
	default:
		return fmt.Errorf("output_format must be markdown, html or csv, got %q", c.OutputFormat)
	}
	if c.Precision < 0 || c.Precision > 15 {
		return fmt.Errorf("precision must be between 0 and 15, got %d", c.Precision)
	}
	if c.SampleRows < 0 {
		return fmt.Errorf("sample_rows must not be negative")
	}
	return nil
}
