package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcncl/jsonmeta/internal/client"
	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/formatter"
	"github.com/mcncl/jsonmeta/internal/looper"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for jsonmeta
type Config struct {
	Output    OutputConfig    `yaml:"output"`
	Selection SelectionConfig `yaml:"selection"`
	Loop      LoopConfig      `yaml:"loop"`
	Client    ClientConfig    `yaml:"client"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Log       LogConfig       `yaml:"log"`
}

// OutputConfig controls how results are rendered
type OutputConfig struct {
	Format       string `yaml:"format"`
	Summary      string `yaml:"summary"`
	Missing      string `yaml:"missing"`
	RowDivision  string `yaml:"row_division"`
	LineDivision string `yaml:"line_division"`
	HeaderCase   string `yaml:"header_case"`
	Color        bool   `yaml:"color"`
	Indent       int    `yaml:"indent"`
}

// SelectionConfig controls how input values are prepared for selection
type SelectionConfig struct {
	UnwrapData bool `yaml:"unwrap_data"`
}

// LoopConfig controls the calls made by loop operations
type LoopConfig struct {
	Workers           int     `yaml:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ClientConfig controls the HTTP client. Values may reference environment
// variables as $NAME or ${NAME}.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// CatalogConfig points at the API documentation
type CatalogConfig struct {
	SwaggerFile string `yaml:"swagger_file"`
}

// LogConfig controls diagnostics written to stderr
type LogConfig struct {
	Level string `yaml:"level"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	defaults := formatter.DefaultOptions()
	return &Config{
		Output: OutputConfig{
			Format:       formatter.FormatJSON,
			Summary:      defaults.Summary,
			Missing:      defaults.Missing,
			RowDivision:  defaults.RowDivision,
			LineDivision: defaults.LineDivision,
			HeaderCase:   formatter.CaseNone,
			Color:        false,
			Indent:       2,
		},
		Selection: SelectionConfig{
			UnwrapData: true,
		},
		Loop: LoopConfig{
			Workers:           1,
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Client: ClientConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("failed to read config file", err)
	}

	// Start with defaults
	cfg := NewConfig()

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfigError("failed to parse config file", err)
	}

	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in current directory and parents
func FindConfigFile() string {
	configNames := []string{".jsonmeta.yml", ".jsonmeta.yaml", "jsonmeta.yml", "jsonmeta.yaml"}

	// Start from current directory
	currentDir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Search up the directory tree
	for {
		for _, name := range configNames {
			configPath := filepath.Join(currentDir, name)
			if _, err := os.Stat(configPath); err == nil {
				return configPath
			}
		}

		// Move up one directory
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root directory
			break
		}
		currentDir = parentDir
	}

	return ""
}

func (c *Config) expandEnv() {
	c.Client.BaseURL = os.ExpandEnv(c.Client.BaseURL)
	c.Client.Token = os.ExpandEnv(c.Client.Token)
	c.Catalog.SwaggerFile = os.ExpandEnv(c.Catalog.SwaggerFile)
}

// Validate checks the values that cannot be fixed up silently
func (c *Config) Validate() error {
	switch c.Output.Format {
	case formatter.FormatJSON, formatter.FormatTable, formatter.FormatList, formatter.FormatPretty:
	default:
		return errors.NewConfigError(fmt.Sprintf("unknown output format '%s'", c.Output.Format), errors.ErrUnknownFormat)
	}
	if !formatter.ValidHeaderCase(c.Output.HeaderCase) {
		return errors.NewConfigError(fmt.Sprintf("unknown header case '%s'", c.Output.HeaderCase), nil)
	}
	if c.Output.Indent < 0 {
		return errors.NewConfigError("output indent cannot be negative", nil)
	}
	if c.Loop.Workers < 0 {
		return errors.NewConfigError("loop workers cannot be negative", nil)
	}
	if c.Loop.RequestsPerSecond < 0 {
		return errors.NewConfigError("loop requests_per_second cannot be negative", nil)
	}
	if c.Client.Timeout < 0 {
		return errors.NewConfigError("client timeout cannot be negative", nil)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// FormatterOptions returns the renderer settings
func (c *Config) FormatterOptions() formatter.Options {
	return formatter.Options{
		Summary:      c.Output.Summary,
		Missing:      c.Output.Missing,
		RowDivision:  c.Output.RowDivision,
		LineDivision: c.Output.LineDivision,
		HeaderCase:   c.Output.HeaderCase,
		Color:        c.Output.Color,
		Indent:       strings.Repeat(" ", c.Output.Indent),
	}
}

// LooperOptions returns the loop settings. A positive request rate paces
// the calls with a token bucket of the configured burst.
func (c *Config) LooperOptions(logger *slog.Logger) looper.Options {
	opts := looper.Options{Workers: c.Loop.Workers, Logger: logger}
	if c.Loop.RequestsPerSecond > 0 {
		burst := c.Loop.Burst
		if burst < 1 {
			burst = 1
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(c.Loop.RequestsPerSecond), burst)
	}
	return opts
}

// ClientOptions returns the HTTP client settings
func (c *Config) ClientOptions(logger *slog.Logger) client.Options {
	return client.Options{
		BaseURL: c.Client.BaseURL,
		Token:   c.Client.Token,
		Timeout: c.Client.Timeout,
		Logger:  logger,
	}
}

// LogLevel returns the configured log level
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelWarn
	}
	return level
}

func parseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, errors.NewConfigError(fmt.Sprintf("unknown log level '%s'", name), err)
	}
	return level, nil
}

// CLIOverrides holds the flags that take precedence over the config file.
// Empty and zero values leave the file's value in place.
type CLIOverrides struct {
	Format      string
	HeaderCase  string
	BaseURL     string
	Token       string
	SwaggerFile string
	Workers     int
	Color       bool
	KeepData    bool
	Debug       bool
}

// LoadConfigWithCLI loads config with CLI argument precedence
func LoadConfigWithCLI(configPath string, cli CLIOverrides) (*Config, error) {
	// Start with defaults
	cfg := NewConfig()

	// Load config file if provided
	if configPath != "" {
		fileConfig, err := LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = fileConfig
	}

	if cli.Format != "" {
		cfg.Output.Format = cli.Format
	}
	if cli.HeaderCase != "" {
		cfg.Output.HeaderCase = cli.HeaderCase
	}
	if cli.BaseURL != "" {
		cfg.Client.BaseURL = cli.BaseURL
	}
	if cli.Token != "" {
		cfg.Client.Token = cli.Token
	}
	if cli.SwaggerFile != "" {
		cfg.Catalog.SwaggerFile = cli.SwaggerFile
	}
	if cli.Workers > 0 {
		cfg.Loop.Workers = cli.Workers
	}
	// Boolean flags can only switch a setting on
	if cli.Color {
		cfg.Output.Color = true
	}
	if cli.KeepData {
		cfg.Selection.UnwrapData = false
	}
	if cli.Debug {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
