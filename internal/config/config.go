// Package config loads mepfix settings from the environment and YAML files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/mepfix/internal/export"
	"github.com/raphaelgruber/mepfix/internal/models"
	"github.com/raphaelgruber/mepfix/internal/service"
)

// Config holds all configuration values.
type Config struct {
	// Input and output
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"` // default <input>/ifc
	Extension string `yaml:"extension"`
	Recursive bool   `yaml:"recursive"`

	// Logging
	LogFile  string `yaml:"log_file"` // default <input>/mepfix.log
	LogLevel string `yaml:"log_level"`

	// Remediation
	Scope            string   `yaml:"scope"`
	Category         string   `yaml:"category"`
	Kinds            []string `yaml:"kinds"`
	StrictAdvisories bool     `yaml:"strict_advisories"`

	// Operator surface
	WatchKeys bool `yaml:"watch_keys"`

	Export export.Intent `yaml:"export"`
}

// Load reads configuration from environment variables.
func Load() Config {
	intent := export.DefaultIntent()
	intent.Version = export.Version(getEnv("MEPFIX_IFC_VERSION", string(intent.Version)))

	return Config{
		InputDir:  getEnv("MEPFIX_INPUT_DIR", ""),
		OutputDir: getEnv("MEPFIX_OUTPUT_DIR", ""),
		Extension: getEnv("MEPFIX_EXTENSION", ".mep"),
		Recursive: getEnv("MEPFIX_RECURSIVE", "false") == "true",

		LogFile:  getEnv("MEPFIX_LOG_FILE", ""),
		LogLevel: getEnv("MEPFIX_LOG_LEVEL", "INFO"),

		Scope:            getEnv("MEPFIX_SCOPE", string(service.ScopeMismatched)),
		Category:         getEnv("MEPFIX_CATEGORY", string(models.CategoryElectricalEquipment)),
		Kinds:            splitList(getEnv("MEPFIX_KINDS", "")),
		StrictAdvisories: getEnv("MEPFIX_STRICT_ADVISORIES", "false") == "true",

		WatchKeys: getEnv("MEPFIX_WATCH_KEYS", "true") == "true",

		Export: intent,
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyDefaults fills paths derived from the input directory.
func (c *Config) ApplyDefaults() {
	if c.Extension != "" && !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}
	if c.InputDir == "" {
		return
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.InputDir, "ifc")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.InputDir, "mepfix.log")
	}
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, errors.New("input directory is required (argument or MEPFIX_INPUT_DIR)"))
	}
	if c.Extension == "" {
		errs = append(errs, errors.New("model file extension is required"))
	}
	if _, err := service.ParseScope(c.Scope); err != nil {
		errs = append(errs, err)
	}
	if _, err := models.ParseCategory(c.Category); err != nil {
		errs = append(errs, err)
	}
	if _, err := models.ParseKinds(c.Kinds); err != nil {
		errs = append(errs, err)
	}
	if err := c.Export.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BatchOptions converts a validated config into batch options.
func (c Config) BatchOptions() (service.BatchOptions, error) {
	if err := c.Validate(); err != nil {
		return service.BatchOptions{}, err
	}
	scope, _ := service.ParseScope(c.Scope)
	category, _ := models.ParseCategory(c.Category)
	kinds, _ := models.ParseKinds(c.Kinds)
	return service.BatchOptions{
		InputDir:  c.InputDir,
		OutputDir: c.OutputDir,
		Extension: c.Extension,
		Recursive: c.Recursive,
		Scope:     scope,
		Category:  category,
		Kinds:     kinds,
		Strict:    c.StrictAdvisories,
		Intent:    c.Export,
	}, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
