// Package config provides configuration types, defaults and loading for
// millflow.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/tracing"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// EnvPrefix prefixes environment overrides, e.g. MILLFLOW_LOG_LEVEL.
const EnvPrefix = "MILLFLOW"

// ProjectConfigPath is looked up before the user config.
const ProjectConfigPath = ".millflow/config.yaml"

// Config holds all configuration options for millflow.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Tracing     tracing.Config    `mapstructure:"tracing"`
	Store       StoreConfig       `mapstructure:"store"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Output      OutputConfig      `mapstructure:"output"`
	SupportGrid SupportGridConfig `mapstructure:"support_grid"`
}

// LogConfig controls the category logger.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info (default), warn, error
	File  string `mapstructure:"file"`  // empty logs to stderr
}

// StoreConfig controls the toolpath history database.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// WatchConfig controls `generate --watch`.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// OutputConfig selects how results are printed.
type OutputConfig struct {
	Format string `mapstructure:"format"` // text (default) or json
}

// SupportGridConfig places bridge lines reported by `validate`. A zero
// distance disables that axis.
type SupportGridConfig struct {
	DistanceX float64 `mapstructure:"distance_x"`
	DistanceY float64 `mapstructure:"distance_y"`
	OffsetX   float64 `mapstructure:"offset_x"`
	OffsetY   float64 `mapstructure:"offset_y"`

	// Adjustments shift individual lines, in order.
	AdjustmentsX []float64 `mapstructure:"adjustments_x"`
	AdjustmentsY []float64 `mapstructure:"adjustments_y"`
}

// Grid converts the configuration to the geometry type.
func (s SupportGridConfig) Grid() geometry.SupportGrid {
	return geometry.SupportGrid{
		DistanceX:    s.DistanceX,
		DistanceY:    s.DistanceY,
		OffsetX:      s.OffsetX,
		OffsetY:      s.OffsetY,
		AdjustmentsX: slices.Clone(s.AdjustmentsX),
		AdjustmentsY: slices.Clone(s.AdjustmentsY),
	}
}

// Enabled reports whether any support lines are requested.
func (s SupportGridConfig) Enabled() bool { return s.DistanceX > 0 || s.DistanceY > 0 }

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()
	return Config{
		Log:     LogConfig{Level: "info"},
		Tracing: tr,
		Store:   StoreConfig{Enabled: false, Path: DefaultStorePath()},
		Watch:   WatchConfig{Debounce: 300 * time.Millisecond},
		Output:  OutputConfig{Format: FormatText},
	}
}

// DefaultTracesFilePath returns ~/.config/millflow/traces/traces.jsonl, or
// "" without a home directory.
func DefaultTracesFilePath() string {
	return userPath("traces", "traces.jsonl")
}

// DefaultStorePath returns ~/.config/millflow/history.db, or "" without a
// home directory.
func DefaultStorePath() string {
	return userPath("history.db")
}

// UserConfigDir returns ~/.config/millflow, or "" without a home directory.
func UserConfigDir() string {
	return userPath()
}

func userPath(elem ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append([]string{home, ".config", "millflow"}, elem...)...)
}

// Validate checks the configuration and reports every problem.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if c.Store.Enabled && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required when the store is enabled"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce))
	}
	switch c.Output.Format {
	case "", FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("output.format must be %q or %q, got %q", FormatText, FormatJSON, c.Output.Format))
	}
	if c.SupportGrid.DistanceX < 0 || c.SupportGrid.DistanceY < 0 {
		errs = append(errs, errors.New("support_grid distances must not be negative"))
	}
	return errors.Join(errs...)
}

// SetDefaults registers every default with v so that environment overrides
// reach keys missing from the config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("store.enabled", d.Store.Enabled)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("support_grid.distance_x", 0.0)
	v.SetDefault("support_grid.distance_y", 0.0)
	v.SetDefault("support_grid.offset_x", 0.0)
	v.SetDefault("support_grid.offset_y", 0.0)
	v.SetDefault("support_grid.adjustments_x", []float64{})
	v.SetDefault("support_grid.adjustments_y", []float64{})
}

// Locate returns the config file to read: explicit if set, then the project
// config, then the user config. "" means none exists.
func Locate(explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := []string{ProjectConfigPath}
	if dir := UserConfigDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load reads path (if set) into v, applies MILLFLOW_ environment overrides
// and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		log.Debug(log.CatConfig, "config loaded", "path", path)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// WriteDefaultConfig creates a commented config file at path, creating
// parent directories.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "path", path)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", path)
		return fmt.Errorf("writing config file: %w", err)
	}
	log.Info(log.CatConfig, "created default config", "path", path)
	return nil
}

// DefaultConfigTemplate returns the default config as commented YAML.
func DefaultConfigTemplate() string {
	return `# millflow configuration

log:
  level: info        # debug, info, warn or error
  # file: millflow.log  # log to a file instead of stderr

# Toolpath history database (millflow history)
store:
  enabled: false
  # path: ~/.config/millflow/history.db

# generate --watch waits this long after the last change of the job file
watch:
  debounce: 300ms

output:
  format: text       # text or json

# Bridge lines reported by 'millflow validate'; zero disables an axis
# support_grid:
#   distance_x: 20
#   distance_y: 20
#   offset_x: 0
#   offset_y: 0
#   adjustments_x: [0, 2.5]   # shift individual lines

# OpenTelemetry spans around toolpath generation
# tracing:
#   enabled: false
#   exporter: file             # none, file, stdout or otlp
#   file_path: ~/.config/millflow/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}
