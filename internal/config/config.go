// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" json:"logger" yaml:"logger"`
	Filter FilterConfig `mapstructure:"filter" json:"filter" yaml:"filter"`
	Script ScriptConfig `mapstructure:"script" json:"script" yaml:"script"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// DeferredMode selects the predicate used by the deferred pass that handles
// universal-subject has/has-not filters.
type DeferredMode string

const (
	// DeferredStructural runs the real scoped sub-query for every element.
	DeferredStructural DeferredMode = "structural"
	// DeferredHeuristic tests whether the serialized computed style of an
	// element contains the target text.
	DeferredHeuristic DeferredMode = "heuristic"
)

// FilterConfig holds settings for the procedural filter evaluators.
type FilterConfig struct {
	// HideStyle replaces the inline style of every hidden element.
	HideStyle    string        `mapstructure:"hide_style" json:"hide_style" yaml:"hide_style"`
	DeferredMode DeferredMode  `mapstructure:"deferred_mode" json:"deferred_mode" yaml:"deferred_mode"`
	RegexTimeout time.Duration `mapstructure:"regex_timeout" json:"regex_timeout" yaml:"regex_timeout"`
}

// ScriptConfig holds settings for the runtime executing compiled filter scripts.
type ScriptConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	EnableConsole bool          `mapstructure:"enable_console" json:"enable_console" yaml:"enable_console"`
}

// DefaultHideStyle is the inline style written to hidden elements.
const DefaultHideStyle = "display: none !important;"

// SetDefaults registers default values on the provided viper instance so the
// application can run with a minimal config.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "procfilter")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("filter.hide_style", DefaultHideStyle)
	v.SetDefault("filter.deferred_mode", string(DeferredStructural))
	v.SetDefault("filter.regex_timeout", "2s")

	v.SetDefault("script.timeout", "30s")
	v.SetDefault("script.enable_console", true)
}

// NewDefaultConfig returns a configuration populated with the same defaults
// SetDefaults registers. Useful for tests and library callers without viper.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "procfilter",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      7,
			Colors: ColorConfig{
				Debug: "cyan", Info: "green", Warn: "yellow", Error: "red",
				DPanic: "magenta", Panic: "magenta", Fatal: "magenta",
			},
		},
		Filter: FilterConfig{
			HideStyle:    DefaultHideStyle,
			DeferredMode: DeferredStructural,
			RegexTimeout: 2 * time.Second,
		},
		Script: ScriptConfig{
			Timeout:       30 * time.Second,
			EnableConsole: true,
		},
	}
}

// Validate checks the configuration for values the rest of the application
// cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Filter.HideStyle) == "" {
		errs = append(errs, errors.New("filter.hide_style must not be empty"))
	}
	switch c.Filter.DeferredMode {
	case DeferredStructural, DeferredHeuristic:
	default:
		errs = append(errs, fmt.Errorf("filter.deferred_mode must be %q or %q, got %q",
			DeferredStructural, DeferredHeuristic, c.Filter.DeferredMode))
	}
	if c.Filter.RegexTimeout < 0 {
		errs = append(errs, errors.New("filter.regex_timeout must not be negative"))
	}
	if c.Script.Timeout <= 0 {
		errs = append(errs, errors.New("script.timeout must be a positive duration"))
	}
	return errors.Join(errs...)
}

// deferredModeHook normalizes the textual deferred mode before it lands in
// the DeferredMode field.
func deferredModeHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t != reflect.TypeOf(DeferredMode("")) {
		return data, nil
	}
	return DeferredMode(strings.ToLower(strings.TrimSpace(data.(string)))), nil
}

// Unmarshal decodes the viper state into a Config using the decode hooks the
// application relies on.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		deferredModeHook,
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		cfg, err := Unmarshal(v)
		if err != nil {
			loadErr = err
			return
		}
		instance = cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
