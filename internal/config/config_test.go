package config

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetSingleton() {
	instance = nil
	once = sync.Once{}
	loadErr = nil
}

// TestGetUninitialized verifies that calling Get() before Load() causes a panic.
func TestGetUninitialized(t *testing.T) {
	resetSingleton()

	assert.Panics(t, func() {
		Get()
	}, "Get() should panic if configuration is not initialized")
}

// TestLoadAndGet verifies the basic singleton load and get functionality.
func TestLoadAndGet(t *testing.T) {
	resetSingleton()

	yamlConfig := []byte(`
filter:
  hide_style: "visibility: hidden !important;"
  deferred_mode: " Heuristic "
  regex_timeout: 250ms
script:
  timeout: 5s
`)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	require.NoError(t, Load(v))

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "visibility: hidden !important;", cfg.Filter.HideStyle)
	assert.Equal(t, DeferredHeuristic, cfg.Filter.DeferredMode, "mode should be normalized by the decode hook")
	assert.Equal(t, 250*time.Millisecond, cfg.Filter.RegexTimeout)
	assert.Equal(t, 5*time.Second, cfg.Script.Timeout)

	// Subsequent loads do not replace the instance.
	v2 := viper.New()
	v2.SetConfigType("yaml")
	_ = v2.ReadConfig(bytes.NewBufferString(`filter: {hide_style: "other"}`))
	require.NoError(t, Load(v2))

	cfg2 := Get()
	assert.Same(t, cfg, cfg2, "Get() should return the same instance")
	assert.Equal(t, "visibility: hidden !important;", cfg2.Filter.HideStyle)
}

// TestSetDefaultsMatchesNewDefaultConfig keeps the two default sources in sync.
func TestSetDefaultsMatchesNewDefaultConfig(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Unmarshal(v)
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

// TestConfigValidation verifies the Validate() method.
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:     "empty hide style",
			mutate:   func(c *Config) { c.Filter.HideStyle = "  " },
			errorMsg: "filter.hide_style must not be empty",
		},
		{
			name:     "unknown deferred mode",
			mutate:   func(c *Config) { c.Filter.DeferredMode = "eager" },
			errorMsg: "filter.deferred_mode must be",
		},
		{
			name:     "negative regex timeout",
			mutate:   func(c *Config) { c.Filter.RegexTimeout = -time.Second },
			errorMsg: "filter.regex_timeout must not be negative",
		},
		{
			name:     "zero script timeout",
			mutate:   func(c *Config) { c.Script.Timeout = 0 },
			errorMsg: "script.timeout must be a positive duration",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

// TestConfigStructureMapping verifies that the YAML tags correctly map to the struct fields.
func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  format: json
  log_file: /var/log/procfilter.log
  colors:
    info: blue
filter:
  deferred_mode: structural
script:
  enable_console: false
`
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	cfg, err := Unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "/var/log/procfilter.log", cfg.Logger.LogFile)
	assert.Equal(t, "blue", cfg.Logger.Colors.Info)
	assert.Equal(t, DeferredStructural, cfg.Filter.DeferredMode)
	assert.False(t, cfg.Script.EnableConsole)
}
