// Package config loads pinbridge settings from TOML and builds the loggers
// and bridge configurations they describe.
package config

import (
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/bridge"
	"github.com/wippyai/pinbridge/errors"
)

// Foreign backend names.
const (
	BackendMemory = "memheap"
	BackendWasm   = "wasm"
	BackendR      = "libr"
)

var backends = []string{BackendMemory, BackendWasm, BackendR}

// Config is the top-level configuration file.
type Config struct {
	Bridge  Bridge  `toml:"bridge"`
	Log     Log     `toml:"log"`
	Foreign Foreign `toml:"foreign"`
}

// Bridge holds table limits. 0 means unbounded.
type Bridge struct {
	MaxPinned  int `toml:"max-pinned"`
	MaxHandles int `toml:"max-handles"`
}

// Log selects the zap logger.
type Log struct {
	// Level is a zap level name: debug, info, warn, error, dpanic, panic, fatal.
	Level string `toml:"level"`
	// Format is "console" or "json".
	Format string `toml:"format"`
	// Development makes DPanic panic, so foreign faults stop the process.
	Development bool `toml:"development"`
}

// Foreign selects and configures the foreign runtime.
type Foreign struct {
	Backend string `toml:"backend"`

	// wasm
	Module           string `toml:"module"`
	MemoryLimitPages uint32 `toml:"memory-limit-pages"`
	NilID            uint64 `toml:"nil-id"`

	// libr
	Library string   `toml:"library"`
	Args    []string `toml:"args"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Foreign: Foreign{
			Backend: BackendMemory,
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, path)
	}
	return Parse(string(data))
}

// Parse decodes TOML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.Bridge.MaxPinned < 0 || c.Bridge.MaxHandles < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "bridge limits must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("log.format %q", c.Log.Format).
			Want("console or json").
			Build()
	}
	if !slices.Contains(backends, c.Foreign.Backend) {
		return errors.NotFound(errors.PhaseConfig, "backend", c.Foreign.Backend)
	}
	if c.Foreign.Backend == BackendWasm && c.Foreign.Module == "" {
		return errors.InvalidInput(errors.PhaseConfig, "foreign.module is required for the wasm backend")
	}
	return nil
}

// Logger builds the configured zap logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}

	zcfg := zap.NewProductionConfig()
	if c.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = c.Log.Format
	if c.Log.Format == "console" {
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zcfg.DisableStacktrace = !c.Log.Development
	return zcfg.Build()
}

// BridgeConfig returns the bridge settings for foreign.
func (c *Config) BridgeConfig(foreign pinbridge.Foreign, log *zap.Logger) *bridge.Config {
	return &bridge.Config{
		Foreign:    foreign,
		Logger:     log,
		MaxPinned:  c.Bridge.MaxPinned,
		MaxHandles: c.Bridge.MaxHandles,
	}
}

// Dump writes the configuration as TOML.
func (c *Config) Dump(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
