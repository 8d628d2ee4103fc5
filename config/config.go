// Package config holds the engine's startup configuration: which
// devices to grab, the virtual device's name and capabilities, the
// default keyboard layout, and where to find the script to run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the engine's on-disk configuration.
type Config struct {
	// DevicePatterns is a list of regexes matched against /dev/input/*
	// paths; any match is grabbed by the collector.
	DevicePatterns []string `toml:"device_patterns"`

	// VirtualDeviceName is the name reported by the uinput device the
	// emitter creates.
	VirtualDeviceName string `toml:"virtual_device_name"`

	Capabilities CapabilitiesConfig `toml:"capabilities"`

	Keyboard KeyboardConfig `toml:"keyboard"`

	// ScriptPath is the script file evaluated on startup. A relative
	// path is resolved against the config directory.
	ScriptPath string `toml:"script_path"`
}

// CapabilitiesConfig mirrors device.Capabilities for TOML decoding.
type CapabilitiesConfig struct {
	Keyboard bool `toml:"keyboard"`
	Buttons  bool `toml:"buttons"`
	Relative bool `toml:"relative"`
	Absolute bool `toml:"absolute"`
}

// KeyboardConfig names the XKB profile the engine's transformer uses by
// default.
type KeyboardConfig struct {
	Model   string `toml:"model"`
	Layout  string `toml:"layout"`
	Variant string `toml:"variant"`
	Options string `toml:"options"`
}

// Default returns the engine's default configuration: grab every
// /dev/input/event* node, expose a keyboard-capable virtual device,
// and assume a generic pc105/us layout.
func Default() *Config {
	return &Config{
		DevicePatterns:    []string{`^/dev/input/event\d+$`},
		VirtualDeviceName: "gonode virtual keyboard",
		Capabilities:      CapabilitiesConfig{Keyboard: true},
		Keyboard:          KeyboardConfig{Model: "pc105", Layout: "us"},
		ScriptPath:        "main.go",
	}
}

// Dir returns the XDG-compliant config directory for the engine.
func Dir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}

	return filepath.Join(dir, "gonode")
}

// Path returns the config file path.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file, writing out Default if none exists yet.
func Load() (*Config, error) {
	path := Path()

	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return cfg, err
		}

		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to the config file, creating the config directory if
// needed.
func Save(cfg *Config) error {
	path := Path()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encoding %s: %w", path, err)
	}

	return nil
}

// ResolvedScriptPath resolves the configured script path against the config
// directory when it is relative.
func (c *Config) ResolvedScriptPath() string {
	if filepath.IsAbs(c.ScriptPath) {
		return c.ScriptPath
	}

	return filepath.Join(Dir(), c.ScriptPath)
}
