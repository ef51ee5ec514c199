package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	BackendWasm      = "wasm"
	BackendReference = "reference"

	defaultTimeout = "30s"
)

// Config is the configuration of the spice CLI.
type Config struct {
	// Backend selects the solver: "wasm" (ngspice.wasm) or "reference"
	Backend string `json:"backend,omitempty"`

	// Timeout bounds every native call, as a Go duration string
	Timeout string `json:"timeout,omitempty"`

	Library LibraryConfig `json:"library,omitempty"`
	Pool    PoolConfig    `json:"pool,omitempty"`
	Log     LogConfig     `json:"log,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
}

// LibraryConfig locates ngspice.wasm
type LibraryConfig struct {
	// Path is an explicit module file; it disables the search
	Path string `json:"path,omitempty"`

	// SearchPaths are tried before the platform defaults
	SearchPaths []string `json:"searchPaths,omitempty"`
}

// PoolConfig bounds the guest buffer pool
type PoolConfig struct {
	MaxOutstanding int `json:"maxOutstanding,omitempty"`
	MaxIdle        int `json:"maxIdle,omitempty"`
}

type LogConfig struct {
	// Level is a logrus level name
	Level string `json:"level,omitempty"`

	// Format is "text" or "json"
	Format string `json:"format,omitempty"`
}

type MetricsConfig struct {
	// Listen is the address of the prometheus endpoint; empty disables it
	Listen string `json:"listen,omitempty"`
}

// DefaultConfig returns the configuration used when no file is found
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendWasm,
		Timeout: defaultTimeout,
		Library: LibraryConfig{
			SearchPaths: []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SearchPaths lists the config files Load tries, in order:
//  1. ./spicebridge.json
//  2. ./.spicebridge.json
//  3. ~/.config/spicebridge/config.json
func SearchPaths() []string {
	cwd, _ := os.Getwd()

	paths := []string{
		filepath.Join(cwd, "spicebridge.json"),
		filepath.Join(cwd, ".spicebridge.json"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "spicebridge", "config.json"))
	}
	return paths
}

// Load finds and loads the configuration file.
// Returns DefaultConfig if no config file is found
func Load() (*Config, error) {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes JSON configuration, filling in defaults
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()

	if _, err := cfg.TimeoutDuration(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Timeout == "" {
		c.Timeout = def.Timeout
	}
	if c.Library.SearchPaths == nil {
		c.Library.SearchPaths = []string{}
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

func (c *Config) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeout: %s is not positive", c.Timeout)
	}
	return d, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
