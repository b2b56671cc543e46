// Package config provides configuration management for the debug bridge.
//
// Configuration controls:
//   - The remote agent endpoint the host bridge connects to
//   - The engine listener (preferred port and optional port file)
//   - The engine client connect address and timeout
//   - Capability mode (readonly vs full) for the MCP tool surface
//   - Breakpoints seeded into the headless host store
//   - Optional wire trace recording
//
// Configuration is read from YAML (.yaml, .yml) or JSON with comments (any
// other extension) and layered over DefaultConfig.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ctagard/dbg-bridge/internal/errors"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Inspection tools only
	ModeFull     CapabilityMode = "full"     // Execution control enabled
)

const (
	DefaultEngineListenPort = 48000
	DefaultEngineConnect    = "127.0.0.1:48000"
	DefaultConnectTimeout   = 3 * time.Second
	DefaultRemoteTimeout    = 10 * time.Second
)

// Config holds the bridge configuration
type Config struct {
	Mode CapabilityMode `json:"mode" yaml:"mode"`

	Remote   RemoteConfig   `json:"remote" yaml:"remote"`
	Listener ListenerConfig `json:"listener" yaml:"listener"`
	Engine   EngineConfig   `json:"engine" yaml:"engine"`

	Breakpoints []BreakpointConfig `json:"breakpoints" yaml:"breakpoints"`

	TraceFile string `json:"traceFile" yaml:"traceFile"`
	Verbosity int    `json:"verbosity" yaml:"verbosity"`
}

// RemoteConfig is the remote agent the host bridge dials
type RemoteConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// Attempts bounds connect retries; 1 disables retrying
	Attempts int `json:"attempts" yaml:"attempts"`

	// ConnectTimeout bounds all attempts together
	ConnectTimeout Duration `json:"connectTimeout" yaml:"connectTimeout"`
}

// ListenerConfig is the engine-facing listener of the host bridge
type ListenerConfig struct {
	PreferredPort int    `json:"preferredPort" yaml:"preferredPort"`
	PortFile      string `json:"portFile" yaml:"portFile"`
}

// EngineConfig is the engine bridge's connection to the host bridge
type EngineConfig struct {
	Connect        string   `json:"connect" yaml:"connect"`
	ConnectTimeout Duration `json:"connectTimeout" yaml:"connectTimeout"`
}

// BreakpointConfig describes one breakpoint for the headless host store
type BreakpointConfig struct {
	File               string `json:"file" yaml:"file"`
	Line               int    `json:"line" yaml:"line"`
	Enabled            *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Condition          string `json:"condition,omitempty" yaml:"condition,omitempty"`
	ConditionType      string `json:"conditionType,omitempty" yaml:"conditionType,omitempty"` // "whenTrue", "whenChanged" or empty
	Function           string `json:"function,omitempty" yaml:"function,omitempty"`
	FunctionLineOffset int    `json:"functionLineOffset,omitempty" yaml:"functionLineOffset,omitempty"`
}

// IsEnabled returns the enabled flag, defaulting to true
func (b BreakpointConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// Duration is a time.Duration written as a Go duration string ("3s")
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"3s\" or a number of nanoseconds: %w", err)
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeFull,
		Remote: RemoteConfig{
			Host:     DefaultHost,
			Port:           DefaultPort,
			Attempts:       5,
			ConnectTimeout: Duration(DefaultRemoteTimeout),
		},
		Listener: ListenerConfig{
			PreferredPort: DefaultEngineListenPort,
		},
		Engine: EngineConfig{
			Connect:        DefaultEngineConnect,
			ConnectTimeout: Duration(DefaultConnectTimeout),
		},
	}
}

// LoadConfig loads configuration from a YAML or JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
	}

	return cfg, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.Mode != ModeFull && c.Mode != ModeReadOnly {
		return fmt.Errorf("mode must be 'readonly' or 'full', got %q", c.Mode)
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return fmt.Errorf("remote.port must be in 1..65535, got %d", c.Remote.Port)
	}
	if c.Listener.PreferredPort < 0 || c.Listener.PreferredPort > 65535 {
		return fmt.Errorf("listener.preferredPort must be in 0..65535, got %d", c.Listener.PreferredPort)
	}
	if c.Engine.Connect != "" {
		if _, _, ok := ParseHostPort(c.Engine.Connect); !ok {
			return fmt.Errorf("engine.connect must be host:port, got %q", c.Engine.Connect)
		}
	}
	for i, bp := range c.Breakpoints {
		if strings.TrimSpace(bp.File) == "" || bp.Line <= 0 {
			return fmt.Errorf("breakpoints[%d] needs a file and a line > 0", i)
		}
	}
	return nil
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}
