// Package config handles configuration loading from TOML files and
// environment variables: the provider registry entries and the agent
// loop knobs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/xonecas/symbrt/agent"
	"github.com/xonecas/symbrt/internal/constants"
	"github.com/xonecas/symbrt/queue"
)

// Config is the root configuration structure.
type Config struct {
	DefaultProvider string                    `toml:"default_provider"`
	Providers       map[string]ProviderConfig `toml:"providers"`
	Agent           AgentConfig               `toml:"agent"`
}

// ProviderConfig holds the settings needed to construct one
// modelprovider.Provider via a registered Factory.
type ProviderConfig struct {
	Endpoint    string  `toml:"endpoint"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
}

// AgentConfig is the TOML-decodable form of the agent loop knobs;
// ToOptions converts it into agent.Options, leaving zero values for
// agent.Options.WithDefaults to fill in.
type AgentConfig struct {
	MaxIterations       int     `toml:"max_iterations"`
	MaxToolCallsPerTurn int     `toml:"max_tool_calls_per_turn"`
	RetryAttempts       int     `toml:"retry_attempts"`
	RetryDelayBaseMs    int     `toml:"retry_delay_base_ms"`
	ToolTimeoutSeconds  int     `toml:"tool_timeout_seconds"`
	EnableParallelTools bool    `toml:"enable_parallel_tools"`
	MaxParallelTools    int     `toml:"max_parallel_tools"`
	EnableSteering      bool    `toml:"enable_steering"`
	EnableFollowUp      bool    `toml:"enable_follow_up"`
	AutoCompact         bool    `toml:"auto_compact"`
	MaxContextTokens    int     `toml:"max_context_tokens"`
	CompactionThreshold float64 `toml:"compaction_threshold"`
	TargetUtilization   float64 `toml:"target_utilization"`
	PreserveRecent      int     `toml:"preserve_recent"`
	MinMessages         int     `toml:"min_messages"`
}

// ToOptions converts the decoded TOML shape into agent.Options. Zero
// values are left for agent.Options.WithDefaults (called by agent.New)
// to fill in, so an empty [agent] table is a valid, fully-defaulted
// configuration.
func (a AgentConfig) ToOptions() agent.Options {
	return agent.Options{
		MaxIterations:       a.MaxIterations,
		MaxToolCallsPerTurn: a.MaxToolCallsPerTurn,
		RetryAttempts:       a.RetryAttempts,
		RetryDelayBase:      time.Duration(a.RetryDelayBaseMs) * time.Millisecond,
		ToolTimeout:         time.Duration(a.ToolTimeoutSeconds) * time.Second,
		EnableParallelTools: a.EnableParallelTools,
		MaxParallelTools:    a.MaxParallelTools,
		EnableSteering:      a.EnableSteering,
		EnableFollowUp:      a.EnableFollowUp,
		SteeringMode:        queue.OneAtATime,
		FollowUpMode:        queue.OneAtATime,
		AutoCompact:         a.AutoCompact,
		MaxContextTokens:    a.MaxContextTokens,
		CompactionThreshold: a.CompactionThreshold,
		TargetUtilization:   a.TargetUtilization,
		PreserveRecent:      a.PreserveRecent,
		MinMessages:         a.MinMessages,
	}
}

// Load reads configuration from a TOML file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Providers: make(map[string]ProviderConfig),
	}

	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration is invalid. Agent-loop
// knobs left at zero are valid (agent.Options.WithDefaults fills them
// in); only explicitly out-of-range values are rejected here.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("providers: at least one provider must be configured"))
	} else {
		for name, providerCfg := range c.Providers {
			errs = append(errs, validateProviderConfig(name, providerCfg)...)
		}
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("default_provider=%q does not exist in providers", c.DefaultProvider))
		}
	}

	if c.Agent.CompactionThreshold < 0 || c.Agent.CompactionThreshold > 1 {
		errs = append(errs, fmt.Errorf("agent.compaction_threshold=%v must be between 0 and 1", c.Agent.CompactionThreshold))
	}
	if c.Agent.TargetUtilization < 0 || c.Agent.TargetUtilization > 1 {
		errs = append(errs, fmt.Errorf("agent.target_utilization=%v must be between 0 and 1", c.Agent.TargetUtilization))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateProviderConfig(name string, cfg ProviderConfig) []error {
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, fmt.Errorf("providers.%s.endpoint is required", name))
	} else if err := validateEndpoint(cfg.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("providers.%s.endpoint=%q is invalid: %v", name, cfg.Endpoint, err))
	}

	if cfg.Model == "" {
		errs = append(errs, fmt.Errorf("providers.%s.model is required", name))
	}

	if cfg.Temperature < 0.0 || cfg.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("providers.%s.temperature=%v must be between 0.0 and 2.0", name, cfg.Temperature))
	}

	return errs
}

func validateEndpoint(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("missing scheme or host")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"SYMBRT_DEFAULT_PROVIDER", func(v string) {
			if v != "" {
				cfg.DefaultProvider = v
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
}

// DataDir returns the path to the kernel's data directory
// (~/.config/symbrt).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", constants.ConfigDirName), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}
