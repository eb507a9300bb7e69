package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xonecas/symbrt/queue"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed writing scratch config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
default_provider = "local"

[providers.local]
endpoint = "http://localhost:11434"
model = "llama3"
temperature = 0.5

[agent]
max_iterations = 10
enable_parallel_tools = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DefaultProvider != "local" {
		t.Fatalf("got default provider %q, want local", cfg.DefaultProvider)
	}
	if cfg.Providers["local"].Model != "llama3" {
		t.Fatalf("got model %q, want llama3", cfg.Providers["local"].Model)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Fatalf("got max_iterations %d, want 10", cfg.Agent.MaxIterations)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}

func TestValidate_RejectsNoProviders(t *testing.T) {
	path := writeConfig(t, `default_provider = "local"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error when no providers are configured")
	}
}

func TestValidate_RejectsUnknownDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
default_provider = "ghost"

[providers.local]
endpoint = "http://localhost:11434"
model = "llama3"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a default_provider not present in providers")
	}
}

func TestValidate_RejectsBadEndpoint(t *testing.T) {
	path := writeConfig(t, `
[providers.local]
endpoint = "not-a-url"
model = "llama3"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an endpoint with no scheme/host")
	}
}

func TestValidate_RejectsOutOfRangeCompactionThreshold(t *testing.T) {
	path := writeConfig(t, `
[providers.local]
endpoint = "http://localhost:11434"
model = "llama3"

[agent]
compaction_threshold = 1.5
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for compaction_threshold above 1")
	}
}

func TestApplyEnvOverrides_DefaultProvider(t *testing.T) {
	path := writeConfig(t, `
[providers.local]
endpoint = "http://localhost:11434"
model = "llama3"

[providers.alt]
endpoint = "http://localhost:11435"
model = "mistral"
`)
	t.Setenv("SYMBRT_DEFAULT_PROVIDER", "alt")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DefaultProvider != "alt" {
		t.Fatalf("got default provider %q, want alt (from env override)", cfg.DefaultProvider)
	}
}

func TestAgentConfig_ToOptions_AppliesDefaultsForZeroFields(t *testing.T) {
	var a AgentConfig
	opts := a.ToOptions().WithDefaults()
	if opts.MaxIterations != 50 {
		t.Fatalf("got MaxIterations %d, want the default of 50", opts.MaxIterations)
	}
	if opts.SteeringMode != queue.OneAtATime {
		t.Fatalf("got SteeringMode %v, want OneAtATime", opts.SteeringMode)
	}
}
