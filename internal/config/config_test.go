package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAMLWithEnv(t *testing.T) {
	t.Setenv("DROID_TEST_KEY", "sk-from-env")
	path := writeFile(t, "droid.yaml", `
server:
  port: 9090
scheduler:
  poll_interval: 250ms
models:
  - name: gpt
    provider: openai
    api_key: ${DROID_TEST_KEY}
    endpoint: ${DROID_TEST_ENDPOINT:http://localhost:1234/v1}
memory:
  backend: sqlite
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Scheduler.PollInterval.Std() != 250*time.Millisecond {
		t.Errorf("poll_interval = %v", cfg.Scheduler.PollInterval.Std())
	}
	m := cfg.Models[0]
	if m.APIKey != "sk-from-env" || m.Endpoint != "http://localhost:1234/v1" {
		t.Errorf("env substitution failed: %+v", m)
	}
	if m.Type != "llm" {
		t.Errorf("model type default = %q, want llm", m.Type)
	}
	if cfg.DefaultModel != "gpt" {
		t.Errorf("default_model = %q, want gpt", cfg.DefaultModel)
	}
	if cfg.Memory.Path != "data/memory.db" {
		t.Errorf("sqlite path default = %q", cfg.Memory.Path)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "droid.json", `{
  "server": {"log_level": "debug"},
  "scheduler": {"stop_timeout": "2s", "default_priority": 3},
  "platforms": {"slack": {"enabled": true, "channel": "C1"}}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scheduler.StopTimeout.Std() != 2*time.Second || cfg.Scheduler.DefaultPriority != 3 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if !cfg.Platforms.Slack.Enabled || cfg.Platforms.Slack.Channel != "C1" {
		t.Errorf("slack = %+v", cfg.Platforms.Slack)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port default = %d", cfg.Server.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "droid.toml", "x = 1")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := Load(writeFile(t, "bad.json", `{"scheduler": {"poll_interval": "soon"}}`)); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DefaultModel != "llama-3.1" || len(cfg.Models) != 2 {
		t.Errorf("default models = %+v, default = %q", cfg.Models, cfg.DefaultModel)
	}
	if cfg.Memory.Backend != "local" {
		t.Errorf("memory backend = %q", cfg.Memory.Backend)
	}
	if len(cfg.Platforms.Mock) != 3 {
		t.Errorf("mock platforms = %v", cfg.Platforms.Mock)
	}
}
