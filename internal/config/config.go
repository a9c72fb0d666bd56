package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig    `json:"server" yaml:"server"`
	Scheduler    SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Models       []ModelConfig   `json:"models" yaml:"models"`
	DefaultModel string          `json:"default_model" yaml:"default_model"`
	Memory       MemoryConfig    `json:"memory" yaml:"memory"`
	Events       EventsConfig    `json:"events" yaml:"events"`
	Platforms    PlatformsConfig `json:"platforms" yaml:"platforms"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

type SchedulerConfig struct {
	DefaultPriority int      `json:"default_priority" yaml:"default_priority"`
	PollInterval    Duration `json:"poll_interval" yaml:"poll_interval"`
	StopTimeout     Duration `json:"stop_timeout" yaml:"stop_timeout"`
}

// ModelConfig registers one named generation capability. Type is "llm" or
// "diffusion"; Provider selects the backend ("placeholder", "openai",
// "anthropic").
type ModelConfig struct {
	Name      string            `json:"name" yaml:"name"`
	Type      string            `json:"type" yaml:"type"`
	Provider  string            `json:"provider" yaml:"provider"`
	Endpoint  string            `json:"endpoint" yaml:"endpoint"`
	APIKey    string            `json:"api_key" yaml:"api_key"`
	Model     string            `json:"model" yaml:"model"`
	MaxTokens int               `json:"max_tokens" yaml:"max_tokens"`
	Fallbacks []string          `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
	Extra     map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// MemoryConfig selects the memory store. Backend is one of "local",
// "sqlite", "redis", "postgres".
type MemoryConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
	URL     string `json:"url" yaml:"url"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type EventsConfig struct {
	RedisURL string `json:"redis_url" yaml:"redis_url"`
	Stream   string `json:"stream" yaml:"stream"`
}

type PlatformsConfig struct {
	Mock    []string      `json:"mock" yaml:"mock"`
	Slack   SlackConfig   `json:"slack" yaml:"slack"`
	Discord DiscordConfig `json:"discord" yaml:"discord"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	Channel  string `json:"channel" yaml:"channel"`
	APIURL   string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
}

type DiscordConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	Channel  string `json:"channel" yaml:"channel"`
}

// Duration is a time.Duration written as a Go duration string ("750ms").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON or YAML config file, chosen by extension, substitutes
// environment variable references and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := expandEnv(string(data))

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(resolved), &cfg)
	case ".json":
		err = json.Unmarshal([]byte(resolved), &cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Scheduler.DefaultPriority == 0 {
		c.Scheduler.DefaultPriority = 5
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = Duration(time.Second)
	}
	if c.Scheduler.StopTimeout == 0 {
		c.Scheduler.StopTimeout = Duration(5 * time.Second)
	}
	if len(c.Models) == 0 {
		c.Models = []ModelConfig{
			{Name: "llama-3.1", Type: "llm", Provider: "placeholder"},
			{Name: "stable-diffusion-xl", Type: "diffusion", Provider: "placeholder"},
		}
	}
	for i := range c.Models {
		if c.Models[i].Type == "" {
			c.Models[i].Type = "llm"
		}
		if c.Models[i].Provider == "" {
			c.Models[i].Provider = "placeholder"
		}
	}
	if c.DefaultModel == "" {
		c.DefaultModel = c.Models[0].Name
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "local"
	}
	if c.Memory.Backend == "sqlite" && c.Memory.Path == "" {
		c.Memory.Path = "data/memory.db"
	}
	if len(c.Platforms.Mock) == 0 {
		c.Platforms.Mock = []string{"twitter", "instagram", "facebook"}
	}
}

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})
}
