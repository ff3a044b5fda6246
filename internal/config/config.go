package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SCRIBE_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Nats     NatsConfig     `koanf:"nats"`
	LLM      LLMConfig      `koanf:"llm"`
	Learning LearningConfig `koanf:"learning"`
	Batch    BatchConfig    `koanf:"batch"`
	Prompts  PromptsConfig  `koanf:"prompts"`
}

type ServerConfig struct {
	Port     int    `koanf:"port"`
	APIToken string `koanf:"api_token"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite | postgres
	URL    string `koanf:"url"`
}

type NatsConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

type LLMConfig struct {
	Backend                 string   `koanf:"backend"` // ollama | openai | anthropic
	BaseURL                 string   `koanf:"base_url"`
	APIKey                  string   `koanf:"api_key"`
	PrimaryModel            string   `koanf:"primary_model"`
	SecondaryModel          string   `koanf:"secondary_model"`
	ReasoningModel          string   `koanf:"reasoning_model"`
	TimeoutSeconds          int      `koanf:"timeout_seconds"`
	RateLimit               float64  `koanf:"rate_limit"`
	ExplicitReasoningModels []string `koanf:"explicit_reasoning_models"`
}

type LearningConfig struct {
	ChangeThreshold float64 `koanf:"change_threshold"`
}

type BatchConfig struct {
	Concurrency int `koanf:"concurrency"`
}

type PromptsConfig struct {
	Path string `koanf:"path"`
}

// ModelConfig is a model name plus the capabilities resolved for it once at
// load time.
type ModelConfig struct {
	Name                          string
	SupportsExplicitReasoningStep bool
}

// Model resolves the capability flags for name.
func (c LLMConfig) Model(name string) ModelConfig {
	m := ModelConfig{Name: name}
	for _, r := range c.ExplicitReasoningModels {
		if strings.EqualFold(strings.TrimSpace(r), name) {
			m.SupportsExplicitReasoningStep = true
			break
		}
	}
	return m
}

// Primary is the model used for field extraction.
func (c LLMConfig) Primary() ModelConfig { return c.Model(c.PrimaryModel) }

// Secondary is the model used for refinement and learning.
func (c LLMConfig) Secondary() ModelConfig { return c.Model(c.SecondaryModel) }

// Reasoning is the model used by the batch reasoning job.
func (c LLMConfig) Reasoning() ModelConfig { return c.Model(c.ReasoningModel) }

// Load reads configuration from the optional YAML file at path and then from
// SCRIBE_* environment variables. Environment wins over the file, the file
// wins over defaults.
//
//	SCRIBE_SERVER_PORT       -> server.port
//	SCRIBE_LLM_PRIMARY_MODEL -> llm.primary_model
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SCRIBE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8760
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.URL == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.URL = "scribe.db"
	}
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "ollama"
	}
	if cfg.LLM.BaseURL == "" {
		switch cfg.LLM.Backend {
		case "openai":
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		case "anthropic":
			cfg.LLM.BaseURL = "https://api.anthropic.com/v1"
		default:
			cfg.LLM.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.LLM.PrimaryModel == "" {
		cfg.LLM.PrimaryModel = "llama3.1:8b"
	}
	if cfg.LLM.SecondaryModel == "" {
		cfg.LLM.SecondaryModel = cfg.LLM.PrimaryModel
	}
	if cfg.LLM.ReasoningModel == "" {
		cfg.LLM.ReasoningModel = cfg.LLM.PrimaryModel
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 120
	}
	if cfg.Learning.ChangeThreshold <= 0 {
		cfg.Learning.ChangeThreshold = 0.4
	}
	if cfg.Batch.Concurrency <= 0 {
		cfg.Batch.Concurrency = 5
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database url is required for postgres")
	}
	switch c.LLM.Backend {
	case "ollama":
	case "openai":
		if c.LLM.APIKey == "" && strings.Contains(c.LLM.BaseURL, "api.openai.com") {
			return fmt.Errorf("llm api key is required for %s", c.LLM.BaseURL)
		}
	case "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm api key is required for the anthropic backend")
		}
	default:
		return fmt.Errorf("unsupported llm backend %q", c.LLM.Backend)
	}
	if c.Learning.ChangeThreshold > 1 {
		return fmt.Errorf("learning change threshold must be within (0,1], got %v", c.Learning.ChangeThreshold)
	}
	return nil
}
