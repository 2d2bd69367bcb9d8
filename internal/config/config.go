package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models bidforge.yml.
type Config struct {
	LLM struct {
		Model     string  `yaml:"model"`
		MaxTokens int     `yaml:"max_tokens"`
		// Temperature overrides per stage; stages not listed keep their
		// built-in defaults.
		Temperatures map[string]float64 `yaml:"temperatures"`
	} `yaml:"llm"`
	Workflow struct {
		// MaxIterations bounds the draft->critique loop.
		MaxIterations int `yaml:"max_iterations"`
		// RequireAccept keeps looping (up to MaxIterations) until every
		// strategy's critique is an ACCEPT.
		RequireAccept bool `yaml:"require_accept"`
	} `yaml:"workflow"`
	Poller PollerConfig `yaml:"poller"`
	Server struct {
		Port     int    `yaml:"port"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// PollerConfig tunes the client-side generation flow. Durations are written
// as yaml strings like "5s".
type PollerConfig struct {
	Interval       time.Duration
	MaxAttempts    int
	DraftRateEvery time.Duration
}

// UnmarshalYAML decodes durations with time.ParseDuration. Omitted fields
// keep their current values.
func (p *PollerConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Interval       string `yaml:"interval"`
		MaxAttempts    *int   `yaml:"max_attempts"`
		DraftRateEvery string `yaml:"draft_rate_every"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.Interval != "" {
		d, err := time.ParseDuration(aux.Interval)
		if err != nil {
			return fmt.Errorf("config.poller.interval: %w", err)
		}
		p.Interval = d
	}
	if aux.MaxAttempts != nil {
		p.MaxAttempts = *aux.MaxAttempts
	}
	if aux.DraftRateEvery != "" {
		d, err := time.ParseDuration(aux.DraftRateEvery)
		if err != nil {
			return fmt.Errorf("config.poller.draft_rate_every: %w", err)
		}
		p.DraftRateEvery = d
	}
	return nil
}

// MarshalYAML writes durations back out in the same "5s" form.
func (p PollerConfig) MarshalYAML() (any, error) {
	return map[string]any{
		"interval":         p.Interval.String(),
		"max_attempts":     p.MaxAttempts,
		"draft_rate_every": p.DraftRateEvery.String(),
	}, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bidforge.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 4096
	cfg.Workflow.MaxIterations = 1
	cfg.Workflow.RequireAccept = false
	cfg.Poller.Interval = 5 * time.Second
	cfg.Poller.MaxAttempts = 60
	cfg.Poller.DraftRateEvery = 2 * time.Second
	cfg.Server.Port = 8080
	cfg.Server.BasePath = "/v0"
	return &cfg
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("config.llm.model is required")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("config.llm.max_tokens must not be negative")
	}
	for stage, temp := range c.LLM.Temperatures {
		if temp < 0 || temp > 2 {
			return fmt.Errorf("config.llm.temperatures.%s out of range [0,2]", stage)
		}
	}
	if c.Workflow.MaxIterations < 1 {
		return fmt.Errorf("config.workflow.max_iterations must be at least 1")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("config.poller.interval must be positive")
	}
	if c.Poller.MaxAttempts < 1 {
		return fmt.Errorf("config.poller.max_attempts must be at least 1")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config.server.port out of range")
	}
	return nil
}

// Temperature returns the configured temperature for a stage, or fallback
// when no override is set.
func (c *Config) Temperature(stage string, fallback float64) float64 {
	if t, ok := c.LLM.Temperatures[stage]; ok {
		return t
	}
	return fallback
}

// GenerateDefault returns default config YAML suitable for writing to disk.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `llm:
  model: gpt-4o-mini
  max_tokens: 4096
  temperatures:
    researcher: 0.0
    drafter: 0.7
    critic: 0.2
    humanizer: 0.4
    writer: 0.6

workflow:
  max_iterations: 1
  require_accept: false

poller:
  interval: 5s
  max_attempts: 60
  draft_rate_every: 2s

server:
  port: 8080
  base_path: /v0
`
