// Package config loads and validates docvet configuration. Configuration is
// a YAML file layered over defaults, with environment variable overrides
// applied last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all docvet configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Rule documents
	Rules RulesConfig `yaml:"rules"`

	// Prompt documents
	Prompts PromptsConfig `yaml:"prompts"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// HTTP/WebSocket surface
	HTTP HTTPConfig `yaml:"http"`

	// Workflow engine
	Workflows WorkflowsConfig `yaml:"workflows"`

	// Dispatcher and client adapters
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RulesConfig configures the rule manager.
type RulesConfig struct {
	Dir string `yaml:"dir"`
	// Watch enables the fsnotify watcher that triggers Reload on rule file
	// changes. Explicit reload stays available either way.
	Watch bool `yaml:"watch"`
}

// PromptsConfig configures the prompt loader.
type PromptsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// LLMConfig configures the model capability.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // ollama, gemini
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	Timeout    string `yaml:"timeout"`
	Disabled   bool   `yaml:"disabled"`
}

// HTTPConfig configures the optional HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

// WorkflowsConfig configures the background workflow runners.
type WorkflowsConfig struct {
	MaxConcurrent     int    `yaml:"max_concurrent"`
	PollInterval      string `yaml:"poll_interval"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
}

// ServerConfig configures the dispatcher.
type ServerConfig struct {
	TempDir      string `yaml:"temp_dir"`
	AsyncWorkers int    `yaml:"async_workers"`
}

// ClientConfig configures the client adapters.
type ClientConfig struct {
	MaxRetries  int    `yaml:"max_retries"`
	BaseBackoff string `yaml:"base_backoff"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "docvet",
		Version: "1.0.0",

		Database: DatabaseConfig{
			Path: "data/docvet.db",
		},

		Rules: RulesConfig{
			Dir:   "rules",
			Watch: false,
		},

		Prompts: PromptsConfig{
			Dir:   "prompts",
			Watch: false,
		},

		LLM: LLMConfig{
			Provider:   "ollama",
			Endpoint:   "http://localhost:11434",
			Model:      "llama3.2",
			EmbedModel: "nomic-embed-text",
			Timeout:    "30s",
			Disabled:   false,
		},

		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    ":8585",
			Metrics: true,
		},

		Workflows: WorkflowsConfig{
			MaxConcurrent:     4,
			PollInterval:      "100ms",
			HeartbeatInterval: "5s",
		},

		Server: ServerConfig{
			TempDir:      "",
			AsyncWorkers: 8,
		},

		Client: ClientConfig{
			MaxRetries:  3,
			BaseBackoff: "100ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("DOCVET_DB"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("DOCVET_RULES_DIR"); dir != "" {
		c.Rules.Dir = dir
	}
	if dir := os.Getenv("DOCVET_PROMPTS_DIR"); dir != "" {
		c.Prompts.Dir = dir
	}
	if endpoint := os.Getenv("DOCVET_LLM_ENDPOINT"); endpoint != "" {
		c.LLM.Endpoint = endpoint
	}
	if model := os.Getenv("DOCVET_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if provider := os.Getenv("DOCVET_LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if os.Getenv("DOCVET_LLM_DISABLED") == "1" {
		c.LLM.Disabled = true
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if addr := os.Getenv("DOCVET_HTTP_ADDR"); addr != "" {
		c.HTTP.Addr = addr
		c.HTTP.Enabled = true
	}
	if level := os.Getenv("DOCVET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetLLMTimeout returns the per-call LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetPollInterval returns the workflow pause/cancel poll interval.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Workflows.PollInterval)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetHeartbeatInterval returns the workflow progress heartbeat interval.
func (c *Config) GetHeartbeatInterval() time.Duration {
	d, err := time.ParseDuration(c.Workflows.HeartbeatInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetBaseBackoff returns the client adapter's initial retry backoff.
func (c *Config) GetBaseBackoff() time.Duration {
	d, err := time.ParseDuration(c.Client.BaseBackoff)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"ollama", "gemini"}

// ValidLogLevels lists all supported log levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.LLM.Provider == "gemini" && !c.LLM.Disabled && c.LLM.APIKey == "" {
		return fmt.Errorf("gemini provider requires an API key (set GEMINI_API_KEY)")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	if c.Workflows.MaxConcurrent < 1 {
		return fmt.Errorf("workflows.max_concurrent must be at least 1, got %d", c.Workflows.MaxConcurrent)
	}
	if c.Server.AsyncWorkers < 1 {
		return fmt.Errorf("server.async_workers must be at least 1, got %d", c.Server.AsyncWorkers)
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries must not be negative, got %d", c.Client.MaxRetries)
	}

	return nil
}
