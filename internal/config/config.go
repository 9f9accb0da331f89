package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	LLM       LLMConfig        `json:"llm"`
	Database  DatabaseConfig   `json:"database"`
	LogSink   LogSinkConfig    `json:"logsink"`
	Agent     AgentConfig      `json:"agent"`
}

type ServerConfig struct {
	Port        int      `json:"port"`
	LogLevel    string   `json:"log_level"`
	Env         string   `json:"env"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  Duration          `json:"timeout,omitempty"`
}

// LLMConfig picks the provider and model used by every prompt.
type LLMConfig struct {
	DefaultProvider string   `json:"default_provider"`
	Model           string   `json:"model"`
	Fallbacks       []string `json:"fallbacks,omitempty"`
}

type DatabaseConfig struct {
	Driver     string         `json:"driver"`
	Postgres   PostgresConfig `json:"postgres"`
	Redis      RedisConfig    `json:"redis"`
	Collection string         `json:"collection"`
	Migrate    *bool          `json:"migrate,omitempty"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type LogSinkConfig struct {
	Mode         string   `json:"mode"`
	Stream       string   `json:"stream"`
	MaxLen       int64    `json:"max_len"`
	WriteTimeout Duration `json:"write_timeout"`
}

type AgentConfig struct {
	Model             string   `json:"model"`
	MaxToolCalls      int      `json:"max_tool_calls"`
	Timeout           Duration `json:"timeout"`
	DistinctScanLimit int      `json:"distinct_scan_limit"`
	GroupScanLimit    int      `json:"group_scan_limit"`
}

// Duration reads either a Go duration string ("5s") or a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
	case string:
		if x == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// Defaults returns the configuration used when a field is left empty.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info", Env: "development"},
		Database: DatabaseConfig{
			Driver:     "postgres",
			Collection: "api_logs",
		},
		LogSink: LogSinkConfig{
			Mode:         "direct",
			Stream:       "cary:api_logs",
			MaxLen:       100000,
			WriteTimeout: Duration(5 * time.Second),
		},
		Agent: AgentConfig{
			MaxToolCalls:      12,
			Timeout:           Duration(60 * time.Second),
			DistinctScanLimit: 100,
			GroupScanLimit:    1000,
		},
	}
}

// MigrateEnabled reports whether schema migrations run at startup. Defaults to true.
func (c DatabaseConfig) MigrateEnabled() bool {
	return c.Migrate == nil || *c.Migrate
}

func (c *Config) applyDefaults() {
	def := Defaults()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Server.Env == "" {
		c.Server.Env = def.Server.Env
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.Collection == "" {
		c.Database.Collection = def.Database.Collection
	}
	if c.LogSink.Mode == "" {
		c.LogSink.Mode = def.LogSink.Mode
	}
	if c.LogSink.Stream == "" {
		c.LogSink.Stream = def.LogSink.Stream
	}
	if c.LogSink.MaxLen <= 0 {
		c.LogSink.MaxLen = def.LogSink.MaxLen
	}
	if c.LogSink.WriteTimeout <= 0 {
		c.LogSink.WriteTimeout = def.LogSink.WriteTimeout
	}
	if c.Agent.MaxToolCalls <= 0 {
		c.Agent.MaxToolCalls = def.Agent.MaxToolCalls
	}
	if c.Agent.Timeout <= 0 {
		c.Agent.Timeout = def.Agent.Timeout
	}
	if c.Agent.DistinctScanLimit <= 0 {
		c.Agent.DistinctScanLimit = def.Agent.DistinctScanLimit
	}
	if c.Agent.GroupScanLimit <= 0 {
		c.Agent.GroupScanLimit = def.Agent.GroupScanLimit
	}
	if c.Agent.Model == "" {
		c.Agent.Model = c.LLM.Model
	}
	if c.LLM.DefaultProvider == "" && len(c.Providers) > 0 {
		c.LLM.DefaultProvider = c.Providers[0].ID
	}
}

// Validate rejects settings the service cannot act on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	switch c.LogSink.Mode {
	case "direct", "stream":
	default:
		return fmt.Errorf("logsink.mode: unknown mode %q", c.LogSink.Mode)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d]: missing id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		switch p.Type {
		case "openai", "anthropic", "gemini":
		default:
			return fmt.Errorf("providers[%d]: unknown type %q", i, p.Type)
		}
	}
	if c.LLM.DefaultProvider != "" && len(c.Providers) > 0 && !seen[c.LLM.DefaultProvider] {
		return fmt.Errorf("llm.default_provider: %q is not a configured provider", c.LLM.DefaultProvider)
	}
	for _, id := range c.LLM.Fallbacks {
		if !seen[id] {
			return fmt.Errorf("llm.fallbacks: %q is not a configured provider", id)
		}
	}
	return nil
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config JSON after environment substitution.
func Parse(data []byte) (*Config, error) {
	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
