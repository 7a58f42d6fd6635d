// Package config loads process configuration from a YAML file with
// environment overrides, falling back to sensible defaults when no file
// exists.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig configures the HTTP interface boundary.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// NewsenseConfig configures the external data API client and fetcher.
type NewsenseConfig struct {
	BaseURL        string
	Username       string
	Password       string
	Timeout        time.Duration
	ChunkSpanDays  int
	MaxInFlight    int
	MaxRetries     int
	InitialBackoff time.Duration
}

// AIConfig configures the external model backend.
type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// ResolverConfig configures query resolution.
type ResolverConfig struct {
	RecencyWindowDays int
}

// UnitRule converts one reported unit into a canonical one.
type UnitRule struct {
	To     string  `mapstructure:"to"`
	Factor float64 `mapstructure:"factor"`
}

// Config is the full process configuration.
type Config struct {
	Server             ServerConfig
	Newsense           NewsenseConfig
	AI                 AIConfig
	Resolver           ResolverConfig
	KnowledgeGraphPath string
	LogLevel           string
	Units              map[string]UnitRule
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Newsense: NewsenseConfig{
			Timeout:        30 * time.Second,
			ChunkSpanDays:  30,
			MaxInFlight:    5,
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
		},
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.0,
			MaxTokens:   1024,
			Timeout:     30 * time.Second,
			MaxRetries:  3,
		},
		Resolver: ResolverConfig{
			RecencyWindowDays: 7,
		},
		KnowledgeGraphPath: "knowledge_graph.csv",
		LogLevel:           "info",
	}
}

// Load reads configuration from path. An empty path looks for
// newsense-analyst.yaml in the working directory; a missing file falls back
// to defaults. NEWSENSE_* environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("newsense-analyst")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("NEWSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("newsense.base_url", cfg.Newsense.BaseURL)
	v.SetDefault("newsense.username", cfg.Newsense.Username)
	v.SetDefault("newsense.password", cfg.Newsense.Password)
	v.SetDefault("newsense.timeout", cfg.Newsense.Timeout)
	v.SetDefault("newsense.chunk_span_days", cfg.Newsense.ChunkSpanDays)
	v.SetDefault("newsense.max_in_flight", cfg.Newsense.MaxInFlight)
	v.SetDefault("newsense.max_retries", cfg.Newsense.MaxRetries)
	v.SetDefault("newsense.initial_backoff", cfg.Newsense.InitialBackoff)
	v.SetDefault("ai.base_url", cfg.AI.BaseURL)
	v.SetDefault("ai.api_key", cfg.AI.APIKey)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.temperature", cfg.AI.Temperature)
	v.SetDefault("ai.max_tokens", cfg.AI.MaxTokens)
	v.SetDefault("ai.timeout", cfg.AI.Timeout)
	v.SetDefault("ai.max_retries", cfg.AI.MaxRetries)
	v.SetDefault("resolver.recency_window_days", cfg.Resolver.RecencyWindowDays)
	v.SetDefault("knowledge_graph_path", cfg.KnowledgeGraphPath)
	v.SetDefault("log_level", cfg.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		// No discovered file means defaults; an explicit but unreadable file
		// is an error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	cfg.Newsense.BaseURL = v.GetString("newsense.base_url")
	cfg.Newsense.Username = v.GetString("newsense.username")
	cfg.Newsense.Password = v.GetString("newsense.password")
	cfg.Newsense.Timeout = v.GetDuration("newsense.timeout")
	cfg.Newsense.ChunkSpanDays = v.GetInt("newsense.chunk_span_days")
	cfg.Newsense.MaxInFlight = v.GetInt("newsense.max_in_flight")
	cfg.Newsense.MaxRetries = v.GetInt("newsense.max_retries")
	cfg.Newsense.InitialBackoff = v.GetDuration("newsense.initial_backoff")
	cfg.AI.BaseURL = v.GetString("ai.base_url")
	cfg.AI.APIKey = v.GetString("ai.api_key")
	cfg.AI.Model = v.GetString("ai.model")
	cfg.AI.Temperature = v.GetFloat64("ai.temperature")
	cfg.AI.MaxTokens = v.GetInt("ai.max_tokens")
	cfg.AI.Timeout = v.GetDuration("ai.timeout")
	cfg.AI.MaxRetries = v.GetInt("ai.max_retries")
	cfg.Resolver.RecencyWindowDays = v.GetInt("resolver.recency_window_days")
	cfg.KnowledgeGraphPath = v.GetString("knowledge_graph_path")
	cfg.LogLevel = v.GetString("log_level")

	if v.IsSet("units") {
		if err := v.UnmarshalKey("units", &cfg.Units); err != nil {
			return nil, fmt.Errorf("parsing units table: %w", err)
		}
	}

	return cfg, nil
}
