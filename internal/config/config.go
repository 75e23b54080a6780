// Package config provides configuration for the thirdeye service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int
	RPCPort  int // 0 disables the JSON-RPC listener

	// Database settings
	DatabaseURL string

	// Provider settings
	Mode            string
	ProviderTimeout time.Duration
	LegTimeout      time.Duration
	Providers       map[string]ProviderConfig

	// Pipeline settings
	StrictOrder  bool
	DefaultRoute string
	DisabledEyes []string
	SeedFile     string

	// WebSocket settings
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBuffer     int

	// Logging
	LogLevel string
}

// ProviderConfig describes an OpenAI-compatible provider endpoint.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ModeMock selects the built-in mock provider.
const ModeMock = "MOCK"

var defaultProviders = map[string]ProviderConfig{
	"openai":     {BaseURL: "https://api.openai.com"},
	"groq":       {BaseURL: "https://api.groq.com/openai"},
	"openrouter": {BaseURL: "https://openrouter.ai/api"},
	"ollama":     {BaseURL: "http://localhost:11434"},
	"lmstudio":   {BaseURL: "http://localhost:1234"},
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("RPC_PORT", 8082)
	v.SetDefault("DATABASE_URL", "file:thirdeye.db?cache=shared&mode=rwc")
	v.SetDefault("THIRDEYE_MODE", "")
	v.SetDefault("PROVIDER_TIMEOUT_MS", 60000)
	v.SetDefault("LEG_TIMEOUT_MS", 90000)
	v.SetDefault("STRICT_ORDER", true)
	v.SetDefault("DEFAULT_ROUTE", "default")
	v.SetDefault("DISABLED_EYES", "")
	v.SetDefault("SEED_FILE", "")
	v.SetDefault("WS_PING_INTERVAL_MS", 30000)
	v.SetDefault("WS_PONG_WAIT_MS", 60000)
	v.SetDefault("WS_WRITE_TIMEOUT_MS", 10000)
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 65536)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()
	return v
}

// Load loads configuration from the environment and the optional file named by THIRDEYE_CONFIG.
func Load() (*Config, error) {
	v := New()
	if path := v.GetString("THIRDEYE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an initialised viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:        v.GetInt("HTTP_PORT"),
		RPCPort:         v.GetInt("RPC_PORT"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		Mode:            strings.ToUpper(v.GetString("THIRDEYE_MODE")),
		ProviderTimeout: millis(v.GetInt("PROVIDER_TIMEOUT_MS")),
		LegTimeout:      millis(v.GetInt("LEG_TIMEOUT_MS")),
		StrictOrder:     v.GetBool("STRICT_ORDER"),
		DefaultRoute:    v.GetString("DEFAULT_ROUTE"),
		DisabledEyes:    splitList(v.GetString("DISABLED_EYES")),
		SeedFile:        v.GetString("SEED_FILE"),
		PingInterval:    millis(v.GetInt("WS_PING_INTERVAL_MS")),
		PongWait:        millis(v.GetInt("WS_PONG_WAIT_MS")),
		WriteTimeout:    millis(v.GetInt("WS_WRITE_TIMEOUT_MS")),
		MaxMessageSize:  v.GetInt64("WS_MAX_MESSAGE_SIZE"),
		SendBuffer:      v.GetInt("WS_SEND_BUFFER"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		Providers:       make(map[string]ProviderConfig),
	}

	for id, p := range defaultProviders {
		cfg.Providers[id] = p
	}
	var fromFile map[string]ProviderConfig
	if err := v.UnmarshalKey("providers", &fromFile); err != nil {
		return nil, fmt.Errorf("failed to decode providers: %w", err)
	}
	for id, p := range fromFile {
		id = strings.ToLower(id)
		merged := cfg.Providers[id]
		if p.BaseURL != "" {
			merged.BaseURL = p.BaseURL
		}
		if p.APIKey != "" {
			merged.APIKey = p.APIKey
		}
		cfg.Providers[id] = merged
	}

	if cfg.PongWait <= cfg.PingInterval {
		return nil, fmt.Errorf("WS_PONG_WAIT_MS (%s) must exceed WS_PING_INTERVAL_MS (%s)", cfg.PongWait, cfg.PingInterval)
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	return cfg, nil
}

// MockMode reports whether the mock provider is selected.
func (c *Config) MockMode() bool {
	return c.Mode == ModeMock
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
