// Package config loads the service configuration: JSON5 file with
// defaults, environment variables on top. Secrets are env-only and never
// read from or written to the config file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Provider  ProviderConfig  `json:"provider"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Credits   CreditsConfig   `json:"credits"`
	Assistant AssistantConfig `json:"assistant"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig configures Postgres. The DSN is a secret and comes from
// env SENDLOOP_POSTGRES_DSN only; an empty DSN selects in-memory stores.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// ProviderConfig configures the completion endpoint. The API key comes
// from env SENDLOOP_OPENAI_API_KEY only.
type ProviderConfig struct {
	APIKey      string  `json:"-"`
	APIBase     string  `json:"api_base"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// WhatsAppConfig configures the messaging gateway. Mode selects the Cloud
// API ("cloud") or a self-hosted WebSocket bridge ("bridge"). The access
// token comes from env SENDLOOP_WA_ACCESS_TOKEN only.
type WhatsAppConfig struct {
	Mode          string `json:"mode"`
	APIBase       string `json:"api_base,omitempty"`
	APIVersion    string `json:"api_version,omitempty"`
	BridgeURL     string `json:"bridge_url,omitempty"`
	AccountID     string `json:"account_id"`
	PhoneNumberID string `json:"phone_number_id"`
	BusinessID    string `json:"business_id"`
	AccessToken   string `json:"-"`
}

type CreditsConfig struct {
	MonthlyAllowance int64 `json:"monthly_allowance"`
}

type AssistantConfig struct {
	Enabled      bool   `json:"enabled"`
	Prompt       string `json:"prompt,omitempty"`
	HistoryLimit int    `json:"history_limit"`
	MaxSteps     int    `json:"max_steps"`
}

type DispatchConfig struct {
	MaxParallel int `json:"max_parallel"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8980,
		},
		Provider: ProviderConfig{
			APIBase:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		WhatsApp: WhatsAppConfig{
			Mode:       "cloud",
			APIVersion: "v20.0",
		},
		Credits: CreditsConfig{
			MonthlyAllowance: 100,
		},
		Assistant: AssistantConfig{
			HistoryLimit: 30,
			MaxSteps:     5,
		},
		Dispatch: DispatchConfig{
			MaxParallel: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets (env-only)
	envStr("SENDLOOP_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("SENDLOOP_OPENAI_API_KEY", &c.Provider.APIKey)
	envStr("SENDLOOP_WA_ACCESS_TOKEN", &c.WhatsApp.AccessToken)

	envStr("SENDLOOP_HOST", &c.Server.Host)
	if v := os.Getenv("SENDLOOP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	envStr("SENDLOOP_MODEL", &c.Provider.Model)
	envStr("SENDLOOP_API_BASE", &c.Provider.APIBase)

	envStr("SENDLOOP_WA_MODE", &c.WhatsApp.Mode)
	envStr("SENDLOOP_WA_ACCOUNT_ID", &c.WhatsApp.AccountID)
	envStr("SENDLOOP_WA_PHONE_NUMBER_ID", &c.WhatsApp.PhoneNumberID)
	envStr("SENDLOOP_WA_BUSINESS_ID", &c.WhatsApp.BusinessID)
	envStr("SENDLOOP_WA_BRIDGE_URL", &c.WhatsApp.BridgeURL)

	if v := os.Getenv("SENDLOOP_ASSISTANT_ENABLED"); v != "" {
		c.Assistant.Enabled = v == "true" || v == "1"
	}
	envStr("SENDLOOP_ASSISTANT_PROMPT", &c.Assistant.Prompt)

	envStr("SENDLOOP_LOG_LEVEL", &c.Logging.Level)
	envStr("SENDLOOP_LOG_FORMAT", &c.Logging.Format)
}

// Validate checks settings needed to boot the serve command.
func (c *Config) Validate() error {
	switch c.WhatsApp.Mode {
	case "cloud":
		if c.WhatsApp.AccessToken == "" {
			return fmt.Errorf("whatsapp cloud mode needs SENDLOOP_WA_ACCESS_TOKEN")
		}
		if c.WhatsApp.PhoneNumberID == "" {
			return fmt.Errorf("whatsapp cloud mode needs a phone_number_id")
		}
	case "bridge":
		if c.WhatsApp.BridgeURL == "" {
			return fmt.Errorf("whatsapp bridge mode needs a bridge_url")
		}
	default:
		return fmt.Errorf("unknown whatsapp mode %q", c.WhatsApp.Mode)
	}
	if c.Assistant.Enabled && c.Provider.APIKey == "" {
		return fmt.Errorf("assistant is enabled but SENDLOOP_OPENAI_API_KEY is not set")
	}
	return nil
}
