package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "funnel_config.toml"

var (
	ErrMissingShip = errors.New("chat.ship must be set")
	ErrMissingChat = errors.New("chat.name must be set")
	ErrMissingAddr = errors.New("webhook.addr must be set")
)

// Config holds all configuration for the webhook funnel.
type Config struct {
	Chat     ChatConfig     `toml:"chat"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Log      LogConfig      `toml:"log"`
}

// ChatConfig names the chat destination.
type ChatConfig struct {
	Ship string `toml:"ship"` // identity hosting the chat
	Name string `toml:"name"` // chat channel name
}

type GatewayConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

type WebhookConfig struct {
	Addr         string  `toml:"addr"`
	Secret       string  `toml:"secret"`
	Expose       string  `toml:"expose"` // "" or "tailscale"
	RateLimit    float64 `toml:"rate_limit"`
	RateBurst    int     `toml:"rate_burst"`
	MaxBodyBytes int64   `toml:"max_body_bytes"`
}

type DispatchConfig struct {
	PollIntervalMS    int `toml:"poll_interval_ms"`
	DeliveryTimeoutMS int `toml:"delivery_timeout_ms"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			URL: "ws://127.0.0.1:8080/chat",
		},
		Webhook: WebhookConfig{
			Addr:         ":9000",
			RateLimit:    10,
			RateBurst:    20,
			MaxBodyBytes: 5 << 20,
		},
		Dispatch: DispatchConfig{
			PollIntervalMS:    1000,
			DeliveryTimeoutMS: 10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// PollInterval returns the dispatch poll interval.
func (d DispatchConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMS) * time.Millisecond
}

// DeliveryTimeout returns the per-message delivery timeout.
func (d DispatchConfig) DeliveryTimeout() time.Duration {
	return time.Duration(d.DeliveryTimeoutMS) * time.Millisecond
}

// Load reads configuration from the TOML config file (if it exists) and
// applies environment variable overrides. Env vars always win.
//
// Config file resolution: explicit path → FUNNEL_CONFIG → ./funnel_config.toml
// → ~/.config/webhook-funnel/config.toml → skip.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = Path()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// Path returns the first config file candidate that exists, or the user
// config path when none does.
func Path() string {
	if p := os.Getenv("FUNNEL_CONFIG"); p != "" {
		return expandHome(p)
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "webhook-funnel", "config.toml")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FUNNEL_CHAT_SHIP"); v != "" {
		cfg.Chat.Ship = v
	}
	if v := os.Getenv("FUNNEL_CHAT_NAME"); v != "" {
		cfg.Chat.Name = v
	}

	if v := os.Getenv("FUNNEL_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("FUNNEL_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}

	if v := os.Getenv("FUNNEL_WEBHOOK_ADDR"); v != "" {
		cfg.Webhook.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.Webhook.Addr = ":" + v
	}
	if v := os.Getenv("FUNNEL_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("FUNNEL_WEBHOOK_EXPOSE"); v != "" {
		cfg.Webhook.Expose = v
	}
	if v := os.Getenv("FUNNEL_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Webhook.RateLimit = f
		}
	}

	if v := os.Getenv("FUNNEL_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.PollIntervalMS = n
		}
	}
	if v := os.Getenv("FUNNEL_DELIVERY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.DeliveryTimeoutMS = n
		}
	}

	if v := os.Getenv("FUNNEL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FUNNEL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// Validate checks the required values and normalises the rest.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Chat.Ship) == "" {
		errs = append(errs, ErrMissingShip)
	}
	if strings.TrimSpace(c.Chat.Name) == "" || c.Chat.Name == "..." {
		errs = append(errs, ErrMissingChat)
	}
	if strings.TrimSpace(c.Webhook.Addr) == "" {
		errs = append(errs, ErrMissingAddr)
	}

	if c.Dispatch.PollIntervalMS < 10 {
		c.Dispatch.PollIntervalMS = 1000
	}
	if c.Dispatch.DeliveryTimeoutMS <= 0 {
		c.Dispatch.DeliveryTimeoutMS = 10000
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		c.Webhook.MaxBodyBytes = 5 << 20
	}

	switch strings.ToLower(c.Webhook.Expose) {
	case "", "none":
		c.Webhook.Expose = ""
	case "tailscale":
		c.Webhook.Expose = "tailscale"
	default:
		errs = append(errs, fmt.Errorf("webhook.expose: unknown mode %q", c.Webhook.Expose))
	}

	return errors.Join(errs...)
}

const template = `# Identity hosting the chat
[chat]
ship = "~zod"
# Name of the chat
name = "..."

[gateway]
url = "ws://127.0.0.1:8080/chat"
token = ""

[webhook]
addr = ":9000"
# Shared secret checked against X-Gitlab-Token or X-Hub-Signature-256.
secret = ""
`

// WriteTemplate creates a barebones config file at path. It returns false
// without touching anything when the file already exists.
func WriteTemplate(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return false, fmt.Errorf("create config dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create config: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(template); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
