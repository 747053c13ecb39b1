package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	infisical "github.com/infisical/go-sdk"
)

const DefaultPath = "config.json"

var (
	// ErrConfig marks missing or malformed configuration, including
	// operations the configured market version does not support.
	ErrConfig = errors.New("configuration error")
	// ErrInput marks malformed numeric or address strings.
	ErrInput  = errors.New("invalid input")
)

type Config struct {
	CompoundVersion     string `json:"compound_version" toml:"compound_version"`
	RPCURL              string `json:"rpc_url" toml:"rpc_url"`
	MarketAddress       string `json:"market_address" toml:"market_address"`
	MarketName          string `json:"market_name" toml:"market_name"`
	WebhookURL          string `json:"webhook_url" toml:"webhook_url"`
	PollIntervalSecs    uint64 `json:"poll_interval_secs" toml:"poll_interval_secs"`
	LiquidityThreshold  string `json:"liquidity_threshold" toml:"liquidity_threshold"`
	NotificationEnabled *bool  `json:"notification_enabled" toml:"notification_enabled"`
	PrivateKey          string `json:"private_key" toml:"private_key"`

	Port               string `json:"port" toml:"port"`
	RedisURL           string `json:"redis_url" toml:"redis_url"`
	RedisPassword      string `json:"redis_password" toml:"redis_password"`
	RPCTimeoutSecs     uint64 `json:"rpc_timeout_secs" toml:"rpc_timeout_secs"`
	WebhookTimeoutSecs uint64 `json:"webhook_timeout_secs" toml:"webhook_timeout_secs"`
	TxTimeoutSecs      uint64 `json:"tx_timeout_secs" toml:"tx_timeout_secs"`
}

// Load reads the config file at path (JSON, or TOML for .toml files),
// applies environment overrides and Infisical secrets, then defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = envOr("CONFIG_FILE", DefaultPath)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s (make sure it exists in the current directory): %w", ErrConfig, path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
		}
	}

	cfg.RPCURL = envOr("RPC_URL", cfg.RPCURL)
	cfg.WebhookURL = envOr("WEBHOOK_URL", cfg.WebhookURL)
	cfg.PrivateKey = envOr("PRIVATE_KEY", cfg.PrivateKey)
	cfg.Port = envOr("PORT", cfg.Port)
	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = envOr("REDIS_PASSWORD", cfg.RedisPassword)

	// If Infisical credentials are available, fetch missing secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.RPCTimeoutSecs == 0 {
		c.RPCTimeoutSecs = 30
	}
	if c.WebhookTimeoutSecs == 0 {
		c.WebhookTimeoutSecs = 10
	}
	if c.TxTimeoutSecs == 0 {
		c.TxTimeoutSecs = 300
	}
}

// NotificationsEnabled defaults to true when unset.
func (c *Config) NotificationsEnabled() bool {
	return c.NotificationEnabled == nil || *c.NotificationEnabled
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutSecs) * time.Second
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSecs) * time.Second
}

func (c *Config) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutSecs) * time.Second
}

// ResolveKey picks the signing credential: the explicit flag value, else
// the configured key.
func (c *Config) ResolveKey(flagValue string) (string, error) {
	if k := strings.TrimSpace(flagValue); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(c.PrivateKey); k != "" {
		return k, nil
	}
	return "", fmt.Errorf("%w: private key not provided; use --private-key or add 'private_key' to the config file", ErrConfig)
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL", "https://app.infisical.com")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"PRIVATE_KEY":    &cfg.PrivateKey,
		"WEBHOOK_URL":    &cfg.WebhookURL,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // already set by file or env
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
