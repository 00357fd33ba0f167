package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

// Config is the resolved runtime configuration for the identity service.
// It merges file defaults and environment overrides to support both local
// and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	AuthJWTSecret string

	BcryptCost int

	AuthTokenTTL          time.Duration
	RegionTokenTTL        time.Duration
	CodeTTL               time.Duration
	CodeCooldown          time.Duration
	PasswordSignupEnabled bool
	EnabledProviders      []string

	OAuthGithubClientID      string
	OAuthGithubClientSecret  string
	OAuthGoogleClientID      string
	OAuthGoogleClientSecret  string
	OAuthWechatAppID         string
	OAuthWechatAppSecret     string
	OAuthGenericClientID     string
	OAuthGenericClientSecret string
	OAuthGenericTokenURL     string
	OAuthGenericUserInfoURL  string
	OAuthGenericIDField      string
	OAuthHTTPTimeout         time.Duration

	DeliveryGatewayURL    string
	DeliveryGatewayAPIKey string

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Auth struct {
		JWTSecret             string   `yaml:"jwt_secret"`
		PasswordSignupEnabled *bool    `yaml:"password_signup_enabled"`
		EnabledProviders      []string `yaml:"enabled_providers"`
		CodeTTLSeconds        int      `yaml:"code_ttl_seconds"`
		CodeCooldownSeconds   int      `yaml:"code_cooldown_seconds"`
	} `yaml:"auth"`
	OAuth struct {
		Github struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"github"`
		Google struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"google"`
		Wechat struct {
			AppID     string `yaml:"app_id"`
			AppSecret string `yaml:"app_secret"`
		} `yaml:"wechat"`
		Generic struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			TokenURL     string `yaml:"token_url"`
			UserInfoURL  string `yaml:"user_info_url"`
			IDField      string `yaml:"id_field"`
		} `yaml:"generic"`
	} `yaml:"oauth"`
	Delivery struct {
		GatewayURL    string `yaml:"gateway_url"`
		GatewayAPIKey string `yaml:"gateway_api_key"`
	} `yaml:"delivery"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:             "console-identity-service",
		HTTPPort:              8080,
		GRPCPort:              9090,
		BcryptCost:            12,
		AuthTokenTTL:          7 * 24 * time.Hour,
		RegionTokenTTL:        2 * time.Hour,
		CodeTTL:               domain.CodeTTL,
		CodeCooldown:          domain.CodeCooldown,
		PasswordSignupEnabled: true,
		OAuthGenericIDField:   "id",
		OAuthHTTPTimeout:      8 * time.Second,
		MaxDBConns:            20,
		OutboxPollInterval:    2 * time.Second,
		OutboxBatchSize:       100,
		OutboxClaimTTL:        30 * time.Second,
		OutboxMaxRetries:      5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Auth.JWTSecret != "" {
			cfg.AuthJWTSecret = f.Auth.JWTSecret
		}
		if f.Auth.PasswordSignupEnabled != nil {
			cfg.PasswordSignupEnabled = *f.Auth.PasswordSignupEnabled
		}
		if len(f.Auth.EnabledProviders) > 0 {
			cfg.EnabledProviders = f.Auth.EnabledProviders
		}
		if f.Auth.CodeTTLSeconds > 0 {
			cfg.CodeTTL = time.Duration(f.Auth.CodeTTLSeconds) * time.Second
		}
		if f.Auth.CodeCooldownSeconds > 0 {
			cfg.CodeCooldown = time.Duration(f.Auth.CodeCooldownSeconds) * time.Second
		}
		if f.OAuth.Github.ClientID != "" {
			cfg.OAuthGithubClientID = f.OAuth.Github.ClientID
			cfg.OAuthGithubClientSecret = f.OAuth.Github.ClientSecret
		}
		if f.OAuth.Google.ClientID != "" {
			cfg.OAuthGoogleClientID = f.OAuth.Google.ClientID
			cfg.OAuthGoogleClientSecret = f.OAuth.Google.ClientSecret
		}
		if f.OAuth.Wechat.AppID != "" {
			cfg.OAuthWechatAppID = f.OAuth.Wechat.AppID
			cfg.OAuthWechatAppSecret = f.OAuth.Wechat.AppSecret
		}
		if f.OAuth.Generic.TokenURL != "" {
			cfg.OAuthGenericClientID = f.OAuth.Generic.ClientID
			cfg.OAuthGenericClientSecret = f.OAuth.Generic.ClientSecret
			cfg.OAuthGenericTokenURL = f.OAuth.Generic.TokenURL
			cfg.OAuthGenericUserInfoURL = f.OAuth.Generic.UserInfoURL
			if f.OAuth.Generic.IDField != "" {
				cfg.OAuthGenericIDField = f.OAuth.Generic.IDField
			}
		}
		if f.Delivery.GatewayURL != "" {
			cfg.DeliveryGatewayURL = f.Delivery.GatewayURL
			cfg.DeliveryGatewayAPIKey = f.Delivery.GatewayAPIKey
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.AuthJWTSecret = envOrDefault("AUTH_JWT_SECRET", cfg.AuthJWTSecret)
	cfg.PasswordSignupEnabled = envBool("PASSWORD_SIGNUP_ENABLED", cfg.PasswordSignupEnabled)
	cfg.EnabledProviders = envCSV("ENABLED_PROVIDERS", cfg.EnabledProviders)

	cfg.OAuthGithubClientID = envOrDefault("OAUTH_GITHUB_CLIENT_ID", cfg.OAuthGithubClientID)
	cfg.OAuthGithubClientSecret = envOrDefault("OAUTH_GITHUB_CLIENT_SECRET", cfg.OAuthGithubClientSecret)
	cfg.OAuthGoogleClientID = envOrDefault("OAUTH_GOOGLE_CLIENT_ID", cfg.OAuthGoogleClientID)
	cfg.OAuthGoogleClientSecret = envOrDefault("OAUTH_GOOGLE_CLIENT_SECRET", cfg.OAuthGoogleClientSecret)
	cfg.OAuthWechatAppID = envOrDefault("OAUTH_WECHAT_APP_ID", cfg.OAuthWechatAppID)
	cfg.OAuthWechatAppSecret = envOrDefault("OAUTH_WECHAT_APP_SECRET", cfg.OAuthWechatAppSecret)
	cfg.DeliveryGatewayURL = envOrDefault("DELIVERY_GATEWAY_URL", cfg.DeliveryGatewayURL)
	cfg.DeliveryGatewayAPIKey = envOrDefault("DELIVERY_GATEWAY_API_KEY", cfg.DeliveryGatewayAPIKey)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.AuthTokenTTL = time.Duration(envInt("AUTH_TOKEN_TTL_HOURS", int(cfg.AuthTokenTTL.Hours()))) * time.Hour
	cfg.RegionTokenTTL = time.Duration(envInt("REGION_TOKEN_TTL_MINUTES", int(cfg.RegionTokenTTL.Minutes()))) * time.Minute
	cfg.CodeTTL = time.Duration(envInt("CODE_TTL_SECONDS", int(cfg.CodeTTL.Seconds()))) * time.Second
	cfg.CodeCooldown = time.Duration(envInt("CODE_COOLDOWN_SECONDS", int(cfg.CodeCooldown.Seconds()))) * time.Second
	cfg.OAuthHTTPTimeout = time.Duration(envInt("OAUTH_HTTP_TIMEOUT_SECONDS", int(cfg.OAuthHTTPTimeout.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.AuthJWTSecret == "" {
		return Config{}, fmt.Errorf("missing AUTH_JWT_SECRET")
	}

	return cfg, nil
}

// EnabledProviderSet parses the configured provider list, ignoring unknown
// names. An empty list means every provider stays enabled.
func (c Config) EnabledProviderSet() map[domain.ProviderType]bool {
	if len(c.EnabledProviders) == 0 {
		return nil
	}
	set := make(map[domain.ProviderType]bool, len(c.EnabledProviders))
	for _, raw := range c.EnabledProviders {
		if p, ok := domain.ParseProviderType(raw); ok {
			set[p] = true
		}
	}
	return set
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
