// Package config loads app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mobil3/walletauth"
	"github.com/mobil3/walletauth/client"
)

// DefaultAppName is the app name shipped in sample configs
const DefaultAppName = "Mobil3App"

// Config holds application configuration loaded from the environment.
type Config struct {
	// APIKey authenticates the app with the wallet service. EXPO_PUBLIC_PARA_API_KEY
	// is read when PARA_API_KEY is unset.
	APIKey string `mapstructure:"PARA_API_KEY"`
	// Env is the wallet service environment: beta or prod.
	Env string `mapstructure:"PARA_ENV"`
	// BaseURL overrides the service URL derived from Env (e.g. a local sandbox).
	BaseURL string `mapstructure:"PARA_BASE_URL"`
	// HTTPTimeout bounds each request to the wallet service (e.g. "30s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`

	// OAuthRedirectURI is the loopback URI providers redirect back to.
	OAuthRedirectURI    string `mapstructure:"OAUTH_REDIRECT_URI"`
	OAuthGoogleClientID string `mapstructure:"OAUTH_GOOGLE_CLIENT_ID"`
	OAuthAppleClientID  string `mapstructure:"OAUTH_APPLE_CLIENT_ID"`
	OAuthGitHubClientID string `mapstructure:"OAUTH_GITHUB_CLIENT_ID"`

	AppName string `mapstructure:"APP_NAME"`
	// WalletConnectProjectID is required for WalletConnect external wallets.
	WalletConnectProjectID string `mapstructure:"WALLETCONNECT_PROJECT_ID"`
	// ExternalWallets is a comma-separated list (e.g. "METAMASK,PHANTOM").
	ExternalWallets string `mapstructure:"EXTERNAL_WALLETS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFile receives logs while the terminal UI owns the screen. Empty discards them.
	LogFile string `mapstructure:"LOG_FILE"`

	// Sandbox server only.
	SandboxAddr      string `mapstructure:"SANDBOX_ADDR"`
	SandboxJWTSecret string `mapstructure:"SANDBOX_JWT_SECRET"`

	env     walletauth.Environment
	timeout time.Duration
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("PARA_API_KEY", "")
	v.SetDefault("EXPO_PUBLIC_PARA_API_KEY", "")
	v.SetDefault("PARA_ENV", string(walletauth.EnvBeta))
	v.SetDefault("PARA_BASE_URL", "")
	v.SetDefault("HTTP_TIMEOUT", client.DefaultTimeout.String())
	v.SetDefault("OAUTH_REDIRECT_URI", walletauth.DefaultRedirectURI)
	v.SetDefault("OAUTH_GOOGLE_CLIENT_ID", "")
	v.SetDefault("OAUTH_APPLE_CLIENT_ID", "")
	v.SetDefault("OAUTH_GITHUB_CLIENT_ID", "")
	v.SetDefault("APP_NAME", DefaultAppName)
	v.SetDefault("WALLETCONNECT_PROJECT_ID", "")
	v.SetDefault("EXTERNAL_WALLETS", "METAMASK,PHANTOM,WALLETCONNECT")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "mobil3.log")
	v.SetDefault("SANDBOX_ADDR", ":8090")
	v.SetDefault("SANDBOX_JWT_SECRET", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		cfg.APIKey = v.GetString("EXPO_PUBLIC_PARA_API_KEY")
	}

	env, err := walletauth.ParseEnvironment(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("config: PARA_ENV: %w", err)
	}
	cfg.env = env

	d, err := time.ParseDuration(cfg.HTTPTimeout)
	if err != nil || d <= 0 {
		return nil, errors.New("config: HTTP_TIMEOUT must be a positive duration")
	}
	cfg.timeout = d

	if cfg.OAuthRedirectURI == "" {
		return nil, errors.New("config: OAUTH_REDIRECT_URI must be set")
	}

	return &cfg, nil
}

// Environment returns the parsed PARA_ENV
func (c *Config) Environment() walletauth.Environment { return c.env }

// Timeout returns the parsed HTTP_TIMEOUT
func (c *Config) Timeout() time.Duration { return c.timeout }

// Level returns the parsed LOG_LEVEL, defaulting to info
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ExternalWalletList returns the wallets from the comma-separated config, upper-cased.
func (c *Config) ExternalWalletList() []string {
	if c == nil || c.ExternalWallets == "" {
		return nil
	}
	parts := strings.Split(c.ExternalWallets, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}

// OAuthClientIDs maps provider names to their configured client ids. Providers
// without a client id are left out.
func (c *Config) OAuthClientIDs() map[string]string {
	ids := map[string]string{}
	for provider, id := range map[string]string{
		"google": c.OAuthGoogleClientID,
		"apple":  c.OAuthAppleClientID,
		"github": c.OAuthGitHubClientID,
	} {
		if id != "" {
			ids[provider] = id
		}
	}
	return ids
}

// OAuthProviders returns the providers that can be offered to the user, in display order.
func (c *Config) OAuthProviders() []string {
	ids := c.OAuthClientIDs()
	var out []string
	for _, p := range []string{"google", "apple", "github"} {
		if _, ok := ids[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ClientConfig returns the wallet client configuration
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Env:            c.env,
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		Timeout:        c.timeout,
		OAuthClientIDs: c.OAuthClientIDs(),
	}
}

// Warnings reports settings that still hold sample values. None of them stop
// the app; the wallet client falls back when the API key is unusable.
func (c *Config) Warnings() []string {
	var w []string
	if c.APIKey == "" || c.APIKey == client.PlaceholderAPIKey {
		w = append(w, "PARA_API_KEY is not set; using the fallback wallet backend")
	}
	for _, wallet := range c.ExternalWalletList() {
		if wallet == "WALLETCONNECT" && c.WalletConnectProjectID == "" {
			w = append(w, "WALLETCONNECT_PROJECT_ID is not set; WalletConnect will not work")
			break
		}
	}
	if c.AppName == "" || c.AppName == DefaultAppName {
		w = append(w, "APP_NAME is not set; using the default app name")
	}
	return w
}
