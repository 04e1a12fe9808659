package config

import (
	"os"
	"testing"
	"time"

	"github.com/mobil3/walletauth"
	"github.com/mobil3/walletauth/client"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment() != walletauth.EnvBeta {
		t.Errorf("Environment() = %q, want beta", cfg.Environment())
	}
	if cfg.Timeout() != client.DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", cfg.Timeout(), client.DefaultTimeout)
	}
	if cfg.OAuthRedirectURI != walletauth.DefaultRedirectURI {
		t.Errorf("OAuthRedirectURI = %q", cfg.OAuthRedirectURI)
	}
	if cfg.AppName != DefaultAppName {
		t.Errorf("AppName = %q, want %q", cfg.AppName, DefaultAppName)
	}
	if got := cfg.ExternalWalletList(); len(got) != 3 || got[0] != "METAMASK" {
		t.Errorf("ExternalWalletList() = %v", got)
	}
	if len(cfg.OAuthProviders()) != 0 {
		t.Errorf("OAuthProviders() = %v, want none", cfg.OAuthProviders())
	}
	if cfg.LogFile != "mobil3.log" {
		t.Errorf("LogFile = %q, want mobil3.log", cfg.LogFile)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("PARA_API_KEY", "live-key")
	os.Setenv("PARA_ENV", "prod")
	os.Setenv("PARA_BASE_URL", "http://localhost:8090")
	os.Setenv("HTTP_TIMEOUT", "5s")
	os.Setenv("OAUTH_GOOGLE_CLIENT_ID", "g-id")
	os.Setenv("OAUTH_GITHUB_CLIENT_ID", "gh-id")
	os.Setenv("EXTERNAL_WALLETS", " metamask , phantom,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cc := cfg.ClientConfig()
	if cc.APIKey != "live-key" {
		t.Errorf("APIKey = %q", cc.APIKey)
	}
	if cc.Env != walletauth.EnvProd {
		t.Errorf("Env = %q, want prod", cc.Env)
	}
	if cc.BaseURL != "http://localhost:8090" {
		t.Errorf("BaseURL = %q", cc.BaseURL)
	}
	if cc.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cc.Timeout)
	}
	if cc.OAuthClientIDs["google"] != "g-id" || cc.OAuthClientIDs["github"] != "gh-id" {
		t.Errorf("OAuthClientIDs = %v", cc.OAuthClientIDs)
	}
	if _, ok := cc.OAuthClientIDs["apple"]; ok {
		t.Error("apple should be absent without a client id")
	}
	if got := cfg.OAuthProviders(); len(got) != 2 || got[0] != "google" || got[1] != "github" {
		t.Errorf("OAuthProviders() = %v", got)
	}
	if got := cfg.ExternalWalletList(); len(got) != 2 || got[0] != "METAMASK" || got[1] != "PHANTOM" {
		t.Errorf("ExternalWalletList() = %v", got)
	}
}

func TestLoad_ExpoAPIKeyFallback(t *testing.T) {
	os.Clearenv()
	os.Setenv("EXPO_PUBLIC_PARA_API_KEY", "expo-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "expo-key" {
		t.Errorf("APIKey = %q, want expo-key", cfg.APIKey)
	}

	os.Setenv("PARA_API_KEY", "para-key")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "para-key" {
		t.Errorf("APIKey = %q, want para-key", cfg.APIKey)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown env", "PARA_ENV", "staging"},
		{"bad timeout", "HTTP_TIMEOUT", "soon"},
		{"negative timeout", "HTTP_TIMEOUT", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load should fail with %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{
			name: "all sample values",
			cfg:  Config{APIKey: client.PlaceholderAPIKey, AppName: DefaultAppName, ExternalWallets: "WALLETCONNECT"},
			want: 3,
		},
		{
			name: "configured",
			cfg:  Config{APIKey: "k", AppName: "Wallet", ExternalWallets: "WALLETCONNECT", WalletConnectProjectID: "p"},
			want: 0,
		},
		{
			name: "no walletconnect needed",
			cfg:  Config{APIKey: "k", AppName: "Wallet", ExternalWallets: "METAMASK"},
			want: 0,
		},
		{
			name: "missing key only",
			cfg:  Config{AppName: "Wallet"},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Warnings(); len(got) != tt.want {
				t.Errorf("Warnings() = %v, want %d warnings", got, tt.want)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]string{
		"debug": "DEBUG",
		"WARN":  "WARN",
		"":      "INFO",
		"loud":  "INFO",
	}
	for in, want := range tests {
		c := &Config{LogLevel: in}
		if got := c.Level().String(); got != want {
			t.Errorf("Level(%q) = %s, want %s", in, got, want)
		}
	}
}
