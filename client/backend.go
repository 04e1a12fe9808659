// Package client provides the wallet client gateway: a lazily built handle to the
// wallet/authentication backend that falls back to a local stand-in when the real
// backend cannot run on this host.
package client

import (
	"runtime"
	"time"

	"golang.org/x/oauth2"

	"github.com/mobil3/walletauth"
)

// Backend is a concrete implementation of the gateway capabilities
type Backend interface {
	walletauth.Gateway

	// Name identifies the variant, e.g. "para" or "fallback"
	Name() string
}

// Platform is the kind of host the app is running on
type Platform string

const (
	PlatformNative Platform = "native"
	PlatformWeb    Platform = "web"
)

// Detector reports the host platform. It is called once, on first use of a Gateway.
type Detector func() Platform

// DetectPlatform treats browser-style targets (js/wasm, wasip1) as web and
// everything else as native.
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "js", "wasip1":
		return PlatformWeb
	}
	return PlatformNative
}

// BackendFactory builds the real backend. Returning an error makes the Gateway use
// the fallback instead.
type BackendFactory func(cfg Config) (Backend, error)

// Config holds what is needed to construct the real backend. It is opaque to the
// flow controller.
type Config struct {
	Env    walletauth.Environment
	APIKey string

	// BaseURL overrides the URL derived from Env
	BaseURL string

	// Timeout for each backend request; defaults to DefaultTimeout
	Timeout time.Duration

	// OAuthClientIDs maps provider name ("google", "apple", "github") to client id
	OAuthClientIDs map[string]string

	// OAuthEndpoints overrides the authorization endpoint for a provider
	OAuthEndpoints map[string]oauth2.Endpoint
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
