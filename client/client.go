package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mobil3/walletauth"
)

const (
	BetaBaseURL = "https://api.beta.getpara.com"
	ProdBaseURL = "https://api.getpara.com"

	// DefaultTimeout bounds a single backend request
	DefaultTimeout = 30 * time.Second

	// PlaceholderAPIKey is the value shipped in sample configs
	PlaceholderAPIKey = "YOUR_API_KEY"

	maxResponseBytes = 1 << 20
)

// ErrMissingAPIKey is returned by NewHTTPBackend when no usable API key is configured
var ErrMissingAPIKey = errors.New("wallet backend API key is not configured")

// HTTPBackend talks to the wallet service over its JSON API. A cookie jar keeps
// the service's session across the calls of one sign-in flow.
type HTTPBackend struct {
	mu            sync.Mutex
	env           walletauth.Environment
	baseURL       string
	httpClient    *http.Client
	baseTransport http.RoundTripper
	apiKey        string
	logger        *slog.Logger

	oauthClientIDs map[string]string
	oauthEndpoints map[string]oauthEndpoint
	authorizer     Authorizer

	initialized bool
}

// signUpRequest is the request body for the signup-or-login endpoint
type signUpRequest struct {
	Email string        `json:"email,omitempty"`
	Phone string        `json:"phone,omitempty"`
	OAuth *oauthRequest `json:"oauth,omitempty"`
}

type oauthRequest struct {
	Provider     string `json:"provider"`
	RedirectURI  string `json:"redirect_uri"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

type verifyRequest struct {
	VerificationCode string `json:"verification_code"`
}

type verifyResponse struct {
	UserID       string `json:"user_id"`
	SessionToken string `json:"session_token"`
}

type passkeyRequest struct {
	UserID       string `json:"user_id"`
	SessionToken string `json:"session_token,omitempty"`
}

type initResponse struct {
	Environment string `json:"environment"`
}

// errorResponse is the error envelope returned by the service
type errorResponse struct {
	Error     string `json:"error,omitempty"`
	ErrorDesc string `json:"error_description,omitempty"`
}

// sessionClaims are the claims read from a session token. The token is not
// verified here; the service is the only party that can.
type sessionClaims struct {
	Contact string `json:"contact,omitempty"`
	jwt.RegisteredClaims
}

// HTTPOption configures an HTTPBackend
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with API key handling.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			b.baseTransport = client.Transport
		}
		if client.Timeout > 0 {
			b.httpClient.Timeout = client.Timeout
		}
		if client.Jar != nil {
			b.httpClient.Jar = client.Jar
		}
		b.httpClient.CheckRedirect = client.CheckRedirect
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) HTTPOption {
	return func(b *HTTPBackend) {
		b.baseTransport = transport
	}
}

// WithAuthorizer sets how OAuth authorization codes are obtained. Without one,
// OAuth sign-in fails with an AuthError.
func WithAuthorizer(a Authorizer) HTTPOption {
	return func(b *HTTPBackend) {
		b.authorizer = a
	}
}

// WithBackendLogger sets the logger for the backend
func WithBackendLogger(logger *slog.Logger) HTTPOption {
	return func(b *HTTPBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewHTTPBackend creates the real backend for cfg
func NewHTTPBackend(cfg Config, opts ...HTTPOption) (*HTTPBackend, error) {
	if cfg.APIKey == "" || cfg.APIKey == PlaceholderAPIKey {
		return nil, ErrMissingAPIKey
	}
	env, err := walletauth.ParseEnvironment(string(cfg.Env))
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BetaBaseURL
		if env == walletauth.EnvProd {
			baseURL = ProdBaseURL
		}
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid wallet backend URL %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	b := &HTTPBackend{
		env:            env,
		baseURL:        strings.TrimRight(u.String(), "/"),
		httpClient:     &http.Client{Jar: jar, Timeout: cfg.timeout()},
		baseTransport:  http.DefaultTransport,
		apiKey:         cfg.APIKey,
		logger:         slog.Default(),
		oauthClientIDs: cfg.OAuthClientIDs,
		oauthEndpoints: defaultOAuthEndpoints(cfg.OAuthEndpoints),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.httpClient.Transport = &apiKeyTransport{
		Base:   b.baseTransport,
		APIKey: b.apiKey,
		Host:   u.Host,
	}

	return b, nil
}

// Name implements Backend
func (b *HTTPBackend) Name() string { return "para" }

// Environment returns the service environment the backend was built for
func (b *HTTPBackend) Environment() walletauth.Environment { return b.env }

// BaseURL returns the service URL this backend is configured for
func (b *HTTPBackend) BaseURL() string { return b.baseURL }

// Init checks the API key against the service. Once it has succeeded, later
// calls return immediately.
func (b *HTTPBackend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	var resp initResponse
	if err := b.do(ctx, walletauth.OpInit, http.MethodGet, "/v1/init", nil, &resp); err != nil {
		return err
	}
	if resp.Environment != "" && resp.Environment != string(b.env) {
		b.logger.Warn("wallet service environment differs from configuration",
			"configured", b.env, "service", resp.Environment)
	}
	b.initialized = true
	return nil
}

// SignUpOrLogIn implements walletauth.Gateway
func (b *HTTPBackend) SignUpOrLogIn(ctx context.Context, cred walletauth.Credential) (*walletauth.GatewayResponse, error) {
	req := signUpRequest{Email: cred.Email, Phone: cred.Phone}
	if cred.OAuth != nil {
		oreq, err := b.authorizeOAuth(ctx, cred.OAuth)
		if err != nil {
			return nil, err
		}
		req.OAuth = oreq
	}

	var resp walletauth.GatewayResponse
	if err := b.do(ctx, walletauth.OpSignUpOrLogIn, http.MethodPost, "/v1/auth/signup-or-login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyNewAccount implements walletauth.Gateway
func (b *HTTPBackend) VerifyNewAccount(ctx context.Context, code string) (*walletauth.AccountHandle, error) {
	var resp verifyResponse
	if err := b.do(ctx, walletauth.OpVerifyNewAccount, http.MethodPost, "/v1/auth/verify",
		verifyRequest{VerificationCode: code}, &resp); err != nil {
		return nil, err
	}

	handle := &walletauth.AccountHandle{
		UserID:       resp.UserID,
		SessionToken: resp.SessionToken,
	}
	if claims := parseSessionClaims(resp.SessionToken); claims != nil {
		if handle.UserID == "" {
			handle.UserID = claims.Subject
		}
		handle.Contact = claims.Contact
		if claims.ExpiresAt != nil {
			handle.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if handle.UserID == "" {
		return nil, walletauth.NewAuthError(walletauth.OpVerifyNewAccount, walletauth.ErrCodeRejected,
			"invalid response from server: missing user id", nil)
	}
	return handle, nil
}

// RegisterPasskey implements walletauth.Gateway
func (b *HTTPBackend) RegisterPasskey(ctx context.Context, handle *walletauth.AccountHandle) error {
	if handle == nil || handle.UserID == "" {
		return walletauth.NewAuthError(walletauth.OpRegisterPasskey, walletauth.ErrCodeInvalidCredential,
			"no verified account to register a passkey for", nil)
	}
	return b.do(ctx, walletauth.OpRegisterPasskey, http.MethodPost, "/v1/auth/passkeys",
		passkeyRequest{UserID: handle.UserID, SessionToken: handle.SessionToken}, nil)
}

// LoginWithPasskey implements walletauth.Gateway
func (b *HTTPBackend) LoginWithPasskey(ctx context.Context) (*walletauth.GatewayResponse, error) {
	var resp walletauth.GatewayResponse
	if err := b.do(ctx, walletauth.OpLoginWithPasskey, http.MethodPost, "/v1/auth/passkeys/login", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one JSON request and decodes the response into out
func (b *HTTPBackend) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return walletauth.NewAuthError(op, walletauth.ErrCodeInvalidCredential, "failed to encode request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return walletauth.NewAuthError(op, walletauth.ErrCodeBackendUnavailable, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return walletauth.NewAuthError(op, walletauth.ErrCodeBackendUnavailable, "failed to connect to the wallet service", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return walletauth.NewAuthError(op, walletauth.ErrCodeBackendUnavailable, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return walletauth.NewAuthError(op, walletauth.ErrCodeRejected, "invalid response from server", err)
		}
	}
	return nil
}

func statusError(op string, status int, body []byte) *walletauth.AuthError {
	var e errorResponse
	_ = json.Unmarshal(body, &e)

	code := e.Error
	if code == "" {
		code = walletauth.ErrCodeRejected
		if status >= 500 || status == http.StatusTooManyRequests {
			code = walletauth.ErrCodeBackendUnavailable
		}
	}

	msg := e.ErrorDesc
	if msg == "" {
		msg = e.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed: HTTP %d", status)
	}
	return walletauth.NewAuthError(op, code, msg, fmt.Errorf("HTTP %d", status))
}

// parseSessionClaims reads claims from a JWT session token without verifying it.
// Returns nil for opaque (non-JWT) tokens.
func parseSessionClaims(token string) *sessionClaims {
	if token == "" {
		return nil
	}
	claims := &sessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}
