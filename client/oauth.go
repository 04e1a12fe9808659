package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/mobil3/walletauth"
)

// AppleEndpoint is Sign in with Apple's authorization endpoint
var AppleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://appleid.apple.com/auth/authorize",
	TokenURL:  "https://appleid.apple.com/auth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

type oauthEndpoint struct {
	endpoint oauth2.Endpoint
	scopes   []string
}

func defaultOAuthEndpoints(overrides map[string]oauth2.Endpoint) map[string]oauthEndpoint {
	out := map[string]oauthEndpoint{
		"google": {endpoint: google.Endpoint, scopes: []string{"openid", "email", "profile"}},
		"apple":  {endpoint: AppleEndpoint, scopes: []string{"name", "email"}},
		"github": {endpoint: github.Endpoint, scopes: []string{"read:user", "user:email"}},
	}
	for provider, ep := range overrides {
		e := out[provider]
		e.endpoint = ep
		out[provider] = e
	}
	return out
}

// Authorizer sends the user to authURL and returns the authorization code the
// provider redirected back with. state must match the redirect's state parameter.
type Authorizer interface {
	Authorize(ctx context.Context, authURL, state string) (code string, err error)
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, authURL, state string) (string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, authURL, state string) (string, error) {
	return f(ctx, authURL, state)
}

// authorizeOAuth runs the provider's authorization step with PKCE and returns
// what the service needs to finish the exchange.
func (b *HTTPBackend) authorizeOAuth(ctx context.Context, cred *walletauth.OAuthCredential) (*oauthRequest, error) {
	op := walletauth.OpSignUpOrLogIn
	if b.authorizer == nil {
		return nil, walletauth.NewAuthError(op, walletauth.ErrCodeBackendUnavailable,
			"OAuth sign-in is not available on this device", nil)
	}
	ep, ok := b.oauthEndpoints[cred.Provider]
	if !ok {
		return nil, walletauth.NewAuthError(op, walletauth.ErrCodeInvalidCredential,
			fmt.Sprintf("unsupported OAuth provider %q", cred.Provider), nil)
	}
	clientID := b.oauthClientIDs[cred.Provider]
	if clientID == "" {
		return nil, walletauth.NewAuthError(op, walletauth.ErrCodeInvalidCredential,
			fmt.Sprintf("no OAuth client configured for %s", cred.Provider), nil)
	}

	conf := &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    ep.endpoint,
		RedirectURL: cred.RedirectURI,
		Scopes:      ep.scopes,
	}
	state, err := generateState()
	if err != nil {
		return nil, walletauth.NewAuthError(op, walletauth.ErrCodeRejected, "failed to start OAuth sign-in", err)
	}
	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	code, err := b.authorizer.Authorize(ctx, authURL, state)
	if err != nil {
		return nil, walletauth.NewAuthError(op, walletauth.ErrCodeRejected, "OAuth sign-in was not completed", err)
	}
	return &oauthRequest{
		Provider:     cred.Provider,
		RedirectURI:  cred.RedirectURI,
		Code:         code,
		CodeVerifier: verifier,
	}, nil
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DefaultAuthorizeTimeout bounds how long LoopbackAuthorizer waits for the
// provider to redirect back
const DefaultAuthorizeTimeout = 5 * time.Minute

// LoopbackAuthorizer completes OAuth on a desktop host by listening on a loopback
// redirect URI such as http://127.0.0.1:8765/oauth/callback.
type LoopbackAuthorizer struct {
	RedirectURI string

	// Open shows authURL to the user, e.g. by launching a browser. When nil the
	// URL is logged.
	Open func(authURL string) error

	// Timeout bounds the wait for the callback; defaults to DefaultAuthorizeTimeout.
	// An abandoned browser sign-in fails with context.DeadlineExceeded.
	Timeout time.Duration

	Logger *slog.Logger
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Authorizer
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL, state string) (string, error) {
	u, err := url.Parse(a.RedirectURI)
	if err != nil || u.Scheme != "http" || u.Host == "" {
		return "", fmt.Errorf("redirect URI %q is not a loopback http URL", a.RedirectURI)
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthorizeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return "", fmt.Errorf("failed to listen for OAuth callback: %w", err)
	}

	results := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "Sign-in failed: "+e, http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("provider returned error: %s", e)})
			return
		}
		if q.Get("state") != state {
			logger.Info("oauth callback with invalid state")
			http.Error(w, "invalid oauth state", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("missing authorization code")})
			return
		}
		fmt.Fprintln(w, "Sign-in complete. You can close this window.")
		deliver(callbackResult{code: code})
	})}
	go srv.Serve(ln)
	defer srv.Close()

	if a.Open != nil {
		if err := a.Open(authURL); err != nil {
			return "", fmt.Errorf("failed to open authorization URL: %w", err)
		}
	} else {
		logger.Info("open this URL to continue sign-in", "url", authURL)
	}

	select {
	case r := <-results:
		return r.code, r.err
	case <-ctx.Done():
		logger.Info("oauth sign-in abandoned", "err", ctx.Err())
		return "", ctx.Err()
	}
}
