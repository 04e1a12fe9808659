package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mobil3/walletauth"
)

// freeRedirectURI returns a loopback callback URL on a port that was free a
// moment ago
func freeRedirectURI(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "http://" + addr + "/oauth/callback"
}

func TestLoopbackAuthorizer_ReturnsCode(t *testing.T) {
	redirect := freeRedirectURI(t)
	var opened string
	a := &LoopbackAuthorizer{
		RedirectURI: redirect,
		Open: func(authURL string) error {
			opened = authURL
			go http.Get(redirect + "?code=abc123&state=s1")
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := a.Authorize(ctx, "https://provider.test/authorize?state=s1", "s1")
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if code != "abc123" {
		t.Errorf("code = %q, want abc123", code)
	}
	if opened != "https://provider.test/authorize?state=s1" {
		t.Errorf("opened %q", opened)
	}
}

func TestLoopbackAuthorizer_IgnoresWrongState(t *testing.T) {
	redirect := freeRedirectURI(t)
	a := &LoopbackAuthorizer{
		RedirectURI: redirect,
		Open: func(authURL string) error {
			resp, err := http.Get(redirect + "?code=abc123&state=forged")
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				return fmt.Errorf("status = %d, want 400", resp.StatusCode)
			}
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := a.Authorize(ctx, "https://provider.test/authorize", "s1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Authorize() error = %v, want deadline exceeded", err)
	}
}

func TestLoopbackAuthorizer_ProviderError(t *testing.T) {
	redirect := freeRedirectURI(t)
	a := &LoopbackAuthorizer{
		RedirectURI: redirect,
		Open: func(authURL string) error {
			go http.Get(redirect + "?error=access_denied&state=s1")
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.Authorize(ctx, "https://provider.test/authorize", "s1"); err == nil {
		t.Fatal("expected error when provider denies access")
	}
}

func TestLoopbackAuthorizer_TimesOutWithoutCallback(t *testing.T) {
	a := &LoopbackAuthorizer{
		RedirectURI: freeRedirectURI(t),
		Open:        func(string) error { return nil },
		Timeout:     100 * time.Millisecond,
	}

	start := time.Now()
	_, err := a.Authorize(context.Background(), "https://provider.test/authorize", "s1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Authorize() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Authorize() took %v", elapsed)
	}
}

func TestChooseOAuth_AbandonedSignInReleasesController(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		writeJSON(w, http.StatusOK, map[string]string{"stage": "success"})
	}))
	defer server.Close()

	redirect := freeRedirectURI(t)
	g := NewGateway(Config{
		APIKey:         "test-key",
		BaseURL:        server.URL,
		Timeout:        200 * time.Millisecond,
		OAuthClientIDs: map[string]string{"google": "g-client"},
	},
		WithDetector(native),
		WithHTTPOptions(WithHTTPClient(server.Client()), WithAuthorizer(&LoopbackAuthorizer{
			RedirectURI: redirect,
			Open:        func(string) error { return nil },
			Timeout:     100 * time.Millisecond,
		})),
	)
	c := walletauth.NewController(g, walletauth.WithRedirectURI(redirect))

	done := make(chan struct{})
	go func() {
		c.ChooseOAuth(context.Background(), "google")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ChooseOAuth did not return after the sign-in was abandoned")
	}

	s := c.State()
	if s.Loading {
		t.Error("controller still loading")
	}
	if s.Stage != walletauth.StageInput {
		t.Errorf("stage = %q, want input", s.Stage)
	}
	var ae *walletauth.AuthError
	if !errors.As(s.Err, &ae) {
		t.Fatalf("Err = %v, want AuthError", s.Err)
	}
	if !errors.Is(s.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", s.Err)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("backend saw %d requests, want 0", n)
	}

	// the user can try again
	c.SubmitEmail(context.Background(), "a@b.co")
	if atomic.LoadInt32(&requests) == 0 {
		t.Error("SubmitEmail after abandoned OAuth did not reach the backend")
	}
}

func TestLoopbackAuthorizer_RejectsNonLoopbackURI(t *testing.T) {
	for _, uri := range []string{"", "myapp://callback", "https://example.com/cb"} {
		a := &LoopbackAuthorizer{RedirectURI: uri}
		if _, err := a.Authorize(context.Background(), "https://provider.test", "s"); err == nil {
			t.Errorf("Authorize() with %q should fail", uri)
		}
	}
}

func TestDefaultOAuthEndpoints(t *testing.T) {
	eps := defaultOAuthEndpoints(nil)
	for _, p := range []string{"google", "apple", "github"} {
		ep, ok := eps[p]
		if !ok {
			t.Errorf("missing provider %q", p)
			continue
		}
		if _, err := url.Parse(ep.endpoint.AuthURL); err != nil || ep.endpoint.AuthURL == "" {
			t.Errorf("%s: bad auth URL %q", p, ep.endpoint.AuthURL)
		}
		if len(ep.scopes) == 0 {
			t.Errorf("%s: no scopes", p)
		}
	}
}
