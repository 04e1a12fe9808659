// Package sandbox is a local stand-in for the wallet service. It speaks the same
// JSON API as the hosted service so the HTTP backend can be exercised end to end.
// Everything is kept in memory.
package sandbox

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/mobil3/walletauth"
	"github.com/mobil3/walletauth/client"
)

// Session keys
const (
	keyPendingContact = "pending_contact"
	keyPendingType    = "pending_type"
	keyCodeHash       = "code_hash"
	keyCodeExpires    = "code_expires"
	keyCodeAttempts   = "code_attempts"
	keyLoginContact   = "login_contact"
)

const (
	DefaultCodeExpiry    = 10 * time.Minute
	DefaultSessionExpiry = 24 * time.Hour
	MaxCodeAttempts      = 5
)

// Server implements the wallet service API
type Server struct {
	Session *scs.SessionManager
	Store   AccountStore
	Sender  CodeSender
	Logger  *slog.Logger

	// APIKey is required in the X-API-Key header. When empty any non-empty key is accepted.
	APIKey string
	Env    walletauth.Environment

	JWTSecretKey string
	JWTIssuer    string

	CodeExpiry    time.Duration
	SessionExpiry time.Duration

	router *mux.Router
}

// NewServer returns a server with in-memory stores and a logging code sender
func NewServer(jwtSecret string) *Server {
	return (&Server{JWTSecretKey: jwtSecret}).EnsureDefaults()
}

func (s *Server) EnsureDefaults() *Server {
	if s.Session == nil {
		s.Session = scs.New()
		s.Session.Cookie.Name = "sandbox_session"
		s.Session.Lifetime = time.Hour
	}
	if s.Store == nil {
		s.Store = NewMemoryAccountStore()
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Sender == nil {
		s.Sender = &LogCodeSender{Logger: s.Logger}
	}
	if s.Env == "" {
		s.Env = walletauth.EnvBeta
	}
	if s.JWTSecretKey == "" {
		s.JWTSecretKey = "SandboxJWTSecretKey123456"
	}
	if s.JWTIssuer == "" {
		s.JWTIssuer = "walletauth-sandbox"
	}
	if s.CodeExpiry <= 0 {
		s.CodeExpiry = DefaultCodeExpiry
	}
	if s.SessionExpiry <= 0 {
		s.SessionExpiry = DefaultSessionExpiry
	}
	return s
}

// Handler returns the routed API wrapped with API key checks and session loading
func (s *Server) Handler() http.Handler {
	s.EnsureDefaults()
	if s.router == nil {
		r := mux.NewRouter()
		r.Use(s.requireAPIKey)
		v1 := r.PathPrefix("/v1").Subrouter()
		v1.HandleFunc("/init", s.handleInit).Methods(http.MethodGet)
		v1.HandleFunc("/auth/signup-or-login", s.handleSignUpOrLogIn).Methods(http.MethodPost)
		v1.HandleFunc("/auth/verify", s.handleVerify).Methods(http.MethodPost)
		v1.HandleFunc("/auth/passkeys", s.handleRegisterPasskey).Methods(http.MethodPost)
		v1.HandleFunc("/auth/passkeys/login", s.handlePasskeyLogin).Methods(http.MethodPost)
		r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.errorResponse(w, "not_found", "Unknown endpoint", http.StatusNotFound)
		})
		r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.errorResponse(w, "invalid_request", "Method not allowed", http.StatusMethodNotAllowed)
		})
		s.router = r
	}
	return s.Session.LoadAndSave(s.router)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(client.APIKeyHeader))
		if key == "" || (s.APIKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.APIKey)) != 1) {
			s.errorResponse(w, "invalid_api_key", "Missing or invalid API key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type signUpRequest struct {
	Email string        `json:"email"`
	Phone string        `json:"phone"`
	OAuth *oauthRequest `json:"oauth"`
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

type passkeyRequest struct {
	UserID       string `json:"user_id"`
	SessionToken string `json:"session_token"`
}

type stageResponse struct {
	Stage        walletauth.ResponseStage `json:"stage"`
	SessionToken string                   `json:"session_token,omitempty"`
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"environment": string(s.Env)})
}

func (s *Server) handleSignUpOrLogIn(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return
	}

	cred := walletauth.Credential{
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Phone: strings.TrimSpace(req.Phone),
	}
	if req.OAuth != nil {
		cred.OAuth = &walletauth.OAuthCredential{Provider: req.OAuth.Provider, RedirectURI: req.OAuth.RedirectURI}
	}
	if err := cred.Validate(); err != nil {
		s.errorResponse(w, walletauth.ErrCodeInvalidCredential, err.Error(), http.StatusBadRequest)
		return
	}

	if req.OAuth != nil {
		s.oauthSignIn(w, r, req.OAuth)
		return
	}

	method := cred.Method()
	contact := cred.Email
	if method == walletauth.MethodPhone {
		contact = cred.Phone
	}

	// An account with a passkey logs in; anyone else proves the contact first.
	if acct, err := s.Store.GetAccount(contact); err == nil && acct.Passkey {
		s.Session.Put(r.Context(), keyLoginContact, contact)
		s.Logger.Info("sandbox login started", "contact", contact)
		s.jsonResponse(w, http.StatusOK, stageResponse{Stage: walletauth.ResponseLogin})
		return
	}

	if err := s.issueCode(r, string(method), contact); err != nil {
		s.Logger.Error("failed to issue verification code", "contact", contact, "err", err)
		s.errorResponse(w, "server_error", "Could not send verification code", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, http.StatusOK, stageResponse{Stage: walletauth.ResponseVerify})
}

func (s *Server) oauthSignIn(w http.ResponseWriter, r *http.Request, req *oauthRequest) {
	if req.Code == "" || req.CodeVerifier == "" {
		s.errorResponse(w, "invalid_grant", "Missing authorization code or verifier", http.StatusBadRequest)
		return
	}
	acct, created, err := s.Store.EnsureAccount(string(walletauth.MethodOAuth), req.Provider+":"+req.Code)
	if err != nil {
		s.errorResponse(w, "server_error", err.Error(), http.StatusInternalServerError)
		return
	}
	token, err := s.createSessionToken(acct)
	if err != nil {
		s.errorResponse(w, "server_error", "Failed to create session", http.StatusInternalServerError)
		return
	}
	s.Logger.Info("sandbox oauth sign-in", "provider", req.Provider, "user_id", acct.ID, "created", created)
	s.jsonResponse(w, http.StatusOK, stageResponse{Stage: walletauth.ResponseSuccess, SessionToken: token})
}

func (s *Server) issueCode(r *http.Request, accountType, contact string) error {
	code, err := generateCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}
	if err := s.Sender.SendCode(contact, code); err != nil {
		return err
	}

	ctx := r.Context()
	s.Session.Put(ctx, keyPendingContact, contact)
	s.Session.Put(ctx, keyPendingType, accountType)
	s.Session.Put(ctx, keyCodeHash, string(hash))
	s.Session.Put(ctx, keyCodeExpires, time.Now().Add(s.CodeExpiry).Unix())
	s.Session.Put(ctx, keyCodeAttempts, 0)
	return nil
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	contact := s.Session.GetString(ctx, keyPendingContact)
	hash := s.Session.GetString(ctx, keyCodeHash)
	if contact == "" || hash == "" {
		s.errorResponse(w, "no_pending_signup", "Start sign up before entering a code", http.StatusBadRequest)
		return
	}
	if time.Now().Unix() > s.Session.GetInt64(ctx, keyCodeExpires) {
		s.clearPending(r)
		s.errorResponse(w, walletauth.ErrCodeInvalidCode, "Verification code has expired", http.StatusBadRequest)
		return
	}
	attempts := s.Session.GetInt(ctx, keyCodeAttempts)
	if attempts >= MaxCodeAttempts {
		s.clearPending(r)
		s.errorResponse(w, walletauth.ErrCodeInvalidCode, "Too many attempts; request a new code", http.StatusTooManyRequests)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(req.VerificationCode))); err != nil {
		s.Session.Put(ctx, keyCodeAttempts, attempts+1)
		s.errorResponse(w, walletauth.ErrCodeInvalidCode, "Invalid verification code", http.StatusBadRequest)
		return
	}

	acct, _, err := s.Store.EnsureAccount(s.Session.GetString(ctx, keyPendingType), contact)
	if err != nil {
		s.errorResponse(w, "server_error", err.Error(), http.StatusInternalServerError)
		return
	}
	token, err := s.createSessionToken(acct)
	if err != nil {
		s.errorResponse(w, "server_error", "Failed to create session", http.StatusInternalServerError)
		return
	}
	s.clearPending(r)
	if err := s.Session.RenewToken(ctx); err != nil {
		s.Logger.Warn("failed to renew session token", "err", err)
	}

	s.Logger.Info("sandbox account verified", "user_id", acct.ID, "contact", contact)
	s.jsonResponse(w, http.StatusOK, map[string]string{"user_id": acct.ID, "session_token": token})
}

func (s *Server) clearPending(r *http.Request) {
	ctx := r.Context()
	for _, k := range []string{keyPendingContact, keyPendingType, keyCodeHash, keyCodeExpires, keyCodeAttempts} {
		s.Session.Remove(ctx, k)
	}
}

func (s *Server) handleRegisterPasskey(w http.ResponseWriter, r *http.Request) {
	var req passkeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return
	}
	userID, err := s.validateSessionToken(req.SessionToken)
	if err != nil || userID != req.UserID {
		s.errorResponse(w, "invalid_token", "Session token is invalid or expired", http.StatusUnauthorized)
		return
	}
	if err := s.Store.MarkPasskey(userID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.errorResponse(w, "invalid_token", "Unknown account", http.StatusUnauthorized)
			return
		}
		s.errorResponse(w, "server_error", err.Error(), http.StatusInternalServerError)
		return
	}
	s.Logger.Info("sandbox passkey registered", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePasskeyLogin(w http.ResponseWriter, r *http.Request) {
	contact := s.Session.GetString(r.Context(), keyLoginContact)
	if contact == "" {
		s.errorResponse(w, "no_pending_login", "Start log in before using a passkey", http.StatusBadRequest)
		return
	}
	acct, err := s.Store.GetAccount(contact)
	if err != nil || !acct.Passkey {
		s.errorResponse(w, "no_passkey", "No passkey is registered for this account", http.StatusUnauthorized)
		return
	}
	token, err := s.createSessionToken(acct)
	if err != nil {
		s.errorResponse(w, "server_error", "Failed to create session", http.StatusInternalServerError)
		return
	}
	s.Session.Remove(r.Context(), keyLoginContact)
	s.Logger.Info("sandbox passkey login", "user_id", acct.ID)
	s.jsonResponse(w, http.StatusOK, stageResponse{Stage: walletauth.ResponseSuccess, SessionToken: token})
}

// createSessionToken creates a signed JWT for the account
func (s *Server) createSessionToken(acct *Account) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     acct.ID,
		"contact": acct.Contact,
		"iss":     s.JWTIssuer,
		"iat":     now.Unix(),
		"exp":     now.Add(s.SessionExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.JWTSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// validateSessionToken checks a token issued by createSessionToken and returns its subject
func (s *Server) validateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.JWTSecretKey), nil
	}, jwt.WithIssuer(s.JWTIssuer))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("missing subject")
	}
	return sub, nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) errorResponse(w http.ResponseWriter, errorCode, description string, statusCode int) {
	s.jsonResponse(w, statusCode, errorBody{Error: errorCode, ErrorDescription: description})
}
