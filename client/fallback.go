package client

import (
	"context"
	"log/slog"

	"github.com/mobil3/walletauth"
)

// FallbackBackend stands in for the real backend where it cannot run. It makes
// no network calls and answers every capability with a fixed placeholder
// outcome: email and phone need verification, OAuth succeeds, passkeys succeed.
type FallbackBackend struct {
	logger *slog.Logger
}

func NewFallbackBackend(logger *slog.Logger) *FallbackBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackBackend{logger: logger}
}

func (f *FallbackBackend) Name() string { return "fallback" }

func (f *FallbackBackend) Init(ctx context.Context) error {
	f.logger.Info("fallback wallet backend initialized")
	return nil
}

func (f *FallbackBackend) SignUpOrLogIn(ctx context.Context, cred walletauth.Credential) (*walletauth.GatewayResponse, error) {
	f.logger.Info("fallback signUpOrLogIn", "method", cred.Method())
	switch {
	case cred.Email != "", cred.Phone != "":
		return &walletauth.GatewayResponse{Stage: walletauth.ResponseVerify}, nil
	case cred.OAuth != nil:
		return &walletauth.GatewayResponse{Stage: walletauth.ResponseSuccess}, nil
	}
	return &walletauth.GatewayResponse{Stage: walletauth.ResponseLogin}, nil
}

func (f *FallbackBackend) VerifyNewAccount(ctx context.Context, code string) (*walletauth.AccountHandle, error) {
	f.logger.Info("fallback verifyNewAccount")
	return &walletauth.AccountHandle{UserID: "fallback-user", SessionToken: "fallback-session"}, nil
}

func (f *FallbackBackend) RegisterPasskey(ctx context.Context, handle *walletauth.AccountHandle) error {
	var userID string
	if handle != nil {
		userID = handle.UserID
	}
	f.logger.Info("fallback registerPasskey", "user_id", userID)
	return nil
}

func (f *FallbackBackend) LoginWithPasskey(ctx context.Context) (*walletauth.GatewayResponse, error) {
	f.logger.Info("fallback loginWithPasskey")
	return &walletauth.GatewayResponse{Stage: walletauth.ResponseSuccess}, nil
}
