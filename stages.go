package walletauth

import (
	"context"
	"time"
)

// Stage names a point in the authentication flow
type Stage string

const (
	StageInput   Stage = "input"
	StageVerify  Stage = "verify"
	StageLogin   Stage = "login"
	StageSuccess Stage = "success"
)

// AuthStage is the controller's entire flow state. Email and Phone are mutually
// exclusive and only set in Verify and Login for the email and phone methods.
type AuthStage struct {
	Stage  Stage
	Email  string
	Phone  string
	Method AuthMethod
}

func inputStage() AuthStage { return AuthStage{Stage: StageInput} }

func contactStage(stage Stage, method AuthMethod, contact string) AuthStage {
	s := AuthStage{Stage: stage, Method: method}
	switch method {
	case MethodEmail:
		s.Email = contact
	case MethodPhone:
		s.Phone = contact
	}
	return s
}

// Contact returns whichever of Email or Phone is set
func (s AuthStage) Contact() string {
	if s.Email != "" {
		return s.Email
	}
	return s.Phone
}

// ResponseStage is the transition signal carried by a gateway response
type ResponseStage string

const (
	ResponseVerify  ResponseStage = "verify"
	ResponseLogin   ResponseStage = "login"
	ResponseSuccess ResponseStage = "success"
)

// Known reports whether s is one of verify, login or success
func (s ResponseStage) Known() bool {
	switch s {
	case ResponseVerify, ResponseLogin, ResponseSuccess:
		return true
	}
	return false
}

// GatewayResponse is returned by SignUpOrLogIn and LoginWithPasskey
type GatewayResponse struct {
	Stage ResponseStage `json:"stage"`
}

// AccountHandle identifies a freshly verified account. It is opaque to the
// controller and only passed back to RegisterPasskey.
type AccountHandle struct {
	UserID       string    `json:"user_id"`
	SessionToken string    `json:"session_token,omitempty"`
	Contact      string    `json:"contact,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Gateway is the capability surface the controller drives. Every method fails
// with *AuthError when the backend rejects the call.
type Gateway interface {
	Init(ctx context.Context) error
	SignUpOrLogIn(ctx context.Context, cred Credential) (*GatewayResponse, error)
	VerifyNewAccount(ctx context.Context, code string) (*AccountHandle, error)
	RegisterPasskey(ctx context.Context, handle *AccountHandle) error
	LoginWithPasskey(ctx context.Context) (*GatewayResponse, error)
}
