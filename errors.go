package walletauth

import (
	"errors"
	"fmt"
)

// Error codes carried by ValidationError and AuthError
const (
	ErrCodeMissingField       = "missing_field"
	ErrCodeInvalidEmail       = "invalid_email"
	ErrCodeInvalidPhone       = "invalid_phone"
	ErrCodeInvalidCredential  = "invalid_credential"
	ErrCodeInvalidCode        = "invalid_code"
	ErrCodeBackendUnavailable = "backend_unavailable"
	ErrCodeRejected           = "rejected"
)

// Gateway operation names, used in AuthError.Op and log fields
const (
	OpInit             = "init"
	OpSignUpOrLogIn    = "signUpOrLogIn"
	OpVerifyNewAccount = "verifyNewAccount"
	OpRegisterPasskey  = "registerPasskey"
	OpLoginWithPasskey = "loginWithPasskey"
)

// ValidationError is raised locally for empty or malformed input. No gateway call
// is made when one is returned.
type ValidationError struct {
	Code    string
	Message string
	Field   string
}

func NewValidationError(code, message, field string) *ValidationError {
	return &ValidationError{Code: code, Message: message, Field: field}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// AuthError is returned when the gateway rejects a call: network failure, bad
// credential, expired code, backend unavailable.
type AuthError struct {
	Op      string // gateway operation, e.g. "signUpOrLogIn"
	Code    string
	Message string
	Err     error
}

func NewAuthError(op, code, message string, err error) *AuthError {
	return &AuthError{Op: op, Code: code, Message: message, Err: err}
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AsAuthError wraps err as an AuthError for op unless it already is one
func AsAuthError(op string, err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return NewAuthError(op, ErrCodeRejected, "", err)
}

// UnexpectedResponseError is raised when the gateway answers with a stage the
// controller does not know how to handle from the current state.
type UnexpectedResponseError struct {
	Op    string
	Stage ResponseStage
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response stage %q", e.Op, string(e.Stage))
}

// PartialCompletionError is raised when the second step of a multi-step action
// fails after the first one succeeded.
type PartialCompletionError struct {
	Completed string
	Failed    string
	Err       error
}

func (e *PartialCompletionError) Error() string {
	return fmt.Sprintf("%s succeeded but %s failed: %v", e.Completed, e.Failed, e.Err)
}

func (e *PartialCompletionError) Unwrap() error { return e.Err }

// UserMessage turns any controller error into the text shown to the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var pe *PartialCompletionError
	if errors.As(err, &pe) {
		return "Your account was verified but the passkey could not be registered: " + cause(pe.Err)
	}
	var ue *UnexpectedResponseError
	if errors.As(err, &ue) {
		return "The wallet service returned an unexpected response. Please try again."
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return cause(ae)
	}
	return err.Error()
}

func cause(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		if ae.Message != "" {
			return ae.Message
		}
		if ae.Err != nil {
			return ae.Err.Error()
		}
	}
	return err.Error()
}
