package walletauth

import (
	"regexp"
	"strings"
)

// AuthMethod is how the user identified themselves
type AuthMethod string

const (
	MethodEmail AuthMethod = "email"
	MethodPhone AuthMethod = "phone"
	MethodOAuth AuthMethod = "oauth"
)

// OAuthCredential selects a third-party identity provider
type OAuthCredential struct {
	Provider    string `json:"provider"`
	RedirectURI string `json:"redirect_uri"`
}

// Credential is what SignUpOrLogIn is called with. Exactly one of Email, Phone or
// OAuth is set.
type Credential struct {
	Email string           `json:"email,omitempty"`
	Phone string           `json:"phone,omitempty"`
	OAuth *OAuthCredential `json:"oauth,omitempty"`
}

func EmailCredential(email string) Credential { return Credential{Email: email} }
func PhoneCredential(phone string) Credential { return Credential{Phone: phone} }

func OAuthCredentialFor(provider, redirectURI string) Credential {
	return Credential{OAuth: &OAuthCredential{Provider: provider, RedirectURI: redirectURI}}
}

// Method returns the auth method implied by the populated field, or "" when the
// credential is malformed.
func (c Credential) Method() AuthMethod {
	if c.Validate() != nil {
		return ""
	}
	switch {
	case c.Email != "":
		return MethodEmail
	case c.Phone != "":
		return MethodPhone
	default:
		return MethodOAuth
	}
}

// Validate checks that exactly one credential kind is present
func (c Credential) Validate() error {
	n := 0
	if c.Email != "" {
		n++
	}
	if c.Phone != "" {
		n++
	}
	if c.OAuth != nil {
		n++
		if c.OAuth.Provider == "" {
			return NewValidationError(ErrCodeMissingField, "oauth provider is required", "provider")
		}
	}
	if n != 1 {
		return NewValidationError(ErrCodeInvalidCredential, "exactly one of email, phone or oauth is required", "")
	}
	return nil
}

// InputValidator checks a single user-entered value before it is sent to the
// gateway and returns the normalized value.
type InputValidator func(method AuthMethod, value string) (string, error)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneClean = strings.NewReplacer("-", "", " ", "", "(", "", ")", "", ".", "")
)

// DefaultInputValidator trims input and applies basic shape checks for email and
// phone. Phone numbers are returned without separators. Apps with stricter
// rules can pass their own via WithInputValidator.
var DefaultInputValidator InputValidator = func(method AuthMethod, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch method {
	case MethodEmail:
		if value == "" {
			return "", NewValidationError(ErrCodeMissingField, "Please enter a valid email address", "email")
		}
		if !emailRegex.MatchString(value) {
			return "", NewValidationError(ErrCodeInvalidEmail, "Please enter a valid email address", "email")
		}
	case MethodPhone:
		if value == "" {
			return "", NewValidationError(ErrCodeMissingField, "Please enter a valid phone number", "phone")
		}
		cleaned := phoneClean.Replace(value)
		digits := strings.TrimPrefix(cleaned, "+")
		if len(digits) < 10 || strings.Trim(digits, "0123456789") != "" {
			return "", NewValidationError(ErrCodeInvalidPhone, "Please enter a valid phone number", "phone")
		}
		value = cleaned
	case MethodOAuth:
		if value == "" {
			return "", NewValidationError(ErrCodeMissingField, "Please choose a sign-in provider", "provider")
		}
		value = strings.ToLower(value)
	}
	return value, nil
}

// DetectMethod guesses whether a free-form identifier is an email or a phone number
func DetectMethod(identifier string) AuthMethod {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return MethodEmail
	}
	if len(identifier) > 0 && (identifier[0] == '+' || (identifier[0] >= '0' && identifier[0] <= '9')) {
		return MethodPhone
	}
	return ""
}
