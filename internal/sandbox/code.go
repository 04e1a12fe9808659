package sandbox

import (
	"crypto/rand"
	"log/slog"
)

const codeDigits = 6

// CodeSender delivers one-time verification codes to a contact
type CodeSender interface {
	SendCode(contact, code string) error
}

// LogCodeSender is a development CodeSender that writes codes to the log
type LogCodeSender struct {
	Logger *slog.Logger
}

func (s *LogCodeSender) SendCode(contact, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("verification code issued", "contact", contact, "code", code)
	return nil
}

// generateCode returns a numeric one-time code
func generateCode() (string, error) {
	b := make([]byte, codeDigits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, codeDigits)
	for i := range codeDigits {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}
