package sandbox

import (
	"errors"
	"testing"
)

func TestMemoryAccountStore(t *testing.T) {
	s := NewMemoryAccountStore()

	if _, err := s.GetAccount("a@b.co"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("GetAccount on empty store: %v", err)
	}

	a, created, err := s.EnsureAccount("email", "a@b.co")
	if err != nil || !created {
		t.Fatalf("EnsureAccount() = %v, %v, %v", a, created, err)
	}
	again, created, err := s.EnsureAccount("email", "a@b.co")
	if err != nil || created || again.ID != a.ID {
		t.Fatalf("second EnsureAccount() = %v, %v, %v", again, created, err)
	}

	if err := s.MarkPasskey(a.ID); err != nil {
		t.Fatalf("MarkPasskey() error = %v", err)
	}
	if a.Passkey {
		t.Error("returned account should be a copy")
	}
	got, err := s.GetAccountByID(a.ID)
	if err != nil || !got.Passkey {
		t.Fatalf("GetAccountByID() = %v, %v", got, err)
	}

	if err := s.MarkPasskey("missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("MarkPasskey(missing) = %v", err)
	}
}

func TestGenerateCode(t *testing.T) {
	for range 20 {
		code, err := generateCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != codeDigits {
			t.Fatalf("len(code) = %d", len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
	}
}
