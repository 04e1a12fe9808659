package sandbox

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAccountNotFound is returned when no account matches the lookup
var ErrAccountNotFound = errors.New("account not found")

// Account is a wallet account known to the sandbox
type Account struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`    // "email", "phone", "oauth"
	Contact   string    `json:"contact"` // "john@example.com", "+15551234567", "google:<code>"
	Passkey   bool      `json:"passkey"` // has a passkey been registered
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountStore manages sandbox accounts
type AccountStore interface {
	// GetAccount looks up an account by contact
	GetAccount(contact string) (*Account, error)

	// GetAccountByID looks up an account by its id
	GetAccountByID(id string) (*Account, error)

	// EnsureAccount returns the account for contact, creating it if missing
	EnsureAccount(accountType, contact string) (account *Account, created bool, err error)

	// MarkPasskey records that the account has a registered passkey
	MarkPasskey(id string) error
}

// MemoryAccountStore is an in-memory AccountStore
type MemoryAccountStore struct {
	mu        sync.RWMutex
	byContact map[string]*Account
	byID      map[string]*Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byContact: make(map[string]*Account),
		byID:      make(map[string]*Account),
	}
}

func (s *MemoryAccountStore) GetAccount(contact string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byContact[contact]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryAccountStore) GetAccountByID(id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryAccountStore) EnsureAccount(accountType, contact string) (*Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byContact[contact]; ok {
		out := *a
		return &out, false, nil
	}
	now := time.Now()
	a := &Account{
		ID:        uuid.NewString(),
		Type:      accountType,
		Contact:   contact,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byContact[contact] = a
	s.byID[a.ID] = a
	out := *a
	return &out, true, nil
}

func (s *MemoryAccountStore) MarkPasskey(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Passkey = true
	a.UpdatedAt = time.Now()
	return nil
}
