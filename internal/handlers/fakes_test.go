package handlers_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AnshRaj112/taskverse-backend/internal/auth"
)

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*auth.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*auth.Account{}}
}

func (m *memAccounts) Create(_ context.Context, a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == a.Email {
			return auth.ErrEmailTaken
		}
	}
	a.CreatedAt = time.Now()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAccounts) ByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrAccountNotFound
}

func (m *memAccounts) ByID(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) SetPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return auth.ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *memAccounts) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return auth.ErrAccountNotFound
	}
	a.EmailVerified = true
	return nil
}

func (m *memAccounts) SaveResetToken(context.Context, string, string, time.Time) error {
	return nil
}

func (m *memAccounts) ConsumeResetToken(context.Context, string) (string, error) {
	return "", auth.ErrInvalidToken
}

type memSessions struct {
	mu     sync.Mutex
	tokens map[string]string
	n      int
}

func newMemSessions() *memSessions {
	return &memSessions{tokens: map[string]string{}}
}

func (s *memSessions) Create(_ context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	token := fmt.Sprintf("tok-%d", s.n)
	s.tokens[token] = accountID
	return token, nil
}

func (s *memSessions) Lookup(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return "", auth.ErrSessionNotFound
	}
	return id, nil
}

func (s *memSessions) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *memSessions) RevokeAll(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, id := range s.tokens {
		if id == accountID {
			delete(s.tokens, token)
		}
	}
	return nil
}
