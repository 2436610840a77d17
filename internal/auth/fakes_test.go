package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memAccounts struct {
	mu     sync.Mutex
	byID   map[string]*Account
	resets map[string]memReset
}

type memReset struct {
	accountID string
	expires   time.Time
	used      bool
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*Account{}, resets: map[string]memReset{}}
}

func (m *memAccounts) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == a.Email {
			return ErrEmailTaken
		}
	}
	a.CreatedAt = time.Now()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAccounts) ByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *memAccounts) ByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) SetPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *memAccounts) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.EmailVerified = true
	return nil
}

func (m *memAccounts) SaveResetToken(_ context.Context, tokenID, accountID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[tokenID] = memReset{accountID: accountID, expires: expiresAt}
	return nil
}

func (m *memAccounts) ConsumeResetToken(_ context.Context, tokenID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[tokenID]
	if !ok || r.used || time.Now().After(r.expires) {
		return "", ErrInvalidToken
	}
	r.used = true
	m.resets[tokenID] = r
	return r.accountID, nil
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
		return "", ErrSessionNotFound
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

type sentMail struct {
	to, subject, body string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (c *captureMailer) Send(_ context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMail{to, subject, body})
	return nil
}

// lastToken extracts the token query parameter from the newest mail.
func (c *captureMailer) lastToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	body := c.sent[len(c.sent)-1].body
	_, token, _ := strings.Cut(body, "?token=")
	return token
}
