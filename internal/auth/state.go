package auth

import (
	"context"
	"sync"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

// State tracks who is signed in on one client connection and notifies
// listeners on every change.
type State struct {
	svc *Service

	mu        sync.Mutex
	resolved  bool
	principal *models.Principal
	err       error
	token     string
	nextID    int
	listeners map[int]func(*models.Principal, error)
}

func NewState(svc *Service) *State {
	return &State{svc: svc, listeners: make(map[int]func(*models.Principal, error))}
}

// OnAuthStateChange registers fn and, once the state is known, calls it with
// the current principal straight away.
func (s *State) OnAuthStateChange(fn func(*models.Principal, error)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	resolved, p, err := s.resolved, s.principal, s.err
	s.mu.Unlock()

	if resolved {
		fn(p, err)
	}
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SignInWithToken resolves a session token. An empty token signs out.
func (s *State) SignInWithToken(ctx context.Context, token string) (*models.Principal, error) {
	if token == "" {
		s.publish(nil, nil, "")
		return nil, nil
	}
	p, err := s.svc.PrincipalForSession(ctx, token)
	if err != nil {
		s.publish(nil, err, "")
		return nil, err
	}
	s.publish(p, nil, token)
	return p, nil
}

// SignOut revokes the connection's session, if any, and publishes a nil principal.
func (s *State) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	var err error
	if token != "" {
		err = s.svc.SignOut(ctx, token)
	}
	s.publish(nil, nil, "")
	return err
}

func (s *State) Principal() *models.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

func (s *State) publish(p *models.Principal, err error, token string) {
	s.mu.Lock()
	s.resolved = true
	s.principal = p
	s.err = err
	s.token = token
	fns := make([]func(*models.Principal, error), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(p, err)
	}
}
