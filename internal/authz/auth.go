// Package authz guards the runtime's external entry points: a
// set-membership bearer-token AuthService and a token-bucket RateLimiter.
package authz

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// devToken is seeded into every fresh AuthService so a local deployment
// works out of the box before an operator provisions real tokens.
const devToken = "dev-token-local"

// AuthService validates bearer tokens by set membership.
type AuthService struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewAuthService returns a service seeded with the default development
// token, plus any extra tokens supplied (e.g. from config).
func NewAuthService(extra ...string) *AuthService {
	s := &AuthService{tokens: make(map[string]struct{})}
	s.tokens[devToken] = struct{}{}
	for _, t := range extra {
		s.tokens[t] = struct{}{}
	}
	return s
}

// ValidateToken reports whether token is currently registered.
func (s *AuthService) ValidateToken(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

// AddToken registers token.
func (s *AuthService) AddToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = struct{}{}
}

// RemoveToken deregisters token, returning an error if it was not present.
func (s *AuthService) RemoveToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; !ok {
		return fmt.Errorf("authz: token not found")
	}
	delete(s.tokens, token)
	return nil
}

// GenerateToken mints and registers a fresh random token.
func (s *AuthService) GenerateToken() string {
	token := "token-" + uuid.NewString()
	s.AddToken(token)
	return token
}
