// Package auth supplies the authentication state the sync core consumes.
//
// Login flows live outside this module. The core only asks two questions:
// is the user signed in, and what bearer token should a request carry.
package auth

import (
	"strings"
	"sync"
)

// Gate reports authentication state.
type Gate interface {
	// IsAuthenticated reports whether the user is signed in.
	IsAuthenticated() bool
	// Token returns the bearer token. ok is false when no token is available.
	Token() (token string, ok bool)
}

// Ready reports whether g is authenticated and can produce a token. A nil
// gate is never ready.
func Ready(g Gate) (string, bool) {
	if g == nil || !g.IsAuthenticated() {
		return "", false
	}
	token, ok := g.Token()
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

// Static is a Gate holding a fixed token. The zero value is signed out.
type Static struct {
	mu    sync.RWMutex
	token string
}

// NewStatic returns a gate signed in with token. An empty token means
// signed out.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// IsAuthenticated implements Gate.
func (s *Static) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token implements Gate.
func (s *Static) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the token. An empty token signs out.
func (s *Static) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
