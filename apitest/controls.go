package apitest

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AddUser creates an account and returns its id.
func (s *Server) AddUser(email, password string) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.accounts[strings.ToLower(email)] = &account{
		user:     User{ID: id, Email: email},
		password: password,
	}
	s.mu.Unlock()
	return id
}

// Accept registers an opaque token as a valid session for userID.
func (s *Server) Accept(token, userID string) {
	s.mu.Lock()
	s.issued[token] = userID
	s.active[token] = true
	s.mu.Unlock()
}

// NextRefreshTokens queues tokens to be returned, in order, by the next refresh calls
// instead of freshly signed ones.
func (s *Server) NextRefreshTokens(tokens ...string) {
	s.mu.Lock()
	s.nextRefresh = append(s.nextRefresh, tokens...)
	s.mu.Unlock()
}

// ExpireAll makes every token issued so far fail with 401 on protected routes. The
// tokens stay valid for /refresh.
func (s *Server) ExpireAll() {
	s.mu.Lock()
	s.active = make(map[string]bool)
	s.mu.Unlock()
}

// FailRefresh makes /refresh answer 401 while on is true.
func (s *Server) FailRefresh(on bool) {
	s.mu.Lock()
	s.failRefresh = on
	s.mu.Unlock()
}

// RejectAfterRefresh makes protected routes answer 401 even for freshly refreshed tokens.
func (s *Server) RejectAfterRefresh(on bool) {
	s.mu.Lock()
	s.rejectAll = on
	s.mu.Unlock()
}

// SetRefreshDelay holds every /refresh response for d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// RefreshCalls reports how many requests reached /refresh.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// Hits reports how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// LastAuthorization returns the Authorization header of the latest request to path.
func (s *Server) LastAuthorization(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth[path]
}

// IsActive reports whether token is currently accepted by protected routes.
func (s *Server) IsActive(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[token] && !s.rejectAll
}
