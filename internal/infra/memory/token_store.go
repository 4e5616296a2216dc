package memory

import (
	"context"
	"sync"
	"time"

	"quizhub/internal/library"
)

// TokenStore holds unlock tokens in memory with per-token expiry.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
	clock  func() time.Time
}

type tokenEntry struct {
	grant     library.Grant
	expiresAt time.Time
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]tokenEntry),
		clock:  time.Now,
	}
}

func (s *TokenStore) Put(_ context.Context, token string, grant library.Grant, ttl time.Duration) error {
	s.mu.Lock()
	s.tokens[token] = tokenEntry{grant: grant, expiresAt: s.clock().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *TokenStore) Get(_ context.Context, token string) (library.Grant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return library.Grant{}, false, nil
	}
	if !entry.expiresAt.After(s.clock()) {
		delete(s.tokens, token)
		return library.Grant{}, false, nil
	}
	return entry.grant, true, nil
}
