package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quizhub/internal/domain"
	"quizhub/internal/session"
)

const maxPinAttempts = 100

// SessionStore tracks live game sessions keyed by PIN.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	rnd      *rand.Rand
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ReservePin returns a 6-digit PIN not currently in use. The caller must
// Put the session under the returned PIN or the reservation is lost.
func (s *SessionStore) ReservePin(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < maxPinAttempts; i++ {
		pin := fmt.Sprintf("%06d", s.rnd.Intn(1000000))
		if _, taken := s.sessions[pin]; !taken {
			s.sessions[pin] = nil
			return pin, nil
		}
	}
	return "", fmt.Errorf("could not allocate a free pin after %d attempts", maxPinAttempts)
}

func (s *SessionStore) Put(pin string, sess *session.Session) {
	s.mu.Lock()
	s.sessions[pin] = sess
	s.mu.Unlock()
}

func (s *SessionStore) Get(pin string) (*session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[pin]
	s.mu.RUnlock()
	if !ok || sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(pin string) {
	s.mu.Lock()
	delete(s.sessions, pin)
	s.mu.Unlock()
}

// Count reports live sessions, used by the health endpoint.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess != nil {
			n++
		}
	}
	return n
}
