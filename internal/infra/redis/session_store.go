package redis

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizhub/internal/domain"
	"quizhub/internal/session"
)

const maxPinAttempts = 100

// SessionStore tracks live game sessions keyed by PIN.
// Notes:
//   - It keeps a local in-memory map of sessions to reuse the in-process
//     broadcast logic; the live state machine never leaves the process.
//   - Redis is used to mark PIN liveness so a cluster of instances never
//     hands out the same PIN twice.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	rnd    *rand.Rand

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: make(map[string]*session.Session),
	}
}

// ReservePin claims a 6-digit PIN across all instances via SETNX.
func (s *SessionStore) ReservePin(ctx context.Context) (string, error) {
	for i := 0; i < maxPinAttempts; i++ {
		pin := fmt.Sprintf("%06d", s.rnd.Intn(1000000))
		ok, err := s.client.SetNX(ctx, s.key(pin), "1", s.ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
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
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(pin string) {
	s.mu.Lock()
	delete(s.sessions, pin)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(pin)).Err()
}

func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) key(pin string) string {
	return "game:pin:" + pin
}
