package memory

import (
	"context"
	"sync"

	"quizhub/internal/domain"
)

// HistoryStore keeps practice best-scores in memory.
type HistoryStore struct {
	mu      sync.RWMutex
	history map[string]domain.PracticeHistory
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{history: make(map[string]domain.PracticeHistory)}
}

func (s *HistoryStore) Get(_ context.Context, key string) (domain.PracticeHistory, bool, error) {
	s.mu.RLock()
	h, ok := s.history[key]
	s.mu.RUnlock()
	return h, ok, nil
}

func (s *HistoryStore) Put(_ context.Context, history domain.PracticeHistory) error {
	s.mu.Lock()
	s.history[history.QuizKey] = history
	s.mu.Unlock()
	return nil
}
