package memory

import (
	"context"
	"sync"

	"quizhub/internal/domain"
	"quizhub/internal/library"
)

// LibraryStore keeps the quiz library entirely in memory. It backs tests and
// single-process deployments that do not need postgres.
type LibraryStore struct {
	mu           sync.RWMutex
	folders      map[string]library.Folder
	quizzes      map[string]storedQuiz
	folderHashes map[string][]byte
	quizHashes   map[string][]byte
}

type storedQuiz struct {
	meta library.QuizMeta
	quiz domain.Quiz
}

func NewLibraryStore() *LibraryStore {
	return &LibraryStore{
		folders:      make(map[string]library.Folder),
		quizzes:      make(map[string]storedQuiz),
		folderHashes: make(map[string][]byte),
		quizHashes:   make(map[string][]byte),
	}
}

func (s *LibraryStore) CreateFolder(_ context.Context, f library.Folder) error {
	s.mu.Lock()
	s.folders[f.ID] = f
	s.mu.Unlock()
	return nil
}

func (s *LibraryStore) GetFolder(_ context.Context, id string) (library.Folder, error) {
	s.mu.RLock()
	f, ok := s.folders[id]
	s.mu.RUnlock()
	if !ok {
		return library.Folder{}, domain.ErrFolderNotFound
	}
	f.Protected = len(s.folderHashes[id]) > 0
	return f, nil
}

func (s *LibraryStore) UpdateFolder(_ context.Context, f library.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[f.ID]; !ok {
		return domain.ErrFolderNotFound
	}
	s.folders[f.ID] = f
	return nil
}

func (s *LibraryStore) DeleteFolder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[id]; !ok {
		return domain.ErrFolderNotFound
	}
	delete(s.folders, id)
	delete(s.folderHashes, id)
	return nil
}

func (s *LibraryStore) ListFolders(_ context.Context) ([]library.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]library.Folder, 0, len(s.folders))
	for id, f := range s.folders {
		f.Protected = len(s.folderHashes[id]) > 0
		out = append(out, f)
	}
	return out, nil
}

func (s *LibraryStore) SaveQuiz(_ context.Context, meta library.QuizMeta, quiz domain.Quiz) error {
	s.mu.Lock()
	s.quizzes[meta.Filename] = storedQuiz{meta: meta, quiz: quiz}
	s.mu.Unlock()
	return nil
}

func (s *LibraryStore) LoadQuiz(_ context.Context, filename string) (library.QuizMeta, domain.Quiz, error) {
	s.mu.RLock()
	stored, ok := s.quizzes[filename]
	s.mu.RUnlock()
	if !ok {
		return library.QuizMeta{}, domain.Quiz{}, domain.ErrQuizNotFound
	}
	stored.meta.Protected = len(s.quizHashes[filename]) > 0
	return stored.meta, stored.quiz, nil
}

func (s *LibraryStore) DeleteQuiz(_ context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[filename]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, filename)
	delete(s.quizHashes, filename)
	return nil
}

func (s *LibraryStore) ListQuizzes(_ context.Context) ([]library.QuizMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]library.QuizMeta, 0, len(s.quizzes))
	for filename, stored := range s.quizzes {
		meta := stored.meta
		meta.Protected = len(s.quizHashes[filename]) > 0
		out = append(out, meta)
	}
	return out, nil
}

func (s *LibraryStore) SetPasswordHash(_ context.Context, itemType library.ItemType, id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch itemType {
	case library.ItemFolder:
		if _, ok := s.folders[id]; !ok {
			return domain.ErrFolderNotFound
		}
		if hash == nil {
			delete(s.folderHashes, id)
		} else {
			s.folderHashes[id] = hash
		}
	case library.ItemQuiz:
		if _, ok := s.quizzes[id]; !ok {
			return domain.ErrQuizNotFound
		}
		if hash == nil {
			delete(s.quizHashes, id)
		} else {
			s.quizHashes[id] = hash
		}
	}
	return nil
}

func (s *LibraryStore) GetPasswordHash(_ context.Context, itemType library.ItemType, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch itemType {
	case library.ItemFolder:
		if _, ok := s.folders[id]; !ok {
			return nil, domain.ErrFolderNotFound
		}
		return s.folderHashes[id], nil
	case library.ItemQuiz:
		if _, ok := s.quizzes[id]; !ok {
			return nil, domain.ErrQuizNotFound
		}
		return s.quizHashes[id], nil
	}
	return nil, nil
}
