package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizhub/internal/domain"
)

type countingLoader struct {
	loads   atomic.Int64
	quizzes map[string]domain.Quiz
}

func (l *countingLoader) LoadQuiz(_ context.Context, filename string) (domain.Quiz, error) {
	l.loads.Add(1)
	if quiz, ok := l.quizzes[filename]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"math.json": {Title: "Math"},
	}}
	repo := NewQuizRepository(loader, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		quiz, err := repo.GetQuiz(ctx, "math.json")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if quiz.Title != "Math" {
			t.Fatalf("unexpected quiz %q", quiz.Title)
		}
	}
	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("expected a single load, got %d", n)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"math.json": {Title: "Math"},
	}}
	repo := NewQuizRepository(loader, time.Minute)

	now := time.Now()
	repo.clock = func() time.Time { return now }

	ctx := context.Background()
	if _, err := repo.GetQuiz(ctx, "math.json"); err != nil {
		t.Fatalf("get: %v", err)
	}
	// Past the TTL even with maximum jitter.
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(ctx, "math.json"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if n := loader.loads.Load(); n != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", n)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"math.json": {Title: "Math"},
	}}
	repo := NewQuizRepository(loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.GetQuiz(ctx, "math.json"); err != nil {
		t.Fatalf("get: %v", err)
	}
	loader.quizzes["math.json"] = domain.Quiz{Title: "Math v2"}

	// Still cached.
	quiz, _ := repo.GetQuiz(ctx, "math.json")
	if quiz.Title != "Math" {
		t.Fatalf("cache skipped: %q", quiz.Title)
	}

	repo.Invalidate("math.json")
	quiz, _ = repo.GetQuiz(ctx, "math.json")
	if quiz.Title != "Math v2" {
		t.Fatalf("invalidate did not reload: %q", quiz.Title)
	}
}

func TestQuizRepositoryMissesAreNotCached(t *testing.T) {
	loader := &countingLoader{quizzes: map[string]domain.Quiz{}}
	repo := NewQuizRepository(loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.GetQuiz(ctx, "ghost.json"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	loader.quizzes["ghost.json"] = domain.Quiz{Title: "Now Exists"}
	quiz, err := repo.GetQuiz(ctx, "ghost.json")
	if err != nil || quiz.Title != "Now Exists" {
		t.Fatalf("error was cached: %v %q", err, quiz.Title)
	}
}

func TestQuizRepositoryConcurrentAccess(t *testing.T) {
	loader := &countingLoader{quizzes: map[string]domain.Quiz{
		"math.json": {Title: "Math"},
	}}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "math.json"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	// Singleflight collapses the stampede; allow the occasional straggler that
	// missed the flight but hit the warm cache.
	if n := loader.loads.Load(); n > 2 {
		t.Fatalf("expected collapsed loads, got %d", n)
	}
}
