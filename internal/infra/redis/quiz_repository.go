package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizhub/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, filename string) (domain.Quiz, error)
}

// QuizRepository caches whole quiz documents in Redis as JSON and falls back
// to a loader on cache miss. Documents are stored as: SET quiz:{filename} {json}
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, filename string) (domain.Quiz, error) {
	key := r.quizKey(filename)

	raw, err := r.client.Get(ctx, key).Result()
	if err == nil && raw != "" {
		var quiz domain.Quiz
		if err := json.Unmarshal([]byte(raw), &quiz); err == nil {
			return quiz, nil
		}
		// Corrupt cache entry; drop it and reload.
		_ = r.client.Del(ctx, key).Err()
	}

	result, err, _ := r.sf.Do(filename, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := r.client.Get(ctx, key).Result()
		if err == nil && raw != "" {
			var quiz domain.Quiz
			if err := json.Unmarshal([]byte(raw), &quiz); err == nil {
				return quiz, nil
			}
		}

		quiz, err := r.loader.LoadQuiz(ctx, filename)
		if err != nil {
			return domain.Quiz{}, err
		}

		if data, err := json.Marshal(quiz); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops a cached document, e.g. after a save.
func (r *QuizRepository) Invalidate(ctx context.Context, filename string) error {
	return r.client.Del(ctx, r.quizKey(filename)).Err()
}

func (r *QuizRepository) quizKey(filename string) string {
	return "quiz:" + filename
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
