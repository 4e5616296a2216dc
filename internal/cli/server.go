package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizhub/internal/ai"
	"quizhub/internal/config"
	"quizhub/internal/domain"
	"quizhub/internal/infra/memory"
	pgstore "quizhub/internal/infra/postgres"
	redisinfra "quizhub/internal/infra/redis"
	"quizhub/internal/library"
	"quizhub/internal/service"
	transport "quizhub/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Library persistence: postgres when configured, in-memory otherwise.
	var libStore library.Store = memory.NewLibraryStore()
	if pool != nil {
		libStore = pgstore.NewLibraryStore(pool)
	}

	var tokens library.TokenStore = memory.NewTokenStore()
	attempts := cfg.Library.UnlockAttempts
	if attempts <= 0 {
		attempts = 5
	}
	window := config.TTLDuration(cfg.Library.UnlockWindow, time.Minute)
	var limiter library.RateLimiter = memory.NewRateLimiter(attempts, window)
	if redisClient != nil {
		tokens = redisinfra.NewTokenStore(redisClient)
		limiter = redisinfra.NewRateLimiter(redisClient, attempts, window)
	}
	tokenTTL := config.TTLDuration(cfg.Library.TokenTTL, library.DefaultTokenTTL)
	libService := library.NewService(libStore, tokens, limiter, tokenTTL)

	// Game sessions read quiz documents through a TTL cache over the library.
	loader := &libraryQuizLoader{store: libStore}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo service.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessions service.SessionStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	gameService := service.NewGameService(sessions, quizRepo, memory.NewHistoryStore())

	providers, defaultProvider := buildProviders(cfg)

	wsHandler := transport.NewWSHandler(gameService)
	apiHandler := transport.NewAPIHandler(libService, gameService, providers, defaultProvider)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizhub on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// libraryQuizLoader adapts the library store to the game-side loader shape.
type libraryQuizLoader struct {
	store library.Store
}

func (l *libraryQuizLoader) LoadQuiz(ctx context.Context, filename string) (domain.Quiz, error) {
	_, quiz, err := l.store.LoadQuiz(ctx, filename)
	return quiz, err
}

func buildProviders(cfg config.Config) (map[string]ai.Provider, string) {
	providers := make(map[string]ai.Provider)

	ollamaURL := cfg.AI.Ollama.URL
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	providers["ollama"] = ai.NewOllama(ollamaURL, cfg.AI.Ollama.Model)

	if cfg.AI.Anthropic.APIKey != "" {
		providers["anthropic"] = ai.NewAnthropic(cfg.AI.Anthropic.URL, cfg.AI.Anthropic.APIKey, cfg.AI.Anthropic.Model)
	}
	if cfg.AI.OpenAI.APIKey != "" {
		providers["openai"] = ai.NewOpenAI(cfg.AI.OpenAI.URL, cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.Model)
	}
	if cfg.AI.Gemini.APIKey != "" {
		providers["gemini"] = ai.NewGemini(cfg.AI.Gemini.URL, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model)
	}

	defaultProvider := cfg.AI.Default
	if _, ok := providers[defaultProvider]; !ok {
		defaultProvider = "ollama"
	}
	return providers, defaultProvider
}
