// Package service contains the game use cases: creating hosted games,
// routing player actions into the session state machine, and practice runs.
package service

import (
	"context"
	"encoding/json"
	"sync"

	"quizhub/internal/bus"
	"quizhub/internal/domain"
	"quizhub/internal/session"
)

// SessionStore abstracts how live sessions are tracked (in-memory, Redis, etc).
type SessionStore interface {
	ReservePin(ctx context.Context) (string, error)
	Put(pin string, sess *session.Session)
	Get(pin string) (*session.Session, error)
	Delete(pin string)
	Count() int
}

// QuizRepository loads quiz documents (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, filename string) (domain.Quiz, error)
}

// GameService contains the hosted-game use cases.
type GameService struct {
	sessions SessionStore
	quizzes  QuizRepository
	history  session.HistoryStore

	mu    sync.Mutex
	rooms map[string]*room
}

func NewGameService(store SessionStore, quizzes QuizRepository, history session.HistoryStore) *GameService {
	return &GameService{
		sessions: store,
		quizzes:  quizzes,
		history:  history,
		rooms:    make(map[string]*room),
	}
}

// room fans session events out to the host and player buses.
type room struct {
	mu      sync.RWMutex
	host    bus.Bus
	players map[string]bus.Bus
}

func newRoom(host bus.Bus) *room {
	return &room{host: host, players: make(map[string]bus.Bus)}
}

func (r *room) Broadcast(event string, data any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.host.Emit(event, data)
	for _, b := range r.players {
		b.Emit(event, data)
	}
}

func (r *room) ToPlayer(playerID string, event string, data any) {
	r.mu.RLock()
	b, ok := r.players[playerID]
	r.mu.RUnlock()
	if ok {
		b.Emit(event, data)
	}
}

func (r *room) ToHost(event string, data any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.host.Emit(event, data)
}

func (r *room) addPlayer(playerID string, b bus.Bus) {
	r.mu.Lock()
	r.players[playerID] = b
	r.mu.Unlock()
}

func (r *room) removePlayer(playerID string) {
	r.mu.Lock()
	delete(r.players, playerID)
	r.mu.Unlock()
}

// CreateGame loads the quiz, allocates a PIN, and opens a lobby. The host
// bus receives everything the session addresses to the host.
func (s *GameService) CreateGame(ctx context.Context, filename string, hostBus bus.Bus) (string, domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, filename)
	if err != nil {
		return "", domain.Quiz{}, err
	}
	pin, err := s.sessions.ReservePin(ctx)
	if err != nil {
		return "", domain.Quiz{}, err
	}

	r := newRoom(hostBus)
	sess := session.New(pin, quiz, r)
	s.sessions.Put(pin, sess)

	s.mu.Lock()
	s.rooms[pin] = r
	s.mu.Unlock()

	return pin, quiz, nil
}

// JoinGame attaches a player bus to the room and registers the player in the
// lobby. On rejection the bus is detached again.
func (s *GameService) JoinGame(pin, playerID, name string, playerBus bus.Bus) error {
	sess, err := s.sessions.Get(pin)
	if err != nil {
		return err
	}
	r, err := s.room(pin)
	if err != nil {
		return err
	}

	r.addPlayer(playerID, playerBus)
	if err := sess.Join(playerID, name); err != nil {
		r.removePlayer(playerID)
		return err
	}
	return nil
}

func (s *GameService) StartGame(pin string) error {
	sess, err := s.sessions.Get(pin)
	if err != nil {
		return err
	}
	return sess.Start()
}

func (s *GameService) NextQuestion(pin string) error {
	sess, err := s.sessions.Get(pin)
	if err != nil {
		return err
	}
	return sess.NextQuestion()
}

func (s *GameService) SubmitAnswer(pin, playerID string, raw json.RawMessage) error {
	sess, err := s.sessions.Get(pin)
	if err != nil {
		return err
	}
	return sess.SubmitAnswer(playerID, raw)
}

func (s *GameService) UsePowerUp(pin, playerID string, kind domain.PowerUpKind) error {
	sess, err := s.sessions.Get(pin)
	if err != nil {
		return err
	}
	return sess.UsePowerUp(playerID, kind, session.DefaultExtendSeconds)
}

// LeaveGame detaches a player. The session decides whether the game keeps
// going; an empty playing session finishes itself.
func (s *GameService) LeaveGame(pin, playerID string) {
	if sess, err := s.sessions.Get(pin); err == nil {
		sess.Leave(playerID)
	}
	if r, err := s.room(pin); err == nil {
		r.removePlayer(playerID)
	}
}

// EndGame tears a game down, e.g. when the host disconnects.
func (s *GameService) EndGame(pin string) {
	if sess, err := s.sessions.Get(pin); err == nil {
		sess.Close()
	}
	s.sessions.Delete(pin)

	s.mu.Lock()
	delete(s.rooms, pin)
	s.mu.Unlock()
}

// ActiveGames reports live sessions, used by the health endpoint.
func (s *GameService) ActiveGames() int {
	return s.sessions.Count()
}

// StartPractice runs a quiz single-player over a local bus. The returned
// Practice owns its session; callers Close it when done.
func (s *GameService) StartPractice(ctx context.Context, filename, playerName string) (*session.Practice, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, filename)
	if err != nil {
		return nil, err
	}
	return session.NewPractice(filename, playerName, quiz, s.history)
}

func (s *GameService) room(pin string) (*room, error) {
	s.mu.Lock()
	r, ok := s.rooms[pin]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return r, nil
}
