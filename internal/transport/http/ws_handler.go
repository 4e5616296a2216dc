package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizhub/internal/bus"
	"quizhub/internal/domain"
	"quizhub/internal/service"
	"quizhub/internal/session"
)

// WSHandler upgrades connections to the game websocket. A connection takes
// its role from the first meaningful frame: create-game makes it the host
// of a new game, player-join attaches it to an existing one.
type WSHandler struct {
	service  *service.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(svc *service.GameService) *WSHandler {
	return &WSHandler{
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type createGamePayload struct {
	QuizFilename string `json:"quizFilename"`
}

type playerJoinPayload struct {
	Pin        string `json:"pin"`
	PlayerName string `json:"playerName"`
}

type startPracticePayload struct {
	QuizFilename string `json:"quizFilename"`
	PlayerName   string `json:"playerName"`
}

type submitAnswerPayload struct {
	Answer json.RawMessage `json:"answer"`
}

type powerUpPayload struct {
	Type string `json:"type"`
}

type gameCreatedPayload struct {
	Pin   string `json:"pin"`
	Title string `json:"title"`
}

type joinedPayload struct {
	Pin        string `json:"pin"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wsClient holds the per-connection role state. Handlers run on the bus
// dispatch path, so role assignment is guarded.
type wsClient struct {
	svc *service.GameService
	bus *bus.WS

	mu       sync.Mutex
	isHost   bool
	isPlayer bool
	pin      string
	playerID string
	practice *session.Practice
}

// ServeWS upgrades the request and pumps frames until the peer goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	b := bus.NewWS(conn)
	client := &wsClient{svc: h.service, bus: b}
	client.register(r.Context())

	b.ReadLoop()
	client.cleanup()
}

func (c *wsClient) register(ctx context.Context) {
	c.bus.On("create-game", func(data json.RawMessage) { c.onCreateGame(ctx, data) })
	c.bus.On("host-join", func(data json.RawMessage) { c.onCreateGame(ctx, data) })
	c.bus.On("player-join", func(data json.RawMessage) { c.onPlayerJoin(data) })
	c.bus.On("start-practice", func(data json.RawMessage) { c.onStartPractice(ctx, data) })
	c.bus.On("start-game", func(json.RawMessage) { c.hostAction(c.svc.StartGame) })
	c.bus.On("next-question", func(json.RawMessage) { c.hostAction(c.svc.NextQuestion) })
	c.bus.On("submit-answer", func(data json.RawMessage) { c.onSubmitAnswer(data) })
	c.bus.On("use-power-up", func(data json.RawMessage) { c.onUsePowerUp(data) })
	c.bus.On("leave-game", func(json.RawMessage) { c.onLeave() })
}

func (c *wsClient) onCreateGame(ctx context.Context, data json.RawMessage) {
	var payload createGamePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.QuizFilename == "" {
		c.fail("create-game requires quizFilename")
		return
	}

	c.mu.Lock()
	if c.isHost || c.isPlayer || c.practice != nil {
		c.mu.Unlock()
		c.fail("connection already has a role")
		return
	}
	c.mu.Unlock()

	pin, quiz, err := c.svc.CreateGame(ctx, payload.QuizFilename, c.bus)
	if err != nil {
		c.fail(err.Error())
		return
	}

	c.mu.Lock()
	c.isHost = true
	c.pin = pin
	c.mu.Unlock()

	c.bus.Emit("game-created", gameCreatedPayload{Pin: pin, Title: quiz.Title})
}

func (c *wsClient) onPlayerJoin(data json.RawMessage) {
	var payload playerJoinPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Pin == "" {
		c.fail("player-join requires pin and playerName")
		return
	}

	c.mu.Lock()
	if c.isHost || c.isPlayer || c.practice != nil {
		c.mu.Unlock()
		c.fail("connection already has a role")
		return
	}
	c.mu.Unlock()

	playerID := uuid.NewString()
	if err := c.svc.JoinGame(payload.Pin, playerID, payload.PlayerName, c.bus); err != nil {
		c.fail(err.Error())
		return
	}

	c.mu.Lock()
	c.isPlayer = true
	c.pin = payload.Pin
	c.playerID = playerID
	c.mu.Unlock()

	c.bus.Emit("joined", joinedPayload{Pin: payload.Pin, PlayerID: playerID, PlayerName: payload.PlayerName})
}

// practiceEvents is what a practice run forwards to the socket. The host
// scope stays local so the full question with answers never reaches the
// practicing player.
var practiceEvents = []string{
	"game-starting",
	"question-start",
	"player-result",
	"question-end",
	"game-end",
	"power-up-result",
	"practice-result",
}

func (c *wsClient) onStartPractice(ctx context.Context, data json.RawMessage) {
	var payload startPracticePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.QuizFilename == "" {
		c.fail("start-practice requires quizFilename and playerName")
		return
	}

	c.mu.Lock()
	if c.isHost || c.isPlayer || c.practice != nil {
		c.mu.Unlock()
		c.fail("connection already has a role")
		return
	}
	c.mu.Unlock()

	p, err := c.svc.StartPractice(ctx, payload.QuizFilename, payload.PlayerName)
	if err != nil {
		c.fail(err.Error())
		return
	}
	for _, event := range practiceEvents {
		event := event
		p.Bus.On(event, func(d json.RawMessage) {
			c.bus.Emit(event, d)
		})
	}

	c.mu.Lock()
	c.practice = p
	c.mu.Unlock()

	c.bus.Emit("practice-started", joinedPayload{PlayerID: session.PracticePlayerID, PlayerName: payload.PlayerName})
	if err := p.Start(); err != nil {
		c.fail(err.Error())
	}
}

func (c *wsClient) hostAction(fn func(pin string) error) {
	c.mu.Lock()
	isHost, pin := c.isHost, c.pin
	c.mu.Unlock()
	if !isHost {
		c.fail("host-only operation")
		return
	}
	if err := fn(pin); err != nil {
		c.fail(err.Error())
	}
}

func (c *wsClient) onSubmitAnswer(data json.RawMessage) {
	c.mu.Lock()
	isPlayer, pin, playerID, practice := c.isPlayer, c.pin, c.playerID, c.practice
	c.mu.Unlock()
	if !isPlayer && practice == nil {
		c.fail("player-only operation")
		return
	}

	var payload submitAnswerPayload
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Answer) == 0 {
		c.fail("submit-answer requires answer")
		return
	}
	var err error
	if practice != nil {
		err = practice.SubmitAnswer(payload.Answer)
	} else {
		err = c.svc.SubmitAnswer(pin, playerID, payload.Answer)
	}
	if err != nil {
		c.fail(err.Error())
	}
}

func (c *wsClient) onUsePowerUp(data json.RawMessage) {
	c.mu.Lock()
	isPlayer, pin, playerID, practice := c.isPlayer, c.pin, c.playerID, c.practice
	c.mu.Unlock()
	if !isPlayer && practice == nil {
		c.fail("player-only operation")
		return
	}

	var payload powerUpPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Type == "" {
		c.fail("use-power-up requires type")
		return
	}
	var err error
	if practice != nil {
		err = practice.UsePowerUp(domain.PowerUpKind(payload.Type), session.DefaultExtendSeconds)
	} else {
		err = c.svc.UsePowerUp(pin, playerID, domain.PowerUpKind(payload.Type))
	}
	if err != nil {
		c.fail(err.Error())
	}
}

func (c *wsClient) onLeave() {
	c.mu.Lock()
	isPlayer, pin, playerID, practice := c.isPlayer, c.pin, c.playerID, c.practice
	c.isPlayer = false
	c.mu.Unlock()
	switch {
	case practice != nil:
		// ends the run; the game-end handler finalizes the history record
		practice.Session.Leave(session.PracticePlayerID)
	case isPlayer:
		c.svc.LeaveGame(pin, playerID)
	}
}

// cleanup runs once the read loop ends. Host departure tears the game down;
// a player departure just removes that player.
func (c *wsClient) cleanup() {
	c.mu.Lock()
	isHost, isPlayer, pin, playerID, practice := c.isHost, c.isPlayer, c.pin, c.playerID, c.practice
	c.isHost, c.isPlayer, c.practice = false, false, nil
	c.mu.Unlock()

	switch {
	case isHost:
		c.svc.EndGame(pin)
	case isPlayer:
		c.svc.LeaveGame(pin, playerID)
	case practice != nil:
		practice.Close()
	}
}

func (c *wsClient) fail(msg string) {
	c.bus.Emit("error", errorPayload{Message: msg})
}
