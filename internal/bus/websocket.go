package bus

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Envelope is the wire frame shared with clients.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// knownEvents are the high-level operations with a dedicated wire mapping.
// Anything else passes through as a raw transport emit.
var knownEvents = map[string]string{
	"host-join":     "host-join",
	"create-game":   "create-game",
	"player-join":   "player-join",
	"start-game":    "start-game",
	"submit-answer": "submit-answer",
	"next-question": "next-question",
	"leave-game":    "leave-game",
	"use-power-up":  "use-power-up",
}

// WS adapts one websocket connection to the Bus contract. Outbound emissions
// are serialized through a single writer goroutine (gorilla connections do
// not allow concurrent writers); inbound frames are dispatched from ReadLoop
// to registered handlers. Listener bookkeeping is local so the whole set can
// be dropped on Disconnect.
type WS struct {
	conn *websocket.Conn

	mu       sync.Mutex
	handlers map[string][]localHandler
	nextSub  Subscription
	closed   bool

	send chan Envelope
	done chan struct{}
}

// NewWS wraps an upgraded connection. The caller runs ReadLoop, usually on
// the request goroutine.
func NewWS(conn *websocket.Conn) *WS {
	b := &WS{
		conn:     conn,
		handlers: make(map[string][]localHandler),
		send:     make(chan Envelope, 32),
		done:     make(chan struct{}),
	}
	go b.writeLoop()
	return b
}

func (b *WS) writeLoop() {
	for {
		select {
		case env := <-b.send:
			if err := b.conn.WriteJSON(env); err != nil {
				log.Printf("ws write error: %v", err)
				b.Disconnect()
				return
			}
		case <-b.done:
			return
		}
	}
}

// ReadLoop pumps inbound frames into handlers until the connection drops.
// It returns after Disconnect or a read error.
func (b *WS) ReadLoop() {
	for {
		var env Envelope
		if err := b.conn.ReadJSON(&env); err != nil {
			b.Disconnect()
			return
		}
		b.dispatch(env)
	}
}

func (b *WS) dispatch(env Envelope) {
	event := env.Type
	if mapped, ok := knownEvents[event]; ok {
		event = mapped
	}
	b.mu.Lock()
	targets := make([]localHandler, len(b.handlers[event]))
	copy(targets, b.handlers[event])
	b.mu.Unlock()
	for _, h := range targets {
		invokeGuarded(event, h.fn, env.Payload)
	}
}

func (b *WS) Emit(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("ws emit %q: marshal failed: %v", event, err)
		return
	}
	if mapped, ok := knownEvents[event]; ok {
		event = mapped
	}
	select {
	case b.send <- Envelope{Type: event, Payload: raw}:
	case <-b.done:
	}
}

func (b *WS) On(event string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	b.handlers[event] = append(b.handlers[event], localHandler{sub: b.nextSub, fn: h})
	return b.nextSub
}

func (b *WS) Off(event string, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i, h := range list {
		if h.sub == sub {
			b.handlers[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (b *WS) RemoveAllListeners(events ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(events) == 0 {
		b.handlers = make(map[string][]localHandler)
		return
	}
	for _, event := range events {
		delete(b.handlers, event)
	}
}

func (b *WS) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *WS) Mode() Mode { return ModeNetworked }

func (b *WS) Disconnect() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.handlers = make(map[string][]localHandler)
	b.mu.Unlock()
	close(b.done)
	_ = b.conn.Close()
}
