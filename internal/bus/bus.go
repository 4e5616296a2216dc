// Package bus is the event fabric the game session speaks over. The session
// depends only on the Bus interface; the local variant drives single-player
// practice in-process, the networked variant bridges to a websocket client.
package bus

import "encoding/json"

// Mode distinguishes the two bus variants.
type Mode string

const (
	ModeNetworked Mode = "networked"
	ModeLocal     Mode = "local"
)

// Handler consumes one event payload.
type Handler func(data json.RawMessage)

// Subscription identifies a registered handler so it can be removed.
type Subscription uint64

// Bus is the polymorphic pub/sub contract.
//
// Guarantees shared by both variants: handlers for one event fire in
// registration order, each handler sees an emission at most once, and nothing
// is delivered after Disconnect.
type Bus interface {
	Emit(event string, data any)
	On(event string, h Handler) Subscription
	Off(event string, sub Subscription)
	RemoveAllListeners(events ...string)
	IsConnected() bool
	Mode() Mode
	Disconnect()
}
