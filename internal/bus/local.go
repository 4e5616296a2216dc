package bus

import (
	"encoding/json"
	"log"
	"sync"
)

// Local is the in-process bus variant. Dispatch is asynchronous by default:
// emissions are queued and delivered on a single dispatch goroutine, so the
// emitter's stack always unwinds before handlers run, matching the delivery
// semantics of the networked variant. A synchronous mode exists for tests.
type Local struct {
	mu        sync.Mutex
	handlers  map[string][]localHandler
	nextSub   Subscription
	queue     chan emission
	done      chan struct{}
	sync      bool
	connected bool
}

type localHandler struct {
	sub Subscription
	fn  Handler
}

type emission struct {
	event string
	data  json.RawMessage
	// snapshot of the handler list at emit time; late registrations never
	// see an earlier emission
	targets []localHandler
}

// NewLocal returns an async local bus. Callers must Disconnect it when done.
func NewLocal() *Local {
	b := &Local{
		handlers:  make(map[string][]localHandler),
		queue:     make(chan emission, 64),
		done:      make(chan struct{}),
		connected: true,
	}
	go b.dispatchLoop()
	return b
}

// NewLocalSync returns a bus that invokes handlers inline from Emit.
// Intended for tests that want deterministic interleaving.
func NewLocalSync() *Local {
	return &Local{
		handlers:  make(map[string][]localHandler),
		sync:      true,
		connected: true,
	}
}

func (b *Local) dispatchLoop() {
	for {
		select {
		case em := <-b.queue:
			deliver(em)
		case <-b.done:
			// drain anything already queued before the disconnect
			for {
				select {
				case <-b.queue:
				default:
					return
				}
			}
		}
	}
}

func deliver(em emission) {
	for _, h := range em.targets {
		invokeGuarded(em.event, h.fn, em.data)
	}
}

// invokeGuarded isolates handler panics: one failing handler must not stop
// the others or poison the dispatch loop.
func invokeGuarded(event string, fn Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus handler panic on %q: %v", event, r)
		}
	}()
	fn(data)
}

func (b *Local) Emit(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("bus emit %q: marshal failed: %v", event, err)
		return
	}

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	targets := make([]localHandler, len(b.handlers[event]))
	copy(targets, b.handlers[event])
	b.mu.Unlock()

	em := emission{event: event, data: raw, targets: targets}
	if b.sync {
		deliver(em)
		return
	}
	select {
	case b.queue <- em:
	case <-b.done:
	}
}

func (b *Local) On(event string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	b.handlers[event] = append(b.handlers[event], localHandler{sub: b.nextSub, fn: h})
	return b.nextSub
}

func (b *Local) Off(event string, sub Subscription) {
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

func (b *Local) RemoveAllListeners(events ...string) {
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

func (b *Local) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Local) Mode() Mode { return ModeLocal }

// Disconnect stops delivery and drops all listeners. Emissions already in
// flight on the dispatch goroutine may still complete.
func (b *Local) Disconnect() {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.handlers = make(map[string][]localHandler)
	b.mu.Unlock()
	if !b.sync {
		close(b.done)
	}
}
