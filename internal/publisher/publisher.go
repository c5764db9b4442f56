// Package publisher is the reference event-facing side of the external
// distributed-objects middleware: it subscribes to every watched
// element's event stream and fans it out to WebSocket clients as
// network-visible device updates. Nothing in the core depends on this
// package.
package publisher

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/r3e-network/pool-orchestrator/internal/eventbus"
	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// Message is the wire shape delivered to every subscribed client.
type Message struct {
	Element   string    `json:"element"`
	Kind      string    `json:"kind"`
	Old       any       `json:"old,omitempty"`
	Current   any       `json:"current,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher fans out pool events to WebSocket subscribers, one connection
// per client, all clients receiving every watched element's traffic.
type Publisher struct {
	log      *logging.Component
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Message
}

// New constructs a Publisher. log may be nil.
func New(log *logging.Logger) *Publisher {
	var comp *logging.Component
	if log != nil {
		comp = log.Named("publisher")
	}
	return &Publisher{
		log:     comp,
		clients: make(map[*websocket.Conn]chan Message),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router returns the gorilla/mux router exposing the WebSocket upgrade
// endpoint at /ws.
func (p *Publisher) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", p.handleWS).Methods(http.MethodGet)
	return r
}

func (p *Publisher) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if p.log != nil {
			p.log.WithError(err).Warn("websocket upgrade failed")
		}
		return
	}

	ch := make(chan Message, 64)
	p.mu.Lock()
	p.clients[conn] = ch
	p.mu.Unlock()

	go p.writeLoop(conn, ch)
	go p.readLoop(conn)
}

func (p *Publisher) writeLoop(conn *websocket.Conn, ch chan Message) {
	for msg := range ch {
		if err := conn.WriteJSON(msg); err != nil {
			p.drop(conn)
			return
		}
	}
}

// readLoop discards client frames; a client disconnect surfaces as a read
// error, which drops the client.
func (p *Publisher) readLoop(conn *websocket.Conn) {
	defer p.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *Publisher) drop(conn *websocket.Conn) {
	p.mu.Lock()
	ch, ok := p.clients[conn]
	if ok {
		delete(p.clients, conn)
		close(ch)
	}
	p.mu.Unlock()
	_ = conn.Close()
}

// Watch attaches the publisher to an element's event stream as an
// eventbus.Listener, broadcasting every event it receives to all
// connected clients.
func (p *Publisher) Watch(e eventbus.HasListeners) {
	e.AddListener(eventbus.ListenerFunc(func(stack *eventbus.Stack) {
		p.broadcast(stack.Head())
	}))
}

func (p *Publisher) broadcast(evt eventbus.Event) {
	msg := Message{
		Kind:      string(evt.Kind),
		Old:       evt.Old,
		Current:   evt.Current,
		Timestamp: time.Now(),
	}
	if evt.Source != nil {
		msg.Element = evt.Source.ElementName()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for conn, ch := range p.clients {
		select {
		case ch <- msg:
		default:
			if p.log != nil {
				p.log.WithField("element", msg.Element).Warn("dropping slow websocket subscriber")
			}
			go p.drop(conn)
		}
	}
}

// Shutdown closes every open connection.
func (p *Publisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(p.clients))
	for c := range p.clients {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		p.drop(c)
	}
	return nil
}
