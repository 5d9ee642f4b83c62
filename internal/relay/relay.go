// Package relay is a development implementation of the chat client's
// collaborators: the realtime relay and the REST backend it pairs with.
// State is held in memory only; it exists so the client and its tests have
// a real peer to speak to, not as a production server.
package relay

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/pairchat/pairchat/internal/logger"
	"github.com/pairchat/pairchat/pkg/channel"
	"github.com/pairchat/pairchat/pkg/protocol"
)

const tokenTTL = 24 * time.Hour

// Relay serves the websocket endpoint and the four REST endpoints.
type Relay struct {
	secret   []byte
	log      *slog.Logger
	store    *store
	upgrader websocket.Upgrader

	mu     sync.Mutex
	rooms  map[string]map[*socketClient]bool // pair digest -> members
	byUser map[string]map[*socketClient]bool // username -> sockets
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger overrides the package-level logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Relay) { r.log = log }
}

// New creates a Relay signing tokens with secret.
func New(secret string, opts ...Option) *Relay {
	r := &Relay{
		secret: []byte(secret),
		log:    logger.Log,
		store:  newStore(),
		upgrader: websocket.Upgrader{
			// Development relay: local clients only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms:  make(map[string]map[*socketClient]bool),
		byUser: make(map[string]map[*socketClient]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns the full route set.
func (r *Relay) Handler() http.Handler {
	m := mux.NewRouter()
	m.HandleFunc("/api/user/login-user/", r.handleLogin).Methods(http.MethodPost)
	m.HandleFunc("/api/auth/verify-token", r.handleVerify).Methods(http.MethodGet)
	m.HandleFunc("/api/users", r.handleUsers).Methods(http.MethodGet)
	m.HandleFunc("/api/messages/get-chat-user/{self}/{peer}", r.handleHistory).Methods(http.MethodGet)
	m.HandleFunc("/ws", r.handleSocket)
	return m
}

// socketClient is one connected websocket. Writes go through the outgoing
// channel so a slow reader never blocks delivery to others.
type socketClient struct {
	conn     *websocket.Conn
	username string
	outgoing chan []byte
	rooms    map[string]bool
}

func (r *Relay) handleSocket(w http.ResponseWriter, req *http.Request) {
	token, ok := bearerToken(req)
	if !ok {
		http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
		return
	}
	username, err := parseToken(r.secret, token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &socketClient{
		conn:     conn,
		username: username,
		outgoing: make(chan []byte, 16),
		rooms:    make(map[string]bool),
	}
	r.register(client)

	go r.writeLoop(client)
	r.readLoop(client)
}

func (r *Relay) register(client *socketClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[client.username] == nil {
		r.byUser[client.username] = make(map[*socketClient]bool)
	}
	r.byUser[client.username][client] = true
}

func (r *Relay) unregister(client *socketClient) {
	r.mu.Lock()
	for room := range client.rooms {
		delete(r.rooms[room], client)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.byUser[client.username], client)
	if len(r.byUser[client.username]) == 0 {
		delete(r.byUser, client.username)
	}
	r.mu.Unlock()
	close(client.outgoing)
}

func (r *Relay) readLoop(client *socketClient) {
	defer r.unregister(client)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame protocol.Frame
		if err := frame.Decode(data); err != nil {
			r.log.Warn("bad frame", "from", client.username, "err", err)
			continue
		}

		switch frame.Event {
		case protocol.EventJoin:
			r.handleJoin(client, &frame)
		case protocol.EventSend:
			r.handleSend(client, &frame)
		default:
			r.log.Debug("ignoring frame", "event", frame.Event, "from", client.username)
		}
	}
}

func (r *Relay) writeLoop(client *socketClient) {
	defer client.conn.Close()
	for data := range client.outgoing {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// handleJoin puts the socket in the pair room and acknowledges. The sender
// identity comes from the verified token, not the payload.
func (r *Relay) handleJoin(client *socketClient, frame *protocol.Frame) {
	payload, err := frame.JoinPayload()
	if err != nil {
		r.log.Warn("bad join payload", "from", client.username, "err", err)
		return
	}

	room := channel.Derive(client.username, payload.Target)
	r.mu.Lock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[*socketClient]bool)
	}
	r.rooms[room][client] = true
	client.rooms[room] = true
	r.mu.Unlock()

	r.deliver(client, protocol.NewAck(frame.Ack))
	r.log.Debug("joined", "user", client.username, "target", payload.Target)
}

// handleSend records the message and fans it out: members of the pair room
// (other than the sender) get it on the pair-channel event, and the
// target's sockets outside the room get it on the generic message event.
func (r *Relay) handleSend(client *socketClient, frame *protocol.Frame) {
	payload, err := frame.OutgoingPayload()
	if err != nil {
		r.log.Warn("bad send payload", "from", client.username, "err", err)
		return
	}

	sender := client.username
	r.store.appendMessage(sender, payload.Target, storedMessage{
		ID:      uuid.NewString(),
		User:    sender,
		Message: payload.Message,
	})

	room := channel.Derive(sender, payload.Target)
	delivery, err := protocol.NewDelivery(room, sender, payload.Message)
	if err != nil {
		r.log.Warn("delivery encode failed", "err", err)
		return
	}
	generic, err := protocol.NewDelivery(protocol.EventMessage, sender, payload.Message)
	if err != nil {
		r.log.Warn("delivery encode failed", "err", err)
		return
	}

	// Enqueue under the lock so a concurrent unregister cannot close an
	// outgoing channel between selection and delivery.
	r.mu.Lock()
	seen := make(map[*socketClient]bool)
	for member := range r.rooms[room] {
		if member != client {
			r.deliver(member, delivery)
			seen[member] = true
		}
	}
	for sock := range r.byUser[payload.Target] {
		if !seen[sock] && sock != client && !sock.rooms[room] {
			r.deliver(sock, generic)
		}
	}
	r.mu.Unlock()
}

// deliver enqueues a frame, dropping it if the socket's buffer is full.
func (r *Relay) deliver(client *socketClient, frame *protocol.Frame) {
	data, err := frame.Encode()
	if err != nil {
		r.log.Warn("frame encode failed", "err", err)
		return
	}
	select {
	case client.outgoing <- data:
	default:
		r.log.Warn("dropping frame for slow socket", "user", client.username)
	}
}
