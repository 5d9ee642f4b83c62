// Package conversation owns the realtime connection and message log for
// the currently selected (self, peer) pair.
//
// The Manager is a small state machine. Selecting a pair moves it through
// Connecting (dial + join handshake), Synchronizing (backlog fetch and
// wholesale log replace) into Active (live event dispatch). Changing the
// pair, logging out or closing moves it to Closed, and the old connection
// is fully shut before a new one opens so a stale subscription can never
// leak another conversation's messages into the log.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat/internal/api"
	"github.com/pairchat/pairchat/internal/logger"
	"github.com/pairchat/pairchat/pkg/channel"
	"github.com/pairchat/pairchat/pkg/protocol"
)

// State is the Manager's lifecycle position.
type State int

const (
	// StateIdle means no identity or no peer is selected.
	StateIdle State = iota

	// StateConnecting means the transport is being opened and the join
	// handshake is in flight.
	StateConnecting

	// StateSynchronizing means the join was acknowledged and the backlog
	// fetch is in flight.
	StateSynchronizing

	// StateActive means live events are being dispatched and Send is
	// accepted.
	StateActive

	// StateClosed means the connection was torn down by a pair change,
	// logout, transport drop or Close.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSynchronizing:
		return "synchronizing"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotActive is returned by Send outside the Active state.
	ErrNotActive = errors.New("no active conversation")

	// ErrEmptyMessage is returned by Send for whitespace-only input.
	ErrEmptyMessage = errors.New("message is empty")
)

// HistoryFetcher fetches the message backlog for a pair. *api.Client
// satisfies it.
type HistoryFetcher interface {
	History(ctx context.Context, token, self, peer string) ([]api.ChatMessage, error)
}

// Manager owns the transport connection for the selected pair and feeds
// the Log from backlog, live events and optimistic sends. It is the only
// component allowed to hold the connection.
type Manager struct {
	wsURL      string
	dial       Dialer
	history    HistoryFetcher
	log        *Log
	logr       *slog.Logger
	ackTimeout time.Duration

	mu    sync.Mutex
	state State
	gen   uint64
	conn  Conn
	self  string
	peer  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer overrides the transport dialer. Tests use this to inject a
// scripted connection.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithAckTimeout bounds the join-acknowledgment wait.
func WithAckTimeout(d time.Duration) Option {
	return func(m *Manager) { m.ackTimeout = d }
}

// WithLogger overrides the package-level logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.logr = log }
}

// NewManager creates an idle Manager that will connect to the relay at
// wsURL and fetch backlogs through history.
func NewManager(wsURL string, history HistoryFetcher, log *Log, opts ...Option) *Manager {
	m := &Manager{
		wsURL:      wsURL,
		dial:       Dial,
		history:    history,
		log:        log,
		logr:       logger.Log,
		ackTimeout: 10 * time.Second,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Peer returns the currently selected peer, if any.
func (m *Manager) Peer() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peer, m.peer != ""
}

// Log returns the message log the Manager feeds.
func (m *Manager) Log() *Log {
	return m.log
}

// SetConversation is the (identity, peer) change trigger. It closes any
// open connection, clears the log, and — when both self and peer are
// non-empty — starts a new activation for the pair. An empty self or peer
// settles the Manager back to Idle.
func (m *Manager) SetConversation(self, token, peer string) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.shutConnLocked()
	m.log.Clear()

	if self == "" || peer == "" {
		m.state = StateIdle
		m.self, m.peer = "", ""
		m.mu.Unlock()
		return
	}

	m.self, m.peer = self, peer
	m.state = StateConnecting
	m.mu.Unlock()

	go m.activate(gen, self, token, peer)
}

// Close tears down the connection and moves the Manager to Closed. Wired
// to the session store's change hook so that logout closes the
// conversation scoped to the departed identity.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.shutConnLocked()
	m.state = StateClosed
	m.self, m.peer = "", ""
}

// Send emits text to the current peer and optimistically appends it to the
// log without waiting for delivery. It is valid only in the Active state;
// whitespace-only input is rejected. No deduplication is attempted against
// a possible server echo.
func (m *Manager) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	if m.state != StateActive || m.conn == nil {
		m.mu.Unlock()
		return ErrNotActive
	}
	conn, self, peer, gen := m.conn, m.self, m.peer, m.gen
	m.mu.Unlock()

	frame, err := protocol.NewSend(peer, self, text)
	if err != nil {
		return err
	}

	m.append(gen, Message{
		ID:         uuid.NewString(),
		User:       self,
		Text:       text,
		TargetUser: peer,
		SentAt:     time.Now(),
	})

	if err := conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// activate runs one connection lifecycle: dial, join handshake, backlog
// synchronization, then the live read loop. Everything is sequential in
// this goroutine, so frames buffered during the backlog fetch are appended
// only after the wholesale replace and can never be overwritten by it. A
// generation check guards every externally visible effect against a pair
// change that happened mid-flight.
func (m *Manager) activate(gen uint64, self, token, peer string) {
	conn, err := m.dial(context.Background(), m.wsURL, token)
	if err != nil {
		m.logr.Warn("relay dial failed", "peer", peer, "err", err)
		m.fail(gen, nil)
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	join, err := protocol.NewJoin(self, peer, gen)
	if err != nil {
		m.logr.Warn("join encode failed", "err", err)
		m.fail(gen, conn)
		return
	}
	if err := conn.WriteFrame(join); err != nil {
		m.logr.Warn("join send failed", "peer", peer, "err", err)
		m.fail(gen, conn)
		return
	}
	if err := m.awaitAck(conn, gen); err != nil {
		m.logr.Warn("join not acknowledged", "peer", peer, "err", err)
		m.fail(gen, conn)
		return
	}

	if !m.transition(gen, StateSynchronizing) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	backlog, err := m.history.History(ctx, token, self, peer)
	cancel()
	if err != nil {
		// Recoverable: the conversation opens with an empty log.
		m.logr.Warn("history fetch failed", "peer", peer, "err", err)
	} else {
		entries := make([]Message, 0, len(backlog))
		for _, msg := range backlog {
			entries = append(entries, Message{
				ID:         msg.ID,
				User:       msg.User,
				Text:       msg.Message,
				TargetUser: peer,
			})
		}
		m.replaceAll(gen, entries)
	}

	if !m.transition(gen, StateActive) {
		return
	}

	pairEvent := channel.Derive(self, peer)
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			// Transport drop: no automatic reconnect, the user
			// reselects the peer.
			if m.current(gen) {
				m.logr.Warn("relay connection lost", "peer", peer, "err", err)
			}
			m.fail(gen, conn)
			return
		}

		switch frame.Event {
		case pairEvent:
			payload, err := frame.IncomingPayload()
			if err != nil {
				m.logr.Warn("bad delivery frame", "err", err)
				continue
			}
			m.append(gen, Message{
				User:       payload.User,
				Text:       payload.Message,
				TargetUser: peer,
				SentAt:     time.Now(),
			})
		case protocol.EventMessage:
			payload, err := frame.IncomingPayload()
			if err != nil {
				m.logr.Warn("bad delivery frame", "err", err)
				continue
			}
			m.append(gen, Message{
				User:       payload.User,
				Text:       payload.Message,
				TargetUser: self,
				SentAt:     time.Now(),
			})
		default:
			m.logr.Debug("ignoring frame", "event", frame.Event)
		}
	}
}

// awaitAck reads frames until the join acknowledgment for ackID arrives.
func (m *Manager) awaitAck(conn Conn, ackID uint64) error {
	if err := conn.SetReadDeadline(time.Now().Add(m.ackTimeout)); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		if frame.Event == protocol.EventAck && frame.Ack == ackID {
			return nil
		}
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// transition moves to st if the activation is still current. A false
// return means the activation was superseded and must stop.
func (m *Manager) transition(gen uint64, st State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return false
	}
	m.state = st
	return true
}

// fail closes conn and enters Closed, unless a newer activation has
// already taken over (in which case conn is this activation's leftover and
// is closed quietly).
func (m *Manager) fail(gen uint64, conn Conn) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.shutConnLocked()
	m.state = StateClosed
	m.mu.Unlock()
}

// replaceAll and append mutate the log only while the activation is still
// current, and do so under m.mu so that a pair switch cannot interleave
// between the check and the write. OnAppend hooks therefore must not call
// back into the Manager.

func (m *Manager) replaceAll(gen uint64, entries []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.log.ReplaceAll(entries)
}

func (m *Manager) append(gen uint64, entry Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.log.Append(entry)
}

// shutConnLocked closes and drops the connection. Callers hold m.mu.
func (m *Manager) shutConnLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
