package conversation

import (
	"sync"
	"time"
)

// Message is one entry in the active conversation.
type Message struct {
	// ID is the backend id for backlog entries, a locally generated id
	// for optimistic sends, and empty for live deliveries.
	ID string

	// User is the sender's username.
	User string

	// Text is the message body.
	Text string

	// TargetUser is the recipient from the sender's perspective.
	TargetUser string

	SentAt time.Time
}

// Log is the append-only message sequence for the active conversation.
// Entries are never mutated or removed individually; the whole sequence is
// replaced when a conversation's backlog loads and cleared when the
// conversation changes.
type Log struct {
	mu       sync.Mutex
	entries  []Message
	onAppend []func(Message)
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Entries returns a copy of the current sequence in arrival order.
func (l *Log) Entries() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// ReplaceAll swaps the whole sequence for the fetched backlog.
func (l *Log) ReplaceAll(entries []Message) {
	l.mu.Lock()
	l.entries = make([]Message, len(entries))
	copy(l.entries, entries)
	l.mu.Unlock()
}

// Clear drops every entry. Used when the conversation changes, before the
// new backlog arrives.
func (l *Log) Clear() {
	l.ReplaceAll(nil)
}

// Append adds one entry at the end and notifies subscribers.
func (l *Log) Append(entry Message) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	hooks := make([]func(Message), len(l.onAppend))
	copy(hooks, l.onAppend)
	l.mu.Unlock()
	for _, fn := range hooks {
		fn(entry)
	}
}

// OnAppend registers fn to run after every append. The presentation layer
// uses this to re-render as messages arrive.
func (l *Log) OnAppend(fn func(Message)) {
	l.mu.Lock()
	l.onAppend = append(l.onAppend, fn)
	l.mu.Unlock()
}
