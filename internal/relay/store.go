package relay

import (
	"sort"
	"strings"
	"sync"

	"github.com/pairchat/pairchat/pkg/channel"
)

// userRecord is a registered user. The relay keeps everything in memory;
// it exists as a development stand-in for the real backend, not a store.
type userRecord struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// storedMessage is one history entry, shaped like the history endpoint's
// response items.
type storedMessage struct {
	ID      string `json:"id"`
	User    string `json:"user"`
	Message string `json:"message"`
}

type store struct {
	mu      sync.Mutex
	users   map[string]userRecord   // username -> record
	history map[string][]storedMessage // pair digest -> ordered messages
	nextID  int64
}

func newStore() *store {
	return &store{
		users:   make(map[string]userRecord),
		history: make(map[string][]storedMessage),
		nextID:  1,
	}
}

// loginByEmail returns the user for email, registering it first if
// unknown. The username is the email's local part.
func (s *store) loginByEmail(email string) userRecord {
	username := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		username = email[:i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		return u
	}
	u := userRecord{ID: s.nextID, Username: username, Email: email}
	s.nextID++
	s.users[username] = u
	return u
}

func (s *store) user(username string) (userRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return u, ok
}

// list returns every registered username, sorted for stable output.
func (s *store) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// appendMessage records a message in the pair's history, in arrival order.
func (s *store) appendMessage(a, b string, msg storedMessage) {
	key := channel.Derive(a, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[key] = append(s.history[key], msg)
}

// pairHistory returns the ordered backlog for the (a, b) pair.
func (s *store) pairHistory(a, b string) []storedMessage {
	key := channel.Derive(a, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storedMessage, len(s.history[key]))
	copy(out, s.history[key])
	return out
}
