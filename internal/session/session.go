// Package session owns the authenticated identity and the persisted token.
//
// A stored token is never trusted on its own: Resume verifies it against
// the backend before adopting the identity it names. Verification failure
// is recovered locally by clearing the token and settling without an
// identity; it never propagates as a fatal error.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pairchat/pairchat/internal/logger"
)

// Identity is the authenticated user, immutable for the session lifetime.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Verifier validates a persisted token with the backend and returns the
// identity it belongs to.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// Store holds the current identity and token. It is the sole mutator of
// the persisted token; every other component reads the token through it.
type Store struct {
	mu       sync.Mutex
	verifier Verifier
	tokens   TokenStore
	log      *slog.Logger

	identity *Identity
	token    string
	loading  bool
	onChange []func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the package-level logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a Store in the loading state. Call Resume to settle it.
func New(verifier Verifier, tokens TokenStore, opts ...Option) *Store {
	s := &Store{
		verifier: verifier,
		tokens:   tokens,
		log:      logger.Log,
		loading:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to run after every identity change (resume, login,
// logout). The connection manager hangs its teardown off this hook.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Resume performs the silent re-authentication done once at start-up: if a
// token is stored, verify it and adopt the returned identity; on any
// failure clear the token and settle with no identity. After Resume returns
// the store is settled and Loading reports false for the rest of the
// session.
func (s *Store) Resume(ctx context.Context) {
	token, ok, err := s.tokens.Load()
	if err != nil {
		s.log.Warn("token load failed", "err", err)
	}
	if !ok || err != nil {
		s.settle(nil, "")
		return
	}

	identity, err := s.verifier.VerifyToken(ctx, token)
	if err != nil {
		s.log.Warn("token verification failed", "err", err)
		if err := s.tokens.Clear(); err != nil {
			s.log.Warn("token clear failed", "err", err)
		}
		s.settle(nil, "")
		return
	}

	s.settle(&identity, token)
}

func (s *Store) settle(identity *Identity, token string) {
	s.mu.Lock()
	s.identity = identity
	s.token = token
	s.loading = false
	s.mu.Unlock()
	s.notify()
}

// Login persists the token and adopts the identity. The caller is expected
// to have obtained both from the login endpoint; no verification happens
// here.
func (s *Store) Login(token string, identity Identity) {
	if err := s.tokens.Save(token); err != nil {
		s.log.Warn("token save failed", "err", err)
	}
	s.mu.Lock()
	s.identity = &identity
	s.token = token
	s.loading = false
	s.mu.Unlock()
	s.notify()
}

// Logout clears the persisted token and the identity. Registered OnChange
// hooks run afterwards, which is what tears down any open conversation
// scoped to the departed identity.
func (s *Store) Logout() {
	if err := s.tokens.Clear(); err != nil {
		s.log.Warn("token clear failed", "err", err)
	}
	s.mu.Lock()
	s.identity = nil
	s.token = ""
	s.loading = false
	s.mu.Unlock()
	s.notify()
}

// Identity returns the current identity, if authenticated.
func (s *Store) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Token returns the current session token, if authenticated.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return "", false
	}
	return s.token, true
}

// Loading reports whether the store has not yet settled. It is true only
// between New and the first Resume/Login/Logout.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) notify() {
	s.mu.Lock()
	hooks := make([]func(), len(s.onChange))
	copy(hooks, s.onChange)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
