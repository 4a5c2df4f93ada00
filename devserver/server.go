// Package devserver is a scripted stand-in for the console's backend.
// It serves the same endpoints the api package calls, so the console
// can be run and tested without the real service.
//
// Design decisions:
//   - All state lives in memory behind one mutex; the server is meant
//     for a single developer or a test.
//   - Access tokens expire after Options.TokenTTL so the refresh path
//     gets exercised in normal use.
//   - Chat answers are produced by a Script. The default script emits
//     every block kind the console understands, including a todo list
//     and, for messages that mention update or delete, a write
//     confirmation.
//   - History is stored the way the real service stores it: one user
//     row, then the assistant turn split into one row per phase.
package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/chat"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Options configures a Server. Zero values pick defaults.
type Options struct {
	// Password accepted for every user. Empty accepts any password.
	Password string

	TokenTTL   time.Duration // access token lifetime, default 15m
	ConfirmTTL time.Duration // write confirmation lifetime, default 5m

	// BlockDelay is the pause between streamed blocks.
	BlockDelay time.Duration

	// Script produces the assistant's blocks. Default: DefaultScript.
	Script Script
}

// Server holds the in-memory backend state.
type Server struct {
	opts Options

	mu            sync.Mutex
	access        map[string]time.Time // token -> expiry
	refresh       map[string]string    // refresh token -> user
	conversations map[int64]*conversation
	nextID        int64
	confirms      map[string]pendingWrite
	now           func() time.Time
}

type conversation struct {
	ID        int64
	Title     string
	Tokens    int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Rows      []row
}

// row is one stored history message.
type row struct {
	ID        int64        `json:"id"`
	Role      chat.Role    `json:"role"`
	Content   string       `json:"content"`
	Blocks    []chat.Block `json:"blocks,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

type pendingWrite struct {
	conversationID int64
	sql            string
	expires        time.Time
}

// New creates a server.
func New(opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 15 * time.Minute
	}
	if opts.ConfirmTTL <= 0 {
		opts.ConfirmTTL = 5 * time.Minute
	}
	if opts.Script == nil {
		opts.Script = DefaultScript
	}
	return &Server{
		opts:          opts,
		access:        make(map[string]time.Time),
		refresh:       make(map[string]string),
		conversations: make(map[int64]*conversation),
		nextID:        1,
		confirms:      make(map[string]pendingWrite),
		now:           time.Now,
	}
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLog)
	r.Use(recovery)

	r.Post("/api/auth/login", s.login)
	r.Post("/api/auth/refresh", s.refreshToken)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)

		r.Post("/api/ai/chat", s.chat)
		r.Route("/api/ai/conversations", func(r chi.Router) {
			r.Get("/", s.listConversations)
			r.Delete("/{id}", s.deleteConversation)
			r.Get("/{id}/messages", s.messages)
		})
		r.Post("/api/ai/write/confirm", s.confirmWrite)
		r.Post("/api/ai/write/cancel", s.cancelWrite)
	})
	return r
}

// ExpireTokens invalidates every access token. Refresh tokens stay
// valid.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok := range s.access {
		s.access[tok] = time.Time{}
	}
}

// RevokeRefreshTokens invalidates every refresh token, so the next
// refresh fails.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

func (s *Server) issueLocked(user string) (access, refresh string) {
	access = uuid.NewString()
	refresh = uuid.NewString()
	s.access[access] = s.now().Add(s.opts.TokenTTL)
	s.refresh[refresh] = user
	return access, refresh
}

func (s *Server) validToken(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.access[tok]
	return ok && s.now().Before(exp)
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || !s.validToken(auth[len(prefix):]) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		applog.Event("devserver", "%s %s %d %dms", r.Method, r.URL.Path, sw.status, time.Since(start).Milliseconds())
	})
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				applog.Error("devserver panic on %s: %v", r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
