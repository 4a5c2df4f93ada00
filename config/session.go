// session.go manages the saved login session.
//
// Tokens are stored in ~/.paiconsole/session.json so users can restart
// the console without logging in again. The api client updates the
// store after each token refresh.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session is a saved pair of tokens for one backend.
type Session struct {
	BaseURL      string    `json:"base_url"`
	User         string    `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// Valid reports whether the session carries an access token.
func (s Session) Valid() bool {
	return s.AccessToken != ""
}

// SessionStore manages the session on disk. It is safe for concurrent
// use; the stream goroutine and the UI may both touch it.
type SessionStore struct {
	path string

	mu      sync.Mutex
	session Session
}

// NewSessionStore creates a store, loading from ~/.paiconsole/session.json.
func NewSessionStore() (*SessionStore, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return OpenSessionStore(filepath.Join(dir, "session.json"))
}

// OpenSessionStore loads the session at path. A missing file gives an
// empty session. An empty path keeps the session in memory only.
func OpenSessionStore(path string) (*SessionStore, error) {
	store := &SessionStore{path: path}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &store.session); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return store, nil
}

// Get returns the current session.
func (s *SessionStore) Get() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Set replaces the session and writes it to disk.
func (s *SessionStore) Set(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}
	s.session = sess
	return s.saveLocked()
}

// UpdateTokens swaps in refreshed tokens, keeping the rest.
func (s *SessionStore) UpdateTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.AccessToken = access
	if refresh != "" {
		s.session.RefreshToken = refresh
	}
	s.session.SavedAt = time.Now()
	return s.saveLocked()
}

// Clear forgets the session and removes the file.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *SessionStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
