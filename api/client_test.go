package api

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/config"
	"github.com/DachengChen/paiconsole/devserver"
)

func newClient(t *testing.T, srv *devserver.Server) (*Client, *config.SessionStore) {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.DefaultAppConfig().API
	cfg.BaseURL = ts.URL
	store, err := config.OpenSessionStore("")
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, store), store
}

func runChat(t *testing.T, c *Client, req chat.Request) ([]chat.Message, error) {
	t.Helper()
	var last []chat.Message
	r := chat.NewRunner(c, chat.Hooks{Snapshot: func(m []chat.Message) { last = m }}, 0)
	_, err := r.Run(context.Background(), nil, req)
	return last, err
}

func TestNotLoggedIn(t *testing.T) {
	c, _ := newClient(t, devserver.New(devserver.Options{}))
	if _, err := c.Conversations(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestLoginAndStream(t *testing.T) {
	c, store := newClient(t, devserver.New(devserver.Options{Password: "pw"}))
	ctx := context.Background()

	if err := c.Login(ctx, "dev", "wrong"); StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("bad login err = %v", err)
	}
	if err := c.Login(ctx, "dev", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s := store.Get(); s.User != "dev" || s.RefreshToken == "" {
		t.Fatalf("session = %+v", s)
	}

	msgs, err := runChat(t, c, chat.Request{Message: "how many users?"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content == "" {
		t.Fatalf("transcript = %+v", msgs)
	}

	convs, err := c.Conversations(ctx)
	if err != nil || len(convs) != 1 || convs[0].ID != 1 {
		t.Fatalf("conversations = %+v, %v", convs, err)
	}
	rows, err := c.Messages(ctx, 1)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	merged := chat.MergeTurns(rows)
	if len(merged) != 2 || merged[0].Role != chat.RoleUser || merged[1].Content == "" {
		t.Fatalf("merged history = %+v", merged)
	}
	if len(merged[0].Blocks) != 0 {
		t.Fatal("user message carries blocks")
	}

	if err := c.DeleteConversation(ctx, 1); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := c.Messages(ctx, 1); StatusCode(err) != http.StatusNotFound {
		t.Fatalf("deleted conversation err = %v", err)
	}
}

func TestRefreshOnceOn401(t *testing.T) {
	srv := devserver.New(devserver.Options{})
	c, store := newClient(t, srv)
	ctx := context.Background()
	if err := c.Login(ctx, "dev", ""); err != nil {
		t.Fatal(err)
	}
	before := store.Get().AccessToken

	srv.ExpireTokens()
	if _, err := runChat(t, c, chat.Request{Message: "hi"}); err != nil {
		t.Fatalf("stream after expiry: %v", err)
	}
	if after := store.Get().AccessToken; after == before || after == "" {
		t.Fatalf("token not refreshed: %q", after)
	}
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	srv := devserver.New(devserver.Options{})
	c, store := newClient(t, srv)
	if err := c.Login(context.Background(), "dev", ""); err != nil {
		t.Fatal(err)
	}

	srv.ExpireTokens()
	srv.RevokeRefreshTokens()
	_, err := runChat(t, c, chat.Request{Message: "hi"})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if store.Get().Valid() {
		t.Fatal("session not cleared")
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	var refreshes atomic.Int32
	var mu sync.Mutex
	current := "old"

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		mu.Lock()
		current = "new"
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"accessToken":"new","refreshToken":"r2"}`)
	})
	mux.HandleFunc("/api/ai/conversations", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+current
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `[{"id":"7","title":"t"}]`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := config.DefaultAppConfig().API
	cfg.BaseURL = ts.URL
	store, _ := config.OpenSessionStore("")
	store.Set(config.Session{AccessToken: "old", RefreshToken: "r1"})
	c := New(cfg, store)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			convs, err := c.Conversations(context.Background())
			if err == nil && (len(convs) != 1 || convs[0].ID != 7) {
				err = errors.New("bad conversations")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("refreshes = %d, want 1", n)
	}
}

// stalledRefresh serves 401 for every conversations call until a refresh
// completes, and holds each refresh until release is called.
func stalledRefresh(t *testing.T) (*Client, *config.SessionStore, func(), *atomic.Int32) {
	t.Helper()
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	var refreshes atomic.Int32
	var mu sync.Mutex
	current := "old"

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		<-gate
		mu.Lock()
		current = "new"
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"accessToken":"new","refreshToken":"r2"}`)
	})
	mux.HandleFunc("/api/ai/conversations", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+current
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `[{"id":"7","title":"t"}]`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		release()
		ts.Close()
	})

	cfg := config.DefaultAppConfig().API
	cfg.BaseURL = ts.URL
	store, _ := config.OpenSessionStore("")
	store.Set(config.Session{AccessToken: "old", RefreshToken: "r1"})
	return New(cfg, store), store, release, &refreshes
}

func TestCancelDuringRefreshKeepsSession(t *testing.T) {
	c, store, _, _ := stalledRefresh(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Conversations(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the context error", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Fatal("cancellation reported as an expired session")
	}
	sess := store.Get()
	if !sess.Valid() || sess.RefreshToken != "r1" {
		t.Fatalf("session changed by cancel: %+v", sess)
	}
}

func TestCancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	c, store, release, refreshes := stalledRefresh(t)

	cancelled, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Conversations(cancelled)
		firstErr <- err
	}()
	for refreshes.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	second := make(chan error, 1)
	go func() {
		convs, err := c.Conversations(context.Background())
		if err == nil && len(convs) != 1 {
			err = errors.New("bad conversations")
		}
		second <- err
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v", err)
	}
	release()

	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("waiting caller failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiting caller never finished")
	}
	if got := store.Get().AccessToken; got != "new" {
		t.Fatalf("access token = %q, want new", got)
	}
	if n := refreshes.Load(); n != 1 {
		t.Fatalf("refreshes = %d, want 1", n)
	}
}

func TestRefreshNetworkErrorKeepsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	})
	mux.HandleFunc("/api/ai/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := config.DefaultAppConfig().API
	cfg.BaseURL = ts.URL
	store, _ := config.OpenSessionStore("")
	store.Set(config.Session{AccessToken: "old", RefreshToken: "r1"})
	c := New(cfg, store)

	_, err := c.Conversations(context.Background())
	if err == nil || errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want a transport error", err)
	}
	if !store.Get().Valid() {
		t.Fatal("network error cleared the session")
	}
}

func TestTunneledClientUsesOriginHost(t *testing.T) {
	var mu sync.Mutex
	var gotHost, gotSNI string
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotHost = r.Host
		if r.TLS != nil {
			gotSNI = r.TLS.ServerName
		}
		mu.Unlock()
		io.WriteString(w, `{"accessToken":"a","refreshToken":"r"}`)
	}))
	defer ts.Close()

	cfg := config.DefaultAppConfig().API
	cfg.BaseURL = ts.URL
	cfg.OriginHost = "example.com"
	store, _ := config.OpenSessionStore("")
	c := New(cfg, store)

	roots := x509.NewCertPool()
	roots.AddCert(ts.Certificate())
	c.http.Transport.(*http.Transport).TLSClientConfig.RootCAs = roots

	if err := c.Login(context.Background(), "dev", "pw"); err != nil {
		t.Fatalf("login through tunnel: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotHost != "example.com" || gotSNI != "example.com" {
		t.Fatalf("host = %q, server name = %q, want example.com", gotHost, gotSNI)
	}
}

func TestConfirmExpired(t *testing.T) {
	c, _ := newClient(t, devserver.New(devserver.Options{}))
	ctx := context.Background()
	if err := c.Login(ctx, "dev", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Confirm(ctx, "never-issued", ""); !IsExpired(err) {
		t.Fatalf("err = %v, want ErrConfirmationExpired", err)
	}
}

func TestConfirmWrite(t *testing.T) {
	c, _ := newClient(t, devserver.New(devserver.Options{}))
	ctx := context.Background()
	if err := c.Login(ctx, "dev", ""); err != nil {
		t.Fatal(err)
	}
	msgs, err := runChat(t, c, chat.Request{Message: "update inactive users"})
	if err != nil {
		t.Fatal(err)
	}
	pending := chat.NewPrompts(nil).Pending(msgs)
	if !pending.HasConfirm {
		t.Fatalf("no confirmation prompt in %+v", msgs)
	}
	if err := c.Confirm(ctx, pending.Confirm.ConfirmationToken, "go ahead"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := c.CancelWrite(ctx, pending.Confirm.ConfirmationToken, ""); !IsExpired(err) {
		t.Fatalf("reuse err = %v", err)
	}
}

func TestDecodeMessagesLenient(t *testing.T) {
	raw := `[
		{"id":1,"role":"USER","content":"q","blocks":[{"type":"TEXT","data":"ignored"}]},
		{"id":"a","role":"assistant","content":"","blocks":"[{\"type\":\"TEXT\",\"data\":\"x\"},{\"bad\":1}]","createdAt":"2026-01-02T03:04:05Z"},
		{"id":3,"role":"system","content":"skip"},
		{"role":"assistant","blocks":["{\"type\":\"THOUGHT\",\"data\":\"t\"}"],"timestamp":1700000000000}
	]`
	msgs := DecodeMessages(raw)
	if len(msgs) != 3 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].ID != "1" || msgs[0].Role != chat.RoleUser || msgs[0].Blocks != nil {
		t.Errorf("user row = %+v", msgs[0])
	}
	if len(msgs[1].Blocks) != 1 || msgs[1].Timestamp.Year() != 2026 {
		t.Errorf("assistant row = %+v", msgs[1])
	}
	if msgs[2].ID == "" || len(msgs[2].Blocks) != 1 || msgs[2].Timestamp.IsZero() {
		t.Errorf("row without id = %+v", msgs[2])
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Op: "chat", StatusCode: 502, Body: `{"message":"upstream down"}`}
	if got := err.Error(); got != "chat: 502 upstream down" {
		t.Errorf("Error() = %q", got)
	}
	err = &StatusError{Op: "chat", StatusCode: 500}
	if got := err.Error(); got != "chat: 500 Internal Server Error" {
		t.Errorf("Error() = %q", got)
	}
}
