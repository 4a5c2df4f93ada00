// Package api is the HTTP client for the console's backend: login and
// token refresh, the SSE chat endpoint, conversation history and the
// write-confirmation endpoints.
//
// Design decisions:
//   - Every authorized call goes through do(), which retries exactly
//     once after a 401 if a token refresh succeeds. Concurrent 401s share
//     one refresh (singleflight), so a burst of requests cannot trigger
//     a retry storm.
//   - A refresh the backend rejects clears the saved session and returns
//     ErrSessionExpired; the UI sends the user back to login. A cancelled
//     caller or a network error leaves the session in place.
//   - The shared refresh runs detached from the caller that started it,
//     with the client's own timeout.
//   - Responses are decoded with gjson rather than fixed structs: ids
//     arrive as numbers or strings, and some deployments wrap payloads
//     in {"data": ...}.
//   - The chat stream uses a client without a timeout. A stream may run
//     for as long as bytes keep arriving.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/config"
	"golang.org/x/sync/singleflight"
)

// Client talks to one backend. It is safe for concurrent use.
type Client struct {
	cfg      config.APIConfig
	baseURL  string
	host     string
	sessions *config.SessionStore

	http   *http.Client
	stream *http.Client

	refresh singleflight.Group
}

// New creates a client. sessions holds the tokens and receives
// refreshed ones.
func New(cfg config.APIConfig, sessions *config.SessionStore) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		host:     cfg.OriginHost,
		sessions: sessions,
		http:     &http.Client{Timeout: timeout},
		stream:   &http.Client{},
	}
	if c.host != "" {
		// Tunneled: certificates are issued for the origin, not the
		// local end.
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{ServerName: hostOnly(c.host)}
		c.http.Transport = tr
		c.stream.Transport = tr
	}
	return c
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.Trim(hostport, "[]")
}

// BaseURL returns the backend root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoggedIn reports whether an access token is available.
func (c *Client) LoggedIn() bool {
	return c.sessions.Get().Valid()
}

func (c *Client) url(path string, id int64) string {
	if id != 0 {
		path = strings.ReplaceAll(path, "{id}", strconv.FormatInt(id, 10))
	}
	return c.baseURL + path
}

// request describes one call. body is kept as bytes so the request can
// be rebuilt for the retry.
type request struct {
	op     string
	method string
	url    string
	body   []byte
	accept string
	stream bool
}

func jsonBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (c *Client) build(ctx context.Context, r request, token string) (*http.Request, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.host != "" {
		req.Host = c.host
	}
	return req, nil
}

// do sends an authorized request. The returned response has a 2xx
// status; anything else is turned into an error and its body closed.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	sess := c.sessions.Get()
	if !sess.Valid() {
		return nil, ErrNotLoggedIn
	}

	resp, err := c.send(ctx, r, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return checkStatus(r.op, resp)
	}
	drain(resp)

	applog.Debug("%s: 401, refreshing token", r.op)
	token, err := c.refreshShared(ctx, sess.AccessToken)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, r, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.expire()
		return nil, ErrSessionExpired
	}
	return checkStatus(r.op, resp)
}

func (c *Client) send(ctx context.Context, r request, token string) (*http.Response, error) {
	req, err := c.build(ctx, r, token)
	if err != nil {
		return nil, err
	}
	hc := c.http
	if r.stream {
		hc = c.stream
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	return resp, nil
}

// doJSON runs an authorized request and returns the unwrapped body.
func (c *Client) doJSON(ctx context.Context, r request) ([]byte, error) {
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readAll(r.op, resp)
}

func readAll(op string, resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	return data, nil
}

func checkStatus(op string, resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
