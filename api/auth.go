package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/config"
	"github.com/tidwall/gjson"
)

type tokens struct {
	access  string
	refresh string
}

func parseTokens(op string, body []byte) (tokens, error) {
	root := unwrap(body)
	t := tokens{
		access:  root.Get("accessToken").String(),
		refresh: root.Get("refreshToken").String(),
	}
	if t.access == "" {
		return tokens{}, fmt.Errorf("%s: response has no accessToken", op)
	}
	return t, nil
}

// Login exchanges credentials for tokens and saves the session.
func (c *Client) Login(ctx context.Context, user, password string) error {
	body, err := jsonBody(map[string]string{"username": user, "password": password})
	if err != nil {
		return err
	}
	r := request{op: "login", method: http.MethodPost, url: c.url(c.cfg.LoginPath, 0), body: body}
	data, err := c.unauthorized(ctx, r)
	if err != nil {
		return err
	}
	t, err := parseTokens(r.op, data)
	if err != nil {
		return err
	}
	applog.Info("logged in as %s at %s", user, c.baseURL)
	return c.sessions.Set(config.Session{
		BaseURL:      c.baseURL,
		User:         user,
		AccessToken:  t.access,
		RefreshToken: t.refresh,
	})
}

// Logout forgets the session. The backend keeps no server-side state
// the console needs to revoke.
func (c *Client) Logout() error {
	return c.sessions.Clear()
}

// Refresh exchanges the refresh token for a new pair and stores it.
// A rejected refresh clears the session and yields ErrSessionExpired.
// Cancellation and transport errors leave the session alone.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refreshShared(ctx, c.sessions.Get().AccessToken)
	return err
}

// refreshShared runs at most one refresh at a time. stale is the access
// token that was rejected; if the session already holds a different one
// another caller refreshed in the meantime and that token is reused.
func (c *Client) refreshShared(ctx context.Context, stale string) (string, error) {
	ch := c.refresh.DoChan("refresh", func() (any, error) {
		sess := c.sessions.Get()
		if sess.AccessToken != "" && sess.AccessToken != stale {
			return sess.AccessToken, nil
		}
		// Shared by every waiting caller, so no single caller's cancel
		// may end it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.http.Timeout)
		defer cancel()
		return c.doRefresh(rctx, sess.RefreshToken)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) doRefresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		c.expire()
		return "", ErrSessionExpired
	}
	body, err := jsonBody(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}
	r := request{op: "refresh", method: http.MethodPost, url: c.url(c.cfg.RefreshPath, 0), body: body}
	data, err := c.unauthorized(ctx, r)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			applog.Error("token refresh: %v", err)
			return "", err
		}
		applog.Error("token refresh rejected: %v", err)
		c.expire()
		return "", ErrSessionExpired
	}
	t, err := parseTokens(r.op, data)
	if err != nil {
		applog.Error("token refresh: %v", err)
		c.expire()
		return "", ErrSessionExpired
	}
	if err := c.sessions.UpdateTokens(t.access, t.refresh); err != nil {
		applog.Error("save refreshed session: %v", err)
	}
	applog.Event("auth", "token refreshed")
	return t.access, nil
}

// expire clears the session after the backend rejected it.
func (c *Client) expire() {
	if err := c.sessions.Clear(); err != nil {
		applog.Error("clear session: %v", err)
	}
}

// unauthorized sends a request without a bearer token.
func (c *Client) unauthorized(ctx context.Context, r request) ([]byte, error) {
	resp, err := c.send(ctx, r, "")
	if err != nil {
		return nil, err
	}
	resp, err = checkStatus(r.op, resp)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readAll(r.op, resp)
}

// unwrap returns the payload, looking inside {"data": ...} envelopes.
func unwrap(body []byte) gjson.Result {
	root := gjson.ParseBytes(body)
	if root.IsObject() {
		if d := root.Get("data"); d.Exists() && (d.IsObject() || d.IsArray()) {
			return d
		}
	}
	return root
}
