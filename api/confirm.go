package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/DachengChen/paiconsole/applog"
)

type confirmBody struct {
	ConfirmationToken  string `json:"confirmationToken"`
	SupplementaryInput string `json:"supplementaryInput,omitempty"`
}

// Confirm approves a pending write. The result is not read; the
// assistant reports the outcome in the conversation.
func (c *Client) Confirm(ctx context.Context, token, supplementary string) error {
	return c.resolveWrite(ctx, "confirm write", c.cfg.ConfirmPath, token, supplementary)
}

// CancelWrite rejects a pending write.
func (c *Client) CancelWrite(ctx context.Context, token, supplementary string) error {
	return c.resolveWrite(ctx, "cancel write", c.cfg.CancelPath, token, supplementary)
}

func (c *Client) resolveWrite(ctx context.Context, op, path, token, supplementary string) error {
	body, err := jsonBody(confirmBody{ConfirmationToken: token, SupplementaryInput: supplementary})
	if err != nil {
		return err
	}
	_, err = c.doJSON(ctx, request{op: op, method: http.MethodPost, url: c.url(path, 0), body: body})
	if err == nil {
		applog.Event("write", "%s token=%s", op, token)
		return nil
	}
	switch StatusCode(err) {
	case http.StatusConflict, http.StatusGone:
		applog.Info("%s: token %s already expired", op, token)
		return ErrConfirmationExpired
	}
	return err
}

// IsExpired reports whether err means the confirmation token is gone.
// Callers treat it as non-fatal.
func IsExpired(err error) bool {
	return errors.Is(err, ErrConfirmationExpired)
}
