package api

import (
	"context"
	"io"
	"net/http"

	"github.com/DachengChen/paiconsole/chat"
)

// OpenStream posts a chat message and returns the SSE body. It
// satisfies chat.Opener; the refresh-and-retry happens here, before any
// block is read.
func (c *Client) OpenStream(ctx context.Context, req chat.Request) (io.ReadCloser, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{
		op:     "chat",
		method: http.MethodPost,
		url:    c.url(c.cfg.ChatPath, 0),
		body:   body,
		accept: "text/event-stream",
		stream: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
