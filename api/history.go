package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/tidwall/gjson"
)

// Conversations lists the user's conversations, newest first as the
// server returns them.
func (c *Client) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	data, err := c.doJSON(ctx, request{
		op:     "conversations",
		method: http.MethodGet,
		url:    c.url(c.cfg.ConversationsPath, 0),
	})
	if err != nil {
		return nil, err
	}
	root := unwrap(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("conversations: unexpected response shape")
	}

	var out []chat.Conversation
	root.ForEach(func(_, v gjson.Result) bool {
		id, ok := int64Of(v.Get("id"))
		if !ok {
			return true
		}
		out = append(out, chat.Conversation{
			ID:         id,
			Title:      v.Get("title").String(),
			TokenCount: v.Get("tokenCount").Int(),
			CreatedAt:  timeOf(v.Get("createdAt")),
			UpdatedAt:  timeOf(v.Get("updatedAt")),
		})
		return true
	})
	return out, nil
}

// Messages fetches the stored rows of one conversation. Rows are
// returned as the server sends them; callers run chat.MergeTurns before
// building segments.
func (c *Client) Messages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	data, err := c.doJSON(ctx, request{
		op:     "messages",
		method: http.MethodGet,
		url:    c.url(c.cfg.MessagesPath, conversationID),
	})
	if err != nil {
		return nil, err
	}
	root := unwrap(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("messages: unexpected response shape")
	}
	return DecodeMessages(root.Raw), nil
}

// DecodeMessages turns a history array into messages. Rows with an
// unknown role are skipped; blocks that do not parse are dropped the
// same way malformed stream frames are.
func DecodeMessages(raw string) []chat.Message {
	var out []chat.Message
	gjson.Parse(raw).ForEach(func(i, v gjson.Result) bool {
		role := chat.Role(strings.ToLower(v.Get("role").String()))
		if role != chat.RoleUser && role != chat.RoleAssistant {
			return true
		}
		m := chat.Message{
			ID:        idOf(v.Get("id")),
			Role:      role,
			Content:   v.Get("content").String(),
			Timestamp: timeOf(firstOf(v, "createdAt", "timestamp")),
		}
		if m.ID == "" {
			m.ID = "row-" + i.String()
		}
		if role == chat.RoleAssistant {
			m.Blocks = decodeBlocks(v.Get("blocks"))
		}
		out = append(out, m)
		return true
	})
	return out
}

// decodeBlocks accepts an array of block objects, an array of JSON
// strings, or the whole array serialized into one string.
func decodeBlocks(v gjson.Result) []chat.Block {
	if v.Type == gjson.String && gjson.Valid(v.Str) {
		v = gjson.Parse(v.Str)
	}
	if !v.IsArray() {
		return nil
	}
	var blocks []chat.Block
	v.ForEach(func(_, b gjson.Result) bool {
		raw := b.Raw
		if b.Type == gjson.String {
			raw = b.Str
		}
		if blk, ok := chat.ParseBlock(raw); ok {
			blocks = append(blocks, blk)
		}
		return true
	})
	return blocks
}

// DeleteConversation removes a conversation on the server.
func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	_, err := c.doJSON(ctx, request{
		op:     "delete conversation",
		method: http.MethodDelete,
		url:    c.url(c.cfg.ConversationsPath, 0) + "/" + strconv.FormatInt(id, 10),
	})
	return err
}

func firstOf(v gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func idOf(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	default:
		return ""
	}
}

func int64Of(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Int(), true
	case gjson.String:
		n, err := strconv.ParseInt(v.Str, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// timeOf reads RFC 3339 strings and epoch milliseconds.
func timeOf(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return t
			}
		}
	case gjson.Number:
		return time.UnixMilli(v.Int())
	}
	return time.Time{}
}
