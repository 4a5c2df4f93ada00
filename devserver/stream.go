package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/payload"
)

// chat handles POST /api/ai/chat. The answer is streamed as SSE and
// stored in the conversation once every block has been sent. A client
// that disconnects early leaves only the user row behind.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	conv, isNew, err := s.conversationLocked(req)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.appendRowLocked(conv, chat.RoleUser, req.Message, nil)
	convID := conv.ID
	s.mu.Unlock()

	turn := Turn{
		ConversationID: convID,
		Message:        req.Message,
		ConnectionID:   req.ConnectionID,
		DatabaseName:   req.DatabaseName,
		ConfirmToken:   newConfirmToken(),
	}
	blocks := s.opts.Script(turn)
	if isNew {
		if len(blocks) == 0 {
			blocks = append(blocks, chat.Block{})
		}
		id := convID
		blocks[0].ConversationID = &id
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	send := func(b chat.Block) bool {
		if err := writeFrame(w, b); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for i, b := range blocks {
		if i > 0 && s.opts.BlockDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.opts.BlockDelay):
			}
		}
		if !send(b) {
			return
		}
	}

	// Stored before done goes out, so a client that reacts to done sees
	// the turn in history and can redeem its confirmation token.
	s.mu.Lock()
	if c, ok := s.conversations[convID]; ok {
		s.storeTurnLocked(c, blocks)
		s.registerConfirmsLocked(convID, blocks)
	}
	s.mu.Unlock()

	send(chat.Block{Done: true})
}

func writeFrame(w http.ResponseWriter, b chat.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) conversationLocked(req chat.Request) (*conversation, bool, error) {
	if req.ConversationID != nil {
		c, ok := s.conversations[*req.ConversationID]
		if !ok {
			return nil, false, fmt.Errorf("conversation %d not found", *req.ConversationID)
		}
		return c, false, nil
	}
	now := s.now()
	c := &conversation{
		ID:        s.nextID,
		Title:     chat.Preview(req.Message, 40),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++
	s.conversations[c.ID] = c
	return c, true, nil
}

func (s *Server) appendRowLocked(c *conversation, role chat.Role, content string, blocks []chat.Block) {
	now := s.now()
	c.Rows = append(c.Rows, row{
		ID:        int64(len(c.Rows) + 1),
		Role:      role,
		Content:   content,
		Blocks:    blocks,
		CreatedAt: now,
	})
	c.UpdatedAt = now
	c.Tokens += int64(len(strings.Fields(content)))
}

// storeTurnLocked splits the turn where the answer text starts after
// the tool work: the first row holds the work, the second the answer.
// Turns without that shape are stored as one row.
func (s *Server) storeTurnLocked(c *conversation, blocks []chat.Block) {
	cut := 0
	sawTool := false
	for i, b := range blocks {
		if b.Type == chat.BlockToolResult {
			sawTool = true
		}
		if sawTool && b.Type == chat.BlockText {
			cut = i
			break
		}
	}
	if cut == 0 {
		s.appendRowLocked(c, chat.RoleAssistant, content(blocks), blocks)
		return
	}
	s.appendRowLocked(c, chat.RoleAssistant, content(blocks[:cut]), blocks[:cut])
	s.appendRowLocked(c, chat.RoleAssistant, content(blocks[cut:]), blocks[cut:])
}

func content(blocks []chat.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == chat.BlockText {
			sb.WriteString(b.Data)
		}
	}
	return sb.String()
}

// registerConfirmsLocked makes confirmation tokens found in tool results
// redeemable.
func (s *Server) registerConfirmsLocked(convID int64, blocks []chat.Block) {
	reg := payload.DefaultRegistry()
	for _, b := range blocks {
		if b.Type != chat.BlockToolResult {
			continue
		}
		res, ok := chat.DecodeToolResult(b.Data)
		if !ok {
			continue
		}
		p, ok := reg.Recognize(res.ToolName, res.Result)
		if !ok || p.Kind != payload.KindConfirm {
			continue
		}
		ttl := s.opts.ConfirmTTL
		if adv := p.Confirm.TTL(); adv > 0 && adv < ttl {
			ttl = adv
		}
		s.confirms[p.Confirm.ConfirmationToken] = pendingWrite{
			conversationID: convID,
			sql:            p.Confirm.SQLPreview,
			expires:        s.now().Add(ttl),
		}
	}
}
