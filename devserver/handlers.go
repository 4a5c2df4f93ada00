package devserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// login handles POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || (s.opts.Password != "" && req.Password != s.opts.Password) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	s.mu.Lock()
	access, refresh := s.issueLocked(req.Username)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": tokenPair{access, refresh}})
}

// refreshToken handles POST /api/auth/refresh
func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	user, ok := s.refresh[req.RefreshToken]
	if ok {
		delete(s.refresh, req.RefreshToken)
	}
	var pair tokenPair
	if ok {
		pair.AccessToken, pair.RefreshToken = s.issueLocked(user)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh token rejected")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type conversationView struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	TokenCount int64  `json:"tokenCount"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// listConversations handles GET /api/ai/conversations
func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]conversationView, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, conversationView{
			ID:         c.ID,
			Title:      c.Title,
			TokenCount: c.Tokens,
			CreatedAt:  c.CreatedAt.Format(timeLayout),
			UpdatedAt:  c.UpdatedAt.Format(timeLayout),
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func conversationParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// messages handles GET /api/ai/conversations/{id}/messages
func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	s.mu.Lock()
	c, found := s.conversations[id]
	var rows []row
	if found {
		rows = append(rows, c.Rows...)
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

// deleteConversation handles DELETE /api/ai/conversations/{id}
func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	s.mu.Lock()
	_, found := s.conversations[id]
	delete(s.conversations, id)
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type writeRequest struct {
	ConfirmationToken  string `json:"confirmationToken"`
	SupplementaryInput string `json:"supplementaryInput"`
}

// confirmWrite handles POST /api/ai/write/confirm
func (s *Server) confirmWrite(w http.ResponseWriter, r *http.Request) {
	s.resolveWrite(w, r, true)
}

// cancelWrite handles POST /api/ai/write/cancel
func (s *Server) cancelWrite(w http.ResponseWriter, r *http.Request) {
	s.resolveWrite(w, r, false)
}

func (s *Server) resolveWrite(w http.ResponseWriter, r *http.Request, confirm bool) {
	var req writeRequest
	if err := decodeJSON(r, &req); err != nil || req.ConfirmationToken == "" {
		writeError(w, http.StatusBadRequest, "confirmationToken is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.confirms[req.ConfirmationToken]
	delete(s.confirms, req.ConfirmationToken)
	if !ok || !s.now().Before(p.expires) {
		writeError(w, http.StatusGone, "confirmation token expired")
		return
	}

	text := "Write cancelled."
	if confirm {
		text = "Executed: " + p.sql
	}
	if note := strings.TrimSpace(req.SupplementaryInput); note != "" {
		text += " (" + note + ")"
	}
	if c, found := s.conversations[p.conversationID]; found {
		s.appendRowLocked(c, chat.RoleAssistant, text, []chat.Block{{Type: chat.BlockText, Data: text}})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "confirmed": confirm})
}
