package devserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/payload"
	"github.com/google/uuid"
)

// Turn is the input to a Script.
type Turn struct {
	ConversationID int64
	Message        string
	ConnectionID   int64
	DatabaseName   string

	// ConfirmToken is reserved for a write confirmation the script may
	// emit. The server registers it only if it appears in a result.
	ConfirmToken string
}

// Script produces the assistant blocks for one turn, in stream order.
// The server adds the conversation id and the done marker.
type Script func(t Turn) []chat.Block

// DefaultScript answers every message with a short plan (a todo list),
// one tool run and a streamed text answer. Messages mentioning update or
// delete get an execute_write_sql run whose result asks for
// confirmation; messages mentioning "choose" get a question.
func DefaultScript(t Turn) []chat.Block {
	lower := strings.ToLower(t.Message)
	todoID := fmt.Sprintf("plan-%d", t.ConversationID)

	blocks := []chat.Block{
		{Type: chat.BlockThought, Data: "Reading the request. "},
		{Type: chat.BlockThought, Data: "Planning the steps."},
	}
	blocks = append(blocks, toolRun("1", "todo_write", `{}`, todoJSON(todoID, payload.StatusInProgress))...)

	switch {
	case strings.Contains(lower, "choose"):
		blocks = append(blocks, toolRun("2", "ask_user_question", `{}`, mustJSON(map[string]any{
			"questions": []map[string]any{
				{"question": "Which schema should I use?", "options": []string{"public", "sales", "audit"}},
				{"question": "Include archived rows?", "options": []string{"yes", "no"}},
			},
		}))...)
		blocks = append(blocks, textChunks("I need two answers before I continue.")...)
		return blocks

	case strings.Contains(lower, "update") || strings.Contains(lower, "delete"):
		sql := "UPDATE users SET active = false WHERE last_login < now() - interval '1 year'"
		if strings.Contains(lower, "delete") {
			sql = "DELETE FROM sessions WHERE expires_at < now()"
		}
		blocks = append(blocks, toolRun("2", "execute_write_sql", mustJSON(map[string]string{"sql": sql}), mustJSON(map[string]any{
			"confirmationToken": t.ConfirmToken,
			"sqlPreview":        sql,
			"explanation":       "This statement changes data and needs your approval.",
			"connectionId":      t.ConnectionID,
			"databaseName":      t.DatabaseName,
			"expiresInSeconds":  payload.DefaultConfirmTTL,
		}))...)
		blocks = append(blocks, textChunks("The statement is ready. Confirm to run it.")...)

	default:
		blocks = append(blocks, toolRun("2", "run_sql", `{"sql":"SELECT count(*) FROM users"}`, `[{"count":3}]`)...)
		blocks = append(blocks, textChunks(fmt.Sprintf("You asked: %q. There are **3** users.", t.Message))...)
	}

	blocks = append(blocks, toolRun("3", "todo_write", `{}`, todoJSON(todoID, payload.StatusCompleted))...)
	return blocks
}

func toolRun(id, name, args, result string) []chat.Block {
	return []chat.Block{
		{Type: chat.BlockToolCall, Data: mustJSON(map[string]string{"id": id, "toolName": name, "arguments": args})},
		{Type: chat.BlockToolResult, Data: mustJSON(map[string]string{"id": id, "toolName": name, "result": result})},
	}
}

func todoJSON(id string, status payload.TodoStatus) string {
	first := payload.StatusCompleted
	if status != payload.StatusCompleted {
		first = payload.StatusInProgress
		status = payload.StatusNotStarted
	}
	return mustJSON(map[string]any{
		"todoId": id,
		"items": []map[string]string{
			{"title": "Inspect schema", "status": string(payload.StatusCompleted)},
			{"title": "Run query", "status": string(first)},
			{"title": "Summarize", "status": string(status)},
		},
	})
}

// textChunks splits text into word-sized TEXT blocks.
func textChunks(text string) []chat.Block {
	var out []chat.Block
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		out = append(out, chat.Block{Type: chat.BlockText, Data: w})
	}
	return out
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func newConfirmToken() string {
	return "cfm-" + uuid.NewString()
}
