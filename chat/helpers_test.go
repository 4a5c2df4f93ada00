package chat

import (
	"encoding/json"
	"testing"
)

func text(s string) Block    { return Block{Type: BlockText, Data: s} }
func thought(s string) Block { return Block{Type: BlockThought, Data: s} }
func done() Block            { return Block{Done: true} }

func call(t *testing.T, id, tool, args string) Block {
	t.Helper()
	return Block{Type: BlockToolCall, Data: mustJSON(t, map[string]any{"id": id, "toolName": tool, "arguments": args})}
}

func result(t *testing.T, id, tool, res string) Block {
	t.Helper()
	return Block{Type: BlockToolResult, Data: mustJSON(t, map[string]any{"id": id, "toolName": tool, "result": res})}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func assistant(id string, blocks ...Block) Message {
	m := Message{ID: id, Role: RoleAssistant}
	for _, b := range blocks {
		m = m.withBlock(b)
	}
	return m
}

func user(id, content string) Message {
	return Message{ID: id, Role: RoleUser, Content: content}
}
