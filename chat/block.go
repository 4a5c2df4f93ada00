// Package chat assembles the assistant's streamed blocks into a
// displayable transcript.
//
// Design decisions:
//   - Blocks are values and are never mutated after parsing. Derived
//     views (segments, todo placement, prompts) are recomputed from the
//     block lists on every render instead of being stored.
//   - The Accumulator is a plain state machine with no I/O; Runner wires
//     it to an HTTP stream. This keeps the ordering rules testable
//     without a network.
//   - Published transcripts are copy-on-write: a []Message handed out
//     once is never written again, so a renderer may hold it while the
//     next block is applied.
//   - Malformed input is dropped where it is found (bad frame, bad tool
//     payload). Only transport failures reach the caller.
package chat

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// BlockType discriminates streamed blocks. Unknown types pass through
// untouched.
type BlockType string

const (
	BlockText       BlockType = "TEXT"
	BlockThought    BlockType = "THOUGHT"
	BlockToolCall   BlockType = "TOOL_CALL"
	BlockToolResult BlockType = "TOOL_RESULT"
)

// IsContent reports whether blocks of this type add to Message.Content.
func (t BlockType) IsContent() bool {
	return t == BlockText || t == BlockThought
}

// Block is one unit received from the stream.
type Block struct {
	Type           BlockType `json:"type,omitempty"`
	Data           string    `json:"data,omitempty"`
	ConversationID *int64    `json:"conversationId,omitempty"`
	Done           bool      `json:"done,omitempty"`
}

// ParseBlock decodes one SSE data payload. It returns false for
// anything that is not a JSON object carrying a type, a done marker or
// a conversation id; such records are skipped by the stream consumer.
func ParseBlock(payload string) (Block, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" || !gjson.Valid(payload) {
		return Block{}, false
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return Block{}, false
	}

	b := Block{
		Type: BlockType(root.Get("type").String()),
		Data: rawOrString(root.Get("data")),
		Done: root.Get("done").Type == gjson.True,
	}
	if id, ok := int64Field(root.Get("conversationId")); ok {
		b.ConversationID = &id
	}
	if b.Type == "" && !b.Done && b.ConversationID == nil {
		return Block{}, false
	}
	return b, true
}

// ToolCallData is the payload of a TOOL_CALL block.
type ToolCallData struct {
	ID        string
	ToolName  string
	Arguments string
}

// ToolResultData is the payload of a TOOL_RESULT block.
type ToolResultData struct {
	ID       string
	ToolName string
	Result   string
	Error    string
}

// DecodeToolCall reads a TOOL_CALL data field. Ids given as numbers are
// stringified; an absent id stays empty and cannot be paired.
func DecodeToolCall(data string) (ToolCallData, bool) {
	root, ok := parseObject(data)
	if !ok {
		return ToolCallData{}, false
	}
	return ToolCallData{
		ID:        idField(root.Get("id")),
		ToolName:  root.Get("toolName").String(),
		Arguments: rawOrString(root.Get("arguments")),
	}, true
}

// DecodeToolResult reads a TOOL_RESULT data field.
func DecodeToolResult(data string) (ToolResultData, bool) {
	root, ok := parseObject(data)
	if !ok {
		return ToolResultData{}, false
	}
	return ToolResultData{
		ID:       idField(root.Get("id")),
		ToolName: root.Get("toolName").String(),
		Result:   rawOrString(root.Get("result")),
		Error:    rawOrString(root.Get("error")),
	}, true
}

func parseObject(data string) (gjson.Result, bool) {
	data = strings.TrimSpace(data)
	if data == "" || !gjson.Valid(data) {
		return gjson.Result{}, false
	}
	root := gjson.Parse(data)
	return root, root.IsObject()
}

// rawOrString returns string values unquoted and any other JSON value as
// its raw text. Null and missing values are empty.
func rawOrString(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Null:
		return ""
	default:
		return r.Raw
	}
}

func idField(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

func int64Field(r gjson.Result) (int64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Int(), true
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(r.Str), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
