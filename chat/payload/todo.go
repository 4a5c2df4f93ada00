// Package payload recognizes structured shapes inside tool results.
//
// Design decisions:
//   - Every recognizer is a pure parse attempt returning (value, ok).
//     Nothing here panics or returns an error: a payload that does not
//     fit is simply not that kind, and the caller shows the raw text.
//   - Shape probing uses gjson so the legacy and current layouts can be
//     told apart without decoding into throwaway maps.
//   - Which recognizer applies is decided by tool name (Registry), not by
//     trying all of them.
package payload

import (
	"strings"

	"github.com/tidwall/gjson"
)

// TodoStatus is the normalized state of a todo item.
type TodoStatus string

const (
	StatusNotStarted TodoStatus = "NOT_STARTED"
	StatusInProgress TodoStatus = "IN_PROGRESS"
	StatusPaused     TodoStatus = "PAUSED"
	StatusCompleted  TodoStatus = "COMPLETED"
	StatusUndefined  TodoStatus = "undefined"
)

// TodoItem is one entry of a todo list.
type TodoItem struct {
	Title       string
	Description string
	Status      TodoStatus
	Priority    string
}

// TodoList is a recognized todo payload. Legacy payloads (a bare array)
// have no TodoID.
type TodoList struct {
	TodoID string
	Items  []TodoItem
}

// ParseTodo accepts either a bare array of items or {todoId, items}.
func ParseTodo(raw string) (TodoList, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return TodoList{}, false
	}

	root := gjson.Parse(raw)
	var itemsNode gjson.Result
	var list TodoList
	switch {
	case root.IsArray():
		itemsNode = root
	case root.IsObject():
		itemsNode = root.Get("items")
		if !itemsNode.IsArray() {
			return TodoList{}, false
		}
		if id := root.Get("todoId"); id.Exists() && id.Type != gjson.Null {
			list.TodoID = id.String()
		}
	default:
		return TodoList{}, false
	}

	ok := true
	itemsNode.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			ok = false
			return false
		}
		list.Items = append(list.Items, TodoItem{
			Title:       stringField(item, "title"),
			Description: stringField(item, "description"),
			Status:      NormalizeStatus(stringField(item, "status")),
			Priority:    stringField(item, "priority"),
		})
		return true
	})
	if !ok {
		return TodoList{}, false
	}
	return list, true
}

// NormalizeStatus maps loose spellings ("in-progress", "completed") onto
// the closed status set. Anything else becomes StatusUndefined.
func NormalizeStatus(s string) TodoStatus {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch TodoStatus(s) {
	case StatusNotStarted, StatusInProgress, StatusPaused, StatusCompleted:
		return TodoStatus(s)
	}
	return StatusUndefined
}

// StatusIcon returns the glyph shown next to an item.
func StatusIcon(s TodoStatus) string {
	switch s {
	case StatusInProgress:
		return "◐"
	case StatusPaused:
		return "⏸"
	case StatusCompleted:
		return "✔"
	default:
		return "○"
	}
}

// Done counts completed items.
func (l TodoList) Done() int {
	n := 0
	for _, it := range l.Items {
		if it.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// stringField returns a string field, or "" when absent or not a string.
func stringField(r gjson.Result, key string) string {
	v := r.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
