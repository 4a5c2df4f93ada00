package chat

import (
	"fmt"

	"github.com/DachengChen/paiconsole/chat/payload"
)

// TodoBoard says where each todo list is drawn and what it shows.
// A list stays under the message where its todoId first appeared, but
// always shows the newest snapshot seen for that id.
type TodoBoard struct {
	anchors map[int][]string
	latest  map[string]payload.TodoList
}

// PlaceTodos scans finished todo tool runs across messages, in order.
// Legacy lists without an id are anchored where they occur.
func PlaceTodos(messages []Message, reg *payload.Registry) TodoBoard {
	if reg == nil {
		reg = payload.DefaultRegistry()
	}
	board := TodoBoard{
		anchors: make(map[int][]string),
		latest:  make(map[string]payload.TodoList),
	}
	builder := NewSegmentBuilder(reg)

	for i, m := range messages {
		if m.Role != RoleAssistant {
			continue
		}
		for j, seg := range builder.Build(m.Blocks, false) {
			if seg.Kind != SegmentToolRun || seg.Pending || reg.KindOf(seg.ToolName) != payload.KindTodo {
				continue
			}
			list, ok := payload.ParseTodo(seg.ResponseData)
			if !ok {
				continue
			}
			key := "id:" + list.TodoID
			if list.TodoID == "" {
				key = fmt.Sprintf("legacy:%d:%d", i, j)
			}
			if _, seen := board.latest[key]; !seen {
				board.anchors[i] = append(board.anchors[i], key)
			}
			board.latest[key] = list
		}
	}
	return board
}

// At returns the lists anchored at message index i, newest snapshots.
func (b TodoBoard) At(i int) []payload.TodoList {
	keys := b.anchors[i]
	if len(keys) == 0 {
		return nil
	}
	lists := make([]payload.TodoList, 0, len(keys))
	for _, k := range keys {
		lists = append(lists, b.latest[k])
	}
	return lists
}

// Len returns the number of distinct lists on the board.
func (b TodoBoard) Len() int {
	return len(b.latest)
}
