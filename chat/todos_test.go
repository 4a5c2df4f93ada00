package chat

import "testing"

func todoRun(t *testing.T, id, body string) []Block {
	t.Helper()
	return []Block{
		call(t, id, "todo_write", "{}"),
		result(t, id, "todo_write", body),
	}
}

func TestPlaceTodosAnchorsFirstSeenShowsLatest(t *testing.T) {
	first := `{"todoId":"T","items":[{"title":"a","status":"IN_PROGRESS"}]}`
	second := `{"todoId":"T","items":[{"title":"a","status":"COMPLETED"},{"title":"b","status":"NOT_STARTED"}]}`

	msgs := []Message{
		user("u1", "start"),
		assistant("a1", todoRun(t, "1", first)...),
		user("u2", "continue"),
		assistant("a2", todoRun(t, "2", second)...),
	}
	board := PlaceTodos(msgs, nil)

	if board.Len() != 1 {
		t.Fatalf("Len = %d, want 1", board.Len())
	}
	if got := board.At(3); got != nil {
		t.Fatalf("list drawn again at later message: %+v", got)
	}
	lists := board.At(1)
	if len(lists) != 1 {
		t.Fatalf("lists at anchor = %+v", lists)
	}
	l := lists[0]
	if len(l.Items) != 2 || l.Items[0].Status != "COMPLETED" {
		t.Fatalf("anchor does not show latest snapshot: %+v", l)
	}
	if l.Done() != 1 {
		t.Errorf("Done = %d, want 1", l.Done())
	}
}

func TestPlaceTodosLegacyAndDistinctIDs(t *testing.T) {
	legacy := `[{"title":"x","status":"in-progress"}]`
	other := `{"todoId":"U","items":[{"title":"y"}]}`

	blocks := append(todoRun(t, "1", legacy), todoRun(t, "2", other)...)
	blocks = append(blocks, todoRun(t, "3", legacy)...)
	board := PlaceTodos([]Message{assistant("a1", blocks...)}, nil)

	if board.Len() != 3 {
		t.Fatalf("Len = %d, want 3", board.Len())
	}
	lists := board.At(0)
	if len(lists) != 3 || lists[1].TodoID != "U" {
		t.Fatalf("lists = %+v", lists)
	}
	if lists[0].Items[0].Status != "IN_PROGRESS" {
		t.Errorf("status not normalized: %q", lists[0].Items[0].Status)
	}
}

func TestPlaceTodosIgnoresPendingAndOtherTools(t *testing.T) {
	msgs := []Message{assistant("a1",
		call(t, "1", "todo_write", "{}"),
		call(t, "2", "run_sql", "{}"),
		result(t, "2", "run_sql", `{"todoId":"T","items":[]}`),
	)}
	if n := PlaceTodos(msgs, nil).Len(); n != 0 {
		t.Fatalf("Len = %d, want 0", n)
	}
}
