package chat

import (
	"reflect"
	"testing"
	"time"
)

func TestMergeTurnsFoldsAdjacentAssistants(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a1 := assistant("a1", text("thinking"), call(t, "1", "run_sql", "{}"))
	a1.Timestamp = t0
	a2 := assistant("a2", result(t, "1", "run_sql", "ok"))
	a2.Timestamp = t0.Add(time.Second)
	a3 := assistant("a3", text("Done."))
	a3.Content = "Done."

	got := MergeTurns([]Message{user("u", "q"), a1, a2, a3})
	if len(got) != 2 {
		t.Fatalf("messages = %+v", got)
	}
	m := got[1]
	if m.ID != "a3" {
		t.Errorf("id = %q, want a3", m.ID)
	}
	if !m.Timestamp.Equal(t0) {
		t.Errorf("timestamp = %v, want %v", m.Timestamp, t0)
	}
	if m.Content != "Done." {
		t.Errorf("content = %q", m.Content)
	}
	if len(m.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(m.Blocks))
	}

	segs := BuildSegments(m.Blocks, false)
	if len(segs) != 3 || segs[1].Pending || segs[1].ResponseData != "ok" {
		t.Fatalf("merged turn does not pair call and result: %+v", segs)
	}
}

func TestMergeTurnsKeepsLastNonEmptyContent(t *testing.T) {
	a1 := assistant("a1", text("first"))
	a2 := Message{ID: "a2", Role: RoleAssistant}
	got := MergeTurns([]Message{a1, a2})
	if len(got) != 1 || got[0].Content != "first" {
		t.Fatalf("merged = %+v", got)
	}
}

func TestMergeTurnsDoesNotTouchInput(t *testing.T) {
	a1 := assistant("a1", text("x"))
	a2 := assistant("a2", text("y"))
	in := []Message{a1, a2}
	MergeTurns(in)
	if len(in[0].Blocks) != 1 || in[0].ID != "a1" {
		t.Fatalf("input modified: %+v", in[0])
	}
}

func TestMergeTurnsIdempotent(t *testing.T) {
	inputs := [][]Message{
		{user("u1", "a"), assistant("a1", text("b")), user("u2", "c"), assistant("a2", text("d"))},
		{user("u1", "a"), assistant("a1", text("b")), assistant("a2", text("c")), user("u2", "d")},
		{user("u1", "a"), user("u2", "b")},
	}
	for i, in := range inputs {
		once := MergeTurns(in)
		twice := MergeTurns(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("case %d: merge not idempotent\nonce:  %+v\ntwice: %+v", i, once, twice)
		}
	}

	plain := inputs[0]
	if got := MergeTurns(plain); !reflect.DeepEqual(got, plain) {
		t.Errorf("list without adjacent assistants changed:\n%+v", got)
	}
}
