package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/config"
)

func sampleTurn(t *testing.T) []chat.Message {
	t.Helper()
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return []chat.Message{
		{ID: "u1", Role: chat.RoleUser, Content: "count users", Timestamp: ts},
		{ID: "a1", Role: chat.RoleAssistant, Content: "", Timestamp: ts, Blocks: []chat.Block{
			{Type: chat.BlockToolCall, Data: `{"id":"1","toolName":"run_sql","arguments":"{}"}`},
			{Type: chat.BlockToolResult, Data: `{"id":"1","toolName":"run_sql","result":"3"}`},
		}},
		{ID: "a2", Role: chat.RoleAssistant, Content: "There are 3.", Timestamp: ts, Blocks: []chat.Block{
			{Type: chat.BlockText, Data: "There are 3."},
			{Done: true},
		}},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.SaveTurn(ctx, 5, "New conversation", sampleTurn(t)); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}
	if err := s.SaveTurn(ctx, 5, "count users", []chat.Message{{ID: "u2", Role: chat.RoleUser, Content: "thanks"}}); err != nil {
		t.Fatalf("second SaveTurn: %v", err)
	}

	msgs, err := s.Messages(ctx, 5)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("rows = %d, want 4", len(msgs))
	}
	if msgs[0].Blocks != nil || msgs[0].Content != "count users" {
		t.Errorf("user row = %+v", msgs[0])
	}

	merged := chat.MergeTurns(msgs)
	if len(merged) != 3 {
		t.Fatalf("merged = %d messages", len(merged))
	}
	segs := chat.BuildSegments(merged[1].Blocks, true)
	if len(segs) != 2 || segs[0].Pending || segs[0].ResponseData != "3" || segs[1].Data != "There are 3." {
		t.Fatalf("segments = %+v", segs)
	}
	if merged[1].Content != "There are 3." || merged[1].ID != "a2" {
		t.Errorf("merged turn = %+v", merged[1])
	}

	convs, err := s.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != 5 || convs[0].Title != "count users" {
		t.Fatalf("conversations = %+v", convs)
	}

	// An empty title keeps the stored one; a new conversation without a
	// title is named after its first question.
	if err := s.SaveTurn(ctx, 5, "", []chat.Message{{ID: "u3", Role: chat.RoleUser, Content: "and admins?"}}); err != nil {
		t.Fatalf("SaveTurn without title: %v", err)
	}
	if err := s.SaveTurn(ctx, 6, "", []chat.Message{{ID: "u4", Role: chat.RoleUser, Content: "list tables"}}); err != nil {
		t.Fatalf("SaveTurn new conversation: %v", err)
	}
	convs, err = s.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	titles := map[int64]string{}
	for _, c := range convs {
		titles[c.ID] = c.Title
	}
	if titles[5] != "count users" || titles[6] != "list tables" {
		t.Fatalf("titles = %v", titles)
	}

	empty, err := s.Messages(ctx, 404)
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown conversation = %+v, %v", empty, err)
	}
}

func TestSqliteStore(t *testing.T) {
	s, err := OpenSqlite(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("OpenSqlite: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PAICONSOLE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PAICONSOLE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn, config.TunnelConfig{})
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer s.Close()
	if _, err := s.pool.Exec(ctx, `TRUNCATE paiconsole_conversations CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, s)
}

func TestOpenSelectsDriver(t *testing.T) {
	cfg := config.DefaultAppConfig()
	s, err := Open(context.Background(), cfg)
	if err != nil || s != nil {
		t.Fatalf("disabled archive = %v, %v", s, err)
	}

	cfg.Archive = config.ArchiveConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "a.db")}
	s, err = Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	s.Close()

	cfg.Archive.Driver = "mongo"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
