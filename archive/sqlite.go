package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DachengChen/paiconsole/chat"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteTime = "2006-01-02T15:04:05.000000Z07:00"

// SqliteStore archives turns in a local SQLite file.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates the archive at path and runs migrations.
func OpenSqlite(path string) (*SqliteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite: empty path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			blocks TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS messages_conversation ON messages(conversation_id, seq);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SqliteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// SaveTurn appends messages in one transaction.
func (s *SqliteStore) SaveTurn(ctx context.Context, conversationID int64, title string, messages []chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(sqliteTime)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = COALESCE(NULLIF(?, ''), conversations.title),
		   updated_at = excluded.updated_at`,
		conversationID, newTitle(title, messages), now, now, title,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	for _, m := range messages {
		blocks, err := encodeBlocks(m.Blocks)
		if err != nil {
			return fmt.Errorf("encode blocks: %w", err)
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, message_id, role, content, blocks, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			conversationID, m.ID, string(m.Role), m.Content, string(blocks), ts.UTC().Format(sqliteTime),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

// Messages returns a conversation's rows in insertion order.
func (s *SqliteStore) Messages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, blocks, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			m       chat.Message
			role    string
			blocks  string
			created string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &blocks, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = chat.Role(role)
		if m.Blocks, err = decodeBlocks([]byte(blocks)); err != nil {
			return nil, fmt.Errorf("decode blocks of %s: %w", m.ID, err)
		}
		m.Timestamp, _ = time.Parse(sqliteTime, created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Conversations lists archived conversations.
func (s *SqliteStore) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.created_at, c.updated_at,
		        COALESCE(SUM(LENGTH(m.content)), 0)
		 FROM conversations c LEFT JOIN messages m ON m.conversation_id = c.id
		 GROUP BY c.id ORDER BY c.updated_at DESC, c.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []chat.Conversation
	for rows.Next() {
		var (
			c                chat.Conversation
			created, updated string
			chars            int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &created, &updated, &chars); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedAt, _ = time.Parse(sqliteTime, created)
		c.UpdatedAt, _ = time.Parse(sqliteTime, updated)
		c.TokenCount = chars / 4
		out = append(out, c)
	}
	return out, rows.Err()
}
