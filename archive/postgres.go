package archive

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/config"
	"github.com/DachengChen/paiconsole/ssh"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore archives turns in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	tunnel *ssh.Tunnel
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS paiconsole_conversations (
		id BIGINT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS paiconsole_messages (
		seq BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES paiconsole_conversations(id) ON DELETE CASCADE,
		message_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		blocks JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS paiconsole_messages_conversation
		ON paiconsole_messages (conversation_id, seq);`

// OpenPostgres connects to dsn, optionally through an SSH tunnel, and
// creates the archive tables.
func OpenPostgres(ctx context.Context, dsn string, tunnelCfg config.TunnelConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse archive dsn: %w", err)
	}

	s := &PostgresStore{}

	// If an SSH tunnel is requested, set it up first and point pgx at the
	// local end.
	if tunnelCfg.Enabled {
		remote := net.JoinHostPort(poolCfg.ConnConfig.Host, strconv.Itoa(int(poolCfg.ConnConfig.Port)))
		tunnel, err := ssh.NewTunnel(tunnelCfg, remote)
		if err != nil {
			return nil, fmt.Errorf("ssh tunnel: %w", err)
		}
		local, err := tunnel.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("ssh tunnel start: %w", err)
		}
		s.tunnel = tunnel
		poolCfg.ConnConfig.Host = local.Host
		poolCfg.ConnConfig.Port = uint16(local.Port)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("pgx connect: %w", err)
	}
	s.pool = pool

	if err := pool.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		s.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// Close shuts down the pool and SSH tunnel.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.tunnel != nil {
		s.tunnel.Stop()
	}
	return nil
}

// SaveTurn appends messages in one transaction.
func (s *PostgresStore) SaveTurn(ctx context.Context, conversationID int64, title string, messages []chat.Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO paiconsole_conversations (id, title) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET
			   title = COALESCE(NULLIF($3::text, ''), paiconsole_conversations.title),
			   updated_at = now()`,
			conversationID, newTitle(title, messages), title,
		)
		if err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range messages {
			blocks, err := encodeBlocks(m.Blocks)
			if err != nil {
				return fmt.Errorf("encode blocks: %w", err)
			}
			ts := m.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			batch.Queue(
				`INSERT INTO paiconsole_messages (conversation_id, message_id, role, content, blocks, created_at)
				 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
				conversationID, m.ID, string(m.Role), m.Content, string(blocks), ts,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
		return nil
	})
}

// Messages returns a conversation's rows in insertion order.
func (s *PostgresStore) Messages(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, role, content, blocks::text, created_at
		 FROM paiconsole_messages WHERE conversation_id = $1 ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			m      chat.Message
			role   string
			blocks string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &blocks, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = chat.Role(role)
		if m.Blocks, err = decodeBlocks([]byte(blocks)); err != nil {
			return nil, fmt.Errorf("decode blocks of %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Conversations lists archived conversations.
func (s *PostgresStore) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.title, c.created_at, c.updated_at,
		        COALESCE(SUM(length(m.content)), 0)::bigint / 4
		 FROM paiconsole_conversations c
		 LEFT JOIN paiconsole_messages m ON m.conversation_id = c.id
		 GROUP BY c.id ORDER BY c.updated_at DESC, c.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []chat.Conversation
	for rows.Next() {
		var c chat.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
