// Package archive keeps a local copy of finished chat turns so history
// can be read without the backend.
//
// Design decisions:
//   - One row per message, assistant turns included as they finished.
//     Reading back goes through chat.MergeTurns exactly like the
//     history endpoint, so both paths render the same way.
//   - Blocks are stored as JSON (JSONB on postgres, TEXT on sqlite).
//   - Two drivers share one Store interface: postgres through pgxpool
//     (optionally through the SSH tunnel) and sqlite through
//     database/sql.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/config"
)

// Store persists turns. Implementations are safe for concurrent use.
type Store interface {
	// SaveTurn appends messages to a conversation, creating it if
	// needed. A non-empty title replaces the stored one; an empty title
	// keeps it, or for a new conversation falls back to the first user
	// message.
	SaveTurn(ctx context.Context, conversationID int64, title string, messages []chat.Message) error

	// Messages returns the stored rows of a conversation in order.
	Messages(ctx context.Context, conversationID int64) ([]chat.Message, error)

	// Conversations lists archived conversations, most recently updated
	// first.
	Conversations(ctx context.Context) ([]chat.Conversation, error)

	Close() error
}

// Open connects the configured driver. It returns (nil, nil) when the
// archive is disabled.
func Open(ctx context.Context, cfg *config.AppConfig) (Store, error) {
	switch cfg.Archive.Driver {
	case "":
		return nil, nil
	case "postgres", "pgx":
		s, err := OpenPostgres(ctx, cfg.Archive.DSN, cfg.Tunnel)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "sqlite3":
		s, err := OpenSqlite(cfg.Archive.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", cfg.Archive.Driver)
	}
}

func encodeBlocks(blocks []chat.Block) ([]byte, error) {
	if blocks == nil {
		blocks = []chat.Block{}
	}
	return json.Marshal(blocks)
}

func decodeBlocks(data []byte) ([]chat.Block, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blocks []chat.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return blocks, nil
}

// newTitle is the title stored when a conversation is first archived.
func newTitle(title string, messages []chat.Message) string {
	if title != "" {
		return title
	}
	for _, m := range messages {
		if m.Role == chat.RoleUser {
			return chat.Preview(m.Content, 40)
		}
	}
	return ""
}
