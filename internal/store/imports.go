package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
)

// WithImportTx runs fn inside one transaction. The transaction commits only
// when fn returns nil; otherwise every insert made through tx is rolled back
// and fn's error is returned unchanged.
func (s *Store) WithImportTx(ctx context.Context, fn func(tx chatlog.ImportWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(importTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type importTx struct {
	tx pgx.Tx
}

func (t importTx) InsertConversation(ctx context.Context, c *chatlog.Conversation) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO conversations (title, user_id, import_id, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, created_at`,
		c.Title, c.UserID, c.ImportID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (t importTx) InsertMessage(ctx context.Context, m *chatlog.Message) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, "timestamp", sender, content, from_me)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		m.ConversationID, m.Timestamp, m.Sender, m.Content, m.FromMe,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
