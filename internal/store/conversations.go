package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
)

// ListConversations returns the user's conversations in creation order with
// their messages attached. A non-empty titleFilter keeps only titles that
// contain it, ignoring case.
func (s *Store) ListConversations(ctx context.Context, userID int64, titleFilter string) ([]chatlog.Conversation, error) {
	query := `
		SELECT id, title, user_id, import_id, created_at
		FROM conversations
		WHERE user_id = $1`
	args := []any{userID}
	if titleFilter != "" {
		query += ` AND title ILIKE $2 ESCAPE '\'`
		args = append(args, ContainsPattern(titleFilter))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	convs := []chatlog.Conversation{}
	byID := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var c chatlog.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.UserID, &c.ImportID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Messages = []chatlog.Message{}
		byID[c.ID] = len(convs)
		ids = append(ids, c.ID)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return convs, nil
	}

	msgRows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, "timestamp", sender, content, from_me
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var m chatlog.Message
		if err := msgRows.Scan(&m.ID, &m.ConversationID, &m.Timestamp, &m.Sender, &m.Content, &m.FromMe); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		i := byID[m.ConversationID]
		convs[i].Messages = append(convs[i].Messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}
	return convs, nil
}

// CountConversations returns how many conversations the user owns.
func (s *Store) CountConversations(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM conversations WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// DeleteConversation removes a conversation owned by userID. Messages go
// with it through ON DELETE CASCADE.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chatlog.ErrConversationNotFound
	}
	return nil
}
