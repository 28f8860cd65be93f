// Package sqlite is a single-file store for local runs and tests. It
// implements the same contract as the Postgres store.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/store"
)

// foldFunc is the SQL name of the Unicode case fold used by title search.
// SQLite's own LIKE and lower() only fold ASCII.
const foldFunc = "historico_fold"

func init() {
	gosqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, func(_ *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return fold(v), nil
		case []byte:
			return fold(string(v)), nil
		default:
			return v, nil
		}
	})
}

func fold(s string) string {
	return cases.Fold().String(s)
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; one connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	password   TEXT NOT NULL,
	user_type  TEXT NOT NULL DEFAULT 'user',
	status     TEXT NOT NULL DEFAULT 'active',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	import_id  TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS conversations_user_id_idx ON conversations (user_id);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	"timestamp"     TEXT NOT NULL,
	sender          TEXT NOT NULL,
	content         TEXT NOT NULL,
	from_me         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS messages_conversation_id_idx ON messages (conversation_id);
`

// CreateUser inserts a user row. Accounts are normally provisioned outside
// this service; local runs and tests seed them here.
func (s *Store) CreateUser(ctx context.Context, u *chatlog.User) error {
	if u.UserType == "" {
		u.UserType = "user"
	}
	if u.Status == "" {
		u.Status = "active"
	}
	u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, user_type, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.Password, u.UserType, u.Status, u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*chatlog.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, user_type, status, created_at
		FROM users WHERE id = ?`, id)

	var (
		u       chatlog.User
		created int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.UserType, &u.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chatlog.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return &u, nil
}

// WithImportTx runs fn inside one transaction, committing only when fn
// returns nil.
func (s *Store) WithImportTx(ctx context.Context, fn func(tx chatlog.ImportWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(importTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type importTx struct {
	tx *sql.Tx
}

func (t importTx) InsertConversation(ctx context.Context, c *chatlog.Conversation) error {
	c.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO conversations (title, user_id, import_id, created_at)
		VALUES (?, ?, ?, ?)`,
		c.Title, c.UserID, c.ImportID.String(), c.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (t importTx) InsertMessage(ctx context.Context, m *chatlog.Message) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, "timestamp", sender, content, from_me)
		VALUES (?, ?, ?, ?, ?)`,
		m.ConversationID, m.Timestamp, m.Sender, m.Content, m.FromMe,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ListConversations returns the user's conversations in creation order with
// their messages. The title filter matches case-insensitively, Unicode included.
func (s *Store) ListConversations(ctx context.Context, userID int64, titleFilter string) ([]chatlog.Conversation, error) {
	filter := ""
	args := []any{userID}
	if titleFilter != "" {
		filter = ` AND ` + foldFunc + `(c.title) LIKE ? ESCAPE '\'`
		args = append(args, store.ContainsPattern(fold(titleFilter)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.user_id, c.import_id, c.created_at
		FROM conversations c
		WHERE c.user_id = ?`+filter+`
		ORDER BY c.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	convs := []chatlog.Conversation{}
	byID := make(map[int64]int)
	for rows.Next() {
		var (
			c        chatlog.Conversation
			importID string
			created  int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.UserID, &importID, &created); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if c.ImportID, err = uuid.Parse(importID); err != nil {
			return nil, fmt.Errorf("parse import id: %w", err)
		}
		c.CreatedAt = time.UnixMilli(created).UTC()
		c.Messages = []chatlog.Message{}
		byID[c.ID] = len(convs)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return convs, nil
	}

	msgRows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m."timestamp", m.sender, m.content, m.from_me
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = ?`+filter+`
		ORDER BY m.conversation_id, m.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var m chatlog.Message
		if err := msgRows.Scan(&m.ID, &m.ConversationID, &m.Timestamp, &m.Sender, &m.Content, &m.FromMe); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if i, ok := byID[m.ConversationID]; ok {
			convs[i].Messages = append(convs[i].Messages, m)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}
	return convs, nil
}

// CountConversations returns how many conversations the user owns.
func (s *Store) CountConversations(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM conversations WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// DeleteConversation removes a conversation owned by userID and, through the
// foreign key cascade, its messages.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n == 0 {
		return chatlog.ErrConversationNotFound
	}
	return nil
}
