// Package chatlog holds the domain model shared by the import pipeline,
// the stores and the HTTP API.
package chatlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Display tokens used when deriving a message sender.
const (
	SenderYou     = "Você"
	SenderUnknown = "Desconhecido"
)

// DefaultChatID groups rows that carry no chat_id.
const DefaultChatID = "default"

// User owns conversations. Rows are managed outside this service.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	UserType  string    `json:"user_type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a titled thread owned by one user.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	UserID    int64     `json:"user_id"`
	ImportID  uuid.UUID `json:"import_id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Message is a single chat entry. Timestamp keeps the source formatting.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"-"`
	Timestamp      string `json:"timestamp"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
	FromMe         bool   `json:"fromMe"`
}

// TitleFor returns the conversation title derived from a source chat id.
func TitleFor(chatID string) string {
	return "Conversa " + chatID
}

// ImportWriter is the write side of an import transaction. Inserts assign
// the generated ID back onto the passed record.
type ImportWriter interface {
	InsertConversation(ctx context.Context, c *Conversation) error
	InsertMessage(ctx context.Context, m *Message) error
}
