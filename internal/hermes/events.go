package hermes

import (
	"encoding/json"
	"fmt"
	"time"
)

// Subjects published by historico.
const (
	SubjectImportCompleted     = "historico.import.completed"
	SubjectConversationDeleted = "historico.conversation.deleted"
	SubjectRegistered          = "historico.service.registered"
)

// ImportCompleted is emitted after an import batch has been committed.
type ImportCompleted struct {
	ImportID      string    `json:"import_id"`
	UserID        int64     `json:"user_id"`
	Source        string    `json:"source"`
	Conversations int       `json:"conversations"`
	Messages      int       `json:"messages"`
	SkippedRows   int       `json:"skipped_rows"`
	Timestamp     time.Time `json:"timestamp"`
}

// ConversationDeleted is emitted after a conversation and its messages are removed.
type ConversationDeleted struct {
	ConversationID int64     `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// DecodeImportCompleted parses an import event payload.
func DecodeImportCompleted(data []byte) (ImportCompleted, error) {
	var evt ImportCompleted
	if err := json.Unmarshal(data, &evt); err != nil {
		return ImportCompleted{}, fmt.Errorf("decode %s: %w", SubjectImportCompleted, err)
	}
	if evt.ImportID == "" {
		return ImportCompleted{}, fmt.Errorf("decode %s: missing import_id", SubjectImportCompleted)
	}
	return evt, nil
}
