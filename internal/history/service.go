// Package history imports exported chat logs into per-user conversations
// and serves them back.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/csvrows"
	"github.com/MikeSquared-Agency/historico/internal/hermes"
	"github.com/MikeSquared-Agency/historico/internal/metrics"
)

// Store is the persistence contract the service needs. Implementations
// must report a missing user as chatlog.ErrUserNotFound and a missing or
// foreign conversation as chatlog.ErrConversationNotFound.
type Store interface {
	GetUser(ctx context.Context, id int64) (*chatlog.User, error)
	WithImportTx(ctx context.Context, fn func(tx chatlog.ImportWriter) error) error
	ListConversations(ctx context.Context, userID int64, titleFilter string) ([]chatlog.Conversation, error)
	CountConversations(ctx context.Context, userID int64) (int, error)
	DeleteConversation(ctx context.Context, userID, conversationID int64) error
}

// Publisher delivers domain events. *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// ImportResult acknowledges a committed import batch.
type ImportResult struct {
	ImportID      uuid.UUID `json:"import_id"`
	Conversations int       `json:"conversations"`
	Messages      int       `json:"messages"`
	SkippedRows   int       `json:"skipped_rows"`
}

type Service struct {
	store  Store
	events Publisher
	logger *slog.Logger
}

// NewService wires the service. events may be nil.
func NewService(store Store, events Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, events: events, logger: logger}
}

// Import parses src as a CSV chat export and stores its conversations for
// userID in a single transaction. source labels the origin in events and logs.
func (s *Service) Import(ctx context.Context, userID int64, src io.Reader, source string) (*ImportResult, error) {
	start := time.Now()
	res, err := s.importBatch(ctx, userID, src)

	var convs, msgs int
	if res != nil {
		convs, msgs = res.Conversations, res.Messages
	}
	metrics.RecordImport(importStatus(err), convs, msgs, time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("import failed", "user_id", userID, "source", source, "error", err)
		return nil, err
	}

	s.logger.Info("import committed",
		"import_id", res.ImportID,
		"user_id", userID,
		"source", source,
		"conversations", res.Conversations,
		"messages", res.Messages,
		"skipped_rows", res.SkippedRows,
	)
	s.publish(hermes.SubjectImportCompleted, hermes.ImportCompleted{
		ImportID:      res.ImportID.String(),
		UserID:        userID,
		Source:        source,
		Conversations: res.Conversations,
		Messages:      res.Messages,
		SkippedRows:   res.SkippedRows,
		Timestamp:     time.Now().UTC(),
	})
	return res, nil
}

func (s *Service) importBatch(ctx context.Context, userID int64, src io.Reader) (*ImportResult, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	batch, err := Group(csvrows.NewReader(src).All())
	if err != nil {
		return nil, err
	}

	importID := uuid.New()
	if err := s.persist(ctx, userID, importID, batch); err != nil {
		return nil, err
	}

	return &ImportResult{
		ImportID:      importID,
		Conversations: len(batch.Conversations),
		Messages:      batch.Messages(),
		SkippedRows:   batch.SkippedRows,
	}, nil
}

// persist writes every conversation, then its messages, inside one
// transaction. Any failure leaves nothing behind.
func (s *Service) persist(ctx context.Context, userID int64, importID uuid.UUID, batch *Batch) error {
	err := s.store.WithImportTx(ctx, func(tx chatlog.ImportWriter) error {
		for i := range batch.Conversations {
			conv := &batch.Conversations[i]
			conv.UserID = userID
			conv.ImportID = importID
			if err := tx.InsertConversation(ctx, conv); err != nil {
				return &chatlog.PersistenceError{Op: "conversation " + conv.Title, Err: err}
			}
			for j := range conv.Messages {
				msg := &conv.Messages[j]
				msg.ConversationID = conv.ID
				if err := tx.InsertMessage(ctx, msg); err != nil {
					return &chatlog.PersistenceError{Op: "message", Err: err}
				}
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var pe *chatlog.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &chatlog.PersistenceError{Op: "import", Err: err}
}

// CheckUser reports chatlog.ErrUserNotFound when userID has no account.
func (s *Service) CheckUser(ctx context.Context, userID int64) error {
	_, err := s.store.GetUser(ctx, userID)
	return err
}

// List returns every conversation owned by userID with its messages.
func (s *Service) List(ctx context.Context, userID int64) ([]chatlog.Conversation, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversations(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Search returns the user's conversations whose title contains query,
// ignoring case.
func (s *Service) Search(ctx context.Context, userID int64, query string) ([]chatlog.Conversation, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversations(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return convs, nil
}

// Count returns how many conversations userID owns.
func (s *Service) Count(ctx context.Context, userID int64) (int, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	n, err := s.store.CountConversations(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// Delete removes one of the user's conversations together with its messages.
func (s *Service) Delete(ctx context.Context, userID, conversationID int64) error {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, userID, conversationID); err != nil {
		if errors.Is(err, chatlog.ErrConversationNotFound) {
			return err
		}
		return &chatlog.PersistenceError{Op: "delete conversation", Err: err}
	}

	s.logger.Info("conversation deleted", "user_id", userID, "conversation_id", conversationID)
	s.publish(hermes.SubjectConversationDeleted, hermes.ConversationDeleted{
		ConversationID: conversationID,
		UserID:         userID,
		Timestamp:      time.Now().UTC(),
	})
	return nil
}

func (s *Service) publish(subject string, evt any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(subject, evt); err != nil {
		s.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func importStatus(err error) string {
	var (
		pe *chatlog.PersistenceError
		de *csvrows.DecodeError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, chatlog.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, csvrows.ErrEmptyInput), errors.As(err, &de):
		return "decode_error"
	case errors.As(err, &pe):
		return "persistence_error"
	default:
		return "error"
	}
}
