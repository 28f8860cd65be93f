package history

import (
	"iter"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/csvrows"
)

// Batch is the in-memory result of grouping one export, ready to persist.
type Batch struct {
	Conversations []chatlog.Conversation
	Rows          int // data rows read
	SkippedRows   int // rows that contributed no message
	EmptyChats    int // chat ids seen only on skipped rows
}

// Messages returns the number of messages across all conversations.
func (b *Batch) Messages() int {
	n := 0
	for _, c := range b.Conversations {
		n += len(c.Messages)
	}
	return n
}

// Group folds rows into conversations keyed by chat_id, keeping first-seen
// order for conversations and row order for messages. Chat ids that never
// produce a message are left out of the batch. The first row error aborts
// grouping.
func Group(rows iter.Seq2[csvrows.Row, error]) (*Batch, error) {
	batch := &Batch{}
	index := make(map[string]int)
	var convs []chatlog.Conversation

	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		batch.Rows++

		chatID := row.Value(csvrows.ColChatID, chatlog.DefaultChatID)
		i, seen := index[chatID]
		if !seen {
			i = len(convs)
			index[chatID] = i
			convs = append(convs, chatlog.Conversation{Title: chatlog.TitleFor(chatID)})
		}

		msg, ok := deriveMessage(row)
		if !ok {
			batch.SkippedRows++
			continue
		}
		convs[i].Messages = append(convs[i].Messages, msg)
	}

	for _, c := range convs {
		if len(c.Messages) == 0 {
			batch.EmptyChats++
			continue
		}
		batch.Conversations = append(batch.Conversations, c)
	}
	return batch, nil
}

// deriveMessage maps a row to a message. Only non-empty text rows qualify;
// media and system rows are skipped.
func deriveMessage(row csvrows.Row) (chatlog.Message, bool) {
	typ, _ := row.Get(csvrows.ColType)
	text, _ := row.Get(csvrows.ColText)
	if typ != "text" || text == "" {
		return chatlog.Message{}, false
	}

	fromMe, _ := row.Get(csvrows.ColFromMe)
	msg := chatlog.Message{
		Timestamp: row.Value(csvrows.ColMessageCreated, ""),
		Content:   text,
		FromMe:    fromMe == "1",
	}
	if msg.FromMe {
		msg.Sender = chatlog.SenderYou
	} else {
		msg.Sender = row.Value(csvrows.ColMobileNumber, chatlog.SenderUnknown)
	}
	return msg, true
}
