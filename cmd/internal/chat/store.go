package chat

import (
	"context"
	"time"
)

// Message is the canonical persisted chat message. ID and CreatedAt are
// assigned at persistence time; the body is immutable and only the Read flag
// ever flips afterwards.
type Message struct {
	ID             string
	SenderID       string
	SenderUsername string
	ReceiverID     string // empty when a user messages support generically
	Body           string
	IsFromAdmin    bool
	ConversationID string
	Read           bool
	CreatedAt      time.Time
}

// ConversationSummary is one row of the conversation listing aggregation.
// It has no stored identity; it is recomputed on demand.
//
// SenderID/SenderUsername identify the non-admin counterpart whenever the
// group contains at least one user message, falling back to the
// chronologically last sender otherwise.
type ConversationSummary struct {
	ConversationID  string
	LastMessage     string
	LastMessageTime time.Time
	SenderID        string
	SenderUsername  string
	UnreadCount     int
}

// AppendMessageInput describes a message append request.
type AppendMessageInput struct {
	SenderID       string
	SenderUsername string
	ReceiverID     string
	Body           string
	IsFromAdmin    bool
	ConversationID string
	Now            time.Time
}

// MessageStore is the durable conversation log.
//
// Requirements:
//   - Append assigns id + creation time and never mutates existing rows
//   - History returns the newest `limit` messages in ascending creation order
//   - MarkRead only affects rows where is_from_admin = false
//   - Deletes are scoped strictly by id / conversation id
//   - ListConversations yields one summary row per conversation id,
//     most-recently-active first
type MessageStore interface {
	Append(ctx context.Context, in AppendMessageInput) (Message, error)
	History(ctx context.Context, conversationID string, limit int) ([]Message, error)
	MarkRead(ctx context.Context, conversationID string) (int64, error)
	DeleteMessage(ctx context.Context, messageID, conversationID string) (bool, error)
	DeleteConversation(ctx context.Context, conversationID string) (int64, error)
	ListConversations(ctx context.Context) ([]ConversationSummary, error)
	Close() error
}
