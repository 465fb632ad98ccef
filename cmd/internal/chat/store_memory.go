package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

const memMaxMessagesPerConversation = 10_000

// InMemoryStore is a dev/test fallback when the database is not configured.
// It implements the full MessageStore contract, including the listing
// aggregation, with the same semantics as the Postgres store.
type InMemoryStore struct {
	mu    sync.Mutex
	convs map[string][]Message // conversation id -> messages, append order
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		convs: make(map[string][]Message),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Append persists a message, assigning its id and creation time.
func (s *InMemoryStore) Append(ctx context.Context, in AppendMessageInput) (Message, error) {
	if in.ConversationID == "" || in.SenderID == "" || in.Body == "" {
		return Message{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewMessageID(now)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:             id,
		SenderID:       in.SenderID,
		SenderUsername: in.SenderUsername,
		ReceiverID:     in.ReceiverID,
		Body:           in.Body,
		IsFromAdmin:    in.IsFromAdmin,
		ConversationID: in.ConversationID,
		Read:           false,
		CreatedAt:      now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.convs[in.ConversationID], msg)

	// Bound memory to avoid unbounded growth in dev.
	if len(msgs) > memMaxMessagesPerConversation {
		msgs = msgs[len(msgs)-memMaxMessagesPerConversation:]
	}
	s.convs[in.ConversationID] = msgs

	return msg, nil
}

// History returns the newest `limit` messages in ascending creation order.
func (s *InMemoryStore) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if conversationID == "" {
		return nil, errors.New("missing conversation id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}

	s.mu.Lock()
	snap := append([]Message(nil), s.convs[conversationID]...)
	s.mu.Unlock()

	sortAscending(snap)

	if len(snap) > limit {
		snap = snap[len(snap)-limit:]
	}
	return snap, nil
}

// MarkRead flips every unread non-admin message in a conversation to read.
func (s *InMemoryStore) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, errors.New("missing conversation id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	msgs := s.convs[conversationID]
	for i := range msgs {
		if !msgs[i].IsFromAdmin && !msgs[i].Read {
			msgs[i].Read = true
			n++
		}
	}
	return n, nil
}

// DeleteMessage removes one message; both id and conversation id must match.
func (s *InMemoryStore) DeleteMessage(ctx context.Context, messageID, conversationID string) (bool, error) {
	if messageID == "" || conversationID == "" {
		return false, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.convs[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			s.convs[conversationID] = append(msgs[:i:i], msgs[i+1:]...)
			if len(s.convs[conversationID]) == 0 {
				delete(s.convs, conversationID)
			}
			return true, nil
		}
	}
	return false, nil
}

// DeleteConversation removes every message in a conversation.
func (s *InMemoryStore) DeleteConversation(ctx context.Context, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, errors.New("missing conversation id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.convs[conversationID]))
	delete(s.convs, conversationID)
	return n, nil
}

// ListConversations computes one summary row per conversation,
// most-recently-active first.
func (s *InMemoryStore) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]ConversationSummary, 0, len(s.convs))
	for convID, msgs := range s.convs {
		if len(msgs) == 0 {
			continue
		}

		snap := append([]Message(nil), msgs...)
		sortAscending(snap)

		last := snap[len(snap)-1]
		sum := ConversationSummary{
			ConversationID:  convID,
			LastMessage:     last.Body,
			LastMessageTime: last.CreatedAt,
			SenderID:        last.SenderID,
			SenderUsername:  last.SenderUsername,
		}

		// Counterpart is the most recent non-admin sender when one exists,
		// so an admin reply does not misattribute the conversation.
		for i := len(snap) - 1; i >= 0; i-- {
			if !snap[i].IsFromAdmin {
				sum.SenderID = snap[i].SenderID
				sum.SenderUsername = snap[i].SenderUsername
				break
			}
		}

		for i := range snap {
			if !snap[i].IsFromAdmin && !snap[i].Read {
				sum.UnreadCount++
			}
		}

		out = append(out, sum)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out, nil
}

func sortAscending(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		// Ids are minted monotonically, so id order matches persist order
		// even for equal timestamps.
		return msgs[i].ID < msgs[j].ID
	})
}
