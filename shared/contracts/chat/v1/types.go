// Package v1 defines the tienda support-chat wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Event type constants (wire-stable). The strings are the storefront's
// historical socket event names and must not change.
const (
	// Client -> server.

	// TypeRequestConversations asks for the full conversation summary list (admin).
	TypeRequestConversations = "request conversations"
	// TypeJoinConversation joins a conversation room and requests its history (admin).
	TypeJoinConversation = "join conversation"
	// TypeChatMessage sends a new chat message (any authenticated connection).
	TypeChatMessage = "chat message"
	// TypeRequestHistory asks for the requester's own conversation history (user).
	TypeRequestHistory = "request history"
	// TypeDeleteMessage deletes a single message (admin).
	TypeDeleteMessage = "delete message"
	// TypeDeleteConversation deletes a whole conversation (admin).
	TypeDeleteConversation = "delete conversation"

	// Server -> client.

	// TypeConversationsList carries the conversation summary list.
	TypeConversationsList = "conversations list"
	// TypeConversationHistory carries an ordered message history window.
	TypeConversationHistory = "conversation history"
	// TypeNewMessageNotification is a lightweight notice to the admins room.
	TypeNewMessageNotification = "new message notification"
	// TypeMessageDeleted announces a single-message deletion to a conversation room.
	TypeMessageDeleted = "message deleted"
	// TypeConversationDeleted announces a conversation deletion.
	TypeConversationDeleted = "conversation deleted"
	// TypeConversationDeletedSuccess acknowledges a deletion to the requesting admin.
	TypeConversationDeletedSuccess = "conversation deleted success"
	// TypeRefreshConversations hints admin clients to re-request the summary list.
	TypeRefreshConversations = "refresh conversations"
	// TypeUserOnline announces a regular user's connect to the admins room.
	TypeUserOnline = "user online"
	// TypeUserOffline announces a regular user's disconnect to the admins room.
	TypeUserOffline = "user offline"
	// TypeError reports protocol-level failures (bad JSON, rate limit).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper. TypeChatMessage appears in both
// directions: as a send request from clients and as the persisted projection
// broadcast by the server.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeRequestConversations,
		TypeJoinConversation,
		TypeChatMessage,
		TypeRequestHistory,
		TypeDeleteMessage,
		TypeDeleteConversation,
		TypeConversationsList,
		TypeConversationHistory,
		TypeNewMessageNotification,
		TypeMessageDeleted,
		TypeConversationDeleted,
		TypeConversationDeletedSuccess,
		TypeRefreshConversations,
		TypeUserOnline,
		TypeUserOffline,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Client -> server payloads ----

// JoinConversationPayload selects a conversation for viewing.
type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// ChatMessageSendPayload requests persisting and fanning out a message.
// ConversationID and ReceiverID are set only by admin clients; regular users
// always write into their own fixed conversation.
type ChatMessageSendPayload struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	ReceiverID     string `json:"receiverId,omitempty"`
}

// DeleteMessagePayload identifies one message to remove.
type DeleteMessagePayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// DeleteConversationPayload identifies a conversation to remove in bulk.
type DeleteConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// ---- Server -> client payloads ----

// ChatMessagePayload is the persisted message projection broadcast to rooms
// and returned in history windows. Timestamp is a pre-formatted display time
// set only on live broadcasts.
type ChatMessagePayload struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	ReceiverID     string    `json:"receiverId,omitempty"`
	Message        string    `json:"message"`
	IsFromAdmin    bool      `json:"isFromAdmin"`
	ConversationID string    `json:"conversationId"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
	Timestamp      string    `json:"timestamp,omitempty"`
}

// ConversationSummary is one row of the conversation listing aggregation.
// SenderID/SenderUsername identify the non-admin counterpart of the
// conversation whenever the group contains at least one user message.
type ConversationSummary struct {
	ConversationID  string    `json:"conversationId"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	SenderID        string    `json:"senderId"`
	SenderUsername  string    `json:"senderUsername"`
	UnreadCount     int       `json:"unreadCount"`
}

// ConversationHistoryPayload carries an ascending history window.
type ConversationHistoryPayload struct {
	ConversationID string               `json:"conversationId"`
	Messages       []ChatMessagePayload `json:"messages"`
}

// NewMessageNotificationPayload lets idle admin clients refresh their list
// without being a member of the conversation room.
type NewMessageNotificationPayload struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	SenderID       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
}

// MessageDeletedPayload announces removal of a single message.
type MessageDeletedPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// ConversationDeletedPayload announces removal of a whole conversation.
type ConversationDeletedPayload struct {
	ConversationID string `json:"conversationId"`
}

// PresencePayload is broadcast to the admins room on user connect/disconnect.
type PresencePayload struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	ConversationID string `json:"conversationId"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
