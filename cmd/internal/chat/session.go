package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"tienda/cmd/internal/auth"
	v1 "tienda/shared/contracts/chat/v1"
)

// session is the closed set of live connection variants. Carrying the role in
// the type instead of a string means admin-only operations are dispatched only
// to adminSession values; a user connection cannot even address them.
type session interface {
	client() *Client
	sealed()
}

// userSession is a regular user's connection. Its conversation id is fixed
// for the connection's lifetime and is the only conversation it can write to.
type userSession struct {
	cl             *Client
	conversationID string
}

func (s *userSession) client() *Client { return s.cl }
func (s *userSession) sealed()         {}

// adminSession is an admin-pool connection. Conversation-room membership
// accumulates across joins; active tracks only the most recent join, used for
// reply targeting when a send carries no explicit conversation id.
type adminSession struct {
	cl     *Client
	active string
}

func (s *adminSession) client() *Client { return s.cl }
func (s *adminSession) sealed()         {}

// SessionManager is the stateful chat core: it owns connect/disconnect
// bookkeeping and handles every validated inbound event.
type SessionManager struct {
	log      *slog.Logger
	hub      *Hub
	store    MessageStore
	presence *Presence
	metrics  *Metrics
}

// NewSessionManager constructs the chat core over hub and store.
// presence and metrics may be nil.
func NewSessionManager(log *slog.Logger, hub *Hub, store MessageStore, presence *Presence, metrics *Metrics) *SessionManager {
	return &SessionManager{
		log:      log,
		hub:      hub,
		store:    store,
		presence: presence,
		metrics:  metrics,
	}
}

// Connect registers a freshly authenticated connection: it builds the typed
// session, joins the role's fixed rooms and announces user presence.
func (m *SessionManager) Connect(p auth.Principal, sessionID string, sendQueueSize int) session {
	cl := NewClient(p, sessionID, sendQueueSize)
	for _, room := range RoomsFor(p) {
		m.hub.Join(room, cl)
	}
	m.metrics.connOpened(string(p.Role))

	if p.IsAdmin() {
		return &adminSession{cl: cl}
	}

	m.presence.UserOnline(p, sessionID)
	return &userSession{cl: cl, conversationID: UserConversationID(p.ID)}
}

// Disconnect tears a session down: membership first, then client shutdown,
// so no broadcaster holds a pointer to a half-dead client.
func (m *SessionManager) Disconnect(s session) {
	cl := s.client()
	m.hub.LeaveAll(cl.SessionID)
	cl.Close()
	m.metrics.connClosed(string(cl.Principal.Role))

	if !cl.Principal.IsAdmin() {
		m.presence.UserOffline(cl.Principal, cl.SessionID)
	}
}

// Dispatch routes one validated envelope to its handler. Events a variant
// does not handle are dropped without a reply; the set of admin operations is
// not advertised to user connections.
func (m *SessionManager) Dispatch(ctx context.Context, s session, env v1.Envelope) {
	m.metrics.event(env.Type)

	switch s := s.(type) {
	case *adminSession:
		m.dispatchAdmin(ctx, s, env)
	case *userSession:
		m.dispatchUser(ctx, s, env)
	}
}

func (m *SessionManager) dispatchAdmin(ctx context.Context, s *adminSession, env v1.Envelope) {
	switch env.Type {
	case v1.TypeRequestConversations:
		m.listConversations(ctx, s)
	case v1.TypeJoinConversation:
		m.joinConversation(ctx, s, env)
	case v1.TypeChatMessage:
		m.sendMessage(ctx, s, env)
	case v1.TypeDeleteMessage:
		m.deleteMessage(ctx, s, env)
	case v1.TypeDeleteConversation:
		m.deleteConversation(ctx, s, env)
	default:
		m.drop(s.cl, env.Type, "unhandled")
	}
}

func (m *SessionManager) dispatchUser(ctx context.Context, s *userSession, env v1.Envelope) {
	switch env.Type {
	case v1.TypeChatMessage:
		m.sendMessage(ctx, s, env)
	case v1.TypeRequestHistory:
		m.requestHistory(ctx, s)
	default:
		m.drop(s.cl, env.Type, "unauthorized")
	}
}

// ---- admin handlers ----

func (m *SessionManager) listConversations(ctx context.Context, s *adminSession) {
	sums, err := m.store.ListConversations(ctx)
	if err != nil {
		m.storeFail("list_conversations", err)
		return
	}

	out := make([]v1.ConversationSummary, 0, len(sums))
	for _, sum := range sums {
		out = append(out, v1.ConversationSummary{
			ConversationID:  sum.ConversationID,
			LastMessage:     sum.LastMessage,
			LastMessageTime: sum.LastMessageTime,
			SenderID:        sum.SenderID,
			SenderUsername:  sum.SenderUsername,
			UnreadCount:     sum.UnreadCount,
		})
	}

	m.enqueue(s.cl, newEnvelope(v1.TypeConversationsList, out))
}

func (m *SessionManager) joinConversation(ctx context.Context, s *adminSession, env v1.Envelope) {
	var p v1.JoinConversationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.drop(s.cl, env.Type, "bad_payload")
		return
	}
	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		m.drop(s.cl, env.Type, "missing_conversation")
		return
	}

	// Membership accumulates: joining a new conversation does not leave the
	// previous room, only the active target moves.
	m.hub.Join(ConversationChannel(convID), s.cl)

	msgs, err := m.store.History(ctx, convID, historyLimit)
	if err != nil {
		m.storeFail("history", err)
		return
	}
	m.enqueue(s.cl, newEnvelope(v1.TypeConversationHistory, historyPayload(convID, msgs)))

	// A message landing between the fetch above and this update may or may
	// not be included in the read flip; tolerated, see the concurrency notes.
	if _, err := m.store.MarkRead(ctx, convID); err != nil {
		m.storeFail("mark_read", err)
	}

	s.active = convID
	m.log.Info("chat.conversation.join", "conversation_id", convID, "session_id", s.cl.SessionID)
}

func (m *SessionManager) deleteMessage(ctx context.Context, s *adminSession, env v1.Envelope) {
	var p v1.DeleteMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.drop(s.cl, env.Type, "bad_payload")
		return
	}
	if p.MessageID == "" || p.ConversationID == "" {
		m.drop(s.cl, env.Type, "missing_target")
		return
	}

	ok, err := m.store.DeleteMessage(ctx, p.MessageID, p.ConversationID)
	if err != nil {
		m.storeFail("delete_message", err)
		return
	}
	if !ok {
		return
	}

	m.hub.Broadcast(ConversationChannel(p.ConversationID), newEnvelope(v1.TypeMessageDeleted, v1.MessageDeletedPayload{
		MessageID:      p.MessageID,
		ConversationID: p.ConversationID,
	}))
	m.hub.Broadcast(AdminBroadcast(), newEnvelope(v1.TypeRefreshConversations, struct{}{}))

	m.log.Info("chat.message.delete", "message_id", p.MessageID, "conversation_id", p.ConversationID)
}

func (m *SessionManager) deleteConversation(ctx context.Context, s *adminSession, env v1.Envelope) {
	var p v1.DeleteConversationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.drop(s.cl, env.Type, "bad_payload")
		return
	}
	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		m.drop(s.cl, env.Type, "missing_conversation")
		return
	}

	n, err := m.store.DeleteConversation(ctx, convID)
	if err != nil {
		m.storeFail("delete_conversation", err)
		return
	}

	deleted := newEnvelope(v1.TypeConversationDeleted, v1.ConversationDeletedPayload{ConversationID: convID})
	m.hub.Broadcast(ConversationChannel(convID), deleted)
	m.hub.Broadcast(AdminBroadcast(), deleted)
	m.enqueue(s.cl, newEnvelope(v1.TypeConversationDeletedSuccess, v1.ConversationDeletedPayload{ConversationID: convID}))

	if s.active == convID {
		s.active = ""
	}

	m.log.Info("chat.conversation.delete", "conversation_id", convID, "messages", n)
}

// ---- user handlers ----

func (m *SessionManager) requestHistory(ctx context.Context, s *userSession) {
	// The requester is the non-admin party; nothing is marked read here
	// because the read flag tracks admin-side acknowledgment only.
	msgs, err := m.store.History(ctx, s.conversationID, historyLimit)
	if err != nil {
		m.storeFail("history", err)
		return
	}
	m.enqueue(s.cl, newEnvelope(v1.TypeConversationHistory, historyPayload(s.conversationID, msgs)))
}

// ---- shared handlers ----

func (m *SessionManager) sendMessage(ctx context.Context, s session, env v1.Envelope) {
	cl := s.client()

	var p v1.ChatMessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.drop(cl, env.Type, "bad_payload")
		return
	}

	body := strings.TrimSpace(p.Message)
	if body == "" {
		m.drop(cl, env.Type, "empty_body")
		return
	}
	if len([]rune(body)) > maxMessageChars {
		m.drop(cl, env.Type, "too_long")
		return
	}

	var convID, receiverID string
	switch s := s.(type) {
	case *userSession:
		// Users always write into their own conversation; a supplied
		// conversation id is ignored rather than trusted.
		convID = s.conversationID
	case *adminSession:
		convID = strings.TrimSpace(p.ConversationID)
		if convID == "" {
			convID = s.active
		}
		receiverID = strings.TrimSpace(p.ReceiverID)
		if receiverID == "" {
			receiverID, _ = UserIDFromConversation(convID)
		}
	}
	if convID == "" {
		m.drop(cl, env.Type, "missing_conversation")
		return
	}

	msg, err := m.store.Append(ctx, AppendMessageInput{
		SenderID:       cl.Principal.ID,
		SenderUsername: cl.Principal.Username,
		ReceiverID:     receiverID,
		Body:           body,
		IsFromAdmin:    cl.Principal.IsAdmin(),
		ConversationID: convID,
		Now:            time.Now().UTC(),
	})
	if err != nil {
		m.storeFail("append", err)
		return
	}

	// Broadcast only after the store commit so every viewer observes commit order.
	m.hub.Broadcast(ConversationChannel(convID), newEnvelope(v1.TypeChatMessage, livePayload(msg)))

	if !cl.Principal.IsAdmin() {
		m.hub.Broadcast(AdminBroadcast(), newEnvelope(v1.TypeNewMessageNotification, v1.NewMessageNotificationPayload{
			ConversationID: convID,
			Message:        msg.Body,
			SenderID:       msg.SenderID,
			SenderUsername: msg.SenderUsername,
		}))
	}
}

// ---- helpers ----

func (m *SessionManager) enqueue(cl *Client, env v1.Envelope) bool {
	select {
	case <-cl.Done():
		return false
	case cl.Send <- env:
		return true
	default:
		m.metrics.broadcastDropped()
		return false
	}
}

func (m *SessionManager) drop(cl *Client, typ, reason string) {
	m.metrics.eventDropped(reason)
	m.log.Debug("chat.event.drop", "type", typ, "reason", reason, "session_id", cl.SessionID)
}

func (m *SessionManager) storeFail(op string, err error) {
	m.metrics.storeFailure(op)
	m.log.Error("chat.store.fail", "op", op, "err", err)
}

func newEnvelope(typ string, payload any) v1.Envelope {
	now := time.Now().UTC()
	b, _ := json.Marshal(payload)
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(now),
		TS:      now,
		Payload: b,
	}
}

func messagePayload(msg Message) v1.ChatMessagePayload {
	return v1.ChatMessagePayload{
		ID:             msg.ID,
		SenderID:       msg.SenderID,
		SenderUsername: msg.SenderUsername,
		ReceiverID:     msg.ReceiverID,
		Message:        msg.Body,
		IsFromAdmin:    msg.IsFromAdmin,
		ConversationID: msg.ConversationID,
		Read:           msg.Read,
		CreatedAt:      msg.CreatedAt,
	}
}

// livePayload adds the pre-formatted display time clients render on live
// broadcasts (history entries carry createdAt only).
func livePayload(msg Message) v1.ChatMessagePayload {
	p := messagePayload(msg)
	p.Timestamp = msg.CreatedAt.Format("15:04:05")
	return p
}

func historyPayload(conversationID string, msgs []Message) v1.ConversationHistoryPayload {
	out := v1.ConversationHistoryPayload{
		ConversationID: conversationID,
		Messages:       make([]v1.ChatMessagePayload, 0, len(msgs)),
	}
	for _, msg := range msgs {
		out.Messages = append(out.Messages, messagePayload(msg))
	}
	return out
}
