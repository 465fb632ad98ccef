package chat

import (
	"log/slog"

	"tienda/cmd/internal/auth"
	v1 "tienda/shared/contracts/chat/v1"
)

// Presence announces regular-user connect/disconnect to the admins room so
// admin clients can refresh their conversation list. It is best-effort and
// never persisted; a restart loses all presence state.
type Presence struct {
	log *slog.Logger
	hub *Hub
}

// NewPresence constructs a Presence notifier over hub.
func NewPresence(log *slog.Logger, hub *Hub) *Presence {
	return &Presence{log: log, hub: hub}
}

// UserOnline broadcasts a "user online" event for p to the admins room,
// excluding the connecting session itself. Admin connections never trigger
// presence.
func (p *Presence) UserOnline(principal auth.Principal, sessionID string) {
	if p == nil || principal.IsAdmin() {
		return
	}
	p.broadcast(v1.TypeUserOnline, principal, sessionID)
	p.log.Info("chat.presence.online", "user_id", principal.ID, "username", principal.Username)
}

// UserOffline broadcasts the symmetric "user offline" event.
func (p *Presence) UserOffline(principal auth.Principal, sessionID string) {
	if p == nil || principal.IsAdmin() {
		return
	}
	p.broadcast(v1.TypeUserOffline, principal, sessionID)
	p.log.Info("chat.presence.offline", "user_id", principal.ID, "username", principal.Username)
}

func (p *Presence) broadcast(typ string, principal auth.Principal, exceptSessionID string) {
	env := newEnvelope(typ, v1.PresencePayload{
		UserID:         principal.ID,
		Username:       principal.Username,
		ConversationID: UserConversationID(principal.ID),
	})
	p.hub.BroadcastExcept(AdminBroadcast(), exceptSessionID, env)
}
