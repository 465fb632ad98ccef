package chat

import (
	"strings"

	"tienda/cmd/internal/auth"
)

// Transport room names. userRoomPrefix doubles as the conversation id
// convention: a user's private channel and that user's support conversation
// share one name on purpose, so "broadcast to the conversation" and
// "broadcast to every socket viewing it" are the same operation.
const (
	adminsRoomName = "admins"
	userRoomPrefix = "user-"
)

type roomKind uint8

const (
	kindAdminBroadcast roomKind = iota
	kindUserChannel
	kindConversationChannel
)

// Room is a typed broadcast target. The three variants replace the historical
// bare-string convention ("admins", "user-<id>", conversation id as room name);
// Name is the single translation to the transport's room naming.
type Room struct {
	kind roomKind
	key  string
}

// AdminBroadcast is the shared room every admin connection joins.
func AdminBroadcast() Room {
	return Room{kind: kindAdminBroadcast}
}

// UserChannel is the private per-user room, reused across that user's tabs.
func UserChannel(userID string) Room {
	return Room{kind: kindUserChannel, key: userID}
}

// ConversationChannel is the room of sockets currently viewing a conversation.
// For conversation "user-<id>" it names the same room as UserChannel(id).
func ConversationChannel(conversationID string) Room {
	return Room{kind: kindConversationChannel, key: conversationID}
}

// Name returns the transport room name for r.
func (r Room) Name() string {
	switch r.kind {
	case kindAdminBroadcast:
		return adminsRoomName
	case kindUserChannel:
		return userRoomPrefix + r.key
	default:
		return r.key
	}
}

// UserConversationID derives the fixed conversation id of a regular user.
func UserConversationID(userID string) string {
	return userRoomPrefix + userID
}

// UserIDFromConversation resolves the user behind a "user-<id>" conversation.
// Any admin can address the counterpart without a side lookup.
func UserIDFromConversation(conversationID string) (string, bool) {
	id, ok := strings.CutPrefix(conversationID, userRoomPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// RoomsFor returns the fixed room set a principal joins at connect time.
// Admin connections additionally join conversation rooms on demand; no other
// assignment is permitted.
func RoomsFor(p auth.Principal) []Room {
	if p.IsAdmin() {
		return []Room{AdminBroadcast()}
	}
	return []Room{UserChannel(p.ID)}
}
