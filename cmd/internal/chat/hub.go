package chat

import (
	"log/slog"
	"sync"

	v1 "tienda/shared/contracts/chat/v1"
)

// Hub owns in-memory room membership and fanout. Rooms are created lazily on
// first join and removed when their last member leaves; persistence never
// flows through the Hub.
//
// Concurrency guarantees:
// - Join/LeaveAll are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	mu    sync.RWMutex
	rooms map[string]map[string]*Client // room name -> session id -> client
}

// NewHub constructs a Hub instance. metrics may be nil.
func NewHub(log *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: metrics,
		rooms:   make(map[string]map[string]*Client),
	}
}

// Join adds a client to room membership. Joining twice is a no-op.
func (h *Hub) Join(room Room, client *Client) {
	if h == nil || client == nil || client.SessionID == "" {
		return
	}
	name := room.Name()

	h.mu.Lock()
	members := h.rooms[name]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[name] = members
	}
	members[client.SessionID] = client
	h.mu.Unlock()

	h.log.Debug("chat.room.join", "room", name, "session_id", client.SessionID)
}

// LeaveAll removes a session from every room it belongs to. Membership only
// ever accumulates while connected, so disconnect is the sole leave path; it
// does not close the client, connection teardown is the gateway's job.
func (h *Hub) LeaveAll(sessionID string) {
	if h == nil || sessionID == "" {
		return
	}

	h.mu.Lock()
	for name, members := range h.rooms {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, name)
		}
	}
	h.mu.Unlock()
}

// Broadcast fanouts an envelope to every member of room.
func (h *Hub) Broadcast(room Room, env v1.Envelope) {
	h.BroadcastExcept(room, "", env)
}

// BroadcastExcept fanouts an envelope to every member of room except the
// given session. Non-blocking: if a member queue is full or the client is
// shutting down, the envelope is dropped for that member.
func (h *Hub) BroadcastExcept(room Room, exceptSessionID string, env v1.Envelope) {
	if h == nil {
		return
	}
	name := room.Name()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sid, m := range h.rooms[name] {
		if m == nil || sid == exceptSessionID {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			// Drop rather than block the whole room.
			h.metrics.broadcastDropped()
			h.log.Debug("chat.broadcast.drop", "room", name, "session_id", sid, "type", env.Type)
		}
	}
}

// members returns a snapshot of the session ids in a room (test helper).
func (h *Hub) members(room Room) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms[room.Name()]))
	for sid := range h.rooms[room.Name()] {
		out = append(out, sid)
	}
	return out
}
