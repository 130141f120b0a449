package relay

import (
	"time"

	"collabspace-sync-server/pkg/protocol"
)

// Session is one live connection's presence record inside a room. The room
// exclusively owns the record; the transport layer owns the socket.
type Session struct {
	protocol.UserSession
	client *Client
}

// Room groups the active connections collaborating on one document id.
// A room exists iff it has at least one member.
type Room struct {
	ID        string
	CreatedAt time.Time
	sessions  map[string]*Session
}

func newRoom(id string) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		sessions:  make(map[string]*Session),
	}
}

// memberList snapshots the current membership for the welcome payload and
// the room-info HTTP view.
func (r *Room) memberList() []protocol.UserSession {
	users := make([]protocol.UserSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		users = append(users, s.UserSession)
	}
	return users
}
