package client

import (
	"sort"
	"sync"

	"collabspace-sync-server/pkg/protocol"
)

// presenceTracker reconstructs the presence of other room members from relay
// events. Each remote session is exclusively owned by its connection, so
// last write wins per session is safe.
type presenceTracker struct {
	mu sync.RWMutex
	// selfID is the relay-assigned session id from the welcome event; the
	// local user is always excluded from snapshots.
	selfID   string
	sessions map[string]protocol.UserSession
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{
		sessions: make(map[string]protocol.UserSession),
	}
}

// apply folds one relay event into the tracked state and reports whether
// presence changed.
func (p *presenceTracker) apply(event protocol.ServerEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := event.(type) {
	case protocol.ConnectedEvent:
		p.selfID = e.UserID
		p.sessions = make(map[string]protocol.UserSession, len(e.Users))
		for _, u := range e.Users {
			if u.ID != p.selfID {
				p.sessions[u.ID] = u
			}
		}
		return true

	case protocol.UserJoinedEvent:
		if e.User.ID == p.selfID {
			return false
		}
		p.sessions[e.User.ID] = e.User
		return true

	case protocol.UserLeftEvent:
		if _, ok := p.sessions[e.UserID]; !ok {
			return false
		}
		delete(p.sessions, e.UserID)
		return true

	case protocol.UserUpdatedEvent:
		if e.User.ID == p.selfID {
			return false
		}
		p.sessions[e.User.ID] = e.User
		return true

	case protocol.CursorEvent:
		s, ok := p.sessions[e.UserID]
		if !ok {
			return false
		}
		s.Cursor = e.Cursor
		p.sessions[e.UserID] = s
		return true

	default:
		return false
	}
}

// snapshot returns all other known sessions ordered by join time.
func (p *presenceTracker) snapshot() []protocol.UserSession {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]protocol.UserSession, 0, len(p.sessions))
	for _, s := range p.sessions {
		users = append(users, s)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users
}

// reset drops all tracked sessions, e.g. when the relay connection drops.
func (p *presenceTracker) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[string]protocol.UserSession)
}
