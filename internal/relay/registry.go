package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabspace-sync-server/pkg/protocol"
)

// Frame is an inbound WebSocket frame queued for the registry loop.
type Frame struct {
	Client *Client
	Kind   int
	Data   []byte
}

// Config carries the connection tuning shared by all clients.
type Config struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// Registry owns every room in the process. All room and session mutation
// happens on the Run loop, one message at a time; the mutex only covers the
// read-only HTTP accessors that race with it.
type Registry struct {
	Register   chan *Client
	Unregister chan *Client
	Frames     chan Frame

	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64

	mu    sync.RWMutex
	rooms map[string]*Room

	log zerolog.Logger
}

func NewRegistry(cfg Config, log zerolog.Logger) *Registry {
	return &Registry{
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		Frames:         make(chan Frame),
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingPeriod,
		maxMessageSize: cfg.MaxMessageSize,
		rooms:          make(map[string]*Room),
		log:            log.With().Str("component", "relay").Logger(),
	}
}

// Run dispatches registry events until the context is canceled. Each event
// is handled to completion before the next is dequeued.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case client := <-r.Register:
			r.join(client)
		case client := <-r.Unregister:
			r.leave(client)
		case f := <-r.Frames:
			r.handleFrame(f.Client, f.Kind, f.Data)
		case <-ctx.Done():
			return
		}
	}
}

// NewSessionID mints a connection-scoped user id.
func NewSessionID() string {
	return "user_" + uuid.NewString()[:8]
}

// join lazily creates the room, registers a fresh session, welcomes the new
// connection and announces it to the other members.
func (r *Registry) join(client *Client) {
	r.mu.Lock()
	room, ok := r.rooms[client.RoomID]
	if !ok {
		room = newRoom(client.RoomID)
		r.rooms[client.RoomID] = room
		r.log.Info().Str("room", room.ID).Msg("room created")
	}

	session := &Session{
		UserSession: protocol.UserSession{
			ID:       client.UserID,
			Name:     fmt.Sprintf("User %s", client.UserID),
			Color:    protocol.ColorFor(client.UserID),
			IsActive: true,
			JoinedAt: time.Now().UTC(),
		},
		client: client,
	}
	room.sessions[client.UserID] = session

	welcome := protocol.ConnectedEvent{
		Type:   protocol.TypeConnected,
		RoomID: room.ID,
		UserID: client.UserID,
		Users:  room.memberList(),
	}
	r.mu.Unlock()

	r.sendEvent(client, welcome)
	r.broadcast(room.ID, client.UserID, protocol.UserJoinedEvent{
		Type: protocol.TypeUserJoined,
		User: session.UserSession,
	})

	r.log.Info().Str("room", room.ID).Str("user", client.UserID).Msg("user joined")
}

// leave removes the session, announces the departure, and deletes the room
// the instant it is empty.
func (r *Registry) leave(client *Client) {
	r.mu.Lock()
	room, ok := r.rooms[client.RoomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	session, ok := room.sessions[client.UserID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(room.sessions, client.UserID)
	close(client.send)

	empty := len(room.sessions) == 0
	if empty {
		delete(r.rooms, client.RoomID)
	}
	r.mu.Unlock()

	if !empty {
		r.broadcast(room.ID, client.UserID, protocol.UserLeftEvent{
			Type:   protocol.TypeUserLeft,
			UserID: client.UserID,
			User:   session.UserSession,
		})
	} else {
		r.log.Info().Str("room", room.ID).Msg("room deleted (empty)")
	}

	r.log.Info().Str("room", room.ID).Str("user", client.UserID).Msg("user left")
}

// handleFrame dispatches one inbound frame. Binary frames are CRDT deltas
// rebroadcast verbatim; text frames carry the JSON presence channel. Nothing
// here is fatal to the connection.
func (r *Registry) handleFrame(client *Client, kind int, data []byte) {
	switch kind {
	case websocket.BinaryMessage:
		if len(data) == 0 {
			return
		}
		r.broadcastFrame(client.RoomID, client.UserID, frame{kind: websocket.BinaryMessage, data: data})

	case websocket.TextMessage:
		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				r.log.Warn().Err(err).Str("user", client.UserID).Msg("ignoring unknown message type")
			} else {
				r.log.Warn().Err(err).Str("user", client.UserID).Msg("ignoring malformed message")
			}
			return
		}
		r.handleClientMessage(client, msg)
	}
}

func (r *Registry) handleClientMessage(client *Client, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case protocol.CursorUpdate:
		r.mu.Lock()
		session := r.session(client)
		if session == nil {
			r.mu.Unlock()
			return
		}
		session.Cursor = *m.Cursor
		r.mu.Unlock()

		r.broadcast(client.RoomID, client.UserID, protocol.CursorEvent{
			Type:   protocol.TypeCursorUpdate,
			UserID: client.UserID,
			Cursor: *m.Cursor,
		})

	case protocol.ContentUpdate:
		r.broadcast(client.RoomID, client.UserID, protocol.ContentEvent{
			Type:      protocol.TypeContentUpdate,
			UserID:    client.UserID,
			Content:   m.Content,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})

	case protocol.DrawingUpdate:
		r.broadcast(client.RoomID, client.UserID, protocol.DrawingEvent{
			Type:      protocol.TypeDrawingUpdate,
			UserID:    client.UserID,
			Drawing:   m.Drawing,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})

	case protocol.UserInfo:
		r.mu.Lock()
		session := r.session(client)
		if session == nil {
			r.mu.Unlock()
			return
		}
		if m.Name != "" {
			session.Name = m.Name
		}
		if m.Email != "" {
			session.Email = m.Email
		}
		updated := session.UserSession
		r.mu.Unlock()

		r.broadcast(client.RoomID, client.UserID, protocol.UserUpdatedEvent{
			Type:   protocol.TypeUserUpdated,
			UserID: client.UserID,
			User:   updated,
		})
	}
}

// session looks up the caller's session. Callers hold r.mu.
func (r *Registry) session(client *Client) *Session {
	room, ok := r.rooms[client.RoomID]
	if !ok {
		return nil
	}
	return room.sessions[client.UserID]
}

// broadcast sends a JSON event to every room member except the sender.
func (r *Registry) broadcast(roomID, excludeUserID string, event protocol.ServerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		r.log.Error().Err(err).Str("room", roomID).Msg("failed to marshal event")
		return
	}
	r.broadcastFrame(roomID, excludeUserID, frame{kind: websocket.TextMessage, data: data})
}

func (r *Registry) broadcastFrame(roomID, excludeUserID string, f frame) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(room.sessions))
	for userID, session := range room.sessions {
		if userID != excludeUserID {
			targets = append(targets, session.client)
		}
	}
	r.mu.RUnlock()

	for _, target := range targets {
		select {
		case target.send <- f:
		default:
			r.log.Warn().Str("user", target.UserID).Msg("send buffer full, dropping connection")
			go func(c *Client) { r.Unregister <- c }(target)
		}
	}
}

// sendEvent delivers a JSON event to one connection only.
func (r *Registry) sendEvent(client *Client, event protocol.ServerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		r.log.Error().Err(err).Str("user", client.UserID).Msg("failed to marshal event")
		return
	}
	select {
	case client.send <- frame{kind: websocket.TextMessage, data: data}:
	default:
		r.log.Warn().Str("user", client.UserID).Msg("send buffer full")
	}
}

// RoomInfo returns the read-only view of a room, or nil when it is gone.
func (r *Registry) RoomInfo(roomID string) *protocol.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return &protocol.RoomInfo{
		ID:        room.ID,
		UserCount: len(room.sessions),
		Users:     room.memberList(),
		CreatedAt: room.CreatedAt,
	}
}

// Stats summarizes relay occupancy across all rooms.
func (r *Registry) Stats() protocol.ServerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := protocol.ServerStats{Rooms: make([]string, 0, len(r.rooms))}
	for id, room := range r.rooms {
		stats.TotalRooms++
		stats.TotalUsers += len(room.sessions)
		stats.Rooms = append(stats.Rooms, id)
	}
	return stats
}
