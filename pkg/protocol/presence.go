package protocol

import (
	"hash/fnv"
	"time"
)

// Cursor is a presence cursor position in document coordinates.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UserSession is the ephemeral presence record for one live connection.
// It is owned by the room that tracks it and is never persisted.
type UserSession struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Color    string    `json:"color"`
	Cursor   Cursor    `json:"cursor"`
	IsActive bool      `json:"isActive"`
	JoinedAt time.Time `json:"joinedAt,omitzero"`
}

// RoomInfo is the read-only view of a room served over HTTP.
type RoomInfo struct {
	ID        string        `json:"id"`
	UserCount int           `json:"userCount"`
	Users     []UserSession `json:"users"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ServerStats summarizes relay occupancy.
type ServerStats struct {
	TotalRooms int      `json:"totalRooms"`
	TotalUsers int      `json:"totalUsers"`
	Rooms      []string `json:"rooms"`
}

var colorPalette = []string{
	"#ef4444", "#f59e0b", "#10b981", "#3b82f6", "#8b5cf6", "#ec4899",
}

// ColorFor deterministically assigns a display color to a user id.
func ColorFor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}
