package protocol

import (
	"encoding/json"
	"fmt"
)

// ServerEvent is a message sent by the relay over the text channel.
type ServerEvent interface {
	serverEvent()
}

// ConnectedEvent welcomes a newly joined connection. Users holds the current
// room membership, including the joiner itself.
type ConnectedEvent struct {
	Type   MessageType   `json:"type"`
	RoomID string        `json:"roomId"`
	UserID string        `json:"userId"`
	Users  []UserSession `json:"users"`
}

type UserJoinedEvent struct {
	Type MessageType `json:"type"`
	User UserSession `json:"user"`
}

type UserLeftEvent struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
	User   UserSession `json:"user"`
}

type UserUpdatedEvent struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
	User   UserSession `json:"user"`
}

type CursorEvent struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
	Cursor Cursor      `json:"cursor"`
}

type ContentEvent struct {
	Type      MessageType     `json:"type"`
	UserID    string          `json:"userId"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp"`
}

type DrawingEvent struct {
	Type      MessageType     `json:"type"`
	UserID    string          `json:"userId"`
	Drawing   json.RawMessage `json:"drawing"`
	Timestamp string          `json:"timestamp"`
}

func (ConnectedEvent) serverEvent()   {}
func (UserJoinedEvent) serverEvent()  {}
func (UserLeftEvent) serverEvent()    {}
func (UserUpdatedEvent) serverEvent() {}
func (CursorEvent) serverEvent()      {}
func (ContentEvent) serverEvent()     {}
func (DrawingEvent) serverEvent()     {}

// DecodeServerEvent parses a relay text frame on the client side.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}

	var event ServerEvent
	var err error
	switch envelope.Type {
	case TypeConnected:
		var e ConnectedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeUserJoined:
		var e UserJoinedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeUserLeft:
		var e UserLeftEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeUserUpdated:
		var e UserUpdatedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeCursorUpdate:
		var e CursorEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeContentUpdate:
		var e ContentEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeDrawingUpdate:
		var e DrawingEvent
		err = json.Unmarshal(data, &e)
		event = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed %s: %w", envelope.Type, err)
	}
	return event, nil
}
