package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Relay sockets carry two channels: binary frames are opaque CRDT deltas that
// the relay forwards without decoding, and text frames are JSON messages
// discriminated by a "type" field. This package owns the text channel.

type MessageType string

const (
	TypeConnected     MessageType = "connected"
	TypeUserJoined    MessageType = "user_joined"
	TypeUserLeft      MessageType = "user_left"
	TypeUserUpdated   MessageType = "user_updated"
	TypeCursorUpdate  MessageType = "cursor_update"
	TypeContentUpdate MessageType = "content_update"
	TypeDrawingUpdate MessageType = "drawing_update"
	TypeUserInfo      MessageType = "user_info"
)

var ErrUnknownType = errors.New("unknown message type")

var validate = validator.New()

// ClientMessage is a message sent by a client over the text channel.
type ClientMessage interface {
	clientMessage()
}

type CursorUpdate struct {
	Cursor *Cursor `json:"cursor" validate:"required"`
}

type ContentUpdate struct {
	Content json.RawMessage `json:"content"`
}

type DrawingUpdate struct {
	Drawing json.RawMessage `json:"drawing"`
}

type UserInfo struct {
	Name  string `json:"name" validate:"max=128"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (CursorUpdate) clientMessage()  {}
func (ContentUpdate) clientMessage() {}
func (DrawingUpdate) clientMessage() {}
func (UserInfo) clientMessage()      {}

// DecodeClientMessage parses a text frame into its typed variant. Unknown
// types return ErrUnknownType so the caller can log and drop the frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	var msg ClientMessage
	switch envelope.Type {
	case TypeCursorUpdate:
		var m CursorUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", envelope.Type, err)
		}
		msg = m
	case TypeContentUpdate:
		var m ContentUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", envelope.Type, err)
		}
		msg = m
	case TypeDrawingUpdate:
		var m DrawingUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", envelope.Type, err)
		}
		msg = m
	case TypeUserInfo:
		var m UserInfo
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", envelope.Type, err)
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}

	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envelope.Type, err)
	}
	return msg, nil
}

// EncodeClientMessage builds the wire form of a client message.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	var msgType MessageType
	switch msg.(type) {
	case CursorUpdate:
		msgType = TypeCursorUpdate
	case ContentUpdate:
		msgType = TypeContentUpdate
	case DrawingUpdate:
		msgType = TypeDrawingUpdate
	case UserInfo:
		msgType = TypeUserInfo
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return tagMessage(body, msgType)
}

// tagMessage injects the type discriminator into an already-marshaled body.
func tagMessage(body []byte, msgType MessageType) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(msgType)
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}
