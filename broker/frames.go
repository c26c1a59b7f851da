// Package broker carries the websocket protocol: frame shapes, the
// per-connection session state machine and the upgrade endpoint.
package broker

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Client-to-server frame types.
const (
	FrameSubscribe   = "SUBSCRIBE"
	FrameUnsubscribe = "UNSUBSCRIBE"
	FrameMessage     = "MESSAGE"
	FrameMarkRead    = "MARK_READ"
	FramePong        = "PONG"
)

// Server-to-client frame types.
const (
	FrameConnected    = "CONNECTED"
	FramePing         = "PING"
	FrameDisconnected = "DISCONNECTED"
	FrameError        = "ERROR"
)

var validate = validator.New()

// ClientFrame is the envelope of every inbound frame. Fields beyond Type
// are populated depending on the frame type.
type ClientFrame struct {
	Type       string `json:"type" validate:"required"`
	ToUserID   string `json:"toUserId,omitempty"`
	FromUserID string `json:"fromUserId,omitempty"`
	Text       string `json:"text,omitempty"`
}

// messagePayloadRules re-validates the fields a MESSAGE frame must carry.
type messagePayloadRules struct {
	ToUserID string `validate:"required,max=128"`
	Text     string `validate:"required,max=4096"`
}

// markReadRules re-validates the fields a MARK_READ frame must carry.
type markReadRules struct {
	FromUserID string `validate:"required,max=128"`
}

// Validate checks the type-specific required fields of an inbound frame.
func (f ClientFrame) Validate() error {
	switch f.Type {
	case FrameMessage:
		return validate.Struct(messagePayloadRules{ToUserID: f.ToUserID, Text: f.Text})
	case FrameMarkRead:
		return validate.Struct(markReadRules{FromUserID: f.FromUserID})
	default:
		return nil
	}
}

// ServerFrame is the envelope of every outbound frame. Informational
// replies carry only Message; typed frames carry Type and optionally a
// structured Message payload.
type ServerFrame struct {
	Type    string `json:"type,omitempty"`
	Message any    `json:"message,omitempty"`
}

// MessagePayload is the body of an outbound MESSAGE frame.
type MessagePayload struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func InfoFrame(message string) ServerFrame {
	return ServerFrame{Message: message}
}

func ErrorFrame(message string) ServerFrame {
	return ServerFrame{Type: FrameError, Message: message}
}

func PingFrame() ServerFrame {
	return ServerFrame{Type: FramePing}
}

func ConnectedFrame(message string) ServerFrame {
	return ServerFrame{Type: FrameConnected, Message: message}
}

func DisconnectedFrame(reason string) ServerFrame {
	return ServerFrame{Type: FrameDisconnected, Message: reason}
}
