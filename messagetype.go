package websocket

import (
	"fmt"
)

// MessageType represents the type of a WebSocket message.
// See https://tools.ietf.org/html/rfc6455#section-5.6
type MessageType int

// MessageType constants.
const (
	// MessageText is for UTF-8 encoded text messages like JSON.
	MessageText MessageType = MessageType(OpText)
	// MessageBinary is for binary messages like Protobufs.
	MessageBinary MessageType = MessageType(OpBinary)
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "MessageText"
	case MessageBinary:
		return "MessageBinary"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

func (t MessageType) opcode() Opcode {
	return Opcode(t)
}

// Message is a complete application message, possibly assembled
// from several frames. Control frames never become Messages.
type Message struct {
	Type    MessageType
	Payload []byte
}
