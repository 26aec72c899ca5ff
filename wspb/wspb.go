// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"fmt"

	"github.com/golang/protobuf/proto"

	"github.com/gwebsockets/websocket"
	"github.com/gwebsockets/websocket/internal/errd"
)

// Decode decodes the protobuf message msg into v.
func Decode(msg websocket.Message, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to read protobuf message")

	if msg.Type != websocket.MessageBinary {
		return fmt.Errorf("expected binary message for protobuf but got: %v", msg.Type)
	}

	err = proto.Unmarshal(msg.Payload, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return nil
}

// Encode returns the frames carrying the protobuf message v on s.
func Encode(s *websocket.Session, v proto.Message) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to write protobuf message")

	p, err := proto.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protobuf: %w", err)
	}
	return s.Send(websocket.MessageBinary, p)
}

// Send sends the protobuf message v on the Engine session id.
func Send(e *websocket.Engine, id string, v proto.Message, onWritten func(error)) (err error) {
	defer errd.Wrap(&err, "failed to write protobuf message")

	p, err := proto.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal protobuf: %w", err)
	}
	return e.Send(id, websocket.MessageBinary, p, onWritten)
}
