// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"encoding/json"
	"fmt"

	"github.com/gwebsockets/websocket"
	"github.com/gwebsockets/websocket/internal/bufpool"
	"github.com/gwebsockets/websocket/internal/errd"
)

// Decode decodes the JSON message msg into v.
func Decode(msg websocket.Message, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to read JSON message")

	if msg.Type != websocket.MessageText {
		return fmt.Errorf("expected text message for JSON but got: %v", msg.Type)
	}

	err = json.Unmarshal(msg.Payload, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// Encode returns the frames carrying the JSON message v on s.
func Encode(s *websocket.Session, v interface{}) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to write JSON message")

	p, err := marshal(v)
	if err != nil {
		return nil, err
	}
	return s.Send(websocket.MessageText, p)
}

// Send sends the JSON message v on the Engine session id.
func Send(e *websocket.Engine, id string, v interface{}, onWritten func(error)) (err error) {
	defer errd.Wrap(&err, "failed to write JSON message")

	p, err := marshal(v)
	if err != nil {
		return err
	}
	return e.Send(id, websocket.MessageText, p, onWritten)
}

func marshal(v interface{}) ([]byte, error) {
	b := bufpool.Get()

	// json.Marshal cannot reuse buffers.
	err := json.NewEncoder(b).Encode(v)
	if err != nil {
		bufpool.Put(b)
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return bufpool.Detach(b), nil
}
