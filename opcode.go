package websocket

import (
	"fmt"

	"github.com/gwebsockets/websocket/internal/wsframe"
)

// Opcode represents a WebSocket frame opcode.
// See https://tools.ietf.org/html/rfc6455#section-11.8
type Opcode int

// Opcode constants.
const (
	OpContinuation = Opcode(wsframe.OpContinuation)
	OpText         = Opcode(wsframe.OpText)
	OpBinary       = Opcode(wsframe.OpBinary)
	OpClose        = Opcode(wsframe.OpClose)
	OpPing         = Opcode(wsframe.OpPing)
	OpPong         = Opcode(wsframe.OpPong)
)

// Control reports whether o is CLOSE, PING or PONG.
func (o Opcode) Control() bool {
	return wsframe.Opcode(o).Control()
}

func (o Opcode) valid() bool {
	return wsframe.Opcode(o).Valid()
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "CONTINUATION"
	case OpText:
		return "TEXT"
	case OpBinary:
		return "BINARY"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	}
	return fmt.Sprintf("Opcode(%d)", int(o))
}
