package wstest

import (
	"bytes"
	"fmt"

	"github.com/gwebsockets/websocket"
	"github.com/gwebsockets/websocket/internal/test/xrand"
)

// Echo sends a random message of at most max bytes from a to b and
// ensures b receives it unchanged.
func Echo(a, b *websocket.Session, max int) error {
	expType := websocket.MessageBinary
	if xrand.Bool() {
		expType = websocket.MessageText
	}

	msg := randMessage(expType, xrand.Int(max))

	p, err := a.Send(expType, msg)
	if err != nil {
		return err
	}

	_, msgs, err := Relay(b, p)
	if err != nil {
		return err
	}

	if len(msgs) != 1 {
		return fmt.Errorf("expected one message but got %d", len(msgs))
	}

	if expType != msgs[0].Type {
		return fmt.Errorf("unexpected message typ (%v): %v", expType, msgs[0].Type)
	}

	if !bytes.Equal(msg, msgs[0].Payload) {
		return fmt.Errorf("unexpected msg read: %#v", msgs[0].Payload)
	}

	return nil
}

func randMessage(typ websocket.MessageType, n int) []byte {
	if typ == websocket.MessageBinary {
		return xrand.Bytes(n)
	}
	return []byte(xrand.String(n))
}
