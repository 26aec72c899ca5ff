// Package wstest joins client and server Sessions in memory for tests.
package wstest

import (
	"fmt"

	"github.com/gwebsockets/websocket"
	"github.com/gwebsockets/websocket/internal/errd"
	"github.com/gwebsockets/websocket/internal/test/xrand"
)

// maxChunk bounds the random chunks Relay splits bytes into.
const maxChunk = 64

// Pipe returns a client and a server Session that completed the opening
// handshake with each other, analogous to net.Pipe.
// The handshake bytes are relayed in random chunks.
func Pipe(clientOpts, serverOpts *websocket.SessionOptions) (_, _ *websocket.Session, err error) {
	defer errd.Wrap(&err, "failed to create ws pipe")

	client := websocket.NewSession(websocket.RoleClient, clientOpts)
	server := websocket.NewSession(websocket.RoleServer, serverOpts)

	req, err := client.HandshakeRequest("example.com", "/")
	if err != nil {
		return nil, nil, err
	}

	resp, _, err := Relay(server, req)
	if err != nil {
		return nil, nil, fmt.Errorf("server rejected handshake: %w", err)
	}

	_, _, err = Relay(client, resp)
	if err != nil {
		return nil, nil, fmt.Errorf("client rejected handshake: %w", err)
	}

	return client, server, nil
}

// Relay feeds p to s in random chunks and returns everything s wrote back
// and every message it completed.
func Relay(s *websocket.Session, p []byte) (out []byte, msgs []websocket.Message, err error) {
	for _, c := range xrand.Chunks(p, maxChunk) {
		b, m, err := s.Feed(c)
		out = append(out, b...)
		msgs = append(msgs, m...)
		if err != nil {
			return out, msgs, err
		}
	}
	return out, msgs, nil
}
