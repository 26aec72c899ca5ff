// Package websocket is a sans-I/O implementation of the WebSocket protocol.
//
// See https://tools.ietf.org/html/rfc6455
//
// A Session turns the bytes of one connection into Messages and Messages
// into bytes. It never reads or writes a connection itself: the transport
// passes whatever it read to Session.Feed, in chunks of any size, and
// writes every byte slice the Session returns.
//
// An Engine tracks many Sessions keyed by connection id and reports their
// events to a Handler. Package wsnet runs an Engine over net.Conn.
//
// Use the errors.As function with *ProtocolError, *HandshakeError or
// CloseError to learn why a session closed.
package websocket
