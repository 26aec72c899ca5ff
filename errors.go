package websocket

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when a Session method is called in a
// phase that does not allow it, e.g. Send before the handshake
// completes or Feed after the session closed. It has no effect on
// the connection.
var ErrInvalidState = errors.New("websocket: invalid session state")

// ErrInvalidUTF8 is returned when sending a text message that is not
// valid UTF-8.
var ErrInvalidUTF8 = errors.New("websocket: text message is not valid UTF-8")

// HandshakeErrorKind classifies a failed opening handshake.
type HandshakeErrorKind int

// HandshakeErrorKind constants.
const (
	// HandshakeMissingKey means the request had no Sec-WebSocket-Key.
	HandshakeMissingKey HandshakeErrorKind = iota + 1
	// HandshakeMalformed means the request could not be parsed or
	// failed validation.
	HandshakeMalformed
	// HandshakeBadResponse means a client received an unacceptable
	// response to its upgrade request.
	HandshakeBadResponse
)

func (k HandshakeErrorKind) String() string {
	switch k {
	case HandshakeMissingKey:
		return "missing key"
	case HandshakeMalformed:
		return "malformed request"
	case HandshakeBadResponse:
		return "bad response"
	}
	return fmt.Sprintf("HandshakeErrorKind(%d)", int(k))
}

// HandshakeError is returned when the opening handshake fails.
// The connection is closed without a response.
type HandshakeError struct {
	Kind HandshakeErrorKind
	Err  error
}

func (e *HandshakeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("websocket handshake failed: %v", e.Kind)
	}
	return fmt.Sprintf("websocket handshake failed: %v: %v", e.Kind, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

func handshakeErrorf(kind HandshakeErrorKind, f string, v ...interface{}) error {
	return &HandshakeError{
		Kind: kind,
		Err:  fmt.Errorf(f, v...),
	}
}

// ProtocolErrorKind classifies a fatal protocol violation by the peer.
type ProtocolErrorKind int

// ProtocolErrorKind constants.
const (
	ReservedBitsSet ProtocolErrorKind = iota + 1
	InvalidOpcode
	OversizedControlFrame
	FragmentedControlFrame
	UnexpectedContinuation
	UnexpectedStart
	PayloadTooLarge
	MaskViolation
	InvalidUTF8
	InvalidClosePayload
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case ReservedBitsSet:
		return "reserved bits set"
	case InvalidOpcode:
		return "invalid opcode"
	case OversizedControlFrame:
		return "oversized control frame"
	case FragmentedControlFrame:
		return "fragmented control frame"
	case UnexpectedContinuation:
		return "unexpected continuation"
	case UnexpectedStart:
		return "unexpected start"
	case PayloadTooLarge:
		return "payload too large"
	case MaskViolation:
		return "mask violation"
	case InvalidUTF8:
		return "invalid utf-8"
	case InvalidClosePayload:
		return "invalid close payload"
	}
	return fmt.Sprintf("ProtocolErrorKind(%d)", int(k))
}

// status returns the close code sent to the peer for this kind.
// See https://tools.ietf.org/html/rfc6455#section-7.4.1
func (k ProtocolErrorKind) status() StatusCode {
	switch k {
	case PayloadTooLarge:
		return StatusMessageTooBig
	case InvalidUTF8:
		return StatusInvalidFramePayloadData
	}
	return StatusProtocolError
}

// ProtocolError is a fatal violation of RFC 6455 by the peer.
// The session stops processing input and closes.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket protocol violation: %v", e.Kind)
	}
	return fmt.Sprintf("websocket protocol violation: %v: %v", e.Kind, e.Reason)
}

func protocolErrorf(kind ProtocolErrorKind, f string, v ...interface{}) error {
	return &ProtocolError{
		Kind:   kind,
		Reason: fmt.Sprintf(f, v...),
	}
}

// ProtocolErrorKindOf is a convenience wrapper around errors.As to grab
// the kind of a *ProtocolError. If err is nil or not a *ProtocolError,
// the returned kind is -1.
func ProtocolErrorKindOf(err error) ProtocolErrorKind {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return -1
}
