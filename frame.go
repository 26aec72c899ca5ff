package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gwebsockets/websocket/internal/errd"
	"github.com/gwebsockets/websocket/internal/wsframe"
)

// Role is the side of the connection a Session or Codec plays.
// It decides which direction of traffic must be masked.
type Role int

// Role constants.
const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// DefaultMaxPayload is the frame payload limit used when
// Codec.MaxPayload is zero.
const DefaultMaxPayload = 32 << 20

// Frame is one unit of the WebSocket wire format.
// See https://tools.ietf.org/html/rfc6455#section-5.2
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	// Payload is always unmasked.
	Payload []byte
}

// Codec decodes and encodes single frames for one side of a connection.
// Frames from a client must be masked and frames from a server must not be.
// The zero value is a server codec.
type Codec struct {
	Role Role

	// MaxPayload bounds the payload length Decode accepts.
	// Defaults to DefaultMaxPayload.
	MaxPayload int64

	// Rand is the source of mask keys for client frames.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader
}

func (c Codec) maxPayload() int64 {
	if c.MaxPayload <= 0 {
		return DefaultMaxPayload
	}
	return c.MaxPayload
}

// Decode decodes one frame from the front of b.
//
// If b does not yet hold the whole frame, Decode returns ok == false and a
// nil error without consuming anything, so it can be retried once more bytes
// are appended. On success exactly the frame's bytes are consumed.
// Structural violations are reported as *ProtocolError as soon as the
// header is available.
func (c Codec) Decode(b *Buffer) (f Frame, ok bool, err error) {
	h, n, err := wsframe.Parse(b.Peek(wsframe.MaxHeaderSize))
	if err != nil {
		if errors.Is(err, wsframe.ErrNegativeLength) {
			return Frame{}, false, protocolErrorf(PayloadTooLarge, "%v", err)
		}
		return Frame{}, false, err
	}
	if n == 0 {
		return Frame{}, false, nil
	}

	err = c.verifyHeader(h)
	if err != nil {
		return Frame{}, false, err
	}

	if int64(b.Available()-n) < h.PayloadLength {
		return Frame{}, false, nil
	}

	b.Discard(n)
	payload := make([]byte, h.PayloadLength)
	copy(payload, b.Read(int(h.PayloadLength)))

	f = Frame{
		Fin:     h.Fin,
		Opcode:  Opcode(h.Opcode),
		Masked:  h.Masked,
		Payload: payload,
	}
	if h.Masked {
		binary.LittleEndian.PutUint32(f.MaskKey[:], h.MaskKey)
		wsframe.Mask(h.MaskKey, f.Payload)
	}

	return f, true, nil
}

func (c Codec) verifyHeader(h wsframe.Header) error {
	if h.RSV1 || h.RSV2 || h.RSV3 {
		return protocolErrorf(ReservedBitsSet, "received header with unexpected rsv bits set: %v:%v:%v", h.RSV1, h.RSV2, h.RSV3)
	}

	if !h.Opcode.Valid() {
		return protocolErrorf(InvalidOpcode, "received unknown opcode %v", Opcode(h.Opcode))
	}

	if h.Opcode.Control() {
		if h.PayloadLength > wsframe.MaxControlFramePayload {
			return protocolErrorf(OversizedControlFrame, "received %v frame with payload length %d", Opcode(h.Opcode), h.PayloadLength)
		}
		if !h.Fin {
			return protocolErrorf(FragmentedControlFrame, "received fragmented %v frame", Opcode(h.Opcode))
		}
	}

	switch {
	case c.Role == RoleServer && !h.Masked:
		return protocolErrorf(MaskViolation, "received unmasked frame from client")
	case c.Role == RoleClient && h.Masked:
		return protocolErrorf(MaskViolation, "received masked frame from server")
	}

	if h.PayloadLength > c.maxPayload() {
		return protocolErrorf(PayloadTooLarge, "frame payload length %d exceeds limit %d", h.PayloadLength, c.maxPayload())
	}

	return nil
}

// Encode returns the wire bytes of f, using the minimal length encoding.
//
// A server codec refuses masked frames. A client codec always masks: it uses
// f.MaskKey when f.Masked is set and otherwise draws a fresh key from Rand.
// f.Payload is never modified.
func (c Codec) Encode(f Frame) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to encode %v frame", f.Opcode)

	if !f.Opcode.valid() {
		return nil, fmt.Errorf("invalid opcode %v", f.Opcode)
	}
	if f.Opcode.Control() {
		if len(f.Payload) > wsframe.MaxControlFramePayload {
			return nil, fmt.Errorf("control frame payload length %d exceeds %d", len(f.Payload), wsframe.MaxControlFramePayload)
		}
		if !f.Fin {
			return nil, errors.New("control frames cannot be fragmented")
		}
	}

	h := wsframe.Header{
		Fin:           f.Fin,
		Opcode:        wsframe.Opcode(f.Opcode),
		PayloadLength: int64(len(f.Payload)),
	}

	switch c.Role {
	case RoleServer:
		if f.Masked {
			return nil, errors.New("server frames must not be masked")
		}
	case RoleClient:
		key := f.MaskKey
		if !f.Masked {
			key, err = c.maskKey()
			if err != nil {
				return nil, err
			}
		}
		h.Masked = true
		h.MaskKey = binary.LittleEndian.Uint32(key[:])
	}

	b := make([]byte, 0, h.Size()+len(f.Payload))
	b = h.Append(b)
	b = append(b, f.Payload...)
	if h.Masked {
		wsframe.Mask(h.MaskKey, b[len(b)-len(f.Payload):])
	}

	return b, nil
}

func (c Codec) maskKey() (key [4]byte, err error) {
	r := c.Rand
	if r == nil {
		r = rand.Reader
	}
	_, err = io.ReadFull(r, key[:])
	if err != nil {
		return key, fmt.Errorf("failed to generate mask key: %w", err)
	}
	return key, nil
}
