// Package wsframe implements the RFC 6455 frame header wire format
// and payload masking.
package wsframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Opcode represents a WebSocket Opcode.
type Opcode int

// Opcode constants.
const (
	OpContinuation Opcode = iota
	OpText
	OpBinary
	// 3 - 7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	OpClose
	OpPing
	OpPong
	// 11-16 are reserved for further control frames.
)

// Control reports whether o is a control opcode.
func (o Opcode) Control() bool {
	switch o {
	case OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// Data reports whether o starts a data message.
func (o Opcode) Data() bool {
	switch o {
	case OpText, OpBinary:
		return true
	}
	return false
}

// Valid reports whether o is defined by RFC 6455.
func (o Opcode) Valid() bool {
	return o == OpContinuation || o.Data() || o.Control()
}

// MaxHeaderSize is the largest possible header.
// First byte contains fin, rsv1, rsv2, rsv3.
// Second byte contains mask flag and payload len.
// Next 8 bytes are the maximum extended payload length.
// Last 4 bytes are the mask key.
// https://tools.ietf.org/html/rfc6455#section-5.2
const MaxHeaderSize = 1 + 1 + 8 + 4

// MaxControlFramePayload is the largest payload a control frame may carry.
// See https://tools.ietf.org/html/rfc6455#section-5.5
const MaxControlFramePayload = 125

// ErrNegativeLength is returned when a 64 bit extended payload
// length has its most significant bit set.
var ErrNegativeLength = errors.New("header with negative payload length")

// Header represents a WebSocket frame Header.
// See https://tools.ietf.org/html/rfc6455#section-5.2
type Header struct {
	Fin    bool
	RSV1   bool
	RSV2   bool
	RSV3   bool
	Opcode Opcode

	PayloadLength int64

	Masked bool
	// MaskKey is stored little endian so it can be fed to Mask directly.
	MaskKey uint32
}

// Append appends the wire bytes of the Header to b.
// See https://tools.ietf.org/html/rfc6455#section-5.2
func (h Header) Append(b []byte) []byte {
	var b0 byte
	if h.Fin {
		b0 |= 1 << 7
	}
	if h.RSV1 {
		b0 |= 1 << 6
	}
	if h.RSV2 {
		b0 |= 1 << 5
	}
	if h.RSV3 {
		b0 |= 1 << 4
	}
	b0 |= byte(h.Opcode)

	var b1 byte
	if h.Masked {
		b1 |= 1 << 7
	}

	switch {
	case h.PayloadLength < 0:
		panic(fmt.Sprintf("websocket: invalid header: negative length: %v", h.PayloadLength))
	case h.PayloadLength <= 125:
		b = append(b, b0, b1|byte(h.PayloadLength))
	case h.PayloadLength <= math.MaxUint16:
		b = append(b, b0, b1|126)
		b = binary.BigEndian.AppendUint16(b, uint16(h.PayloadLength))
	default:
		b = append(b, b0, b1|127)
		b = binary.BigEndian.AppendUint64(b, uint64(h.PayloadLength))
	}

	if h.Masked {
		b = binary.LittleEndian.AppendUint32(b, h.MaskKey)
	}

	return b
}

// Size returns the number of bytes Append writes for h.
func (h Header) Size() int {
	n := 2
	switch {
	case h.PayloadLength > math.MaxUint16:
		n += 8
	case h.PayloadLength > 125:
		n += 2
	}
	if h.Masked {
		n += 4
	}
	return n
}

// Parse parses a Header from the front of p without retaining p.
// It returns the number of header bytes used. n == 0 with a nil error
// means p does not yet hold the whole header and more bytes are needed.
func Parse(p []byte) (h Header, n int, err error) {
	// The first two bytes tell us exactly how long the Header is.
	if len(p) < 2 {
		return Header{}, 0, nil
	}

	h.Fin = p[0]&(1<<7) != 0
	h.RSV1 = p[0]&(1<<6) != 0
	h.RSV2 = p[0]&(1<<5) != 0
	h.RSV3 = p[0]&(1<<4) != 0
	h.Opcode = Opcode(p[0] & 0xf)

	h.Masked = p[1]&(1<<7) != 0
	payloadLength := p[1] &^ (1 << 7)

	n = 2
	switch payloadLength {
	case 126:
		n += 2
	case 127:
		n += 8
	}
	if h.Masked {
		n += 4
	}
	if len(p) < n {
		return Header{}, 0, nil
	}

	ext := p[2:n]
	switch payloadLength {
	case 126:
		h.PayloadLength = int64(binary.BigEndian.Uint16(ext))
		ext = ext[2:]
	case 127:
		h.PayloadLength = int64(binary.BigEndian.Uint64(ext))
		if h.PayloadLength < 0 {
			return Header{}, 0, ErrNegativeLength
		}
		ext = ext[8:]
	default:
		h.PayloadLength = int64(payloadLength)
	}

	if h.Masked {
		h.MaskKey = binary.LittleEndian.Uint32(ext)
	}

	return h, n, nil
}

// ParseClosePayload splits a close frame payload into its status code and reason.
func ParseClosePayload(p []byte) (uint16, string, error) {
	if len(p) < 2 {
		return 0, "", fmt.Errorf("close payload %q too small, cannot even contain the 2 byte status code", p)
	}

	return binary.BigEndian.Uint16(p), string(p[2:]), nil
}

// AppendClosePayload appends a close frame payload carrying code and
// reason to b.
func AppendClosePayload(b []byte, code uint16, reason string) []byte {
	b = binary.BigEndian.AppendUint16(b, code)
	return append(b, reason...)
}
