package websocket

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/gwebsockets/websocket/internal/errd"
)

// Phase is the lifecycle phase of a Session. Phases only move forward.
type Phase int

// Phase constants.
const (
	PhaseAwaitingHandshake Phase = iota
	PhaseOpen
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingHandshake:
		return "awaiting handshake"
	case PhaseOpen:
		return "open"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// SessionOptions configures a Session.
// A nil *SessionOptions is valid and uses the defaults.
type SessionOptions struct {
	// Handshake configures the server side of the opening handshake.
	Handshake *HandshakeOptions

	// Subprotocols are offered by a client session in its upgrade request.
	Subprotocols []string

	// MaxFramePayload bounds the payload of a single received frame.
	// Defaults to DefaultMaxPayload.
	MaxFramePayload int64

	// MaxMessageSize bounds the size of a reassembled message.
	// Defaults to DefaultMaxPayload.
	MaxMessageSize int64

	// FragmentSize splits sent messages into frames carrying at most
	// this many payload bytes. Zero sends every message as one frame.
	FragmentSize int

	// SkipUTF8Validation disables the check that sent and received
	// text messages are valid UTF-8.
	SkipUTF8Validation bool

	// Rand is the source of client handshake keys and mask keys.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Session is the protocol state machine of one connection.
//
// It never performs I/O: bytes read from the transport are passed to Feed
// and every byte slice returned by Feed, Send, Ping and Close must be
// written to the transport in order.
//
// All methods are safe for concurrent use, but Feed calls must be
// serialized by the transport to keep the input stream in order.
type Session struct {
	mu sync.Mutex

	role  Role
	phase Phase
	buf   Buffer
	codec Codec
	asm   assembler

	handshake    *HandshakeOptions
	subprotocols []string
	fragmentSize int
	rand         io.Reader

	// key is the Sec-WebSocket-Key of a client session.
	key         string
	subprotocol string

	// upgraded is set once the opening handshake succeeded.
	upgraded bool
	lastPong []byte
	closeErr error
}

// NewSession returns a Session awaiting the opening handshake.
func NewSession(role Role, opts *SessionOptions) *Session {
	if opts == nil {
		opts = &SessionOptions{}
	}

	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}

	maxMessage := opts.MaxMessageSize
	if maxMessage <= 0 {
		maxMessage = DefaultMaxPayload
	}

	return &Session{
		role: role,
		codec: Codec{
			Role:       role,
			MaxPayload: opts.MaxFramePayload,
			Rand:       r,
		},
		asm: assembler{
			limit:    maxMessage,
			skipUTF8: opts.SkipUTF8Validation,
		},
		handshake:    opts.Handshake,
		subprotocols: opts.Subprotocols,
		fragmentSize: opts.FragmentSize,
		rand:         r,
	}
}

// Role returns the side of the connection s plays.
func (s *Session) Role() Role {
	return s.role
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Subprotocol returns the subprotocol selected during the handshake.
func (s *Session) Subprotocol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subprotocol
}

// Err returns why the session closed: a CloseError received from the
// peer, a *ProtocolError, a *HandshakeError or a CloseError with
// StatusAbnormalClosure when the transport went away first.
// It returns nil until the session is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

func (s *Session) handshakeDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgraded
}

// LastPong returns the payload of the most recent PONG received.
func (s *Session) LastPong() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong
}

// HandshakeRequest returns the upgrade request a client session must send
// before feeding the server's response. It may only be called once.
func (s *Session) HandshakeRequest(host, path string) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to build handshake request")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleClient || s.phase != PhaseAwaitingHandshake || s.key != "" {
		return nil, ErrInvalidState
	}

	s.key, err = makeSecWebSocketKey(s.rand)
	if err != nil {
		return nil, err
	}
	return clientHandshakeRequest(host, path, s.key, s.subprotocols), nil
}

// Feed appends bytes received from the transport and processes as much
// of them as possible.
//
// out holds the bytes that must be written back to the peer: the
// handshake response, automatic PONGs and CLOSE frames. msgs holds every
// message completed by p. A non nil error means the session is now closed;
// out then may still carry a CLOSE frame to send before closing the
// transport.
func (s *Session) Feed(p []byte) (out []byte, msgs []Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return nil, nil, ErrInvalidState
	}
	if s.phase == PhaseAwaitingHandshake && s.role == RoleClient && s.key == "" {
		return nil, nil, ErrInvalidState
	}

	s.buf.Append(p)

	if s.phase == PhaseAwaitingHandshake {
		out, err = s.completeHandshake()
		if err != nil || s.phase != PhaseOpen {
			return out, nil, err
		}
	}

	for s.phase == PhaseOpen || s.phase == PhaseClosing {
		f, ok, err := s.codec.Decode(&s.buf)
		if err != nil {
			b, err := s.fail(err)
			return append(out, b...), msgs, err
		}
		if !ok {
			break
		}

		if f.Opcode.Control() {
			b, err := s.handleControl(f)
			out = append(out, b...)
			if err != nil {
				b, err := s.fail(err)
				return append(out, b...), msgs, err
			}
			continue
		}

		msg, ok, err := s.asm.push(f)
		if err != nil {
			b, err := s.fail(err)
			return append(out, b...), msgs, err
		}
		if ok {
			msgs = append(msgs, msg)
		}
	}

	return out, msgs, nil
}

func (s *Session) completeHandshake() ([]byte, error) {
	max := s.handshake.maxRequestSize()

	end := handshakeEnd(s.buf.Bytes())
	if end < 0 {
		if s.buf.Available() > max {
			return nil, s.abortHandshake(handshakeErrorf(HandshakeMalformed, "handshake exceeds %d bytes", max))
		}
		return nil, nil
	}
	if end > max {
		return nil, s.abortHandshake(handshakeErrorf(HandshakeMalformed, "handshake of %d bytes exceeds %d bytes", end, max))
	}

	head := s.buf.Read(end)

	if s.role == RoleClient {
		subproto, err := verifyServerResponse(head, s.key, s.subprotocols)
		if err != nil {
			return nil, s.abortHandshake(err)
		}
		s.subprotocol = subproto
		s.phase = PhaseOpen
		s.upgraded = true
		return nil, nil
	}

	resp, subproto, err := negotiate(head, s.handshake)
	if err != nil {
		return nil, s.abortHandshake(err)
	}
	s.subprotocol = subproto
	s.phase = PhaseOpen
	s.upgraded = true
	return resp, nil
}

func (s *Session) abortHandshake(err error) error {
	s.phase = PhaseClosed
	s.closeErr = err
	s.buf.Reset()
	return err
}

func (s *Session) handleControl(f Frame) ([]byte, error) {
	switch f.Opcode {
	case OpPing:
		if s.phase != PhaseOpen {
			return nil, nil
		}
		return s.codec.Encode(Frame{Fin: true, Opcode: OpPong, Payload: f.Payload})
	case OpPong:
		s.lastPong = f.Payload
		return nil, nil
	}

	ce, err := readClosePayload(f.Payload)
	if err != nil {
		return nil, protocolErrorf(InvalidClosePayload, "received invalid close payload: %v", err)
	}

	var out []byte
	if s.phase == PhaseOpen {
		// Echo the status code back.
		// See https://tools.ietf.org/html/rfc6455#section-5.5.1
		s.phase = PhaseClosing
		p, err := CloseError{Code: ce.Code}.bytes()
		if err != nil {
			return nil, err
		}
		out, err = s.codec.Encode(Frame{Fin: true, Opcode: OpClose, Payload: p})
		if err != nil {
			return nil, err
		}
	}
	s.closed(ce)
	return out, nil
}

// fail closes the session after err, returning a CLOSE frame for the
// peer if one has not been sent yet. The returned error is err, joined
// with the reason the CLOSE frame could not be built if any.
func (s *Session) fail(err error) ([]byte, error) {
	var out []byte
	if s.phase == PhaseOpen {
		code := StatusProtocolError
		reason := ""
		var pe *ProtocolError
		if errors.As(err, &pe) {
			code = pe.Kind.status()
			reason = pe.Kind.String()
		}
		p, perr := CloseError{Code: code, Reason: reason}.bytes()
		if perr != nil {
			p, _ = CloseError{Code: StatusInternalError}.bytes()
		}
		b, eerr := s.codec.Encode(Frame{Fin: true, Opcode: OpClose, Payload: p})
		if eerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to write close frame: %w", eerr))
		}
		out = b
	}
	s.closed(err)
	return out, err
}

func (s *Session) closed(err error) {
	s.phase = PhaseClosed
	if s.closeErr == nil {
		s.closeErr = err
	}
	s.asm.reset()
	s.buf.Reset()
}

// Send encodes a message for the peer. It is only valid while the
// session is open; otherwise it fails with ErrInvalidState.
// A text message that is not valid UTF-8 fails with ErrInvalidUTF8
// and leaves the session unchanged.
func (s *Session) Send(typ MessageType, p []byte) (_ []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseOpen {
		return nil, ErrInvalidState
	}
	if typ != MessageText && typ != MessageBinary {
		return nil, fmt.Errorf("cannot send message of type %v", typ)
	}
	if typ == MessageText && !s.asm.skipUTF8 && !utf8.Valid(p) {
		return nil, ErrInvalidUTF8
	}

	if s.fragmentSize <= 0 || len(p) <= s.fragmentSize {
		return s.codec.Encode(Frame{Fin: true, Opcode: typ.opcode(), Payload: p})
	}

	var out []byte
	op := typ.opcode()
	for len(p) > 0 {
		n := s.fragmentSize
		if n > len(p) {
			n = len(p)
		}
		b, err := s.codec.Encode(Frame{Fin: n == len(p), Opcode: op, Payload: p[:n]})
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		op = OpContinuation
		p = p[n:]
	}
	return out, nil
}

// Ping encodes a PING frame carrying p. The peer's PONG is reported by
// LastPong.
func (s *Session) Ping(p []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseOpen {
		return nil, ErrInvalidState
	}
	return s.codec.Encode(Frame{Fin: true, Opcode: OpPing, Payload: p})
}

// Close starts the closing handshake and returns the CLOSE frame to send.
// The session stays in PhaseClosing until the peer's CLOSE is fed or the
// transport reports closure.
func (s *Session) Close(code StatusCode, reason string) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to close WebSocket")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseOpen {
		return nil, ErrInvalidState
	}

	p, err := CloseError{Code: code, Reason: reason}.bytes()
	if err != nil {
		return nil, err
	}
	b, err := s.codec.Encode(Frame{Fin: true, Opcode: OpClose, Payload: p})
	if err != nil {
		return nil, err
	}
	s.phase = PhaseClosing
	return b, nil
}

// ConnectionClosed records that the transport went away.
func (s *Session) ConnectionClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return
	}
	s.closed(CloseError{Code: StatusAbnormalClosure})
}
