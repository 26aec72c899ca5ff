package websocket

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrUnknownSession is returned for operations on a session id the
// Engine does not know.
var ErrUnknownSession = errors.New("websocket: unknown session")

// Transport is implemented by whatever owns the connections.
// The Engine never performs I/O itself.
type Transport interface {
	// Write queues p for the connection. onWritten, if non nil, is
	// called once p has been written or the write failed.
	Write(id string, p []byte, onWritten func(error))
	// Close closes the connection. The transport must then report
	// it with Engine.OnConnectionClosed.
	Close(id string) error
}

// Handler receives session events from the Engine.
// Callbacks run without any Engine lock held so they may call back
// into the Engine, e.g. to Send a reply.
type Handler interface {
	OnSessionOpen(id string)
	OnMessage(id string, msg Message)
}

// CloseHandler may additionally be implemented by a Handler to learn
// why a session closed.
type CloseHandler interface {
	OnSessionClose(id string, err error)
}

// Options configures an Engine.
// A nil *Options is valid and uses the defaults.
type Options struct {
	// Session configures every session the Engine creates.
	Session *SessionOptions

	// Logger receives session lifecycle events at debug level.
	// Defaults to discarding everything.
	Logger *slog.Logger
}

// Engine routes transport events to independent per connection Sessions
// and session events to the application Handler.
type Engine struct {
	transport Transport
	handler   Handler
	sessOpts  *SessionOptions
	log       *slog.Logger

	connsMu sync.RWMutex
	conns   map[string]*engineConn
}

type engineConn struct {
	s *Session

	// writeMu keeps the bytes produced by s in order on the transport.
	writeMu sync.Mutex
	opened  bool
	closed  bool
}

// NewEngine returns an Engine writing to t and reporting to h.
func NewEngine(t Transport, h Handler, opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		transport: t,
		handler:   h,
		sessOpts:  opts.Session,
		log:       log,
		conns:     make(map[string]*engineConn),
	}
}

// Len returns the number of sessions the Engine tracks.
func (e *Engine) Len() int {
	e.connsMu.RLock()
	defer e.connsMu.RUnlock()
	return len(e.conns)
}

// Session returns the Session for id.
func (e *Engine) Session(id string) (*Session, bool) {
	c, ok := e.conn(id)
	if !ok {
		return nil, false
	}
	return c.s, true
}

func (e *Engine) conn(id string) (*engineConn, bool) {
	e.connsMu.RLock()
	defer e.connsMu.RUnlock()
	c, ok := e.conns[id]
	return c, ok
}

// OnConnectionOpened reports that the transport accepted the connection
// id and starts a server session awaiting the opening handshake on it.
// The session lives until OnConnectionClosed.
func (e *Engine) OnConnectionOpened(id string) error {
	e.connsMu.Lock()
	defer e.connsMu.Unlock()

	if _, ok := e.conns[id]; ok {
		return fmt.Errorf("websocket: session %q already exists", id)
	}
	e.conns[id] = &engineConn{s: NewSession(RoleServer, e.sessOpts)}
	e.log.Debug("websocket session created", "id", id, "role", RoleServer)
	return nil
}

// Dial starts a client session on the connection id by writing the
// upgrade request for host and path.
func (e *Engine) Dial(id, host, path string) error {
	e.connsMu.Lock()
	if _, ok := e.conns[id]; ok {
		e.connsMu.Unlock()
		return fmt.Errorf("websocket: session %q already exists", id)
	}
	c := &engineConn{s: NewSession(RoleClient, e.sessOpts)}
	e.conns[id] = c
	e.connsMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	req, err := c.s.HandshakeRequest(host, path)
	if err != nil {
		e.connsMu.Lock()
		delete(e.conns, id)
		e.connsMu.Unlock()
		return err
	}
	e.log.Debug("websocket session created", "id", id, "role", RoleClient)
	e.transport.Write(id, req, nil)
	return nil
}

// OnBytesReceived feeds bytes read from the connection id, which must
// have been reported with OnConnectionOpened or started with Dial.
// Otherwise it fails with ErrUnknownSession.
//
// The transport must not call it concurrently for the same id. A returned
// *HandshakeError or *ProtocolError means the session closed and the
// transport was asked to close the connection.
func (e *Engine) OnBytesReceived(id string, p []byte) error {
	c, ok := e.conn(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}

	c.writeMu.Lock()
	out, msgs, err := c.s.Feed(p)
	if len(out) > 0 {
		e.transport.Write(id, out, nil)
	}
	phase := c.s.Phase()
	opened := !c.opened && c.s.handshakeDone()
	if opened {
		c.opened = true
	}
	closed := !c.closed && phase == PhaseClosed
	if closed {
		c.closed = true
	}
	c.writeMu.Unlock()

	if closed {
		// The transport may report the closure synchronously.
		cerr := e.transport.Close(id)
		if cerr != nil {
			e.log.Debug("websocket transport close failed", "id", id, "err", cerr)
		}
	}

	if opened {
		e.log.Debug("websocket session opened", "id", id, "subprotocol", c.s.Subprotocol())
		e.handler.OnSessionOpen(id)
	}
	for _, msg := range msgs {
		e.handler.OnMessage(id, msg)
	}
	if closed {
		e.sessionClosed(id, c.s.Err())
	}

	if errors.Is(err, ErrInvalidState) {
		return fmt.Errorf("websocket: received bytes on closed session %q: %w", id, err)
	}
	return err
}

// OnConnectionClosed reports that the connection id went away and
// forgets its session.
func (e *Engine) OnConnectionClosed(id string) {
	e.connsMu.Lock()
	c, ok := e.conns[id]
	delete(e.conns, id)
	e.connsMu.Unlock()
	if !ok {
		return
	}

	c.writeMu.Lock()
	c.s.ConnectionClosed()
	closed := !c.closed
	c.closed = true
	c.writeMu.Unlock()

	if closed {
		e.sessionClosed(id, c.s.Err())
	}
	e.log.Debug("websocket session removed", "id", id)
}

func (e *Engine) sessionClosed(id string, err error) {
	e.log.Debug("websocket session closed", "id", id, "err", err)
	if ch, ok := e.handler.(CloseHandler); ok {
		ch.OnSessionClose(id, err)
	}
}

// Send sends a message on session id. onWritten, if non nil, is passed
// to the transport. It fails with ErrInvalidState unless the session is open.
func (e *Engine) Send(id string, typ MessageType, p []byte, onWritten func(error)) error {
	return e.write(id, onWritten, func(s *Session) ([]byte, error) {
		return s.Send(typ, p)
	})
}

// Ping sends a PING carrying p on session id.
func (e *Engine) Ping(id string, p []byte) error {
	return e.write(id, nil, func(s *Session) ([]byte, error) {
		return s.Ping(p)
	})
}

// Close starts the closing handshake on session id. The connection is
// closed once the peer's CLOSE arrives.
func (e *Engine) Close(id string, code StatusCode, reason string) error {
	return e.write(id, nil, func(s *Session) ([]byte, error) {
		return s.Close(code, reason)
	})
}

func (e *Engine) write(id string, onWritten func(error), fn func(s *Session) ([]byte, error)) error {
	c, ok := e.conn(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	b, err := fn(c.s)
	if err != nil {
		return err
	}
	e.transport.Write(id, b, onWritten)
	return nil
}
