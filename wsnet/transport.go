// Package wsnet runs a websocket.Engine over net.Conn connections.
//
// A Transport owns one read goroutine and one write goroutine per
// connection. Everything protocol related is left to the Engine.
package wsnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/gwebsockets/websocket"
)

// DefaultReadBufferSize is used when Options.ReadBufferSize is zero.
const DefaultReadBufferSize = 32 << 10

// DefaultCloseTimeout is used when Options.CloseTimeout is zero.
const DefaultCloseTimeout = 5 * time.Second

// ErrShutdown is returned for connections handed to a Transport after
// Shutdown.
var ErrShutdown = errors.New("wsnet: transport shut down")

// Options configures a Transport.
// A nil *Options is valid and uses the defaults.
type Options struct {
	// Engine configures the Engine the Transport drives.
	Engine *websocket.Options

	// ReadLimit bounds the bytes per second read from each connection.
	// Zero means no limit.
	ReadLimit rate.Limit

	// ReadBufferSize is the size of each connection's read buffer.
	// Defaults to DefaultReadBufferSize.
	ReadBufferSize int

	// CloseTimeout bounds the time spent flushing queued writes once a
	// connection is closing. Defaults to DefaultCloseTimeout.
	CloseTimeout time.Duration

	// Logger receives connection events at debug level.
	// Defaults to Engine.Logger or to discarding everything.
	Logger *slog.Logger
}

// Transport implements websocket.Transport over net.Conn.
type Transport struct {
	engine  *websocket.Engine
	log     *slog.Logger
	bufSize int
	limit   rate.Limit
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	nextID atomic.Uint64

	connsMu sync.Mutex
	conns   map[string]*conn
}

var _ websocket.Transport = &Transport{}

// NewTransport returns a Transport delivering session events to h.
func NewTransport(h websocket.Handler, opts *Options) *Transport {
	if opts == nil {
		opts = &Options{}
	}

	engineOpts := &websocket.Options{}
	if opts.Engine != nil {
		*engineOpts = *opts.Engine
	}

	log := opts.Logger
	if log == nil {
		log = engineOpts.Logger
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if engineOpts.Logger == nil {
		engineOpts.Logger = log
	}

	bufSize := opts.ReadBufferSize
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = rate.Inf
	}

	timeout := opts.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}

	t := &Transport{
		log:     log,
		bufSize: bufSize,
		limit:   limit,
		timeout: timeout,
		conns:   make(map[string]*conn),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.engine = websocket.NewEngine(t, h, engineOpts)
	return t
}

// Engine returns the Engine driven by t. Use it to send messages.
func (t *Transport) Engine() *websocket.Engine {
	return t.engine
}

// Serve accepts connections on l and starts a server session for each
// until l fails or t is shut down. It returns nil once l is closed.
func (t *Transport) Serve(l net.Listener) error {
	for {
		nc, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}
		_, err = t.Attach(nc, nil)
		if err != nil {
			return err
		}
	}
}

// Attach starts a server session on nc. buffered holds bytes already read
// from nc, e.g. by an HTTP server, and is fed before anything else.
// It returns the session id. After Shutdown, nc is closed and Attach
// fails with ErrShutdown.
func (t *Transport) Attach(nc net.Conn, buffered []byte) (string, error) {
	c, err := t.register(nc)
	if err != nil {
		return "", err
	}
	err = t.engine.OnConnectionOpened(c.id)
	if err != nil {
		t.discard(c)
		return "", err
	}
	t.start(c, buffered)
	return c.id, nil
}

// Dial connects to addr and starts a client session requesting path.
// It returns the session id once the upgrade request is queued; the
// Handler's OnSessionOpen reports when the server accepted it.
func (t *Transport) Dial(ctx context.Context, addr, path string) (string, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to dial %v: %w", addr, err)
	}

	c, err := t.register(nc)
	if err != nil {
		return "", err
	}
	err = t.engine.Dial(c.id, addr, path)
	if err != nil {
		t.discard(c)
		return "", err
	}
	t.start(c, nil)
	return c.id, nil
}

// register tracks nc and starts its write loop. The read loop is
// accounted for as well and must be started with start or released
// with discard.
func (t *Transport) register(nc net.Conn) (*conn, error) {
	id := nc.RemoteAddr().String() + "#" + strconv.FormatUint(t.nextID.Add(1), 10)
	c := newConn(id, nc, rate.NewLimiter(t.limit, t.bufSize), t.timeout)

	t.connsMu.Lock()
	if t.ctx.Err() != nil {
		t.connsMu.Unlock()
		nc.Close()
		return nil, ErrShutdown
	}
	t.conns[id] = c
	t.wg.Add(2)
	t.connsMu.Unlock()

	go func() {
		defer t.wg.Done()
		c.writeLoop()
	}()

	t.log.Debug("connection registered", "id", id, "remote", nc.RemoteAddr())
	return c, nil
}

func (t *Transport) start(c *conn, buffered []byte) {
	go func() {
		defer t.wg.Done()
		t.readLoop(c, buffered)
	}()
}

func (t *Transport) discard(c *conn) {
	c.abort()
	t.unregister(c.id)
	t.wg.Done()
}

func (t *Transport) conn(id string) (*conn, bool) {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	c, ok := t.conns[id]
	return c, ok
}

func (t *Transport) unregister(id string) {
	t.connsMu.Lock()
	delete(t.conns, id)
	t.connsMu.Unlock()
}

func (t *Transport) readLoop(c *conn, buffered []byte) {
	defer func() {
		c.abort()
		t.unregister(c.id)
		t.engine.OnConnectionClosed(c.id)
	}()

	if len(buffered) > 0 {
		err := t.engine.OnBytesReceived(c.id, buffered)
		if err != nil {
			t.log.Debug("session failed", "id", c.id, "err", err)
			return
		}
	}

	b := make([]byte, t.bufSize)
	for {
		n, err := c.nc.Read(b)
		if n > 0 {
			werr := c.limiter.WaitN(t.ctx, n)
			if werr != nil {
				return
			}

			ferr := t.engine.OnBytesReceived(c.id, b[:n])
			if ferr != nil {
				t.log.Debug("session failed", "id", c.id, "err", ferr)
				c.close()
				c.wait()
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				t.log.Debug("connection read failed", "id", c.id, "err", err)
			}
			return
		}
	}
}

// Write implements websocket.Transport.
func (t *Transport) Write(id string, p []byte, onWritten func(error)) {
	c, ok := t.conn(id)
	if !ok {
		if onWritten != nil {
			onWritten(net.ErrClosed)
		}
		return
	}
	c.enqueue(p, onWritten)
}

// Close implements websocket.Transport. Queued writes are flushed before
// the connection is closed.
func (t *Transport) Close(id string) error {
	c, ok := t.conn(id)
	if !ok {
		return fmt.Errorf("unknown connection %q", id)
	}
	c.close()
	return nil
}

// Shutdown closes every connection without flushing and waits for their
// goroutines to exit.
func (t *Transport) Shutdown() {
	t.connsMu.Lock()
	t.cancel()
	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.connsMu.Unlock()

	for _, c := range conns {
		c.abort()
	}
	t.wg.Wait()
}
