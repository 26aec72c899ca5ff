package wsnet

import (
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/time/rate"
)

type pendingWrite struct {
	p         []byte
	onWritten func(error)
}

// conn is one connection of a Transport. Writes are queued and performed
// in order by writeLoop so the Engine never blocks on the network.
type conn struct {
	id      string
	nc      net.Conn
	limiter *rate.Limiter
	timeout time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	writes  *queue.Queue
	closing bool
	aborted bool

	done chan struct{}
}

func newConn(id string, nc net.Conn, limiter *rate.Limiter, timeout time.Duration) *conn {
	c := &conn{
		id:      id,
		nc:      nc,
		limiter: limiter,
		timeout: timeout,
		writes:  queue.New(),
		done:    make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *conn) enqueue(p []byte, onWritten func(error)) {
	c.mu.Lock()
	if c.closing || c.aborted {
		c.mu.Unlock()
		if onWritten != nil {
			onWritten(net.ErrClosed)
		}
		return
	}
	c.writes.Add(pendingWrite{p: p, onWritten: onWritten})
	c.mu.Unlock()

	c.cond.Signal()
}

// next blocks until a write is queued. ok is false once the queue is
// drained and the connection is closing.
func (c *conn) next() (w pendingWrite, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.writes.Length() == 0 && !c.closing && !c.aborted {
		c.cond.Wait()
	}
	if c.aborted || c.writes.Length() == 0 {
		return pendingWrite{}, false
	}
	return c.writes.Remove().(pendingWrite), true
}

func (c *conn) writeLoop() {
	defer close(c.done)
	defer c.nc.Close()
	defer c.failPending()

	for {
		w, ok := c.next()
		if !ok {
			return
		}

		_, err := c.nc.Write(w.p)
		if w.onWritten != nil {
			w.onWritten(err)
		}
		if err != nil {
			c.abort()
			return
		}
	}
}

func (c *conn) failPending() {
	c.mu.Lock()
	var pending []pendingWrite
	for c.writes.Length() > 0 {
		pending = append(pending, c.writes.Remove().(pendingWrite))
	}
	c.mu.Unlock()

	for _, w := range pending {
		if w.onWritten != nil {
			w.onWritten(net.ErrClosed)
		}
	}
}

// close closes the connection once every queued write is done or the
// close timeout expired.
func (c *conn) close() {
	c.mu.Lock()
	closing := c.closing
	c.closing = true
	c.mu.Unlock()

	if !closing {
		// A peer that stops reading must not hold the connection open.
		c.nc.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	c.cond.Broadcast()
}

// abort closes the connection immediately.
func (c *conn) abort() {
	c.mu.Lock()
	aborted := c.aborted
	c.aborted = true
	c.mu.Unlock()

	c.cond.Broadcast()
	if !aborted {
		c.nc.Close()
	}
}

// wait blocks until the write loop exited.
func (c *conn) wait() {
	<-c.done
}
