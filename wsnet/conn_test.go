package wsnet

import (
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/gwebsockets/websocket/internal/test/assert"
)

func TestConnClose(t *testing.T) {
	t.Parallel()

	t.Run("flushes", func(t *testing.T) {
		t.Parallel()

		a, b := net.Pipe()
		defer b.Close()

		c := newConn("pipe", a, rate.NewLimiter(rate.Inf, 1), time.Second*5)
		go c.writeLoop()

		written := make(chan error, 1)
		c.enqueue([]byte("bye"), func(err error) {
			written <- err
		})
		c.close()

		p := make([]byte, 3)
		_, err := b.Read(p)
		assert.Success(t, err)
		assert.Equal(t, "flushed", "bye", string(p))

		c.wait()
		assert.Success(t, <-written)

		c.enqueue([]byte("late"), func(err error) {
			written <- err
		})
		assert.ErrorIs(t, net.ErrClosed, <-written)
	})

	t.Run("peerNotReading", func(t *testing.T) {
		t.Parallel()

		a, b := net.Pipe()
		defer b.Close()

		c := newConn("pipe", a, rate.NewLimiter(rate.Inf, 1), time.Millisecond*50)
		go c.writeLoop()

		written := make(chan error, 1)
		c.enqueue([]byte("never read"), func(err error) {
			written <- err
		})
		c.close()

		select {
		case <-c.done:
		case <-time.After(time.Second * 5):
			t.Fatal("write loop did not give up on the close flush")
		}
		assert.ErrorIs(t, os.ErrDeadlineExceeded, <-written)
	})
}
