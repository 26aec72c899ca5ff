package bufpool

import (
	"strconv"
	"testing"

	"github.com/gwebsockets/websocket/internal/test/assert"
)

func TestDetach(t *testing.T) {
	t.Parallel()

	b := Get()
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	p := Detach(b)
	assert.Equal(t, "detached", "HTTP/1.1 101 Switching Protocols\r\n", string(p))

	b2 := Get()
	assert.Equal(t, "reused length", 0, b2.Len())
	Put(b2)
}

func BenchmarkPool(b *testing.B) {
	sizes := []int{
		2,
		16,
		128,
		4096,
		16384,
	}
	for _, size := range sizes {
		p := make([]byte, size)
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buf := Get()
				buf.Write(p)
				Put(buf)
			}
		})
	}
}
