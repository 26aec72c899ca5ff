package websocket

import (
	"testing"

	"github.com/gwebsockets/websocket/internal/test/assert"
)

func TestAssembler(t *testing.T) {
	t.Parallel()

	t.Run("fragmented", func(t *testing.T) {
		t.Parallel()

		a := assembler{}
		frames := []Frame{
			{Opcode: OpText, Payload: []byte("hel")},
			{Opcode: OpContinuation, Payload: []byte("lo ")},
			{Opcode: OpContinuation},
			{Fin: true, Opcode: OpContinuation, Payload: []byte("world")},
		}

		for i, f := range frames {
			msg, ok, err := a.push(f)
			assert.Success(t, err)
			if i < len(frames)-1 {
				assert.Equal(t, "ok", false, ok)
				continue
			}
			assert.Equal(t, "ok", true, ok)
			assert.Equal(t, "msg", Message{Type: MessageText, Payload: []byte("hello world")}, msg)
		}
		assert.Equal(t, "pending", false, a.pending())
	})

	t.Run("single", func(t *testing.T) {
		t.Parallel()

		a := assembler{}
		msg, ok, err := a.push(Frame{Fin: true, Opcode: OpBinary, Payload: []byte{1, 2}})
		assert.Success(t, err)
		assert.Equal(t, "ok", true, ok)
		assert.Equal(t, "msg", Message{Type: MessageBinary, Payload: []byte{1, 2}}, msg)
	})

	t.Run("unexpectedStart", func(t *testing.T) {
		t.Parallel()

		a := assembler{}
		_, _, err := a.push(Frame{Opcode: OpBinary, Payload: []byte("a")})
		assert.Success(t, err)

		_, ok, err := a.push(Frame{Fin: true, Opcode: OpText, Payload: []byte("b")})
		assert.Equal(t, "ok", false, ok)
		assert.Equal(t, "kind", UnexpectedStart, ProtocolErrorKindOf(err))
	})

	t.Run("unexpectedContinuation", func(t *testing.T) {
		t.Parallel()

		a := assembler{}
		_, ok, err := a.push(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("a")})
		assert.Equal(t, "ok", false, ok)
		assert.Equal(t, "kind", UnexpectedContinuation, ProtocolErrorKindOf(err))
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		a := assembler{limit: 4}
		_, _, err := a.push(Frame{Opcode: OpBinary, Payload: []byte("abc")})
		assert.Success(t, err)

		_, _, err = a.push(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("de")})
		assert.Equal(t, "kind", PayloadTooLarge, ProtocolErrorKindOf(err))

		a.reset()
		_, _, err = a.push(Frame{Fin: true, Opcode: OpText, Payload: []byte("abcde")})
		assert.Equal(t, "kind", PayloadTooLarge, ProtocolErrorKindOf(err))
	})

	t.Run("utf8", func(t *testing.T) {
		t.Parallel()

		a := assembler{}
		_, _, err := a.push(Frame{Opcode: OpText, Payload: []byte{0xe2, 0x82}})
		assert.Success(t, err)
		msg, ok, err := a.push(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte{0xac}})
		assert.Success(t, err)
		assert.Equal(t, "ok", true, ok)
		assert.Equal(t, "msg", "€", string(msg.Payload))

		_, _, err = a.push(Frame{Fin: true, Opcode: OpText, Payload: []byte{0xff}})
		assert.Equal(t, "kind", InvalidUTF8, ProtocolErrorKindOf(err))

		a = assembler{skipUTF8: true}
		_, ok, err = a.push(Frame{Fin: true, Opcode: OpText, Payload: []byte{0xff}})
		assert.Success(t, err)
		assert.Equal(t, "ok", true, ok)
	})
}
