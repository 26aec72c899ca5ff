package wspb_test

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes/wrappers"

	"github.com/gwebsockets/websocket"
	"github.com/gwebsockets/websocket/internal/test/assert"
	"github.com/gwebsockets/websocket/internal/test/wstest"
	"github.com/gwebsockets/websocket/internal/test/xrand"
	"github.com/gwebsockets/websocket/wspb"
)

func TestProtobuf(t *testing.T) {
	t.Parallel()

	client, server, err := wstest.Pipe(nil, &websocket.SessionOptions{FragmentSize: 16})
	assert.Success(t, err)

	exp := &wrappers.StringValue{Value: xrand.String(256)}

	p, err := wspb.Encode(server, exp)
	assert.Success(t, err)

	_, msgs, err := wstest.Relay(client, p)
	assert.Success(t, err)
	assert.Equal(t, "msgs", 1, len(msgs))

	got := &wrappers.StringValue{}
	err = wspb.Decode(msgs[0], got)
	assert.Success(t, err)
	if !proto.Equal(exp, got) {
		t.Fatalf("expected %v but got %v", exp, got)
	}

	err = wspb.Decode(websocket.Message{Type: websocket.MessageText}, got)
	assert.Contains(t, err, "expected binary message")

	err = wspb.Decode(websocket.Message{Type: websocket.MessageBinary, Payload: []byte{0xff}}, got)
	assert.Contains(t, err, "failed to unmarshal protobuf")
}
